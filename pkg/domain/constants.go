package domain

// MaxAuthAttempts is the number of failed verification calls that locks a session.
const MaxAuthAttempts = 3

// Speaker values used in transcripts.
const (
	SpeakerUser  = "user"
	SpeakerAgent = "agent"
)
