package runtime

import (
	"fmt"
	"strings"

	"github.com/aretw0/gocare/pkg/domain"
)

// Spoken lines. Kept together so tests and handlers agree on wording.
const (
	msgFallback = "Sorry, I ran into an error."

	msgWelcome            = "Welcome to GoCare support. To get started, please tell me the mobile number on your account."
	msgAskIdentifier      = "Could you tell me the mobile number on your account? Just the digits is fine."
	msgConfirmNoHint      = "I don't have a number on file for this call yet. Please tell me the mobile number on your account."
	msgUnclearInput       = "Sorry, I didn't catch that. Could you say it again?"
	msgAskCodeGeneric     = "Please tell me the 4-digit verification code we sent to your mobile."
	msgMissingCode        = "I didn't catch a code. Please say the 4-digit verification code, digit by digit."
	msgRetry              = "That code didn't match. Please try again."
	msgLockout            = "Access is locked due to failed verification attempts."
	msgCodeSent           = "I've sent a new verification code to your mobile. Please tell me the 4 digits when it arrives."
	msgChangeNumber       = "No problem, let's use a different number."
	msgVerifyUnavailable  = msgServiceTrouble + " Or say your code again and I'll retry."
	msgServiceTrouble     = "Sorry, I'm having trouble reaching our systems right now. If you'd like, I can connect you with one of our specialists."
	msgMainMenu           = "I can help with your profile, billing details, contact details, last login or recent activity. I can also connect you with a specialist."
	msgHelplineWelcome    = "Hi there! I'm one of our customer support specialists. What can I help you with today?"
	msgHelplineDefault    = "I'm here to help. Could you tell me a bit more about what's going on?"
	msgFarewell           = "Thanks for banking with us! Have a wonderful day. Goodbye!"
	msgRestart            = "Okay, let's start over."
	msgActionUnavailable  = "Sorry, I can't do that right now."
	msgDefaultEscalateFmt = "%s asked to speak with a specialist."
)

func welcome(sc *domain.SessionContext) string {
	var b strings.Builder
	if sc.DisplayNameHint != "" {
		fmt.Fprintf(&b, "Hi %s! ", sc.DisplayNameHint)
	}
	if sc.IdentifierHint != "" {
		b.WriteString("Welcome to GoCare support. ")
		fmt.Fprintf(&b, "Is your mobile number still the one ending in %s? ", lastDigits(sc.IdentifierHint, 4))
		b.WriteString("Say yes, or tell me a different number.")
		return b.String()
	}
	b.WriteString(msgWelcome)
	return b.String()
}

func askCode(sc *domain.SessionContext) string {
	if sc.UserMobile == "" {
		return msgAskCodeGeneric
	}
	return fmt.Sprintf("Thanks. Please tell me the 4-digit verification code we sent to your mobile ending in %s.",
		lastDigits(sc.UserMobile, 4))
}

func authenticatedWelcome(name string) string {
	if name == "" {
		return "You have successfully authenticated. How can I help you with your account today?"
	}
	return fmt.Sprintf("You have successfully authenticated, %s. How can I help you with your account today?", name)
}

func escalationAck(name string) string {
	if name == "" {
		return "Alright, let me get you over to one of our specialists."
	}
	return fmt.Sprintf("Alright %s, let me get you over to one of our specialists.", name)
}

func lockoutNotice(p domain.Policy, attempts int) string {
	if p.LockoutMentionsAttempts {
		return fmt.Sprintf("%s There were %d unsuccessful attempts.", msgLockout, attempts)
	}
	return msgLockout
}

func retryPrompt(attempts int) string {
	left := domain.MaxAuthAttempts - attempts
	if left == 1 {
		return msgRetry + " You have one attempt left."
	}
	return msgRetry
}

func dataReply(kind domain.DataKind, rec domain.Record) string {
	return fmt.Sprintf("Here are your %s: %s.", kind.Label(), rec.Speak())
}

func dataNotFound(kind domain.DataKind) string {
	return fmt.Sprintf("I couldn't find any %s on your account.", kind.Label())
}

func lastDigits(s string, n int) string {
	d := digitsOnly(s)
	if len(d) <= n {
		return d
	}
	return d[len(d)-n:]
}
