package security

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/gocare/pkg/domain"
)

const (
	// DefaultMaxInputSize is 4KB, far above any spoken utterance.
	DefaultMaxInputSize = 4096
	// EnvMaxInputSize overrides the limit.
	EnvMaxInputSize = "GOCARE_MAX_INPUT_SIZE"
)

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// Sanitizer prepares a recognised utterance for the turn pipeline.
type Sanitizer struct {
	MaxSize int
}

// NewSanitizer uses GOCARE_MAX_INPUT_SIZE when set to a positive number.
func NewSanitizer() Sanitizer {
	size := DefaultMaxInputSize
	if val := os.Getenv(EnvMaxInputSize); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			size = n
		}
	}
	return Sanitizer{MaxSize: size}
}

// Clean rejects oversized or malformed input with a *domain.ValidationError,
// then returns the utterance as one trimmed line: control and format runes
// (ANSI escapes, NUL, zero-width joiners) are dropped and whitespace runs
// collapse to a single space. Format runes are removed before keyword matching
// sees the text, so a zero-width joiner cannot split a keyword.
func (s Sanitizer) Clean(utterance string) (string, error) {
	limit := s.MaxSize
	if limit <= 0 {
		limit = DefaultMaxInputSize
	}
	if len(utterance) > limit {
		// Rejected, not truncated: a cut-off identifier must not reach a handler.
		return "", &domain.ValidationError{
			Field:  "utterance",
			Reason: fmt.Sprintf("%d bytes, limit %d", len(utterance), limit),
			Cause:  ErrInputTooLarge,
		}
	}
	if !utf8.ValidString(utterance) {
		return "", &domain.ValidationError{Field: "utterance", Reason: "not UTF-8", Cause: ErrInvalidUTF8}
	}

	var b strings.Builder
	b.Grow(len(utterance))
	space := false
	for _, r := range utterance {
		switch {
		case unicode.IsSpace(r):
			space = b.Len() > 0
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
		default:
			if space {
				b.WriteByte(' ')
				space = false
			}
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}
