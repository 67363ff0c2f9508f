package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/gocare/pkg/domain"
)

// ParseHandshake decodes the participant metadata a transport attaches to a new
// connection, e.g. {"userName":"Ada","userId":"15551234567","is_auth_based":true}.
// An empty string is an empty handshake.
func ParseHandshake(metadata string) (domain.Handshake, error) {
	var hs domain.Handshake
	if strings.TrimSpace(metadata) == "" {
		return hs, nil
	}
	if err := json.Unmarshal([]byte(metadata), &hs); err != nil {
		return domain.Handshake{}, fmt.Errorf("invalid handshake metadata: %w", err)
	}
	return hs, nil
}
