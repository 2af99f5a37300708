package token

import (
	"encoding/base64"
	"strings"

	json "github.com/goccy/go-json"
)

// ParseExpiry extracts the exp claim (unix seconds) from the middle segment
// of a three-part token. ok is false when the token is not a JWT or
// carries no numeric exp.
func ParseExpiry(raw string) (exp int64, ok bool) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return 0, false
	}
	seg := parts[1]
	if m := len(seg) % 4; m != 0 {
		seg += strings.Repeat("=", 4-m)
	}
	payload, err := base64.URLEncoding.DecodeString(seg)
	if err != nil {
		return 0, false
	}
	var claims struct {
		Exp *float64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Exp == nil {
		return 0, false
	}
	return int64(*claims.Exp), true
}
