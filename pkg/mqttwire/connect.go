package mqttwire

import (
	"encoding/binary"
	"fmt"
)

const (
	minTokenSpan = 16
	maxTokenSpan = 4096
)

// tokenMarker is the base64url encoding of `{"`, the start of every JWT
// header.
var tokenMarker = []byte("eyJ")

func isTokenByte(b byte) bool {
	switch {
	case b >= '0' && b <= '9', b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z':
		return true
	case b == '-', b == '_', b == '.':
		return true
	}
	return false
}

// FindTokenSpan locates the first three-segment token in body and returns
// its half-open range.
func FindTokenSpan(body []byte) (start, end int, err error) {
	for i := 0; i+len(tokenMarker) <= len(body); {
		if body[i] != tokenMarker[0] || body[i+1] != tokenMarker[1] || body[i+2] != tokenMarker[2] {
			i++
			continue
		}
		j := i + len(tokenMarker)
		dots := 0
		for j < len(body) && isTokenByte(body[j]) {
			if body[j] == '.' {
				dots++
				if dots == 2 {
					j++
					for j < len(body) && isTokenByte(body[j]) && body[j] != '.' {
						j++
					}
					if n := j - i; n < minTokenSpan || n > maxTokenSpan {
						return 0, 0, fmt.Errorf("%w: %d bytes", ErrTokenSpanInvalid, n)
					}
					return i, j, nil
				}
			}
			j++
		}
		i = j
	}
	return 0, 0, ErrTokenSpanNotFound
}

// SpliceToken returns a CONNECT packet (remaining length + body, without
// the preamble byte) built from template with its embedded token replaced
// by token. The 16-bit length field in front of the token is rewritten and
// the remaining length is recomputed. template is never modified.
func SpliceToken(template, token []byte) ([]byte, error) {
	tail := template
	if len(tail) > 0 && tail[0] == PreambleByte {
		tail = tail[1:]
	}
	_, n, err := DecodeVarLen(tail, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: remaining length: %w", ErrTemplateMalformed, err)
	}
	body := tail[n:]

	start, end, err := FindTokenSpan(body)
	if err != nil {
		return nil, err
	}
	if start < 2 {
		return nil, ErrNoLengthFieldRoom
	}
	if len(token) > 0xFFFF {
		return nil, ErrTokenTooLong
	}

	newBody := make([]byte, 0, len(body)-(end-start)+len(token))
	newBody = append(newBody, body[:start-2]...)
	newBody = binary.BigEndian.AppendUint16(newBody, uint16(len(token)))
	newBody = append(newBody, token...)
	newBody = append(newBody, body[end:]...)

	out, err := AppendVarLen(make([]byte, 0, len(newBody)+4), len(newBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemplateMalformed, err)
	}
	return append(out, newBody...), nil
}
