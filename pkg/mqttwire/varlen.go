package mqttwire

import "fmt"

// MaxVarLen is the largest remaining length a four byte varint can carry.
const MaxVarLen = 128*128*128*128 - 1

const maxMultiplier = 128 * 128 * 128

// EncodeVarLen encodes n as a remaining-length varint: base-128 groups,
// least significant first, continuation bit on every byte but the last.
func EncodeVarLen(n int) ([]byte, error) {
	return AppendVarLen(make([]byte, 0, 4), n)
}

// AppendVarLen appends the varint encoding of n to dst.
func AppendVarLen(dst []byte, n int) ([]byte, error) {
	if n < 0 || n > MaxVarLen {
		return dst, fmt.Errorf("%w: %d", ErrLengthOutOfRange, n)
	}
	for {
		b := byte(n % 128)
		n /= 128
		if n > 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if n == 0 {
			return dst, nil
		}
	}
}

// DecodeVarLen reads a remaining-length varint at buf[off:] and returns the
// value and the number of bytes consumed.
func DecodeVarLen(buf []byte, off int) (value, consumed int, err error) {
	multiplier := 1
	for i := 0; ; i++ {
		if off+i >= len(buf) {
			return 0, 0, ErrFrameTruncated
		}
		b := buf[off+i]
		value += int(b&0x7F) * multiplier
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
		if multiplier >= maxMultiplier {
			return 0, 0, ErrVarintTooLarge
		}
		multiplier *= 128
	}
}
