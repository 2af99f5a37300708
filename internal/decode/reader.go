package decode

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field is one decoded wire field. Only the member matching Type is set.
type Field struct {
	Num     protowire.Number
	Type    protowire.Type
	Varint  uint64
	Fixed32 uint32
	Fixed64 uint64
	Bytes   []byte
}

// Float returns the numeric value of a varint, fixed32 or fixed64 field.
// Fixed-width fields are read as IEEE floats.
func (f Field) Float() (float64, bool) {
	switch f.Type {
	case protowire.VarintType:
		return float64(int64(f.Varint)), true
	case protowire.Fixed64Type:
		return math.Float64frombits(f.Fixed64), true
	case protowire.Fixed32Type:
		return float64(math.Float32frombits(f.Fixed32)), true
	}
	return 0, false
}

// Scan walks the fields of b in order and calls fn for each of them until
// fn returns false. A start- or end-group marker ends the scan without an
// error. Any framing problem returns an error wrapping ErrDecodeFailed.
func Scan(b []byte, fn func(Field) bool) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: tag: %v", ErrDecodeFailed, protowire.ParseError(n))
		}
		b = b[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			f.Varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			f.Fixed32, n = protowire.ConsumeFixed32(b)
		case protowire.Fixed64Type:
			f.Fixed64, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(b)
		case protowire.StartGroupType, protowire.EndGroupType:
			return nil
		default:
			return fmt.Errorf("%w: field %d: unknown wire type %d", ErrDecodeFailed, num, typ)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrDecodeFailed, num, protowire.ParseError(n))
		}
		b = b[n:]

		if !fn(f) {
			return nil
		}
	}
	return nil
}
