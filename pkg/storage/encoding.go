// ABOUTME: Order-preserving encoding for composite keys of the memory store
// ABOUTME: Byte strings and float64 scores sort the same encoded as decoded

package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Value types for composite keys
const (
	TypeBytes   = 1
	TypeFloat64 = 2
)

// Value is one component of a composite key
type Value struct {
	Type uint8
	Str  []byte
	F64  float64
}

// Bytes creates a byte string value
func Bytes(b []byte) Value {
	return Value{Type: TypeBytes, Str: b}
}

// Str creates a byte string value from a string
func Str(s string) Value {
	return Value{Type: TypeBytes, Str: []byte(s)}
}

// Float creates a float64 value
func Float(f float64) Value {
	return Value{Type: TypeFloat64, F64: f}
}

// EncodeValues encodes values component by component. Floats keep their
// numeric order. Byte strings are terminated so that a prefix scan never
// crosses a component boundary; their order is lexicographic unless they
// contain 0x00 or 0xFE
func EncodeValues(vals []Value) []byte {
	out := make([]byte, 0, 64)
	for _, v := range vals {
		out = append(out, v.Type)

		switch v.Type {
		case TypeFloat64:
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], sortableFloat(v.F64))
			out = append(out, buf[:]...)

		case TypeBytes:
			// Escape and null-terminate
			out = append(out, escapeBytes(v.Str)...)
			out = append(out, 0)

		default:
			panic(fmt.Sprintf("unknown value type: %d", v.Type))
		}
	}
	return out
}

// EncodeKey prefixes the encoded values with a 4-byte keyspace prefix
func EncodeKey(prefix uint32, vals []Value) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], prefix)
	return append(buf[:], EncodeValues(vals)...)
}

// DecodeKey splits an encoded key into its prefix and values
func DecodeKey(key []byte) (uint32, []Value, error) {
	if len(key) < 4 {
		return 0, nil, fmt.Errorf("key too short: %d bytes", len(key))
	}
	vals, err := DecodeValues(key[4:])
	if err != nil {
		return 0, nil, err
	}
	return binary.BigEndian.Uint32(key[:4]), vals, nil
}

// DecodeValues reverses EncodeValues
func DecodeValues(data []byte) ([]Value, error) {
	vals := make([]Value, 0, 4)
	pos := 0

	for pos < len(data) {
		typ := data[pos]
		pos++

		switch typ {
		case TypeFloat64:
			if pos+8 > len(data) {
				return nil, fmt.Errorf("incomplete float64 at pos %d", pos)
			}
			u := binary.BigEndian.Uint64(data[pos : pos+8])
			vals = append(vals, Float(unsortableFloat(u)))
			pos += 8

		case TypeBytes:
			// Scan for the terminator, stepping over escape pairs
			var str []byte
			end := pos
			for ; end < len(data) && data[end] != 0; end++ {
				if data[end] == 0xFE && end+1 < len(data) {
					end++
				}
				str = append(str, data[end])
			}
			if end >= len(data) {
				return nil, fmt.Errorf("unterminated string at pos %d", pos)
			}
			vals = append(vals, Bytes(str))
			pos = end + 1

		default:
			return nil, fmt.Errorf("unknown value type: %d at pos %d", typ, pos-1)
		}
	}

	return vals, nil
}

// escapeBytes escapes 0x00 and 0xFE so the terminator stays unambiguous
func escapeBytes(s []byte) []byte {
	escapes := 0
	for _, b := range s {
		if b == 0 || b == 0xFE {
			escapes++
		}
	}
	if escapes == 0 {
		return s
	}

	out := make([]byte, 0, len(s)+escapes)
	for _, b := range s {
		if b == 0 || b == 0xFE {
			out = append(out, 0xFE)
		}
		out = append(out, b)
	}
	return out
}

// sortableFloat maps a float64 onto a uint64 with the same ordering:
// positives get the sign bit set, negatives are inverted
func sortableFloat(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) == 0 {
		return bits | 1<<63
	}
	return ^bits
}

func unsortableFloat(u uint64) float64 {
	if u&(1<<63) != 0 {
		return math.Float64frombits(u &^ (1 << 63))
	}
	return math.Float64frombits(^u)
}
