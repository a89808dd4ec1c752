// ABOUTME: Typed codecs between Go field values and their stored forms
// ABOUTME: All string and byte conversions use UTF-8, never the locale

package property

import (
	"fmt"
	"strconv"
	"time"
)

// Codec converts a typed field value to its raw byte encoding and its string
// encoding, and parses the raw encoding back.
type Codec[V any] interface {
	Encode(v V) []byte
	Format(v V) string
	Decode(raw []byte) (V, error)
}

// Built-in codecs for the scalar types entities usually carry
var (
	String  Codec[string]    = stringCodec{}
	Int     Codec[int]       = intCodec{}
	Int64   Codec[int64]     = int64Codec{}
	Float64 Codec[float64]   = float64Codec{}
	Bool    Codec[bool]      = boolCodec{}
	Time    Codec[time.Time] = timeCodec{}
	Bytes   Codec[[]byte]    = bytesCodec{}
)

type stringCodec struct{}

func (stringCodec) Encode(v string) []byte             { return []byte(v) }
func (stringCodec) Format(v string) string             { return v }
func (stringCodec) Decode(raw []byte) (string, error) { return string(raw), nil }

type intCodec struct{}

func (intCodec) Encode(v int) []byte { return strconv.AppendInt(nil, int64(v), 10) }
func (intCodec) Format(v int) string { return strconv.Itoa(v) }

func (intCodec) Decode(raw []byte) (int, error) {
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("decode int: %w", err)
	}
	return n, nil
}

type int64Codec struct{}

func (int64Codec) Encode(v int64) []byte { return strconv.AppendInt(nil, v, 10) }
func (int64Codec) Format(v int64) string { return strconv.FormatInt(v, 10) }

func (int64Codec) Decode(raw []byte) (int64, error) {
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode int64: %w", err)
	}
	return n, nil
}

type float64Codec struct{}

func (float64Codec) Encode(v float64) []byte { return strconv.AppendFloat(nil, v, 'g', -1, 64) }
func (float64Codec) Format(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func (float64Codec) Decode(raw []byte) (float64, error) {
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("decode float64: %w", err)
	}
	return f, nil
}

type boolCodec struct{}

func (boolCodec) Encode(v bool) []byte { return strconv.AppendBool(nil, v) }
func (boolCodec) Format(v bool) string { return strconv.FormatBool(v) }

func (boolCodec) Decode(raw []byte) (bool, error) {
	b, err := strconv.ParseBool(string(raw))
	if err != nil {
		return false, fmt.Errorf("decode bool: %w", err)
	}
	return b, nil
}

// Times are stored in UTC so the string encoding, and therefore the index
// score, does not depend on the writer's zone.
type timeCodec struct{}

func (c timeCodec) Encode(v time.Time) []byte { return []byte(c.Format(v)) }
func (timeCodec) Format(v time.Time) string   { return v.UTC().Format(time.RFC3339Nano) }

func (timeCodec) Decode(raw []byte) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("decode time: %w", err)
	}
	return t, nil
}

type bytesCodec struct{}

func (bytesCodec) Encode(v []byte) []byte { return v }
func (bytesCodec) Format(v []byte) string { return string(v) }

func (bytesCodec) Decode(raw []byte) ([]byte, error) {
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}
