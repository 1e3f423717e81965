package store

import (
	"bytes"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/verte-zerg/keyrace/internal/model"
)

// Values are stored as msgpack so that histograms stay compact and the
// encoding is self-describing. Integers use the smallest msgpack form.

// EncodeUint encodes a single unsigned integer.
func EncodeUint(v uint64) []byte {
	return marshal(v)
}

// DecodeUint decodes a single unsigned integer.
func DecodeUint(data []byte) (uint64, error) {
	var val any
	if err := msgpack.Unmarshal(data, &val); err != nil {
		return 0, err
	}
	return toUint(val)
}

// EncodeUints encodes a histogram as a msgpack array.
func EncodeUints(values []uint32) []byte {
	return marshal(values)
}

// DecodeUints decodes a histogram encoded by EncodeUints.
func DecodeUints(data []byte) ([]uint32, error) {
	var items []any
	if err := msgpack.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	out := make([]uint32, len(items))
	for i, item := range items {
		v, err := toUint(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		if v > 0xffffffff {
			return nil, fmt.Errorf("index %d: value %d overflows uint32", i, v)
		}
		out[i] = uint32(v)
	}
	return out, nil
}

// EncodeBool encodes a flag.
func EncodeBool(v bool) []byte {
	return marshal(v)
}

// DecodeBool decodes a flag.
func DecodeBool(data []byte) (bool, error) {
	var val any
	if err := msgpack.Unmarshal(data, &val); err != nil {
		return false, err
	}
	b, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("expected msgpack bool, got %T", val)
	}
	return b, nil
}

// EncodeTime encodes a timestamp as an RFC 3339 string.
func EncodeTime(t time.Time) []byte {
	return marshal(t.Format(time.RFC3339Nano))
}

// DecodeTime decodes a timestamp encoded by EncodeTime.
func DecodeTime(data []byte) (time.Time, error) {
	s, err := decodeString(data)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}

// EncodeDay encodes a calendar day as YYYY-MM-DD.
func EncodeDay(d model.Day) []byte {
	return marshal(d.String())
}

// DecodeDay decodes a day encoded by EncodeDay.
func DecodeDay(data []byte) (model.Day, error) {
	s, err := decodeString(data)
	if err != nil {
		return model.Day{}, err
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return model.Day{}, err
	}
	return model.DayOf(t), nil
}

func marshal(v any) []byte {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	// Scalars and uint slices always encode; a bytes.Buffer never fails a write.
	_ = enc.Encode(v)
	return buf.Bytes()
}

func decodeString(data []byte) (string, error) {
	var val any
	if err := msgpack.Unmarshal(data, &val); err != nil {
		return "", err
	}
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("expected msgpack string, got %T", val)
	}
	return s, nil
}

func toUint(v any) (uint64, error) {
	var n int64
	switch x := v.(type) {
	case uint8:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint64:
		return x, nil
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	default:
		return 0, fmt.Errorf("expected msgpack integer, got %T", v)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return uint64(n), nil
}
