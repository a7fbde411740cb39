package pointmap

import (
	"encoding/binary"
	"fmt"
	"math"
)

// RangeError is returned when a value does not fit the declared register width.
// Callers must reject the read/write rather than silently wrap the value.
type RangeError struct {
	Value float64
	Type  DataType
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("value %v does not fit register type %s", e.Value, e.Type)
}

// Encode converts one engineering value into raw register words per the descriptor.
func Encode(d Descriptor, value float64) ([]uint16, error) {
	if d.Scale == 0 {
		return nil, fmt.Errorf("descriptor for address %d has zero scale", d.Addr)
	}

	scaled := value / d.Scale

	switch d.Type {
	case Int16:
		counts := math.Round(scaled)
		if counts < math.MinInt16 || counts > math.MaxInt16 {
			return nil, &RangeError{Value: value, Type: d.Type}
		}
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(int16(counts)))
		return wordsFromBytes(b, d.Byte, d.Word), nil

	case Uint16:
		counts := math.Round(scaled)
		if counts < 0 || counts > math.MaxUint16 {
			return nil, &RangeError{Value: value, Type: d.Type}
		}
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(counts))
		return wordsFromBytes(b, d.Byte, d.Word), nil

	case Int32:
		counts := math.Round(scaled)
		if counts < math.MinInt32 || counts > math.MaxInt32 {
			return nil, &RangeError{Value: value, Type: d.Type}
		}
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(int32(counts)))
		return wordsFromBytes(b, d.Byte, d.Word), nil

	case Uint32:
		counts := math.Round(scaled)
		if counts < 0 || counts > math.MaxUint32 {
			return nil, &RangeError{Value: value, Type: d.Type}
		}
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(counts))
		return wordsFromBytes(b, d.Byte, d.Word), nil

	case Float32:
		if math.IsNaN(scaled) || math.Abs(scaled) > math.MaxFloat32 {
			return nil, &RangeError{Value: value, Type: d.Type}
		}
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, math.Float32bits(float32(scaled)))
		return wordsFromBytes(b, d.Byte, d.Word), nil
	}

	return nil, fmt.Errorf("unknown data type %q", d.Type)
}

// Decode converts raw register words back into one engineering value per the descriptor.
func Decode(d Descriptor, words []uint16) (float64, error) {
	if d.Scale == 0 {
		return 0, fmt.Errorf("descriptor for address %d has zero scale", d.Addr)
	}
	if len(words) != int(d.Type.Words()) {
		return 0, fmt.Errorf("expected %d register words for type %s, got %d", d.Type.Words(), d.Type, len(words))
	}

	b := bytesFromWords(words, d.Byte, d.Word)

	switch d.Type {
	case Int16:
		return float64(int16(binary.BigEndian.Uint16(b))) * d.Scale, nil
	case Uint16:
		return float64(binary.BigEndian.Uint16(b)) * d.Scale, nil
	case Int32:
		return float64(int32(binary.BigEndian.Uint32(b))) * d.Scale, nil
	case Uint32:
		return float64(binary.BigEndian.Uint32(b)) * d.Scale, nil
	case Float32:
		val := math.Float32frombits(binary.BigEndian.Uint32(b))
		if math.IsInf(float64(val), 0) || math.IsNaN(float64(val)) {
			return 0, &RangeError{Value: float64(val), Type: d.Type}
		}
		return float64(val) * d.Scale, nil
	}

	return 0, fmt.Errorf("unknown data type %q", d.Type)
}

// wordsFromBytes lays a canonical big-endian byte string out as register words in the
// configured byte and word orders.
func wordsFromBytes(b []byte, bo ByteOrder, wo WordOrder) []uint16 {
	words := make([]uint16, len(b)/2)
	for i := range words {
		w := binary.BigEndian.Uint16(b[i*2:])
		if bo == LittleEndian {
			w = w<<8 | w>>8
		}
		words[i] = w
	}
	if wo == LowWordFirst && len(words) == 2 {
		words[0], words[1] = words[1], words[0]
	}
	return words
}

// bytesFromWords is the inverse of wordsFromBytes.
func bytesFromWords(words []uint16, bo ByteOrder, wo WordOrder) []byte {
	ordered := make([]uint16, len(words))
	copy(ordered, words)
	if wo == LowWordFirst && len(ordered) == 2 {
		ordered[0], ordered[1] = ordered[1], ordered[0]
	}
	b := make([]byte, len(ordered)*2)
	for i, w := range ordered {
		if bo == LittleEndian {
			w = w<<8 | w>>8
		}
		binary.BigEndian.PutUint16(b[i*2:], w)
	}
	return b
}
