package pointmap

import "fmt"

// DataType represents the different types of data that can be carried in holding registers.
type DataType string

const (
	Int16   DataType = "int16"
	Uint16  DataType = "uint16"
	Int32   DataType = "int32"
	Uint32  DataType = "uint32"
	Float32 DataType = "float32"
)

// Words returns the number of 16-bit registers the data type occupies.
func (d DataType) Words() uint16 {
	switch d {
	case Int16, Uint16:
		return 1
	case Int32, Uint32, Float32:
		return 2
	}
	return 0
}

// ParseDataType converts a configuration string into a DataType.
func ParseDataType(s string) (DataType, error) {
	switch DataType(s) {
	case Int16, Uint16, Int32, Uint32, Float32:
		return DataType(s), nil
	}
	return "", fmt.Errorf("unknown data type %q", s)
}

// ByteOrder determines how the two bytes inside each register word are laid out.
type ByteOrder string

const (
	BigEndian    ByteOrder = "big"
	LittleEndian ByteOrder = "little"
)

// ParseByteOrder converts a configuration string into a ByteOrder.
// There is deliberately no default: a point without an explicit byte order is a
// configuration error, not something to guess at runtime.
func ParseByteOrder(s string) (ByteOrder, error) {
	switch ByteOrder(s) {
	case BigEndian, LittleEndian:
		return ByteOrder(s), nil
	}
	return "", fmt.Errorf("unknown byte order %q", s)
}

// WordOrder determines which register word of a 32-bit value is transmitted first.
type WordOrder string

const (
	HighWordFirst WordOrder = "high_first"
	LowWordFirst  WordOrder = "low_first"
)

// ParseWordOrder converts a configuration string into a WordOrder.
func ParseWordOrder(s string) (WordOrder, error) {
	switch WordOrder(s) {
	case HighWordFirst, LowWordFirst:
		return WordOrder(s), nil
	}
	return "", fmt.Errorf("unknown word order %q", s)
}

// Descriptor describes one named point on a modbus endpoint.
//
// Scale is the number of engineering units represented by one register count, e.g.
// 0.1 for power points carried as hectowatts. Values passed through Encode/Decode are
// always in natural engineering units (kW, kvar, per-unit, kV); the fixed-point
// scaling exists only on the wire.
type Descriptor struct {
	Addr  uint16
	Type  DataType
	Scale float64
	Byte  ByteOrder
	Word  WordOrder
}
