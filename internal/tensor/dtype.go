// Package tensor provides the weight-tensor types shared by the checkpoint
// loader, the module library, and the ONNX exporter.
//
// Unlike a training framework there is no compute here: a tensor is a typed,
// shaped view over a little-endian byte buffer. That is all the exporter
// needs to move weights from a checkpoint into a graph file.
package tensor

// DataType is runtime type information for a tensor's elements.
type DataType int

// Supported element types.
const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
	Uint8
	Bool
)

// Size returns the byte size of one element of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Uint8, Bool:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}
