package onnx

// Hand-written ONNX protobuf data structures.

// ModelProto is the top-level ONNX model message.
type ModelProto struct {
	IRVersion       int64
	ProducerName    string
	ProducerVersion string
	Domain          string
	ModelVersion    int64
	DocString       string
	Graph           *GraphProto
	OpsetImport     []OperatorSetID
	MetadataProps   []StringStringEntry
}

// GraphProto is the computation graph: nodes plus tensor bindings.
type GraphProto struct {
	Name         string
	Nodes        []NodeProto
	Initializers []TensorProto
	DocString    string
	Inputs       []ValueInfoProto
	Outputs      []ValueInfoProto
	ValueInfo    []ValueInfoProto
}

// NodeProto is a single operation in the graph.
type NodeProto struct {
	Name       string
	OpType     string
	Domain     string
	Inputs     []string
	Outputs    []string
	Attributes []AttributeProto
	DocString  string
}

// TensorProto holds a constant tensor (initializers, attribute payloads).
type TensorProto struct {
	Name         string
	DataType     int32
	Dims         []int64
	RawData      []byte
	FloatData    []float32
	Int32Data    []int32
	Int64Data    []int64
	DocString    string
	ExternalData []StringStringEntry
	DataLocation int32
}

// ValueInfoProto describes a named tensor's type and shape.
type ValueInfoProto struct {
	Name      string
	Type      *TypeProto
	DocString string
}

// TypeProto wraps the type of a value; only tensor types are used here.
type TypeProto struct {
	TensorType *TensorTypeProto
}

// TensorTypeProto is an element type plus a (possibly symbolic) shape.
type TensorTypeProto struct {
	ElemType int32
	Shape    *TensorShapeProto
}

// TensorShapeProto lists the dimensions of a tensor type.
type TensorShapeProto struct {
	Dims []DimensionProto
}

// DimensionProto is one dimension: a fixed value or a symbolic name
// (DimParam carries names like "batch_size" for dynamic axes).
type DimensionProto struct {
	DimValue int64
	DimParam string
}

// AttributeProto is a named attribute on a node.
type AttributeProto struct {
	Name      string
	Type      int32
	F         float32
	I         int64
	S         []byte
	T         *TensorProto
	Floats    []float32
	Ints      []int64
	Strings   [][]byte
	DocString string
}

// OperatorSetID pins an operator-set domain to a version.
type OperatorSetID struct {
	Domain  string
	Version int64
}

// StringStringEntry is a key/value pair used for metadata and for the
// location/offset/length entries of externally stored tensors.
type StringStringEntry struct {
	Key   string
	Value string
}

// TensorProto.DataType values.
const (
	TensorUndefined = 0
	TensorFloat     = 1 // float32
	TensorUint8     = 2
	TensorInt8      = 3
	TensorUint16    = 4
	TensorInt16     = 5
	TensorInt32     = 6
	TensorInt64     = 7
	TensorString    = 8
	TensorBool      = 9
	TensorFloat16   = 10
	TensorDouble    = 11
	TensorUint32    = 12
	TensorUint64    = 13
	TensorBfloat16  = 16
)

// TensorProto.DataLocation values.
const (
	DataLocationDefault  = 0 // payload inlined in RawData
	DataLocationExternal = 1 // payload in a sidecar file, described by ExternalData
)

// AttributeProto.Type values.
const (
	AttrUndefined = 0
	AttrFloat     = 1
	AttrInt       = 2
	AttrString    = 3
	AttrTensor    = 4
	AttrGraph     = 5
	AttrFloats    = 6
	AttrInts      = 7
	AttrStrings   = 8
)
