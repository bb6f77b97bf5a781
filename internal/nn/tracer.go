// Package nn implements the neural network modules the exporter traces.
//
// Modules here hold weights and emit graph operations; there is no forward
// compute. Tracing walks the module tree once with a symbolic input value,
// and every module appends its ONNX nodes, registers its parameters as
// graph initializers, and propagates the static output shape. The result
// is the static graph the exporter serializes.
package nn

import (
	"fmt"
	"strings"

	"github.com/edgeface-ml/edgeface/internal/onnx"
	"github.com/edgeface-ml/edgeface/internal/tensor"
)

// Value is a symbolic tensor flowing through the traced graph: the name of
// the graph edge plus its statically known shape.
type Value struct {
	Name  string
	Shape tensor.Shape
}

// Tracer records the operations emitted while walking a module tree.
//
// Node names are derived from the scope stack ("/stages.1/blocks.0/dwconv/
// Conv"), parameter initializers from the dotted scope ("stages.1.blocks.0.
// dwconv.weight"). Both are deterministic for a given module tree, which
// keeps serialized exports byte-stable across runs.
type Tracer struct {
	graph *onnx.GraphProto
	scope []string
	seen  map[string]int
}

// NewTracer creates a tracer for a graph with the given name.
func NewTracer(graphName string) *Tracer {
	return &Tracer{
		graph: &onnx.GraphProto{Name: graphName},
		seen:  make(map[string]int),
	}
}

// Push enters a named scope (a submodule).
func (t *Tracer) Push(name string) {
	t.scope = append(t.scope, name)
}

// Pop leaves the innermost scope.
func (t *Tracer) Pop() {
	if len(t.scope) == 0 {
		panic("nn: scope underflow")
	}
	t.scope = t.scope[:len(t.scope)-1]
}

// Input declares the graph input value. The ValueInfo entry itself is
// written by the exporter, which decides static vs. dynamic batch dims.
func (t *Tracer) Input(name string, shape tensor.Shape) Value {
	return Value{Name: name, Shape: shape.Clone()}
}

// Param registers a parameter tensor as a graph initializer and returns
// its graph name (the dotted scope plus the local name).
func (t *Tracer) Param(localName string, raw *tensor.RawTensor) string {
	name := t.dottedName(localName)
	t.addInitializer(name, raw)
	return name
}

// Const registers a constant tensor (epsilon values, scaling factors)
// as an initializer under the current scope.
func (t *Tracer) Const(label string, raw *tensor.RawTensor) string {
	name := t.dottedName(label)
	t.addInitializer(name, raw)
	return name
}

// Scalar registers a scalar float32 constant and returns its graph name.
func (t *Tracer) Scalar(label string, v float32) string {
	raw, err := tensor.FromFloat32([]float32{v}, tensor.Shape{})
	if err != nil {
		panic(fmt.Sprintf("nn: scalar constant: %v", err))
	}
	return t.Const(label, raw)
}

// Node appends an operation and returns its (single) output value.
func (t *Tracer) Node(opType string, inputs []string, attrs []onnx.AttributeProto, outShape tensor.Shape) Value {
	nodeName := t.nodeName(opType)
	outName := nodeName + "_output_0"
	t.graph.Nodes = append(t.graph.Nodes, onnx.NodeProto{
		Name:       nodeName,
		OpType:     opType,
		Inputs:     inputs,
		Outputs:    []string{outName},
		Attributes: attrs,
	})
	return Value{Name: outName, Shape: outShape.Clone()}
}

// Graph returns the recorded graph.
func (t *Tracer) Graph() *onnx.GraphProto {
	return t.graph
}

func (t *Tracer) addInitializer(name string, raw *tensor.RawTensor) {
	data := make([]byte, len(raw.Data()))
	copy(data, raw.Data())
	t.graph.Initializers = append(t.graph.Initializers, onnx.TensorProto{
		Name:     name,
		DataType: dataTypeOf(raw.DType()),
		Dims:     raw.Shape().Dims(),
		RawData:  data,
	})
}

func (t *Tracer) dottedName(localName string) string {
	if len(t.scope) == 0 {
		return localName
	}
	return strings.Join(t.scope, ".") + "." + localName
}

func (t *Tracer) nodeName(opType string) string {
	base := "/" + strings.Join(t.scope, "/") + "/" + opType
	n := t.seen[base]
	t.seen[base] = n + 1
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, n)
}

func dataTypeOf(dt tensor.DataType) int32 {
	switch dt {
	case tensor.Float32:
		return onnx.TensorFloat
	case tensor.Float64:
		return onnx.TensorDouble
	case tensor.Int32:
		return onnx.TensorInt32
	case tensor.Int64:
		return onnx.TensorInt64
	case tensor.Uint8:
		return onnx.TensorUint8
	case tensor.Bool:
		return onnx.TensorBool
	default:
		return onnx.TensorUndefined
	}
}

// Attribute helpers.

// AttrInt builds an INT attribute.
func AttrInt(name string, v int64) onnx.AttributeProto {
	return onnx.AttributeProto{Name: name, Type: onnx.AttrInt, I: v}
}

// AttrInts builds an INTS attribute.
func AttrInts(name string, vs ...int64) onnx.AttributeProto {
	return onnx.AttributeProto{Name: name, Type: onnx.AttrInts, Ints: vs}
}

// AttrFloat builds a FLOAT attribute.
func AttrFloat(name string, v float32) onnx.AttributeProto {
	return onnx.AttributeProto{Name: name, Type: onnx.AttrFloat, F: v}
}
