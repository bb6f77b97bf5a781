package onnx

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Marshal serializes a model to ONNX protobuf bytes.
//
// Emission is canonical: fields in field-number order, repeated fields in
// slice order. Two equal models always produce identical bytes, which is
// what keeps re-exports byte-stable.
func Marshal(m *ModelProto) []byte {
	e := &encoder{}
	e.modelProto(m)
	return e.buf
}

// WriteFile serializes a model and writes it to path.
func WriteFile(m *ModelProto, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	w := bufio.NewWriter(file)
	if _, err := w.Write(Marshal(m)); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush model: %w", err)
	}
	return nil
}

// encoder implements a minimal protobuf wire format encoder.
type encoder struct {
	buf []byte
}

// Wire tag helpers. Field numbers follow onnx.proto3.

func (e *encoder) tag(fieldNum, wireType int) {
	e.varint(int64(fieldNum<<3 | wireType))
}

func (e *encoder) varint(v int64) {
	u := uint64(v)
	for u >= 0x80 {
		e.buf = append(e.buf, byte(u)|0x80)
		u >>= 7
	}
	e.buf = append(e.buf, byte(u))
}

func (e *encoder) varintField(fieldNum int, v int64) {
	if v == 0 {
		return
	}
	e.tag(fieldNum, wireVarint)
	e.varint(v)
}

func (e *encoder) bytesField(fieldNum int, data []byte) {
	if len(data) == 0 {
		return
	}
	e.tag(fieldNum, wireBytes)
	e.varint(int64(len(data)))
	e.buf = append(e.buf, data...)
}

func (e *encoder) stringField(fieldNum int, s string) {
	e.bytesField(fieldNum, []byte(s))
}

func (e *encoder) floatField(fieldNum int, f float32) {
	if f == 0 {
		return
	}
	e.tag(fieldNum, wire32Bit)
	e.buf = binary.LittleEndian.AppendUint32(e.buf, math.Float32bits(f))
}

// messageField emits a length-delimited submessage built by fill.
// Proto3 semantics: a nil message is absent, an empty one still emits a tag.
func (e *encoder) messageField(fieldNum int, fill func(*encoder)) {
	sub := &encoder{}
	fill(sub)
	e.tag(fieldNum, wireBytes)
	e.varint(int64(len(sub.buf)))
	e.buf = append(e.buf, sub.buf...)
}

func (e *encoder) packedVarints(fieldNum int, vs []int64) {
	if len(vs) == 0 {
		return
	}
	sub := &encoder{}
	for _, v := range vs {
		sub.varint(v)
	}
	e.bytesField(fieldNum, sub.buf)
}

func (e *encoder) packedFloats(fieldNum int, vs []float32) {
	if len(vs) == 0 {
		return
	}
	data := make([]byte, 0, len(vs)*4)
	for _, v := range vs {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v))
	}
	e.bytesField(fieldNum, data)
}

func (e *encoder) packedInt32s(fieldNum int, vs []int32) {
	if len(vs) == 0 {
		return
	}
	sub := &encoder{}
	for _, v := range vs {
		sub.varint(int64(v))
	}
	e.bytesField(fieldNum, sub.buf)
}

// Message encoders.

func (e *encoder) modelProto(m *ModelProto) {
	e.varintField(1, m.IRVersion)
	e.stringField(2, m.ProducerName)
	e.stringField(3, m.ProducerVersion)
	e.stringField(4, m.Domain)
	e.varintField(5, m.ModelVersion)
	e.stringField(6, m.DocString)
	if m.Graph != nil {
		e.messageField(7, func(sub *encoder) { sub.graphProto(m.Graph) })
	}
	for i := range m.OpsetImport {
		opset := m.OpsetImport[i]
		e.messageField(8, func(sub *encoder) { sub.operatorSetID(&opset) })
	}
	for i := range m.MetadataProps {
		prop := m.MetadataProps[i]
		e.messageField(14, func(sub *encoder) { sub.stringStringEntry(&prop) })
	}
}

func (e *encoder) graphProto(g *GraphProto) {
	for i := range g.Nodes {
		node := &g.Nodes[i]
		e.messageField(1, func(sub *encoder) { sub.nodeProto(node) })
	}
	e.stringField(2, g.Name)
	for i := range g.Initializers {
		init := &g.Initializers[i]
		e.messageField(5, func(sub *encoder) { sub.tensorProto(init) })
	}
	e.stringField(10, g.DocString)
	for i := range g.Inputs {
		vi := &g.Inputs[i]
		e.messageField(11, func(sub *encoder) { sub.valueInfoProto(vi) })
	}
	for i := range g.Outputs {
		vi := &g.Outputs[i]
		e.messageField(12, func(sub *encoder) { sub.valueInfoProto(vi) })
	}
	for i := range g.ValueInfo {
		vi := &g.ValueInfo[i]
		e.messageField(13, func(sub *encoder) { sub.valueInfoProto(vi) })
	}
}

func (e *encoder) nodeProto(n *NodeProto) {
	for _, in := range n.Inputs {
		// Empty strings mark omitted optional inputs and must survive.
		e.tag(1, wireBytes)
		e.varint(int64(len(in)))
		e.buf = append(e.buf, in...)
	}
	for _, out := range n.Outputs {
		e.stringField(2, out)
	}
	e.stringField(3, n.Name)
	e.stringField(4, n.OpType)
	for i := range n.Attributes {
		attr := &n.Attributes[i]
		e.messageField(5, func(sub *encoder) { sub.attributeProto(attr) })
	}
	e.stringField(6, n.DocString)
	e.stringField(7, n.Domain)
}

func (e *encoder) tensorProto(t *TensorProto) {
	e.packedVarints(1, t.Dims)
	e.varintField(2, int64(t.DataType))
	e.packedFloats(4, t.FloatData)
	e.packedInt32s(5, t.Int32Data)
	e.packedVarints(7, t.Int64Data)
	e.stringField(8, t.Name)
	e.bytesField(9, t.RawData)
	e.stringField(12, t.DocString)
	for i := range t.ExternalData {
		entry := t.ExternalData[i]
		e.messageField(13, func(sub *encoder) { sub.stringStringEntry(&entry) })
	}
	e.varintField(14, int64(t.DataLocation))
}

func (e *encoder) valueInfoProto(vi *ValueInfoProto) {
	e.stringField(1, vi.Name)
	if vi.Type != nil {
		e.messageField(2, func(sub *encoder) { sub.typeProto(vi.Type) })
	}
	e.stringField(3, vi.DocString)
}

func (e *encoder) typeProto(tp *TypeProto) {
	if tp.TensorType != nil {
		e.messageField(1, func(sub *encoder) { sub.tensorTypeProto(tp.TensorType) })
	}
}

func (e *encoder) tensorTypeProto(tt *TensorTypeProto) {
	e.varintField(1, int64(tt.ElemType))
	if tt.Shape != nil {
		e.messageField(2, func(sub *encoder) { sub.tensorShapeProto(tt.Shape) })
	}
}

func (e *encoder) tensorShapeProto(ts *TensorShapeProto) {
	for i := range ts.Dims {
		dim := ts.Dims[i]
		e.messageField(1, func(sub *encoder) {
			sub.varintField(1, dim.DimValue)
			sub.stringField(2, dim.DimParam)
		})
	}
}

func (e *encoder) attributeProto(a *AttributeProto) {
	e.stringField(1, a.Name)
	e.floatField(2, a.F)
	e.varintField(3, a.I)
	e.bytesField(4, a.S)
	if a.T != nil {
		e.messageField(5, func(sub *encoder) { sub.tensorProto(a.T) })
	}
	e.packedFloats(7, a.Floats)
	e.packedVarints(8, a.Ints)
	for _, s := range a.Strings {
		e.bytesField(9, s)
	}
	e.stringField(13, a.DocString)
	e.varintField(20, int64(a.Type))
}

func (e *encoder) operatorSetID(o *OperatorSetID) {
	e.stringField(1, o.Domain)
	e.varintField(2, o.Version)
}

func (e *encoder) stringStringEntry(s *StringStringEntry) {
	e.stringField(1, s.Key)
	e.stringField(2, s.Value)
}
