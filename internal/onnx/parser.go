package onnx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// Protobuf wire types.
const (
	wireVarint = 0
	wire64Bit  = 1
	wireBytes  = 2
	wire32Bit  = 5
)

// ParseFile parses an ONNX model from a file.
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes.
func Parse(data []byte) (*ModelProto, error) {
	p := &parser{data: data}
	m := &ModelProto{}
	if err := p.modelProto(m); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return m, nil
}

// parser implements a minimal protobuf wire format decoder.
type parser struct {
	data []byte
	pos  int
}

// sub returns a parser over the next length-delimited payload.
func (p *parser) sub() (*parser, error) {
	data, err := p.bytes()
	if err != nil {
		return nil, err
	}
	return &parser{data: data}, nil
}

func (p *parser) modelProto(m *ModelProto) error {
	return p.fields(func(fieldNum, wireType int) error {
		switch fieldNum {
		case 1:
			return p.varintInto(&m.IRVersion)
		case 2:
			return p.stringInto(&m.ProducerName)
		case 3:
			return p.stringInto(&m.ProducerVersion)
		case 4:
			return p.stringInto(&m.Domain)
		case 5:
			return p.varintInto(&m.ModelVersion)
		case 6:
			return p.stringInto(&m.DocString)
		case 7:
			sub, err := p.sub()
			if err != nil {
				return err
			}
			m.Graph = &GraphProto{}
			return sub.graphProto(m.Graph)
		case 8:
			sub, err := p.sub()
			if err != nil {
				return err
			}
			var opset OperatorSetID
			if err := sub.operatorSetID(&opset); err != nil {
				return err
			}
			m.OpsetImport = append(m.OpsetImport, opset)
			return nil
		case 14:
			sub, err := p.sub()
			if err != nil {
				return err
			}
			var entry StringStringEntry
			if err := sub.stringStringEntry(&entry); err != nil {
				return err
			}
			m.MetadataProps = append(m.MetadataProps, entry)
			return nil
		default:
			return p.skip(wireType)
		}
	})
}

func (p *parser) graphProto(g *GraphProto) error {
	return p.fields(func(fieldNum, wireType int) error {
		switch fieldNum {
		case 1:
			sub, err := p.sub()
			if err != nil {
				return err
			}
			var node NodeProto
			if err := sub.nodeProto(&node); err != nil {
				return err
			}
			g.Nodes = append(g.Nodes, node)
			return nil
		case 2:
			return p.stringInto(&g.Name)
		case 5:
			sub, err := p.sub()
			if err != nil {
				return err
			}
			var t TensorProto
			if err := sub.tensorProto(&t); err != nil {
				return err
			}
			g.Initializers = append(g.Initializers, t)
			return nil
		case 10:
			return p.stringInto(&g.DocString)
		case 11:
			return p.valueInfoInto(&g.Inputs)
		case 12:
			return p.valueInfoInto(&g.Outputs)
		case 13:
			return p.valueInfoInto(&g.ValueInfo)
		default:
			return p.skip(wireType)
		}
	})
}

func (p *parser) valueInfoInto(dst *[]ValueInfoProto) error {
	sub, err := p.sub()
	if err != nil {
		return err
	}
	var vi ValueInfoProto
	if err := sub.valueInfoProto(&vi); err != nil {
		return err
	}
	*dst = append(*dst, vi)
	return nil
}

func (p *parser) nodeProto(n *NodeProto) error {
	return p.fields(func(fieldNum, wireType int) error {
		switch fieldNum {
		case 1:
			data, err := p.bytes()
			if err != nil {
				return err
			}
			n.Inputs = append(n.Inputs, string(data))
			return nil
		case 2:
			data, err := p.bytes()
			if err != nil {
				return err
			}
			n.Outputs = append(n.Outputs, string(data))
			return nil
		case 3:
			return p.stringInto(&n.Name)
		case 4:
			return p.stringInto(&n.OpType)
		case 5:
			sub, err := p.sub()
			if err != nil {
				return err
			}
			var attr AttributeProto
			if err := sub.attributeProto(&attr); err != nil {
				return err
			}
			n.Attributes = append(n.Attributes, attr)
			return nil
		case 6:
			return p.stringInto(&n.DocString)
		case 7:
			return p.stringInto(&n.Domain)
		default:
			return p.skip(wireType)
		}
	})
}

func (p *parser) tensorProto(t *TensorProto) error {
	return p.fields(func(fieldNum, wireType int) error {
		switch fieldNum {
		case 1:
			return p.repeatedVarints(wireType, &t.Dims)
		case 2:
			return p.int32Into(&t.DataType)
		case 4:
			data, err := p.bytes()
			if err != nil {
				return err
			}
			for i := 0; i+4 <= len(data); i += 4 {
				bits := binary.LittleEndian.Uint32(data[i:])
				t.FloatData = append(t.FloatData, math.Float32frombits(bits))
			}
			return nil
		case 5:
			var vs []int64
			if err := p.repeatedVarints(wireType, &vs); err != nil {
				return err
			}
			for _, v := range vs {
				t.Int32Data = append(t.Int32Data, int32(v))
			}
			return nil
		case 7:
			return p.repeatedVarints(wireType, &t.Int64Data)
		case 8:
			return p.stringInto(&t.Name)
		case 9:
			data, err := p.bytes()
			if err != nil {
				return err
			}
			t.RawData = data
			return nil
		case 12:
			return p.stringInto(&t.DocString)
		case 13:
			sub, err := p.sub()
			if err != nil {
				return err
			}
			var entry StringStringEntry
			if err := sub.stringStringEntry(&entry); err != nil {
				return err
			}
			t.ExternalData = append(t.ExternalData, entry)
			return nil
		case 14:
			return p.int32Into(&t.DataLocation)
		default:
			return p.skip(wireType)
		}
	})
}

func (p *parser) valueInfoProto(vi *ValueInfoProto) error {
	return p.fields(func(fieldNum, wireType int) error {
		switch fieldNum {
		case 1:
			return p.stringInto(&vi.Name)
		case 2:
			sub, err := p.sub()
			if err != nil {
				return err
			}
			vi.Type = &TypeProto{}
			return sub.typeProto(vi.Type)
		case 3:
			return p.stringInto(&vi.DocString)
		default:
			return p.skip(wireType)
		}
	})
}

func (p *parser) typeProto(tp *TypeProto) error {
	return p.fields(func(fieldNum, wireType int) error {
		switch fieldNum {
		case 1:
			sub, err := p.sub()
			if err != nil {
				return err
			}
			tp.TensorType = &TensorTypeProto{}
			return sub.tensorTypeProto(tp.TensorType)
		default:
			return p.skip(wireType)
		}
	})
}

func (p *parser) tensorTypeProto(tt *TensorTypeProto) error {
	return p.fields(func(fieldNum, wireType int) error {
		switch fieldNum {
		case 1:
			return p.int32Into(&tt.ElemType)
		case 2:
			sub, err := p.sub()
			if err != nil {
				return err
			}
			tt.Shape = &TensorShapeProto{}
			return sub.tensorShapeProto(tt.Shape)
		default:
			return p.skip(wireType)
		}
	})
}

func (p *parser) tensorShapeProto(ts *TensorShapeProto) error {
	return p.fields(func(fieldNum, wireType int) error {
		switch fieldNum {
		case 1:
			sub, err := p.sub()
			if err != nil {
				return err
			}
			var dim DimensionProto
			if err := sub.fields(func(f, w int) error {
				switch f {
				case 1:
					return sub.varintInto(&dim.DimValue)
				case 2:
					return sub.stringInto(&dim.DimParam)
				default:
					return sub.skip(w)
				}
			}); err != nil {
				return err
			}
			ts.Dims = append(ts.Dims, dim)
			return nil
		default:
			return p.skip(wireType)
		}
	})
}

func (p *parser) attributeProto(a *AttributeProto) error {
	return p.fields(func(fieldNum, wireType int) error {
		switch fieldNum {
		case 1:
			return p.stringInto(&a.Name)
		case 2:
			f, err := p.float32()
			if err != nil {
				return err
			}
			a.F = f
			return nil
		case 3:
			return p.varintInto(&a.I)
		case 4:
			data, err := p.bytes()
			if err != nil {
				return err
			}
			a.S = data
			return nil
		case 5:
			sub, err := p.sub()
			if err != nil {
				return err
			}
			a.T = &TensorProto{}
			return sub.tensorProto(a.T)
		case 7:
			data, err := p.bytes()
			if err != nil {
				return err
			}
			for i := 0; i+4 <= len(data); i += 4 {
				bits := binary.LittleEndian.Uint32(data[i:])
				a.Floats = append(a.Floats, math.Float32frombits(bits))
			}
			return nil
		case 8:
			return p.repeatedVarints(wireType, &a.Ints)
		case 9:
			data, err := p.bytes()
			if err != nil {
				return err
			}
			a.Strings = append(a.Strings, data)
			return nil
		case 13:
			return p.stringInto(&a.DocString)
		case 20:
			return p.int32Into(&a.Type)
		default:
			return p.skip(wireType)
		}
	})
}

func (p *parser) operatorSetID(o *OperatorSetID) error {
	return p.fields(func(fieldNum, wireType int) error {
		switch fieldNum {
		case 1:
			return p.stringInto(&o.Domain)
		case 2:
			return p.varintInto(&o.Version)
		default:
			return p.skip(wireType)
		}
	})
}

func (p *parser) stringStringEntry(s *StringStringEntry) error {
	return p.fields(func(fieldNum, wireType int) error {
		switch fieldNum {
		case 1:
			return p.stringInto(&s.Key)
		case 2:
			return p.stringInto(&s.Value)
		default:
			return p.skip(wireType)
		}
	})
}

// fields iterates over all fields in the buffer, calling handle per field.
func (p *parser) fields(handle func(fieldNum, wireType int) error) error {
	for p.pos < len(p.data) {
		tag, err := p.varint()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := handle(int(tag>>3), int(tag&0x7)); err != nil {
			return err
		}
	}
	return nil
}

// Wire primitives.

func (p *parser) varint() (int64, error) {
	var result uint64
	var shift uint
	for {
		if p.pos >= len(p.data) {
			return 0, io.EOF
		}
		b := p.data[p.pos]
		p.pos++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= 64 {
			return 0, errors.New("varint overflow")
		}
	}
	return int64(result), nil
}

func (p *parser) varintInto(dst *int64) error {
	v, err := p.varint()
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func (p *parser) int32Into(dst *int32) error {
	v, err := p.varint()
	if err != nil {
		return err
	}
	*dst = int32(v)
	return nil
}

func (p *parser) bytes() ([]byte, error) {
	length, err := p.varint()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, errors.New("negative length")
	}
	end := p.pos + int(length)
	if end > len(p.data) {
		return nil, io.ErrUnexpectedEOF
	}
	data := p.data[p.pos:end]
	p.pos = end
	return data, nil
}

func (p *parser) stringInto(dst *string) error {
	data, err := p.bytes()
	if err != nil {
		return err
	}
	*dst = string(data)
	return nil
}

func (p *parser) float32() (float32, error) {
	if p.pos+4 > len(p.data) {
		return 0, io.ErrUnexpectedEOF
	}
	bits := binary.LittleEndian.Uint32(p.data[p.pos:])
	p.pos += 4
	return math.Float32frombits(bits), nil
}

// repeatedVarints handles both packed and unpacked repeated integers.
func (p *parser) repeatedVarints(wireType int, dst *[]int64) error {
	if wireType == wireBytes {
		data, err := p.bytes()
		if err != nil {
			return err
		}
		sub := &parser{data: data}
		for sub.pos < len(sub.data) {
			v, err := sub.varint()
			if err != nil {
				return err
			}
			*dst = append(*dst, v)
		}
		return nil
	}
	v, err := p.varint()
	if err != nil {
		return err
	}
	*dst = append(*dst, v)
	return nil
}

func (p *parser) skip(wireType int) error {
	switch wireType {
	case wireVarint:
		_, err := p.varint()
		return err
	case wire64Bit:
		if p.pos+8 > len(p.data) {
			return io.ErrUnexpectedEOF
		}
		p.pos += 8
		return nil
	case wireBytes:
		_, err := p.bytes()
		return err
	case wire32Bit:
		if p.pos+4 > len(p.data) {
			return io.ErrUnexpectedEOF
		}
		p.pos += 4
		return nil
	default:
		return fmt.Errorf("unknown wire type: %d", wireType)
	}
}
