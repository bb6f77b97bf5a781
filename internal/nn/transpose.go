package nn

import (
	"fmt"

	"github.com/edgeface-ml/edgeface/internal/onnx"
	"github.com/edgeface-ml/edgeface/internal/tensor"
)

// Permute reorders tensor axes. The block interiors run channels-last, so
// the network permutes NCHW to NHWC around them and back.
type Permute struct {
	Perm []int64
}

// NewPermute creates an axis permutation.
func NewPermute(perm ...int64) *Permute {
	return &Permute{Perm: perm}
}

// Trace emits a Transpose node.
func (p *Permute) Trace(tr *Tracer, input Value) (Value, error) {
	if len(p.Perm) != len(input.Shape) {
		return Value{}, fmt.Errorf("permute: perm %v does not match input rank %d",
			p.Perm, len(input.Shape))
	}
	outShape := make(tensor.Shape, len(input.Shape))
	for i, axis := range p.Perm {
		if axis < 0 || int(axis) >= len(input.Shape) {
			return Value{}, fmt.Errorf("permute: axis %d out of range for shape %s", axis, input.Shape)
		}
		outShape[i] = input.Shape[axis]
	}
	out := tr.Node("Transpose", []string{input.Name},
		[]onnx.AttributeProto{AttrInts("perm", p.Perm...)},
		outShape)
	return out, nil
}

// StateDict is empty; permutation has no parameters.
func (p *Permute) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict accepts only an empty dict.
func (p *Permute) LoadStateDict(params map[string]*tensor.RawTensor) error {
	return loadParams(params, nil)
}
