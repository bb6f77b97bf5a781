package nn

import (
	"fmt"

	"github.com/edgeface-ml/edgeface/internal/onnx"
	"github.com/edgeface-ml/edgeface/internal/tensor"
)

// LayerNorm normalizes over the last axis with a learned affine transform.
//
// Opset 14 has no LayerNormalization operator (it arrives in 17), so the
// layer traces to the primitive chain exporters emit at this opset:
// ReduceMean, Sub, Mul, ReduceMean, Add(eps), Sqrt, Div, then the affine
// Mul and Add.
type LayerNorm struct {
	NormalizedShape int
	Eps             float32

	weight *Parameter
	bias   *Parameter
}

// NewLayerNorm creates a layer norm over the trailing dimension.
func NewLayerNorm(normalizedShape int, eps float32) (*LayerNorm, error) {
	ln := &LayerNorm{NormalizedShape: normalizedShape, Eps: eps}
	var err error
	if ln.weight, err = NewParameter("weight", tensor.Shape{normalizedShape}); err != nil {
		return nil, err
	}
	if ln.bias, err = NewParameter("bias", tensor.Shape{normalizedShape}); err != nil {
		return nil, err
	}
	scale := ln.weight.Data.AsFloat32()
	for i := range scale {
		scale[i] = 1
	}
	return ln, nil
}

// Trace emits the decomposed normalization chain. Shape is unchanged.
func (ln *LayerNorm) Trace(tr *Tracer, input Value) (Value, error) {
	last := len(input.Shape) - 1
	if last < 0 || input.Shape[last] != ln.NormalizedShape {
		return Value{}, fmt.Errorf("layernorm: input shape %s does not end in %d",
			input.Shape, ln.NormalizedShape)
	}

	reducedShape := input.Shape.Clone()
	reducedShape[last] = 1
	meanAttrs := []onnx.AttributeProto{AttrInts("axes", -1), AttrInt("keepdims", 1)}

	mean := tr.Node("ReduceMean", []string{input.Name}, meanAttrs, reducedShape)
	diff := tr.Node("Sub", []string{input.Name, mean.Name}, nil, input.Shape)
	sq := tr.Node("Mul", []string{diff.Name, diff.Name}, nil, input.Shape)
	variance := tr.Node("ReduceMean", []string{sq.Name}, meanAttrs, reducedShape)
	eps := tr.Scalar("eps", ln.Eps)
	shifted := tr.Node("Add", []string{variance.Name, eps}, nil, reducedShape)
	std := tr.Node("Sqrt", []string{shifted.Name}, nil, reducedShape)
	normed := tr.Node("Div", []string{diff.Name, std.Name}, nil, input.Shape)

	w := tr.Param("weight", ln.weight.Data)
	b := tr.Param("bias", ln.bias.Data)
	scaled := tr.Node("Mul", []string{normed.Name, w}, nil, input.Shape)
	out := tr.Node("Add", []string{scaled.Name, b}, nil, input.Shape)
	return out, nil
}

// StateDict exposes the affine parameters.
func (ln *LayerNorm) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight": ln.weight.Data,
		"bias":   ln.bias.Data,
	}
}

// LoadStateDict replaces the affine parameters.
func (ln *LayerNorm) LoadStateDict(params map[string]*tensor.RawTensor) error {
	return loadParams(params, map[string]*Parameter{
		"weight": ln.weight,
		"bias":   ln.bias,
	})
}
