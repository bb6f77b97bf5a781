package nn

import (
	"fmt"

	"github.com/edgeface-ml/edgeface/internal/onnx"
	"github.com/edgeface-ml/edgeface/internal/tensor"
)

// Linear is a fully connected layer. The weight is stored [out, in], the
// layout training checkpoints use.
//
// On 2D input it traces to a single Gemm with the weight transposed in
// place via transB. On higher-rank input (the channels-last block interior)
// Gemm does not apply, so it traces to MatMul against a pre-transposed
// copy of the weight plus an Add for the bias.
type Linear struct {
	InFeatures  int
	OutFeatures int

	weight *Parameter
	bias   *Parameter
}

// NewLinear creates a fully connected layer with zero-initialized weights.
func NewLinear(inFeatures, outFeatures int) (*Linear, error) {
	l, err := NewLinearNoBias(inFeatures, outFeatures)
	if err != nil {
		return nil, err
	}
	if l.bias, err = NewParameter("bias", tensor.Shape{outFeatures}); err != nil {
		return nil, err
	}
	return l, nil
}

// NewLinearNoBias creates a fully connected layer without a bias term.
func NewLinearNoBias(inFeatures, outFeatures int) (*Linear, error) {
	weight, err := NewParameter("weight", tensor.Shape{outFeatures, inFeatures})
	if err != nil {
		return nil, err
	}
	return &Linear{
		InFeatures:  inFeatures,
		OutFeatures: outFeatures,
		weight:      weight,
	}, nil
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *Parameter { return l.weight }

// Bias returns the bias parameter.
func (l *Linear) Bias() *Parameter { return l.bias }

// Trace emits the layer as Gemm (2D input) or MatMul+Add (higher rank).
func (l *Linear) Trace(tr *Tracer, input Value) (Value, error) {
	last := len(input.Shape) - 1
	if last < 1 {
		return Value{}, fmt.Errorf("linear: want input rank >= 2, got shape %s", input.Shape)
	}
	if input.Shape[last] != l.InFeatures {
		return Value{}, fmt.Errorf("linear: input has %d features, want %d",
			input.Shape[last], l.InFeatures)
	}
	outShape := input.Shape.Clone()
	outShape[last] = l.OutFeatures

	if len(input.Shape) == 2 {
		w := tr.Param("weight", l.weight.Data)
		inputs := []string{input.Name, w}
		if l.bias != nil {
			inputs = append(inputs, tr.Param("bias", l.bias.Data))
		}
		out := tr.Node("Gemm",
			inputs,
			[]onnx.AttributeProto{
				AttrFloat("alpha", 1),
				AttrFloat("beta", 1),
				AttrInt("transB", 1),
			},
			outShape)
		return out, nil
	}

	wt, err := l.transposedWeight()
	if err != nil {
		return Value{}, err
	}
	w := tr.Param("weight_t", wt)
	out := tr.Node("MatMul", []string{input.Name, w}, nil, outShape)
	if l.bias != nil {
		b := tr.Param("bias", l.bias.Data)
		out = tr.Node("Add", []string{out.Name, b}, nil, outShape)
	}
	return out, nil
}

// transposedWeight returns the weight laid out [in, out] for MatMul.
func (l *Linear) transposedWeight() (*tensor.RawTensor, error) {
	src := l.weight.Data.AsFloat32()
	dst := make([]float32, len(src))
	for o := 0; o < l.OutFeatures; o++ {
		for i := 0; i < l.InFeatures; i++ {
			dst[i*l.OutFeatures+o] = src[o*l.InFeatures+i]
		}
	}
	return tensor.FromFloat32(dst, tensor.Shape{l.InFeatures, l.OutFeatures})
}

// StateDict exposes the weight and, when present, the bias.
func (l *Linear) StateDict() map[string]*tensor.RawTensor {
	sd := map[string]*tensor.RawTensor{"weight": l.weight.Data}
	if l.bias != nil {
		sd["bias"] = l.bias.Data
	}
	return sd
}

// LoadStateDict replaces the weight and, when present, the bias.
func (l *Linear) LoadStateDict(params map[string]*tensor.RawTensor) error {
	targets := map[string]*Parameter{"weight": l.weight}
	if l.bias != nil {
		targets["bias"] = l.bias
	}
	return loadParams(params, targets)
}
