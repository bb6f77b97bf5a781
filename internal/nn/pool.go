package nn

import (
	"fmt"

	"github.com/edgeface-ml/edgeface/internal/onnx"
	"github.com/edgeface-ml/edgeface/internal/tensor"
)

// GlobalAvgPool averages NCHW input over its spatial axes, keeping the
// channel axis. Output shape is [N, C, 1, 1].
type GlobalAvgPool struct{}

// NewGlobalAvgPool creates the pooling layer.
func NewGlobalAvgPool() *GlobalAvgPool { return &GlobalAvgPool{} }

// Trace emits a GlobalAveragePool node.
func (p *GlobalAvgPool) Trace(tr *Tracer, input Value) (Value, error) {
	if len(input.Shape) != 4 {
		return Value{}, fmt.Errorf("globalavgpool: want 4D NCHW input, got shape %s", input.Shape)
	}
	out := tr.Node("GlobalAveragePool", []string{input.Name}, nil,
		tensor.Shape{input.Shape[0], input.Shape[1], 1, 1})
	return out, nil
}

// StateDict is empty; pooling has no parameters.
func (p *GlobalAvgPool) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict accepts only an empty dict.
func (p *GlobalAvgPool) LoadStateDict(params map[string]*tensor.RawTensor) error {
	return loadParams(params, nil)
}

// Flatten collapses everything after the first axis into one dimension.
type Flatten struct{}

// NewFlatten creates the flatten layer.
func NewFlatten() *Flatten { return &Flatten{} }

// Trace emits a Flatten node with axis 1.
func (f *Flatten) Trace(tr *Tracer, input Value) (Value, error) {
	if len(input.Shape) < 2 {
		return Value{}, fmt.Errorf("flatten: want input rank >= 2, got shape %s", input.Shape)
	}
	rest := 1
	for _, d := range input.Shape[1:] {
		rest *= d
	}
	out := tr.Node("Flatten", []string{input.Name},
		[]onnx.AttributeProto{AttrInt("axis", 1)},
		tensor.Shape{input.Shape[0], rest})
	return out, nil
}

// StateDict is empty; flatten has no parameters.
func (f *Flatten) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict accepts only an empty dict.
func (f *Flatten) LoadStateDict(params map[string]*tensor.RawTensor) error {
	return loadParams(params, nil)
}
