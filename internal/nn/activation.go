package nn

import (
	"github.com/edgeface-ml/edgeface/internal/tensor"
)

// GELU is the Gaussian error linear unit. Opset 14 has no Gelu operator,
// so it traces to the exact erf form: x * 0.5 * (1 + erf(x / sqrt(2))).
type GELU struct{}

// NewGELU creates the activation.
func NewGELU() *GELU { return &GELU{} }

// Trace emits the erf decomposition. Shape is unchanged.
func (g *GELU) Trace(tr *Tracer, input Value) (Value, error) {
	sqrt2 := tr.Scalar("sqrt2", 1.4142135381698608)
	half := tr.Scalar("half", 0.5)
	one := tr.Scalar("one", 1)

	scaled := tr.Node("Div", []string{input.Name, sqrt2}, nil, input.Shape)
	erf := tr.Node("Erf", []string{scaled.Name}, nil, input.Shape)
	shifted := tr.Node("Add", []string{erf.Name, one}, nil, input.Shape)
	gated := tr.Node("Mul", []string{input.Name, shifted.Name}, nil, input.Shape)
	out := tr.Node("Mul", []string{gated.Name, half}, nil, input.Shape)
	return out, nil
}

// StateDict is empty; the activation has no parameters.
func (g *GELU) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict accepts only an empty dict.
func (g *GELU) LoadStateDict(params map[string]*tensor.RawTensor) error {
	return loadParams(params, nil)
}
