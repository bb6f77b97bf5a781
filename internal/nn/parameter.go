package nn

import (
	"fmt"

	"github.com/edgeface-ml/edgeface/internal/tensor"
)

// Parameter is a named weight tensor held by a module.
type Parameter struct {
	Name string
	Data *tensor.RawTensor
}

// NewParameter creates a zero-initialized float32 parameter.
func NewParameter(name string, shape tensor.Shape) (*Parameter, error) {
	raw, err := tensor.NewRaw(shape, tensor.Float32)
	if err != nil {
		return nil, fmt.Errorf("parameter %q: %w", name, err)
	}
	return &Parameter{Name: name, Data: raw}, nil
}

// Set replaces the parameter's data, validating shape and dtype against
// the current tensor.
func (p *Parameter) Set(raw *tensor.RawTensor) error {
	if raw == nil {
		return fmt.Errorf("parameter %q: nil tensor", p.Name)
	}
	if !raw.Shape().Equal(p.Data.Shape()) {
		return fmt.Errorf("parameter %q: shape mismatch: have %s, want %s",
			p.Name, raw.Shape(), p.Data.Shape())
	}
	if raw.DType() != p.Data.DType() {
		return fmt.Errorf("parameter %q: dtype mismatch: have %s, want %s",
			p.Name, raw.DType(), p.Data.DType())
	}
	p.Data = raw
	return nil
}

// loadParams assigns params into the named targets, requiring every
// target to be present. Extra keys in params are an error so that
// checkpoint and model drift is caught at load time.
func loadParams(params map[string]*tensor.RawTensor, targets map[string]*Parameter) error {
	for name, p := range targets {
		raw, ok := params[name]
		if !ok {
			return fmt.Errorf("missing parameter %q", name)
		}
		if err := p.Set(raw); err != nil {
			return err
		}
	}
	for name := range params {
		if _, ok := targets[name]; !ok {
			return fmt.Errorf("unexpected parameter %q", name)
		}
	}
	return nil
}
