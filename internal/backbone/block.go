package backbone

import (
	"fmt"

	"github.com/edgeface-ml/edgeface/internal/nn"
	"github.com/edgeface-ml/edgeface/internal/tensor"
)

const (
	batchNormEps = 1e-5
	layerNormEps = 1e-6
	expansion    = 4
)

// convBlock is the residual unit of every stage: a 7x7 depthwise
// convolution, then a channels-last interior of layer norm, a pointwise
// expansion to 4x width, GELU, and a pointwise projection back, with the
// input added on at the end.
type convBlock struct {
	dim int

	dwconv   *nn.Conv2D
	toNHWC   *nn.Permute
	norm     *nn.LayerNorm
	pwconv1  nn.Module
	act      *nn.GELU
	pwconv2  nn.Module
	fromNHWC *nn.Permute
}

func newConvBlock(dim int, gamma float64) (*convBlock, error) {
	dwconv, err := nn.NewConv2D(dim, dim, 7, 1, 3, dim)
	if err != nil {
		return nil, err
	}
	norm, err := nn.NewLayerNorm(dim, layerNormEps)
	if err != nil {
		return nil, err
	}
	pwconv1, err := newPointwise(dim, expansion*dim, gamma)
	if err != nil {
		return nil, err
	}
	pwconv2, err := newPointwise(expansion*dim, dim, gamma)
	if err != nil {
		return nil, err
	}
	return &convBlock{
		dim:      dim,
		dwconv:   dwconv,
		toNHWC:   nn.NewPermute(0, 2, 3, 1),
		norm:     norm,
		pwconv1:  pwconv1,
		act:      nn.NewGELU(),
		pwconv2:  pwconv2,
		fromNHWC: nn.NewPermute(0, 3, 1, 2),
	}, nil
}

// newPointwise builds a dense layer, factored when gamma is set.
func newPointwise(in, out int, gamma float64) (nn.Module, error) {
	if gamma > 0 {
		return nn.NewLowRankLinear(in, out, nn.RankFor(in, out, gamma))
	}
	return nn.NewLinear(in, out)
}

func (b *convBlock) Trace(tr *nn.Tracer, input nn.Value) (nn.Value, error) {
	v := input
	for _, step := range []struct {
		name string
		mod  nn.Module
	}{
		{"dwconv", b.dwconv},
		{"", b.toNHWC},
		{"norm", b.norm},
		{"pwconv1", b.pwconv1},
		{"act", b.act},
		{"pwconv2", b.pwconv2},
		{"", b.fromNHWC},
	} {
		if step.name != "" {
			tr.Push(step.name)
		}
		out, err := step.mod.Trace(tr, v)
		if step.name != "" {
			tr.Pop()
		}
		if err != nil {
			if step.name != "" {
				return nn.Value{}, fmt.Errorf("%s: %w", step.name, err)
			}
			return nn.Value{}, err
		}
		v = out
	}
	return tr.Node("Add", []string{input.Name, v.Name}, nil, input.Shape), nil
}

func (b *convBlock) StateDict() map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	for name, mod := range b.paramChildren() {
		for k, v := range mod.StateDict() {
			out[name+"."+k] = v
		}
	}
	return out
}

func (b *convBlock) LoadStateDict(params map[string]*tensor.RawTensor) error {
	children := b.paramChildren()
	for name, mod := range children {
		sub := make(map[string]*tensor.RawTensor)
		p := name + "."
		for k, v := range params {
			if len(k) > len(p) && k[:len(p)] == p {
				sub[k[len(p):]] = v
			}
		}
		if err := mod.LoadStateDict(sub); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for k := range params {
		owned := false
		for name := range children {
			p := name + "."
			if len(k) > len(p) && k[:len(p)] == p {
				owned = true
				break
			}
		}
		if !owned {
			return fmt.Errorf("unexpected parameter %q", k)
		}
	}
	return nil
}

func (b *convBlock) paramChildren() map[string]nn.Module {
	return map[string]nn.Module{
		"dwconv":  b.dwconv,
		"norm":    b.norm,
		"pwconv1": b.pwconv1,
		"pwconv2": b.pwconv2,
	}
}
