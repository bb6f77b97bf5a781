package nn

import (
	"fmt"

	"github.com/edgeface-ml/edgeface/internal/tensor"
)

// LowRankLinear factors a fully connected layer into two thin ones,
// in -> rank -> out, cutting the parameter count when rank is well below
// min(in, out). Only the second stage carries a bias, matching how the
// factorization is trained.
type LowRankLinear struct {
	InFeatures  int
	OutFeatures int
	Rank        int

	fc1 *Linear
	fc2 *Linear
}

// RankFor computes the factorization rank for a ratio gamma in (0, 1]:
// half of gamma times the smaller dimension, floored, with a minimum of 1.
func RankFor(inFeatures, outFeatures int, gamma float64) int {
	m := inFeatures
	if outFeatures < m {
		m = outFeatures
	}
	rank := int(gamma * float64(m) / 2)
	if rank < 1 {
		rank = 1
	}
	return rank
}

// NewLowRankLinear creates a factored layer with the given rank.
func NewLowRankLinear(inFeatures, outFeatures, rank int) (*LowRankLinear, error) {
	if rank < 1 {
		return nil, fmt.Errorf("lowrank: rank must be >= 1, got %d", rank)
	}
	fc1, err := NewLinearNoBias(inFeatures, rank)
	if err != nil {
		return nil, err
	}
	fc2, err := NewLinear(rank, outFeatures)
	if err != nil {
		return nil, err
	}
	return &LowRankLinear{
		InFeatures:  inFeatures,
		OutFeatures: outFeatures,
		Rank:        rank,
		fc1:         fc1,
		fc2:         fc2,
	}, nil
}

// Trace emits the two stages back to back.
func (l *LowRankLinear) Trace(tr *Tracer, input Value) (Value, error) {
	tr.Push("fc1")
	mid, err := l.fc1.Trace(tr, input)
	tr.Pop()
	if err != nil {
		return Value{}, err
	}
	tr.Push("fc2")
	out, err := l.fc2.Trace(tr, mid)
	tr.Pop()
	if err != nil {
		return Value{}, err
	}
	return out, nil
}

// StateDict exposes both stages under fc1./fc2. prefixes. The first stage
// is bias-free, so its bias entry is omitted.
func (l *LowRankLinear) StateDict() map[string]*tensor.RawTensor {
	out := prefixed("fc1", l.fc1.StateDict())
	for k, v := range prefixed("fc2", l.fc2.StateDict()) {
		out[k] = v
	}
	return out
}

// LoadStateDict replaces both stages' parameters.
func (l *LowRankLinear) LoadStateDict(params map[string]*tensor.RawTensor) error {
	if err := l.fc1.LoadStateDict(subDict("fc1", params)); err != nil {
		return fmt.Errorf("fc1: %w", err)
	}
	if err := l.fc2.LoadStateDict(subDict("fc2", params)); err != nil {
		return fmt.Errorf("fc2: %w", err)
	}
	return nil
}
