package nn

import (
	"fmt"

	"github.com/edgeface-ml/edgeface/internal/tensor"
)

// Sequential chains named child modules, tracing them in insertion order.
// Each child's parameters appear in the state dict under its name.
type Sequential struct {
	names    []string
	children map[string]Module
}

// NewSequential creates an empty container.
func NewSequential() *Sequential {
	return &Sequential{children: make(map[string]Module)}
}

// Add appends a named child. Names must be unique within the container.
func (s *Sequential) Add(name string, m Module) *Sequential {
	if _, ok := s.children[name]; ok {
		panic(fmt.Sprintf("nn: duplicate child %q", name))
	}
	s.names = append(s.names, name)
	s.children[name] = m
	return s
}

// Child returns the named child module, or nil.
func (s *Sequential) Child(name string) Module {
	return s.children[name]
}

// Len returns the number of children.
func (s *Sequential) Len() int {
	return len(s.names)
}

// Trace runs the input through every child in order.
func (s *Sequential) Trace(tr *Tracer, input Value) (Value, error) {
	v := input
	for _, name := range s.names {
		tr.Push(name)
		out, err := s.children[name].Trace(tr, v)
		tr.Pop()
		if err != nil {
			return Value{}, fmt.Errorf("%s: %w", name, err)
		}
		v = out
	}
	return v, nil
}

// StateDict merges the children's parameters under their names.
func (s *Sequential) StateDict() map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	for _, name := range s.names {
		for k, v := range prefixed(name, s.children[name].StateDict()) {
			out[k] = v
		}
	}
	return out
}

// LoadStateDict distributes parameters to the children by prefix.
// Keys that match no child are an error.
func (s *Sequential) LoadStateDict(params map[string]*tensor.RawTensor) error {
	claimed := 0
	for _, name := range s.names {
		sub := subDict(name, params)
		if err := s.children[name].LoadStateDict(sub); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		claimed += len(sub)
	}
	if claimed != len(params) {
		for k := range params {
			if !s.owns(k) {
				return fmt.Errorf("unexpected parameter %q", k)
			}
		}
	}
	return nil
}

func (s *Sequential) owns(key string) bool {
	for _, name := range s.names {
		p := name + "."
		if len(key) > len(p) && key[:len(p)] == p {
			return true
		}
	}
	return false
}
