package nn

import (
	"github.com/edgeface-ml/edgeface/internal/tensor"
)

// Module is a unit of the network that can be traced into graph operations.
//
// Trace appends the module's ONNX nodes to the tracer and returns the
// symbolic output. StateDict exposes the module's parameters under their
// local names; LoadStateDict replaces them, validating shape and dtype.
type Module interface {
	Trace(tr *Tracer, input Value) (Value, error)
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(params map[string]*tensor.RawTensor) error
}

// prefixed returns sd's entries with "prefix." prepended to every key.
func prefixed(prefix string, sd map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor, len(sd))
	for k, v := range sd {
		out[prefix+"."+k] = v
	}
	return out
}

// subDict extracts the entries of sd under "prefix.", with the prefix
// stripped. Entries outside the prefix are ignored.
func subDict(prefix string, sd map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	p := prefix + "."
	for k, v := range sd {
		if len(k) > len(p) && k[:len(p)] == p {
			out[k[len(p):]] = v
		}
	}
	return out
}
