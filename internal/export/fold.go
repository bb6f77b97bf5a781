package export

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/edgeface-ml/edgeface/internal/onnx"
)

// FoldBatchNorm folds every BatchNormalization node into the convolution
// that feeds it, rewriting the conv weight and bias in place:
//
//	W'[c] = W[c] * scale[c] / sqrt(var[c] + eps)
//	b'[c] = (b[c] - mean[c]) * scale[c] / sqrt(var[c] + eps) + shift[c]
//
// A normalization is folded only when its input comes straight from a Conv
// whose output feeds nothing else. Initializers left unreferenced by the
// rewrite are dropped.
func FoldBatchNorm(g *onnx.GraphProto) error {
	producer := make(map[string]int)
	consumers := make(map[string]int)
	for i, n := range g.Nodes {
		for _, out := range n.Outputs {
			producer[out] = i
		}
		for _, in := range n.Inputs {
			consumers[in]++
		}
	}
	inits := make(map[string]*onnx.TensorProto)
	for i := range g.Initializers {
		inits[g.Initializers[i].Name] = &g.Initializers[i]
	}

	removed := make(map[int]bool)
	for i := range g.Nodes {
		bn := &g.Nodes[i]
		if bn.OpType != "BatchNormalization" || len(bn.Inputs) != 5 {
			continue
		}
		src, ok := producer[bn.Inputs[0]]
		if !ok || g.Nodes[src].OpType != "Conv" || removed[src] {
			continue
		}
		if consumers[bn.Inputs[0]] != 1 {
			continue
		}
		conv := &g.Nodes[src]
		if err := foldInto(conv, bn, inits); err != nil {
			return fmt.Errorf("folding %s into %s: %w", bn.Name, conv.Name, err)
		}
		conv.Outputs[0] = bn.Outputs[0]
		removed[i] = true
	}
	if len(removed) == 0 {
		return nil
	}

	nodes := g.Nodes[:0]
	for i := range g.Nodes {
		if !removed[i] {
			nodes = append(nodes, g.Nodes[i])
		}
	}
	g.Nodes = nodes

	referenced := make(map[string]bool)
	for _, n := range g.Nodes {
		for _, in := range n.Inputs {
			referenced[in] = true
		}
	}
	kept := g.Initializers[:0]
	for i := range g.Initializers {
		if referenced[g.Initializers[i].Name] {
			kept = append(kept, g.Initializers[i])
		}
	}
	g.Initializers = kept
	return nil
}

func foldInto(conv, bn *onnx.NodeProto, inits map[string]*onnx.TensorProto) error {
	if len(conv.Inputs) < 3 {
		return fmt.Errorf("conv has no bias input")
	}
	weight, err := initFloats(inits, conv.Inputs[1])
	if err != nil {
		return err
	}
	bias, err := initFloats(inits, conv.Inputs[2])
	if err != nil {
		return err
	}
	scale, err := initFloats(inits, bn.Inputs[1])
	if err != nil {
		return err
	}
	shift, err := initFloats(inits, bn.Inputs[2])
	if err != nil {
		return err
	}
	mean, err := initFloats(inits, bn.Inputs[3])
	if err != nil {
		return err
	}
	variance, err := initFloats(inits, bn.Inputs[4])
	if err != nil {
		return err
	}

	eps := float32(1e-5)
	for _, a := range bn.Attributes {
		if a.Name == "epsilon" {
			eps = a.F
		}
	}

	channels := len(bias)
	if len(scale) != channels || len(shift) != channels || len(mean) != channels || len(variance) != channels {
		return fmt.Errorf("channel count mismatch: bias %d, scale %d", channels, len(scale))
	}
	if channels == 0 || len(weight)%channels != 0 {
		return fmt.Errorf("weight size %d not divisible by %d channels", len(weight), channels)
	}

	perChannel := len(weight) / channels
	for c := 0; c < channels; c++ {
		f := scale[c] / float32(math.Sqrt(float64(variance[c])+float64(eps)))
		for k := 0; k < perChannel; k++ {
			weight[c*perChannel+k] *= f
		}
		bias[c] = (bias[c]-mean[c])*f + shift[c]
	}

	putFloats(inits[conv.Inputs[1]], weight)
	putFloats(inits[conv.Inputs[2]], bias)
	return nil
}

func initFloats(inits map[string]*onnx.TensorProto, name string) ([]float32, error) {
	t, ok := inits[name]
	if !ok {
		return nil, fmt.Errorf("initializer %q not found", name)
	}
	if t.DataType != onnx.TensorFloat {
		return nil, fmt.Errorf("initializer %q is not float32", name)
	}
	if len(t.RawData)%4 != 0 {
		return nil, fmt.Errorf("initializer %q has odd byte length %d", name, len(t.RawData))
	}
	out := make([]float32, len(t.RawData)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.RawData[i*4:]))
	}
	return out, nil
}

func putFloats(t *onnx.TensorProto, vs []float32) {
	data := make([]byte, len(vs)*4)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	t.RawData = data
}
