package backbone

import (
	"fmt"

	"github.com/edgeface-ml/edgeface/internal/nn"
	"github.com/edgeface-ml/edgeface/internal/tensor"
)

// Network is the full embedding model: stem, four stages, head.
type Network struct {
	Name   string
	Config Config

	stem   *nn.Sequential
	stages []*stage
	head   *head
}

// stage groups a downsampling layer (absent on the first stage, which
// follows the stem directly) with its residual blocks.
type stage struct {
	downsample *nn.Sequential
	blocks     []*convBlock
}

// head reduces the final feature map to the embedding vector.
type head struct {
	pool    *nn.GlobalAvgPool
	flatten *nn.Flatten
	norm    *nn.LayerNorm
	fc      nn.Module
}

// New builds a named variant with zero-initialized weights.
func New(name string) (*Network, error) {
	cfg, err := ConfigFor(name)
	if err != nil {
		return nil, err
	}
	net, err := NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", name, err)
	}
	net.Name = name
	return net, nil
}

// NewFromConfig builds a network from an explicit configuration.
func NewFromConfig(cfg Config) (*Network, error) {
	stemConv, err := nn.NewConv2D(InputChannels, cfg.Dims[0], 4, 4, 0, 1)
	if err != nil {
		return nil, err
	}
	stemNorm, err := nn.NewBatchNorm2D(cfg.Dims[0], batchNormEps)
	if err != nil {
		return nil, err
	}
	net := &Network{
		Config: cfg,
		stem:   nn.NewSequential().Add("conv", stemConv).Add("norm", stemNorm),
	}

	for i := 0; i < 4; i++ {
		st := &stage{}
		if i > 0 {
			downConv, err := nn.NewConv2D(cfg.Dims[i-1], cfg.Dims[i], 2, 2, 0, 1)
			if err != nil {
				return nil, err
			}
			downNorm, err := nn.NewBatchNorm2D(cfg.Dims[i], batchNormEps)
			if err != nil {
				return nil, err
			}
			st.downsample = nn.NewSequential().Add("conv", downConv).Add("norm", downNorm)
		}
		for j := 0; j < cfg.Depths[i]; j++ {
			block, err := newConvBlock(cfg.Dims[i], cfg.Gamma)
			if err != nil {
				return nil, fmt.Errorf("stage %d block %d: %w", i, j, err)
			}
			st.blocks = append(st.blocks, block)
		}
		net.stages = append(net.stages, st)
	}

	headNorm, err := nn.NewLayerNorm(cfg.Dims[3], layerNormEps)
	if err != nil {
		return nil, err
	}
	fc, err := newPointwise(cfg.Dims[3], cfg.EmbedDim, cfg.Gamma)
	if err != nil {
		return nil, err
	}
	net.head = &head{
		pool:    nn.NewGlobalAvgPool(),
		flatten: nn.NewFlatten(),
		norm:    headNorm,
		fc:      fc,
	}
	return net, nil
}

// InputShape is the static input the network is traced with.
func (n *Network) InputShape() tensor.Shape {
	return tensor.Shape{1, InputChannels, InputSize, InputSize}
}

// Trace walks the whole network, emitting its graph.
func (n *Network) Trace(tr *nn.Tracer, input nn.Value) (nn.Value, error) {
	tr.Push("stem")
	v, err := n.stem.Trace(tr, input)
	tr.Pop()
	if err != nil {
		return nn.Value{}, fmt.Errorf("stem: %w", err)
	}

	for i, st := range n.stages {
		tr.Push(fmt.Sprintf("stages.%d", i))
		if st.downsample != nil {
			tr.Push("downsample")
			v, err = st.downsample.Trace(tr, v)
			tr.Pop()
			if err != nil {
				tr.Pop()
				return nn.Value{}, fmt.Errorf("stage %d downsample: %w", i, err)
			}
		}
		for j, block := range st.blocks {
			tr.Push(fmt.Sprintf("blocks.%d", j))
			v, err = block.Trace(tr, v)
			tr.Pop()
			if err != nil {
				tr.Pop()
				return nn.Value{}, fmt.Errorf("stage %d block %d: %w", i, j, err)
			}
		}
		tr.Pop()
	}

	tr.Push("head")
	v, err = n.head.trace(tr, v)
	tr.Pop()
	if err != nil {
		return nn.Value{}, fmt.Errorf("head: %w", err)
	}
	return v, nil
}

func (h *head) trace(tr *nn.Tracer, input nn.Value) (nn.Value, error) {
	v, err := h.pool.Trace(tr, input)
	if err != nil {
		return nn.Value{}, err
	}
	if v, err = h.flatten.Trace(tr, v); err != nil {
		return nn.Value{}, err
	}
	tr.Push("norm")
	v, err = h.norm.Trace(tr, v)
	tr.Pop()
	if err != nil {
		return nn.Value{}, err
	}
	tr.Push("fc")
	v, err = h.fc.Trace(tr, v)
	tr.Pop()
	if err != nil {
		return nn.Value{}, err
	}
	return v, nil
}

// StateDict collects every parameter under its checkpoint name.
func (n *Network) StateDict() map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	merge := func(prefix string, sd map[string]*tensor.RawTensor) {
		for k, v := range sd {
			out[prefix+"."+k] = v
		}
	}
	merge("stem", n.stem.StateDict())
	for i, st := range n.stages {
		if st.downsample != nil {
			merge(fmt.Sprintf("stages.%d.downsample", i), st.downsample.StateDict())
		}
		for j, block := range st.blocks {
			merge(fmt.Sprintf("stages.%d.blocks.%d", i, j), block.StateDict())
		}
	}
	merge("head.norm", n.head.norm.StateDict())
	merge("head.fc", n.head.fc.StateDict())
	return out
}

// LoadStateDict distributes checkpoint tensors to the network's modules.
// Every module parameter must be present, and every checkpoint key must
// land somewhere.
func (n *Network) LoadStateDict(params map[string]*tensor.RawTensor) error {
	type target struct {
		prefix string
		mod    nn.Module
	}
	targets := []target{{"stem", n.stem}}
	for i, st := range n.stages {
		if st.downsample != nil {
			targets = append(targets, target{fmt.Sprintf("stages.%d.downsample", i), st.downsample})
		}
		for j, block := range st.blocks {
			targets = append(targets, target{fmt.Sprintf("stages.%d.blocks.%d", i, j), block})
		}
	}
	targets = append(targets,
		target{"head.norm", n.head.norm},
		target{"head.fc", n.head.fc},
	)

	claimed := make(map[string]bool, len(params))
	for _, t := range targets {
		sub := make(map[string]*tensor.RawTensor)
		p := t.prefix + "."
		for k, v := range params {
			if len(k) > len(p) && k[:len(p)] == p {
				sub[k[len(p):]] = v
				claimed[k] = true
			}
		}
		if err := t.mod.LoadStateDict(sub); err != nil {
			return fmt.Errorf("%s: %w", t.prefix, err)
		}
	}
	for k := range params {
		if !claimed[k] {
			return fmt.Errorf("unexpected parameter %q", k)
		}
	}
	return nil
}

// NumParameters returns the total element count across all parameters.
func (n *Network) NumParameters() int {
	total := 0
	for _, t := range n.StateDict() {
		total += t.NumElements()
	}
	return total
}
