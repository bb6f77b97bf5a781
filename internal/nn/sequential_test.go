package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeface-ml/edgeface/internal/tensor"
)

func TestSequential_TraceOrderAndScopes(t *testing.T) {
	conv, err := NewConv2D(3, 8, 3, 1, 1, 1)
	require.NoError(t, err)
	bn, err := NewBatchNorm2D(8, 1e-5)
	require.NoError(t, err)

	seq := NewSequential().Add("conv", conv).Add("norm", bn)
	require.Equal(t, 2, seq.Len())

	tr := NewTracer("g")
	tr.Push("stem")
	out, err := seq.Trace(tr, tr.Input("input", tensor.Shape{1, 3, 16, 16}))
	tr.Pop()
	require.NoError(t, err)
	assert.True(t, out.Shape.Equal(tensor.Shape{1, 8, 16, 16}))

	g := tr.Graph()
	require.Len(t, g.Nodes, 2)
	assert.Equal(t, "/stem/conv/Conv", g.Nodes[0].Name)
	assert.Equal(t, "/stem/norm/BatchNormalization", g.Nodes[1].Name)
	assert.Contains(t, g.Nodes[1].Inputs, "stem.norm.running_mean")
}

func TestSequential_StateDictPrefixes(t *testing.T) {
	conv, err := NewConv2D(3, 8, 3, 1, 1, 1)
	require.NoError(t, err)
	bn, err := NewBatchNorm2D(8, 1e-5)
	require.NoError(t, err)

	seq := NewSequential().Add("conv", conv).Add("norm", bn)
	sd := seq.StateDict()
	for _, key := range []string{
		"conv.weight", "conv.bias",
		"norm.weight", "norm.bias", "norm.running_mean", "norm.running_var",
	} {
		_, ok := sd[key]
		assert.True(t, ok, "missing %s", key)
	}

	require.NoError(t, seq.LoadStateDict(sd))
}

func TestSequential_UnexpectedKey(t *testing.T) {
	conv, err := NewConv2D(3, 8, 3, 1, 1, 1)
	require.NoError(t, err)

	seq := NewSequential().Add("conv", conv)
	sd := seq.StateDict()
	sd["classifier.weight"] = sd["conv.bias"]
	err = seq.LoadStateDict(sd)
	assert.ErrorContains(t, err, "unexpected parameter")
}

func TestSequential_DuplicateChildPanics(t *testing.T) {
	seq := NewSequential().Add("act", NewGELU())
	assert.Panics(t, func() { seq.Add("act", NewGELU()) })
}

func TestBatchNorm2D_DropsBatchCounter(t *testing.T) {
	bn, err := NewBatchNorm2D(4, 1e-5)
	require.NoError(t, err)

	sd := bn.StateDict()
	counter, err := tensor.FromFloat32([]float32{42}, tensor.Shape{1})
	require.NoError(t, err)
	sd["num_batches_tracked"] = counter
	assert.NoError(t, bn.LoadStateDict(sd))
}
