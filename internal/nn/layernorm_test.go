package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeface-ml/edgeface/internal/tensor"
)

func TestLayerNorm_TraceChain(t *testing.T) {
	ln, err := NewLayerNorm(8, 1e-6)
	require.NoError(t, err)

	tr := NewTracer("g")
	tr.Push("norm")
	out, err := ln.Trace(tr, tr.Input("x", tensor.Shape{1, 14, 14, 8}))
	tr.Pop()
	require.NoError(t, err)
	assert.True(t, out.Shape.Equal(tensor.Shape{1, 14, 14, 8}))

	ops := make([]string, 0, len(tr.Graph().Nodes))
	for _, n := range tr.Graph().Nodes {
		ops = append(ops, n.OpType)
	}
	assert.Equal(t, []string{
		"ReduceMean", "Sub", "Mul", "ReduceMean", "Add", "Sqrt", "Div", "Mul", "Add",
	}, ops)
}

func TestLayerNorm_DefaultScaleIsOne(t *testing.T) {
	ln, err := NewLayerNorm(4, 1e-6)
	require.NoError(t, err)

	sd := ln.StateDict()
	assert.Equal(t, []float32{1, 1, 1, 1}, sd["weight"].AsFloat32())
	assert.Equal(t, []float32{0, 0, 0, 0}, sd["bias"].AsFloat32())
}

func TestLayerNorm_WrongTrailingDim(t *testing.T) {
	ln, err := NewLayerNorm(8, 1e-6)
	require.NoError(t, err)

	tr := NewTracer("g")
	_, err = ln.Trace(tr, tr.Input("x", tensor.Shape{1, 14, 14, 4}))
	assert.ErrorContains(t, err, "does not end in 8")
}

func TestGELU_TracesErfForm(t *testing.T) {
	tr := NewTracer("g")
	tr.Push("act")
	out, err := NewGELU().Trace(tr, tr.Input("x", tensor.Shape{1, 4}))
	tr.Pop()
	require.NoError(t, err)
	assert.True(t, out.Shape.Equal(tensor.Shape{1, 4}))

	ops := make([]string, 0, len(tr.Graph().Nodes))
	for _, n := range tr.Graph().Nodes {
		ops = append(ops, n.OpType)
	}
	assert.Equal(t, []string{"Div", "Erf", "Add", "Mul", "Mul"}, ops)
}

func TestPermute_Shapes(t *testing.T) {
	tr := NewTracer("g")
	out, err := NewPermute(0, 2, 3, 1).Trace(tr, tr.Input("x", tensor.Shape{1, 24, 28, 28}))
	require.NoError(t, err)
	assert.True(t, out.Shape.Equal(tensor.Shape{1, 28, 28, 24}))

	out2, err := NewPermute(0, 3, 1, 2).Trace(tr, out)
	require.NoError(t, err)
	assert.True(t, out2.Shape.Equal(tensor.Shape{1, 24, 28, 28}))
}

func TestPermute_RankMismatch(t *testing.T) {
	tr := NewTracer("g")
	_, err := NewPermute(0, 2, 1).Trace(tr, tr.Input("x", tensor.Shape{1, 2, 3, 4}))
	assert.ErrorContains(t, err, "rank")
}

func TestGlobalAvgPoolAndFlatten(t *testing.T) {
	tr := NewTracer("g")
	pooled, err := NewGlobalAvgPool().Trace(tr, tr.Input("x", tensor.Shape{1, 168, 7, 7}))
	require.NoError(t, err)
	assert.True(t, pooled.Shape.Equal(tensor.Shape{1, 168, 1, 1}))

	flat, err := NewFlatten().Trace(tr, pooled)
	require.NoError(t, err)
	assert.True(t, flat.Shape.Equal(tensor.Shape{1, 168}))
}
