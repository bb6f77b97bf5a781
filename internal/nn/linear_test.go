package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeface-ml/edgeface/internal/tensor"
)

func TestLinear_TracesGemmFor2D(t *testing.T) {
	lin, err := NewLinear(4, 8)
	require.NoError(t, err)

	tr := NewTracer("g")
	tr.Push("head.fc")
	out, err := lin.Trace(tr, tr.Input("x", tensor.Shape{1, 4}))
	tr.Pop()
	require.NoError(t, err)

	g := tr.Graph()
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, "Gemm", g.Nodes[0].OpType)
	assert.Equal(t, []string{"x", "head.fc.weight", "head.fc.bias"}, g.Nodes[0].Inputs)
	assert.True(t, out.Shape.Equal(tensor.Shape{1, 8}))

	var transB int64
	for _, a := range g.Nodes[0].Attributes {
		if a.Name == "transB" {
			transB = a.I
		}
	}
	assert.Equal(t, int64(1), transB)
}

func TestLinear_TracesMatMulAddFor4D(t *testing.T) {
	lin, err := NewLinear(4, 8)
	require.NoError(t, err)

	tr := NewTracer("g")
	tr.Push("pwconv1")
	out, err := lin.Trace(tr, tr.Input("x", tensor.Shape{1, 7, 7, 4}))
	tr.Pop()
	require.NoError(t, err)

	g := tr.Graph()
	require.Len(t, g.Nodes, 2)
	assert.Equal(t, "MatMul", g.Nodes[0].OpType)
	assert.Equal(t, "Add", g.Nodes[1].OpType)
	assert.True(t, out.Shape.Equal(tensor.Shape{1, 7, 7, 8}))

	// The MatMul operand is the weight transposed to [in, out].
	found := false
	for _, init := range g.Initializers {
		if init.Name == "pwconv1.weight_t" {
			found = true
			assert.Equal(t, []int64{4, 8}, init.Dims)
		}
	}
	assert.True(t, found, "transposed weight initializer missing")
}

func TestLinear_TransposedWeightValues(t *testing.T) {
	lin, err := NewLinear(2, 3)
	require.NoError(t, err)

	// weight [3, 2] = [[1, 2], [3, 4], [5, 6]]
	weight, err := tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2})
	require.NoError(t, err)
	require.NoError(t, lin.Weight().Set(weight))

	wt, err := lin.transposedWeight()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 3, 5, 2, 4, 6}, wt.AsFloat32())
}

func TestLinear_NoBias(t *testing.T) {
	lin, err := NewLinearNoBias(4, 8)
	require.NoError(t, err)

	sd := lin.StateDict()
	_, hasBias := sd["bias"]
	assert.False(t, hasBias)

	tr := NewTracer("g")
	_, err = lin.Trace(tr, tr.Input("x", tensor.Shape{1, 4}))
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "weight"}, tr.Graph().Nodes[0].Inputs)

	err = lin.LoadStateDict(map[string]*tensor.RawTensor{})
	assert.ErrorContains(t, err, "missing parameter")
}

func TestLinear_FeatureMismatch(t *testing.T) {
	lin, err := NewLinear(4, 8)
	require.NoError(t, err)

	tr := NewTracer("g")
	_, err = lin.Trace(tr, tr.Input("x", tensor.Shape{1, 5}))
	assert.ErrorContains(t, err, "features")
}

func TestLowRankLinear_Rank(t *testing.T) {
	tests := []struct {
		in, out int
		gamma   float64
		want    int
	}{
		{100, 400, 0.6, 30},
		{192, 768, 0.5, 48},
		{4, 4, 0.1, 1},
	}
	for _, tt := range tests {
		got := RankFor(tt.in, tt.out, tt.gamma)
		if got != tt.want {
			t.Errorf("RankFor(%d, %d, %v) = %d, want %d", tt.in, tt.out, tt.gamma, got, tt.want)
		}
	}
}

func TestLowRankLinear_TraceAndStateDict(t *testing.T) {
	lr, err := NewLowRankLinear(8, 16, 2)
	require.NoError(t, err)

	sd := lr.StateDict()
	require.Len(t, sd, 3)
	assert.True(t, sd["fc1.weight"].Shape().Equal(tensor.Shape{2, 8}))
	assert.True(t, sd["fc2.weight"].Shape().Equal(tensor.Shape{16, 2}))
	assert.True(t, sd["fc2.bias"].Shape().Equal(tensor.Shape{16}))

	tr := NewTracer("g")
	tr.Push("pwconv1")
	out, err := lr.Trace(tr, tr.Input("x", tensor.Shape{1, 8}))
	tr.Pop()
	require.NoError(t, err)
	assert.True(t, out.Shape.Equal(tensor.Shape{1, 16}))
	require.Len(t, tr.Graph().Nodes, 2)
	assert.Equal(t, "Gemm", tr.Graph().Nodes[0].OpType)
	assert.Equal(t, "Gemm", tr.Graph().Nodes[1].OpType)

	err = lr.LoadStateDict(sd)
	require.NoError(t, err)
}
