package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeface-ml/edgeface/internal/tensor"
)

func TestConv2D_TraceShapes(t *testing.T) {
	tests := []struct {
		name    string
		in, out int
		kernel  int
		stride  int
		pad     int
		groups  int
		input   tensor.Shape
		want    tensor.Shape
	}{
		{"stem 4x4 stride 4", 3, 24, 4, 4, 0, 1, tensor.Shape{1, 3, 112, 112}, tensor.Shape{1, 24, 28, 28}},
		{"depthwise 7x7 pad 3", 24, 24, 7, 1, 3, 24, tensor.Shape{1, 24, 28, 28}, tensor.Shape{1, 24, 28, 28}},
		{"downsample 2x2 stride 2", 24, 48, 2, 2, 0, 1, tensor.Shape{1, 24, 28, 28}, tensor.Shape{1, 48, 14, 14}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv, err := NewConv2D(tt.in, tt.out, tt.kernel, tt.stride, tt.pad, tt.groups)
			require.NoError(t, err)

			tr := NewTracer("g")
			out, err := conv.Trace(tr, tr.Input("input", tt.input))
			require.NoError(t, err)
			assert.True(t, out.Shape.Equal(tt.want), "got %s, want %s", out.Shape, tt.want)
		})
	}
}

func TestConv2D_TraceEmitsConvNode(t *testing.T) {
	conv, err := NewConv2D(3, 8, 3, 1, 1, 1)
	require.NoError(t, err)

	tr := NewTracer("g")
	tr.Push("stem")
	_, err = conv.Trace(tr, tr.Input("input", tensor.Shape{1, 3, 16, 16}))
	tr.Pop()
	require.NoError(t, err)

	g := tr.Graph()
	require.Len(t, g.Nodes, 1)
	node := g.Nodes[0]
	assert.Equal(t, "Conv", node.OpType)
	assert.Equal(t, []string{"input", "stem.weight", "stem.bias"}, node.Inputs)

	require.Len(t, g.Initializers, 2)
	assert.Equal(t, []int64{8, 3, 3, 3}, g.Initializers[0].Dims)
	assert.Equal(t, []int64{8}, g.Initializers[1].Dims)

	var group int64 = -1
	for _, a := range node.Attributes {
		if a.Name == "group" {
			group = a.I
		}
	}
	assert.Equal(t, int64(1), group)
}

func TestConv2D_ChannelMismatch(t *testing.T) {
	conv, err := NewConv2D(3, 8, 3, 1, 1, 1)
	require.NoError(t, err)

	tr := NewTracer("g")
	_, err = conv.Trace(tr, tr.Input("input", tensor.Shape{1, 4, 16, 16}))
	assert.ErrorContains(t, err, "channels")
}

func TestConv2D_BadGroups(t *testing.T) {
	_, err := NewConv2D(3, 8, 3, 1, 1, 2)
	assert.ErrorContains(t, err, "groups")
}

func TestConv2D_StateDictRoundTrip(t *testing.T) {
	conv, err := NewConv2D(2, 4, 3, 1, 1, 1)
	require.NoError(t, err)

	weight, err := tensor.Randn(tensor.Shape{4, 2, 3, 3}, 7)
	require.NoError(t, err)
	bias, err := tensor.Randn(tensor.Shape{4}, 8)
	require.NoError(t, err)

	err = conv.LoadStateDict(map[string]*tensor.RawTensor{
		"weight": weight,
		"bias":   bias,
	})
	require.NoError(t, err)

	sd := conv.StateDict()
	assert.Equal(t, weight.Data(), sd["weight"].Data())
	assert.Equal(t, bias.Data(), sd["bias"].Data())
}

func TestConv2D_LoadRejectsWrongShape(t *testing.T) {
	conv, err := NewConv2D(2, 4, 3, 1, 1, 1)
	require.NoError(t, err)

	weight, err := tensor.Randn(tensor.Shape{4, 2, 5, 5}, 1)
	require.NoError(t, err)
	bias, err := tensor.Randn(tensor.Shape{4}, 2)
	require.NoError(t, err)

	err = conv.LoadStateDict(map[string]*tensor.RawTensor{
		"weight": weight,
		"bias":   bias,
	})
	assert.ErrorContains(t, err, "shape mismatch")
}
