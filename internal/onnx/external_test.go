package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bigLittleModel(bigSize, smallSize int) *ModelProto {
	big := make([]byte, bigSize)
	for i := range big {
		big[i] = byte(i)
	}
	small := make([]byte, smallSize)
	for i := range small {
		small[i] = byte(255 - i)
	}
	return &ModelProto{
		IRVersion: 8,
		Graph: &GraphProto{
			Name: "g",
			Initializers: []TensorProto{
				{Name: "big", DataType: TensorFloat, Dims: []int64{int64(bigSize / 4)}, RawData: big},
				{Name: "small", DataType: TensorFloat, Dims: []int64{int64(smallSize / 4)}, RawData: small},
			},
		},
	}
}

func TestSpillExternal_ThresholdSplit(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.onnx")
	m := bigLittleModel(1024, 64)

	spilled, err := SpillExternal(m, modelPath, 512)
	require.NoError(t, err)
	assert.True(t, spilled)

	// Big tensor went external, small stayed inline.
	big := &m.Graph.Initializers[0]
	small := &m.Graph.Initializers[1]
	assert.Equal(t, int32(DataLocationExternal), big.DataLocation)
	assert.Nil(t, big.RawData)
	assert.Equal(t, int32(DataLocationDefault), small.DataLocation)
	assert.Len(t, small.RawData, 64)

	sidecar := SidecarPath(modelPath)
	info, err := os.Stat(sidecar)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), info.Size())

	assert.True(t, HasExternal(m))
}

func TestSpillExternal_NothingToSpill(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.onnx")
	m := bigLittleModel(128, 64)

	spilled, err := SpillExternal(m, modelPath, 4096)
	require.NoError(t, err)
	assert.False(t, spilled)
	assert.False(t, HasExternal(m))

	_, err = os.Stat(SidecarPath(modelPath))
	assert.True(t, os.IsNotExist(err), "no sidecar may be created")
}

func TestLoadExternal_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.onnx")
	m := bigLittleModel(1024, 64)
	wantBig := append([]byte(nil), m.Graph.Initializers[0].RawData...)

	spilled, err := SpillExternal(m, modelPath, 512)
	require.NoError(t, err)
	require.True(t, spilled)
	require.NoError(t, WriteFile(m, modelPath))

	// Reload from disk and resolve the sidecar.
	parsed, err := ParseFile(modelPath)
	require.NoError(t, err)
	require.True(t, HasExternal(parsed))

	require.NoError(t, LoadExternal(parsed, dir))
	assert.Equal(t, wantBig, parsed.Graph.Initializers[0].RawData)
	assert.True(t, HasExternal(parsed), "LoadExternal keeps the external marker")
}

func TestEmbedAll_SelfContained(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.onnx")
	m := bigLittleModel(1024, 64)
	wantBig := append([]byte(nil), m.Graph.Initializers[0].RawData...)

	_, err := SpillExternal(m, modelPath, 512)
	require.NoError(t, err)
	require.NoError(t, WriteFile(m, modelPath))

	parsed, err := ParseFile(modelPath)
	require.NoError(t, err)
	require.NoError(t, EmbedAll(parsed, dir))

	assert.False(t, HasExternal(parsed))
	big := &parsed.Graph.Initializers[0]
	assert.Equal(t, wantBig, big.RawData)
	assert.Empty(t, big.ExternalData)

	// Re-serialized model parses standalone, no sidecar needed.
	embedded := filepath.Join(dir, "embedded.onnx")
	require.NoError(t, WriteFile(parsed, embedded))
	reparsed, err := ParseFile(embedded)
	require.NoError(t, err)
	assert.Equal(t, wantBig, reparsed.Graph.Initializers[0].RawData)
}

func TestLoadExternal_MissingSidecar(t *testing.T) {
	dir := t.TempDir()
	m := bigLittleModel(1024, 64)
	_, err := SpillExternal(m, filepath.Join(dir, "model.onnx"), 512)
	require.NoError(t, err)
	require.NoError(t, os.Remove(SidecarPath(filepath.Join(dir, "model.onnx"))))

	err = LoadExternal(m, dir)
	require.Error(t, err)
}

func TestLoadExternal_RangeCheck(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.onnx")
	m := bigLittleModel(1024, 64)
	_, err := SpillExternal(m, modelPath, 512)
	require.NoError(t, err)

	// Truncate the sidecar under the recorded length.
	require.NoError(t, os.Truncate(SidecarPath(modelPath), 100))

	err = LoadExternal(m, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds sidecar size")
}

func TestSummarize(t *testing.T) {
	m := sampleModel()
	info := Summarize(m)

	assert.Equal(t, int64(8), info.IRVersion)
	assert.Equal(t, int64(14), info.OpsetVersion)
	assert.Equal(t, "edgeface-go", info.ProducerName)
	assert.Equal(t, []string{"input"}, info.InputNames)
	assert.Equal(t, []string{"embedding"}, info.OutputNames)
	assert.Equal(t, []string{"Conv", "Relu"}, info.Operators)
	assert.Equal(t, 2, info.NodeCount)
	assert.Equal(t, 2, info.InitializerCount)
	assert.Equal(t, int64(432+16), info.WeightBytes)
	assert.False(t, info.ExternalWeights)
}

func TestSummarize_ExternalWeights(t *testing.T) {
	dir := t.TempDir()
	m := bigLittleModel(1024, 64)
	_, err := SpillExternal(m, filepath.Join(dir, "model.onnx"), 512)
	require.NoError(t, err)

	info := Summarize(m)
	assert.True(t, info.ExternalWeights)
	assert.Equal(t, int64(1024+64), info.WeightBytes)
}
