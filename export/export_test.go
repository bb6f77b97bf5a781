package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeface-ml/edgeface/internal/backbone"
	"github.com/edgeface-ml/edgeface/internal/checkpoint"
)

// writeCheckpoint saves a freshly built variant's weights so the facade
// has a real checkpoint to load.
func writeCheckpoint(t *testing.T, model, path string) {
	t.Helper()
	net, err := backbone.New(model)
	require.NoError(t, err)
	require.NoError(t, checkpoint.Save(path, net.StateDict(), nil))
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	ckpt := filepath.Join(dir, "edgeface_xxs.safetensors")
	out := filepath.Join(dir, "edgeface_xxs.onnx")
	writeCheckpoint(t, "edgeface_xxs", ckpt)

	result, err := Run("edgeface_xxs", ckpt, out, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, out, result.Path)
	assert.Empty(t, result.SidecarPath)

	info, err := GetModelInfo(out)
	require.NoError(t, err)
	assert.Equal(t, int64(14), info.OpsetVersion)
	assert.Equal(t, []string{"input"}, info.InputNames)
	assert.Equal(t, []string{"embedding"}, info.OutputNames)
	assert.NotContains(t, info.Operators, "BatchNormalization")
	assert.False(t, info.ExternalWeights)
	assert.Greater(t, info.WeightBytes, int64(1_000_000))
}

func TestRun_MissingCheckpoint(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "edgeface_xxs.onnx")
	_, err := Run("edgeface_xxs", filepath.Join(dir, "missing.safetensors"), out, DefaultOptions())
	require.Error(t, err)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no output file on failure")
}

func TestRun_UnknownModel(t *testing.T) {
	dir := t.TempDir()
	_, err := Run("edgeface_xxl", filepath.Join(dir, "c"), filepath.Join(dir, "o"), DefaultOptions())
	assert.ErrorContains(t, err, "unknown model")
}

func TestSingleFile_ForcedSidecar(t *testing.T) {
	dir := t.TempDir()
	ckpt := filepath.Join(dir, "edgeface_xxs.safetensors")
	writeCheckpoint(t, "edgeface_xxs", ckpt)

	opts := DefaultOptions()
	opts.ExternalThreshold = 4096
	single := filepath.Join(dir, "edgeface_xxs_single.onnx")
	final := filepath.Join(dir, "edgeface_xxs_final.onnx")
	got, err := SingleFile("edgeface_xxs", ckpt, single, final, opts)
	require.NoError(t, err)
	assert.Equal(t, final, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"edgeface_xxs.safetensors", "edgeface_xxs_final.onnx"}, names)

	info, err := GetModelInfo(final)
	require.NoError(t, err)
	assert.False(t, info.ExternalWeights)
}

func TestVariants(t *testing.T) {
	assert.Contains(t, Variants(), "edgeface_xxs")
	assert.Contains(t, Variants(), "edgeface_s_gamma_05")
}

func TestCheckpointExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "w.safetensors")
	assert.False(t, CheckpointExists(path))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	assert.True(t, CheckpointExists(path))
}
