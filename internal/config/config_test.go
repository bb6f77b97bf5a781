package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "edgeface_xxs", cfg.Model)
	assert.Equal(t, "edgeface_xxs.safetensors", cfg.CheckpointPath)
	assert.Equal(t, "edgeface_xxs.onnx", cfg.OutputPath)
	assert.Equal(t, "edgeface_xxs_single.onnx", cfg.SinglePath)
	assert.Equal(t, "edgeface_xxs_final.onnx", cfg.FinalPath)
	assert.Equal(t, int64(14), cfg.Opset)
	assert.Zero(t, cfg.ExternalThreshold)
	assert.False(t, cfg.Debug)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("EDGEFACE_MODEL", "edgeface_s_gamma_05")
	t.Setenv("EDGEFACE_CHECKPOINT_PATH", "/weights/s.safetensors")
	t.Setenv("EDGEFACE_EXTERNAL_THRESHOLD", "1048576")
	t.Setenv("EDGEFACE_DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "edgeface_s_gamma_05", cfg.Model)
	assert.Equal(t, "/weights/s.safetensors", cfg.CheckpointPath)
	assert.Equal(t, int64(1048576), cfg.ExternalThreshold)
	assert.True(t, cfg.Debug)
}

func TestLoad_BadValue(t *testing.T) {
	t.Setenv("EDGEFACE_OPSET", "fourteen")
	_, err := Load()
	assert.Error(t, err)
}
