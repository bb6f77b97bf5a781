// Package config holds the runtime settings shared by the CLI commands.
// Values come from EDGEFACE_* environment variables with built-in
// defaults; command-line flags override on top.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full setting surface.
type Config struct {
	// Model is the network variant to build.
	Model string `envconfig:"MODEL" default:"edgeface_xxs"`
	// CheckpointPath is the local weights file.
	CheckpointPath string `envconfig:"CHECKPOINT_PATH" default:"edgeface_xxs.safetensors"`
	// OutputPath is where the plain export writes its model.
	OutputPath string `envconfig:"OUTPUT_PATH" default:"edgeface_xxs.onnx"`
	// SinglePath is the intermediate output of the single-file export.
	SinglePath string `envconfig:"SINGLE_PATH" default:"edgeface_xxs_single.onnx"`
	// FinalPath is the self-contained model the single-file export
	// leaves behind.
	FinalPath string `envconfig:"FINAL_PATH" default:"edgeface_xxs_final.onnx"`
	// Opset is the ONNX operator set version to target.
	Opset int64 `envconfig:"OPSET" default:"14"`
	// ExternalThreshold spills initializers above this byte size to a
	// sidecar. Zero keeps the model self-contained.
	ExternalThreshold int64 `envconfig:"EXTERNAL_THRESHOLD" default:"0"`

	// S3 settings for fetching checkpoints.
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Region string `envconfig:"S3_REGION" default:"us-east-1"`

	// Debug switches logging to development output.
	Debug bool `envconfig:"DEBUG" default:"false"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("edgeface", &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return &cfg, nil
}
