// Package export is the public surface for exporting EdgeFace face
// embedding models to ONNX.
//
// The typical flow builds a model variant, loads a checkpoint, and writes
// an ONNX file:
//
//	import (
//	    "github.com/edgeface-ml/edgeface/export"
//	)
//
//	result, err := export.Run("edgeface_xxs", "edgeface_xxs.safetensors",
//	    "edgeface_xxs.onnx", export.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("wrote %s (%d bytes)\n", result.Path, result.Bytes)
//
// Exports target opset 14 with tensor names "input" and "embedding" and a
// dynamic batch axis. SingleFile collapses an export and any external-data
// sidecar into one self-contained file.
package export

import (
	"fmt"

	"github.com/edgeface-ml/edgeface/internal/backbone"
	"github.com/edgeface-ml/edgeface/internal/checkpoint"
	internalexport "github.com/edgeface-ml/edgeface/internal/export"
	"github.com/edgeface-ml/edgeface/internal/onnx"
	"github.com/edgeface-ml/edgeface/internal/tensor"
)

// Options configures an export. See [DefaultOptions] for the standard
// settings.
type Options = internalexport.Options

// Result describes a finished export: the file written, its size, and
// the sidecar path when external data was produced.
type Result = internalexport.Result

// ModelInfo contains metadata about an exported model file.
type ModelInfo = onnx.ModelInfo

// DefaultOptions returns the standard export configuration: opset 14,
// tensor names "input" and "embedding", a dynamic "batch_size" axis, and
// constant folding enabled.
func DefaultOptions() Options {
	return internalexport.DefaultOptions()
}

// Variants lists the model names accepted by [Run] and [SingleFile].
func Variants() []string {
	return backbone.VariantNames()
}

// CheckpointExists reports whether a checkpoint file is present.
func CheckpointExists(path string) bool {
	return checkpoint.Exists(path)
}

// Run builds the named model variant, loads its checkpoint, and writes
// an ONNX export to outputPath.
func Run(model, checkpointPath, outputPath string, opts Options) (*Result, error) {
	net, err := loadModel(model, checkpointPath)
	if err != nil {
		return nil, err
	}
	dummy, err := tensor.Randn(net.InputShape(), 0)
	if err != nil {
		return nil, fmt.Errorf("building dummy input: %w", err)
	}
	return internalexport.ExportModel(net, dummy, outputPath, opts)
}

// SingleFile runs an export and collapses the result into exactly one
// self-contained file at finalPath, embedding any external-data sidecar
// and removing intermediates.
func SingleFile(model, checkpointPath, outputPath, finalPath string, opts Options) (string, error) {
	if _, err := Run(model, checkpointPath, outputPath, opts); err != nil {
		return "", err
	}
	return internalexport.FinalizeSingleFile(outputPath, finalPath)
}

// GetModelInfo extracts metadata from an exported file without decoding
// weights.
func GetModelInfo(path string) (*ModelInfo, error) {
	return onnx.GetModelInfo(path)
}

func loadModel(model, checkpointPath string) (*backbone.Network, error) {
	net, err := backbone.New(model)
	if err != nil {
		return nil, fmt.Errorf("creating model: %w", err)
	}
	sd, err := checkpoint.Load(checkpointPath)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	if err := net.LoadStateDict(sd); err != nil {
		return nil, fmt.Errorf("loading weights: %w", err)
	}
	return net, nil
}
