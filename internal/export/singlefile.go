package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/edgeface-ml/edgeface/internal/onnx"
)

// FinalizeSingleFile turns an export at srcPath into a single
// self-contained model at finalPath.
//
// When the export produced an external-data sidecar, the model is
// reloaded, all weights are embedded back into the graph, the embedded
// copy is written next to the source, and the intermediates (the source
// model and its sidecar) are removed. A sidecar-free export is simply
// renamed. Either way exactly one file remains.
func FinalizeSingleFile(srcPath, finalPath string) (string, error) {
	sidecar := onnx.SidecarPath(srcPath)
	if _, err := os.Stat(sidecar); os.IsNotExist(err) {
		if err := os.Rename(srcPath, finalPath); err != nil {
			return "", fmt.Errorf("renaming model: %w", err)
		}
		return finalPath, nil
	} else if err != nil {
		return "", fmt.Errorf("checking for external data: %w", err)
	}

	m, err := onnx.ParseFile(srcPath)
	if err != nil {
		return "", fmt.Errorf("reloading model: %w", err)
	}
	if err := onnx.EmbedAll(m, filepath.Dir(srcPath)); err != nil {
		return "", fmt.Errorf("embedding external data: %w", err)
	}

	embedded := embeddedPath(srcPath)
	if err := onnx.WriteFile(m, embedded); err != nil {
		return "", fmt.Errorf("writing embedded model: %w", err)
	}
	if err := os.Rename(embedded, finalPath); err != nil {
		return "", fmt.Errorf("renaming embedded model: %w", err)
	}
	if srcPath != finalPath {
		if err := os.Remove(srcPath); err != nil {
			return "", fmt.Errorf("removing intermediate model: %w", err)
		}
	}
	if err := os.Remove(sidecar); err != nil {
		return "", fmt.Errorf("removing sidecar: %w", err)
	}
	return finalPath, nil
}

// embeddedPath names the temporary self-contained copy written while the
// original export and its sidecar still exist.
func embeddedPath(srcPath string) string {
	ext := filepath.Ext(srcPath)
	return strings.TrimSuffix(srcPath, ext) + "_embedded" + ext
}
