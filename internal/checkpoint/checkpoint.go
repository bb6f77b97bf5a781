package checkpoint

import (
	"fmt"
	"os"
	"strings"

	"github.com/edgeface-ml/edgeface/internal/tensor"
)

// StateDict maps parameter names to their weight tensors.
type StateDict map[string]*tensor.RawTensor

// Wrapping prefixes stripped during normalization, in order.
var wrapPrefixes = []string{"state_dict.", "module."}

// Exists reports whether a checkpoint file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Load reads every tensor from a checkpoint file and normalizes names.
//
// Both serialization shapes are accepted: tensors at the top level, or all
// tensors nested under a "state_dict." prefix. A prefix is only stripped
// when every tensor carries it, so legitimate parameter names that happen
// to start with "module." inside a submodule are left alone.
func Load(path string) (StateDict, error) {
	reader, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = reader.Close()
	}()

	sd := make(StateDict)
	for _, name := range reader.TensorNames() {
		raw, err := reader.ReadTensor(name)
		if err != nil {
			return nil, fmt.Errorf("failed to load tensor %s: %w", name, err)
		}
		sd[name] = raw
	}
	if len(sd) == 0 {
		return nil, fmt.Errorf("checkpoint %s contains no tensors", path)
	}

	return normalize(sd), nil
}

// normalize strips wrapping prefixes shared by every tensor name.
func normalize(sd StateDict) StateDict {
	for _, prefix := range wrapPrefixes {
		if !allHavePrefix(sd, prefix) {
			continue
		}
		stripped := make(StateDict, len(sd))
		for name, raw := range sd {
			stripped[strings.TrimPrefix(name, prefix)] = raw
		}
		sd = stripped
	}
	return sd
}

func allHavePrefix(sd StateDict, prefix string) bool {
	for name := range sd {
		if !strings.HasPrefix(name, prefix) || len(name) == len(prefix) {
			return false
		}
	}
	return true
}
