package onnx

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// External-data convention: tensors above a size threshold keep their
// payload in a sidecar file next to the model, referenced by
// location/offset/length entries.

// SidecarPath returns the sidecar path for a model file path.
func SidecarPath(modelPath string) string {
	return modelPath + ".data"
}

// HasExternal reports whether any initializer stores its payload externally.
func HasExternal(m *ModelProto) bool {
	if m.Graph == nil {
		return false
	}
	for i := range m.Graph.Initializers {
		if m.Graph.Initializers[i].DataLocation == DataLocationExternal {
			return true
		}
	}
	return false
}

// SpillExternal moves every initializer payload larger than threshold into
// the model's sidecar file. Returns true if a sidecar was written; when no
// initializer crosses the threshold no sidecar is created.
//
// Offsets are assigned in initializer order, so spilling is deterministic.
func SpillExternal(m *ModelProto, modelPath string, threshold int64) (bool, error) {
	if m.Graph == nil || threshold <= 0 {
		return false, nil
	}

	type spill struct {
		index int
		data  []byte
	}
	var spills []spill
	for i := range m.Graph.Initializers {
		init := &m.Graph.Initializers[i]
		if int64(len(init.RawData)) > threshold {
			spills = append(spills, spill{index: i, data: init.RawData})
		}
	}
	if len(spills) == 0 {
		return false, nil
	}

	sidecar := SidecarPath(modelPath)
	file, err := os.Create(sidecar)
	if err != nil {
		return false, fmt.Errorf("failed to create sidecar: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	location := filepath.Base(sidecar)
	w := bufio.NewWriter(file)
	var offset int64
	for _, s := range spills {
		if _, err := w.Write(s.data); err != nil {
			return false, fmt.Errorf("failed to write sidecar: %w", err)
		}
		init := &m.Graph.Initializers[s.index]
		init.RawData = nil
		init.DataLocation = DataLocationExternal
		init.ExternalData = []StringStringEntry{
			{Key: "location", Value: location},
			{Key: "offset", Value: strconv.FormatInt(offset, 10)},
			{Key: "length", Value: strconv.FormatInt(int64(len(s.data)), 10)},
		}
		offset += int64(len(s.data))
	}
	if err := w.Flush(); err != nil {
		return false, fmt.Errorf("failed to flush sidecar: %w", err)
	}
	return true, nil
}

// LoadExternal resolves externally stored payloads back into RawData,
// reading sidecar files relative to dir. Tensors stay marked external;
// use EmbedAll to turn the model into a self-contained one.
func LoadExternal(m *ModelProto, dir string) error {
	if m.Graph == nil {
		return nil
	}
	// Sidecars are read whole once and sliced per tensor.
	files := make(map[string][]byte)
	for i := range m.Graph.Initializers {
		init := &m.Graph.Initializers[i]
		if init.DataLocation != DataLocationExternal {
			continue
		}
		location, offset, length, err := externalRef(init)
		if err != nil {
			return fmt.Errorf("initializer %s: %w", init.Name, err)
		}
		data, ok := files[location]
		if !ok {
			data, err = os.ReadFile(filepath.Join(dir, location))
			if err != nil {
				return fmt.Errorf("initializer %s: failed to read sidecar: %w", init.Name, err)
			}
			files[location] = data
		}
		if offset+length > int64(len(data)) {
			return fmt.Errorf("initializer %s: external range [%d:%d] exceeds sidecar size %d",
				init.Name, offset, offset+length, len(data))
		}
		payload := make([]byte, length)
		copy(payload, data[offset:offset+length])
		init.RawData = payload
	}
	return nil
}

// EmbedAll loads all external payloads and clears the external markers,
// leaving a model that re-serializes as a single self-contained file.
func EmbedAll(m *ModelProto, dir string) error {
	if err := LoadExternal(m, dir); err != nil {
		return err
	}
	for i := range m.Graph.Initializers {
		init := &m.Graph.Initializers[i]
		init.DataLocation = DataLocationDefault
		init.ExternalData = nil
	}
	return nil
}

func externalRef(t *TensorProto) (location string, offset, length int64, err error) {
	length = -1
	for _, entry := range t.ExternalData {
		switch entry.Key {
		case "location":
			location = entry.Value
		case "offset":
			offset, err = strconv.ParseInt(entry.Value, 10, 64)
			if err != nil {
				return "", 0, 0, fmt.Errorf("bad offset %q: %w", entry.Value, err)
			}
		case "length":
			length, err = strconv.ParseInt(entry.Value, 10, 64)
			if err != nil {
				return "", 0, 0, fmt.Errorf("bad length %q: %w", entry.Value, err)
			}
		}
	}
	if location == "" {
		return "", 0, 0, fmt.Errorf("external tensor has no location entry")
	}
	if length < 0 {
		return "", 0, 0, fmt.Errorf("external tensor has no length entry")
	}
	return location, offset, length, nil
}
