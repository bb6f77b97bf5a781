// Package checkpoint reads and writes model weight checkpoints.
//
// Checkpoints are SafeTensors files:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[tensor data: raw bytes]
//
// Loading tolerates the two serialization shapes checkpoints show up in:
// tensors stored at the top level, or nested under a "state_dict." prefix
// (a "module." data-parallel prefix is stripped the same way). Half
// precision payloads are widened to float32, the width the exporter works
// in end to end.
package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/edgeface-ml/edgeface/internal/tensor"
)

// DType identifies a SafeTensors element type.
type DType string

// SafeTensors dtype tags.
const (
	DTypeF16  DType = "F16"
	DTypeBF16 DType = "BF16"
	DTypeF32  DType = "F32"
	DTypeF64  DType = "F64"
	DTypeI32  DType = "I32"
	DTypeI64  DType = "I64"
	DTypeU8   DType = "U8"
	DTypeBool DType = "BOOL"
)

// maxHeaderSize bounds the JSON header; anything larger is a corrupt file.
const maxHeaderSize = 100 * 1024 * 1024

// TensorInfo describes one tensor entry in the header.
type TensorInfo struct {
	DType       DType    `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end] relative to the data section
}

// Reader reads tensors out of a SafeTensors file.
type Reader struct {
	file       *os.File
	metadata   map[string]string
	tensors    map[string]TensorInfo
	dataOffset int64
}

// Open opens a SafeTensors file and parses its header.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint: %w", err)
	}

	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > maxHeaderSize {
		_ = file.Close()
		return nil, fmt.Errorf("invalid header size: %d", headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	r := &Reader{
		file:       file,
		tensors:    make(map[string]TensorInfo, len(raw)),
		dataOffset: int64(8 + headerSize),
	}
	for key, value := range raw {
		if key == "__metadata__" {
			if err := json.Unmarshal(value, &r.metadata); err != nil {
				_ = file.Close()
				return nil, fmt.Errorf("failed to parse metadata: %w", err)
			}
			continue
		}
		var info TensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to parse tensor entry %s: %w", key, err)
		}
		r.tensors[key] = info
	}

	return r, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Metadata returns the header's metadata map (may be nil).
func (r *Reader) Metadata() map[string]string {
	return r.metadata
}

// TensorNames returns all tensor names in the file.
func (r *Reader) TensorNames() []string {
	names := make([]string, 0, len(r.tensors))
	for name := range r.tensors {
		names = append(names, name)
	}
	return names
}

// ReadTensor loads one tensor, widening half precision to float32.
func (r *Reader) ReadTensor(name string) (*tensor.RawTensor, error) {
	info, ok := r.tensors[name]
	if !ok {
		return nil, fmt.Errorf("tensor %s not found", name)
	}

	shape := tensor.Shape(info.Shape)
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape for tensor %s: %w", name, err)
	}

	data, err := r.readRange(name, info)
	if err != nil {
		return nil, err
	}

	switch info.DType {
	case DTypeF16:
		return tensor.WidenHalf(data, shape, false)
	case DTypeBF16:
		return tensor.WidenHalf(data, shape, true)
	}

	dtype, err := dtypeOf(info.DType)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	raw, err := tensor.NewRaw(shape, dtype)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate tensor %s: %w", name, err)
	}
	if len(data) != raw.ByteSize() {
		return nil, fmt.Errorf("tensor %s: data is %d bytes, expected %d", name, len(data), raw.ByteSize())
	}
	copy(raw.Data(), data)
	return raw, nil
}

func (r *Reader) readRange(name string, info TensorInfo) ([]byte, error) {
	start := r.dataOffset + info.DataOffsets[0]
	size := info.DataOffsets[1] - info.DataOffsets[0]
	if size < 0 {
		return nil, fmt.Errorf("tensor %s: invalid data offsets %v", name, info.DataOffsets)
	}
	if _, err := r.file.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("tensor %s: seek failed: %w", name, err)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r.file, data); err != nil {
		return nil, fmt.Errorf("tensor %s: read failed: %w", name, err)
	}
	return data, nil
}

func dtypeOf(dt DType) (tensor.DataType, error) {
	switch dt {
	case DTypeF32:
		return tensor.Float32, nil
	case DTypeF64:
		return tensor.Float64, nil
	case DTypeI32:
		return tensor.Int32, nil
	case DTypeI64:
		return tensor.Int64, nil
	case DTypeU8:
		return tensor.Uint8, nil
	case DTypeBool:
		return tensor.Bool, nil
	default:
		return 0, fmt.Errorf("unsupported dtype: %s", dt)
	}
}

func dtypeTag(dt tensor.DataType) (DType, error) {
	switch dt {
	case tensor.Float32:
		return DTypeF32, nil
	case tensor.Float64:
		return DTypeF64, nil
	case tensor.Int32:
		return DTypeI32, nil
	case tensor.Int64:
		return DTypeI64, nil
	case tensor.Uint8:
		return DTypeU8, nil
	case tensor.Bool:
		return DTypeBool, nil
	default:
		return "", fmt.Errorf("unsupported dtype: %s", dt)
	}
}
