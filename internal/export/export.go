// Package export turns a traced network into an ONNX file on disk. It
// mirrors the two-phase shape of graph exporters elsewhere: trace the
// module tree against a dummy input to get a static graph, then serialize
// the graph with the requested opset, tensor names, and dynamic axes.
package export

import (
	"fmt"
	"os"

	"github.com/edgeface-ml/edgeface/internal/nn"
	"github.com/edgeface-ml/edgeface/internal/onnx"
	"github.com/edgeface-ml/edgeface/internal/tensor"
)

// Version is the producer version stamped into exported models.
const Version = "0.3.0"

// Options controls how a model is exported.
type Options struct {
	// OpsetVersion is the ONNX operator set the graph targets.
	OpsetVersion int64
	// InputName and OutputName are the graph's tensor names.
	InputName  string
	OutputName string
	// DynamicBatch marks the leading axis symbolic, named BatchParam.
	DynamicBatch bool
	BatchParam   string
	// ConstantFolding folds normalization statistics into the preceding
	// convolution weights before serialization.
	ConstantFolding bool
	// ExternalThreshold spills initializers larger than this many bytes
	// to a sidecar file next to the model. Zero keeps everything inline.
	ExternalThreshold int64
	// ProducerName and ProducerVersion identify the exporter in the model.
	ProducerName    string
	ProducerVersion string
}

// DefaultOptions returns the standard export configuration.
func DefaultOptions() Options {
	return Options{
		OpsetVersion:    14,
		InputName:       "input",
		OutputName:      "embedding",
		DynamicBatch:    true,
		BatchParam:      "batch_size",
		ConstantFolding: true,
		ProducerName:    "edgeface",
		ProducerVersion: Version,
	}
}

// Traced is a static graph produced by tracing a module against a dummy
// input, before serialization options are applied.
type Traced struct {
	Graph  *onnx.GraphProto
	Input  nn.Value
	Output nn.Value
}

// Result describes a finished export.
type Result struct {
	// Path is the model file written.
	Path string
	// SidecarPath is the external-data file, or empty when the model is
	// self-contained.
	SidecarPath string
	// Bytes is the size of the model file.
	Bytes int64
}

// Trace runs the module once over a symbolic stand-in for dummy and
// records the operations it emits. Only dummy's shape matters; its values
// are never read, since no compute runs at trace time.
func Trace(model nn.Module, dummy *tensor.RawTensor, opts Options) (*Traced, error) {
	tr := nn.NewTracer("main_graph")
	in := tr.Input(opts.InputName, dummy.Shape())
	out, err := model.Trace(tr, in)
	if err != nil {
		return nil, fmt.Errorf("tracing model: %w", err)
	}
	if out.Name == in.Name {
		return nil, fmt.Errorf("model emitted no operations")
	}
	return &Traced{Graph: tr.Graph(), Input: in, Output: out}, nil
}

// Export serializes a traced graph to path.
func Export(traced *Traced, path string, opts Options) (*Result, error) {
	g := traced.Graph
	if opts.ConstantFolding {
		if err := FoldBatchNorm(g); err != nil {
			return nil, fmt.Errorf("constant folding: %w", err)
		}
	}

	renameOutput(g, traced.Output.Name, opts.OutputName)
	g.Inputs = []onnx.ValueInfoProto{valueInfo(opts.InputName, traced.Input.Shape, opts)}
	g.Outputs = []onnx.ValueInfoProto{valueInfo(opts.OutputName, traced.Output.Shape, opts)}

	m := &onnx.ModelProto{
		IRVersion:       8,
		ProducerName:    opts.ProducerName,
		ProducerVersion: opts.ProducerVersion,
		Graph:           g,
		OpsetImport:     []onnx.OperatorSetID{{Domain: "", Version: opts.OpsetVersion}},
	}

	result := &Result{Path: path}
	if opts.ExternalThreshold > 0 {
		spilled, err := onnx.SpillExternal(m, path, opts.ExternalThreshold)
		if err != nil {
			return nil, fmt.Errorf("writing external data: %w", err)
		}
		if spilled {
			result.SidecarPath = onnx.SidecarPath(path)
		}
	}
	if err := onnx.WriteFile(m, path); err != nil {
		return nil, fmt.Errorf("writing model: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat exported model: %w", err)
	}
	result.Bytes = info.Size()
	return result, nil
}

// ExportModel is the one-shot path: trace and serialize in one call.
func ExportModel(model nn.Module, dummy *tensor.RawTensor, path string, opts Options) (*Result, error) {
	traced, err := Trace(model, dummy, opts)
	if err != nil {
		return nil, err
	}
	return Export(traced, path, opts)
}

// renameOutput rewrites the model's final edge to the requested name.
func renameOutput(g *onnx.GraphProto, oldName, newName string) {
	if oldName == newName {
		return
	}
	for i := range g.Nodes {
		for j, out := range g.Nodes[i].Outputs {
			if out == oldName {
				g.Nodes[i].Outputs[j] = newName
			}
		}
		for j, in := range g.Nodes[i].Inputs {
			if in == oldName {
				g.Nodes[i].Inputs[j] = newName
			}
		}
	}
}

func valueInfo(name string, shape tensor.Shape, opts Options) onnx.ValueInfoProto {
	dims := make([]onnx.DimensionProto, len(shape))
	for i, d := range shape {
		dims[i] = onnx.DimensionProto{DimValue: int64(d)}
	}
	if opts.DynamicBatch && len(dims) > 0 {
		dims[0] = onnx.DimensionProto{DimParam: opts.BatchParam}
	}
	return onnx.ValueInfoProto{
		Name: name,
		Type: &onnx.TypeProto{
			TensorType: &onnx.TensorTypeProto{
				ElemType: onnx.TensorFloat,
				Shape:    &onnx.TensorShapeProto{Dims: dims},
			},
		},
	}
}
