package onnx

import (
	"sort"
	"strconv"
)

// ModelInfo is a summary of a model file, cheap enough for inspection
// without touching weight payloads.
type ModelInfo struct {
	IRVersion        int64
	OpsetVersion     int64
	ProducerName     string
	ProducerVersion  string
	GraphName        string
	InputNames       []string
	OutputNames      []string
	Operators        []string
	NodeCount        int
	InitializerCount int
	WeightBytes      int64
	ExternalWeights  bool
}

// GetModelInfo extracts a summary from an ONNX file.
func GetModelInfo(path string) (*ModelInfo, error) {
	m, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return Summarize(m), nil
}

// Summarize builds a ModelInfo from a parsed model.
func Summarize(m *ModelProto) *ModelInfo {
	info := &ModelInfo{
		IRVersion:       m.IRVersion,
		ProducerName:    m.ProducerName,
		ProducerVersion: m.ProducerVersion,
	}
	for _, opset := range m.OpsetImport {
		if opset.Domain == "" || opset.Domain == "ai.onnx" {
			info.OpsetVersion = opset.Version
			break
		}
	}

	g := m.Graph
	if g == nil {
		return info
	}
	info.GraphName = g.Name
	info.NodeCount = len(g.Nodes)
	info.InitializerCount = len(g.Initializers)

	initNames := make(map[string]bool, len(g.Initializers))
	for i := range g.Initializers {
		init := &g.Initializers[i]
		initNames[init.Name] = true
		info.WeightBytes += int64(len(init.RawData))
		if init.DataLocation == DataLocationExternal {
			info.ExternalWeights = true
			for _, entry := range init.ExternalData {
				if entry.Key == "length" {
					if n, err := strconv.ParseInt(entry.Value, 10, 64); err == nil {
						info.WeightBytes += n
					}
				}
			}
		}
	}

	for i := range g.Inputs {
		if !initNames[g.Inputs[i].Name] {
			info.InputNames = append(info.InputNames, g.Inputs[i].Name)
		}
	}
	for i := range g.Outputs {
		info.OutputNames = append(info.OutputNames, g.Outputs[i].Name)
	}

	ops := make(map[string]bool)
	for i := range g.Nodes {
		ops[g.Nodes[i].OpType] = true
	}
	for op := range ops {
		info.Operators = append(info.Operators, op)
	}
	sort.Strings(info.Operators)

	return info
}
