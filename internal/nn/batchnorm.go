package nn

import (
	"fmt"

	"github.com/edgeface-ml/edgeface/internal/onnx"
	"github.com/edgeface-ml/edgeface/internal/tensor"
)

// BatchNorm2D is inference-mode batch normalization over NCHW input,
// using the running statistics recorded during training.
type BatchNorm2D struct {
	NumFeatures int
	Eps         float32

	weight      *Parameter
	bias        *Parameter
	runningMean *Parameter
	runningVar  *Parameter
}

// NewBatchNorm2D creates a batch norm layer over numFeatures channels.
func NewBatchNorm2D(numFeatures int, eps float32) (*BatchNorm2D, error) {
	bn := &BatchNorm2D{NumFeatures: numFeatures, Eps: eps}
	shape := tensor.Shape{numFeatures}
	var err error
	if bn.weight, err = NewParameter("weight", shape); err != nil {
		return nil, err
	}
	if bn.bias, err = NewParameter("bias", shape); err != nil {
		return nil, err
	}
	if bn.runningMean, err = NewParameter("running_mean", shape); err != nil {
		return nil, err
	}
	if bn.runningVar, err = NewParameter("running_var", shape); err != nil {
		return nil, err
	}
	// A zero variance vector would divide by ~0 when folded; start at 1.
	ones := bn.runningVar.Data.AsFloat32()
	for i := range ones {
		ones[i] = 1
	}
	scale := bn.weight.Data.AsFloat32()
	for i := range scale {
		scale[i] = 1
	}
	return bn, nil
}

// Trace emits a BatchNormalization node. Shape is unchanged.
func (b *BatchNorm2D) Trace(tr *Tracer, input Value) (Value, error) {
	if len(input.Shape) != 4 {
		return Value{}, fmt.Errorf("batchnorm2d: want 4D NCHW input, got shape %s", input.Shape)
	}
	if input.Shape[1] != b.NumFeatures {
		return Value{}, fmt.Errorf("batchnorm2d: input has %d channels, want %d",
			input.Shape[1], b.NumFeatures)
	}
	scale := tr.Param("weight", b.weight.Data)
	bias := tr.Param("bias", b.bias.Data)
	mean := tr.Param("running_mean", b.runningMean.Data)
	variance := tr.Param("running_var", b.runningVar.Data)
	out := tr.Node("BatchNormalization",
		[]string{input.Name, scale, bias, mean, variance},
		[]onnx.AttributeProto{AttrFloat("epsilon", b.Eps)},
		input.Shape)
	return out, nil
}

// StateDict exposes the affine parameters and running statistics.
func (b *BatchNorm2D) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight":       b.weight.Data,
		"bias":         b.bias.Data,
		"running_mean": b.runningMean.Data,
		"running_var":  b.runningVar.Data,
	}
}

// LoadStateDict replaces the affine parameters and running statistics.
// The num_batches_tracked counter some checkpoints carry is dropped.
func (b *BatchNorm2D) LoadStateDict(params map[string]*tensor.RawTensor) error {
	filtered := make(map[string]*tensor.RawTensor, len(params))
	for k, v := range params {
		if k == "num_batches_tracked" {
			continue
		}
		filtered[k] = v
	}
	return loadParams(filtered, map[string]*Parameter{
		"weight":       b.weight,
		"bias":         b.bias,
		"running_mean": b.runningMean,
		"running_var":  b.runningVar,
	})
}
