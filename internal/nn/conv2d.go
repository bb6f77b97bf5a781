package nn

import (
	"fmt"

	"github.com/edgeface-ml/edgeface/internal/onnx"
	"github.com/edgeface-ml/edgeface/internal/tensor"
)

// Conv2D is a 2D convolution over NCHW input. Setting Groups equal to the
// channel count gives a depthwise convolution.
type Conv2D struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Padding     int
	Groups      int

	weight *Parameter
	bias   *Parameter
}

// NewConv2D creates a convolution with zero-initialized weights and bias.
func NewConv2D(inChannels, outChannels, kernelSize, stride, padding, groups int) (*Conv2D, error) {
	if groups < 1 {
		groups = 1
	}
	if inChannels%groups != 0 || outChannels%groups != 0 {
		return nil, fmt.Errorf("conv2d: channels (%d -> %d) not divisible by groups %d",
			inChannels, outChannels, groups)
	}
	weight, err := NewParameter("weight", tensor.Shape{outChannels, inChannels / groups, kernelSize, kernelSize})
	if err != nil {
		return nil, err
	}
	bias, err := NewParameter("bias", tensor.Shape{outChannels})
	if err != nil {
		return nil, err
	}
	return &Conv2D{
		InChannels:  inChannels,
		OutChannels: outChannels,
		KernelSize:  kernelSize,
		Stride:      stride,
		Padding:     padding,
		Groups:      groups,
		weight:      weight,
		bias:        bias,
	}, nil
}

// Weight returns the kernel parameter.
func (c *Conv2D) Weight() *Parameter { return c.weight }

// Bias returns the bias parameter.
func (c *Conv2D) Bias() *Parameter { return c.bias }

// Trace emits a Conv node and computes the static output shape.
func (c *Conv2D) Trace(tr *Tracer, input Value) (Value, error) {
	if len(input.Shape) != 4 {
		return Value{}, fmt.Errorf("conv2d: want 4D NCHW input, got shape %s", input.Shape)
	}
	if input.Shape[1] != c.InChannels {
		return Value{}, fmt.Errorf("conv2d: input has %d channels, want %d", input.Shape[1], c.InChannels)
	}
	outH := (input.Shape[2]+2*c.Padding-c.KernelSize)/c.Stride + 1
	outW := (input.Shape[3]+2*c.Padding-c.KernelSize)/c.Stride + 1
	if outH <= 0 || outW <= 0 {
		return Value{}, fmt.Errorf("conv2d: input %s too small for kernel %d stride %d pad %d",
			input.Shape, c.KernelSize, c.Stride, c.Padding)
	}

	w := tr.Param("weight", c.weight.Data)
	b := tr.Param("bias", c.bias.Data)
	out := tr.Node("Conv",
		[]string{input.Name, w, b},
		[]onnx.AttributeProto{
			AttrInts("dilations", 1, 1),
			AttrInt("group", int64(c.Groups)),
			AttrInts("kernel_shape", int64(c.KernelSize), int64(c.KernelSize)),
			AttrInts("pads", int64(c.Padding), int64(c.Padding), int64(c.Padding), int64(c.Padding)),
			AttrInts("strides", int64(c.Stride), int64(c.Stride)),
		},
		tensor.Shape{input.Shape[0], c.OutChannels, outH, outW})
	return out, nil
}

// StateDict exposes the kernel and bias.
func (c *Conv2D) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight": c.weight.Data,
		"bias":   c.bias.Data,
	}
}

// LoadStateDict replaces the kernel and bias.
func (c *Conv2D) LoadStateDict(params map[string]*tensor.RawTensor) error {
	return loadParams(params, map[string]*Parameter{
		"weight": c.weight,
		"bias":   c.bias,
	})
}
