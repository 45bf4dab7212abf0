package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Filter sizes and strides of the two convolutional layers of a
// VisualEncoder.
const (
	conv1Filters = 16
	conv1Kernel  = 8
	conv1Stride  = 4

	conv2Filters = 32
	conv2Kernel  = 4
	conv2Stride  = 2
)

// VisualEncoder implements a small convolutional encoder for one
// visual observation stream: two strided convolutions followed by a
// fully connected projection to the encoding size, all with swish
// activations. A single VisualEncoder instance owns one parameter
// set; calling Fwd on several input nodes of the same graph runs all
// of them through literally the same weights, which is how the expert
// and policy streams share their visual encoders.
type VisualEncoder struct {
	g        *G.ExprGraph
	conv1    *G.Node
	conv2    *G.Node
	fc       *FCLayer
	height   int
	width    int
	channels int
	encoding int
	flat     int
}

// NewVisualEncoder returns a new VisualEncoder on the graph g for
// inputs of the given height, width and channel count, producing
// embeddings of length encoding. Inputs to Fwd must be rank-4 nodes
// in (batch, channels, height, width) order. The name parameter
// prefixes the encoder's node names and must be unique within g.
func NewVisualEncoder(g *G.ExprGraph, height, width, channels,
	encoding int, init G.InitWFn, name string) (*VisualEncoder, error) {
	h1, w1 := convOut(height, conv1Kernel, conv1Stride),
		convOut(width, conv1Kernel, conv1Stride)
	h2, w2 := convOut(h1, conv2Kernel, conv2Stride),
		convOut(w1, conv2Kernel, conv2Stride)
	if h2 <= 0 || w2 <= 0 {
		return nil, fmt.Errorf("newvisualencoder: resolution %vx%v too "+
			"small for the convolutional stack", height, width)
	}

	conv1 := G.NewTensor(
		g,
		tensor.Float64,
		4,
		G.WithShape(conv1Filters, channels, conv1Kernel, conv1Kernel),
		G.WithInit(init),
		G.WithName(name+"_conv1"),
	)
	conv2 := G.NewTensor(
		g,
		tensor.Float64,
		4,
		G.WithShape(conv2Filters, conv1Filters, conv2Kernel, conv2Kernel),
		G.WithInit(init),
		G.WithName(name+"_conv2"),
	)

	flat := conv2Filters * h2 * w2
	fc, err := NewFCLayer(g, flat, encoding, true, init, Swish(),
		name+"_enc")
	if err != nil {
		return nil, fmt.Errorf("newvisualencoder: %v", err)
	}

	return &VisualEncoder{
		g:        g,
		conv1:    conv1,
		conv2:    conv2,
		fc:       fc,
		height:   height,
		width:    width,
		channels: channels,
		encoding: encoding,
		flat:     flat,
	}, nil
}

// convOut returns the spatial output size of an unpadded convolution.
func convOut(in, kernel, stride int) int {
	return (in-kernel)/stride + 1
}

// Fwd runs the input node through the encoder, returning a
// (batch x encoding) embedding node.
func (v *VisualEncoder) Fwd(input *G.Node) (*G.Node, error) {
	if len(input.Shape()) != 4 {
		return nil, fmt.Errorf("fwd: visual input must be rank 4 "+
			"\n\thave shape %v", input.Shape())
	}

	out, err := G.Conv2d(input, v.conv1,
		tensor.Shape{conv1Kernel, conv1Kernel}, []int{0, 0},
		[]int{conv1Stride, conv1Stride}, []int{1, 1})
	if err != nil {
		return nil, fmt.Errorf("fwd: first convolution: %v", err)
	}
	if out, err = Swish().fwd(out); err != nil {
		return nil, err
	}

	out, err = G.Conv2d(out, v.conv2,
		tensor.Shape{conv2Kernel, conv2Kernel}, []int{0, 0},
		[]int{conv2Stride, conv2Stride}, []int{1, 1})
	if err != nil {
		return nil, fmt.Errorf("fwd: second convolution: %v", err)
	}
	if out, err = Swish().fwd(out); err != nil {
		return nil, err
	}

	batch := input.Shape()[0]
	out, err = G.Reshape(out, tensor.Shape{batch, v.flat})
	if err != nil {
		return nil, fmt.Errorf("fwd: could not flatten convolution "+
			"output: %v", err)
	}

	return v.fc.Fwd(out)
}

// Encoding returns the length of the embeddings the encoder produces.
func (v *VisualEncoder) Encoding() int {
	return v.encoding
}

// CloneTo clones the VisualEncoder to a new computational graph.
// Weight values are not copied.
func (v *VisualEncoder) CloneTo(g *G.ExprGraph) *VisualEncoder {
	return &VisualEncoder{
		g:        g,
		conv1:    v.conv1.CloneTo(g),
		conv2:    v.conv2.CloneTo(g),
		fc:       v.fc.CloneTo(g),
		height:   v.height,
		width:    v.width,
		channels: v.channels,
		encoding: v.encoding,
		flat:     v.flat,
	}
}

// Learnables returns the learnable nodes of the encoder
func (v *VisualEncoder) Learnables() G.Nodes {
	learnables := G.Nodes{v.conv1, v.conv2}
	return append(learnables, v.fc.Learnables()...)
}
