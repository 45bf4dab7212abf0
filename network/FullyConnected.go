package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// FCLayer implements a fully connected layer of a feed forward neural
// network. The bias is stored as a (1 x out) matrix so that it can be
// broadcast along the batch dimension.
type FCLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// NewFCLayer returns a new fully connected layer of out units on the
// graph g, taking in input features. The layer's weights are
// initialized with init. If bias is false, no bias unit is added. The
// name parameter names the layer's nodes in the graph and must be
// unique within g.
func NewFCLayer(g *G.ExprGraph, in, out int, bias bool, init G.InitWFn,
	act *Activation, name string) (*FCLayer, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("newfclayer: illegal layer size (%v x %v)",
			in, out)
	}

	weights := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(in, out),
		G.WithInit(init),
		G.WithName(name+"_w"),
	)

	var biasNode *G.Node
	if bias {
		biasNode = G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(1, out),
			G.WithInit(G.Zeroes()),
			G.WithName(name+"_b"),
		)
	}

	return &FCLayer{
		weights: weights,
		bias:    biasNode,
		act:     act,
	}, nil
}

// Fwd adds the forward pass of the FCLayer to the computational graph
func (f *FCLayer) Fwd(x *G.Node) (*G.Node, error) {
	_, out, err := f.FwdPre(x)
	return out, err
}

// FwdPre adds the forward pass of the FCLayer to the computational
// graph, returning both the pre-activation node and the activated
// output node. The pre-activation is needed when the derivative of
// the layer with respect to its input is built explicitly, as in the
// discriminator's gradient penalty.
func (f *FCLayer) FwdPre(x *G.Node) (*G.Node, *G.Node, error) {
	if f.weights != nil {
		x = G.Must(G.Mul(x, f.weights))
	}
	if f.bias != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x = G.Must(G.BroadcastAdd(x, f.bias, nil, []byte{0}))
	}
	pre := x
	if f.act == nil || f.act.IsNil() {
		return pre, pre, nil
	}
	out, err := f.act.fwd(pre)
	if err != nil {
		return nil, nil, fmt.Errorf("fwdpre: could not compute "+
			"activation: %v", err)
	}
	return pre, out, nil
}

// CloneTo clones the FCLayer to a new computational graph. Weight
// values are not copied; use Set on the owning model to sync them.
func (f *FCLayer) CloneTo(g *G.ExprGraph) *FCLayer {
	var newWeights, newBias *G.Node

	if f.weights != nil {
		newWeights = f.weights.CloneTo(g)
	}
	if f.bias != nil {
		newBias = f.bias.CloneTo(g)
	}

	return &FCLayer{
		weights: newWeights,
		bias:    newBias,
		act:     f.act,
	}
}

// Activation returns the layer's activation
func (f *FCLayer) Activation() *Activation {
	return f.act
}

// Bias returns the layer's bias node, which may be nil
func (f *FCLayer) Bias() *G.Node {
	return f.bias
}

// Weights returns the layer's weight node
func (f *FCLayer) Weights() *G.Node {
	return f.weights
}

// Learnables returns the learnable nodes of the layer
func (f *FCLayer) Learnables() G.Nodes {
	learnables := G.Nodes{f.weights}
	if f.bias != nil {
		learnables = append(learnables, f.bias)
	}
	return learnables
}
