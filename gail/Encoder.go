package gail

import (
	"fmt"

	"github.com/adversarial-rl/gail/network"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// encoder is the discriminator's scoring network: two hidden dense
// layers with swish activations, an optional variational bottleneck,
// and a sigmoid estimate head. One encoder instance owns one
// parameter set. Weight sharing between the expert, policy and
// interpolated passes is structural: forward is simply called once
// per stream on the same instance, so there is no reuse flag that
// could be gotten wrong.
type encoder struct {
	g     *G.ExprGraph
	h1    *network.FCLayer
	h2    *network.FCLayer
	zMean *network.FCLayer // nil unless the bottleneck is enabled
	sigma *G.Node          // (1 x latent) learned scale, nil likewise
	head  *network.FCLayer

	useActions bool
	useVail    bool
}

// encoderPass records the nodes of one forward invocation that later
// graph construction needs: the estimate, the latent mean, the raw
// concatenated input, and the hidden pre-activations used when the
// pass's input gradient is assembled explicitly.
type encoderPass struct {
	estimate *G.Node // (batch x 1), sigmoid output
	zMean    *G.Node // (batch x latent), nil unless bottleneck enabled
	input    *G.Node // raw concatenated input of this pass

	pre1, pre2 *G.Node
}

// newEncoder constructs the encoder's parameters on g for inputs of
// the given widths. The latent scale vector starts at one so the
// initial bottleneck is close to deterministic.
func newEncoder(g *G.ExprGraph, conf Config, stateDims, actionDims int,
	init, latentInit G.InitWFn) (*encoder, error) {
	inputDims := stateDims
	if conf.UseActions {
		// termination flag contributes one column
		inputDims += actionDims + 1
	}
	if inputDims <= 0 {
		return nil, fmt.Errorf("newencoder: encoder input has zero width")
	}

	h1, err := network.NewFCLayer(g, inputDims, conf.HiddenSize, true, init,
		network.Swish(), "gail_d_hidden_1")
	if err != nil {
		return nil, fmt.Errorf("newencoder: %v", err)
	}
	h2, err := network.NewFCLayer(g, conf.HiddenSize, conf.HiddenSize, true,
		init, network.Swish(), "gail_d_hidden_2")
	if err != nil {
		return nil, fmt.Errorf("newencoder: %v", err)
	}

	var zMean *network.FCLayer
	var sigma *G.Node
	headIn := conf.HiddenSize
	if conf.UseVail {
		zMean, err = network.NewFCLayer(g, conf.HiddenSize, conf.LatentSize,
			true, latentInit, network.Nil(), "gail_z_mean")
		if err != nil {
			return nil, fmt.Errorf("newencoder: %v", err)
		}
		sigma = G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(1, conf.LatentSize),
			G.WithInit(G.Ones()),
			G.WithName("gail_z_sigma"),
		)
		headIn = conf.LatentSize
	}

	head, err := network.NewFCLayer(g, headIn, 1, true, init,
		network.Sigmoid(), "gail_d_estimate")
	if err != nil {
		return nil, fmt.Errorf("newencoder: %v", err)
	}

	return &encoder{
		g:          g,
		h1:         h1,
		h2:         h2,
		zMean:      zMean,
		sigma:      sigma,
		head:       head,
		useActions: conf.UseActions,
		useVail:    conf.UseVail,
	}, nil
}

// forward runs one stream through the encoder. The state node is the
// encoded observation; action and done are ignored unless
// action-conditioning is enabled. With the bottleneck enabled, noise
// is a (batch x latent) standard-normal sample and noiseScale a
// scalar gating factor; passing a nil noise node evaluates the
// bottleneck at its mean.
func (e *encoder) forward(state, action, done, noise,
	noiseScale *G.Node) (*encoderPass, error) {
	input := state
	if e.useActions {
		var err error
		input, err = G.Concat(1, state, action, done)
		if err != nil {
			return nil, fmt.Errorf("forward: could not concatenate "+
				"encoder input: %v", err)
		}
	}

	pre1, out, err := e.h1.FwdPre(input)
	if err != nil {
		return nil, fmt.Errorf("forward: hidden layer 1: %v", err)
	}
	pre2, out, err := e.h2.FwdPre(out)
	if err != nil {
		return nil, fmt.Errorf("forward: hidden layer 2: %v", err)
	}

	var zMeanNode *G.Node
	if e.useVail {
		zMeanNode, err = e.zMean.Fwd(out)
		if err != nil {
			return nil, fmt.Errorf("forward: latent projection: %v", err)
		}

		// z = mean + sigma * noise * noiseScale
		out = zMeanNode
		if noise != nil {
			scaled := G.Must(G.BroadcastHadamardProd(noise, e.sigma, nil,
				[]byte{0}))
			scaled = G.Must(G.Mul(noiseScale, scaled))
			out = G.Must(G.Add(zMeanNode, scaled))
		}
	}

	_, estimate, err := e.head.FwdPre(out)
	if err != nil {
		return nil, fmt.Errorf("forward: estimate head: %v", err)
	}

	return &encoderPass{
		estimate: estimate,
		zMean:    zMeanNode,
		input:    input,
		pre1:     pre1,
		pre2:     pre2,
	}, nil
}

// inputGradient builds the gradient of a pass's estimate with respect
// to the pass's raw concatenated input as an explicit graph
// expression, by reverse accumulation through the dense stack. The
// expression depends on the encoder weights, so a loss term built
// from it backpropagates into the parameters with ordinary
// first-order autodiff; Gorgonia offers no higher-order Grad that
// could differentiate through its own derivative nodes.
func (e *encoder) inputGradient(p *encoderPass) (*G.Node, error) {
	one := G.NewConstant(1.0)

	// Sigmoid head: d estimate / d head input
	delta := G.Must(G.HadamardProd(p.estimate,
		G.Must(G.Sub(one, p.estimate))))
	delta = G.Must(G.Mul(delta, G.Must(G.Transpose(e.head.Weights()))))

	if e.useVail {
		// The noise term is constant with respect to the input, so
		// only the mean projection carries gradient.
		delta = G.Must(G.Mul(delta, G.Must(G.Transpose(e.zMean.Weights()))))
	}

	delta = G.Must(G.HadamardProd(delta, swishGrad(p.pre2)))
	delta = G.Must(G.Mul(delta, G.Must(G.Transpose(e.h2.Weights()))))

	delta = G.Must(G.HadamardProd(delta, swishGrad(p.pre1)))
	grad, err := G.Mul(delta, G.Must(G.Transpose(e.h1.Weights())))
	if err != nil {
		return nil, fmt.Errorf("inputgradient: %v", err)
	}
	return grad, nil
}

// swishGrad builds the elementwise derivative of swish at the
// pre-activation node: sigmoid(x) * (1 + x * (1 - sigmoid(x))).
func swishGrad(pre *G.Node) *G.Node {
	one := G.NewConstant(1.0)
	sig := G.Must(G.Sigmoid(pre))
	inner := G.Must(G.HadamardProd(pre, G.Must(G.Sub(one, sig))))
	return G.Must(G.HadamardProd(sig, G.Must(G.Add(one, inner))))
}

// Learnables returns the learnable nodes of the encoder
func (e *encoder) Learnables() G.Nodes {
	learnables := e.h1.Learnables()
	learnables = append(learnables, e.h2.Learnables()...)
	if e.useVail {
		learnables = append(learnables, e.zMean.Learnables()...)
		learnables = append(learnables, e.sigma)
	}
	return append(learnables, e.head.Learnables()...)
}

// cloneTo clones the encoder's layers to a new graph. Weight values
// are not copied.
func (e *encoder) cloneTo(g *G.ExprGraph) *encoder {
	clone := &encoder{
		g:          g,
		h1:         e.h1.CloneTo(g),
		h2:         e.h2.CloneTo(g),
		head:       e.head.CloneTo(g),
		useActions: e.useActions,
		useVail:    e.useVail,
	}
	if e.useVail {
		clone.zMean = e.zMean.CloneTo(g)
		clone.sigma = e.sigma.CloneTo(g)
	}
	return clone
}
