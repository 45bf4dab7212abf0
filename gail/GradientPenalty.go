package gail

import (
	"fmt"

	"github.com/adversarial-rl/gail/utils/op"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// gradientPenalty holds the interpolation-weight placeholders and the
// penalty node of the Lipschitz regularization term: samples are
// drawn uniformly on the line segments between aligned expert and
// policy inputs, and the discriminator's input-gradient norm at those
// samples is penalized for deviating from 1.
type gradientPenalty struct {
	alphaState  *G.Node
	alphaAction *G.Node // nil unless action-conditioning is enabled
	alphaDone   *G.Node // likewise
	noise       *G.Node // nil unless the bottleneck is enabled
	node        *G.Node // scalar penalty
}

// buildGradientPenalty adds the penalty term to the graph. Each of
// the aligned input tensors gets an independent per-sample
// interpolation weight, broadcast over its feature dimensions. The
// interpolated triple runs through the shared encoder, and the
// gradient of the resulting estimate with respect to the raw
// concatenated input is assembled explicitly (see
// encoder.inputGradient). The norm uses an epsilon-stabilized square
// root so its own gradient is defined at the origin.
func (d *Discriminator) buildGradientPenalty(encExpert,
	encPolicy *G.Node) (*gradientPenalty, error) {
	gp := &gradientPenalty{}
	batch := d.conf.BatchSize

	gp.alphaState = alphaPlaceholder(d.g, batch, "gp_alpha_state")
	interpState, err := lerp(gp.alphaState, encExpert, encPolicy)
	if err != nil {
		return nil, fmt.Errorf("buildgradientpenalty: state: %v", err)
	}

	var interpAction, interpDone *G.Node
	if d.conf.UseActions {
		gp.alphaAction = alphaPlaceholder(d.g, batch, "gp_alpha_action")
		interpAction, err = lerp(gp.alphaAction, d.expert.action,
			d.policy.action)
		if err != nil {
			return nil, fmt.Errorf("buildgradientpenalty: action: %v", err)
		}

		gp.alphaDone = alphaPlaceholder(d.g, batch, "gp_alpha_done")
		interpDone, err = lerp(gp.alphaDone, d.expert.done, d.policy.done)
		if err != nil {
			return nil, fmt.Errorf("buildgradientpenalty: done: %v", err)
		}
	}

	if d.conf.UseVail {
		gp.noise = d.noisePlaceholder("noise_interp")
	}

	pass, err := d.enc.forward(interpState, interpAction, interpDone,
		gp.noise, d.noiseScale)
	if err != nil {
		return nil, fmt.Errorf("buildgradientpenalty: interpolated "+
			"pass: %v", err)
	}

	grad, err := d.enc.inputGradient(pass)
	if err != nil {
		return nil, fmt.Errorf("buildgradientpenalty: %v", err)
	}

	norm, err := op.SafeL2Norm(grad, Epsilon)
	if err != nil {
		return nil, fmt.Errorf("buildgradientpenalty: %v", err)
	}

	dev := G.Must(G.Sub(norm, G.NewConstant(1.0)))
	penalty, err := G.Mean(G.Must(G.Square(dev)))
	if err != nil {
		return nil, fmt.Errorf("buildgradientpenalty: %v", err)
	}
	gp.node = penalty

	return gp, nil
}

// alphaPlaceholder creates a (batch x 1) interpolation-weight input.
func alphaPlaceholder(g *G.ExprGraph, batch int, name string) *G.Node {
	return G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batch, 1),
		G.WithInit(G.Zeroes()),
		G.WithName(name),
	)
}

// lerp builds alpha*expert + (1-alpha)*policy with the per-sample
// alpha broadcast over feature dimensions.
func lerp(alpha, expert, policy *G.Node) (*G.Node, error) {
	oneMinus, err := G.Sub(G.NewConstant(1.0), alpha)
	if err != nil {
		return nil, err
	}

	var left, right *G.Node
	if expert.Shape()[1] == 1 {
		// Single-column inputs already align with alpha
		if left, err = G.HadamardProd(expert, alpha); err != nil {
			return nil, err
		}
		if right, err = G.HadamardProd(policy, oneMinus); err != nil {
			return nil, err
		}
	} else {
		left, err = G.BroadcastHadamardProd(expert, alpha, nil, []byte{1})
		if err != nil {
			return nil, err
		}
		right, err = G.BroadcastHadamardProd(policy, oneMinus, nil,
			[]byte{1})
		if err != nil {
			return nil, err
		}
	}
	return G.Add(left, right)
}

// feed fills the penalty's interpolation weights with fresh uniform
// samples and, when present, its bottleneck noise.
func (gp *gradientPenalty) feed(d *Discriminator) error {
	for _, node := range []*G.Node{gp.alphaState, gp.alphaAction,
		gp.alphaDone} {
		if node == nil {
			continue
		}
		backing := make([]float64, d.conf.BatchSize)
		for i := range backing {
			backing[i] = d.uniform.Rand()
		}
		err := G.Let(node, tensor.New(
			tensor.WithShape(d.conf.BatchSize, 1),
			tensor.WithBacking(backing),
		))
		if err != nil {
			return fmt.Errorf("feed: interpolation weights: %v", err)
		}
	}

	if gp.noise != nil {
		return d.feedNoise(gp.noise)
	}
	return nil
}
