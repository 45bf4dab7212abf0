package gail

import (
	"fmt"

	"github.com/adversarial-rl/gail/network"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// evaluator is an inference-only copy of the discriminator used to
// score policy batches between updates: the policy stream only, the
// bottleneck evaluated at its mean, no solver. Weights are synced
// from the training graph before every evaluation, mirroring the
// behaviour/train network pairing of actor-critic agents.
type evaluator struct {
	g           *G.ExprGraph
	batch       int
	s           stream
	visEncoders []*network.VisualEncoder
	enc         *encoder

	normMean, normStd *G.Node

	learnables G.Nodes
	rewardVal  G.Value
	vm         G.VM
}

// Rewards scores a policy batch with the current discriminator
// weights and returns the per-sample intrinsic reward vector, without
// performing an optimizer step. The batch may be of any size; the
// evaluation graph is rebuilt when the size changes.
func (d *Discriminator) Rewards(policy Batch) ([]float64, error) {
	if d.eval == nil || d.eval.batch != policy.Size {
		if d.eval != nil {
			if err := d.eval.vm.Close(); err != nil {
				return nil, fmt.Errorf("rewards: could not close stale "+
					"evaluator: %v", err)
			}
		}
		eval, err := d.buildEvaluator(policy.Size)
		if err != nil {
			return nil, fmt.Errorf("rewards: %v", err)
		}
		d.eval = eval
	}

	if err := d.eval.sync(d.learnables); err != nil {
		return nil, fmt.Errorf("rewards: %v", err)
	}
	if err := d.feedInto(d.eval, policy); err != nil {
		return nil, fmt.Errorf("rewards: %v", err)
	}

	if err := d.eval.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("rewards: forward pass: %v", err)
	}
	defer d.eval.vm.Reset()

	rewards := d.eval.rewardVal.Data().([]float64)
	out := make([]float64, len(rewards))
	copy(out, rewards)
	return out, nil
}

// buildEvaluator clones the discriminator's parameters onto a fresh
// graph at the given batch size and builds the policy-stream scoring
// pass on it.
func (d *Discriminator) buildEvaluator(batch int) (*evaluator, error) {
	if batch <= 0 {
		return nil, fmt.Errorf("buildevaluator: batch size must be "+
			"positive \n\thave(%v)", batch)
	}

	eval := &evaluator{
		g:     G.NewGraph(),
		batch: batch,
	}
	for _, enc := range d.visEncoders {
		eval.visEncoders = append(eval.visEncoders, enc.CloneTo(eval.g))
	}
	eval.enc = d.enc.cloneTo(eval.g)

	if d.normalizer != nil {
		eval.normMean = G.NewMatrix(
			eval.g,
			tensor.Float64,
			G.WithShape(1, d.obs.VecDims),
			G.WithInit(G.Zeroes()),
			G.WithName("obs_norm_mean"),
		)
		eval.normStd = G.NewMatrix(
			eval.g,
			tensor.Float64,
			G.WithShape(1, d.obs.VecDims),
			G.WithInit(G.Ones()),
			G.WithName("obs_norm_std"),
		)
	}

	encoded, err := d.buildStreamOn(eval.g, eval.visEncoders, eval.normMean,
		eval.normStd, batch, &eval.s, "policy")
	if err != nil {
		return nil, fmt.Errorf("buildevaluator: %v", err)
	}

	// Bottleneck at its mean: no noise on the scoring path
	pass, err := eval.enc.forward(encoded, eval.s.action, eval.s.done, nil,
		nil)
	if err != nil {
		return nil, fmt.Errorf("buildevaluator: %v", err)
	}

	one := G.NewConstant(1.0)
	eps := G.NewConstant(Epsilon)
	reward := G.Must(G.Neg(G.Must(G.Log(G.Must(G.Add(
		G.Must(G.Sub(one, pass.estimate)), eps))))))
	reward, err = G.Reshape(reward, tensor.Shape{batch})
	if err != nil {
		return nil, fmt.Errorf("buildevaluator: could not flatten "+
			"reward: %v", err)
	}
	G.Read(reward, &eval.rewardVal)

	// Same fixed ordering as collectLearnables, so sync can pair
	// nodes by index
	for _, enc := range eval.visEncoders {
		eval.learnables = append(eval.learnables, enc.Learnables()...)
	}
	eval.learnables = append(eval.learnables, eval.enc.Learnables()...)
	if len(eval.learnables) != len(d.learnables) {
		panic("buildevaluator: evaluation graph has a different " +
			"parameter count than the training graph")
	}

	eval.vm = G.NewTapeMachine(eval.g)
	return eval, nil
}

// sync copies the training graph's parameter values into the
// evaluation graph.
func (e *evaluator) sync(source G.Nodes) error {
	for i, learnable := range e.learnables {
		value := source[i].Clone()
		err := G.Let(learnable, value.(*G.Node).Value())
		if err != nil {
			return fmt.Errorf("sync: parameter %v: %v", i, err)
		}
	}
	return nil
}

// feedInto binds a policy batch and the current normalization
// statistics to the evaluator's placeholders.
func (d *Discriminator) feedInto(eval *evaluator, policy Batch) error {
	if err := d.feed(&eval.s, policy, "policy", eval.batch); err != nil {
		return err
	}
	return d.feedNormStats(eval.normMean, eval.normStd)
}
