// Package gail implements the discriminator subsystem of generative
// adversarial imitation learning: a scoring network that learns to
// tell expert demonstration samples from policy samples, and the
// intrinsic reward derived from its judgment. The discriminator
// optionally carries a variational information bottleneck (VAIL) with
// an adaptively weighted KL term, and a gradient penalty encouraging
// unit-norm input gradients.
//
// The package owns only the numeric graph and its optimization step.
// Environment stepping, rollout collection and update scheduling
// belong to the host training loop, which must serialize calls into a
// Discriminator.
package gail

import (
	"fmt"

	"github.com/adversarial-rl/gail/initwfn"
	"github.com/adversarial-rl/gail/network"
	"github.com/adversarial-rl/gail/solver"
	"github.com/adversarial-rl/gail/spec"
	"github.com/adversarial-rl/gail/utils/floatutils"
	"github.com/adversarial-rl/gail/utils/op"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Epsilon stabilizes logarithms, square roots and the bottleneck
// coefficient floor throughout the discriminator.
const Epsilon = 1e-7

// Normalized vector observations are clipped to this many standard
// deviations.
const obsClip = 5.0

// StepResult reports the diagnostic scalars of one optimizer step and
// the intrinsic rewards of the policy batch the step consumed.
type StepResult struct {
	// Loss is the combined scalar that was minimized
	Loss float64

	// DiscriminatorLoss is the adversarial cross-entropy term
	DiscriminatorLoss float64

	// KL is the measured KL divergence of the latent codes against
	// the standard normal prior. Zero when the bottleneck is
	// disabled. Feed this to UpdateBeta.
	KL float64

	// GradientPenalty is the unweighted Lipschitz penalty term. Zero
	// when the penalty is disabled.
	GradientPenalty float64

	// MeanExpertEstimate and MeanPolicyEstimate are the batch-mean
	// realness estimates of the two streams
	MeanExpertEstimate float64
	MeanPolicyEstimate float64

	// Rewards holds the per-sample intrinsic reward of the policy
	// batch, one value per sample
	Rewards []float64
}

// Discriminator estimates the probability that a sample came from
// expert demonstrations rather than from the policy, and exposes the
// intrinsic reward -log(1 - estimate + epsilon) to the training loop.
//
// A Discriminator is not safe for concurrent use: the host training
// loop must serialize Step, UpdateBeta and Rewards.
type Discriminator struct {
	conf       Config
	actions    spec.ActionSpace
	obs        spec.Observation
	normalizer spec.Normalizer

	g           *G.ExprGraph
	expert      stream
	policy      stream
	visEncoders []*network.VisualEncoder
	enc         *encoder

	normMean, normStd        *G.Node
	noiseExpert, noisePolicy *G.Node
	noiseScale               *G.Node
	betaNode                 *G.Node
	lossNode                 *G.Node
	penalty                  *gradientPenalty

	learnables G.Nodes
	model      []G.ValueGrad
	vm         G.VM
	slv        *solver.Solver
	beta       *betaController

	normal  distuv.Normal
	uniform distuv.Uniform

	lossVal, discLossVal, klVal, penaltyVal G.Value
	meanExpertVal, meanPolicyVal            G.Value
	rewardVal                               G.Value

	eval *evaluator
}

// New constructs a Discriminator for a policy with the given action
// and observation layout. The normalizer may be nil, in which case
// vector observations are used raw; when present, its statistics are
// read once per update and applied identically to both streams.
func New(actions spec.ActionSpace, obs spec.Observation,
	normalizer spec.Normalizer, conf Config) (*Discriminator, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if err := actions.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if err := obs.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if normalizer != nil && obs.VecDims == 0 {
		return nil, fmt.Errorf("new: normalizer given but the " +
			"observation layout has no vector component")
	}

	hidden, err := hiddenInit(conf)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	latent, err := latentInit(conf)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	d := &Discriminator{
		conf:       conf,
		actions:    actions,
		obs:        obs,
		normalizer: normalizer,
		g:          G.NewGraph(),
		beta:       newBetaController(),
		normal: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   rand.NewSource(conf.Seed),
		},
		uniform: distuv.Uniform{
			Min: 0,
			Max: 1,
			Src: rand.NewSource(conf.Seed + 1),
		},
	}

	if normalizer != nil {
		d.normMean = G.NewMatrix(
			d.g,
			tensor.Float64,
			G.WithShape(1, obs.VecDims),
			G.WithInit(G.Zeroes()),
			G.WithName("obs_norm_mean"),
		)
		d.normStd = G.NewMatrix(
			d.g,
			tensor.Float64,
			G.WithShape(1, obs.VecDims),
			G.WithInit(G.Ones()),
			G.WithName("obs_norm_std"),
		)
	}

	// One visual encoder per stream index, shared between the expert
	// and policy passes
	for i, res := range obs.Visual {
		enc, err := network.NewVisualEncoder(d.g, res.Height, res.Width,
			res.Channels, conf.EncodingSize, hidden,
			fmt.Sprintf("gail_visual_%v", i))
		if err != nil {
			return nil, fmt.Errorf("new: visual stream %v: %v", i, err)
		}
		d.visEncoders = append(d.visEncoders, enc)
	}

	encodedExpert, err := d.buildStream(&d.expert, "expert")
	if err != nil {
		return nil, fmt.Errorf("new: expert stream: %v", err)
	}
	encodedPolicy, err := d.buildStream(&d.policy, "policy")
	if err != nil {
		return nil, fmt.Errorf("new: policy stream: %v", err)
	}

	stateDims := encodedExpert.Shape()[1]
	d.enc, err = newEncoder(d.g, conf, stateDims, actions.TotalDims(),
		hidden, latent)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	if conf.UseVail {
		d.noiseExpert = d.noisePlaceholder("noise_expert")
		d.noisePolicy = d.noisePlaceholder("noise_policy")
	}
	d.noiseScale = G.NewScalar(
		d.g,
		tensor.Float64,
		G.WithValue(0.0),
		G.WithName("gail_noise_level"),
	)

	expertPass, err := d.enc.forward(encodedExpert, d.expert.action,
		d.expert.done, d.noiseExpert, d.noiseScale)
	if err != nil {
		return nil, fmt.Errorf("new: expert pass: %v", err)
	}
	policyPass, err := d.enc.forward(encodedPolicy, d.policy.action,
		d.policy.done, d.noisePolicy, d.noiseScale)
	if err != nil {
		return nil, fmt.Errorf("new: policy pass: %v", err)
	}

	if err := d.createLoss(encodedExpert, encodedPolicy, expertPass,
		policyPass); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	d.learnables = d.collectLearnables()
	if _, err := G.Grad(d.lossNode, d.learnables...); err != nil {
		return nil, fmt.Errorf("new: could not construct gradient: %v", err)
	}
	for _, node := range d.learnables {
		d.model = append(d.model, node)
	}
	d.vm = G.NewTapeMachine(d.g, G.BindDualValues(d.learnables...))

	d.slv = conf.Solver
	if d.slv == nil {
		d.slv, err = solver.NewDefaultAdam(conf.LearningRate, conf.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("new: could not construct solver: %v", err)
		}
	}

	return d, nil
}

// hiddenInit returns the weight initializer of the dense and
// convolutional layers.
func hiddenInit(conf Config) (G.InitWFn, error) {
	if conf.Init != nil {
		return conf.Init.InitWFn(), nil
	}
	wfn, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		return nil, err
	}
	return wfn.InitWFn(), nil
}

// latentInit returns the weight initializer of the latent mean
// projection, scaled down so the latent code starts near the prior.
func latentInit(conf Config) (G.InitWFn, error) {
	if conf.LatentInit != nil {
		return conf.LatentInit.InitWFn(), nil
	}
	wfn, err := initwfn.NewGaussian(0.0, 0.01)
	if err != nil {
		return nil, err
	}
	return wfn.InitWFn(), nil
}

// buildStream creates the placeholder nodes of one training stream
// and returns the stream's encoded observation.
func (d *Discriminator) buildStream(s *stream, name string) (*G.Node,
	error) {
	return d.buildStreamOn(d.g, d.visEncoders, d.normMean, d.normStd,
		d.conf.BatchSize, s, name)
}

// buildStreamOn creates the placeholder nodes of one stream on the
// given graph and returns the stream's encoded observation: the
// normalized vector features first, then each visual stream's
// embedding in index order. The concatenation order fixes the channel
// alignment that the gradient penalty's interpolation relies on.
func (d *Discriminator) buildStreamOn(g *G.ExprGraph,
	visEncoders []*network.VisualEncoder, normMean, normStd *G.Node,
	batch int, s *stream, name string) (*G.Node, error) {
	var parts []*G.Node

	if d.obs.VecDims > 0 {
		s.obs = G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(batch, d.obs.VecDims),
			G.WithInit(G.Zeroes()),
			G.WithName(name+"_obs"),
		)
		encoded := s.obs
		if d.normalizer != nil {
			var err error
			encoded, err = normalize(s.obs, normMean, normStd)
			if err != nil {
				return nil, fmt.Errorf("buildstream: %v", err)
			}
		}
		parts = append(parts, encoded)
	}

	for i, res := range d.obs.Visual {
		input := G.NewTensor(
			g,
			tensor.Float64,
			4,
			G.WithShape(batch, res.Channels, res.Height, res.Width),
			G.WithInit(G.Zeroes()),
			G.WithName(fmt.Sprintf("%v_visual_%v", name, i)),
		)
		s.visual = append(s.visual, input)

		embedding, err := visEncoders[i].Fwd(input)
		if err != nil {
			return nil, fmt.Errorf("buildstream: visual stream %v: %v", i,
				err)
		}
		parts = append(parts, embedding)
	}

	if d.conf.UseActions {
		s.action = G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(batch, d.actions.TotalDims()),
			G.WithInit(G.Zeroes()),
			G.WithName(name+"_action"),
		)
		s.done = G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(batch, 1),
			G.WithInit(G.Zeroes()),
			G.WithName(name+"_done"),
		)
	}

	if len(parts) > 1 {
		return G.Concat(1, parts...)
	}
	return parts[0], nil
}

// normalize applies the policy model's observation normalization to a
// vector observation node, clipping to obsClip standard deviations.
func normalize(obs, mean, std *G.Node) (*G.Node, error) {
	centered, err := G.BroadcastSub(obs, mean, nil, []byte{0})
	if err != nil {
		return nil, err
	}
	scaled, err := G.BroadcastHadamardDiv(centered, std, nil, []byte{0})
	if err != nil {
		return nil, err
	}
	return op.Clip(scaled, -obsClip, obsClip)
}

// noisePlaceholder creates one pass's bottleneck noise input.
func (d *Discriminator) noisePlaceholder(name string) *G.Node {
	return G.NewMatrix(
		d.g,
		tensor.Float64,
		G.WithShape(d.conf.BatchSize, d.conf.LatentSize),
		G.WithInit(G.Zeroes()),
		G.WithName(name),
	)
}

// collectLearnables gathers every parameter the solver updates, in a
// fixed order mirrored by the evaluation graph: visual encoders in
// stream order, then the scoring encoder. The bottleneck coefficient
// is deliberately absent.
func (d *Discriminator) collectLearnables() G.Nodes {
	var learnables G.Nodes
	for _, enc := range d.visEncoders {
		learnables = append(learnables, enc.Learnables()...)
	}
	return append(learnables, d.enc.Learnables()...)
}

// Step performs one atomic forward+backward+apply pass over an
// expert and a policy batch, returning the step's diagnostics and the
// policy batch's intrinsic rewards. The noiseScale argument gates the
// bottleneck's sampling noise and is clamped to [0, 1]; it is ignored
// when the bottleneck is disabled. Callers must not invoke Step
// concurrently.
func (d *Discriminator) Step(expert, policy Batch,
	noiseScale float64) (*StepResult, error) {
	if err := d.feed(&d.expert, expert, "expert",
		d.conf.BatchSize); err != nil {
		return nil, fmt.Errorf("step: %v", err)
	}
	if err := d.feed(&d.policy, policy, "policy",
		d.conf.BatchSize); err != nil {
		return nil, fmt.Errorf("step: %v", err)
	}
	if err := d.feedNormStats(d.normMean, d.normStd); err != nil {
		return nil, fmt.Errorf("step: %v", err)
	}

	if d.conf.UseVail {
		if err := d.feedNoise(d.noiseExpert); err != nil {
			return nil, fmt.Errorf("step: %v", err)
		}
		if err := d.feedNoise(d.noisePolicy); err != nil {
			return nil, fmt.Errorf("step: %v", err)
		}
		beta := d.beta.value()
		if err := G.Let(d.betaNode, beta); err != nil {
			return nil, fmt.Errorf("step: could not set beta: %v", err)
		}
	}
	if err := G.Let(d.noiseScale,
		floatutils.Clip(noiseScale, 0, 1)); err != nil {
		return nil, fmt.Errorf("step: could not set noise level: %v", err)
	}

	if d.penalty != nil {
		if err := d.penalty.feed(d); err != nil {
			return nil, fmt.Errorf("step: %v", err)
		}
	}

	if err := d.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("step: forward pass: %v", err)
	}
	if err := d.slv.Step(d.model); err != nil {
		return nil, fmt.Errorf("step: solver: %v", err)
	}
	d.vm.Reset()

	return d.result(), nil
}

// result collects the diagnostic read-outs of the last run.
func (d *Discriminator) result() *StepResult {
	res := &StepResult{
		Loss:               d.lossVal.Data().(float64),
		DiscriminatorLoss:  d.discLossVal.Data().(float64),
		MeanExpertEstimate: d.meanExpertVal.Data().(float64),
		MeanPolicyEstimate: d.meanPolicyVal.Data().(float64),
	}
	if d.conf.UseVail {
		res.KL = d.klVal.Data().(float64)
	}
	if d.penalty != nil {
		res.GradientPenalty = d.penaltyVal.Data().(float64)
	}

	rewards := d.rewardVal.Data().([]float64)
	res.Rewards = make([]float64, len(rewards))
	copy(res.Rewards, rewards)
	return res
}

// feedNormStats binds the normalizer's current statistics to the
// given mean and std placeholder nodes, which may belong to either
// the training or the evaluation graph.
func (d *Discriminator) feedNormStats(meanNode, stdNode *G.Node) error {
	if d.normalizer == nil {
		return nil
	}

	mean := d.normalizer.Mean()
	std := d.normalizer.Std()
	if len(mean) != d.obs.VecDims || len(std) != d.obs.VecDims {
		return fmt.Errorf("feednormstats: normalizer statistics have "+
			"wrong dimensionality \n\twant(%v) \n\thave(%v, %v)",
			d.obs.VecDims, len(mean), len(std))
	}

	err := G.Let(meanNode, tensor.New(
		tensor.WithShape(1, d.obs.VecDims),
		tensor.WithBacking(mean),
	))
	if err != nil {
		return fmt.Errorf("feednormstats: mean: %v", err)
	}
	err = G.Let(stdNode, tensor.New(
		tensor.WithShape(1, d.obs.VecDims),
		tensor.WithBacking(std),
	))
	if err != nil {
		return fmt.Errorf("feednormstats: std: %v", err)
	}
	return nil
}

// feedNoise fills a noise placeholder with standard-normal samples.
func (d *Discriminator) feedNoise(node *G.Node) error {
	shape := node.Shape()
	backing := make([]float64, shape.TotalSize())
	for i := range backing {
		backing[i] = d.normal.Rand()
	}
	return G.Let(node, tensor.New(
		tensor.WithShape(shape...),
		tensor.WithBacking(backing),
	))
}

// UpdateBeta performs one dual-ascent step on the bottleneck
// coefficient from an externally measured KL divergence, returning
// the new coefficient. It does not touch the network parameters and
// may be called before or after Step at the host's chosen cadence.
func (d *Discriminator) UpdateBeta(kl float64) float64 {
	return d.beta.update(kl)
}

// Beta returns the current bottleneck coefficient.
func (d *Discriminator) Beta() float64 {
	return d.beta.value()
}

// Learnables returns the parameters the solver updates.
func (d *Discriminator) Learnables() G.Nodes {
	return d.learnables
}

// Model returns the learnable nodes with their gradients.
func (d *Discriminator) Model() []G.ValueGrad {
	return d.model
}

// Graph returns the discriminator's computational graph.
func (d *Discriminator) Graph() *G.ExprGraph {
	return d.g
}

// Close releases the discriminator's virtual machines.
func (d *Discriminator) Close() error {
	if d.eval != nil {
		if err := d.eval.vm.Close(); err != nil {
			return err
		}
	}
	return d.vm.Close()
}
