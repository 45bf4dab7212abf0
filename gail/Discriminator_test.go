package gail

import (
	"math"
	"testing"

	"github.com/adversarial-rl/gail/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// gaussianBatch draws a batch of vector observations around mu, with a
// fixed action so that action-conditioned configurations can reuse it.
func gaussianBatch(size, dims int, mu float64, seed uint64) Batch {
	dist := distuv.Normal{Mu: mu, Sigma: 0.2, Src: rand.NewSource(seed)}

	obs := make([]float64, size*dims)
	for i := range obs {
		obs[i] = dist.Rand()
	}
	actions := make([]float64, size)
	for i := range actions {
		actions[i] = mu / 2
	}

	return Batch{
		VectorObs:         obs,
		ContinuousActions: actions,
		Dones:             make([]float64, size),
		Size:              size,
	}
}

func newTestDiscriminator(t *testing.T, conf Config) *Discriminator {
	d, err := New(spec.NewContinuous(1), spec.Observation{VecDims: 3},
		nil, conf)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func TestNewValidates(t *testing.T) {
	actions := spec.NewContinuous(1)
	obs := spec.Observation{VecDims: 3}

	// Illegal configuration
	_, err := New(actions, obs, nil, Config{})
	assert.Error(t, err)

	// Illegal action space
	conf := DefaultConfig(8)
	_, err = New(spec.NewContinuous(0), obs, nil, conf)
	assert.Error(t, err)

	// Illegal observation layout
	_, err = New(actions, spec.Observation{}, nil, conf)
	assert.Error(t, err)

	// A normalizer requires a vector observation component
	norm, err := spec.NewRunningMeanStd(3)
	require.NoError(t, err)
	visualOnly := spec.Observation{
		Visual: []spec.Resolution{{Height: 36, Width: 36, Channels: 1}},
	}
	_, err = New(actions, visualOnly, norm, conf)
	assert.Error(t, err)
}

func TestStepSeparatesDistributions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping training test in short mode")
	}

	conf := DefaultConfig(16)
	conf.HiddenSize = 32
	conf.LearningRate = 1e-3
	conf.Seed = 42
	d := newTestDiscriminator(t, conf)

	var first, last *StepResult
	for i := 0; i < 200; i++ {
		expert := gaussianBatch(16, 3, 1.0, uint64(2*i))
		policy := gaussianBatch(16, 3, -1.0, uint64(2*i+1))

		res, err := d.Step(expert, policy, 0)
		require.NoError(t, err)

		require.True(t, finite(res.Loss))
		assert.Greater(t, res.MeanExpertEstimate, 0.0)
		assert.Less(t, res.MeanExpertEstimate, 1.0)
		assert.Greater(t, res.MeanPolicyEstimate, 0.0)
		assert.Less(t, res.MeanPolicyEstimate, 1.0)
		require.Len(t, res.Rewards, 16)

		if first == nil {
			first = res
		}
		last = res
	}

	// The two easily separable distributions must pull the estimates
	// apart and shrink the adversarial loss
	assert.Greater(t, last.MeanExpertEstimate, last.MeanPolicyEstimate)
	assert.Less(t, last.DiscriminatorLoss, first.DiscriminatorLoss)

	t.Logf("expert estimate: %v -> %v", first.MeanExpertEstimate,
		last.MeanExpertEstimate)
	t.Logf("policy estimate: %v -> %v", first.MeanPolicyEstimate,
		last.MeanPolicyEstimate)
}

func TestStepIdenticalBatchesGiveIdenticalEstimates(t *testing.T) {
	conf := DefaultConfig(8)
	conf.Seed = 42
	d := newTestDiscriminator(t, conf)

	batch := gaussianBatch(8, 3, 0.5, 7)
	res, err := d.Step(batch, batch, 0)
	require.NoError(t, err)

	// One shared parameter set: identical inputs on both streams must
	// produce identical estimates
	assert.InDelta(t, res.MeanExpertEstimate, res.MeanPolicyEstimate,
		1e-12)
}

func TestStepRewardsMatchEstimates(t *testing.T) {
	conf := DefaultConfig(8)
	conf.Seed = 42
	d := newTestDiscriminator(t, conf)

	res, err := d.Step(gaussianBatch(8, 3, 1.0, 1),
		gaussianBatch(8, 3, -1.0, 2), 0)
	require.NoError(t, err)

	for _, r := range res.Rewards {
		require.True(t, finite(r))
		// -log(1 - estimate + eps) with estimate in (0, 1) is bounded
		// below by -log(1 + eps)
		assert.Greater(t, r, -1e-6)
	}
}

func TestStepRejectsWrongBatchSize(t *testing.T) {
	conf := DefaultConfig(8)
	d := newTestDiscriminator(t, conf)

	_, err := d.Step(gaussianBatch(4, 3, 1.0, 1),
		gaussianBatch(8, 3, -1.0, 2), 0)
	assert.Error(t, err)
}

func TestRewards(t *testing.T) {
	conf := DefaultConfig(8)
	conf.Seed = 42
	d := newTestDiscriminator(t, conf)

	_, err := d.Step(gaussianBatch(8, 3, 1.0, 1),
		gaussianBatch(8, 3, -1.0, 2), 0)
	require.NoError(t, err)

	// Scoring accepts batch sizes other than the training batch size
	batch := gaussianBatch(5, 3, -1.0, 3)
	first, err := d.Rewards(batch)
	require.NoError(t, err)
	require.Len(t, first, 5)
	for _, r := range first {
		require.True(t, finite(r))
	}

	// Scoring must not change parameters: repeated calls agree exactly
	second, err := d.Rewards(batch)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// The evaluation graph is rebuilt when the batch size changes
	larger, err := d.Rewards(gaussianBatch(12, 3, -1.0, 4))
	require.NoError(t, err)
	assert.Len(t, larger, 12)
}

func TestVailStep(t *testing.T) {
	conf := DefaultConfig(8)
	conf.HiddenSize = 32
	conf.LatentSize = 16
	conf.UseVail = true
	conf.Seed = 42
	d := newTestDiscriminator(t, conf)

	var res *StepResult
	var err error
	for i := 0; i < 10; i++ {
		res, err = d.Step(gaussianBatch(8, 3, 1.0, uint64(2*i)),
			gaussianBatch(8, 3, -1.0, uint64(2*i+1)), 1.0)
		require.NoError(t, err)

		require.True(t, finite(res.KL))
		// Each latent dimension contributes exp(x) - x - 1 >= 0 plus
		// half the squared means, so the divergence is nonnegative
		assert.GreaterOrEqual(t, res.KL, 0.0)
	}

	before := d.Beta()
	after := d.UpdateBeta(res.KL)
	assert.InDelta(t,
		math.Max(before+betaStepSize*(res.KL-mutualInformationTarget),
			Epsilon),
		after, 1e-12)
	assert.Equal(t, after, d.Beta())
}

func TestVailNoiseScaleOutOfRange(t *testing.T) {
	conf := DefaultConfig(8)
	conf.LatentSize = 16
	conf.UseVail = true
	conf.Seed = 42
	d := newTestDiscriminator(t, conf)

	// Out-of-range gates are clamped rather than rejected
	_, err := d.Step(gaussianBatch(8, 3, 1.0, 1),
		gaussianBatch(8, 3, -1.0, 2), 5.0)
	assert.NoError(t, err)
	_, err = d.Step(gaussianBatch(8, 3, 1.0, 3),
		gaussianBatch(8, 3, -1.0, 4), -1.0)
	assert.NoError(t, err)
}

func TestStepWithNormalizer(t *testing.T) {
	norm, err := spec.NewRunningMeanStd(3)
	require.NoError(t, err)
	require.NoError(t, norm.Update([]float64{1, 2, 3, -1, -2, -3}))

	conf := DefaultConfig(8)
	conf.Seed = 42
	d, err := New(spec.NewContinuous(1), spec.Observation{VecDims: 3},
		norm, conf)
	require.NoError(t, err)
	defer d.Close()

	res, err := d.Step(gaussianBatch(8, 3, 1.0, 1),
		gaussianBatch(8, 3, -1.0, 2), 0)
	require.NoError(t, err)
	assert.True(t, finite(res.Loss))

	// Scoring applies the same statistics
	rewards, err := d.Rewards(gaussianBatch(4, 3, -1.0, 3))
	require.NoError(t, err)
	assert.Len(t, rewards, 4)
}

func TestStepWithContinuousActions(t *testing.T) {
	conf := DefaultConfig(8)
	conf.UseActions = true
	conf.Seed = 42
	d := newTestDiscriminator(t, conf)

	res, err := d.Step(gaussianBatch(8, 3, 1.0, 1),
		gaussianBatch(8, 3, -1.0, 2), 0)
	require.NoError(t, err)
	assert.True(t, finite(res.Loss))
	assert.True(t, finite(res.GradientPenalty))
}

func TestStepWithDiscreteActions(t *testing.T) {
	conf := DefaultConfig(4)
	conf.UseActions = true
	conf.Seed = 42
	d, err := New(spec.NewDiscrete([]int{3, 2}),
		spec.Observation{VecDims: 2}, nil, conf)
	require.NoError(t, err)
	defer d.Close()

	batch := func(mu float64, seed uint64) Batch {
		b := gaussianBatch(4, 2, mu, seed)
		b.ContinuousActions = nil
		b.DiscreteActions = []int{0, 1, 2, 0, 1, 1, 0, 0}
		return b
	}

	res, err := d.Step(batch(1.0, 1), batch(-1.0, 2), 0)
	require.NoError(t, err)
	assert.True(t, finite(res.Loss))
}

func TestStepWithVisualStream(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping convolutional test in short mode")
	}

	obs := spec.Observation{
		VecDims: 2,
		Visual:  []spec.Resolution{{Height: 36, Width: 36, Channels: 1}},
	}
	conf := DefaultConfig(2)
	conf.HiddenSize = 16
	conf.EncodingSize = 8
	conf.Seed = 42

	d, err := New(spec.NewContinuous(1), obs, nil, conf)
	require.NoError(t, err)
	defer d.Close()

	rng := rand.New(rand.NewSource(9))
	batch := func(mu float64, seed uint64) Batch {
		b := gaussianBatch(2, 2, mu, seed)
		frames := make([]float64, 2*36*36)
		for i := range frames {
			frames[i] = rng.Float64()
		}
		b.VisualObs = [][]float64{frames}
		return b
	}

	res, err := d.Step(batch(1.0, 1), batch(-1.0, 2), 0)
	require.NoError(t, err)
	assert.True(t, finite(res.Loss))

	rewards, err := d.Rewards(batch(-1.0, 3))
	require.NoError(t, err)
	assert.Len(t, rewards, 2)
}

func TestGradientPenaltyDisabled(t *testing.T) {
	conf := DefaultConfig(8)
	conf.GradientPenaltyWeight = 0
	conf.Seed = 42
	d := newTestDiscriminator(t, conf)

	res, err := d.Step(gaussianBatch(8, 3, 1.0, 1),
		gaussianBatch(8, 3, -1.0, 2), 0)
	require.NoError(t, err)
	assert.Zero(t, res.GradientPenalty)
	assert.Zero(t, res.KL)
}
