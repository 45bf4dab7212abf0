package gail

import (
	"fmt"

	"github.com/adversarial-rl/gail/initwfn"
	"github.com/adversarial-rl/gail/solver"
)

// Config describes the construction of a Discriminator. The zero
// value is not usable; start from DefaultConfig.
type Config struct {
	// HiddenSize is the width of the two hidden layers of the
	// discriminator encoder
	HiddenSize int

	// LatentSize is the dimensionality of the variational bottleneck.
	// Ignored unless UseVail is true.
	LatentSize int

	// EncodingSize is the embedding length produced by each visual
	// observation encoder. Ignored when the observation layout has no
	// visual streams.
	EncodingSize int

	// BatchSize is the number of samples per stream in each update.
	// The expert and policy streams use the same batch size.
	BatchSize int

	// LearningRate of the discriminator's solver
	LearningRate float64

	// UseActions determines whether actions and termination flags are
	// included in the discriminator input alongside observations
	UseActions bool

	// UseVail enables the variational information bottleneck
	UseVail bool

	// GradientPenaltyWeight weighs the Lipschitz regularization term.
	// The term is omitted entirely when the weight is not positive.
	GradientPenaltyWeight float64

	// Seed for the noise and interpolation samplers
	Seed uint64

	// Init initializes the encoder's dense and convolutional weights.
	// If nil, Glorot Uniform initialization is used.
	Init *initwfn.InitWFn

	// LatentInit initializes the latent mean projection. If nil, a
	// scaled-down Gaussian initialization is used so that the latent
	// code starts close to the prior.
	LatentInit *initwfn.InitWFn

	// Solver updates the discriminator parameters. If nil, Adam with
	// the configured learning rate is used.
	Solver *solver.Solver
}

// DefaultConfig returns a Config with the usual GAIL discriminator
// hyperparameters for updates of the given batch size.
func DefaultConfig(batchSize int) Config {
	return Config{
		HiddenSize:            128,
		LatentSize:            128,
		EncodingSize:          64,
		BatchSize:             batchSize,
		LearningRate:          3e-4,
		UseActions:            false,
		UseVail:               false,
		GradientPenaltyWeight: 10.0,
	}
}

// Validate returns an error if the configuration cannot describe a
// legal discriminator.
func (c Config) Validate() error {
	if c.HiddenSize <= 0 {
		return fmt.Errorf("validate: hidden size must be positive "+
			"\n\thave(%v)", c.HiddenSize)
	}
	if c.UseVail && c.LatentSize <= 0 {
		return fmt.Errorf("validate: latent size must be positive when "+
			"the bottleneck is enabled \n\thave(%v)", c.LatentSize)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("validate: batch size must be positive "+
			"\n\thave(%v)", c.BatchSize)
	}
	if c.LearningRate <= 0 && c.Solver == nil {
		return fmt.Errorf("validate: learning rate must be positive "+
			"\n\thave(%v)", c.LearningRate)
	}
	return nil
}
