package gail

import "math"

// Dual-ascent hyperparameters of the bottleneck coefficient: the
// update step size and the target mutual information level.
const (
	betaStepSize            = 0.0005
	mutualInformationTarget = 0.5
)

// betaController holds the adaptive coefficient on the bottleneck's
// KL term. The coefficient is deliberately not part of the solver's
// parameter set: it is adjusted only through update, between
// optimizer steps, from an externally measured KL divergence.
type betaController struct {
	beta float64
}

func newBetaController() *betaController {
	return &betaController{beta: 1.0}
}

// update performs one dual-ascent step on the coefficient, driving
// the measured KL divergence toward the mutual information target.
// The coefficient is floored at epsilon so it can always recover.
func (b *betaController) update(kl float64) float64 {
	b.beta = math.Max(b.beta+betaStepSize*(kl-mutualInformationTarget),
		Epsilon)
	return b.beta
}

func (b *betaController) value() float64 {
	return b.beta
}
