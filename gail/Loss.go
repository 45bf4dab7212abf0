package gail

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// createLoss assembles the combined scalar the solver minimizes: the
// adversarial cross-entropy, the beta-weighted KL term when the
// bottleneck is enabled, and the weighted gradient penalty when its
// weight is positive. It also builds the intrinsic reward node and
// registers all diagnostic read-outs.
func (d *Discriminator) createLoss(encExpert, encPolicy *G.Node,
	expertPass, policyPass *encoderPass) error {
	one := G.NewConstant(1.0)
	eps := G.NewConstant(Epsilon)

	meanExpert := G.Must(G.Mean(expertPass.estimate))
	meanPolicy := G.Must(G.Mean(policyPass.estimate))
	G.Read(meanExpert, &d.meanExpertVal)
	G.Read(meanPolicy, &d.meanPolicyVal)

	// Push expert estimates toward 1 and policy estimates toward 0
	logExpert := G.Must(G.Log(G.Must(G.Add(expertPass.estimate, eps))))
	logOneMinusPolicy := G.Must(G.Log(G.Must(G.Add(
		G.Must(G.Sub(one, policyPass.estimate)), eps))))
	discLoss := G.Must(G.Neg(G.Must(G.Mean(
		G.Must(G.Add(logExpert, logOneMinusPolicy))))))
	G.Read(discLoss, &d.discLossVal)

	// The intrinsic reward -log(1 - estimate + eps) grows without
	// bound as the policy sample looks more expert-like
	reward := G.Must(G.Neg(logOneMinusPolicy))
	reward, err := G.Reshape(reward, tensor.Shape{d.conf.BatchSize})
	if err != nil {
		return fmt.Errorf("createloss: could not flatten reward: %v", err)
	}
	G.Read(reward, &d.rewardVal)

	loss := discLoss

	if d.conf.UseVail {
		d.betaNode = G.NewScalar(
			d.g,
			tensor.Float64,
			G.WithValue(1.0),
			G.WithName("gail_beta"),
		)

		kl, err := d.klDivergence(expertPass.zMean, policyPass.zMean)
		if err != nil {
			return fmt.Errorf("createloss: %v", err)
		}
		G.Read(kl, &d.klVal)

		target := G.NewConstant(mutualInformationTarget)
		weighted := G.Must(G.Mul(d.betaNode, G.Must(G.Sub(kl, target))))
		loss = G.Must(G.Add(loss, weighted))
	}

	if d.conf.GradientPenaltyWeight > 0 {
		gp, err := d.buildGradientPenalty(encExpert, encPolicy)
		if err != nil {
			return fmt.Errorf("createloss: %v", err)
		}
		d.penalty = gp
		G.Read(gp.node, &d.penaltyVal)

		weight := G.NewConstant(d.conf.GradientPenaltyWeight)
		loss = G.Must(G.Add(loss, G.Must(G.Mul(weight, gp.node))))
	}

	d.lossNode = loss
	G.Read(loss, &d.lossVal)
	return nil
}

// klDivergence builds the KL divergence of the two streams' latent
// codes against a standard normal prior with the shared learned
// sigma: per sample, 0.5 mu_e^2 + 0.5 mu_p^2 + exp(log sigma^2) -
// log sigma^2 - 1 summed over latent dimensions, then batch-averaged.
// Both means are pulled toward the same prior in one expression.
func (d *Discriminator) klDivergence(zMeanExpert,
	zMeanPolicy *G.Node) (*G.Node, error) {
	one := G.NewConstant(1.0)
	eps := G.NewConstant(Epsilon)
	half := G.NewConstant(0.5)

	sigmaSq, err := G.HadamardProd(d.enc.sigma, d.enc.sigma)
	if err != nil {
		return nil, fmt.Errorf("kldivergence: %v", err)
	}
	logSigmaSq := G.Must(G.Log(G.Must(G.Add(sigmaSq, eps))))

	// exp(log sigma^2) rather than sigma^2 so the expression matches
	// the stabilized logarithm exactly
	vec := G.Must(G.Sub(G.Must(G.Exp(logSigmaSq)), logSigmaSq))
	vec = G.Must(G.Sub(vec, one))

	mat := G.Must(G.Add(G.Must(G.Square(zMeanExpert)),
		G.Must(G.Square(zMeanPolicy))))
	mat = G.Must(G.Mul(half, mat))

	inner, err := G.BroadcastAdd(mat, vec, nil, []byte{0})
	if err != nil {
		return nil, fmt.Errorf("kldivergence: %v", err)
	}
	return G.Mean(G.Must(G.Sum(inner, 1)))
}
