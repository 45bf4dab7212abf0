package spec

import (
	"fmt"
	"math"
)

// Normalizer exposes the vector-observation normalization statistics
// owned by the external policy model. The discriminator reads the
// current statistics once per update and applies the same transform
// to the expert and the policy stream.
type Normalizer interface {
	// Mean returns the per-feature running mean
	Mean() []float64

	// Std returns the per-feature standard deviation. Implementations
	// must return strictly positive values.
	Std() []float64
}

// RunningMeanStd implements Normalizer with running statistics updated
// from observation batches, in the style of a policy model that
// normalizes its own vector inputs. The variance estimate is divided
// by the number of recorded steps plus one so that the standard
// deviation is defined from the very first update.
type RunningMeanStd struct {
	mean  []float64
	m2    []float64
	steps int
}

// NewRunningMeanStd returns a new RunningMeanStd over feature vectors
// of length dims.
func NewRunningMeanStd(dims int) (*RunningMeanStd, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("newrunningmeanstd: dims must be positive "+
			"\n\thave(%v)", dims)
	}
	return &RunningMeanStd{
		mean: make([]float64, dims),
		m2:   make([]float64, dims),
	}, nil
}

// Update folds a batch of observation vectors, flattened row-major,
// into the running statistics.
func (r *RunningMeanStd) Update(batch []float64) error {
	dims := len(r.mean)
	if len(batch)%dims != 0 {
		return fmt.Errorf("update: batch length %v is not a multiple of "+
			"the feature dimensionality %v", len(batch), dims)
	}

	for row := 0; row < len(batch); row += dims {
		r.steps++
		for j := 0; j < dims; j++ {
			x := batch[row+j]
			delta := x - r.mean[j]
			r.mean[j] += delta / float64(r.steps)
			r.m2[j] += delta * (x - r.mean[j])
		}
	}
	return nil
}

// Mean returns the per-feature running mean.
func (r *RunningMeanStd) Mean() []float64 {
	out := make([]float64, len(r.mean))
	copy(out, r.mean)
	return out
}

// Std returns the per-feature standard deviation estimate, floored
// away from zero so that normalization never divides by zero.
func (r *RunningMeanStd) Std() []float64 {
	out := make([]float64, len(r.m2))
	for j := range r.m2 {
		variance := r.m2[j] / float64(r.steps+1)
		out[j] = math.Max(math.Sqrt(variance), 1e-3)
	}
	return out
}
