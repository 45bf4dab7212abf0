package gail

import (
	"fmt"

	"github.com/adversarial-rl/gail/spec"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Batch holds one minibatch of one stream (expert or policy) in raw
// form, flattened row-major. Expert and policy batches share this
// schema; both must hold Size samples per Step.
//
// Discrete actions are supplied as raw per-branch indices and one-hot
// encoded on ingestion. Continuous actions pass through unchanged.
type Batch struct {
	// VectorObs holds Size x VecDims features. Ignored when the
	// observation layout has no vector component.
	VectorObs []float64

	// VisualObs holds one flattened (Size x Channels x Height x
	// Width) block per visual stream, in stream order.
	VisualObs [][]float64

	// ContinuousActions holds Size x action-dims values. Only
	// consulted for continuous action spaces with action-conditioning
	// enabled.
	ContinuousActions []float64

	// DiscreteActions holds Size x branch-count raw indices. Only
	// consulted for discrete action spaces with action-conditioning
	// enabled.
	DiscreteActions []int

	// Dones holds Size termination flags (0 or 1). Only consulted
	// with action-conditioning enabled.
	Dones []float64

	// Size is the number of samples in the batch
	Size int
}

// stream groups the placeholder nodes one batch feeds.
type stream struct {
	obs    *G.Node   // nil when the layout has no vector component
	visual []*G.Node // one node per visual stream
	action *G.Node   // nil unless action-conditioning is enabled
	done   *G.Node   // nil unless action-conditioning is enabled
}

// feed validates a batch against the discriminator's configured
// layout and the expected sample count, and binds its values to the
// stream's placeholder nodes. The stream may belong to the training
// graph or to the evaluation graph.
func (d *Discriminator) feed(s *stream, b Batch, name string,
	size int) error {
	if b.Size != size {
		return fmt.Errorf("feed: %v batch holds %v samples "+
			"\n\twant(%v)", name, b.Size, size)
	}

	if s.obs != nil {
		want := b.Size * d.obs.VecDims
		if len(b.VectorObs) != want {
			return fmt.Errorf("feed: invalid %v vector observations"+
				"\n\twant(%v)\n\thave(%v)", name, want, len(b.VectorObs))
		}
		err := G.Let(s.obs, tensor.New(
			tensor.WithShape(b.Size, d.obs.VecDims),
			tensor.WithBacking(b.VectorObs),
		))
		if err != nil {
			return fmt.Errorf("feed: %v vector observations: %v", name, err)
		}
	}

	if len(b.VisualObs) != len(s.visual) {
		return fmt.Errorf("feed: invalid number of %v visual streams"+
			"\n\twant(%v)\n\thave(%v)", name, len(s.visual),
			len(b.VisualObs))
	}
	for i, node := range s.visual {
		res := d.obs.Visual[i]
		want := b.Size * res.Channels * res.Height * res.Width
		if len(b.VisualObs[i]) != want {
			return fmt.Errorf("feed: invalid %v visual stream %v"+
				"\n\twant(%v)\n\thave(%v)", name, i, want,
				len(b.VisualObs[i]))
		}
		err := G.Let(node, tensor.New(
			tensor.WithShape(b.Size, res.Channels, res.Height, res.Width),
			tensor.WithBacking(b.VisualObs[i]),
		))
		if err != nil {
			return fmt.Errorf("feed: %v visual stream %v: %v", name, i, err)
		}
	}

	if s.action != nil {
		encoded, err := d.encodeActions(b)
		if err != nil {
			return fmt.Errorf("feed: %v actions: %v", name, err)
		}
		err = G.Let(s.action, tensor.New(
			tensor.WithShape(b.Size, d.actions.TotalDims()),
			tensor.WithBacking(encoded),
		))
		if err != nil {
			return fmt.Errorf("feed: %v actions: %v", name, err)
		}
	}

	if s.done != nil {
		if len(b.Dones) != b.Size {
			return fmt.Errorf("feed: invalid %v termination flags"+
				"\n\twant(%v)\n\thave(%v)", name, b.Size, len(b.Dones))
		}
		err := G.Let(s.done, tensor.New(
			tensor.WithShape(b.Size, 1),
			tensor.WithBacking(b.Dones),
		))
		if err != nil {
			return fmt.Errorf("feed: %v termination flags: %v", name, err)
		}
	}

	return nil
}

// encodeActions turns a batch's raw actions into the float matrix the
// action placeholder expects: a copy of the continuous actions, or
// the per-branch one-hot concatenation of the discrete indices.
func (d *Discriminator) encodeActions(b Batch) ([]float64, error) {
	dims := d.actions.TotalDims()

	if d.actions.Kind == spec.Continuous {
		if len(b.ContinuousActions) != b.Size*dims {
			return nil, fmt.Errorf("encodeactions: invalid continuous "+
				"actions\n\twant(%v)\n\thave(%v)", b.Size*dims,
				len(b.ContinuousActions))
		}
		out := make([]float64, len(b.ContinuousActions))
		copy(out, b.ContinuousActions)
		return out, nil
	}

	branches := d.actions.NumBranches()
	if len(b.DiscreteActions) != b.Size*branches {
		return nil, fmt.Errorf("encodeactions: invalid discrete actions"+
			"\n\twant(%v)\n\thave(%v)", b.Size*branches,
			len(b.DiscreteActions))
	}

	out := make([]float64, 0, b.Size*dims)
	for row := 0; row < b.Size; row++ {
		indices := b.DiscreteActions[row*branches : (row+1)*branches]
		encoded, err := d.actions.OneHot(indices)
		if err != nil {
			return nil, fmt.Errorf("encodeactions: sample %v: %v", row, err)
		}
		out = append(out, encoded...)
	}
	return out, nil
}
