// Package buffer implements fixed-capacity sample stores for the
// discriminator's two input streams: expert demonstrations recorded
// offline and policy transitions collected during training. Samples
// are kept in flat caches matching the discriminator's batch layout,
// evicted first-in-first-out once capacity is reached, and drawn
// uniformly randomly into minibatches.
package buffer

import (
	"fmt"

	"github.com/adversarial-rl/gail/gail"
	"github.com/adversarial-rl/gail/spec"
	"golang.org/x/exp/rand"
)

// Transition holds one recorded sample: the observation under the
// configured layout, the action taken, and the termination flag of
// the step.
type Transition struct {
	// VectorObs holds the vector component of the observation.
	// Ignored when the layout has no vector component.
	VectorObs []float64

	// VisualObs holds one flattened (Channels x Height x Width) block
	// per visual stream, in stream order
	VisualObs [][]float64

	// ContinuousAction holds the action vector. Only consulted for
	// continuous action spaces.
	ContinuousAction []float64

	// DiscreteAction holds one raw index per action branch. Only
	// consulted for discrete action spaces.
	DiscreteAction []int

	// Done marks the transition as episode-terminating
	Done bool
}

// Buffer is a fixed-capacity FIFO store of transitions under a single
// observation and action layout. A Buffer is not safe for concurrent
// use.
type Buffer struct {
	obs     spec.Observation
	actions spec.ActionSpace

	vecCache     []float64
	visualCaches [][]float64
	contCache    []float64
	discCache    []int
	doneCache    []float64

	capacity int
	filled   int
	next     int

	rng *rand.Rand
}

// New returns an empty Buffer storing at most capacity transitions of
// the given layout. Once full, adding a transition overwrites the
// oldest stored one.
func New(obs spec.Observation, actions spec.ActionSpace, capacity int,
	seed uint64) (*Buffer, error) {
	if err := obs.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if err := actions.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("new: capacity must be positive "+
			"\n\thave(%v)", capacity)
	}

	b := &Buffer{
		obs:      obs,
		actions:  actions,
		capacity: capacity,
		rng:      rand.New(rand.NewSource(seed)),
	}

	if obs.VecDims > 0 {
		b.vecCache = make([]float64, capacity*obs.VecDims)
	}
	for _, res := range obs.Visual {
		b.visualCaches = append(b.visualCaches,
			make([]float64, capacity*res.Channels*res.Height*res.Width))
	}
	if actions.Kind == spec.Continuous {
		b.contCache = make([]float64, capacity*actions.TotalDims())
	} else {
		b.discCache = make([]int, capacity*actions.NumBranches())
	}
	b.doneCache = make([]float64, capacity)

	return b, nil
}

// Add stores a transition, overwriting the oldest stored transition
// when the buffer is full.
func (b *Buffer) Add(t Transition) error {
	if len(t.VectorObs) != b.obs.VecDims {
		return fmt.Errorf("add: invalid vector observation size "+
			"\n\twant(%v)\n\thave(%v)", b.obs.VecDims, len(t.VectorObs))
	}
	if len(t.VisualObs) != len(b.obs.Visual) {
		return fmt.Errorf("add: invalid number of visual streams "+
			"\n\twant(%v)\n\thave(%v)", len(b.obs.Visual), len(t.VisualObs))
	}
	for i, res := range b.obs.Visual {
		size := res.Channels * res.Height * res.Width
		if len(t.VisualObs[i]) != size {
			return fmt.Errorf("add: invalid visual stream %v size "+
				"\n\twant(%v)\n\thave(%v)", i, size, len(t.VisualObs[i]))
		}
	}
	if b.actions.Kind == spec.Continuous {
		if len(t.ContinuousAction) != b.actions.TotalDims() {
			return fmt.Errorf("add: invalid action size "+
				"\n\twant(%v)\n\thave(%v)", b.actions.TotalDims(),
				len(t.ContinuousAction))
		}
	} else if len(t.DiscreteAction) != b.actions.NumBranches() {
		return fmt.Errorf("add: invalid number of action branches "+
			"\n\twant(%v)\n\thave(%v)", b.actions.NumBranches(),
			len(t.DiscreteAction))
	}

	index := b.next
	b.next = (b.next + 1) % b.capacity
	if b.filled < b.capacity {
		b.filled++
	}

	if b.vecCache != nil {
		copy(b.vecCache[index*b.obs.VecDims:(index+1)*b.obs.VecDims],
			t.VectorObs)
	}
	for i, res := range b.obs.Visual {
		size := res.Channels * res.Height * res.Width
		copy(b.visualCaches[i][index*size:(index+1)*size], t.VisualObs[i])
	}
	if b.contCache != nil {
		dims := b.actions.TotalDims()
		copy(b.contCache[index*dims:(index+1)*dims], t.ContinuousAction)
	}
	if b.discCache != nil {
		branches := b.actions.NumBranches()
		copy(b.discCache[index*branches:(index+1)*branches],
			t.DiscreteAction)
	}
	if t.Done {
		b.doneCache[index] = 1.0
	} else {
		b.doneCache[index] = 0.0
	}

	return nil
}

// Sample draws n stored transitions uniformly randomly with
// replacement and returns them as a batch in the discriminator's
// input layout.
func (b *Buffer) Sample(n int) (gail.Batch, error) {
	if b.filled == 0 {
		return gail.Batch{}, &BufferError{Op: "sample", Err: errEmptyBuffer}
	}
	if n > b.filled {
		return gail.Batch{}, &BufferError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = b.rng.Intn(b.filled)
	}

	batch := gail.Batch{Size: n}

	if b.vecCache != nil {
		dims := b.obs.VecDims
		batch.VectorObs = make([]float64, n*dims)
		for i, index := range indices {
			copy(batch.VectorObs[i*dims:(i+1)*dims],
				b.vecCache[index*dims:(index+1)*dims])
		}
	}

	for s, res := range b.obs.Visual {
		size := res.Channels * res.Height * res.Width
		stream := make([]float64, n*size)
		for i, index := range indices {
			copy(stream[i*size:(i+1)*size],
				b.visualCaches[s][index*size:(index+1)*size])
		}
		batch.VisualObs = append(batch.VisualObs, stream)
	}

	if b.contCache != nil {
		dims := b.actions.TotalDims()
		batch.ContinuousActions = make([]float64, n*dims)
		for i, index := range indices {
			copy(batch.ContinuousActions[i*dims:(i+1)*dims],
				b.contCache[index*dims:(index+1)*dims])
		}
	}
	if b.discCache != nil {
		branches := b.actions.NumBranches()
		batch.DiscreteActions = make([]int, n*branches)
		for i, index := range indices {
			copy(batch.DiscreteActions[i*branches:(i+1)*branches],
				b.discCache[index*branches:(index+1)*branches])
		}
	}

	batch.Dones = make([]float64, n)
	for i, index := range indices {
		batch.Dones[i] = b.doneCache[index]
	}

	return batch, nil
}

// Len returns the current number of stored transitions.
func (b *Buffer) Len() int {
	return b.filled
}

// Capacity returns the maximum number of stored transitions.
func (b *Buffer) Capacity() int {
	return b.capacity
}
