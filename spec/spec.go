// Package spec implements specifications describing the action and
// observation layout of the external policy model that the
// discriminator is paired with.
package spec

import "fmt"

// ActionKind determines whether a policy selects continuous or
// discrete actions.
type ActionKind int

const (
	Continuous ActionKind = iota
	Discrete
)

// String implements the fmt.Stringer interface
func (a ActionKind) String() string {
	switch a {
	case Continuous:
		return "Continuous"
	case Discrete:
		return "Discrete"
	}
	return "Unknown"
}

// ActionSpace describes the action layout of a policy. For continuous
// actions, NumDims is the length of the action vector and Branches is
// nil. For discrete actions, Branches holds the cardinality of each
// action branch and NumDims is ignored.
type ActionSpace struct {
	Kind     ActionKind
	NumDims  int
	Branches []int
}

// NewContinuous returns the action space of a policy selecting
// real-valued action vectors of length dims.
func NewContinuous(dims int) ActionSpace {
	return ActionSpace{Kind: Continuous, NumDims: dims}
}

// NewDiscrete returns the action space of a policy selecting one
// action index per branch, where branches[i] is the cardinality of
// branch i.
func NewDiscrete(branches []int) ActionSpace {
	return ActionSpace{Kind: Discrete, Branches: branches}
}

// TotalDims returns the width of an action once represented as a
// float vector: the action length for continuous actions, or the
// total one-hot width for discrete actions.
func (a ActionSpace) TotalDims() int {
	if a.Kind == Continuous {
		return a.NumDims
	}
	total := 0
	for _, branch := range a.Branches {
		total += branch
	}
	return total
}

// NumBranches returns the number of discrete action branches. For
// continuous action spaces, NumBranches returns 0.
func (a ActionSpace) NumBranches() int {
	return len(a.Branches)
}

// Validate returns an error if the action space is malformed.
func (a ActionSpace) Validate() error {
	switch a.Kind {
	case Continuous:
		if a.NumDims <= 0 {
			return fmt.Errorf("validate: continuous action space must "+
				"have positive dimensionality \n\thave(%v)", a.NumDims)
		}
	case Discrete:
		if len(a.Branches) == 0 {
			return fmt.Errorf("validate: discrete action space must have " +
				"at least one branch")
		}
		for i, branch := range a.Branches {
			if branch <= 0 {
				return fmt.Errorf("validate: branch %v has illegal "+
					"cardinality %v", i, branch)
			}
		}
	default:
		return fmt.Errorf("validate: unknown action kind %v", a.Kind)
	}
	return nil
}

// OneHot encodes the raw per-branch action indices of a single sample
// as the concatenation of one one-hot vector per branch, in branch
// order. The indices parameter must hold one index per branch.
func (a ActionSpace) OneHot(indices []int) ([]float64, error) {
	if a.Kind != Discrete {
		return nil, fmt.Errorf("onehot: action space is not discrete")
	}
	if len(indices) != len(a.Branches) {
		return nil, fmt.Errorf("onehot: invalid number of action indices"+
			"\n\twant(%v)\n\thave(%v)", len(a.Branches), len(indices))
	}

	encoded := make([]float64, a.TotalDims())
	offset := 0
	for i, branch := range a.Branches {
		if indices[i] < 0 || indices[i] >= branch {
			return nil, fmt.Errorf("onehot: action index %v out of range "+
				"for branch %v of cardinality %v", indices[i], i, branch)
		}
		encoded[offset+indices[i]] = 1.0
		offset += branch
	}
	return encoded, nil
}

// Resolution describes the shape of a single visual observation
// stream.
type Resolution struct {
	Height   int
	Width    int
	Channels int
}

// Observation describes the observation layout of a policy: a vector
// component of VecDims features (possibly 0) and zero or more visual
// streams.
type Observation struct {
	VecDims int
	Visual  []Resolution
}

// Validate returns an error if the observation layout is malformed.
// A layout with neither vector features nor visual streams cannot be
// discriminated and is illegal.
func (o Observation) Validate() error {
	if o.VecDims < 0 {
		return fmt.Errorf("validate: negative vector observation size %v",
			o.VecDims)
	}
	if o.VecDims == 0 && len(o.Visual) == 0 {
		return fmt.Errorf("validate: observation layout has no vector " +
			"features and no visual streams")
	}
	for i, res := range o.Visual {
		if res.Height <= 0 || res.Width <= 0 || res.Channels <= 0 {
			return fmt.Errorf("validate: visual stream %v has illegal "+
				"resolution %vx%vx%v", i, res.Height, res.Width,
				res.Channels)
		}
	}
	return nil
}
