// Package op provides extended Gorgonia graph operations.
package op

import (
	G "gorgonia.org/gorgonia"
)

// Clip clips the value of a node elementwise to [min, max]. Values at
// the interval boundaries are left unchanged.
func Clip(value *G.Node, min, max float64) (*G.Node, error) {
	var minNode, maxNode *G.Node
	switch value.Dtype() {
	case G.Float32:
		minNode = G.NewConstant(float32(min))
		maxNode = G.NewConstant(float32(max))
	case G.Float64:
		minNode = G.NewConstant(min)
		maxNode = G.NewConstant(max)
	}

	// Masks select which of {min, value, max} each element maps to
	minMask, err := G.Lt(value, minNode, true)
	if err != nil {
		return nil, err
	}
	maxMask, err := G.Gt(value, maxNode, true)
	if err != nil {
		return nil, err
	}

	midMask, err := G.Sub(G.NewConstant(1.0), minMask)
	if err != nil {
		return nil, err
	}
	if midMask, err = G.Sub(midMask, maxMask); err != nil {
		return nil, err
	}

	minVal, err := G.HadamardProd(minNode, minMask)
	if err != nil {
		return nil, err
	}
	midVal, err := G.HadamardProd(value, midMask)
	if err != nil {
		return nil, err
	}
	maxVal, err := G.HadamardProd(maxNode, maxMask)
	if err != nil {
		return nil, err
	}

	return G.ReduceAdd(G.Nodes{minVal, midVal, maxVal})
}

// SafeL2Norm computes the Euclidean norm of each row of a matrix node
// with an epsilon added inside the square root, so that the gradient
// of the norm is defined at the zero vector.
func SafeL2Norm(x *G.Node, eps float64) (*G.Node, error) {
	squared, err := G.Square(x)
	if err != nil {
		return nil, err
	}
	sum, err := G.Sum(squared, 1)
	if err != nil {
		return nil, err
	}
	sum, err = G.Add(sum, G.NewConstant(eps))
	if err != nil {
		return nil, err
	}
	return G.Sqrt(sum)
}
