package network

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func TestFCLayerForward(t *testing.T) {
	g := G.NewGraph()

	layer, err := NewFCLayer(g, 2, 3, true, G.Ones(), Identity(), "fc")
	require.NoError(t, err)

	x := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(1, 2),
		G.WithValue(tensor.New(
			tensor.WithShape(1, 2),
			tensor.WithBacking([]float64{1, 2}),
		)),
		G.WithName("x"),
	)

	out, err := layer.Fwd(x)
	require.NoError(t, err)

	var outVal G.Value
	G.Read(out, &outVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	// All-ones weights and zero bias: each unit sums the input
	assert.Equal(t, []float64{3, 3, 3}, outVal.Data().([]float64))
}

func TestFCLayerSwish(t *testing.T) {
	g := G.NewGraph()

	layer, err := NewFCLayer(g, 1, 1, false, G.Ones(), Swish(), "fc")
	require.NoError(t, err)

	x := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(3, 1),
		G.WithValue(tensor.New(
			tensor.WithShape(3, 1),
			tensor.WithBacking([]float64{-1, 0, 1}),
		)),
		G.WithName("x"),
	)

	pre, out, err := layer.FwdPre(x)
	require.NoError(t, err)

	var preVal, outVal G.Value
	G.Read(pre, &preVal)
	G.Read(out, &outVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	// Identity weights: the pre-activation equals the input
	assert.Equal(t, []float64{-1, 0, 1}, preVal.Data().([]float64))

	swish := func(x float64) float64 { return x / (1 + math.Exp(-x)) }
	got := outVal.Data().([]float64)
	for i, x := range []float64{-1, 0, 1} {
		assert.InDelta(t, swish(x), got[i], 1e-12)
	}
}

func TestFCLayerLearnables(t *testing.T) {
	g := G.NewGraph()

	withBias, err := NewFCLayer(g, 2, 3, true, G.Ones(), Identity(), "b")
	require.NoError(t, err)
	assert.Len(t, withBias.Learnables(), 2)

	noBias, err := NewFCLayer(g, 2, 3, false, G.Ones(), Identity(), "nb")
	require.NoError(t, err)
	assert.Len(t, noBias.Learnables(), 1)
	assert.Nil(t, noBias.Bias())
}

func TestNewFCLayerRejectsIllegalSizes(t *testing.T) {
	g := G.NewGraph()
	_, err := NewFCLayer(g, 0, 3, true, G.Ones(), Identity(), "fc")
	assert.Error(t, err)
	_, err = NewFCLayer(g, 3, -1, true, G.Ones(), Identity(), "fc")
	assert.Error(t, err)
}

func TestVisualEncoderShape(t *testing.T) {
	g := G.NewGraph()

	enc, err := NewVisualEncoder(g, 36, 36, 3, 8, G.GlorotU(1.0), "vis")
	require.NoError(t, err)
	assert.Equal(t, 8, enc.Encoding())

	input := G.NewTensor(
		g,
		tensor.Float64,
		4,
		G.WithShape(2, 3, 36, 36),
		G.WithInit(G.Uniform(0, 1)),
		G.WithName("frames"),
	)

	out, err := enc.Fwd(input)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 8}, out.Shape())

	var outVal G.Value
	G.Read(out, &outVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	for _, v := range outVal.Data().([]float64) {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func TestVisualEncoderRejectsTinyResolution(t *testing.T) {
	g := G.NewGraph()
	_, err := NewVisualEncoder(g, 8, 8, 1, 8, G.GlorotU(1.0), "vis")
	assert.Error(t, err)
}

func TestVisualEncoderSharesWeightsAcrossInputs(t *testing.T) {
	g := G.NewGraph()

	enc, err := NewVisualEncoder(g, 36, 36, 1, 4, G.GlorotU(1.0), "vis")
	require.NoError(t, err)

	backing := make([]float64, 36*36)
	for i := range backing {
		backing[i] = float64(i%7) / 7
	}

	first := G.NewTensor(
		g,
		tensor.Float64,
		4,
		G.WithShape(1, 1, 36, 36),
		G.WithValue(tensor.New(
			tensor.WithShape(1, 1, 36, 36),
			tensor.WithBacking(backing),
		)),
		G.WithName("first"),
	)
	backing2 := make([]float64, len(backing))
	copy(backing2, backing)
	second := G.NewTensor(
		g,
		tensor.Float64,
		4,
		G.WithShape(1, 1, 36, 36),
		G.WithValue(tensor.New(
			tensor.WithShape(1, 1, 36, 36),
			tensor.WithBacking(backing2),
		)),
		G.WithName("second"),
	)

	outFirst, err := enc.Fwd(first)
	require.NoError(t, err)
	outSecond, err := enc.Fwd(second)
	require.NoError(t, err)

	var firstVal, secondVal G.Value
	G.Read(outFirst, &firstVal)
	G.Read(outSecond, &secondVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	// Identical inputs through one parameter set give identical
	// embeddings
	assert.Equal(t, firstVal.Data().([]float64),
		secondVal.Data().([]float64))
}
