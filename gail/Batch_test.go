package gail

import (
	"testing"

	"github.com/adversarial-rl/gail/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeActionsContinuous(t *testing.T) {
	d := &Discriminator{actions: spec.NewContinuous(2)}

	batch := Batch{
		ContinuousActions: []float64{0.1, 0.2, 0.3, 0.4},
		Size:              2,
	}
	encoded, err := d.encodeActions(batch)
	require.NoError(t, err)
	assert.Equal(t, batch.ContinuousActions, encoded)

	// The encoding is a copy, not a view
	encoded[0] = 99
	assert.Equal(t, 0.1, batch.ContinuousActions[0])
}

func TestEncodeActionsDiscrete(t *testing.T) {
	d := &Discriminator{actions: spec.NewDiscrete([]int{3, 2})}

	batch := Batch{
		DiscreteActions: []int{0, 1, 2, 0},
		Size:            2,
	}
	encoded, err := d.encodeActions(batch)
	require.NoError(t, err)
	assert.Equal(t, []float64{
		1, 0, 0, 0, 1,
		0, 0, 1, 1, 0,
	}, encoded)
}

func TestEncodeActionsErrors(t *testing.T) {
	continuous := &Discriminator{actions: spec.NewContinuous(2)}
	_, err := continuous.encodeActions(Batch{
		ContinuousActions: []float64{0.1},
		Size:              1,
	})
	assert.Error(t, err)

	discrete := &Discriminator{actions: spec.NewDiscrete([]int{3})}
	_, err = discrete.encodeActions(Batch{
		DiscreteActions: []int{3},
		Size:            1,
	})
	assert.Error(t, err)
}
