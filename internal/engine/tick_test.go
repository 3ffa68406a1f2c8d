package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/cultsim/internal/results"
)

type failingProcess struct{ failAt int }

func (p failingProcess) Init() (float64, error) { return 0, nil }

func (p failingProcess) Step(t int) (float64, error) {
	if t == p.failAt {
		return 0, errors.New("boom")
	}
	return float64(t), nil
}

func TestDriverPhases(t *testing.T) {
	d := NewDriver(4)
	assert.Equal(t, PhaseUninitialized, d.Phase())

	var order []int
	d.OnGeneration = func(_, g int, _ float64) {
		assert.Equal(t, PhaseGeneration, d.Phase())
		order = append(order, g)
	}

	tbl := results.NewTable(4, 1)
	require.NoError(t, d.Run(0, failingProcess{failAt: -1}, tbl))
	assert.Equal(t, PhaseCompleted, d.Phase())
	assert.Equal(t, 3, d.Generation())
	assert.Equal(t, []int{0, 1, 2, 3}, order)
	assert.Equal(t, "completed", d.Phase().String())

	assert.Error(t, d.Run(0, failingProcess{failAt: -1}, results.NewTable(4, 1)), "a driver runs once")
}

func TestDriverStopsOnStepError(t *testing.T) {
	d := NewDriver(5)
	tbl := results.NewTable(5, 1)
	err := d.Run(0, failingProcess{failAt: 2}, tbl)
	require.Error(t, err)
	assert.NotEqual(t, PhaseCompleted, d.Phase())
	assert.Equal(t, 1, d.Generation())
	assert.False(t, tbl.Complete())
}
