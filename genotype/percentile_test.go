package genotype_test

import (
	"testing"

	"github.com/grailbio/vgraph/genotype"
	"github.com/grailbio/vgraph/vgerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentilerRejectsTooFewEntries(t *testing.T) {
	_, err := genotype.NewPercentiler([]float64{1.0})
	require.Error(t, err)
	assert.Equal(t, vgerrors.NotEnoughData, vgerrors.KindOf(err))
}

func TestPercentilerExactAndClamped(t *testing.T) {
	p, err := genotype.NewPercentiler([]float64{10, 20, 30, 40})
	require.NoError(t, err)
	assert.Equal(t, 25.0, p.Percentile(10))
	assert.Equal(t, 50.0, p.Percentile(20))
	assert.Equal(t, 100.0, p.Percentile(40))
	assert.Equal(t, 0.0, p.Percentile(5))
	assert.Equal(t, 100.0, p.Percentile(50))
}

func TestPercentilerInterpolatesBetweenEntries(t *testing.T) {
	p, err := genotype.NewPercentiler([]float64{10, 20})
	require.NoError(t, err)
	assert.InDelta(t, 75.0, p.Percentile(15), 1e-9)
}

func TestPercentilerAveragesDuplicates(t *testing.T) {
	p, err := genotype.NewPercentiler([]float64{10, 10, 10, 40})
	require.NoError(t, err)
	// Three copies of 10 occupy percentiles 25, 50, 75: their shared
	// entry sits midway.
	assert.InDelta(t, 50.0, p.Percentile(10), 1e-9)
	assert.Equal(t, 100.0, p.Percentile(40))
}
