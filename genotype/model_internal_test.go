package genotype

import (
	"testing"

	"github.com/grailbio/vgraph/allele"
	"github.com/grailbio/vgraph/coverage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoAlleleInput(groups []coverage.GroupCount, ploidy Ploidy, lstats *LikelihoodStats) modelInput {
	return modelInput{
		alleles: []allele.Allele{
			{Seq: "C", PbCov: []uint32{5}, Haplogroup: 0, Callable: true},
			{Seq: "G", PbCov: []uint32{1}, Haplogroup: 1, Callable: true},
		},
		groups:         groups,
		numHaplogroups: 2,
		ploidy:         ploidy,
		lstats:         lstats,
	}
}

func TestModelHaploidPicksCoveredAllele(t *testing.T) {
	lstats := MakeLikelihoodStats(6, 0, 0.01)
	site := runModel(twoAlleleInput([]coverage.GroupCount{
		{Alleles: []int{0}, Count: 5},
		{Alleles: []int{1}, Count: 1},
	}, Haploid, lstats))

	require.False(t, site.IsNull())
	assert.Equal(t, []int{0}, site.GT)
	assert.Equal(t, "C", site.Alleles[site.GT[0]].Seq)
	assert.Greater(t, site.GTConf, 0.0)
	assert.Equal(t, int64(6), site.TotalCov)
	assert.Equal(t, []float64{5}, site.AlleleCovs)
	assert.Equal(t, []int{0}, site.Haplogroups)
}

func TestModelZeroCoverageIsNull(t *testing.T) {
	lstats := MakeLikelihoodStats(6, 0, 0.01)
	site := runModel(twoAlleleInput(nil, Haploid, lstats))
	assert.True(t, site.IsNull())
	assert.Zero(t, site.GTConf)
	require.Len(t, site.Alleles, 1, "null site keeps the first allele for extraction")
	assert.Equal(t, "C", site.Alleles[0].Seq)
}

func TestModelZeroMeanDepthIsNull(t *testing.T) {
	lstats := MakeLikelihoodStats(0, 0, 0.01)
	site := runModel(twoAlleleInput([]coverage.GroupCount{
		{Alleles: []int{0}, Count: 3},
	}, Haploid, lstats))
	assert.True(t, site.IsNull())
}

func TestModelRefPrependedWhenAltCalled(t *testing.T) {
	lstats := MakeLikelihoodStats(6, 0, 0.01)
	site := runModel(modelInput{
		alleles: []allele.Allele{
			{Seq: "C", PbCov: []uint32{0}, Haplogroup: 0, Callable: true},
			{Seq: "G", PbCov: []uint32{6}, Haplogroup: 1, Callable: true},
		},
		groups:         []coverage.GroupCount{{Alleles: []int{1}, Count: 6}},
		numHaplogroups: 2,
		ploidy:         Haploid,
		lstats:         lstats,
	})
	assert.Equal(t, []int{1}, site.GT, "rescaled index: REF stays 0, called ALT becomes 1")
	require.Len(t, site.Alleles, 2)
	assert.Equal(t, "C", site.Alleles[0].Seq)
	assert.Equal(t, "G", site.Alleles[1].Seq)
}

func TestModelChosenGenotypeHasMaximalLikelihood(t *testing.T) {
	// Universal invariant: the called genotype's log-likelihood is >= every
	// other candidate's.
	lstats := MakeLikelihoodStats(4, 0, 0.01)
	m := &model{
		in: twoAlleleInput([]coverage.GroupCount{
			{Alleles: []int{0}, Count: 3},
			{Alleles: []int{1}, Count: 1},
		}, Haploid, lstats),
		diploidMemo: map[[2]int][2]float64{},
	}
	for _, gc := range m.in.groups {
		m.totalCov += gc.Count
	}
	m.setHaploidCoverages()
	m.setMultiplicities(m.in.alleles)
	used := m.assignEmptyAlleleCoverage(m.in.alleles)
	m.haploidLikelihoods(used)
	m.rankCandidates()
	for i := 1; i < len(m.candidates); i++ {
		assert.GreaterOrEqual(t, m.candidates[0].ll, m.candidates[i].ll)
	}
}

func TestModelDiploidHomozygousCall(t *testing.T) {
	lstats := MakeLikelihoodStats(8, 0, 0.01)
	site := runModel(twoAlleleInput([]coverage.GroupCount{
		{Alleles: []int{0}, Count: 8},
	}, Diploid, lstats))
	assert.Equal(t, []int{0, 0}, site.GT)
}

func TestModelDiploidHeterozygousCall(t *testing.T) {
	lstats := MakeLikelihoodStats(8, 0, 0.01)
	site := runModel(twoAlleleInput([]coverage.GroupCount{
		{Alleles: []int{0}, Count: 4},
		{Alleles: []int{1}, Count: 4},
	}, Diploid, lstats))
	assert.Equal(t, []int{0, 1}, site.GT)
}

func TestModelTieBreakPrefersSmallestIndexPair(t *testing.T) {
	lstats := MakeLikelihoodStats(6, 0, 0.01)
	// Symmetric coverage: both haploid candidates tie exactly; the call
	// must deterministically pick the smaller index.
	site := runModel(modelInput{
		alleles: []allele.Allele{
			{Seq: "C", PbCov: []uint32{3}, Haplogroup: 0, Callable: true},
			{Seq: "G", PbCov: []uint32{3}, Haplogroup: 1, Callable: true},
		},
		groups: []coverage.GroupCount{
			{Alleles: []int{0}, Count: 3},
			{Alleles: []int{1}, Count: 3},
		},
		numHaplogroups: 2,
		ploidy:         Haploid,
		lstats:         lstats,
	})
	assert.Equal(t, []int{0}, site.GT)
	assert.Zero(t, site.GTConf)
}

func TestRescaleGenotypes(t *testing.T) {
	assert.Equal(t, []int{0}, rescaleGenotypes([]int{0}))
	assert.Equal(t, []int{1}, rescaleGenotypes([]int{2}))
	assert.Equal(t, []int{1, 2}, rescaleGenotypes([]int{2, 4}))
	assert.Equal(t, []int{0, 1}, rescaleGenotypes([]int{0, 3}))
	assert.Equal(t, []int{1, 1}, rescaleGenotypes([]int{2, 2}))
}

func TestFindCredibleCovT(t *testing.T) {
	lstats := MakeLikelihoodStats(10, 0, 0.0001)
	assert.GreaterOrEqual(t, lstats.CredibleCovT, 1)
	// With a tiny error rate even one read is credible.
	assert.Equal(t, 1, lstats.CredibleCovT)
}

func TestNegBinomSelectedWhenOverdispersed(t *testing.T) {
	over := MakeLikelihoodStats(10, 30, 0.01)
	_, isNB := over.PmfFull.(*negBinomPmf)
	assert.True(t, isNB)
	under := MakeLikelihoodStats(10, 5, 0.01)
	_, isPois := under.PmfFull.(*poissonPmf)
	assert.True(t, isPois)
}
