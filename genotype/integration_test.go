package genotype_test

import (
	"testing"

	"github.com/grailbio/vgraph/coverage"
	"github.com/grailbio/vgraph/covgraph"
	"github.com/grailbio/vgraph/fmindex"
	"github.com/grailbio/vgraph/genotype"
	"github.com/grailbio/vgraph/mapselect"
	"github.com/grailbio/vgraph/prg"
	"github.com/grailbio/vgraph/readio"
	"github.com/grailbio/vgraph/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeline maps reads and genotypes, mirroring the production flow with
// in-memory reads. All reads carry Q40 qualities.
func pipeline(t *testing.T, prgText string, reads []string, params *genotype.Params) (*covgraph.Graph, *genotype.Genotyper) {
	t.Helper()
	p, err := prg.ParseBracketed(prgText)
	require.NoError(t, err)
	idx, err := fmindex.Build(p)
	require.NoError(t, err)
	g, err := covgraph.Build(p)
	require.NoError(t, err)
	sr, err := search.New(idx, g)
	require.NoError(t, err)

	cov := coverage.New(g)
	var stats genotype.ReadStats
	const seed = 11
	for _, read := range reads {
		require.NoError(t, readio.Validate(read))
		qual := make([]byte, len(read))
		for i := range qual {
			qual[i] = 'I'
		}
		stats.AddQualities(string(qual))
		for _, seq := range []string{read, readio.ReverseComplement(read)} {
			states := sr.SearchReadBackwards(readio.Encode(seq))
			if len(states) == 0 {
				continue
			}
			sel := mapselect.Select(sr, states, mapselect.ReadRNG(seed, []byte(seq)))
			cov.Record(sr, sel, len(seq))
		}
	}
	stats.ComputeDepth(cov, g)
	return g, genotype.Run(g, cov, &stats, params)
}

func repeat(read string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = read
	}
	return out
}

// Haploid SNP scenario: both sites must call the C allele.
func TestGenotypeHaploidSNPs(t *testing.T) {
	reads := append(repeat("AATAACAACAA", 5), "AATAAGAACAA")
	_, gt := pipeline(t, "AATAA[C,G]AA[C,G]AA", reads, genotype.DefaultParams())

	site1 := gt.Record(prg.Symbol(5))
	require.False(t, site1.IsNull())
	assert.Equal(t, []int{0}, site1.GT)
	assert.Equal(t, "C", site1.Alleles[site1.GT[0]].Seq)
	assert.Greater(t, site1.GTConf, 1.0)
	assert.False(t, site1.HasFilter(genotype.FilterAmbig))

	site2 := gt.Record(prg.Symbol(7))
	require.False(t, site2.IsNull())
	assert.Equal(t, []int{0}, site2.GT)
	assert.Equal(t, "C", site2.Alleles[site2.GT[0]].Seq)
}

// Nested bubble scenario: inner site calls G, so the outer candidate REF
// is synthesised and the outer call is the concatenation CCCG.
func TestGenotypeNestedBubble(t *testing.T) {
	reads := append(repeat("AATAACCCGAA", 5), "AATAATAA")
	_, gt := pipeline(t, "AATAA[CCC[A,G],T]AA", reads, genotype.DefaultParams())

	inner := gt.Record(prg.Symbol(7))
	require.False(t, inner.IsNull())
	assert.Equal(t, "G", inner.Alleles[inner.GT[0]].Seq)

	outer := gt.Record(prg.Symbol(5))
	require.False(t, outer.IsNull())
	assert.Equal(t, "CCCG", outer.Alleles[outer.GT[0]].Seq)
	assert.Equal(t, "CCCA", outer.Alleles[0].Seq, "REF slot holds the synthesised REF path")
}

// Direct deletion scenario: the empty allele is called.
func TestGenotypeDirectDeletion(t *testing.T) {
	_, gt := pipeline(t, "GGGGG[CCC,]GG", repeat("GGGGGG", 5), genotype.DefaultParams())

	site := gt.Record(prg.Symbol(5))
	require.False(t, site.IsNull())
	assert.Equal(t, "", site.Alleles[site.GT[0]].Seq)
	assert.Equal(t, []int{1}, site.GT)
}

// Invalidation scenario: the outer call excludes haplogroup 1, so the
// site nested there is forced NULL with zero confidence.
func TestGenotypeNestedInvalidation(t *testing.T) {
	reads := append(repeat("ATCGGCTCGTCAT", 7), "ATCGGCGGG")
	_, gt := pipeline(t, "ATCGGC[TC[A,G]TC,GG[T,G]GG]AT", reads, genotype.DefaultParams())

	outer := gt.Record(prg.Symbol(5))
	require.False(t, outer.IsNull())
	assert.Equal(t, "TCGTC", outer.Alleles[outer.GT[0]].Seq)

	innerKept := gt.Record(prg.Symbol(7))
	require.False(t, innerKept.IsNull())
	assert.Equal(t, "G", innerKept.Alleles[innerKept.GT[0]].Seq)

	innerInvalidated := gt.Record(prg.Symbol(9))
	assert.True(t, innerInvalidated.IsNull())
	assert.Zero(t, innerInvalidated.GTConf)
}

// Genotyping twice over the same immutable coverage snapshot must produce
// identical calls.
func TestGenotypeIdempotent(t *testing.T) {
	reads := append(repeat("AATAACAACAA", 5), "AATAAGAACAA")
	_, gtA := pipeline(t, "AATAA[C,G]AA[C,G]AA", reads, genotype.DefaultParams())
	_, gtB := pipeline(t, "AATAA[C,G]AA[C,G]AA", reads, genotype.DefaultParams())
	for i := range gtA.Records() {
		a, b := gtA.Records()[i], gtB.Records()[i]
		assert.Equal(t, a.GT, b.GT)
		assert.Equal(t, a.GTConf, b.GTConf)
		assert.Equal(t, a.TotalCov, b.TotalCov)
	}
}

// Invalidation closure: nulling a site reaches every descendant through
// non-genotyped haplogroups.
func TestGenotypeInvalidationClosure(t *testing.T) {
	g, gt := pipeline(t,
		"ATCGGC[TC[A,G]TC,GG[T,G]GG]AT",
		append(repeat("ATCGGCTCGTCAT", 7), "ATCGGCGGG"),
		genotype.DefaultParams())

	outer := gt.Record(prg.Symbol(5))
	require.False(t, outer.IsNull())
	called := map[int]bool{}
	for _, h := range outer.Haplogroups {
		called[h] = true
	}
	for hap, children := range g.ChildMap[prg.Symbol(5)] {
		if called[hap] {
			continue
		}
		for _, child := range children {
			assert.True(t, gt.Record(child).IsNull(), "site %d under excluded haplogroup %d", child, hap)
		}
	}
}

func TestCalibrateAssignsPercentiles(t *testing.T) {
	reads := append(repeat("AATAACAACAA", 5), "AATAAGAACAA")
	params := genotype.DefaultParams()
	params.Seed = 3
	_, gt := pipeline(t, "AATAA[C,G]AA[C,G]AA", reads, params)
	require.NoError(t, gt.Calibrate())
	for _, rec := range gt.Records() {
		assert.GreaterOrEqual(t, rec.Percentile, 0.0)
		assert.LessOrEqual(t, rec.Percentile, 100.0)
	}
}
