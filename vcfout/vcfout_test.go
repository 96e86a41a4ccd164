package vcfout_test

import (
	"strings"
	"testing"

	"github.com/grailbio/vgraph/allele"
	"github.com/grailbio/vgraph/genotype"
	"github.com/grailbio/vgraph/vcfout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, ploidy genotype.Ploidy, sites ...*genotype.Site) []string {
	t.Helper()
	var b strings.Builder
	w := vcfout.New(&b, "prg", "sample", ploidy)
	for _, s := range sites {
		require.NoError(t, w.Write(s))
	}
	require.NoError(t, w.Flush())
	return strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
}

func calledSite() *genotype.Site {
	return &genotype.Site{
		SiteID: 5,
		Pos:    6,
		Alleles: []allele.Allele{
			{Seq: "C", Haplogroup: 0, Callable: true},
			{Seq: "G", Haplogroup: 1, Callable: true},
		},
		GT:         []int{1},
		AlleleCovs: []float64{0, 6},
		TotalCov:   6,
		GTConf:     39.5,
		Percentile: 88.25,
	}
}

func TestWriteHeaderDeclaresExtendedFormat(t *testing.T) {
	lines := render(t, genotype.Haploid, calledSite())
	header := strings.Join(lines, "\n")
	assert.Contains(t, header, "##fileformat=VCFv4.2")
	assert.Contains(t, header, "##FORMAT=<ID=GT_CONF,")
	assert.Contains(t, header, "##FORMAT=<ID=GT_CONF_PERCENTILE,")
	assert.Contains(t, header, "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tsample")
}

func TestWriteCalledRecord(t *testing.T) {
	lines := render(t, genotype.Haploid, calledSite())
	record := lines[len(lines)-1]
	fields := strings.Split(record, "\t")
	require.Len(t, fields, 10)
	assert.Equal(t, "prg", fields[0])
	assert.Equal(t, "6", fields[1])
	assert.Equal(t, "C", fields[3])
	assert.Equal(t, "G", fields[4])
	assert.Equal(t, "PASS", fields[6])
	assert.Equal(t, "GT:DP:COV:GT_CONF:GT_CONF_PERCENTILE", fields[8])
	assert.Equal(t, "1:6:0,6:39.5:88.25", fields[9])
}

func TestWriteNullRecord(t *testing.T) {
	site := &genotype.Site{
		SiteID:     7,
		Pos:        3,
		Alleles:    []allele.Allele{{Seq: "TTT", Haplogroup: 0}},
		Percentile: -1,
	}
	site.SetFilter(genotype.FilterMissingDepth)

	lines := render(t, genotype.Diploid, site)
	fields := strings.Split(lines[len(lines)-1], "\t")
	assert.Equal(t, "TTT", fields[3])
	assert.Equal(t, ".", fields[4])
	assert.Equal(t, "MISSING_DEPTH", fields[6])
	assert.Equal(t, "./.:0:.:0:.", fields[9])
}

func TestWriteEmptyAlleleRendersStar(t *testing.T) {
	site := &genotype.Site{
		SiteID: 5,
		Pos:    6,
		Alleles: []allele.Allele{
			{Seq: "CCC", Haplogroup: 0, Callable: true},
			{Seq: "", Haplogroup: 1, Callable: true},
		},
		GT:         []int{1},
		AlleleCovs: []float64{0, 5},
		TotalCov:   5,
		GTConf:     12,
		Percentile: -1,
	}
	lines := render(t, genotype.Haploid, site)
	fields := strings.Split(lines[len(lines)-1], "\t")
	assert.Equal(t, "CCC", fields[3])
	assert.Equal(t, "*", fields[4])
}
