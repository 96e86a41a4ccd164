// Package vcfout writes genotyped sites as VCF 4.2, one record per
// bubble, with the GT_CONF and GT_CONF_PERCENTILE FORMAT extensions.
// Rows are assembled column by column into a bufio.Writer.
package vcfout

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/vgraph/genotype"
	"github.com/pkg/errors"
)

// Writer emits one VCF stream.
type Writer struct {
	w        *bufio.Writer
	contig   string
	sample   string
	ploidy   genotype.Ploidy
	wroteHdr bool
}

// New returns a Writer emitting records against the given contig and
// sample names.
func New(w io.Writer, contig, sample string, ploidy genotype.Ploidy) *Writer {
	return &Writer{w: bufio.NewWriter(w), contig: contig, sample: sample, ploidy: ploidy}
}

func (v *Writer) header() {
	v.w.WriteString("##fileformat=VCFv4.2\n")
	v.w.WriteString("##source=vgraph\n")
	fmt.Fprintf(v.w, "##contig=<ID=%s>\n", v.contig)
	v.w.WriteString("##Model=LevelGenotyping\n")
	v.w.WriteString("##FILTER=<ID=AMBIG,Description=\"Ambiguous call: low coverage or nearly tied likelihoods\">\n")
	v.w.WriteString("##FILTER=<ID=MISSING_DEPTH,Description=\"Zero coverage on the site\">\n")
	v.w.WriteString("##FORMAT=<ID=GT,Number=1,Type=String,Description=\"Genotype\">\n")
	v.w.WriteString("##FORMAT=<ID=DP,Number=1,Type=Integer,Description=\"Total read depth on the site\">\n")
	v.w.WriteString("##FORMAT=<ID=COV,Number=R,Type=Float,Description=\"Coverage on each called allele\">\n")
	v.w.WriteString("##FORMAT=<ID=GT_CONF,Number=1,Type=Float,Description=\"Genotype confidence as likelihood ratio of called and next most likely genotype\">\n")
	v.w.WriteString("##FORMAT=<ID=GT_CONF_PERCENTILE,Number=1,Type=Float,Description=\"Percent of calls expected to have lower GT_CONF\">\n")
	fmt.Fprintf(v.w, "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\t%s\n", v.sample)
	v.wroteHdr = true
}

// Write emits one site record.
func (v *Writer) Write(site *genotype.Site) error {
	if !v.wroteHdr {
		v.header()
	}
	ref, alts := refAlt(site)
	cols := []string{
		v.contig,
		strconv.Itoa(site.Pos),
		".",
		ref,
		alts,
		".",
		filterColumn(site),
		".",
		"GT:DP:COV:GT_CONF:GT_CONF_PERCENTILE",
		v.sampleColumn(site),
	}
	if _, err := v.w.WriteString(strings.Join(cols, "\t") + "\n"); err != nil {
		return errors.Wrap(err, "write VCF record")
	}
	return nil
}

// Flush completes the stream.
func (v *Writer) Flush() error {
	if !v.wroteHdr {
		v.header()
	}
	return v.w.Flush()
}

// refAlt renders the REF and ALT columns. Empty alleles (direct
// deletions) render as "*": the graph carries no anchor base to pad them
// with.
func refAlt(site *genotype.Site) (string, string) {
	ref := seqOrStar(site.Alleles[0].Seq)
	if len(site.Alleles) == 1 {
		return ref, "."
	}
	alts := make([]string, 0, len(site.Alleles)-1)
	for _, a := range site.Alleles[1:] {
		alts = append(alts, seqOrStar(a.Seq))
	}
	return ref, strings.Join(alts, ",")
}

func seqOrStar(seq string) string {
	if seq == "" {
		return "*"
	}
	return seq
}

func filterColumn(site *genotype.Site) string {
	var names []string
	for _, name := range []string{genotype.FilterAmbig, genotype.FilterMissingDepth} {
		if site.HasFilter(name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "PASS"
	}
	sort.Strings(names)
	return strings.Join(names, ";")
}

func (v *Writer) sampleColumn(site *genotype.Site) string {
	gt := v.gtField(site)
	covs := make([]string, 0, len(site.AlleleCovs))
	for _, c := range site.AlleleCovs {
		covs = append(covs, trimFloat(c))
	}
	cov := strings.Join(covs, ",")
	if cov == "" {
		cov = "."
	}
	pct := "."
	if site.Percentile >= 0 {
		pct = trimFloat(site.Percentile)
	}
	return strings.Join([]string{
		gt,
		strconv.FormatInt(site.TotalCov, 10),
		cov,
		trimFloat(site.GTConf),
		pct,
	}, ":")
}

// gtField renders the genotype indices, "." per ploid slot for null
// calls.
func (v *Writer) gtField(site *genotype.Site) string {
	slots := 1
	if v.ploidy == genotype.Diploid {
		slots = 2
	}
	if site.IsNull() {
		return strings.Repeat("./", slots-1) + "."
	}
	parts := make([]string, len(site.GT))
	for i, gt := range site.GT {
		parts[i] = strconv.Itoa(gt)
	}
	return strings.Join(parts, "/")
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}
