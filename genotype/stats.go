package genotype

import (
	"math"

	"github.com/grailbio/vgraph/coverage"
	"github.com/grailbio/vgraph/covgraph"
)

// ReadStats aggregates what the likelihood model needs to know about the
// mapped read set: the per-base sequencing error rate (from quality
// strings) and the coverage depth distribution over level-0 sites.
type ReadStats struct {
	NumBases     int64
	SumError     float64
	NoQualReads  int64
	MaxReadLen   int
	MeanDepth    float64
	VarDepth     float64
	SitesNoCov   int
	SitesLevel0  int
}

// defaultPbError is used when no read carried a quality string.
const defaultPbError = 0.01

// AddQualities folds one read's Phred+33 quality string into the error
// estimate.
func (r *ReadStats) AddQualities(qual string) {
	if len(qual) == 0 {
		r.NoQualReads++
		return
	}
	for i := 0; i < len(qual); i++ {
		q := float64(qual[i] - 33)
		r.SumError += math.Pow(10, -q/10)
	}
	r.NumBases += int64(len(qual))
	if len(qual) > r.MaxReadLen {
		r.MaxReadLen = len(qual)
	}
}

// MeanPbError returns the average per-base error probability.
func (r *ReadStats) MeanPbError() float64 {
	if r.NumBases == 0 {
		return defaultPbError
	}
	return r.SumError / float64(r.NumBases)
}

// ComputeDepth derives the mean and variance of coverage depth from the
// grouped allele counts of level-0 sites. Coverage propagates upward
// through nesting, so nested sites are excluded to avoid double counting.
func (r *ReadStats) ComputeDepth(cov *coverage.Coverage, g *covgraph.Graph) {
	var totals []float64
	for _, site := range g.BubbleOrder {
		if _, nested := g.ParentMap[site]; nested {
			continue
		}
		total := float64(cov.SiteTotal(site))
		totals = append(totals, total)
		if total == 0 {
			r.SitesNoCov++
		}
	}
	r.SitesLevel0 = len(totals)
	if len(totals) == 0 {
		return
	}
	var sum float64
	for _, t := range totals {
		sum += t
	}
	r.MeanDepth = sum / float64(len(totals))
	var ss float64
	for _, t := range totals {
		d := t - r.MeanDepth
		ss += d * d
	}
	r.VarDepth = ss / float64(len(totals))
}

// LikelihoodStats carries the fitted emission model and the constants the
// per-site likelihood formulae reuse.
type LikelihoodStats struct {
	MeanDepth   float64
	VarDepth    float64
	MeanPbError float64

	LogPbError float64
	// LogZero / LogZeroHalf are logPMF(0) at full and half depth: the
	// canonical "coverage not on this allele" term.
	LogZero     float64
	LogZeroHalf float64
	// LogNoZero / LogNoZeroHalf are log(1 - P(0)).
	LogNoZero     float64
	LogNoZeroHalf float64
	// CredibleCovT is the smallest per-base count more likely under the
	// depth model than under the error model.
	CredibleCovT int

	PmfFull LogPmf
	PmfHalf LogPmf
}

// MakeLikelihoodStats fits the emission model: Poisson when the depth
// variance is at most the mean, negative binomial (method of moments)
// otherwise, with a half-depth twin for diploid genotypes.
func MakeLikelihoodStats(meanDepth, varDepth, meanPbError float64) *LikelihoodStats {
	ls := &LikelihoodStats{
		MeanDepth:   meanDepth,
		VarDepth:    varDepth,
		MeanPbError: meanPbError,
		LogPbError:  math.Log(meanPbError),
	}
	if varDepth > meanDepth {
		r := meanDepth * meanDepth / (varDepth - meanDepth)
		p := r / (meanDepth + r)
		ls.PmfFull = NewNegBinom(r, p)
		ls.LogNoZero = math.Log(1 - math.Pow(p, r))

		// Half depth keeps the index of dispersion by halving both
		// moments.
		halfMean, halfVar := meanDepth/2, varDepth/2
		rHalf := halfMean * halfMean / (halfVar - halfMean)
		pHalf := rHalf / (halfMean + rHalf)
		ls.PmfHalf = NewNegBinom(rHalf, pHalf)
		ls.LogNoZeroHalf = math.Log(1 - math.Pow(pHalf, rHalf))
	} else {
		ls.PmfFull = NewPoisson(meanDepth)
		ls.LogNoZero = math.Log(1 - math.Exp(-meanDepth))
		ls.PmfHalf = NewPoisson(meanDepth / 2)
		ls.LogNoZeroHalf = math.Log(1 - math.Exp(-meanDepth/2))
	}
	ls.LogZero = ls.PmfFull.LogProb(0)
	ls.LogZeroHalf = ls.PmfHalf.LogProb(0)
	ls.CredibleCovT = findCredibleCovT(meanPbError, ls.PmfFull)
	return ls
}

// findCredibleCovT returns the smallest k >= 1 whose probability under the
// depth model exceeds that of k error bases. A zero-depth model never
// satisfies that, but such runs only ever emit null calls; 1 keeps the
// threshold well-defined.
func findCredibleCovT(meanPbError float64, pmf LogPmf) int {
	if math.IsInf(pmf.LogProb(1), -1) {
		return 1
	}
	k := 1
	for pmf.LogProb(float64(k)) <= float64(k)*math.Log(meanPbError) {
		k++
	}
	return k
}
