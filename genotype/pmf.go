// Package genotype calls a genotype on every bubble of the coverage
// graph: candidate alleles come from the allele extracter,
// a Poisson or negative-binomial emission model scores haploid and diploid
// genotypes, calls propagate through nested sites via invalidation, and a
// final calibration pass converts raw confidences to percentiles.
package genotype

import (
	"math"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// LogPmf is a log probability mass function over non-negative counts.
// Implementations memoise by argument: the genotyper and the calibration
// simulator evaluate the same handful of counts over and over.
type LogPmf interface {
	LogProb(k float64) float64
	// Sample draws one count from the distribution.
	Sample(rng *rand.Rand) float64
}

type memo struct {
	mu    sync.Mutex
	cache map[float64]float64
}

func (m *memo) get(k float64, compute func(float64) float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.cache[k]; ok {
		return v
	}
	v := compute(k)
	m.cache[k] = v
	return v
}

// poissonPmf is the emission model when depth variance <= mean.
type poissonPmf struct {
	dist distuv.Poisson
	memo memo
}

// NewPoisson returns a memoising Poisson log-PMF with the given mean.
func NewPoisson(lambda float64) LogPmf {
	return &poissonPmf{
		dist: distuv.Poisson{Lambda: lambda},
		memo: memo{cache: map[float64]float64{}},
	}
}

func (p *poissonPmf) LogProb(k float64) float64 {
	return p.memo.get(k, func(k float64) float64 {
		if p.dist.Lambda == 0 {
			if k == 0 {
				return 0
			}
			return math.Inf(-1)
		}
		return p.dist.LogProb(math.Floor(k))
	})
}

func (p *poissonPmf) Sample(rng *rand.Rand) float64 {
	d := p.dist
	d.Src = rng
	return d.Rand()
}

// negBinomPmf is the emission model when depth is over-dispersed
// (variance > mean), parameterised by method of moments: r successes with
// success probability p give mean r(1-p)/p.
type negBinomPmf struct {
	r, p float64
	memo memo
}

// NewNegBinom returns a memoising negative-binomial log-PMF.
func NewNegBinom(r, p float64) LogPmf {
	return &negBinomPmf{r: r, p: p, memo: memo{cache: map[float64]float64{}}}
}

func (n *negBinomPmf) LogProb(k float64) float64 {
	return n.memo.get(k, func(k float64) float64 {
		k = math.Floor(k)
		if k < 0 {
			return math.Inf(-1)
		}
		lgKR, _ := math.Lgamma(k + n.r)
		lgK, _ := math.Lgamma(k + 1)
		lgR, _ := math.Lgamma(n.r)
		return lgKR - lgK - lgR + n.r*math.Log(n.p) + k*math.Log(1-n.p)
	})
}

// Sample draws via the gamma-Poisson mixture: a negative binomial is a
// Poisson whose rate is gamma-distributed.
func (n *negBinomPmf) Sample(rng *rand.Rand) float64 {
	gamma := distuv.Gamma{Alpha: n.r, Beta: n.p / (1 - n.p), Src: rng}
	pois := distuv.Poisson{Lambda: gamma.Rand(), Src: rng}
	if pois.Lambda <= 0 {
		return 0
	}
	return pois.Rand()
}
