package genotype

import (
	"sort"

	"github.com/grailbio/vgraph/allele"
	"github.com/grailbio/vgraph/coverage"
)

// Ploidy selects the genotype space the model scores.
type Ploidy int

const (
	// Haploid considers single-allele genotypes.
	Haploid Ploidy = iota
	// Diploid considers homozygous and heterozygous pairs.
	Diploid
)

// modelInput is everything one bubble's call depends on.
type modelInput struct {
	alleles        []allele.Allele
	groups         []coverage.GroupCount
	numHaplogroups int
	ploidy         Ploidy
	lstats         *LikelihoodStats
	// ignoreRef excludes allele 0 from the likelihood ranking (set when
	// the REF allele had to be synthesised).
	ignoreRef bool
}

type candidate struct {
	ll float64
	gt []int // indices into the used-allele vector
}

// model scores one bubble's candidate genotypes.
type model struct {
	in        modelInput
	totalCov  int64
	haploid   []float64 // per-haplogroup coverage
	singleton []float64 // per-haplogroup singleton-group coverage
	mults     []bool    // haplogroup carries >1 candidate allele
	// diploidMemo caches split coverages keyed by sorted haplogroup pair.
	diploidMemo map[[2]int][2]float64
	candidates  []candidate
}

// runModel genotypes one bubble and returns its record (without position or
// filter bookkeeping, which the runner owns).
func runModel(in modelInput) *Site {
	m := &model{in: in, diploidMemo: map[[2]int][2]float64{}}
	site := &Site{NumHaplogroups: in.numHaplogroups}
	for _, gc := range in.groups {
		m.totalCov += gc.Count
	}
	site.TotalCov = m.totalCov
	if m.totalCov == 0 || in.lstats.MeanDepth == 0 {
		// Keep the first allele so extraction through the site remains
		// possible.
		site.Alleles = []allele.Allele{in.alleles[0]}
		return site
	}

	used := in.alleles
	offset := 0
	if in.ignoreRef {
		used = in.alleles[1:]
		offset = 1
	}
	m.setHaploidCoverages()
	m.setMultiplicities(used)
	used = m.assignEmptyAlleleCoverage(used)

	switch in.ploidy {
	case Haploid:
		m.haploidLikelihoods(used)
	case Diploid:
		m.homozygousLikelihoods(used)
		m.heterozygousLikelihoods(used)
	}
	m.rankCandidates()

	best := m.candidates[0]
	if len(m.candidates) > 1 {
		site.GTConf = best.ll - m.candidates[1].ll
	}

	// Back into the full-allele index space.
	chosen := make([]int, len(best.gt))
	for i, gt := range best.gt {
		chosen[i] = gt + offset
	}
	site.Haplogroups = chosenHaplogroups(in.alleles, chosen)
	site.AlleleCovs = m.calledCoverages(site.Haplogroups)

	rescaled := rescaleGenotypes(chosen)
	var calledAlleles []allele.Allele
	seen := map[int]bool{}
	for _, gt := range chosen {
		if !seen[gt] {
			seen[gt] = true
			calledAlleles = append(calledAlleles, in.alleles[gt])
		}
	}
	if rescaled[0] != 0 {
		// REF was not called: prepend it so consumers always see it at
		// index 0.
		calledAlleles = append([]allele.Allele{in.alleles[0]}, calledAlleles...)
		refCov := m.singleton[0]
		if m.mults[0] {
			refCov /= 2
		}
		site.AlleleCovs = append([]float64{refCov}, site.AlleleCovs...)
	}
	site.Alleles = calledAlleles
	site.GT = rescaled

	// Export the runner-up's alleles for parent extraction when the call
	// is shaky.
	if len(m.candidates) > 1 {
		site.Extra = m.nextBestAlleles(in.alleles, chosen, offset)
	}
	return site
}

func (m *model) setHaploidCoverages() {
	m.haploid = make([]float64, m.in.numHaplogroups)
	m.singleton = make([]float64, m.in.numHaplogroups)
	for _, gc := range m.in.groups {
		for _, id := range gc.Alleles {
			m.haploid[id] += float64(gc.Count)
		}
		if len(gc.Alleles) == 1 {
			m.singleton[gc.Alleles[0]] = float64(gc.Count)
		}
	}
}

func (m *model) setMultiplicities(used []allele.Allele) {
	counts := make([]int, m.in.numHaplogroups)
	for _, a := range used {
		counts[a.Haplogroup]++
	}
	m.mults = make([]bool, m.in.numHaplogroups)
	for h, n := range counts {
		m.mults[h] = n > 1
	}
}

// assignEmptyAlleleCoverage gives zero-length alleles (direct deletions) a
// single-entry per-base vector holding their haplogroup coverage, so the
// credible-position fraction is defined for them too.
func (m *model) assignEmptyAlleleCoverage(used []allele.Allele) []allele.Allele {
	out := make([]allele.Allele, len(used))
	copy(out, used)
	for i := range out {
		if len(out[i].PbCov) == 0 {
			out[i].PbCov = []uint32{uint32(m.haploid[out[i].Haplogroup])}
		}
	}
	return out
}

func (m *model) fracCredible(a *allele.Allele) float64 {
	credible := 0
	for _, c := range a.PbCov {
		if int(c) >= m.in.lstats.CredibleCovT {
			credible++
		}
	}
	return float64(credible) / float64(len(a.PbCov))
}

func (m *model) haploidLikelihoods(used []allele.Allele) {
	ls := m.in.lstats
	for i := range used {
		a := &used[i]
		covOn := m.haploid[a.Haplogroup]
		covNot := float64(m.totalCov) - covOn
		f := m.fracCredible(a)
		ll := ls.PmfFull.LogProb(covOn) +
			ls.LogPbError*covNot +
			f*ls.LogNoZero +
			(1-f)*ls.LogZero
		m.candidates = append(m.candidates, candidate{ll: ll, gt: []int{i}})
	}
}

func (m *model) homozygousLikelihoods(used []allele.Allele) {
	ls := m.in.lstats
	for i := range used {
		a := &used[i]
		covs := m.diploidCoverage([2]int{a.Haplogroup, a.Haplogroup})
		covOn := covs[0]
		covNot := float64(m.totalCov) - covOn
		covOn /= 2 // half-depth PMF evaluated twice on half the coverage
		f := m.fracCredible(a)
		ll := 2*ls.PmfHalf.LogProb(covOn) +
			ls.LogPbError*covNot +
			f*ls.LogNoZero +
			(1-f)*ls.LogZero
		m.candidates = append(m.candidates, candidate{ll: ll, gt: []int{i, i}})
	}
}

func (m *model) heterozygousLikelihoods(used []allele.Allele) {
	ls := m.in.lstats
	var selected []int
	for i := range used {
		if m.singleton[used[i].Haplogroup] != 0 {
			selected = append(selected, i)
		}
	}
	if len(selected) < 2 {
		return
	}
	for x := 0; x < len(selected); x++ {
		for y := x + 1; y < len(selected); y++ {
			i, j := selected[x], selected[y]
			a1, a2 := &used[i], &used[j]
			covs := m.diploidCoverage([2]int{a1.Haplogroup, a2.Haplogroup})
			f1, f2 := m.fracCredible(a1), m.fracCredible(a2)
			ll := ls.PmfHalf.LogProb(covs[0]) +
				ls.PmfHalf.LogProb(covs[1]) +
				(float64(m.totalCov)-covs[0]-covs[1])*ls.LogPbError +
				(f1+f2)*ls.LogNoZeroHalf +
				(1-f1+1-f2)*ls.LogZeroHalf
			m.candidates = append(m.candidates, candidate{ll: ll, gt: []int{i, j}})
		}
	}
}

// diploidCoverage splits the two haplogroups' coverage: shared reads go to
// each side proportionally to its specific (unshared) coverage, 50/50 when
// neither has any, and a haplogroup carrying two candidate alleles has its
// share halved.
func (m *model) diploidCoverage(ids [2]int) [2]float64 {
	if ids[0] > ids[1] {
		ids[0], ids[1] = ids[1], ids[0]
	}
	if covs, ok := m.diploidMemo[ids]; ok {
		return covs
	}
	var covs [2]float64
	if ids[0] == ids[1] {
		cov := m.haploid[ids[0]]
		if m.mults[ids[0]] {
			cov /= 2
		}
		covs = [2]float64{cov, cov}
	} else {
		cov1, cov2 := m.haploid[ids[0]], m.haploid[ids[1]]
		var shared float64
		for _, gc := range m.in.groups {
			has1, has2 := false, false
			for _, id := range gc.Alleles {
				has1 = has1 || id == ids[0]
				has2 = has2 || id == ids[1]
			}
			if has1 && has2 {
				shared += float64(gc.Count)
			}
		}
		specific1, specific2 := cov1-shared, cov2-shared
		belonging1 := 0.5
		if specific1 != 0 || specific2 != 0 {
			belonging1 = specific1 / (specific1 + specific2)
		}
		cov1 -= (1 - belonging1) * shared
		cov2 -= belonging1 * shared
		if m.mults[ids[0]] {
			cov1 /= 2
		}
		if m.mults[ids[1]] {
			cov2 /= 2
		}
		covs = [2]float64{cov1, cov2}
	}
	m.diploidMemo[ids] = covs
	return covs
}

// rankCandidates orders by likelihood, breaking exact ties in favour of
// the lexicographically smallest genotype index tuple so calls are
// reproducible.
func (m *model) rankCandidates() {
	sort.SliceStable(m.candidates, func(i, j int) bool {
		a, b := &m.candidates[i], &m.candidates[j]
		if a.ll != b.ll {
			return a.ll > b.ll
		}
		return lessIntSlice(a.gt, b.gt)
	})
}

func (m *model) calledCoverages(haplogroups []int) []float64 {
	if m.in.ploidy == Haploid {
		return []float64{m.haploid[haplogroups[0]]}
	}
	pair := [2]int{haplogroups[0], haplogroups[0]}
	if len(haplogroups) > 1 {
		pair[1] = haplogroups[1]
	}
	covs := m.diploidCoverage(pair)
	if pair[0] == pair[1] && !m.mults[pair[0]] {
		// Homozygous on a single-allele haplogroup: one coverage value.
		return []float64{covs[0]}
	}
	return []float64{covs[0], covs[1]}
}

// nextBestAlleles returns the runner-up genotype's alleles that the best
// call did not already select, flagged non-callable.
func (m *model) nextBestAlleles(alleles []allele.Allele, chosen []int, offset int) []allele.Allele {
	chosenSet := map[int]bool{}
	for _, gt := range chosen {
		chosenSet[gt] = true
	}
	var out []allele.Allele
	seen := map[int]bool{}
	for _, gt := range m.candidates[1].gt {
		full := gt + offset
		if chosenSet[full] || seen[full] {
			continue
		}
		seen[full] = true
		a := alleles[full]
		a.Callable = false
		out = append(out, a)
	}
	return out
}

func chosenHaplogroups(alleles []allele.Allele, chosen []int) []int {
	out := make([]int, len(chosen))
	for i, gt := range chosen {
		out[i] = alleles[gt].Haplogroup
	}
	sort.Ints(out)
	return out
}

// rescaleGenotypes renumbers called indices so REF stays 0 and the other
// called alleles count up from 1 in encounter order.
func rescaleGenotypes(genotypes []int) []int {
	rescaler := map[int]int{0: 0}
	next := 1
	out := make([]int, len(genotypes))
	for i, gt := range genotypes {
		if _, ok := rescaler[gt]; !ok {
			rescaler[gt] = next
			next++
		}
		out[i] = rescaler[gt]
	}
	return out
}

func lessIntSlice(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
