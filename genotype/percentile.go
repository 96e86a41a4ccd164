package genotype

import (
	"sort"

	"github.com/grailbio/vgraph/vgerrors"
)

// Percentiler converts raw genotype confidences into 0-100 percentiles
// against an empirical (partly simulated) confidence distribution.
type Percentiler struct {
	confs []float64
	pcts  []float64
}

// NewPercentiler builds the percentile table from a confidence
// distribution. Runs of identical confidences collapse to one entry at
// their average percentile. Fails with NotEnoughData below two entries.
func NewPercentiler(confidences []float64) (*Percentiler, error) {
	if len(confidences) < 2 {
		return nil, vgerrors.E(vgerrors.NotEnoughData, "need at least two confidences for percentiles", nil)
	}
	sorted := append([]float64(nil), confidences...)
	sort.Float64s(sorted)
	n := float64(len(sorted))
	p := &Percentiler{}
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		lo := 100 * float64(i+1) / n
		hi := 100 * float64(j) / n
		p.confs = append(p.confs, sorted[i])
		p.pcts = append(p.pcts, lo+(hi-lo)/2)
		i = j
	}
	return p, nil
}

// Percentile looks a confidence up in the table: exact entries return
// their stored percentile, values beyond either end clamp to 0 or 100,
// and anything between two entries interpolates linearly.
func (p *Percentiler) Percentile(conf float64) float64 {
	i := sort.SearchFloat64s(p.confs, conf)
	if i < len(p.confs) && p.confs[i] == conf {
		return p.pcts[i]
	}
	if i == 0 {
		return 0
	}
	if i == len(p.confs) {
		return 100
	}
	loC, hiC := p.confs[i-1], p.confs[i]
	loP, hiP := p.pcts[i-1], p.pcts[i]
	return loP + (hiP-loP)*(conf-loC)/(hiC-loC)
}
