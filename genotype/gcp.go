package genotype

import (
	"github.com/grailbio/vgraph/allele"
	"github.com/grailbio/vgraph/coverage"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// ConfDistribSize is the size of the confidence distribution the
// percentile calibration is computed against.
const ConfDistribSize = 10000

// Calibrate runs the GCP pass: gather up to ConfDistribSize confidences
// (topping up with simulated two-allele bubbles when the PRG has fewer
// sites), then assign every record its GT_CONF percentile. Returns a
// NotEnoughData error when fewer than two confidences could be obtained.
func (gt *Genotyper) Calibrate() error {
	rng := rand.New(rand.NewSource(gt.params.Seed))
	confidences := make([]float64, 0, ConfDistribSize)
	if len(gt.records) > ConfDistribSize {
		for len(confidences) < ConfDistribSize {
			confidences = append(confidences, gt.records[rng.Intn(len(gt.records))].GTConf)
		}
	} else {
		for _, rec := range gt.records {
			confidences = append(confidences, rec.GTConf)
		}
		for len(confidences) < ConfDistribSize {
			confidences = append(confidences, gt.simulateConfidence(rng))
		}
	}
	p, err := NewPercentiler(confidences)
	if err != nil {
		return err
	}
	for _, rec := range gt.records {
		rec.Percentile = p.Percentile(rec.GTConf)
	}
	return nil
}

// simulateConfidence draws one synthetic two-allele bubble from the fitted
// depth and error models and runs the same likelihood code on it.
func (gt *Genotyper) simulateConfidence(rng *rand.Rand) float64 {
	ls := gt.lstats
	correct := ls.PmfFull.Sample(rng)
	errModel := distuv.Binomial{N: ls.MeanDepth, P: ls.MeanPbError, Src: rng}
	incorrect := errModel.Rand()

	alleles := []allele.Allele{
		{Seq: "C", PbCov: []uint32{uint32(correct)}, Haplogroup: 0, Callable: true},
		{Seq: "A", PbCov: []uint32{uint32(incorrect)}, Haplogroup: 1, Callable: true},
	}
	groups := []coverage.GroupCount{
		{Alleles: []int{0}, Count: int64(correct)},
		{Alleles: []int{1}, Count: int64(incorrect)},
	}
	site := runModel(modelInput{
		alleles:        alleles,
		groups:         groups,
		numHaplogroups: 2,
		ploidy:         gt.params.Ploidy,
		lstats:         ls,
	})
	return site.GTConf
}
