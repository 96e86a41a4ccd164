package main

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/vgraph/coverage"
	"github.com/grailbio/vgraph/covgraph"
	"github.com/grailbio/vgraph/covjson"
	"github.com/grailbio/vgraph/fmindex"
	"github.com/grailbio/vgraph/genotype"
	"github.com/grailbio/vgraph/prg"
	"github.com/grailbio/vgraph/quasimap"
	"github.com/grailbio/vgraph/search"
	"github.com/grailbio/vgraph/vcfout"
	"github.com/grailbio/vgraph/vgerrors"
	"github.com/pkg/errors"
	"v.io/x/lib/cmdline"
)

type genotypeFlags struct {
	prgDir        *string
	reads         *string
	maxReadLength *int
	ploidy        *string
	seed          *int
	threads       *int
	gcp           *string
	outDir        *string
}

func newCmdGenotype() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "genotype",
		Short: "Map reads onto a built PRG and genotype every bubble",
		Long: `
Genotype loads a directory produced by build, quasi-maps every read
(forward and reverse complement), accumulates coverage, runs the nested
genotyper, and writes the coverage JSONs plus a VCF into the output
directory.
`,
	}
	flags := genotypeFlags{
		prgDir:        cmd.Flags.String("prg", "", "Directory produced by vgraph build."),
		reads:         cmd.Flags.String("reads", "", "Comma-separated FASTQ paths (.gz accepted)."),
		maxReadLength: cmd.Flags.Int("max-read-length", 0, "Skip reads longer than this; 0 disables."),
		ploidy:        cmd.Flags.String("ploidy", "haploid", "haploid or diploid."),
		seed:          cmd.Flags.Int("seed", 0, "Selection seed; 0 draws one from the OS."),
		threads:       cmd.Flags.Int("threads", 0, "Mapping worker count; 0 means all CPUs."),
		gcp:           cmd.Flags.String("gcp", "on", "Genotype confidence percentile calibration: on or off."),
		outDir:        cmd.Flags.String("out", "", "Output directory."),
	}
	cmd.Runner = cmdline.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		return runExit(runGenotype(flags))
	})
	return cmd
}

func runGenotype(flags genotypeFlags) error {
	ctx := context.Background()
	if *flags.prgDir == "" || *flags.reads == "" || *flags.outDir == "" {
		return errors.New("genotype requires --prg, --reads and --out")
	}
	ploidy := genotype.Haploid
	switch *flags.ploidy {
	case "haploid":
	case "diploid":
		ploidy = genotype.Diploid
	default:
		return errors.Errorf("unrecognised --ploidy %q", *flags.ploidy)
	}

	if err := os.MkdirAll(*flags.outDir, 0o777); err != nil {
		return errors.Wrap(err, "create output directory")
	}
	p, err := prg.Read(ctx, filepath.Join(*flags.prgDir, prgFileName))
	if err != nil {
		return err
	}
	idx, err := fmindex.Load(ctx, filepath.Join(*flags.prgDir, indexFileName))
	if err != nil {
		return err
	}
	graph, err := covgraph.Build(p)
	if err != nil {
		return err
	}
	sr, err := search.New(idx, graph)
	if err != nil {
		return err
	}

	seed := uint64(*flags.seed)
	if seed == 0 {
		seed = osSeed()
		log.Printf("genotype: seed 0 requested, using OS seed %d", seed)
	}

	cov := coverage.New(graph)
	stats, err := quasimap.Run(ctx, sr, cov, &quasimap.Params{
		Seed:          seed,
		Threads:       *flags.threads,
		MaxReadLength: *flags.maxReadLength,
	}, strings.Split(*flags.reads, ","))
	if err != nil {
		return err
	}
	stats.ReadStats.ComputeDepth(cov, graph)
	log.Printf("genotype: %d reads, %d skipped, %d orientation mappings, mean depth %.2f",
		stats.AllReads, stats.SkippedReads, stats.MappedReads, stats.ReadStats.MeanDepth)

	params := genotype.DefaultParams()
	params.Ploidy = ploidy
	params.Seed = seed
	params.GCP = *flags.gcp != "off"
	gt := genotype.Run(graph, cov, &stats.ReadStats, params)

	var gcpErr error
	if params.GCP {
		if gcpErr = gt.Calibrate(); gcpErr != nil {
			log.Printf("genotype: skipping GT_CONF percentiles: %v", gcpErr)
		}
	}

	if err := covjson.WriteAll(ctx, cov, graph,
		filepath.Join(*flags.outDir, "allele_base_counts.json"),
		filepath.Join(*flags.outDir, "allele_sum_coverage.json"),
		filepath.Join(*flags.outDir, "grouped_allele_counts.json"),
	); err != nil {
		return err
	}
	if err := writeVCF(ctx, filepath.Join(*flags.outDir, "genotypes.vcf"), gt, ploidy); err != nil {
		return err
	}
	// A run that produced output but could not calibrate still reports the
	// dedicated exit code for it.
	if gcpErr != nil && vgerrors.KindOf(gcpErr) == vgerrors.NotEnoughData {
		return gcpErr
	}
	return nil
}

func writeVCF(ctx context.Context, path string, gt *genotype.Genotyper, ploidy genotype.Ploidy) error {
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.Wrap(err, "create "+path)
	}
	w := vcfout.New(f.Writer(ctx), "prg", "sample", ploidy)
	for _, site := range gt.Records() {
		if site == nil {
			continue
		}
		if err := w.Write(site); err != nil {
			_ = f.Close(ctx)
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close(ctx)
		return err
	}
	return f.Close(ctx)
}

// osSeed draws a non-zero seed from the OS entropy source.
func osSeed() uint64 {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		log.Panicf("read OS entropy: %v", err)
	}
	seed := binary.LittleEndian.Uint64(buf[:])
	if seed == 0 {
		seed = 1
	}
	return seed
}
