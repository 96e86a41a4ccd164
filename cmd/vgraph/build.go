package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/vgraph/covgraph"
	"github.com/grailbio/vgraph/fmindex"
	"github.com/grailbio/vgraph/prg"
	"github.com/grailbio/vgraph/vgerrors"
	"github.com/pkg/errors"
	"v.io/x/lib/cmdline"
)

// Filenames inside a built PRG directory.
const (
	prgFileName   = "prg.bin"
	indexFileName = "fmindex.zst"
	dotFileName   = "graph.dot"
)

type buildFlags struct {
	prgPath   *string
	kmerSize  *int
	bigEndian *bool
	dumpGraph *bool
	outDir    *string
}

func newCmdBuild() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "build",
		Short: "Encode a PRG and build its FM-index",
		Long: `
Build reads a PRG -- packed 64-bit integers, or text in bracketed
("AA[C,G]TT") or numbered ("AA5C6G5TT") form, chosen by content -- then
validates it, builds the FM-index, and writes both into the output
directory for the genotype subcommand to load.
`,
	}
	flags := buildFlags{
		prgPath:   cmd.Flags.String("prg", "", "Input PRG path (packed integers or text)."),
		kmerSize:  cmd.Flags.Int("kmer-size", 0, "Accepted for interface compatibility; search seeds from the empty interval, so this is unused."),
		bigEndian: cmd.Flags.Bool("big-endian", false, "Persist the encoded PRG big-endian."),
		dumpGraph: cmd.Flags.Bool("dump-graph", false, "Also write the coverage graph in DOT form."),
		outDir:    cmd.Flags.String("out", "", "Output directory."),
	}
	cmd.Runner = cmdline.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		return runExit(runBuild(flags))
	})
	return cmd
}

func runBuild(flags buildFlags) error {
	ctx := context.Background()
	if *flags.prgPath == "" || *flags.outDir == "" {
		return errors.New("build requires --prg and --out")
	}
	if *flags.kmerSize != 0 {
		log.Printf("build: --kmer-size is accepted but unused; searches seed from the empty interval")
	}
	if err := os.MkdirAll(*flags.outDir, 0o777); err != nil {
		return errors.Wrap(err, "create output directory")
	}
	p, err := loadAnyPRG(ctx, *flags.prgPath)
	if err != nil {
		return err
	}
	graph, err := covgraph.Build(p)
	if err != nil {
		return err
	}
	idx, err := fmindex.Build(p)
	if err != nil {
		return err
	}

	endian := prg.LittleEndian
	if *flags.bigEndian {
		endian = prg.BigEndian
	}
	if err := prg.Write(ctx, filepath.Join(*flags.outDir, prgFileName), p, endian); err != nil {
		return err
	}
	if err := fmindex.Save(ctx, filepath.Join(*flags.outDir, indexFileName), idx); err != nil {
		return err
	}
	if *flags.dumpGraph {
		if err := writeDot(ctx, filepath.Join(*flags.outDir, dotFileName), graph); err != nil {
			return err
		}
	}
	log.Printf("build: %d symbols, %d sites, %d graph nodes",
		len(p.Symbols), p.NumSites(), graph.NumNodes())
	return nil
}

// loadAnyPRG accepts the packed integer format or either textual form.
// Packed files are recognised by their magic byte; text is bracketed when
// it contains any of '[', ']' or ',', numbered otherwise.
func loadAnyPRG(ctx context.Context, path string) (*prg.PRG, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, vgerrors.E(vgerrors.InvalidPRG, "open "+path, err)
	}
	raw, err := io.ReadAll(f.Reader(ctx))
	closeErr := f.Close(ctx)
	if err != nil {
		return nil, vgerrors.E(vgerrors.InvalidPRG, "read "+path, err)
	}
	if closeErr != nil {
		return nil, vgerrors.E(vgerrors.InvalidPRG, "close "+path, closeErr)
	}
	if prg.IsPacked(raw) {
		return prg.Read(ctx, path)
	}
	text := strings.TrimSpace(string(raw))
	if strings.ContainsAny(text, "[],") {
		return prg.ParseBracketed(text)
	}
	return prg.ParseNumbered(text)
}
