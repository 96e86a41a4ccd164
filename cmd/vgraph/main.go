// vgraph maps reads onto a population reference graph and genotypes its
// variant sites.
//
// Two subcommands mirror the two phases:
//
//	vgraph build --prg ref.prg --out gram/
//	vgraph genotype --prg gram/ --reads reads.fastq.gz --out calls/
package main

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/vgraph/vgerrors"
	"v.io/x/lib/cmdline"
)

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:  "vgraph",
		Short: "Genome graph read mapper and genotyper",
		Long: `
vgraph quasi-maps short reads onto a population reference graph (PRG),
accumulates coverage on the graph, and genotypes every variant bubble with
a likelihood model that propagates calls through nested sites.
`,
		Children: []*cmdline.Command{newCmdBuild(), newCmdGenotype()},
	}
}

// runExit logs err and converts it to the process exit code its taxonomy
// kind demands.
func runExit(err error) error {
	if err == nil {
		return nil
	}
	log.Error.Print(err)
	return cmdline.ErrExitCode(vgerrors.ExitCode(vgerrors.KindOf(err)))
}

func main() {
	cmdline.Main(newCmdRoot())
}
