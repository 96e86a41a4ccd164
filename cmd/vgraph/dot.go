package main

import (
	"context"

	"github.com/grailbio/base/file"
	"github.com/grailbio/vgraph/covgraph"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph/encoding/dot"
)

// writeDot renders the coverage graph's structural mirror for inspection
// with graphviz.
func writeDot(ctx context.Context, path string, g *covgraph.Graph) error {
	raw, err := dot.Marshal(g.Structural(), "covgraph", "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal coverage graph")
	}
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.Wrap(err, "create "+path)
	}
	if _, err := f.Writer(ctx).Write(raw); err != nil {
		_ = f.Close(ctx)
		return errors.Wrap(err, "write "+path)
	}
	return f.Close(ctx)
}
