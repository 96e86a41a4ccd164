// Package quasimap drives a whole mapping run: a single-threaded producer
// reads FASTQ records into a bounded buffer, worker goroutines each run
// the search -> select -> record pipeline for one read (forward and
// reverse complement) at a time, and the coverage structures absorb
// updates concurrently.
package quasimap

import (
	"context"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/vgraph/coverage"
	"github.com/grailbio/vgraph/genotype"
	"github.com/grailbio/vgraph/mapselect"
	"github.com/grailbio/vgraph/readio"
	"github.com/grailbio/vgraph/search"
)

// defaultBufferSize is how many records the producer keeps in flight.
const defaultBufferSize = 5000

// Params configures one mapping run.
type Params struct {
	// Seed drives mapping-instance selection; the caller substitutes an
	// OS-random value for 0 before the run starts so that reruns can be
	// reproduced from the logged value.
	Seed uint64
	// Threads is the worker count; 0 means GOMAXPROCS.
	Threads int
	// BufferSize bounds the producer's in-flight records; 0 means the
	// default of 5000.
	BufferSize int
	// MaxReadLength drops longer reads as BadRead; 0 disables the check.
	MaxReadLength int
}

// Stats summarises one mapping run.
type Stats struct {
	AllReads     int64
	SkippedReads int64
	MappedReads  int64
	ReadStats    genotype.ReadStats
}

// Run maps every record from every reads path onto the PRG, accumulating
// into cov. The stop flag is checked between buffers, so cancellation is
// cooperative and never interrupts a read mid-flight.
func Run(ctx context.Context, sr *search.Searcher, cov *coverage.Coverage, params *Params, readsPaths []string) (*Stats, error) {
	stats := &Stats{}
	var statsMu sync.Mutex

	bufSize := params.BufferSize
	if bufSize == 0 {
		bufSize = defaultBufferSize
	}
	threads := params.Threads
	if threads == 0 {
		threads = runtime.GOMAXPROCS(0)
	}

	reqCh := make(chan readio.Read, bufSize)
	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for read := range reqCh {
				mapOne(sr, cov, params, read, stats, &statsMu)
			}
		}()
	}

	var produceErr error
	for _, path := range readsPaths {
		if err := produce(ctx, path, reqCh, stats); err != nil {
			produceErr = err
			break
		}
	}
	close(reqCh)
	wg.Wait()
	if produceErr != nil {
		return nil, produceErr
	}
	return stats, nil
}

// produce streams one FASTQ file (plain or gzip) into the request
// channel.
func produce(ctx context.Context, path string, reqCh chan<- readio.Read, stats *Stats) error {
	in, err := file.Open(ctx, path)
	if err != nil {
		return errors.E(err, "open "+path)
	}
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	sc := readio.NewScanner(r)
	var read readio.Read
	var nRead int64
	for sc.Scan(&read) {
		nRead++
		if nRead%(1024*1024) == 0 {
			log.Printf("%s: %dMi reads", path, nRead/(1024*1024))
		}
		if nRead%defaultBufferSize == 0 && ctx.Err() != nil {
			// Cooperative cancellation between buffers; in-flight reads
			// drain normally.
			atomic.AddInt64(&stats.AllReads, nRead)
			_ = in.Close(ctx)
			return ctx.Err()
		}
		reqCh <- read
		read = readio.Read{}
	}
	atomic.AddInt64(&stats.AllReads, nRead)
	once := errors.Once{}
	once.Set(sc.Err())
	once.Set(in.Close(ctx))
	return once.Err()
}

// mapOne runs the full pipeline for one record: validate, fold qualities
// into the error estimate, then quasi-map the forward and
// reverse-complement orientations independently.
func mapOne(sr *search.Searcher, cov *coverage.Coverage, params *Params, read readio.Read, stats *Stats, statsMu *sync.Mutex) {
	if err := readio.Validate(read.Seq); err != nil {
		atomic.AddInt64(&stats.SkippedReads, 1)
		return
	}
	if params.MaxReadLength > 0 && len(read.Seq) > params.MaxReadLength {
		atomic.AddInt64(&stats.SkippedReads, 1)
		return
	}
	statsMu.Lock()
	stats.ReadStats.AddQualities(read.Qual)
	statsMu.Unlock()

	if mapOrientation(sr, cov, params, read.Seq) {
		atomic.AddInt64(&stats.MappedReads, 1)
	}
	if mapOrientation(sr, cov, params, readio.ReverseComplement(read.Seq)) {
		atomic.AddInt64(&stats.MappedReads, 1)
	}
}

func mapOrientation(sr *search.Searcher, cov *coverage.Coverage, params *Params, seq string) bool {
	states := sr.SearchReadBackwards(readio.Encode(seq))
	if len(states) == 0 {
		return false
	}
	rng := mapselect.ReadRNG(params.Seed, []byte(seq))
	sel := mapselect.Select(sr, states, rng)
	cov.Record(sr, sel, len(seq))
	return true
}
