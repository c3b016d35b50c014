package indexer

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/himanishpuri/AcousticHash/pkg/logger"
	"github.com/himanishpuri/AcousticHash/pkg/models"
)

// Outcome is what processing one file produced.
type Outcome struct {
	SongID  uint32
	Name    string
	Artist  string
	Skipped bool // already catalogued
	Counts  models.InsertCounts
}

// Result pairs a file with its outcome or error.
type Result struct {
	Path     string
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// Summary aggregates a batch.
type Summary struct {
	Files         int
	Succeeded     int
	Skipped       int
	Failed        int
	Inserted      int
	Duplicates    int
	FailedRecords int
	Cancelled     bool
	Elapsed       time.Duration
}

func (s *Summary) add(r Result) {
	switch {
	case r.Err != nil:
		s.Failed++
	case r.Outcome.Skipped:
		s.Skipped++
	default:
		s.Succeeded++
	}
	s.Inserted += r.Outcome.Counts.Inserted
	s.Duplicates += r.Outcome.Counts.Duplicates
	s.FailedRecords += r.Outcome.Counts.Failed
}

// ProcessFunc runs the whole pipeline for one file. Implementations must
// not share mutable buffers between calls.
type ProcessFunc func(ctx context.Context, path string) (Outcome, error)

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

// Pool fans files out to a fixed number of workers.
type Pool struct {
	workers int
	process ProcessFunc
	log     Logger
}

// DefaultWorkers leaves one CPU for the storage writer, with a floor of two.
func DefaultWorkers() int {
	return max(runtime.NumCPU()-1, 2)
}

func New(workers int, process ProcessFunc, log Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if log == nil {
		log = logger.Named("indexer")
	}
	return &Pool{workers: workers, process: process, log: log}
}

func (p *Pool) Workers() int { return p.workers }

// Run processes paths and calls onResult, from a single goroutine, as each
// file finishes. A failed file is reported and the batch continues. When
// ctx is cancelled no new files are started; files already in flight run
// to completion.
func (p *Pool) Run(ctx context.Context, paths []string, onResult func(Result)) Summary {
	start := time.Now()
	summary := Summary{Files: len(paths)}

	workers := min(p.workers, len(paths))
	p.log.Infof("Indexing %d files with %d workers", len(paths), workers)

	jobs := make(chan string)
	results := make(chan Result, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- p.runOne(ctx, path)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, path := range paths {
			select {
			case <-ctx.Done():
				return
			case jobs <- path:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	done := 0
	for r := range results {
		done++
		summary.add(r)
		if r.Err != nil {
			p.log.Warnf("Failed %s: %v", r.Path, r.Err)
		}
		if onResult != nil {
			onResult(r)
		}
	}

	if done < len(paths) {
		summary.Cancelled = true
		p.log.Warnf("Indexing cancelled after %d/%d files", done, len(paths))
	}
	summary.Elapsed = time.Since(start)
	return summary
}

func (p *Pool) runOne(ctx context.Context, path string) (r Result) {
	start := time.Now()
	r.Path = path
	defer func() {
		if rec := recover(); rec != nil {
			r.Err = fmt.Errorf("panic processing %s: %v", path, rec)
		}
		r.Duration = time.Since(start)
	}()

	r.Outcome, r.Err = p.process(ctx, path)
	return r
}
