// Package parallel provides the fork-join range executor used by the CPU kernels.
package parallel

import (
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64, // Typical cache line aware chunk.
	}
}

// Sequential returns a configuration that runs every range on the caller's goroutine.
func Sequential() Config {
	return Config{Enabled: false, NumWorkers: 1, MinChunkSize: 1}
}

// ForRange partitions [0, n) into contiguous chunks and runs body(begin, end)
// for each chunk. Chunks are disjoint, so bodies writing only to the outputs
// of their own range need no synchronization. ForRange returns after every
// chunk has completed. If a body panics, the first panic value is re-raised
// on the caller's goroutine once every chunk has finished.
//
// grain overrides cfg.MinChunkSize when positive; kernels whose unit of work
// is large (a channel plane, a batch image) pass 1.
func ForRange(n, grain int, body func(begin, end int), cfg Config) {
	if n <= 0 {
		return
	}
	minChunk := cfg.MinChunkSize
	if grain > 0 {
		minChunk = grain
	}
	workers := max(cfg.NumWorkers, 1)
	if !cfg.Enabled || workers == 1 || n <= minChunk {
		body(0, n)
		return
	}

	chunkSize := max((n+workers-1)/workers, minChunk)

	var (
		g        errgroup.Group
		once     sync.Once
		panicV   any
		panicked bool
	)
	g.SetLimit(workers)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					once.Do(func() { panicV, panicked = r, true })
				}
			}()
			body(start, end)
			return nil
		})
	}
	_ = g.Wait() // Bodies return no errors; panics are collected above.
	if panicked {
		panic(panicV)
	}
}
