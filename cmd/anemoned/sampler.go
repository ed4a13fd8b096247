package main

import (
	"context"
	"runtime"
	"time"

	"github.com/pbnjay/memory"
)

const (
	reportGoroutines = "goroutines"
	reportHeapAlloc  = "heap_alloc_bytes"
	reportGCCycles   = "gc_cycles"
	reportHostFree   = "host_free_memory_bytes"
)

type plotter interface {
	Report2DPlot(name string, x, y float64)
}

// sampler turns process and host readings into 2dplot reports, x being
// seconds since the sampler was created
type sampler struct {
	out        plotter
	interval   time.Duration
	start      time.Time
	goroutines func() int
	memStats   func(*runtime.MemStats)
	freeMemory func() uint64
}

func newSampler(out plotter, interval time.Duration) *sampler {
	return &sampler{
		out:        out,
		interval:   interval,
		start:      time.Now(),
		goroutines: runtime.NumGoroutine,
		memStats:   runtime.ReadMemStats,
		freeMemory: memory.FreeMemory,
	}
}

func (s *sampler) run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sample(time.Now())
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.sample(now)
		}
	}
}

func (s *sampler) sample(now time.Time) {
	x := now.Sub(s.start).Seconds()

	var ms runtime.MemStats
	s.memStats(&ms)

	s.out.Report2DPlot(reportGoroutines, x, float64(s.goroutines()))
	s.out.Report2DPlot(reportHeapAlloc, x, float64(ms.HeapAlloc))
	s.out.Report2DPlot(reportGCCycles, x, float64(ms.NumGC))

	// 0 means the platform cannot tell
	if free := s.freeMemory(); free > 0 {
		s.out.Report2DPlot(reportHostFree, x, float64(free))
	}
}
