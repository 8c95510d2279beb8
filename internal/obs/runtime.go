package obs

import (
	"context"
	"runtime"
	"time"
)

// RuntimeStats samples process-level memory stats on an interval, logging
// the delta between consecutive samples. It is diagnostic only and has no
// effect on core behavior if never started.
type RuntimeStats struct {
	log  *Logger
	prev runtime.MemStats
}

// NewRuntimeStats returns a sampler that logs through the given logger.
func NewRuntimeStats(log *Logger) *RuntimeStats {
	if log == nil {
		log = NewLogger("runtime")
	}
	return &RuntimeStats{log: log.With("runtime")}
}

// Snapshot reads current memory stats and logs the allocation delta since
// the previous snapshot.
func (r *RuntimeStats) Snapshot() {
	var curr runtime.MemStats
	runtime.ReadMemStats(&curr)
	deltaAlloc := int64(curr.Alloc) - int64(r.prev.Alloc)
	r.log.Infof("heap_alloc=%d delta=%d goroutines=%d gc_cycles=%d",
		curr.Alloc, deltaAlloc, runtime.NumGoroutine(), curr.NumGC)
	r.prev = curr
}

// RunReportSchedule snapshots on every tick of interval until ctx is done.
func (r *RuntimeStats) RunReportSchedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Snapshot()
		}
	}
}
