package telemetry

import (
	"time"

	"github.com/pthm-cable/minivis/ingest"
	"github.com/pthm-cable/minivis/store"
)

// Collector turns cumulative ingestion counters into per-window stats.
type Collector struct {
	window      time.Duration
	start       time.Time
	windowStart time.Time
	last        ingest.Stats
}

// NewCollector creates a collector whose first window starts at now.
func NewCollector(window time.Duration, now time.Time) *Collector {
	if window <= 0 {
		window = 10 * time.Second
	}
	return &Collector{
		window:      window,
		start:       now,
		windowStart: now,
	}
}

// ShouldFlush reports whether the current window has elapsed.
func (c *Collector) ShouldFlush(now time.Time) bool {
	return now.Sub(c.windowStart) >= c.window
}

// Flush closes the current window. in is the loop's cumulative counters and
// st a copy of the store at window end.
func (c *Collector) Flush(now time.Time, in ingest.Stats, st store.State) WindowStats {
	elapsed := now.Sub(c.windowStart).Seconds()
	frames := in.Frames - c.last.Frames
	bytes := in.Bytes - c.last.Bytes

	ws := WindowStats{
		WindowStart: c.windowStart.Sub(c.start).Seconds(),
		WindowEnd:   now.Sub(c.start).Seconds(),
		State:       in.State.String(),
		Sessions:    in.Sessions,
		Failures:    in.Failures,
		Frames:      frames,
		Tick:        st.Progress.CurrentTick,
		MaxTicks:    st.Progress.MaxTicks,
		Entities:    st.EntityCount(),
		Features:    st.FeatureCount(),
		Rasters:     len(st.Rasters),
		LastError:   in.LastError,
	}
	if elapsed > 0 {
		ws.FramesPerSec = float64(frames) / elapsed
		ws.KBPerSec = float64(bytes) / 1024 / elapsed
	}
	if f, ok := st.Progress.Fraction(); ok {
		ws.Progress = f
	}
	for _, r := range st.Rasters {
		ws.Cells += len(r.Cells)
	}

	c.last = in
	c.windowStart = now
	return ws
}
