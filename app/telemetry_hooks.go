package app

import (
	"time"

	"github.com/pthm-cable/minivis/telemetry"
)

// FlushTelemetry closes the stats window once it has elapsed, logs it if
// enabled, appends it to the CSV output and checks it for bookmarks.
func (a *App) FlushTelemetry(now time.Time) {
	if a.collector == nil || !a.collector.ShouldFlush(now) {
		return
	}

	stats := a.collector.Flush(now, a.loop.Stats(), a.store.Copy())
	perfStats := a.perf.Stats()

	if a.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if a.output != nil {
		if err := a.output.WriteStats(stats); err != nil {
			a.log.Error("failed to write ingest stats", "error", err)
		}
		if err := a.output.WritePerf(perfStats, stats.WindowEnd); err != nil {
			a.log.Error("failed to write perf", "error", err)
		}
	}

	for _, bm := range a.bookmarks.Check(stats) {
		if a.logStats {
			bm.LogBookmark()
		}
		if a.output == nil {
			continue
		}
		if err := a.output.WriteBookmark(bm); err != nil {
			a.log.Error("failed to write bookmark", "error", err)
		}
		// Snapshot the state the bookmark refers to.
		if _, err := a.SaveSnapshot(); err != nil {
			a.log.Error("failed to save snapshot", "error", err)
		}
	}
}

// WindowStats flushes the current window unconditionally. Used for the
// final record on shutdown.
func (a *App) WindowStats(now time.Time) telemetry.WindowStats {
	if a.collector == nil {
		a.collector = telemetry.NewCollector(a.cfg.Telemetry.StatsWindow, now)
	}
	return a.collector.Flush(now, a.loop.Stats(), a.store.Copy())
}
