package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkSessionLost     BookmarkType = "session_lost"
	BookmarkStall           BookmarkType = "stall"
	BookmarkThroughputSpike BookmarkType = "throughput_spike"
	BookmarkRunComplete     BookmarkType = "run_complete"
)

// Bookmark marks a window worth a closer look.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	WindowEnd   float64      `csv:"window_end"`
	Tick        int          `csv:"tick"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector watches consecutive stats windows for notable changes.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	completed bool // run_complete already reported for this run
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 3 {
		historySize = 3 // minimum for a meaningful rolling average
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if prev, ok := bd.previous(); ok {
		if b := bd.checkSessionLost(prev, stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkStall(prev, stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkThroughputSpike(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}
	if b := bd.checkRunComplete(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(stats)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

func (bd *BookmarkDetector) previous() (WindowStats, bool) {
	if !bd.historyFull && bd.historyIdx == 0 {
		return WindowStats{}, false
	}
	i := (bd.historyIdx - 1 + bd.historySize) % bd.historySize
	return bd.history[i], true
}

func (bd *BookmarkDetector) checkSessionLost(prev, stats WindowStats) *Bookmark {
	lost := stats.Failures - prev.Failures
	if lost <= 0 {
		return nil
	}
	desc := fmt.Sprintf("%d session(s) failed", lost)
	if stats.LastError != "" {
		desc += ": " + stats.LastError
	}
	return &Bookmark{
		Type:        BookmarkSessionLost,
		WindowEnd:   stats.WindowEnd,
		Tick:        stats.Tick,
		Description: desc,
	}
}

// checkStall fires when a connected simulation stops sending frames.
func (bd *BookmarkDetector) checkStall(prev, stats WindowStats) *Bookmark {
	if stats.State != "connected" || stats.Frames > 0 || prev.Frames == 0 {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkStall,
		WindowEnd:   stats.WindowEnd,
		Tick:        stats.Tick,
		Description: fmt.Sprintf("no frames while connected, previous window had %d", prev.Frames),
	}
}

// checkThroughputSpike fires when the frame rate exceeds twice the rolling
// average.
func (bd *BookmarkDetector) checkThroughputSpike(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}
	var total float64
	for _, h := range history {
		total += h.FramesPerSec
	}
	avg := total / float64(len(history))
	if avg <= 0 || stats.FramesPerSec <= 2*avg {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkThroughputSpike,
		WindowEnd:   stats.WindowEnd,
		Tick:        stats.Tick,
		Description: fmt.Sprintf("%.1f frames/s vs %.1f average", stats.FramesPerSec, avg),
	}
}

// checkRunComplete fires once when the tick counter reaches MaxTicks. A
// later window below MaxTicks (a new run) re-arms it.
func (bd *BookmarkDetector) checkRunComplete(stats WindowStats) *Bookmark {
	done := stats.MaxTicks > 0 && stats.Tick >= stats.MaxTicks
	if !done {
		bd.completed = false
		return nil
	}
	if bd.completed {
		return nil
	}
	bd.completed = true
	return &Bookmark{
		Type:        BookmarkRunComplete,
		WindowEnd:   stats.WindowEnd,
		Tick:        stats.Tick,
		Description: fmt.Sprintf("reached tick %d of %d", stats.Tick, stats.MaxTicks),
	}
}
