package telemetry

import "log/slog"

// WindowStats holds ingestion and store statistics for a time window.
type WindowStats struct {
	WindowStart float64 `csv:"-"`
	WindowEnd   float64 `csv:"window_end"` // seconds since start

	// Connection
	State    string `csv:"state"`
	Sessions int64  `csv:"sessions"`
	Failures int64  `csv:"failures"`

	// Throughput during the window
	Frames       int64   `csv:"frames"`
	FramesPerSec float64 `csv:"frames_per_sec"`
	KBPerSec     float64 `csv:"kb_per_sec"`

	// Store contents at window end
	Tick      int     `csv:"tick"`
	MaxTicks  int     `csv:"max_ticks"`
	Progress  float64 `csv:"progress"`
	Entities  int     `csv:"entities"`
	Features  int     `csv:"features"`
	Rasters   int     `csv:"rasters"`
	Cells     int     `csv:"cells"`
	LastError string  `csv:"last_error"`
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Float64("window_end", s.WindowEnd),
		slog.String("state", s.State),
		slog.Int64("sessions", s.Sessions),
		slog.Int64("failures", s.Failures),
		slog.Int64("frames", s.Frames),
		slog.Float64("frames_per_sec", s.FramesPerSec),
		slog.Float64("kb_per_sec", s.KBPerSec),
		slog.Int("tick", s.Tick),
		slog.Int("max_ticks", s.MaxTicks),
		slog.Int("entities", s.Entities),
		slog.Int("features", s.Features),
		slog.Int("rasters", s.Rasters),
	}
	if s.LastError != "" {
		attrs = append(attrs, slog.String("last_error", s.LastError))
	}
	return slog.GroupValue(attrs...)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats", "window", s)
}
