package control

import (
	"errors"
	"sync/atomic"

	"github.com/pthm-cable/minivis/ingest"
)

// Action is a user request produced by the input layer.
type Action int

const (
	RenderFaster Action = iota
	RenderSlower
	PlaybackFaster
	PlaybackSlower
)

func (a Action) String() string {
	switch a {
	case RenderFaster:
		return "render_faster"
	case RenderSlower:
		return "render_slower"
	case PlaybackFaster:
		return "playback_faster"
	case PlaybackSlower:
		return "playback_slower"
	}
	return "unknown"
}

// TargetRate is the desired render rate in frames per second, kept within
// [Min, Max]. It is read by the render goroutine and written by input
// handling, which may run elsewhere in headless setups.
type TargetRate struct {
	Min, Max int
	value    atomic.Int64
}

// NewTargetRate returns a rate clamped to [lo, hi].
func NewTargetRate(initial, lo, hi int) *TargetRate {
	if hi < lo {
		lo, hi = hi, lo
	}
	r := &TargetRate{Min: lo, Max: hi}
	r.Set(initial)
	return r
}

// Get returns the current target.
func (r *TargetRate) Get() int {
	return int(r.value.Load())
}

// Set stores v clamped to the bounds and returns the stored value.
func (r *TargetRate) Set(v int) int {
	v = min(max(v, r.Min), r.Max)
	r.value.Store(int64(v))
	return v
}

// Add moves the target by delta within the bounds.
func (r *TargetRate) Add(delta int) int {
	return r.Set(r.Get() + delta)
}

// Input maps actions onto the render rate and the playback channel.
type Input struct {
	Rate      *TargetRate
	Channel   *Channel
	RateStep  int
	DelayStep int
}

// Handle applies one action. Only playback actions can fail; a missing
// connection is not reported as an error since the delay is delivered once
// the simulation is reachable again.
func (in *Input) Handle(a Action) error {
	var err error
	switch a {
	case RenderFaster:
		in.Rate.Add(in.RateStep)
	case RenderSlower:
		in.Rate.Add(-in.RateStep)
	case PlaybackSlower:
		err = in.Channel.AdjustPlaybackDelay(in.DelayStep)
	case PlaybackFaster:
		err = in.Channel.AdjustPlaybackDelay(-in.DelayStep)
	}
	if errors.Is(err, ingest.ErrNotConnected) {
		return nil
	}
	return err
}
