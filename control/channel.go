// Package control carries user playback requests back to the simulation
// and holds the render-rate bounds adjusted by the same input.
package control

import (
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/pthm-cable/minivis/ingest"
	"github.com/pthm-cable/minivis/protocol"
)

// Sender writes one outbound frame. *ingest.Loop implements it.
type Sender interface {
	Send(payload []byte) error
}

// ChannelOptions configures a Channel.
type ChannelOptions struct {
	InitialDelay   int     // ms
	SendsPerSecond float64 // 0 disables throttling
	Burst          int
	Logger         *slog.Logger
}

// Channel tracks the requested playback delay and sends it to the
// simulation. Updates arriving faster than the send rate are coalesced: the
// newest value is kept pending and delivered by Flush.
type Channel struct {
	sender  Sender
	limiter *rate.Limiter
	log     *slog.Logger

	mu      sync.Mutex
	delay   int
	pending bool
	sent    int64
}

// NewChannel creates a channel that sends through s.
func NewChannel(s Sender, opts ChannelOptions) *Channel {
	limit := rate.Inf
	if opts.SendsPerSecond > 0 {
		limit = rate.Limit(opts.SendsPerSecond)
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.InitialDelay < 0 {
		opts.InitialDelay = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Channel{
		sender:  s,
		limiter: rate.NewLimiter(limit, opts.Burst),
		log:     opts.Logger.With("component", "control"),
		delay:   opts.InitialDelay,
	}
}

// Delay returns the current playback delay in milliseconds.
func (c *Channel) Delay() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delay
}

// Sent returns the number of control frames delivered.
func (c *Channel) Sent() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

// Pending reports whether an update is waiting to be sent.
func (c *Channel) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// AdjustPlaybackDelay moves the delay by delta, flooring at zero, and sends
// the new value. A throttled update returns nil and stays pending. Without
// a connection the value is still updated and ingest.ErrNotConnected is
// returned.
func (c *Channel) AdjustPlaybackDelay(delta int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.delay = max(0, c.delay+delta)
	c.pending = true
	return c.flushLocked()
}

// Flush sends a pending update if the rate allows it. Call it once per
// input poll.
func (c *Channel) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pending {
		return nil
	}
	return c.flushLocked()
}

func (c *Channel) flushLocked() error {
	if !c.limiter.Allow() {
		return nil
	}
	payload, err := protocol.EncodeControl(c.delay)
	if err != nil {
		return err
	}
	if err := c.sender.Send(payload); err != nil {
		if !errors.Is(err, ingest.ErrNotConnected) {
			// The loop has dropped the session; the value goes out after
			// the next connect.
			c.log.Warn("sending playback delay failed", "delay_ms", c.delay, "error", err)
		}
		return err
	}
	c.pending = false
	c.sent++
	c.log.Debug("playback delay sent", "delay_ms", c.delay)
	return nil
}
