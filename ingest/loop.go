// Package ingest owns the websocket to the simulation. It decodes inbound
// frames into the shared store, recovers from connection failures, and
// carries outbound control frames over the same socket.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/minivis/protocol"
	"github.com/pthm-cable/minivis/store"
)

// Error classes. Failures are logged and recovered, never returned by Run.
var (
	ErrConnectionUnavailable = errors.New("connection unavailable")
	ErrTransport             = errors.New("transport failure")
	ErrNotConnected          = errors.New("not connected")
	ErrStuckWriteLock        = errors.New("write lock held after failure")

	// ErrMalformed is returned for payloads that cannot be decoded.
	ErrMalformed = protocol.ErrMalformed
)

// State is the connection state of the loop.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Recorder receives every non-empty inbound payload.
type Recorder interface {
	Write(frame []byte) error
}

// Options configures a Loop.
type Options struct {
	URI          string
	RetryDelay   time.Duration // fixed delay between connection attempts
	ReadTimeout  time.Duration // 0 blocks indefinitely while idle
	WriteTimeout time.Duration

	Dialer    Dialer              // defaults to WSDialer
	Validator *protocol.Validator // optional schema check before decode
	Recorder  Recorder            // optional
	Logger    *slog.Logger
}

// Stats are cumulative counters for the HUD and telemetry.
type Stats struct {
	State     State
	Frames    int64 // frames applied to the store
	Bytes     int64 // payload bytes received
	Sessions  int64 // successful connections
	Failures  int64 // sessions ended by an error
	LastError string
}

// Loop is the ingestion state machine:
// Disconnected -> Connecting -> Connected -> (failure) -> Disconnected.
type Loop struct {
	opts  Options
	store *store.Store
	log   *slog.Logger

	mu      sync.Mutex
	conn    Conn
	lastErr string

	writeMu sync.Mutex
	state   atomic.Int32

	frames   atomic.Int64
	bytes    atomic.Int64
	sessions atomic.Int64
	failures atomic.Int64
}

// New creates a loop that feeds s.
func New(s *store.Store, opts Options) *Loop {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = WSDialer{HandshakeTimeout: 5 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Loop{
		opts:  opts,
		store: s,
		log:   opts.Logger.With("component", "ingest"),
	}
}

// State returns the current connection state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Stats returns a copy of the loop counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	lastErr := l.lastErr
	l.mu.Unlock()
	return Stats{
		State:     l.State(),
		Frames:    l.frames.Load(),
		Bytes:     l.bytes.Load(),
		Sessions:  l.sessions.Load(),
		Failures:  l.failures.Load(),
		LastError: lastErr,
	}
}

// Run connects, ingests and reconnects until ctx is cancelled. Errors are
// logged and recovered; Run only returns on cancellation.
func (l *Loop) Run(ctx context.Context) {
	// Cancellation closes the socket so a blocked read returns.
	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		c := l.conn
		l.mu.Unlock()
		if c != nil {
			_ = c.Close()
		}
	})
	defer stop()

	for {
		conn, ok := l.connect(ctx)
		if !ok {
			l.state.Store(int32(Disconnected))
			return
		}

		err := l.readLoop(ctx, conn)
		if ctx.Err() != nil {
			l.drop(conn, nil)
			l.state.Store(int32(Disconnected))
			l.log.Info("ingestion stopped")
			return
		}
		l.drop(conn, err)
		l.Recover()
	}
}

// connect dials until it succeeds or ctx is cancelled.
func (l *Loop) connect(ctx context.Context) (Conn, bool) {
	l.state.Store(int32(Connecting))
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return nil, false
		}
		conn, err := l.opts.Dialer.Dial(ctx, l.opts.URI)
		if err == nil {
			l.mu.Lock()
			l.conn = conn
			l.mu.Unlock()
			if ctx.Err() != nil {
				// Cancelled while dialing; the cancel hook may have missed conn.
				l.drop(conn, nil)
				return nil, false
			}
			l.state.Store(int32(Connected))
			l.sessions.Add(1)
			l.log.Info("connected to simulation", "uri", l.opts.URI, "attempts", attempt)
			return conn, true
		}

		err = fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
		l.setLastErr(err)
		l.log.Warn("waiting for running simulation",
			"uri", l.opts.URI,
			"attempt", attempt,
			"retry_in", l.opts.RetryDelay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(l.opts.RetryDelay):
		}
	}
}

// readLoop blocks on the socket and applies frames until an error occurs.
func (l *Loop) readLoop(ctx context.Context, conn Conn) error {
	for {
		if l.opts.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(l.opts.ReadTimeout))
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := l.Handle(msg); err != nil {
			return err
		}
	}
}

// Handle decodes one payload and applies it to the store under a single
// write acquisition. Empty payloads are ignored. It is exported so recorded
// sessions can be replayed through the same path.
func (l *Loop) Handle(payload []byte) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	l.bytes.Add(int64(len(payload)))

	if l.opts.Recorder != nil {
		if err := l.opts.Recorder.Write(payload); err != nil {
			l.log.Debug("recording frame failed", "error", err)
		}
	}
	if l.opts.Validator != nil {
		if err := l.opts.Validator.Validate(payload); err != nil {
			return err
		}
	}

	f, err := protocol.Decode(payload)
	if err != nil {
		return err
	}
	if f == nil || f.Empty() {
		return nil
	}
	return l.apply(f)
}

// apply converts a panic during the store update into ErrMalformed. The
// write lock stays held in that case and Recover clears it.
func (l *Loop) apply(f *protocol.Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: applying frame: %v", ErrMalformed, r)
		}
	}()
	l.store.Update(f.Apply)
	l.frames.Add(1)
	return nil
}

// Send writes one text frame on the shared socket. A failed write drops
// the connection; the ingestion goroutine then observes the closed socket
// and performs the usual store recovery.
func (l *Loop) Send(payload []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	_ = conn.SetWriteDeadline(time.Now().Add(l.opts.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		err = fmt.Errorf("%w: send: %v", ErrTransport, err)
		l.drop(conn, err)
		return err
	}
	return nil
}

// drop closes conn if it is still the active connection.
func (l *Loop) drop(conn Conn, cause error) {
	l.mu.Lock()
	active := l.conn == conn
	if active {
		l.conn = nil
	}
	if cause != nil {
		l.lastErr = cause.Error()
	}
	l.mu.Unlock()

	_ = conn.Close()
	if !active {
		return
	}
	l.state.Store(int32(Disconnected))
	if cause != nil {
		l.failures.Add(1)
		l.log.Warn("connection to simulation lost",
			"error", cause,
			"malformed", errors.Is(cause, ErrMalformed),
		)
	}
}

// Recover clears a write lock left behind by a failed apply and resets the
// store so the next session starts clean. Call it only from the goroutine
// that calls Handle, so a held write lock cannot belong to a live writer.
func (l *Loop) Recover() {
	lock := l.store.Lock()
	if lock.ActiveWriters() > 0 {
		lock.ReleaseWrite()
		l.log.Warn("released write lock after failure", "error", ErrStuckWriteLock)
	}
	l.store.Update(func(s *store.Store) { s.Reset() })
}

func (l *Loop) setLastErr(err error) {
	l.mu.Lock()
	l.lastErr = err.Error()
	l.mu.Unlock()
}
