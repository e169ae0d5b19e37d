package ingest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/minivis/protocol"
	"github.com/pthm-cable/minivis/store"
)

// simServer is a websocket endpoint whose behaviour is chosen per session.
type simServer struct {
	t        *testing.T
	srv      *httptest.Server
	sessions atomic.Int32
	handle   func(session int, conn *websocket.Conn)
}

func newSimServer(t *testing.T, handle func(session int, conn *websocket.Conn)) *simServer {
	t.Helper()
	s := &simServer{t: t, handle: handle}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		s.handle(int(s.sessions.Add(1)), conn)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *simServer) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// holdOpen keeps a session alive until the client goes away.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func send(conn *websocket.Conn, frames ...string) {
	for _, f := range frames {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(f))
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func startLoop(t *testing.T, s *store.Store, opts Options) *Loop {
	t.Helper()
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 10 * time.Millisecond
	}
	opts.Logger = quietLogger()
	l := New(s, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
	return l
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLoopAppliesFrames(t *testing.T) {
	point := `{"vectors":[{"f":[{"geometry":{"type":"Point","coordinates":[1,1]}}],"t":0}]}`
	srv := newSimServer(t, func(session int, conn *websocket.Conn) {
		send(conn,
			`{"currentTick":10,"maxTicks":100}`,
			`{"entities":{"0":[{"x":5,"y":5}]}}`,
			`{"entities":{"0":[{"x":7,"y":7}]}}`,
			point,
			point,
			`{"worldSize":{"minX":0,"minY":0,"maxX":40,"maxY":20}}`,
			`{"worldSize":{"minX":0,"minY":0,"maxX":0,"maxY":0}}`,
		)
		holdOpen(conn)
	})

	s := store.New()
	l := startLoop(t, s, Options{URI: srv.URL()})
	waitFor(t, "seven frames", func() bool { return l.Stats().Frames == 7 })

	st := s.Copy()
	if f, ok := st.Progress.Fraction(); !ok || f != 0.10 {
		t.Errorf("expected progress fraction 0.10, got %v", f)
	}
	if es := st.Entities[0]; len(es) != 1 || es[0].X != 7 || es[0].Y != 7 {
		t.Errorf("expected entities replaced by the last frame, one at (7,7), got %+v", es)
	}
	if got := len(st.Vectors[store.KindPoint]); got != 2 {
		t.Errorf("expected points to accumulate to 2, got %d", got)
	}
	if st.Bounds != (store.Bounds{MaxX: 40, MaxY: 20}) {
		t.Errorf("expected degenerate bounds ignored, got %+v", st.Bounds)
	}
	if l.State() != Connected {
		t.Errorf("expected connected, got %s", l.State())
	}
}

func TestLoopEmptyPayloadIsNoop(t *testing.T) {
	srv := newSimServer(t, func(session int, conn *websocket.Conn) {
		send(conn, "", "  ", `{"currentTick":3}`)
		holdOpen(conn)
	})

	s := store.New()
	l := startLoop(t, s, Options{URI: srv.URL()})
	waitFor(t, "one frame", func() bool { return l.Stats().Frames == 1 })

	stats := l.Stats()
	if stats.Failures != 0 || stats.Sessions != 1 {
		t.Errorf("empty payloads should not fail the session: %+v", stats)
	}
	if l.State() != Connected {
		t.Errorf("expected connected, got %s", l.State())
	}
}

func TestLoopTransportFailureResetsStore(t *testing.T) {
	srv := newSimServer(t, func(session int, conn *websocket.Conn) {
		if session == 1 {
			send(conn,
				`{"currentTick":10,"maxTicks":100}`,
				`{"entities":{"0":[{"x":5,"y":5}]}}`,
				`{"vectors":[[{"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}]]}`,
				`{"rasters":[{"t":0,"cellWidth":1,"cellHeight":1,"cells":[[0,0,1]]}]}`,
			)
			return // closes the socket mid-session
		}
		holdOpen(conn)
	})

	s := store.New()
	l := startLoop(t, s, Options{URI: srv.URL()})
	waitFor(t, "reconnect", func() bool {
		st := l.Stats()
		return st.Failures >= 1 && st.Sessions >= 2 && l.State() == Connected
	})

	st := s.Copy()
	if st.Progress != (store.Progress{}) {
		t.Errorf("expected zeroed progress, got %+v", st.Progress)
	}
	if st.EntityCount() != 0 || st.FeatureCount() != 0 || len(st.Rasters) != 0 {
		t.Errorf("expected empty store, got %d entities %d features %d rasters",
			st.EntityCount(), st.FeatureCount(), len(st.Rasters))
	}
	if n := s.Lock().ActiveWriters(); n != 0 {
		t.Errorf("expected no active writer, got %d", n)
	}
	if !strings.Contains(l.Stats().LastError, ErrTransport.Error()) {
		t.Errorf("expected transport error recorded, got %q", l.Stats().LastError)
	}
}

func TestLoopMalformedFrameResetsStore(t *testing.T) {
	srv := newSimServer(t, func(session int, conn *websocket.Conn) {
		if session == 1 {
			send(conn, `{"entities":{"0":[{"x":5,"y":5}]}}`, `{"currentTick":`)
		}
		holdOpen(conn)
	})

	s := store.New()
	l := startLoop(t, s, Options{URI: srv.URL()})
	waitFor(t, "failure and reconnect", func() bool {
		st := l.Stats()
		return st.Failures == 1 && st.Sessions == 2
	})

	if st := s.Copy(); st.EntityCount() != 0 {
		t.Errorf("expected entities cleared after malformed frame, got %d", st.EntityCount())
	}
	if !strings.Contains(l.Stats().LastError, ErrMalformed.Error()) {
		t.Errorf("expected malformed error recorded, got %q", l.Stats().LastError)
	}
}

func TestLoopSchemaValidation(t *testing.T) {
	srv := newSimServer(t, func(session int, conn *websocket.Conn) {
		if session == 1 {
			// Decodes fine but violates the schema: entity without y.
			send(conn, `{"entities":{"0":[{"x":5}]}}`)
		}
		holdOpen(conn)
	})

	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatal(err)
	}
	s := store.New()
	l := startLoop(t, s, Options{URI: srv.URL(), Validator: v})
	waitFor(t, "validation failure", func() bool { return l.Stats().Failures == 1 })

	if l.Stats().Frames != 0 {
		t.Error("invalid frame should not be applied")
	}
}

func TestLoopClearsStuckWriteLock(t *testing.T) {
	release := make(chan struct{})
	srv := newSimServer(t, func(session int, conn *websocket.Conn) {
		if session == 1 {
			<-release
			return
		}
		holdOpen(conn)
	})

	s := store.New()
	l := startLoop(t, s, Options{URI: srv.URL()})
	waitFor(t, "connection", func() bool { return l.State() == Connected })

	// A writer that never releases, as if it died mid-update.
	s.Lock().AcquireWrite()
	close(release)

	waitFor(t, "recovery", func() bool {
		return l.Stats().Failures == 1 && s.Lock().ActiveWriters() == 0 && l.Stats().Sessions == 2
	})

	// Readers are no longer blocked.
	viewed := make(chan struct{})
	go func() {
		s.View(func(store.Snapshot) {})
		close(viewed)
	}()
	select {
	case <-viewed:
	case <-time.After(time.Second):
		t.Fatal("reader still blocked after recovery")
	}
}

type flakyDialer struct {
	failures int
	mu       sync.Mutex
	attempts int
	next     Dialer
}

func (d *flakyDialer) Dial(ctx context.Context, uri string) (Conn, error) {
	d.mu.Lock()
	d.attempts++
	n := d.attempts
	d.mu.Unlock()
	if n <= d.failures {
		return nil, errors.New("connection refused")
	}
	return d.next.Dial(ctx, uri)
}

func (d *flakyDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func TestLoopRetriesUntilAvailable(t *testing.T) {
	srv := newSimServer(t, func(session int, conn *websocket.Conn) {
		send(conn, `{"currentTick":1}`)
		holdOpen(conn)
	})

	d := &flakyDialer{failures: 3, next: WSDialer{HandshakeTimeout: time.Second}}
	s := store.New()
	l := startLoop(t, s, Options{URI: srv.URL(), Dialer: d})
	waitFor(t, "connection", func() bool { return l.Stats().Frames == 1 })

	if got := d.Attempts(); got != 4 {
		t.Errorf("expected 4 dial attempts, got %d", got)
	}
	if st := l.Stats(); st.Failures != 0 || st.Sessions != 1 {
		t.Errorf("connection retries should not count as session failures: %+v", st)
	}
}

func TestLoopConnectingState(t *testing.T) {
	d := &flakyDialer{failures: 1 << 30}
	l := startLoop(t, store.New(), Options{URI: "ws://unused", Dialer: d})
	waitFor(t, "retries", func() bool { return d.Attempts() >= 3 })

	if l.State() != Connecting {
		t.Errorf("expected connecting, got %s", l.State())
	}
	if !strings.Contains(l.Stats().LastError, ErrConnectionUnavailable.Error()) {
		t.Errorf("expected connection unavailable error, got %q", l.Stats().LastError)
	}
}

func TestLoopSend(t *testing.T) {
	received := make(chan string, 4)
	srv := newSimServer(t, func(session int, conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- string(msg)
		}
	})

	s := store.New()
	l := New(s, Options{URI: srv.URL(), Logger: quietLogger()})
	if err := l.Send([]byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected before connecting, got %v", err)
	}

	l = startLoop(t, s, Options{URI: srv.URL()})
	waitFor(t, "connection", func() bool { return l.State() == Connected })

	payload, _ := protocol.EncodeControl(25)
	if err := l.Send(payload); err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-received:
		if msg != `{"timeToWaitInMilliseconds":25}` {
			t.Errorf("unexpected control frame %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("control frame never arrived")
	}
}

type brokenConn struct {
	closed chan struct{}
	once   sync.Once
}

func (c *brokenConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("use of closed connection")
}
func (c *brokenConn) WriteMessage(int, []byte) error   { return errors.New("broken pipe") }
func (c *brokenConn) SetReadDeadline(time.Time) error  { return nil }
func (c *brokenConn) SetWriteDeadline(time.Time) error { return nil }
func (c *brokenConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type brokenDialer struct{ dials atomic.Int32 }

func (d *brokenDialer) Dial(context.Context, string) (Conn, error) {
	if d.dials.Add(1) > 1 {
		return nil, errors.New("connection refused")
	}
	return &brokenConn{closed: make(chan struct{})}, nil
}

func TestLoopSendFailureDropsSession(t *testing.T) {
	s := store.New()
	s.Update(func(s *store.Store) {
		s.ReplaceEntities(0, []store.Entity{{X: 1, Y: 1}})
	})

	l := startLoop(t, s, Options{URI: "ws://unused", Dialer: &brokenDialer{}})
	waitFor(t, "connection", func() bool { return l.State() == Connected })

	if err := l.Send([]byte(`{"timeToWaitInMilliseconds":1}`)); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	waitFor(t, "store reset", func() bool { return s.Copy().EntityCount() == 0 })

	if st := l.Stats(); st.Failures != 1 {
		t.Errorf("expected one failure, got %+v", st)
	}
	if err := l.Send([]byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after drop, got %v", err)
	}
}

func TestLoopHandle(t *testing.T) {
	s := store.New()
	l := New(s, Options{Logger: quietLogger()})

	if err := l.Handle(nil); err != nil {
		t.Errorf("nil payload: %v", err)
	}
	if err := l.Handle([]byte(`{"maxTicks":5}`)); err != nil {
		t.Fatal(err)
	}
	if err := l.Handle([]byte(`{oops`)); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
	if got := s.Copy().Progress.MaxTicks; got != 5 {
		t.Errorf("expected maxTicks 5, got %d", got)
	}
}

func TestLoopHandleSkipsFramesWithoutKnownKeys(t *testing.T) {
	s := store.New()
	l := New(s, Options{Logger: quietLogger()})

	for _, payload := range []string{`{}`, `{"unknown":1}`} {
		if err := l.Handle([]byte(payload)); err != nil {
			t.Errorf("Handle(%s): %v", payload, err)
		}
	}
	if s.Copy().Progress.HasData {
		t.Error("frames without known keys should not mark data")
	}
	if n := l.Stats().Frames; n != 0 {
		t.Errorf("expected no applied frames, got %d", n)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		Disconnected: "disconnected",
		Connecting:   "connecting",
		Connected:    "connected",
		State(42):    "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
