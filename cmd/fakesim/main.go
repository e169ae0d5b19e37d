// Package main serves a stand-in simulation for the viewer: a websocket
// endpoint that streams synthetic frames, or a recorded session, and honours
// the playback delay sent back by the viewer.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/minivis/protocol"
	"github.com/pthm-cable/minivis/recorder"
)

type options struct {
	agents   int
	size     float64
	maxTicks int
	interval time.Duration
	seed     uint64
	replay   string
	speed    float64
	loop     bool
}

func main() {
	addr := flag.String("addr", "127.0.0.1:4567", "Listen address")
	path := flag.String("path", "/vis", "Websocket path")
	var opts options
	flag.IntVar(&opts.agents, "agents", 60, "Number of synthetic agents")
	flag.Float64Var(&opts.size, "size", 1000, "World edge length")
	flag.IntVar(&opts.maxTicks, "ticks", 2000, "Ticks per run (0 = endless)")
	flag.DurationVar(&opts.interval, "interval", 20*time.Millisecond, "Base time per tick, before the viewer's delay")
	flag.Uint64Var(&opts.seed, "seed", 42, "RNG seed")
	flag.StringVar(&opts.replay, "replay", "", "Stream this recording instead of synthetic frames")
	flag.Float64Var(&opts.speed, "speed", 1, "Replay speed multiplier")
	flag.BoolVar(&opts.loop, "loop", false, "Restart when the run ends")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle(*path, newServer(opts))
	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
		defer stop()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("fake simulation listening", "addr", *addr, "path", *path, "replay", opts.replay)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

type server struct {
	opts     options
	upgrader websocket.Upgrader
	sessions atomic.Int64
}

func newServer(opts options) *server {
	return &server{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id := s.sessions.Add(1)
	log := slog.With("session", id, "remote", r.RemoteAddr)
	log.Info("viewer connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: the only inbound traffic is the playback delay.
	var delay atomic.Int64
	go func() {
		defer cancel()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			c, err := protocol.DecodeControl(msg)
			if err != nil {
				log.Warn("ignoring bad control frame", "error", err)
				continue
			}
			delay.Store(int64(c.TimeToWaitInMilliseconds))
			log.Debug("playback delay", "ms", c.TimeToWaitInMilliseconds)
		}
	}()

	send := func(payload []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteMessage(websocket.TextMessage, payload)
	}
	wait := func(base time.Duration) bool {
		d := base + time.Duration(delay.Load())*time.Millisecond
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	for {
		if s.opts.replay != "" {
			err = s.streamRecording(send, wait)
		} else {
			err = s.streamSynthetic(send, wait)
		}
		if err != nil || !s.opts.loop {
			break
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Info("session ended", "error", err)
		return
	}

	// Keep the socket open so the viewer shows the final state.
	<-ctx.Done()
	log.Info("viewer disconnected")
}

// streamSynthetic runs one random-walk simulation to completion.
func (s *server) streamSynthetic(send func([]byte) error, wait func(time.Duration) bool) error {
	w := newWorld(s.opts.seed, s.opts.agents, s.opts.size, s.opts.maxTicks)
	for tick := 0; s.opts.maxTicks == 0 || tick <= s.opts.maxTicks; tick++ {
		b, err := w.frame(tick)
		if err != nil {
			return err
		}
		if err := send(b); err != nil {
			return err
		}
		if !wait(s.opts.interval) {
			return context.Canceled
		}
		w.step()
	}
	return nil
}

// streamRecording sends a recorded session, keeping its original pacing
// scaled by the replay speed.
func (s *server) streamRecording(send func([]byte) error, wait func(time.Duration) bool) error {
	r, err := recorder.Open(s.opts.replay)
	if err != nil {
		return err
	}
	defer r.Close()

	var last time.Duration
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		gap := time.Duration(float64(e.Offset-last) / max(s.opts.speed, 0.01))
		last = e.Offset
		if !wait(gap) {
			return context.Canceled
		}
		if err := send(e.Payload()); err != nil {
			return err
		}
	}
}
