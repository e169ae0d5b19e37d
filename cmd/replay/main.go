// Package main replays a recorded session into a store without a window
// and reports what the viewer would have shown at the end.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pthm-cable/minivis/ingest"
	"github.com/pthm-cable/minivis/protocol"
	"github.com/pthm-cable/minivis/recorder"
	"github.com/pthm-cable/minivis/store"
	"github.com/pthm-cable/minivis/telemetry"
)

type options struct {
	pace     bool    // honour recorded offsets
	speed    float64 // pace multiplier
	validate bool
	logger   *slog.Logger
}

// result summarizes a replay.
type result struct {
	Entries  int // recorded payloads read
	Rejected int // payloads that failed decoding and reset the store
	Stats    telemetry.WindowStats
	State    store.State
}

func main() {
	pace := flag.Bool("pace", false, "Replay with the recorded timing")
	speed := flag.Float64("speed", 1, "Speed multiplier when pacing")
	validate := flag.Bool("validate", false, "Check frames against the JSON schema")
	snapshotDir := flag.String("snapshot-dir", "", "Write the final state as a JSON snapshot here")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] recording.jsonl.zst\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	res, err := replay(flag.Arg(0), options{
		pace:     *pace,
		speed:    *speed,
		validate: *validate,
		logger:   logger,
	})
	if err != nil {
		slog.Error("replay failed", "error", err)
		os.Exit(1)
	}

	slog.Info("replay finished",
		"entries", res.Entries,
		"rejected", res.Rejected,
		"window", res.Stats,
	)

	if *snapshotDir != "" {
		path, err := telemetry.SaveSnapshot(telemetry.NewSnapshot(res.State), *snapshotDir)
		if err != nil {
			slog.Error("failed to save snapshot", "error", err)
			os.Exit(1)
		}
		slog.Info("snapshot saved", "path", path)
	}
}

// replay feeds every recorded payload through the ingestion decode path.
// A rejected payload resets the store exactly as a live session would.
func replay(path string, opts options) (result, error) {
	var res result

	r, err := recorder.Open(path)
	if err != nil {
		return res, err
	}
	defer r.Close()

	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	ingestOpts := ingest.Options{Logger: opts.logger}
	if opts.validate {
		v, err := protocol.NewValidator()
		if err != nil {
			return res, err
		}
		ingestOpts.Validator = v
	}

	s := store.New()
	loop := ingest.New(s, ingestOpts)
	start := time.Now()
	collector := telemetry.NewCollector(time.Hour, start)

	var last time.Duration
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}
		res.Entries++

		if opts.pace {
			gap := time.Duration(float64(e.Offset-last) / max(opts.speed, 0.01))
			time.Sleep(gap)
			last = e.Offset
		}

		if err := loop.Handle(e.Payload()); err != nil {
			res.Rejected++
			opts.logger.Warn("frame rejected, store reset", "entry", res.Entries, "error", err)
			loop.Recover()
		}
	}

	res.State = s.Copy()
	res.Stats = collector.Flush(time.Now(), loop.Stats(), res.State)
	return res, nil
}
