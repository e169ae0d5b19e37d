// Package recorder stores inbound simulation frames as zstd-compressed
// JSON lines so a session can be replayed later.
package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Entry is one recorded frame.
type Entry struct {
	// Offset is the time since the recording started.
	Offset time.Duration   `json:"offset_ns"`
	Frame  json.RawMessage `json:"frame"`
}

// Payload returns the frame as it was received. Frames that were not valid
// JSON are stored as JSON strings and come back unquoted.
func (e Entry) Payload() []byte {
	var s string
	if len(e.Frame) > 0 && e.Frame[0] == '"' && json.Unmarshal(e.Frame, &s) == nil {
		return []byte(s)
	}
	return e.Frame
}

// Writer appends frames to a .jsonl.zst file. It is safe for concurrent use.
type Writer struct {
	mu    sync.Mutex
	start time.Time
	f     *os.File
	enc   *zstd.Encoder
	w     *bufio.Writer
}

// Create opens path for recording, creating parent directories.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating recording dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating recording: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return &Writer{
		start: time.Now(),
		f:     f,
		enc:   enc,
		w:     bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

// Write records one raw frame. Payloads that are not valid JSON are stored
// as JSON strings so the line stays parseable.
func (w *Writer) Write(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return os.ErrClosed
	}

	raw := json.RawMessage(frame)
	if !json.Valid(frame) {
		quoted, err := json.Marshal(string(frame))
		if err != nil {
			return err
		}
		raw = quoted
	}

	b, err := json.Marshal(Entry{Offset: time.Since(w.start), Frame: raw})
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Close flushes and closes the recording.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	var firstErr error
	if err := w.w.Flush(); err != nil {
		firstErr = err
	}
	if err := w.enc.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	w.w = nil
	return firstErr
}

// Reader iterates over a recording.
type Reader struct {
	f   *os.File
	dec *zstd.Decoder
	sc  *bufio.Scanner
}

// Open opens a recording produced by Writer.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening recording: %w", err)
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	return &Reader{f: f, dec: dec, sc: sc}, nil
}

// Next returns the next entry, or io.EOF at the end of the recording.
func (r *Reader) Next() (Entry, error) {
	for r.sc.Scan() {
		line := r.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return Entry{}, fmt.Errorf("parsing recording line: %w", err)
		}
		return e, nil
	}
	if err := r.sc.Err(); err != nil {
		return Entry{}, err
	}
	return Entry{}, io.EOF
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	r.dec.Close()
	return r.f.Close()
}
