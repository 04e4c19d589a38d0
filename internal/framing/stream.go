package framing

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

const readChunkSize = 32 * 1024

// Reader pulls frames from an io.Reader one at a time.
type Reader struct {
	r       io.Reader
	dec     *Decoder
	pending []Result
	chunk   []byte
	logger  *slog.Logger
}

// NewReader wraps r. A nil logger falls back to slog.Default().
func NewReader(r io.Reader, logger *slog.Logger, opts ...DecoderOption) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		r:      r,
		dec:    NewDecoder(opts...),
		chunk:  make([]byte, readChunkSize),
		logger: logger,
	}
}

// Next returns the next payload. A *PayloadError is per-message and the
// caller may keep reading; any other error, including io.EOF, ends the
// stream.
func (r *Reader) Next() (json.RawMessage, error) {
	for len(r.pending) == 0 {
		n, err := r.r.Read(r.chunk)
		if n > 0 {
			before := r.dec.Resets()
			r.pending = append(r.pending, r.dec.Feed(r.chunk[:n])...)
			if r.dec.Resets() != before {
				r.logger.Warn("discarded corrupt frame buffer", "resets", r.dec.Resets())
			}
		}
		if err != nil {
			if len(r.pending) > 0 {
				break
			}
			return nil, err
		}
	}

	next := r.pending[0]
	r.pending = r.pending[1:]
	return next.Payload, next.Err
}

// Writer frames values onto an io.Writer. Safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes v and writes header and body in a single call.
func (w *Writer) Write(v any) error {
	frame, err := Encode(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
