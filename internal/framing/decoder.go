package framing

import (
	"encoding/binary"
	"encoding/json"
	"errors"
)

// Result is one decoded frame: either a JSON payload or a *PayloadError.
type Result struct {
	Payload json.RawMessage
	Err     error
}

// Decoder is a stateful accumulator over an arbitrarily chunked stream.
// It is not safe for concurrent use.
type Decoder struct {
	buf        []byte
	maxPayload int
	resets     int
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithMaxPayload overrides DefaultMaxPayload.
func WithMaxPayload(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.maxPayload = n
		}
	}
}

// NewDecoder returns an empty Decoder.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{maxPayload: DefaultMaxPayload}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed appends chunk to the buffer and returns every frame that is now
// complete, in stream order. A header declaring length 0 or a length over
// the cap discards the whole buffer, including any bytes that followed it
// in the same chunk; decoding starts fresh with the next Feed.
func (d *Decoder) Feed(chunk []byte) []Result {
	d.buf = append(d.buf, chunk...)

	var out []Result
	for len(d.buf) >= HeaderSize {
		length := binary.LittleEndian.Uint32(d.buf[:HeaderSize])
		if length == 0 || uint64(length) > uint64(d.maxPayload) {
			d.buf = nil
			d.resets++
			return out
		}

		end := HeaderSize + int(length)
		if len(d.buf) < end {
			break
		}

		payload := make([]byte, length)
		copy(payload, d.buf[HeaderSize:end])
		d.buf = d.buf[end:]

		if !json.Valid(payload) {
			out = append(out, Result{Err: &PayloadError{
				Payload: payload,
				Err:     errors.New("malformed JSON"),
			}})
			continue
		}
		out = append(out, Result{Payload: payload})
	}

	if len(d.buf) == 0 {
		d.buf = nil
	}
	return out
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Resets returns how many times a corrupt header has cleared the buffer.
func (d *Decoder) Resets() int { return d.resets }
