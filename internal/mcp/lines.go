package mcp

import "bytes"

// DefaultMaxLine caps a single request line.
const DefaultMaxLine = 1024 * 1024

// Line is one newline-terminated input line. TooLong marks a line that
// exceeded the cap; its contents were dropped.
type Line struct {
	Data    []byte
	TooLong bool
}

// LineDecoder splits an arbitrarily chunked stream into lines, holding a
// partial trailing line until its newline arrives.
type LineDecoder struct {
	buf        []byte
	max        int
	discarding bool
}

// NewLineDecoder returns a decoder with the given cap, or DefaultMaxLine
// if max <= 0.
func NewLineDecoder(max int) *LineDecoder {
	if max <= 0 {
		max = DefaultMaxLine
	}
	return &LineDecoder{max: max}
}

// Feed returns the complete, non-blank lines in chunk plus whatever was
// buffered before it. Surrounding whitespace is trimmed.
func (d *LineDecoder) Feed(chunk []byte) []Line {
	var out []Line
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			d.hold(chunk)
			break
		}
		d.hold(chunk[:i])
		chunk = chunk[i+1:]

		if d.discarding {
			out = append(out, Line{TooLong: true})
			d.discarding = false
			continue
		}
		line := bytes.TrimSpace(d.buf)
		if len(line) > 0 {
			out = append(out, Line{Data: bytes.Clone(line)})
		}
		d.buf = d.buf[:0]
	}
	return out
}

// hold appends part of an unterminated line, switching to discard mode
// once the cap is passed.
func (d *LineDecoder) hold(part []byte) {
	if d.discarding {
		return
	}
	if len(d.buf)+len(part) > d.max {
		d.buf = nil
		d.discarding = true
		return
	}
	d.buf = append(d.buf, part...)
}

// Flush returns the pending unterminated line, if any, and resets the
// decoder. Call it once the input has ended.
func (d *LineDecoder) Flush() []Line {
	defer func() {
		d.buf = d.buf[:0]
		d.discarding = false
	}()
	if d.discarding {
		return []Line{{TooLong: true}}
	}
	line := bytes.TrimSpace(d.buf)
	if len(line) == 0 {
		return nil
	}
	return []Line{{Data: bytes.Clone(line)}}
}

// Buffered returns the size of the pending partial line.
func (d *LineDecoder) Buffered() int { return len(d.buf) }
