package framing

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"strings"
	"testing"
)

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	frame, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return frame
}

func payloads(results []Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			out = append(out, "ERR")
			continue
		}
		out = append(out, string(r.Payload))
	}
	return out
}

func TestEncodeHeaderLayout(t *testing.T) {
	frame := mustEncode(t, map[string]string{"type": "INIT"})
	body := `{"type":"INIT"}`

	if got := binary.LittleEndian.Uint32(frame[:4]); got != uint32(len(body)) {
		t.Errorf("length header = %d, want %d", got, len(body))
	}
	if got := string(frame[4:]); got != body {
		t.Errorf("body = %q, want %q", got, body)
	}
}

func TestEncodeUTF8(t *testing.T) {
	frame := mustEncode(t, "日志")
	want := `"日志"`
	if got := binary.LittleEndian.Uint32(frame[:4]); got != uint32(len(want)) {
		t.Errorf("length header = %d, want byte length %d", got, len(want))
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	big := strings.Repeat("x", DefaultMaxPayload)
	_, err := Encode(big) // quotes push it over the cap
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("Encode error = %v, want ErrPayloadTooLarge", err)
	}
}

func TestDecoderWaitsForCompleteFrame(t *testing.T) {
	frame := mustEncode(t, map[string]int{"n": 1})
	d := NewDecoder()

	if got := d.Feed(frame[:2]); len(got) != 0 {
		t.Fatalf("partial header yielded %d results", len(got))
	}
	if got := d.Feed(frame[2 : len(frame)-1]); len(got) != 0 {
		t.Fatalf("partial body yielded %d results", len(got))
	}
	if d.Buffered() != len(frame)-1 {
		t.Errorf("Buffered() = %d, want %d", d.Buffered(), len(frame)-1)
	}
	got := d.Feed(frame[len(frame)-1:])
	if len(got) != 1 || string(got[0].Payload) != `{"n":1}` {
		t.Fatalf("Feed = %v, want one {\"n\":1}", payloads(got))
	}
	if d.Buffered() != 0 {
		t.Errorf("Buffered() after full frame = %d", d.Buffered())
	}
}

func TestDecoderChunkBoundariesDoNotMatter(t *testing.T) {
	var stream []byte
	for i := 0; i < 20; i++ {
		stream = append(stream, mustEncode(t, map[string]any{
			"type": "LOG",
			"data": map[string]any{"i": i, "message": strings.Repeat("m", i*7)},
		})...)
	}

	whole := payloads(NewDecoder().Feed(stream))
	if len(whole) != 20 {
		t.Fatalf("single chunk decoded %d messages, want 20", len(whole))
	}

	byteWise := NewDecoder()
	var got []Result
	for i := range stream {
		got = append(got, byteWise.Feed(stream[i:i+1])...)
	}
	assertSameSequence(t, "byte-at-a-time", whole, payloads(got))

	rng := rand.New(rand.NewPCG(1, 2))
	for trial := 0; trial < 50; trial++ {
		d := NewDecoder()
		var results []Result
		for pos := 0; pos < len(stream); {
			n := 1 + rng.IntN(64)
			end := min(pos+n, len(stream))
			results = append(results, d.Feed(stream[pos:end])...)
			pos = end
		}
		assertSameSequence(t, "random chunks", whole, payloads(results))
	}
}

func assertSameSequence(t *testing.T, name string, want, got []string) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("%s: got %d messages, want %d", name, len(got), len(want))
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("%s: message %d = %s, want %s", name, i, got[i], want[i])
		}
	}
}

func TestDecoderResetsOnZeroLength(t *testing.T) {
	d := NewDecoder()
	bad := []byte{0, 0, 0, 0, 'j', 'u', 'n', 'k'}

	if got := d.Feed(bad); len(got) != 0 {
		t.Fatalf("corrupt frame yielded %v", payloads(got))
	}
	if d.Buffered() != 0 {
		t.Errorf("Buffered() after reset = %d, want 0", d.Buffered())
	}
	if d.Resets() != 1 {
		t.Errorf("Resets() = %d, want 1", d.Resets())
	}

	got := d.Feed(mustEncode(t, map[string]string{"type": "INIT"}))
	if len(got) != 1 || got[0].Err != nil {
		t.Fatalf("next well-formed frame: %v", payloads(got))
	}
}

func TestDecoderResetsOnOversizedLength(t *testing.T) {
	d := NewDecoder()
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, DefaultMaxPayload+1)

	// Everything after the bad header in the same chunk is dropped too.
	chunk := append(header, mustEncode(t, "lost")...)
	if got := d.Feed(chunk); len(got) != 0 {
		t.Fatalf("oversized frame yielded %v", payloads(got))
	}

	got := d.Feed(mustEncode(t, "kept"))
	if len(got) != 1 || string(got[0].Payload) != `"kept"` {
		t.Fatalf("after reset got %v, want [\"kept\"]", payloads(got))
	}
}

func TestDecoderExactlyMaxPayloadAccepted(t *testing.T) {
	d := NewDecoder(WithMaxPayload(8))
	frame, err := EncodeRaw([]byte(`"123456"`))
	if err != nil {
		t.Fatal(err)
	}
	got := d.Feed(frame)
	if len(got) != 1 || got[0].Err != nil {
		t.Fatalf("8-byte payload with cap 8: %v", payloads(got))
	}
}

func TestDecoderMalformedJSONIsPerMessage(t *testing.T) {
	bad, err := EncodeRaw([]byte(`{"type":`))
	if err != nil {
		t.Fatal(err)
	}
	stream := append(mustEncode(t, 1), bad...)
	stream = append(stream, mustEncode(t, 2)...)

	got := NewDecoder().Feed(stream)
	if len(got) != 3 {
		t.Fatalf("got %d results, want 3", len(got))
	}
	var perr *PayloadError
	if !errors.As(got[1].Err, &perr) {
		t.Fatalf("result 1 error = %v, want *PayloadError", got[1].Err)
	}
	if string(perr.Payload) != `{"type":` {
		t.Errorf("PayloadError.Payload = %q", perr.Payload)
	}
	if string(got[2].Payload) != "2" {
		t.Errorf("stream did not continue: %v", payloads(got))
	}
}

type trickleReader struct {
	data []byte
	step int
}

func (r *trickleReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := min(r.step, len(r.data), len(p))
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func TestReaderWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, msg := range []map[string]any{
		{"type": "INIT", "version": "1.0.0"},
		{"type": "LOG", "data": map[string]any{"message": "hello"}},
	} {
		if err := w.Write(msg); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	r := NewReader(&trickleReader{data: buf.Bytes(), step: 3}, nil)
	var types []string
	for {
		raw, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		var m struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatal(err)
		}
		types = append(types, m.Type)
	}
	if len(types) != 2 || types[0] != "INIT" || types[1] != "LOG" {
		t.Fatalf("types = %v, want [INIT LOG]", types)
	}
}

func TestReaderSurfacesPayloadErrorAndContinues(t *testing.T) {
	bad, _ := EncodeRaw([]byte("nope"))
	stream := append(bad, mustEncode(t, "ok")...)
	r := NewReader(bytes.NewReader(stream), nil)

	_, err := r.Next()
	var perr *PayloadError
	if !errors.As(err, &perr) {
		t.Fatalf("first Next error = %v, want *PayloadError", err)
	}
	raw, err := r.Next()
	if err != nil || string(raw) != `"ok"` {
		t.Fatalf("second Next = %s, %v", raw, err)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("third Next error = %v, want EOF", err)
	}
}
