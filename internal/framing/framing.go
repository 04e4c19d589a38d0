// Package framing implements the native-messaging wire format: a 4-byte
// little-endian length header followed by that many bytes of UTF-8 JSON.
package framing

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// HeaderSize is the fixed length-prefix size in bytes.
const HeaderSize = 4

// DefaultMaxPayload is the largest payload accepted in either direction.
// Chrome applies the same 1 MiB ceiling to host-to-extension messages.
const DefaultMaxPayload = 1024 * 1024

// ErrPayloadTooLarge is returned by Encode for payloads over the cap.
var ErrPayloadTooLarge = errors.New("framing: payload exceeds max size")

// PayloadError reports a well-framed message whose body is not valid JSON.
// Only that message is lost; the stream keeps going.
type PayloadError struct {
	Payload []byte
	Err     error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("framing: invalid payload (%d bytes): %v", len(e.Payload), e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// Encode serializes payload as JSON and prefixes it with its length.
func Encode(payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return EncodeRaw(body)
}

// EncodeRaw frames an already-serialized JSON body.
func EncodeRaw(body []byte) ([]byte, error) {
	if len(body) > DefaultMaxPayload {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(body), DefaultMaxPayload)
	}
	buf := make([]byte, HeaderSize+len(body))
	binary.LittleEndian.PutUint32(buf[:HeaderSize], uint32(len(body)))
	copy(buf[HeaderSize:], body)
	return buf, nil
}
