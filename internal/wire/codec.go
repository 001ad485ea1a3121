// Package wire frames event packets over a TCP byte stream.
//
// Each frame is a compact JSON object {"event": ..., "data": ...} followed by
// a single 0x04 byte. JSON escapes every control character inside strings,
// so the delimiter never occurs in an encoded body.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Delimiter terminates every frame (ASCII End of Transmission).
const Delimiter byte = 0x04

// DefaultMaxFrameSize bounds a single frame body.
const DefaultMaxFrameSize = 1 << 20

var (
	// ErrMalformed reports a frame that is not a valid packet.
	ErrMalformed = errors.New("wire: malformed packet")
	// ErrFrameTooLarge reports a frame that exceeded the reader limit. The
	// frame has been skipped and the stream is still usable.
	ErrFrameTooLarge = errors.New("wire: frame too large")
	// ErrDelimiterInBody is returned by Encode if the body would contain a
	// raw delimiter byte.
	ErrDelimiterInBody = errors.New("wire: delimiter in encoded body")
)

// Packet is the only record ever placed on the wire.
type Packet struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// rawPacket lets Decode tell a missing field from an empty one.
type rawPacket struct {
	Event *string `json:"event"`
	Data  *string `json:"data"`
}

// Encode returns the framed bytes for p, delimiter included.
// Strings must be valid UTF-8; JSON would otherwise replace bad bytes.
func Encode(p Packet) ([]byte, error) {
	if !utf8.ValidString(p.Event) || !utf8.ValidString(p.Data) {
		return nil, fmt.Errorf("%w: invalid UTF-8", ErrMalformed)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}

	body := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	if bytes.IndexByte(body, Delimiter) >= 0 {
		return nil, ErrDelimiterInBody
	}
	return append(body, Delimiter), nil
}

// Decode parses one frame body (delimiter already stripped).
func Decode(frame []byte) (Packet, error) {
	var raw rawPacket
	if err := json.Unmarshal(frame, &raw); err != nil {
		return Packet{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.Event == nil {
		return Packet{}, fmt.Errorf("%w: missing event", ErrMalformed)
	}
	if raw.Data == nil {
		return Packet{}, fmt.Errorf("%w: missing data", ErrMalformed)
	}
	return Packet{Event: *raw.Event, Data: *raw.Data}, nil
}

// IsFrameError reports whether err concerns a single frame only, meaning
// the stream can keep being read.
func IsFrameError(err error) bool {
	return errors.Is(err, ErrMalformed) || errors.Is(err, ErrFrameTooLarge)
}
