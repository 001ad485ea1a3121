package wire

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// Reader recovers frames from a byte stream that may split or coalesce
// writes arbitrarily.
type Reader struct {
	br  *bufio.Reader
	max int
}

// NewReader wraps r. maxFrame <= 0 selects DefaultMaxFrameSize.
func NewReader(r io.Reader, maxFrame int) *Reader {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}
	return &Reader{br: bufio.NewReader(r), max: maxFrame}
}

// ReadFrame returns the next frame body without its delimiter. A frame
// longer than the limit is consumed and reported as ErrFrameTooLarge.
// Bytes left without a delimiter when the stream ends are dropped.
func (r *Reader) ReadFrame() ([]byte, error) {
	var frame []byte
	tooLarge := false

	for {
		chunk, err := r.br.ReadSlice(Delimiter)
		if !tooLarge {
			if len(frame)+len(chunk) > r.max+1 {
				tooLarge = true
				frame = nil
			} else {
				frame = append(frame, chunk...)
			}
		}

		switch {
		case err == nil:
			if tooLarge {
				return nil, ErrFrameTooLarge
			}
			return frame[:len(frame)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return nil, err
		}
	}
}

// ReadPacket reads and decodes the next frame. Errors satisfying
// IsFrameError are recoverable; anything else ends the stream.
func (r *Reader) ReadPacket() (Packet, error) {
	frame, err := r.ReadFrame()
	if err != nil {
		return Packet{}, err
	}
	return Decode(frame)
}

// Writer serializes whole frames onto w so concurrent senders never
// interleave bytes of different packets.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WritePacket encodes p and writes the frame in one call.
func (w *Writer) WritePacket(p Packet) error {
	b, err := Encode(p)
	if err != nil {
		return err
	}
	return w.WriteFrame(b)
}

// WriteFrame writes an already encoded frame, delimiter included.
func (w *Writer) WriteFrame(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.w.Write(frame)
	return err
}
