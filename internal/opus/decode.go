package opus

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/jonas747/ogg"
)

// FrameReader reads length-prefixed Opus frames from an io.Reader.
type FrameReader struct {
	r io.Reader
}

// NewFrameReader returns a new FrameReader that reads from r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadFrame reads and returns the next raw Opus frame.
// Returns io.EOF when there are no more frames, and io.ErrUnexpectedEOF when
// the input ends inside a frame.
func (f *FrameReader) ReadFrame() ([]byte, error) {
	var size uint16
	if err := binary.Read(f.r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}

	frame := make([]byte, size)
	if _, err := io.ReadFull(f.r, frame); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}

func readFrames(r io.Reader, emit func([]byte) error) error {
	fr := NewFrameReader(r)
	for {
		frame, err := fr.ReadFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read frame: %w", err)
		}
		if err := emit(frame); err != nil {
			return err
		}
	}
}

// demuxOgg emits the Opus packets of an Ogg stream, skipping the OpusHead and
// OpusTags header packets.
func demuxOgg(r io.Reader, emit func([]byte) error) error {
	decoder := ogg.NewPacketDecoder(ogg.NewDecoder(r))

	skip := 2
	for {
		packet, _, err := decoder.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("failed to decode ogg packet: %w", err)
		}
		if skip > 0 {
			skip--
			continue
		}

		// The decoder reuses its buffers between packets.
		if err := emit(bytes.Clone(packet)); err != nil {
			return err
		}
	}
}
