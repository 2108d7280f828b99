package opus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"layeh.com/gopus"
)

// Discord voice uses 48 kHz stereo Opus at 20 ms frame size.
const (
	sampleRate = 48000
	channels   = 2
	// frameSize is the number of samples per channel per 20 ms frame.
	frameSize = sampleRate * 20 / 1000
	bitrate   = 64000

	pcmFrameBytes = frameSize * channels * 2
)

// encodePCM reads s16le stereo PCM and emits one Opus frame per 20 ms. A short
// final frame is padded with silence.
func encodePCM(r io.Reader, emit func([]byte) error) error {
	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return fmt.Errorf("failed to create opus encoder: %w", err)
	}
	encoder.SetBitrate(bitrate)

	pcmBuf := make([]byte, pcmFrameBytes)
	intBuf := make([]int16, frameSize*channels)

	for {
		n, err := io.ReadFull(r, pcmBuf)
		if errors.Is(err, io.EOF) {
			return nil
		}
		last := errors.Is(err, io.ErrUnexpectedEOF)
		if err != nil && !last {
			return fmt.Errorf("failed to read pcm: %w", err)
		}
		clear(pcmBuf[n:])

		for i := range intBuf {
			intBuf[i] = int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
		}

		frame, err := encoder.Encode(intBuf, frameSize, pcmFrameBytes)
		if err != nil {
			return fmt.Errorf("failed to encode opus frame: %w", err)
		}
		if err := emit(frame); err != nil {
			return err
		}
		if last {
			return nil
		}
	}
}

// FrameWriter writes frames in the length-prefixed format read by
// FrameReader.
type FrameWriter struct {
	w io.Writer
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

func (f *FrameWriter) WriteFrame(frame []byte) error {
	if len(frame) > math.MaxUint16 {
		return fmt.Errorf("frame of %d bytes is too large", len(frame))
	}

	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(frame)))
	if _, err := f.w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := f.w.Write(frame)
	return err
}
