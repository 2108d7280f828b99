package opus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/glizzus/terminus/internal/audio"
)

const stderrTailSize = 2048

// Stream is a running transcoder process. Frames are decoded at most one
// ahead of the reader.
type Stream struct {
	name   string
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer

	ctx    context.Context
	cancel context.CancelFunc

	stallTimeout time.Duration
	frames       chan []byte

	// err is written by pump before done is closed.
	done chan struct{}
	err  error

	closeOnce sync.Once
}

var _ audio.FrameSource = (*Stream)(nil)

// ReadFrame returns the next frame, io.EOF after a clean end of stream, or an
// *audio.Error describing why the process failed.
func (s *Stream) ReadFrame() ([]byte, error) {
	var stall <-chan time.Time
	if s.stallTimeout > 0 {
		timer := time.NewTimer(s.stallTimeout)
		defer timer.Stop()
		stall = timer.C
	}

	select {
	case frame := <-s.frames:
		return frame, nil
	case <-s.done:
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	case <-stall:
		s.cancel()
		return nil, &audio.Error{
			Op:   "read frame",
			Kind: audio.ErrTranscoderTimeout,
			Err:  fmt.Errorf("%s produced no frame within %s", s.name, s.stallTimeout),
		}
	}
}

// Close kills the process if it is still running and waits for it to be
// reaped. It is safe to call at any point and more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		// Unblocks a pending read if a child of the process still holds the
		// pipe open.
		s.stdout.Close()
	})
	<-s.done
	return nil
}

func (s *Stream) pump(decode decodeFunc) {
	defer close(s.done)

	derr := decode(s.stdout, func(frame []byte) error {
		select {
		case s.frames <- frame:
			return nil
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
	})

	if s.ctx.Err() != nil {
		s.cmd.Wait()
		s.err = s.ctx.Err()
		return
	}

	if derr != nil {
		// The process may still be writing; nobody is reading anymore.
		s.cancel()
		werr := s.cmd.Wait()
		s.err = &audio.Error{
			Op:   "transcode",
			Kind: audio.ErrTranscoderExitedNonZero,
			Err:  errors.Join(fmt.Errorf("malformed output from %s: %w", s.name, derr), s.exitError(werr)),
		}
		return
	}

	if werr := s.cmd.Wait(); werr != nil {
		s.err = &audio.Error{
			Op:   "transcode",
			Kind: audio.ErrTranscoderExitedNonZero,
			Err:  s.exitError(werr),
		}
	}
}

func (s *Stream) exitError(werr error) error {
	if werr == nil {
		return nil
	}
	if tail := strings.TrimSpace(s.stderr.String()); tail != "" {
		return fmt.Errorf("%s: %w: %s", s.name, werr, tail)
	}
	return fmt.Errorf("%s: %w", s.name, werr)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
