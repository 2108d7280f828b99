package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// run is the session's single consumer. It exits when the session is
// cancelled or retired.
func (s *session) run() {
	defer close(s.done)

	// The previous worker was cancelled, so this wait is short. Leaving early
	// would let a third session connect before it is gone.
	if s.prev != nil {
		<-s.prev
	}

	for {
		req, ok := s.next()
		if !ok {
			if s.isCancelled() {
				return
			}
			s.release()
			if !s.waitForWork() {
				return
			}
			continue
		}
		s.play(req)
	}
}

// release drops the connection once the queue has drained.
func (s *session) release() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		s.log.Debug("queue drained, leaving voice channel", "channelID", conn.ChannelID())
		closeConn(s.log, conn)
	}
}

func (s *session) waitForWork() bool {
	var timeout <-chan time.Time
	if d := s.m.cfg.IdleTimeout; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-s.wake:
			return true
		case <-s.ctx.Done():
			return false
		case <-timeout:
			if s.m.retire(s) {
				s.log.Info("retired idle session")
				return false
			}
			// Work arrived or the session was stopped; either ends the wait.
			timeout = nil
		}
	}
}

func (s *session) play(req Request) {
	log := s.log.With(
		"requestID", req.ID,
		"kind", req.Kind.String(),
		"source", req.SourcePath,
		"channelID", req.ChannelID,
	)

	conn, err := s.connect(req, log)
	if err == nil {
		err = s.stream(conn, req)
	}

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	switch {
	case s.ctx.Err() != nil:
		log.Info("playback cancelled")
		s.m.emit(Event{Type: EventCancelled, Request: req})
	case err != nil:
		log.Error("playback failed", "error", err)
		s.m.emit(Event{Type: EventFailed, Request: req, Err: err})
	default:
		log.Info("playback finished")
		s.m.emit(Event{Type: EventFinished, Request: req})
	}
}

// connect reuses the session's connection when it already targets the
// request's channel and otherwise replaces it.
func (s *session) connect(req Request, log *slog.Logger) (Conn, error) {
	if conn := s.activeConn(); conn != nil {
		if conn.ChannelID() == req.ChannelID {
			return conn, nil
		}
		log.Info("switching voice channel", "from", conn.ChannelID())
		s.detach(conn)
		closeConn(log, conn)
	}

	gw, err := s.m.gateway(s.guildID)
	if err != nil {
		return nil, newError("connect", s.guildID, ErrConnectionFailed, err)
	}

	var (
		conn    Conn
		attempt int
	)
	op := func() error {
		attempt++
		ctx, cancel := context.WithTimeout(s.ctx, s.m.cfg.ConnectTimeout)
		defer cancel()

		c, err := gw.Connect(ctx, s.guildID, req.ChannelID)
		if err != nil {
			if s.ctx.Err() != nil {
				return backoff.Permanent(s.ctx.Err())
			}
			log.Warn("voice connect attempt failed", "attempt", attempt, "error", err)
			return err
		}
		conn = c
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(s.m.newBackOff(), uint64(s.m.cfg.ConnectAttempts-1)),
		s.ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, newError("connect", s.guildID, ErrConnectionFailed, err)
	}

	if !s.adopt(conn) {
		closeConn(log, conn)
		return nil, context.Canceled
	}
	return conn, nil
}

func (s *session) stream(conn Conn, req Request) error {
	src, err := s.m.transcoder.Run(s.ctx, req.SourcePath, req.TranscoderCommand)
	if err != nil {
		return asRuntimeError("transcode", s.guildID, ErrTranscoderSpawnFailed, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			s.log.Debug("transcoder close", "error", err)
		}
	}()

	s.setState(StatePlaying)
	s.m.emit(Event{Type: EventStarted, Request: req})

	for {
		frame, err := src.ReadFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return asRuntimeError("transcode", s.guildID, ErrTranscoderExitedNonZero, err)
		}

		if err := conn.WriteFrame(s.ctx, frame); err != nil {
			// A connection that rejected a frame is not trusted for the next
			// request.
			s.detach(conn)
			closeConn(s.log, conn)
			return newError("write", s.guildID, ErrWriteFailed, err)
		}
	}
}
