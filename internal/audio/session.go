package audio

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// State is the playback state of one guild.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StatePlaying
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StatePlaying:
		return "playing"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Status is a point-in-time copy of a session.
type Status struct {
	GuildID   string
	State     State
	Current   *Request
	Queue     []Request
	ChannelID string
}

// session is the per-guild playback actor. The queue, current request,
// connection and cancel flag are guarded by mu; everything else is fixed at
// construction or owned by the worker goroutine.
type session struct {
	guildID string
	m       *Manager
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// prev is closed when the worker of a stopped session for the same guild
	// has exited.
	prev <-chan struct{}
	wake chan struct{}
	done chan struct{}

	mu        sync.Mutex
	state     State
	queue     []Request
	current   *Request
	conn      Conn
	cancelled bool
}

func newSession(parent context.Context, m *Manager, guildID string, prev <-chan struct{}) *session {
	ctx, cancel := context.WithCancel(parent)
	return &session{
		guildID: guildID,
		m:       m,
		log:     slog.With("guildID", guildID),
		ctx:     ctx,
		cancel:  cancel,
		prev:    prev,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		state:   StateIdle,
	}
}

// push adds req to the queue and wakes the worker. Callers hold m.mu, so a
// concurrent StopAll either sees the request and flushes it or runs first and
// the request lands in a fresh session.
func (s *session) push(req Request, front bool) {
	s.mu.Lock()
	if front {
		s.queue = slices.Insert(s.queue, 0, req)
	} else {
		s.queue = append(s.queue, req)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// next pops the head of the queue. It reports false when the queue is empty
// or the session was cancelled.
func (s *session) next() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled {
		return Request{}, false
	}
	if len(s.queue) == 0 {
		s.current = nil
		s.state = StateIdle
		return Request{}, false
	}

	req := s.queue[0]
	s.queue[0] = Request{}
	s.queue = s.queue[1:]
	s.current = &req
	s.state = StateConnecting
	return req, true
}

func (s *session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cancelled {
		s.state = state
	}
}

func (s *session) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// stop flushes the session and hands back the connection so the caller can
// close it outside the lock.
func (s *session) stop() Conn {
	s.mu.Lock()
	s.cancelled = true
	s.state = StateCancelled
	s.queue = nil
	s.current = nil
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.cancel()
	return conn
}

// adopt stores a freshly connected conn. It returns false, leaving the
// connection to the caller, if the session was cancelled meanwhile.
func (s *session) adopt(conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return false
	}
	s.conn = conn
	return true
}

// detach removes conn from the session if it is still the active one.
func (s *session) detach(conn Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
}

func (s *session) activeConn() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *session) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.cancelled && len(s.queue) == 0 && s.current == nil
}

func (s *session) status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		GuildID: s.guildID,
		State:   s.state,
		Queue:   slices.Clone(s.queue),
	}
	if s.current != nil {
		cur := *s.current
		st.Current = &cur
	}
	if s.conn != nil {
		st.ChannelID = s.conn.ChannelID()
	}
	return st
}

func closeConn(log *slog.Logger, conn Conn) {
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		log.Warn("failed to close voice connection", "channelID", conn.ChannelID(), "error", err)
	}
}
