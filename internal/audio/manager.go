package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/glizzus/terminus/internal/generator"
)

// ErrClosed is returned by Enqueue and PlayClipNow after Close.
var ErrClosed = errors.New("audio manager closed")

type binding struct {
	client           Gateway
	defaultChannelID string
}

// BindOption configures a guild binding.
type BindOption func(*binding)

// WithDefaultChannel sets the voice channel used by the guild when a request
// does not name one.
func WithDefaultChannel(channelID string) BindOption {
	return func(b *binding) {
		b.defaultChannelID = channelID
	}
}

// Manager owns every guild's playback session. It is safe for concurrent use.
type Manager struct {
	cfg        Config
	transcoder Transcoder
	clips      ClipResolver
	listeners  []Listener
	ids        generator.Generator[string]
	newBackOff func() backoff.BackOff

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards the maps below. It is never held across I/O and is always
	// taken before a session's own lock.
	mu       sync.Mutex
	sessions map[string]*session
	bindings map[string]binding
	// stopped holds the done channel of the last stopped worker per guild so
	// that its replacement does not connect while it is still unwinding.
	stopped map[string]<-chan struct{}
	closed  bool
}

// NewManager creates a Manager. clips may be nil, in which case PlayClipNow
// always fails with ErrClipNotFound.
func NewManager(cfg Config, transcoder Transcoder, clips ClipResolver, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:        cfg.withDefaults(),
		transcoder: transcoder,
		clips:      clips,
		ids:        &generator.UUIDV4Generator{},
		newBackOff: defaultBackOff,
		ctx:        ctx,
		cancel:     cancel,
		sessions:   make(map[string]*session),
		bindings:   make(map[string]binding),
		stopped:    make(map[string]<-chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BindClient associates a gateway with a guild. A later call replaces the
// earlier binding. The Manager never closes the client.
func (m *Manager) BindClient(guildID string, client Gateway, opts ...BindOption) {
	b := binding{client: client}
	for _, opt := range opts {
		opt(&b)
	}

	m.mu.Lock()
	m.bindings[guildID] = b
	m.mu.Unlock()
}

// Enqueue validates a request and appends it to the guild's queue. It returns
// once the request is accepted; playback outcomes are reported as events.
//
// An empty channelID falls back to WithChannel and then to the default voice
// channel. An empty transcoderCommand uses Config.TranscoderCommand.
func (m *Manager) Enqueue(ctx context.Context, guildID, sourcePath, channelID, transcoderCommand string, opts ...RequestOption) (Request, error) {
	o := ApplyRequestOptions(opts...)
	if channelID == "" {
		channelID = o.ChannelID
	}

	req := Request{
		GuildID:           guildID,
		SourcePath:        sourcePath,
		TranscoderCommand: transcoderCommand,
		Kind:              KindQueued,
		NotifyChannelID:   o.NotifyChannelID,
	}
	return m.submit(ctx, "enqueue", req, channelID, false)
}

// PlayClipNow resolves clipID and queues it according to Config.ClipPolicy.
func (m *Manager) PlayClipNow(ctx context.Context, guildID, clipID string, opts ...RequestOption) (Request, error) {
	const op = "play clip"

	if _, err := m.binding(guildID); err != nil {
		return Request{}, newError(op, guildID, ErrNoClientBound, err)
	}

	if m.clips == nil {
		return Request{}, newError(op, guildID, ErrClipNotFound, fmt.Errorf("no clip store for %q", clipID))
	}
	path, err := m.clips.ResolveClip(ctx, clipID)
	if err != nil {
		return Request{}, newError(op, guildID, ErrClipNotFound, err)
	}

	o := ApplyRequestOptions(opts...)
	req := Request{
		GuildID:         guildID,
		SourcePath:      path,
		Kind:            KindClip,
		ClipID:          clipID,
		NotifyChannelID: o.NotifyChannelID,
	}
	return m.submit(ctx, op, req, o.ChannelID, m.cfg.ClipPolicy == ClipPolicyFront)
}

func (m *Manager) submit(ctx context.Context, op string, req Request, channelID string, front bool) (Request, error) {
	guildID := req.GuildID

	b, err := m.binding(guildID)
	if err != nil {
		return Request{}, newError(op, guildID, ErrNoClientBound, err)
	}

	if err := checkSource(req.SourcePath); err != nil {
		return Request{}, newError(op, guildID, ErrSourceNotFound, err)
	}

	channelID, err = m.resolveChannel(ctx, guildID, b, channelID)
	if err != nil {
		return Request{}, newError(op, guildID, ErrInvalidChannel, err)
	}
	if err := b.client.ValidateChannel(ctx, guildID, channelID); err != nil {
		return Request{}, newError(op, guildID, ErrInvalidChannel, err)
	}

	id, err := m.ids.Next()
	if err != nil {
		return Request{}, fmt.Errorf("failed to generate request id: %w", err)
	}
	req.ID = id
	req.ChannelID = channelID
	req.RequestedAt = time.Now()
	if req.TranscoderCommand == "" {
		req.TranscoderCommand = m.cfg.TranscoderCommand
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Request{}, ErrClosed
	}

	s, ok := m.sessions[guildID]
	if !ok {
		prev := m.stopped[guildID]
		delete(m.stopped, guildID)
		s = newSession(m.ctx, m, guildID, prev)
		m.sessions[guildID] = s
		go s.run()
	}
	s.push(req, front)

	slog.Debug("accepted playback request",
		"guildID", guildID,
		"requestID", req.ID,
		"kind", req.Kind.String(),
		"channelID", channelID,
		"front", front,
	)
	return req, nil
}

func (m *Manager) binding(guildID string) (binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[guildID]
	if !ok || b.client == nil {
		return binding{}, fmt.Errorf("guild %s has no bound client", guildID)
	}
	return b, nil
}

func (m *Manager) gateway(guildID string) (Gateway, error) {
	b, err := m.binding(guildID)
	if err != nil {
		return nil, err
	}
	return b.client, nil
}

func (m *Manager) resolveChannel(ctx context.Context, guildID string, b binding, channelID string) (string, error) {
	switch {
	case channelID != "":
		return channelID, nil
	case b.defaultChannelID != "":
		return b.defaultChannelID, nil
	case m.cfg.DefaultChannelID != "":
		return m.cfg.DefaultChannelID, nil
	}

	picker, ok := b.client.(ChannelPicker)
	if !ok {
		return "", errors.New("no voice channel given and no default configured")
	}
	id, err := picker.PickChannel(ctx, guildID)
	if err != nil {
		return "", fmt.Errorf("failed to pick a voice channel: %w", err)
	}
	if id == "" {
		return "", errors.New("no voice channel available")
	}
	return id, nil
}

func checkSource(path string) error {
	if path == "" {
		return errors.New("empty source path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	return nil
}

// StopAll cancels the guild's in-flight request, drops everything queued and
// closes the voice connection. It is a no-op for guilds without a session.
func (m *Manager) StopAll(guildID string) error {
	m.mu.Lock()
	s, ok := m.sessions[guildID]
	var (
		conn     Conn
		released chan struct{}
	)
	if ok {
		delete(m.sessions, guildID)
		// The next session for this guild waits on released, not on the
		// worker alone, so it cannot connect while conn is still closing.
		released = make(chan struct{})
		m.stopped[guildID] = released
		conn = s.stop()
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	s.log.Info("stopped playback")

	var err error
	if conn != nil {
		if cerr := conn.Close(); cerr != nil {
			err = fmt.Errorf("failed to close voice connection for guild %s: %w", guildID, cerr)
		}
	}
	go func() {
		<-s.done
		close(released)
	}()
	return err
}

// Status reports the guild's session, if one exists.
func (m *Manager) Status(guildID string) (Status, bool) {
	m.mu.Lock()
	s, ok := m.sessions[guildID]
	m.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	return s.status(), true
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops every session and waits for their workers to exit. Later
// requests fail with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*session)
	conns := make([]Conn, 0, len(sessions))
	for _, s := range sessions {
		if conn := s.stop(); conn != nil {
			conns = append(conns, conn)
		}
	}
	stopped := m.stopped
	m.stopped = make(map[string]<-chan struct{})
	m.mu.Unlock()

	m.cancel()

	var errs []error
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close voice connection %s: %w", conn.ChannelID(), err))
		}
	}
	for _, s := range sessions {
		<-s.done
	}
	for _, done := range stopped {
		<-done
	}
	return errors.Join(errs...)
}

// retire removes an idle session from the registry. It fails if the session
// was replaced or has work again.
func (m *Manager) retire(s *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.guildID] != s || !s.idle() {
		return false
	}
	delete(m.sessions, s.guildID)
	s.cancel()
	return true
}

func (m *Manager) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	for _, l := range m.listeners {
		l.Handle(ev)
	}
}
