package audio_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/glizzus/terminus/internal/audio"
)

const waitTimeout = 3 * time.Second

type fakeGateway struct {
	mu sync.Mutex

	// invalid lists channels that fail validation.
	invalid map[string]bool
	// block, when set, holds every Connect until it is closed.
	block chan struct{}
	// failConnects makes the first N Connect calls fail.
	failConnects int
	// closeDelay makes every connection take this long to close.
	closeDelay time.Duration

	connects int
	conns    []*fakeConn
	overlap  bool
	frames   []string
}

func (g *fakeGateway) ValidateChannel(ctx context.Context, guildID, channelID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.invalid[channelID] {
		return fmt.Errorf("channel %s is not a voice channel", channelID)
	}
	return nil
}

func (g *fakeGateway) Connect(ctx context.Context, guildID, channelID string) (audio.Conn, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.connects++
	if g.connects <= g.failConnects {
		return nil, errors.New("voice handshake failed")
	}
	for _, c := range g.conns {
		if !c.isClosed() {
			g.overlap = true
		}
	}
	c := &fakeConn{gw: g, channelID: channelID}
	g.conns = append(g.conns, c)
	return c, nil
}

func (g *fakeGateway) connectCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connects
}

func (g *fakeGateway) lastConn() *fakeConn {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.conns) == 0 {
		return nil
	}
	return g.conns[len(g.conns)-1]
}

// streamOrder returns the sources in the order their first frame was written.
func (g *fakeGateway) streamOrder() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Compact(slices.Clone(g.frames))
}

type pickingGateway struct {
	fakeGateway
	pick string
}

func (g *pickingGateway) PickChannel(ctx context.Context, guildID string) (string, error) {
	return g.pick, nil
}

type fakeConn struct {
	gw        *fakeGateway
	channelID string

	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) ChannelID() string {
	return c.channelID
}

func (c *fakeConn) WriteFrame(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isClosed() {
		return errors.New("connection closed")
	}
	c.gw.mu.Lock()
	c.gw.frames = append(c.gw.frames, string(frame))
	c.gw.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	if c.gw.closeDelay > 0 {
		time.Sleep(c.gw.closeDelay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeTranscoder emits frames whose payload is the base name of the source.
type fakeTranscoder struct {
	frames int

	mu sync.Mutex
	// hold makes a source block after its first frame until the channel is
	// closed or the run is cancelled.
	hold map[string]chan struct{}
	// fail makes a source fail after its first frame.
	fail map[string]error
	// spawnFail makes Run itself fail.
	spawnFail map[string]error
	commands  []string
}

func (tr *fakeTranscoder) Run(ctx context.Context, sourcePath, commandTemplate string) (audio.FrameSource, error) {
	name := filepath.Base(sourcePath)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.commands = append(tr.commands, commandTemplate)
	if err := tr.spawnFail[name]; err != nil {
		return nil, err
	}
	frames := tr.frames
	if frames == 0 {
		frames = 3
	}
	return &fakeSource{
		ctx:    ctx,
		name:   name,
		frames: frames,
		hold:   tr.hold[name],
		fail:   tr.fail[name],
	}, nil
}

type fakeSource struct {
	ctx    context.Context
	name   string
	frames int
	hold   chan struct{}
	fail   error
	sent   int
}

func (s *fakeSource) ReadFrame() ([]byte, error) {
	if s.sent == 1 {
		if s.hold != nil {
			select {
			case <-s.hold:
			case <-s.ctx.Done():
				return nil, s.ctx.Err()
			}
		}
		if s.fail != nil {
			return nil, s.fail
		}
	}
	if s.sent >= s.frames {
		return nil, io.EOF
	}
	s.sent++
	return []byte(s.name), nil
}

func (s *fakeSource) Close() error {
	return nil
}

type fakeClips map[string]string

func (c fakeClips) ResolveClip(ctx context.Context, clipID string) (string, error) {
	path, ok := c[clipID]
	if !ok {
		return "", fmt.Errorf("clip %q: %w", clipID, audio.ErrClipNotFound)
	}
	return path, nil
}

type recorder struct {
	mu     sync.Mutex
	events []audio.Event
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 1)}
}

func (r *recorder) Handle(ev audio.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) snapshot() []audio.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// waitFor blocks until cond holds for the recorded events.
func (r *recorder) waitFor(t *testing.T, what string, cond func([]audio.Event) bool) []audio.Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		events := r.snapshot()
		if cond(events) {
			return events
		}
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %s; got %v", what, describe(events))
		}
	}
}

func (r *recorder) waitCount(t *testing.T, typ audio.EventType, n int) []audio.Event {
	t.Helper()
	return r.waitFor(t, fmt.Sprintf("%d %s events", n, typ), func(events []audio.Event) bool {
		return len(ofType(events, typ)) >= n
	})
}

func ofType(events []audio.Event, typ audio.EventType) []audio.Event {
	var out []audio.Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func sources(events []audio.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, filepath.Base(ev.Request.SourcePath))
	}
	return out
}

func describe(events []audio.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type.String()+":"+filepath.Base(ev.Request.SourcePath))
	}
	return out
}

// touch creates empty audio files and returns their paths by name.
func touch(t *testing.T, names ...string) map[string]string {
	t.Helper()
	dir := t.TempDir()
	paths := make(map[string]string, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
		paths[name] = path
	}
	return paths
}

func noBackOff() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
