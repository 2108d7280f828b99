package audio

import (
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/glizzus/terminus/internal/generator"
)

// ClipPolicy decides where PlayClipNow places a clip in the queue.
type ClipPolicy int

const (
	// ClipPolicyAppend queues clips at the tail like any other request.
	ClipPolicyAppend ClipPolicy = iota
	// ClipPolicyFront puts clips at the head of the queue. The in-flight
	// request still finishes first.
	ClipPolicyFront
)

func (p ClipPolicy) String() string {
	switch p {
	case ClipPolicyAppend:
		return "append"
	case ClipPolicyFront:
		return "front"
	default:
		return "unknown"
	}
}

// ParseClipPolicy parses "append" or "front". The empty string is append.
func ParseClipPolicy(s string) (ClipPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "append":
		return ClipPolicyAppend, nil
	case "front":
		return ClipPolicyFront, nil
	default:
		return ClipPolicyAppend, fmt.Errorf("unknown clip policy %q", s)
	}
}

const (
	defaultConnectTimeout  = 10 * time.Second
	defaultConnectAttempts = 3
)

// Config tunes a Manager. Zero values pick defaults, except IdleTimeout where
// zero keeps idle sessions forever.
type Config struct {
	// TranscoderCommand is used when a request does not carry its own.
	TranscoderCommand string
	// DefaultChannelID is the voice channel used when neither the request nor
	// the guild binding names one.
	DefaultChannelID string
	ClipPolicy       ClipPolicy

	ConnectTimeout  time.Duration
	ConnectAttempts int
	IdleTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = defaultConnectAttempts
	}
	if c.IdleTimeout < 0 {
		c.IdleTimeout = 0
	}
	return c
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithListener registers l for every session's events.
func WithListener(l Listener) Option {
	return func(m *Manager) {
		m.listeners = append(m.listeners, l)
	}
}

// WithIDGenerator replaces the UUIDv4 request ID generator.
func WithIDGenerator(g generator.Generator[string]) Option {
	return func(m *Manager) {
		m.ids = g
	}
}

// WithBackOff replaces the policy used between connect attempts. The
// attempt limit from Config still applies.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(m *Manager) {
		m.newBackOff = newBackOff
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}
