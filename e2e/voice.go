package e2e

import (
	"context"
	"sync"

	"github.com/glizzus/terminus/internal/audio"
)

// Gateway is an in-memory voice gateway. Every channel is valid and every
// connection records the frames written to it.
type Gateway struct {
	mu     sync.Mutex
	frames map[string]int
}

var _ audio.Gateway = (*Gateway)(nil)

func NewGateway() *Gateway {
	return &Gateway{frames: make(map[string]int)}
}

func (g *Gateway) ValidateChannel(ctx context.Context, guildID, channelID string) error {
	return nil
}

func (g *Gateway) Connect(ctx context.Context, guildID, channelID string) (audio.Conn, error) {
	return &conn{g: g, channelID: channelID}, nil
}

// Frames returns how many frames reached channelID.
func (g *Gateway) Frames(channelID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.frames[channelID]
}

type conn struct {
	g         *Gateway
	channelID string
}

func (c *conn) ChannelID() string {
	return c.channelID
}

func (c *conn) WriteFrame(ctx context.Context, frame []byte) error {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	c.g.frames[c.channelID]++
	return nil
}

func (c *conn) Close() error {
	return nil
}
