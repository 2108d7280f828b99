package voice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/terminus/internal/audio"
)

var (
	ErrVoiceConnClosed = errors.New("voice connection closed")
	ErrSendTimeout     = errors.New("voice connection send timeout")
)

// Connection is a joined voice channel. It is safe for concurrent use.
type Connection struct {
	channelID   string
	send        chan<- []byte
	sendTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once

	// speaking and disconnect default to the discordgo voice connection;
	// overridden in tests.
	speaking   func(bool) error
	disconnect func() error
}

var _ audio.Conn = (*Connection)(nil)

func newConnection(vc *discordgo.VoiceConnection, channelID string, sendTimeout time.Duration) *Connection {
	return &Connection{
		channelID:   channelID,
		send:        vc.OpusSend,
		sendTimeout: sendTimeout,
		done:        make(chan struct{}),
		speaking:    vc.Speaking,
		disconnect:  vc.Disconnect,
	}
}

func (c *Connection) ChannelID() string {
	return c.channelID
}

// WriteFrame hands one Opus frame to the voice connection.
func (c *Connection) WriteFrame(ctx context.Context, frame []byte) error {
	var timeout <-chan time.Time
	if c.sendTimeout > 0 {
		timer := time.NewTimer(c.sendTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case c.send <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrVoiceConnClosed
	case <-timeout:
		return ErrSendTimeout
	}
}

// Close stops speaking and leaves the channel. Only the first call does
// anything.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		if c.speaking != nil {
			if serr := c.speaking(false); serr != nil {
				slog.Error("failed to stop speaking", "channelID", c.channelID, "error", serr)
			}
		}
		if c.disconnect != nil {
			err = c.disconnect()
		}
	})
	return err
}
