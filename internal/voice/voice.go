package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/terminus/internal/audio"
)

const defaultSendTimeout = time.Minute

// MaxAttendedChannel returns the voice channel with the most users in it,
// counted from voiceStates. Ties go to the channel listed first. This returns
// nil if there is no voice channel.
func MaxAttendedChannel(channels []*discordgo.Channel, voiceStates []*discordgo.VoiceState) *discordgo.Channel {
	attendance := make(map[string]int, len(voiceStates))
	for _, vs := range voiceStates {
		attendance[vs.ChannelID]++
	}

	var maxAttendedChannel *discordgo.Channel
	maxAttended := -1

	for _, channel := range channels {
		if !isVoice(channel) {
			continue
		}

		if n := attendance[channel.ID]; n > maxAttended {
			maxAttendedChannel = channel
			maxAttended = n
		}
	}

	return maxAttendedChannel
}

func isVoice(channel *discordgo.Channel) bool {
	return channel.Type == discordgo.ChannelTypeGuildVoice || channel.Type == discordgo.ChannelTypeGuildStageVoice
}

// Gateway joins Discord voice channels through a discordgo session.
type Gateway struct {
	session     *discordgo.Session
	sendTimeout time.Duration

	// join and fetchChannel default to the discordgo session; overridden in
	// tests.
	join         func(guildID, channelID string) (*Connection, error)
	fetchChannel func(ctx context.Context, channelID string) (*discordgo.Channel, error)

	// pending holds joins the caller gave up on that have not finished yet.
	mu      sync.Mutex
	pending map[string]chan struct{}
}

var (
	_ audio.Gateway       = (*Gateway)(nil)
	_ audio.ChannelPicker = (*Gateway)(nil)
)

type Option func(*Gateway)

// WithSendTimeout bounds how long a single frame may wait for the voice
// connection to accept it.
func WithSendTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.sendTimeout = d
	}
}

func NewGateway(s *discordgo.Session, opts ...Option) *Gateway {
	g := &Gateway{
		session:     s,
		sendTimeout: defaultSendTimeout,
		pending:     make(map[string]chan struct{}),
	}
	g.join = g.joinDiscord
	g.fetchChannel = func(ctx context.Context, channelID string) (*discordgo.Channel, error) {
		return s.Channel(channelID, discordgo.WithContext(ctx))
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if g.session != nil && g.session.State != nil {
		if ch, err := g.session.State.Channel(channelID); err == nil {
			return ch, nil
		}
	}
	return g.fetchChannel(ctx, channelID)
}

// ValidateChannel checks that channelID is a voice or stage channel of
// guildID.
func (g *Gateway) ValidateChannel(ctx context.Context, guildID, channelID string) error {
	ch, err := g.channel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("unable to look up channel %s: %w", channelID, err)
	}
	if ch.GuildID != guildID {
		return fmt.Errorf("channel %s does not belong to guild %s", channelID, guildID)
	}
	if !isVoice(ch) {
		return fmt.Errorf("channel %s is not a voice channel", channelID)
	}
	return nil
}

// PickChannel returns the guild's most attended voice channel.
func (g *Gateway) PickChannel(ctx context.Context, guildID string) (string, error) {
	if g.session == nil || g.session.State == nil {
		return "", errors.New("no state cache to pick a channel from")
	}
	guild, err := g.session.State.Guild(guildID)
	if err != nil {
		return "", fmt.Errorf("error retrieving guild: %w", err)
	}

	ch := MaxAttendedChannel(guild.Channels, guild.VoiceStates)
	if ch == nil {
		return "", fmt.Errorf("guild %s has no voice channels", guildID)
	}
	return ch.ID, nil
}

type joinResult struct {
	conn *Connection
	err  error
}

// Connect joins channelID. discordgo joins are not cancellable, so the join
// runs on its own goroutine; if ctx ends first the late connection is torn
// down, and the next Connect for the guild waits for that to finish.
func (g *Gateway) Connect(ctx context.Context, guildID, channelID string) (audio.Conn, error) {
	g.mu.Lock()
	wait := g.pending[guildID]
	g.mu.Unlock()
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	result := make(chan joinResult, 1)
	go func() {
		conn, err := g.join(guildID, channelID)
		result <- joinResult{conn: conn, err: err}
	}()

	select {
	case r := <-result:
		if r.err != nil {
			return nil, r.err
		}
		return r.conn, nil
	case <-ctx.Done():
		g.abandon(guildID, result)
		return nil, ctx.Err()
	}
}

func (g *Gateway) abandon(guildID string, result <-chan joinResult) {
	done := make(chan struct{})
	g.mu.Lock()
	g.pending[guildID] = done
	g.mu.Unlock()

	go func() {
		defer func() {
			g.mu.Lock()
			if g.pending[guildID] == done {
				delete(g.pending, guildID)
			}
			g.mu.Unlock()
			close(done)
		}()

		r := <-result
		if r.conn != nil {
			slog.Warn("voice join finished after the caller gave up, leaving", "guildID", guildID, "channelID", r.conn.ChannelID())
			if err := r.conn.Close(); err != nil {
				slog.Error("failed to disconnect", "guildID", guildID, "error", err)
			}
		}
	}()
}

func (g *Gateway) joinDiscord(guildID, channelID string) (*Connection, error) {
	vc, err := g.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		if vc != nil {
			if derr := vc.Disconnect(); derr != nil {
				slog.Error("failed to disconnect", "guildID", guildID, "error", derr)
			}
		}
		return nil, fmt.Errorf("unable to join the voice channel: %w", err)
	}

	if err := vc.Speaking(true); err != nil {
		if derr := vc.Disconnect(); derr != nil {
			slog.Error("failed to disconnect", "guildID", guildID, "error", derr)
		}
		return nil, fmt.Errorf("error setting speaking state to 'true': %w", err)
	}

	return newConnection(vc, channelID, g.sendTimeout), nil
}
