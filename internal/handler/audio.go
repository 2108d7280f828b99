package handler

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/terminus/internal/audio"
	"github.com/glizzus/terminus/internal/clips"
	"github.com/glizzus/terminus/internal/config"
	"github.com/glizzus/terminus/internal/presenters"
)

// Player is the part of audio.Manager the commands drive.
type Player interface {
	BindClient(guildID string, client audio.Gateway, opts ...audio.BindOption)
	Enqueue(ctx context.Context, guildID, sourcePath, channelID, transcoderCommand string, opts ...audio.RequestOption) (audio.Request, error)
	PlayClipNow(ctx context.Context, guildID, clipID string, opts ...audio.RequestOption) (audio.Request, error)
	StopAll(guildID string) error
	Status(guildID string) (audio.Status, bool)
}

var _ Player = (*audio.Manager)(nil)

// Discord drops interactions that are not answered within three seconds.
const interactionTimeout = 2500 * time.Millisecond

// AudioCommands implements play, killmusic and queue for both slash and
// message commands.
type AudioCommands struct {
	player  Player
	gateway audio.Gateway
	catalog *clips.Catalog
	cfg     *config.AudioConfig
}

func NewAudioCommands(player Player, gateway audio.Gateway, catalog *clips.Catalog, cfg *config.AudioConfig) *AudioCommands {
	if catalog == nil {
		catalog = &clips.Catalog{}
	}
	return &AudioCommands{
		player:  player,
		gateway: gateway,
		catalog: catalog,
		cfg:     cfg,
	}
}

// Bind points the guild at the voice gateway. Rebinding is harmless.
func (a *AudioCommands) Bind(guildID string) {
	a.player.BindClient(guildID, a.gateway)
}

// Play queues song in guildID and returns the reply for the user.
func (a *AudioCommands) Play(ctx context.Context, guildID string, req PlayRequest, notifyChannelID string) string {
	// Songs come from chat, so they must stay inside the assets dir.
	if !filepath.IsLocal(req.Song) {
		slog.Warn("rejected song outside the assets dir", "guildID", guildID, "song", req.Song)
		return presenters.FileNotFound
	}

	a.Bind(guildID)

	path := a.cfg.AssetPath(a.catalog.ResolveSong(req.Song))
	queued, err := a.player.Enqueue(ctx, guildID, path, req.ChannelID, a.cfg.FfmpegCommand,
		audio.WithNotifyChannel(notifyChannelID),
	)
	if err != nil {
		slog.Warn("failed to queue song", "guildID", guildID, "song", req.Song, "error", err)
		return presenters.FailureMessage(err)
	}

	slog.Info("queued song", "guildID", guildID, "song", req.Song, "requestID", queued.ID)
	return presenters.QueuedMessage(req.Song)
}

// PlayClip fires a catalog clip.
func (a *AudioCommands) PlayClip(ctx context.Context, guildID, clipID, notifyChannelID string) error {
	a.Bind(guildID)

	req, err := a.player.PlayClipNow(ctx, guildID, clipID, audio.WithNotifyChannel(notifyChannelID))
	if err != nil {
		return err
	}
	slog.Info("queued clip", "guildID", guildID, "clipID", clipID, "requestID", req.ID)
	return nil
}

// Stop flushes the guild's queue and returns the reply for the user.
func (a *AudioCommands) Stop(guildID string) string {
	if err := a.player.StopAll(guildID); err != nil {
		slog.Error("failed to stop playback", "guildID", guildID, "error", err)
	}
	return presenters.StoppedMessage
}

func (a *AudioCommands) PlayFlow() *Flow {
	return &Flow{
		ID: "play",
		Root: &Node{
			ID:      "play",
			Matcher: commandMatcher("play"),
			Handler: func(s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
				data := i.ApplicationCommandData()
				req, err := CommandToPlayRequest(data.Options, data.Resolved)
				if err != nil {
					var userErr *UserError
					if errors.As(err, &userErr) {
						slog.Debug("rejected play command", "guildID", i.GuildID, "error", err)
						return respondMessage(s, i, userErr.Message)
					}
					return err
				}

				ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
				defer cancel()
				return respondMessage(s, i, a.Play(ctx, i.GuildID, *req, i.ChannelID))
			},
		},
	}
}

func (a *AudioCommands) KillMusicFlow() *Flow {
	return &Flow{
		ID: "killmusic",
		Root: &Node{
			ID:      "killmusic",
			Matcher: commandMatcher("killmusic"),
			Handler: func(s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
				return respondMessage(s, i, a.Stop(i.GuildID))
			},
		},
	}
}

// QueueFlow shows the guild's queue. Its Stop button ends the flow.
func (a *AudioCommands) QueueFlow() *Flow {
	stop := &Node{
		ID:      "queue_stop",
		Matcher: componentMatcher(presenters.ComponentIDQueueStop),
		Handler: func(s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
			a.Stop(i.GuildID)
			return s.InteractionRespond(i.Interaction, presenters.BuildStoppedResponse())
		},
	}

	return &Flow{
		ID: "queue",
		Root: &Node{
			ID:      "queue",
			Matcher: commandMatcher("queue"),
			Handler: func(s DiscordSession, i *discordgo.InteractionCreate, ctx *FlowContext) error {
				status, ok := a.player.Status(i.GuildID)
				return s.InteractionRespond(i.Interaction, presenters.BuildQueueResponse(status, ok, ctx.InstanceID))
			},
			Next: []*Node{stop},
		},
	}
}

// RegisterFlows adds every slash command flow to fm.
func (a *AudioCommands) RegisterFlows(fm *FlowManager) {
	fm.RegisterFlow(PingFlow)
	fm.RegisterFlow(a.PlayFlow())
	fm.RegisterFlow(a.KillMusicFlow())
	fm.RegisterFlow(a.QueueFlow())
}
