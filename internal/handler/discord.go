package handler

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

type ReadyHandler = func(*discordgo.Session, *discordgo.Ready)
type InteractionCreateHandler = func(*discordgo.Session, *discordgo.InteractionCreate)
type MessageCreateHandler = func(*discordgo.Session, *discordgo.MessageCreate)
type GuildCreateHandler = func(*discordgo.Session, *discordgo.GuildCreate)

// MessageSender posts to a text channel.
type MessageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSession is the part of *discordgo.Session the handlers use.
type DiscordSession interface {
	MessageSender
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

var _ DiscordSession = (*discordgo.Session)(nil)

var ReadyLog = func(s *discordgo.Session, r *discordgo.Ready) {
	username := r.User.Username
	userID := r.User.ID
	slog.Info("Bot is ready", "username", username, "userID", userID, "guilds", len(r.Guilds))
}

// MakeInteractionCreateHandler routes every interaction through fm.
func MakeInteractionCreateHandler(fm *FlowManager) InteractionCreateHandler {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if err := fm.Router(s, i); err != nil {
			slog.Error("failed to handle interaction", "guildID", i.GuildID, "type", i.Type.String(), "error", err)
		}
	}
}

// MakeMessageCreateHandler hands messages to h. ctx bounds the playback calls
// the messages trigger.
func MakeMessageCreateHandler(ctx context.Context, h *MessageHandler) MessageCreateHandler {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		h.Handle(ctx, s, m)
	}
}

// MakeGuildCreateHandler binds every guild the bot joins, so scheduled clips
// can play before anyone runs a command there.
func MakeGuildCreateHandler(a *AudioCommands) GuildCreateHandler {
	return func(s *discordgo.Session, g *discordgo.GuildCreate) {
		slog.Debug("binding guild", "guildID", g.ID)
		a.Bind(g.ID)
	}
}

type Handlers struct {
	Ready             ReadyHandler
	InteractionCreate InteractionCreateHandler
	MessageCreate     MessageCreateHandler
	GuildCreate       GuildCreateHandler
}

// Intents covers guild metadata, voice states for channel picking, and
// message content for the regex responder and ! commands.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent |
	discordgo.IntentsGuildVoiceStates

// NewSession creates a discordgo session with Intents. Handlers are added
// with Handlers.Register before the session is opened.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = Intents
	return s, nil
}

// Register adds every non-nil handler to s.
func (h Handlers) Register(s *discordgo.Session) {
	if h.Ready != nil {
		s.AddHandler(h.Ready)
	}
	if h.InteractionCreate != nil {
		s.AddHandler(h.InteractionCreate)
	}
	if h.MessageCreate != nil {
		s.AddHandler(h.MessageCreate)
	}
	if h.GuildCreate != nil {
		s.AddHandler(h.GuildCreate)
	}
}
