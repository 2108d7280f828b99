package handler

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/terminus/internal/blacklist"
	"github.com/glizzus/terminus/internal/presenters"
	"golang.org/x/time/rate"
)

const playUsage = "Usage: !play <song> [channelID]"

// ParsePlayArgs reads the arguments of a !play message command.
func ParsePlayArgs(args []string) (*PlayRequest, error) {
	switch len(args) {
	case 1:
		return &PlayRequest{Song: args[0]}, nil
	case 2:
		if _, err := strconv.ParseUint(args[1], 10, 64); err != nil {
			return nil, &UserError{Message: "Unable to parse channel ID, try letting it use the default.", Err: err}
		}
		return &PlayRequest{Song: args[0], ChannelID: args[1]}, nil
	default:
		return nil, &UserError{Message: playUsage}
	}
}

// MessageHandler serves ! commands and the regex responder.
type MessageHandler struct {
	commands  *AudioCommands
	blacklist blacklist.Checker
	prefix    string
	clipRate  rate.Limit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	botID    string
}

func NewMessageHandler(commands *AudioCommands, checker blacklist.Checker, prefix string) *MessageHandler {
	limit := rate.Inf
	if commands.cfg.ClipRate > 0 {
		limit = rate.Every(commands.cfg.ClipRate)
	}
	return &MessageHandler{
		commands:  commands,
		blacklist: checker,
		prefix:    prefix,
		clipRate:  limit,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (h *MessageHandler) Handle(ctx context.Context, s MessageSender, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	blocked, err := h.blacklist.IsBlacklisted(ctx, m.ChannelID)
	if err != nil {
		slog.Warn("failed to check blacklist", "channelID", m.ChannelID, "error", err)
		return
	}
	if blocked {
		return
	}

	if line, ok := h.cutPrefix(m.Content); ok {
		h.command(ctx, s, m, line)
		return
	}
	h.respond(ctx, s, m)
}

// SetBotID lets commands start with a mention of the bot as well as the
// prefix.
func (h *MessageHandler) SetBotID(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.botID = id
}

func (h *MessageHandler) cutPrefix(content string) (string, bool) {
	if line, ok := strings.CutPrefix(content, h.prefix); ok {
		return line, true
	}

	h.mu.Lock()
	botID := h.botID
	h.mu.Unlock()
	if botID == "" {
		return "", false
	}
	for _, mention := range []string{"<@" + botID + ">", "<@!" + botID + ">"} {
		if line, ok := strings.CutPrefix(content, mention); ok {
			return line, true
		}
	}
	return "", false
}

func (h *MessageHandler) command(ctx context.Context, s MessageSender, m *discordgo.MessageCreate, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "play":
		req, err := ParsePlayArgs(fields[1:])
		if err != nil {
			var userErr *UserError
			if errors.As(err, &userErr) {
				h.send(s, m.ChannelID, userErr.Message)
			}
			slog.Debug("rejected play command", "guildID", m.GuildID, "error", err)
			return
		}
		h.send(s, m.ChannelID, h.commands.Play(ctx, m.GuildID, *req, m.ChannelID))
	case "killmusic":
		h.send(s, m.ChannelID, h.commands.Stop(m.GuildID))
	default:
		h.send(s, m.ChannelID, presenters.UnknownCommand)
	}
}

// respond sends the reply of every matching trigger and plays its clip if
// the guild's clip limiter allows it.
func (h *MessageHandler) respond(ctx context.Context, s MessageSender, m *discordgo.MessageCreate) {
	for _, trigger := range h.commands.catalog.Match(m.Content) {
		if trigger.Reply != "" {
			h.send(s, m.ChannelID, trigger.Reply)
		}
		if trigger.Clip == "" {
			continue
		}
		if !h.allowClip(m.GuildID) {
			slog.Debug("clip rate limited", "guildID", m.GuildID, "clipID", trigger.Clip)
			continue
		}
		if err := h.commands.PlayClip(ctx, m.GuildID, trigger.Clip, m.ChannelID); err != nil {
			slog.Warn("failed to play triggered clip", "guildID", m.GuildID, "clipID", trigger.Clip, "error", err)
		}
	}
}

func (h *MessageHandler) allowClip(guildID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.limiters[guildID]
	if !ok {
		l = rate.NewLimiter(h.clipRate, 1)
		h.limiters[guildID] = l
	}
	return l.Allow()
}

func (h *MessageHandler) send(s MessageSender, channelID, content string) {
	if _, err := s.ChannelMessageSend(channelID, content); err != nil {
		slog.Warn("failed to send message", "channelID", channelID, "error", err)
	}
}
