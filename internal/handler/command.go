package handler

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/terminus/internal/util"
)

var playCommandOptions = []*discordgo.ApplicationCommandOption{
	{
		Name:        "song",
		Type:        discordgo.ApplicationCommandOptionString,
		Description: "Song alias or file name in the assets directory.",
		Required:    true,
	},
	{
		Name:         "channel",
		Type:         discordgo.ApplicationCommandOptionChannel,
		Description:  "Voice channel to play in. Defaults to the configured channel.",
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice},
		Required:     false,
	},
}

// Commands is a list of all the commands the bot can handle.
// This is used to register the commands with Discord.
var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        "ping",
		Description: "Check that the bot is listening",
	},
	{
		Name:        "play",
		Description: "Queue a song in a voice channel",
		Options:     playCommandOptions,
	},
	{
		Name:        "killmusic",
		Description: "Flush the song queue and leave voice channels",
	},
	{
		Name:        "queue",
		Description: "Show what is playing and what is queued",
	},
}

// EstablishCommands registers Commands for guildID, or globally when guildID
// is empty.
func EstablishCommands(s *discordgo.Session, guildID string) error {
	_, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, Commands)
	if err != nil {
		return fmt.Errorf("failed to establish commands: %w", err)
	}
	return nil
}

// PlayRequest is a parsed play command.
type PlayRequest struct {
	Song      string
	ChannelID string
}

// CommandToPlayRequest reads the options of a /play command. resolved, when
// present, must hold exactly the chosen channel.
func CommandToPlayRequest(
	options []*discordgo.ApplicationCommandInteractionDataOption,
	resolved *discordgo.ApplicationCommandInteractionDataResolved,
) (*PlayRequest, error) {
	var req PlayRequest

	for _, option := range options {
		switch option.Name {
		case "song":
			if option.Type != discordgo.ApplicationCommandOptionString {
				return nil, fmt.Errorf("invalid type for song option")
			}
			req.Song = option.StringValue()
		case "channel":
			if option.Type != discordgo.ApplicationCommandOptionChannel {
				return nil, fmt.Errorf("invalid type for channel option")
			}
			id, ok := option.Value.(string)
			if !ok {
				return nil, fmt.Errorf("invalid value for channel option")
			}
			req.ChannelID = id
		}
	}

	if req.Song == "" {
		return nil, &UserError{Message: "Tell me which song to play."}
	}

	if req.ChannelID != "" && resolved != nil && len(resolved.Channels) > 0 {
		channel, err := util.GetOne(resolved.Channels)
		if err != nil {
			return nil, fmt.Errorf("resolved channels: %w", err)
		}
		if channel.ID == req.ChannelID && channel.Type != discordgo.ChannelTypeGuildVoice {
			return nil, &UserError{Message: "That is not a voice channel.", Err: fmt.Errorf("channel %s has type %d", channel.ID, channel.Type)}
		}
	}
	return &req, nil
}
