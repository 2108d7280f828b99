package handler

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

// commandMatcher matches the slash command called name.
func commandMatcher(name string) func(*discordgo.InteractionCreate) bool {
	return func(i *discordgo.InteractionCreate) bool {
		if i.Type != discordgo.InteractionApplicationCommand {
			return false
		}
		return i.ApplicationCommandData().Name == name
	}
}

// componentMatcher matches a message component whose custom ID is
// prefix:<instance>.
func componentMatcher(prefix string) func(*discordgo.InteractionCreate) bool {
	return func(i *discordgo.InteractionCreate) bool {
		if i.Type != discordgo.InteractionMessageComponent {
			return false
		}
		return strings.HasPrefix(i.MessageComponentData().CustomID, prefix+":")
	}
}

func respondMessage(s DiscordSession, i *discordgo.InteractionCreate, content string) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	})
}

var PingFlow = &Flow{
	ID: "ping",
	Root: &Node{
		ID:      "ping",
		Matcher: commandMatcher("ping"),
		Handler: func(s DiscordSession, i *discordgo.InteractionCreate, ctx *FlowContext) error {
			return respondMessage(s, i, "Pong!")
		},
	},
}
