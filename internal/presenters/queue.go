package presenters

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/terminus/internal/audio"
)

// ComponentIDQueueStop prefixes the custom ID of the queue's Stop button.
const ComponentIDQueueStop = "queue_stop"

var nothingPlayingResponse = &discordgo.InteractionResponse{
	Type: discordgo.InteractionResponseChannelMessageWithSource,
	Data: &discordgo.InteractionResponseData{
		Content: "Nothing is playing.",
	},
}

func queueContent(status audio.Status) string {
	var b strings.Builder

	if status.Current != nil {
		label := "Now playing"
		if status.State == audio.StateConnecting {
			label = "Connecting"
		}
		fmt.Fprintf(&b, "**%s:** %s", label, Describe(*status.Current))
		if status.ChannelID != "" {
			fmt.Fprintf(&b, " in <#%s>", status.ChannelID)
		}
		b.WriteString("\n")
	}

	if len(status.Queue) > 0 {
		b.WriteString("**Up next:**\n")
		for i, req := range status.Queue {
			fmt.Fprintf(&b, "%d. %s\n", i+1, Describe(req))
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// BuildQueueResponse shows the guild's session with a Stop button bound to
// instanceID.
func BuildQueueResponse(status audio.Status, ok bool, instanceID string) *discordgo.InteractionResponse {
	if !ok || (status.Current == nil && len(status.Queue) == 0) {
		return nothingPlayingResponse
	}

	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: queueContent(status),
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.Button{
							Label:    "Stop",
							Style:    discordgo.DangerButton,
							CustomID: ComponentIDQueueStop + ":" + instanceID,
						},
					},
				},
			},
		},
	}
}

// BuildStoppedResponse replaces the queue message once playback is stopped.
func BuildStoppedResponse() *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    StoppedMessage,
			Components: []discordgo.MessageComponent{},
		},
	}
}
