package handler_test

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/terminus/internal/audio"
)

type enqueueCall struct {
	GuildID         string
	SourcePath      string
	ChannelID       string
	Command         string
	NotifyChannelID string
}

type clipCall struct {
	GuildID         string
	ClipID          string
	NotifyChannelID string
}

type fakePlayer struct {
	mu       sync.Mutex
	bound    []string
	enqueued []enqueueCall
	clips    []clipCall
	stopped  []string

	status     audio.Status
	hasStatus  bool
	enqueueErr error
	clipErr    error
}

func (p *fakePlayer) BindClient(guildID string, client audio.Gateway, opts ...audio.BindOption) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bound = append(p.bound, guildID)
}

func (p *fakePlayer) Enqueue(ctx context.Context, guildID, sourcePath, channelID, transcoderCommand string, opts ...audio.RequestOption) (audio.Request, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enqueueErr != nil {
		return audio.Request{}, p.enqueueErr
	}
	o := audio.ApplyRequestOptions(opts...)
	p.enqueued = append(p.enqueued, enqueueCall{
		GuildID:         guildID,
		SourcePath:      sourcePath,
		ChannelID:       channelID,
		Command:         transcoderCommand,
		NotifyChannelID: o.NotifyChannelID,
	})
	return audio.Request{ID: "req", GuildID: guildID, SourcePath: sourcePath}, nil
}

func (p *fakePlayer) PlayClipNow(ctx context.Context, guildID, clipID string, opts ...audio.RequestOption) (audio.Request, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clipErr != nil {
		return audio.Request{}, p.clipErr
	}
	o := audio.ApplyRequestOptions(opts...)
	p.clips = append(p.clips, clipCall{GuildID: guildID, ClipID: clipID, NotifyChannelID: o.NotifyChannelID})
	return audio.Request{ID: "clip", GuildID: guildID, ClipID: clipID, Kind: audio.KindClip}, nil
}

func (p *fakePlayer) StopAll(guildID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = append(p.stopped, guildID)
	return nil
}

func (p *fakePlayer) Status(guildID string) (audio.Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.hasStatus
}

type sentMessage struct {
	ChannelID string
	Content   string
}

type fakeSession struct {
	mu        sync.Mutex
	responses []*discordgo.InteractionResponse
	messages  []sentMessage
	sendErr   error
}

func (s *fakeSession) ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	s.messages = append(s.messages, sentMessage{ChannelID: channelID, Content: content})
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (s *fakeSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, resp)
	return nil
}

func (s *fakeSession) lastContent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.responses) == 0 || s.responses[len(s.responses)-1].Data == nil {
		return ""
	}
	return s.responses[len(s.responses)-1].Data.Content
}

func slashCommand(guildID, name string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:      discordgo.InteractionApplicationCommand,
			GuildID:   guildID,
			ChannelID: "text-1",
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    name,
				Options: options,
			},
		},
	}
}

func buttonClick(guildID, customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:      discordgo.InteractionMessageComponent,
			GuildID:   guildID,
			ChannelID: "text-1",
			Data: discordgo.MessageComponentInteractionData{
				CustomID:      customID,
				ComponentType: discordgo.ButtonComponent,
			},
		},
	}
}

func stringOption(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

func channelOption(name, id string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionChannel,
		Value: id,
	}
}
