package handler

import (
	"log/slog"
	"sync"

	"github.com/glizzus/terminus/internal/audio"
	"github.com/glizzus/terminus/internal/presenters"
)

// FailureNotifier posts runtime playback failures to the text channel the
// request came from.
type FailureNotifier struct {
	sender MessageSender
	wg     sync.WaitGroup
}

var _ audio.Listener = (*FailureNotifier)(nil)

func NewFailureNotifier(sender MessageSender) *FailureNotifier {
	return &FailureNotifier{sender: sender}
}

func (n *FailureNotifier) Handle(ev audio.Event) {
	if ev.Type != audio.EventFailed || ev.Request.NotifyChannelID == "" {
		return
	}

	channelID := ev.Request.NotifyChannelID
	content := presenters.FailureMessage(ev.Err)

	// Discord calls must not hold up the session worker.
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if _, err := n.sender.ChannelMessageSend(channelID, content); err != nil {
			slog.Warn("failed to post playback failure", "guildID", ev.Request.GuildID, "channelID", channelID, "error", err)
		}
	}()
}

// Wait blocks until every pending notification is sent.
func (n *FailureNotifier) Wait() {
	n.wg.Wait()
}
