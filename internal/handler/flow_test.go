package handler_test

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/terminus/internal/audio"
	"github.com/glizzus/terminus/internal/clips"
	"github.com/glizzus/terminus/internal/config"
	"github.com/glizzus/terminus/internal/generator"
	"github.com/glizzus/terminus/internal/handler"
	"github.com/glizzus/terminus/internal/presenters"
	"github.com/google/go-cmp/cmp"
)

func testAudioConfig() *config.AudioConfig {
	return &config.AudioConfig{
		FfmpegCommand: "ffmpeg",
		AssetsDir:     "assets",
		ClipRate:      time.Hour,
	}
}

func newTestFlows(t *testing.T, player *fakePlayer) *handler.FlowManager {
	t.Helper()
	catalog := &clips.Catalog{Songs: map[string]string{"mangione1": "feels_so_good.mp3"}}
	commands := handler.NewAudioCommands(player, nil, catalog, testAudioConfig())

	fm := handler.NewFlowManager(&generator.SequenceGenerator{Prefix: "flow"})
	commands.RegisterFlows(fm)
	return fm
}

func TestSlashCommands(t *testing.T) {
	tc := []struct {
		name         string
		interaction  *discordgo.InteractionCreate
		enqueueErr   error
		wantContent  string
		wantEnqueued []enqueueCall
		wantStopped  []string
	}{
		{
			name:        "ping",
			interaction: slashCommand("g", "ping"),
			wantContent: "Pong!",
		},
		{
			name:        "play alias in a channel",
			interaction: slashCommand("g", "play", stringOption("song", "mangione1"), channelOption("channel", "voice-9")),
			wantContent: "Queued **mangione1**.",
			wantEnqueued: []enqueueCall{{
				GuildID:         "g",
				SourcePath:      "assets/feels_so_good.mp3",
				ChannelID:       "voice-9",
				Command:         "ffmpeg",
				NotifyChannelID: "text-1",
			}},
		},
		{
			name:        "play rejected",
			interaction: slashCommand("g", "play", stringOption("song", "nope.mp3")),
			enqueueErr:  &audio.Error{Op: "enqueue", GuildID: "g", Kind: audio.ErrSourceNotFound},
			wantContent: "File does not exist.",
		},
		{
			name:        "play without a song",
			interaction: slashCommand("g", "play"),
			wantContent: "Tell me which song to play.",
		},
		{
			name:        "killmusic",
			interaction: slashCommand("g", "killmusic"),
			wantContent: presenters.StoppedMessage,
			wantStopped: []string{"g"},
		},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			player := &fakePlayer{enqueueErr: test.enqueueErr}
			session := &fakeSession{}
			fm := newTestFlows(t, player)

			if err := fm.Router(session, test.interaction); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got := session.lastContent(); got != test.wantContent {
				t.Errorf("expected reply %q, got %q", test.wantContent, got)
			}
			if diff := cmp.Diff(test.wantEnqueued, player.enqueued); diff != "" {
				t.Errorf("enqueued mismatch (-expected +got):\n%s", diff)
			}
			if diff := cmp.Diff(test.wantStopped, player.stopped); diff != "" {
				t.Errorf("stopped mismatch (-expected +got):\n%s", diff)
			}
			if fm.Pending() != 0 {
				t.Errorf("expected single-step commands to leave no pending flows, got %d", fm.Pending())
			}
		})
	}
}

func TestQueueStopButton(t *testing.T) {
	current := audio.Request{ID: "1", SourcePath: "assets/poloski.mp3"}
	player := &fakePlayer{
		status:    audio.Status{GuildID: "g", State: audio.StatePlaying, Current: &current},
		hasStatus: true,
	}
	session := &fakeSession{}
	fm := newTestFlows(t, player)

	if err := fm.Router(session, slashCommand("g", "queue")); err != nil {
		t.Fatalf("queue: unexpected error: %v", err)
	}
	if diff := cmp.Diff(presenters.BuildQueueResponse(player.status, true, "flow-1"), session.responses[0]); diff != "" {
		t.Errorf("queue response mismatch (-expected +got):\n%s", diff)
	}
	if fm.Pending() != 1 {
		t.Fatalf("expected the queue flow to wait for its button, got %d pending", fm.Pending())
	}

	// A button for a flow nobody started is ignored.
	if err := fm.Router(session, buttonClick("g", "queue_stop:flow-99")); err != nil {
		t.Fatalf("stale button: unexpected error: %v", err)
	}
	if len(player.stopped) != 0 {
		t.Fatalf("stale button stopped playback")
	}

	if err := fm.Router(session, buttonClick("g", "queue_stop:flow-1")); err != nil {
		t.Fatalf("stop: unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"g"}, player.stopped); diff != "" {
		t.Errorf("stopped mismatch (-expected +got):\n%s", diff)
	}
	if diff := cmp.Diff(presenters.BuildStoppedResponse(), session.responses[len(session.responses)-1]); diff != "" {
		t.Errorf("stop response mismatch (-expected +got):\n%s", diff)
	}
	if fm.Pending() != 0 {
		t.Errorf("expected the flow to finish, got %d pending", fm.Pending())
	}
}

func TestRegisterFlowTwicePanics(t *testing.T) {
	fm := handler.NewFlowManager(nil)
	fm.RegisterFlow(handler.PingFlow)

	defer func() {
		if recover() == nil {
			t.Errorf("expected a panic")
		}
	}()
	fm.RegisterFlow(handler.PingFlow)
}
