package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glizzus/terminus/internal/audio"
	"github.com/glizzus/terminus/internal/repository"
	"github.com/google/go-cmp/cmp"
)

func TestEntryFromEvent(t *testing.T) {
	req := audio.Request{
		ID:          "req-1",
		GuildID:     "guild-1",
		ChannelID:   "voice-1",
		SourcePath:  "assets/wow.mp3",
		Kind:        audio.KindClip,
		ClipID:      "wow",
		RequestedAt: base,
	}
	failure := &audio.Error{Op: "play", GuildID: "guild-1", Kind: audio.ErrTranscoderTimeout}

	tc := []struct {
		name string
		ev   audio.Event
		want repository.HistoryEntry
		ok   bool
	}{
		{
			name: "started is not terminal",
			ev:   audio.Event{Type: audio.EventStarted, Request: req, At: base},
		},
		{
			name: "finished",
			ev:   audio.Event{Type: audio.EventFinished, Request: req, At: base.Add(time.Second)},
			want: repository.HistoryEntry{
				RequestID: "req-1", GuildID: "guild-1", ChannelID: "voice-1", SourcePath: "assets/wow.mp3",
				Kind: "clip", ClipID: "wow", Status: repository.StatusPlayed,
				RequestedAt: base, FinishedAt: base.Add(time.Second),
			},
			ok: true,
		},
		{
			name: "failed",
			ev:   audio.Event{Type: audio.EventFailed, Request: req, Err: failure, At: base.Add(time.Second)},
			want: repository.HistoryEntry{
				RequestID: "req-1", GuildID: "guild-1", ChannelID: "voice-1", SourcePath: "assets/wow.mp3",
				Kind: "clip", ClipID: "wow", Status: repository.StatusFailed, Error: failure.Error(),
				RequestedAt: base, FinishedAt: base.Add(time.Second),
			},
			ok: true,
		},
		{
			name: "cancelled",
			ev:   audio.Event{Type: audio.EventCancelled, Request: req, At: base.Add(time.Second)},
			want: repository.HistoryEntry{
				RequestID: "req-1", GuildID: "guild-1", ChannelID: "voice-1", SourcePath: "assets/wow.mp3",
				Kind: "clip", ClipID: "wow", Status: repository.StatusCancelled,
				RequestedAt: base, FinishedAt: base.Add(time.Second),
			},
			ok: true,
		},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			got, ok := repository.EntryFromEvent(test.ev)
			if ok != test.ok {
				t.Fatalf("expected ok=%v, got %v", test.ok, ok)
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("entry mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func finished(id string) audio.Event {
	return audio.Event{
		Type:    audio.EventFinished,
		Request: audio.Request{ID: id, GuildID: "guild-1"},
		At:      base,
	}
}

func TestHistoryRecorderFlushesOnShutdown(t *testing.T) {
	repo := repository.NewMemoryHistoryRepository()
	rec := repository.NewHistoryRecorder(repo, 8)

	for _, id := range []string{"a", "b", "c"} {
		rec.Handle(finished(id))
	}
	rec.Handle(audio.Event{Type: audio.EventStarted, Request: audio.Request{ID: "d", GuildID: "guild-1"}})

	// Cancelled before Run starts: everything buffered is still written.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rec.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := repo.List(context.Background(), "guild-1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3 entries, got %d", len(entries))
	}
}

func TestHistoryRecorderDropsWhenFull(t *testing.T) {
	repo := repository.NewMemoryHistoryRepository()
	rec := repository.NewHistoryRecorder(repo, 2)

	for _, id := range []string{"a", "b", "c", "d"} {
		rec.Handle(finished(id))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = rec.Run(ctx)

	entries, _ := repo.List(context.Background(), "guild-1", 10)
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.RequestID)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ids); diff != "" {
		t.Errorf("recorded ids mismatch (-want +got):\n%s", diff)
	}
}

type failingRepository struct {
	repository.MemoryHistoryRepository
	calls int
}

func (r *failingRepository) Record(ctx context.Context, entry repository.HistoryEntry) error {
	r.calls++
	return errors.New("database is on fire")
}

func TestHistoryRecorderSurvivesWriteErrors(t *testing.T) {
	repo := &failingRepository{}
	rec := repository.NewHistoryRecorder(repo, 4)
	rec.Handle(finished("a"))
	rec.Handle(finished("b"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rec.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", repo.calls)
	}
}
