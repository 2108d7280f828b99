package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/glizzus/terminus/internal/audio"
)

const (
	defaultRecorderBuffer = 256
	drainTimeout          = 5 * time.Second
)

// HistoryRecorder writes finished requests to a HistoryRepository. Handle
// never blocks the playback worker; when the buffer is full the entry is
// dropped.
type HistoryRecorder struct {
	repo    HistoryRepository
	entries chan HistoryEntry
}

var _ audio.Listener = (*HistoryRecorder)(nil)

// NewHistoryRecorder buffers up to size entries. A size below 1 uses the
// default.
func NewHistoryRecorder(repo HistoryRepository, size int) *HistoryRecorder {
	if size < 1 {
		size = defaultRecorderBuffer
	}
	return &HistoryRecorder{
		repo:    repo,
		entries: make(chan HistoryEntry, size),
	}
}

func (r *HistoryRecorder) Handle(ev audio.Event) {
	entry, ok := EntryFromEvent(ev)
	if !ok {
		return
	}
	select {
	case r.entries <- entry:
	default:
		slog.Warn("history buffer full, dropping entry", "requestID", entry.RequestID, "guildID", entry.GuildID)
	}
}

// Run writes entries until ctx is done, then flushes what is still buffered.
func (r *HistoryRecorder) Run(ctx context.Context) error {
	for {
		select {
		case entry := <-r.entries:
			r.record(ctx, entry)
		case <-ctx.Done():
			r.drain(ctx)
			return nil
		}
	}
}

func (r *HistoryRecorder) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	for {
		select {
		case entry := <-r.entries:
			r.record(ctx, entry)
		default:
			return
		}
	}
}

func (r *HistoryRecorder) record(ctx context.Context, entry HistoryEntry) {
	if err := r.repo.Record(ctx, entry); err != nil {
		slog.Error("failed to record playback", "requestID", entry.RequestID, "guildID", entry.GuildID, "error", err)
	}
}
