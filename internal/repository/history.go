package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/glizzus/terminus/internal/audio"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PlaybackStatus string

const (
	StatusPlayed    PlaybackStatus = "played"
	StatusFailed    PlaybackStatus = "failed"
	StatusCancelled PlaybackStatus = "cancelled"
)

// HistoryEntry is one finished playback request.
type HistoryEntry struct {
	RequestID   string
	GuildID     string
	ChannelID   string
	SourcePath  string
	Kind        string
	ClipID      string
	Status      PlaybackStatus
	Error       string
	RequestedAt time.Time
	FinishedAt  time.Time
}

// EntryFromEvent converts a terminal playback event. It reports false for
// events that do not end a request.
func EntryFromEvent(ev audio.Event) (HistoryEntry, bool) {
	var status PlaybackStatus
	switch ev.Type {
	case audio.EventFinished:
		status = StatusPlayed
	case audio.EventFailed:
		status = StatusFailed
	case audio.EventCancelled:
		status = StatusCancelled
	default:
		return HistoryEntry{}, false
	}

	entry := HistoryEntry{
		RequestID:   ev.Request.ID,
		GuildID:     ev.Request.GuildID,
		ChannelID:   ev.Request.ChannelID,
		SourcePath:  ev.Request.SourcePath,
		Kind:        ev.Request.Kind.String(),
		ClipID:      ev.Request.ClipID,
		Status:      status,
		RequestedAt: ev.Request.RequestedAt,
		FinishedAt:  ev.At,
	}
	if ev.Err != nil {
		entry.Error = ev.Err.Error()
	}
	return entry, true
}

type HistoryRepository interface {
	Record(ctx context.Context, entry HistoryEntry) error
	// List returns up to limit entries for guildID, newest first.
	List(ctx context.Context, guildID string, limit int) ([]HistoryEntry, error)
}

type PostgresHistoryRepository struct {
	db *pgxpool.Pool
}

var _ HistoryRepository = (*PostgresHistoryRepository)(nil)

func NewPostgresHistoryRepository(db *pgxpool.Pool) *PostgresHistoryRepository {
	return &PostgresHistoryRepository{db: db}
}

func HistoryEntryToRowParams(entry HistoryEntry) []any {
	return []any{
		entry.RequestID,
		entry.GuildID,
		entry.ChannelID,
		entry.SourcePath,
		entry.Kind,
		entry.ClipID,
		string(entry.Status),
		entry.Error,
		entry.RequestedAt,
		entry.FinishedAt,
	}
}

func (r *PostgresHistoryRepository) Record(ctx context.Context, entry HistoryEntry) error {
	const recordQuery = `
	INSERT INTO playback_history (
		request_id, guild_id, channel_id, source_path, kind,
		clip_id, status, error, requested_at, finished_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (request_id) DO NOTHING
	`

	if _, err := r.db.Exec(ctx, recordQuery, HistoryEntryToRowParams(entry)...); err != nil {
		return fmt.Errorf("failed to record playback %s: %w", entry.RequestID, err)
	}
	return nil
}

func (r *PostgresHistoryRepository) List(ctx context.Context, guildID string, limit int) ([]HistoryEntry, error) {
	const listQuery = `
	SELECT request_id, guild_id, channel_id, source_path, kind,
		clip_id, status, error, requested_at, finished_at
	FROM playback_history
	WHERE guild_id = $1
	ORDER BY finished_at DESC
	LIMIT $2
	`

	rows, err := r.db.Query(ctx, listQuery, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query playback history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var status string
		if err := rows.Scan(
			&e.RequestID, &e.GuildID, &e.ChannelID, &e.SourcePath, &e.Kind,
			&e.ClipID, &status, &e.Error, &e.RequestedAt, &e.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan playback history: %w", err)
		}
		e.Status = PlaybackStatus(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read playback history: %w", err)
	}
	return entries, nil
}

// MemoryHistoryRepository keeps history for the life of the process.
type MemoryHistoryRepository struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

var _ HistoryRepository = (*MemoryHistoryRepository)(nil)

func NewMemoryHistoryRepository() *MemoryHistoryRepository {
	return &MemoryHistoryRepository{}
}

func (r *MemoryHistoryRepository) Record(ctx context.Context, entry HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.ContainsFunc(r.entries, func(e HistoryEntry) bool { return e.RequestID == entry.RequestID }) {
		return nil
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *MemoryHistoryRepository) List(ctx context.Context, guildID string, limit int) ([]HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var entries []HistoryEntry
	for _, e := range r.entries {
		if e.GuildID == guildID {
			entries = append(entries, e)
		}
	}
	slices.SortStableFunc(entries, func(a, b HistoryEntry) int {
		return b.FinishedAt.Compare(a.FinishedAt)
	})
	if limit >= 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
