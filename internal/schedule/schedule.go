package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glizzus/terminus/internal/audio"
	"golang.org/x/sync/errgroup"
)

// RunAt calls execute at runAt on its own goroutine. Nothing runs if ctx is
// done first.
func RunAt(ctx context.Context, runAt time.Time, execute func(ctx context.Context)) {
	go func() {
		timer := time.NewTimer(time.Until(runAt))
		defer timer.Stop()

		select {
		case <-timer.C:
			execute(ctx)
		case <-ctx.Done():
		}
	}()
}

// RunCron calls execute each time cron fires until ctx is done. Runs do not
// overlap; a run that overlaps the next fire time skips it.
func RunCron(ctx context.Context, cron string, execute func(ctx context.Context, at time.Time)) error {
	expr, err := parseCron(cron)
	if err != nil {
		return err
	}

	for {
		next := expr.Next(time.Now())
		if next.IsZero() {
			return nil
		}

		done := make(chan struct{})
		RunAt(ctx, next, func(ctx context.Context) {
			defer close(done)
			execute(ctx, next)
		})
		select {
		case <-done:
		case <-ctx.Done():
			return nil
		}
	}
}

// ClipPlayer is the part of the audio manager the scheduler drives.
type ClipPlayer interface {
	PlayClipNow(ctx context.Context, guildID, clipID string, opts ...audio.RequestOption) (audio.Request, error)
}

// Entry plays ClipID in GuildID whenever Cron fires.
type Entry struct {
	GuildID   string
	ClipID    string
	Cron      string
	ChannelID string
}

// Scheduler plays clips on cron schedules.
type Scheduler struct {
	player         ClipPlayer
	entries        []Entry
	defaultChannel string
}

// NewScheduler returns a Scheduler. Entries without a channel play in
// defaultChannel, or in the manager's default when that is empty too.
func NewScheduler(player ClipPlayer, defaultChannel string, entries ...Entry) *Scheduler {
	return &Scheduler{
		player:         player,
		entries:        entries,
		defaultChannel: defaultChannel,
	}
}

// Run blocks until ctx is done or no entry can fire again. It fails early
// only if an entry has an invalid cron expression.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, e := range s.entries {
		if err := ValidateCron(e.Cron); err != nil {
			return fmt.Errorf("schedule for clip %s in guild %s: %w", e.ClipID, e.GuildID, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, e := range s.entries {
		g.Go(func() error {
			return RunCron(ctx, e.Cron, func(ctx context.Context, at time.Time) {
				s.fire(ctx, e)
			})
		})
	}
	return g.Wait()
}

func (s *Scheduler) fire(ctx context.Context, e Entry) {
	channelID := e.ChannelID
	if channelID == "" {
		channelID = s.defaultChannel
	}

	var opts []audio.RequestOption
	if channelID != "" {
		opts = append(opts, audio.WithChannel(channelID))
	}

	req, err := s.player.PlayClipNow(ctx, e.GuildID, e.ClipID, opts...)
	if err != nil {
		slog.Error("failed to play scheduled clip", "guildID", e.GuildID, "clipID", e.ClipID, "error", err)
		return
	}
	slog.Info("queued scheduled clip", "guildID", e.GuildID, "clipID", e.ClipID, "requestID", req.ID)
}
