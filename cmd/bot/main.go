package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/terminus/internal/audio"
	"github.com/glizzus/terminus/internal/blacklist"
	"github.com/glizzus/terminus/internal/clips"
	"github.com/glizzus/terminus/internal/config"
	"github.com/glizzus/terminus/internal/datalayer"
	"github.com/glizzus/terminus/internal/handler"
	"github.com/glizzus/terminus/internal/observe"
	"github.com/glizzus/terminus/internal/opus"
	"github.com/glizzus/terminus/internal/repository"
	"github.com/glizzus/terminus/internal/schedule"
	"github.com/glizzus/terminus/internal/voice"
	"golang.org/x/sync/errgroup"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// cleanups run in reverse order on exit.
type cleanups []func()

func (c *cleanups) add(f func()) {
	*c = append(*c, f)
}

func (c cleanups) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func loadCatalog(path string) (*clips.Catalog, error) {
	catalog, err := clips.LoadCatalog(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("No clip catalog found, continuing without clips", "path", path)
		return &clips.Catalog{}, nil
	}
	return catalog, err
}

func newClipStore(ctx context.Context, cfg *config.AudioConfig, catalog *clips.Catalog) (audio.ClipResolver, error) {
	if cfg.ClipStore == "dir" {
		return clips.NewDirStore(cfg.AssetsDir, catalog), nil
	}

	minioCfg, err := config.NewMinioConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load minio config: %w", err)
	}
	storage, err := datalayer.NewMinioStorage(minioCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio storage: %w", err)
	}
	if err := storage.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure minio bucket: %w", err)
	}
	return clips.NewMinioStore(storage, minioCfg.CacheDir, catalog), nil
}

func newHistory(ctx context.Context, cfg *config.AudioConfig, c *cleanups) (repository.HistoryRepository, error) {
	if cfg.History == "memory" {
		return repository.NewMemoryHistoryRepository(), nil
	}

	pgCfg, err := config.NewPostgresConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load postgres config: %w", err)
	}
	pool, err := datalayer.NewPostgresPool(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	c.add(pool.Close)

	if err := datalayer.MigratePostgres(pool); err != nil {
		return nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}
	return repository.NewPostgresHistoryRepository(pool), nil
}

func newBlacklist(ctx context.Context, cfg *config.AudioConfig, c *cleanups) (blacklist.Store, error) {
	var store blacklist.Store
	if cfg.Blacklist == "memory" {
		store = blacklist.NewMemoryBlacklist()
	} else {
		redisCfg, err := config.NewRedisConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("failed to load redis config: %w", err)
		}
		client, err := datalayer.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		c.add(func() {
			if err := client.Close(); err != nil {
				slog.Warn("failed to close redis client", "error", err)
			}
		})
		store = blacklist.NewRedisBlacklist(client, redisCfg.BlacklistKey)
	}

	if err := store.Add(ctx, cfg.BlacklistChannels...); err != nil {
		return nil, fmt.Errorf("failed to seed blacklist: %w", err)
	}
	return store, nil
}

func runBotForever() error {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	obsCfg, err := config.NewObservabilityConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load observability config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: obsCfg.Level()})))

	discordCfg, err := config.NewDiscordConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load discord config: %w", err)
	}
	audioCfg, err := config.NewAudioConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load audio config: %w", err)
	}
	catalog, err := loadCatalog(audioCfg.ClipCatalog)
	if err != nil {
		return fmt.Errorf("failed to load clip catalog: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var c cleanups
	defer c.run()

	clipStore, err := newClipStore(ctx, audioCfg, catalog)
	if err != nil {
		return err
	}
	history, err := newHistory(ctx, audioCfg, &c)
	if err != nil {
		return err
	}
	channels, err := newBlacklist(ctx, audioCfg, &c)
	if err != nil {
		return err
	}

	mp, err := observe.InitProvider(ctx, version)
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	c.add(func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			slog.Warn("failed to shut down meter provider", "error", err)
		}
	})
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	session, err := handler.NewSession(discordCfg.Token)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	recorder := repository.NewHistoryRecorder(history, 0)
	notifier := handler.NewFailureNotifier(session)
	manager := audio.NewManager(
		audioCfg.Engine(),
		opus.NewTranscoder(audioCfg.TranscoderOptions()...),
		clipStore,
		audio.WithListener(recorder),
		audio.WithListener(metrics),
		audio.WithListener(notifier),
	)
	if _, err := metrics.ObserveSessions(manager); err != nil {
		return fmt.Errorf("failed to observe sessions: %w", err)
	}

	gateway := voice.NewGateway(session, voice.WithSendTimeout(audioCfg.SendTimeout))
	commands := handler.NewAudioCommands(manager, gateway, catalog, audioCfg)
	if discordCfg.GuildID != "" {
		commands.Bind(discordCfg.GuildID)
	}

	flows := handler.NewFlowManager(nil)
	commands.RegisterFlows(flows)
	messages := handler.NewMessageHandler(commands, channels, discordCfg.CommandPrefix)

	handler.Handlers{
		Ready: func(s *discordgo.Session, r *discordgo.Ready) {
			handler.ReadyLog(s, r)
			messages.SetBotID(r.User.ID)
		},
		InteractionCreate: handler.MakeInteractionCreateHandler(flows),
		MessageCreate:     handler.MakeMessageCreateHandler(ctx, messages),
		GuildCreate:       handler.MakeGuildCreateHandler(commands),
	}.Register(session)

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("failed to close session", "error", err)
		}
	}()

	if err := handler.EstablishCommands(session, discordCfg.CommandGuildID()); err != nil {
		return fmt.Errorf("failed to establish commands: %w", err)
	}

	scheduler := schedule.NewScheduler(manager, audioCfg.WeedChannelID, catalog.ScheduleEntries()...)

	// The recorder outlives the manager so that the events emitted while
	// sessions shut down are still written.
	recorderCtx, stopRecorder := context.WithCancel(context.WithoutCancel(ctx))
	defer stopRecorder()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return recorder.Run(recorderCtx)
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	if obsCfg.MetricsAddr != "" {
		g.Go(func() error {
			return observe.ServeMetrics(gctx, obsCfg.MetricsAddr)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down", "sessions", manager.SessionCount(), "pendingFlows", flows.Pending())
		err := manager.Close()
		notifier.Wait()
		stopRecorder()
		return err
	})

	return g.Wait()
}

func main() {
	if err := runBotForever(); err != nil {
		log.Fatalf("failed to run bot: %v", err)
	}
}
