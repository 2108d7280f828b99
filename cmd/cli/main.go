package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/glizzus/terminus/internal/clips"
	"github.com/glizzus/terminus/internal/config"
	"github.com/glizzus/terminus/internal/datalayer"
	"github.com/glizzus/terminus/internal/opus"
	"github.com/glizzus/terminus/internal/repository"
	"github.com/glizzus/terminus/internal/schedule"
	"github.com/urfave/cli/v2"
)

func transcode(c *cli.Context) error {
	format, err := opus.ParseFormat(c.String("format"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	transcoder := opus.NewTranscoder(
		opus.WithFormat(format),
		opus.WithStallTimeout(c.Duration("stall-timeout")),
	)

	start := time.Now()
	source, err := transcoder.Run(c.Context, c.String("file"), c.String("command"))
	if err != nil {
		return cli.Exit("Failed to start transcoder: "+err.Error(), 1)
	}
	defer source.Close()

	var frames, bytes int
	for {
		frame, err := source.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return cli.Exit(fmt.Sprintf("Transcoding failed after %d frames: %v", frames, err), 1)
		}
		frames++
		bytes += len(frame)
	}

	// Each frame is 20ms of audio.
	log.Printf("%d frames (%d bytes, %s of audio) in %s",
		frames, bytes, time.Duration(frames)*20*time.Millisecond, time.Since(start).Round(time.Millisecond))
	return nil
}

func history(c *cli.Context) error {
	pgCfg, err := config.NewPostgresConfigFromEnv()
	if err != nil {
		return cli.Exit("Failed to load postgres config: "+err.Error(), 1)
	}
	pool, err := datalayer.NewPostgresPool(c.Context, pgCfg)
	if err != nil {
		return cli.Exit("Failed to connect to postgres: "+err.Error(), 1)
	}
	defer pool.Close()
	if err := datalayer.MigratePostgres(pool); err != nil {
		return cli.Exit("Failed to migrate postgres: "+err.Error(), 1)
	}

	repo := repository.NewPostgresHistoryRepository(pool)
	entries, err := repo.List(c.Context, c.String("guild-id"), c.Int("limit"))
	if err != nil {
		return cli.Exit("Failed to list history: "+err.Error(), 1)
	}

	if len(entries) == 0 {
		log.Println("No playback history found for the specified guild.")
		return nil
	}
	for _, entry := range entries {
		log.Printf("%+v", entry)
	}
	return nil
}

func catalog(c *cli.Context) error {
	cat, err := clips.LoadCatalog(c.String("path"))
	if err != nil {
		return cli.Exit("Invalid catalog: "+err.Error(), 1)
	}
	log.Printf("Catalog is valid: %d clips, %d songs, %d triggers, %d schedules",
		len(cat.Clips), len(cat.Songs), len(cat.Triggers), len(cat.Schedules))

	for _, s := range cat.Schedules {
		next, err := schedule.NextRunTimes(s.Cron, c.Int("next"))
		if err != nil {
			return cli.Exit(fmt.Sprintf("Invalid schedule for clip %s: %v", s.Clip, err), 1)
		}
		log.Printf("Clip %s in guild %s runs next at %v", s.Clip, s.Guild, next)
	}
	return nil
}

func upload(c *cli.Context) error {
	audioCfg, err := config.NewAudioConfigFromEnv()
	if err != nil {
		return cli.Exit("Failed to load audio config: "+err.Error(), 1)
	}
	minioCfg, err := config.NewMinioConfigFromEnv()
	if err != nil {
		return cli.Exit("Failed to load minio config: "+err.Error(), 1)
	}
	cat, err := clips.LoadCatalog(audioCfg.ClipCatalog)
	if err != nil {
		return cli.Exit("Failed to load catalog: "+err.Error(), 1)
	}

	storage, err := datalayer.NewMinioStorage(minioCfg)
	if err != nil {
		return cli.Exit("Failed to create minio storage: "+err.Error(), 1)
	}
	if err := storage.EnsureBucket(c.Context); err != nil {
		return cli.Exit("Failed to ensure bucket: "+err.Error(), 1)
	}

	for _, clip := range cat.Clips {
		if err := uploadFile(c, storage, audioCfg.AssetPath(clip.File), clips.ObjectKey(clip.File)); err != nil {
			return cli.Exit(fmt.Sprintf("Failed to upload clip %s: %v", clip.ID, err), 1)
		}
		log.Printf("Uploaded clip %s", clip.ID)
	}
	return nil
}

func uploadFile(c *cli.Context, storage datalayer.BlobStorage, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return storage.Put(c.Context, key, f, datalayer.PutOptions{
		Size:        info.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
	})
}

func main() {
	if err := config.LoadEnv(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	app := &cli.App{
		Name:        "terminus-cli",
		Description: "A development CLI tool for testing Terminus without Discord",
		Commands: []*cli.Command{
			{
				Name:   "transcode",
				Usage:  "Run the transcoder on a file and count the frames it produces",
				Action: transcode,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Usage:    "Audio file to transcode",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "command",
						Usage: "Transcoder template; {source} is replaced with the file",
						Value: "ffmpeg",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format of the command: ogg, pcm or frames",
						Value: "ogg",
					},
					&cli.DurationFlag{
						Name:  "stall-timeout",
						Usage: "Give up when no frame arrives for this long",
						Value: 15 * time.Second,
					},
				},
			},
			{
				Name:   "history",
				Usage:  "List recorded playbacks for a guild, newest first",
				Action: history,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "guild-id",
						Usage:    "ID of the guild to list playbacks for",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of entries",
						Value: 20,
					},
				},
			},
			{
				Name:   "catalog",
				Usage:  "Validate a clip catalog",
				Action: catalog,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Usage: "Path of the catalog",
						Value: "assets/clips.yaml",
					},
					&cli.IntFlag{
						Name:  "next",
						Usage: "How many upcoming run times to show per schedule",
						Value: 3,
					},
				},
			},
			{
				Name:   "upload",
				Usage:  "Upload every catalog clip from the assets directory to MinIO",
				Action: upload,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}
