// Package bootstrap provides dependency initialization for the reading
// session runtime.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Theeojeong/READNING/internal/audio"
	"github.com/Theeojeong/READNING/internal/clock"
	"github.com/Theeojeong/READNING/internal/config"
	"github.com/Theeojeong/READNING/internal/detect"
	"github.com/Theeojeong/READNING/internal/fetch"
	"github.com/Theeojeong/READNING/internal/manifest"
	"github.com/Theeojeong/READNING/internal/readerapi"
)

// Dependencies holds all initialized dependencies for a reading session.
type Dependencies struct {
	Fetcher    *fetch.Router
	Engine     *audio.Engine
	Output     audio.Output
	Controller *audio.Controller
	Detector   *detect.Detector
}

// NewDependencies creates and initializes all dependencies for the runtime.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	fetcher, err := initFetcher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	clk := clock.New()
	engine := audio.NewEngine(cfg.SampleRate, clk)

	var output audio.Output
	if cfg.Silent {
		output = audio.NullOutput{}
		logger.Info("silent session: no output device")
	} else {
		output = audio.NewOtoOutput(cfg.SampleRate)
	}

	ctrl := audio.NewController(engine, output, fetcher,
		audio.WithClock(clk),
		audio.WithLogger(logger),
		audio.WithDefaultFade(time.Duration(cfg.FadeMs)*time.Millisecond),
		audio.WithVolume(cfg.MasterVolume),
	)
	ctrl.SetAutoSwitch(cfg.AutoSwitch)

	detector := detect.New(detect.Options{
		Dwell:        time.Duration(cfg.DwellMs) * time.Millisecond,
		SentinelFrac: cfg.SentinelFrac,
		Clock:        clk,
		Logger:       logger,
	})

	return &Dependencies{
		Fetcher:    fetcher,
		Engine:     engine,
		Output:     output,
		Controller: ctrl,
		Detector:   detector,
	}, nil
}

// LoadManifest resolves the configured manifest source: a local file, a
// manifest URL, or the reader API keyed by user/book/page.
func LoadManifest(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*manifest.Manifest, error) {
	switch {
	case cfg.ManifestPath != "":
		logger.Info("loading manifest from file", slog.String("path", cfg.ManifestPath))
		return manifest.Load(cfg.ManifestPath)
	case cfg.ManifestURL != "":
		logger.Info("loading manifest from url", slog.String("url", cfg.ManifestURL))
		return manifest.Fetch(ctx, cfg.ManifestURL, nil)
	default:
		logger.Info("loading manifest from reader API",
			slog.String("base_url", cfg.ReaderAPIURL),
			slog.String("user_id", cfg.UserID),
			slog.String("book_title", cfg.BookTitle),
			slog.Int("page", cfg.Page),
		)
		client, err := readerapi.NewClient(cfg.ReaderAPIURL)
		if err != nil {
			return nil, fmt.Errorf("create reader API client: %w", err)
		}
		return client.GetChapter(ctx, cfg.UserID, cfg.BookTitle, cfg.Page)
	}
}

// initFetcher wires the URL-scheme router: HTTP(S) always, local files
// always, S3 only when configured.
func initFetcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*fetch.Router, error) {
	router := fetch.NewRouter()

	httpFetcher := fetch.NewHTTPFetcher(fetch.WithRateLimit(cfg.FetchRateLimit))
	router.Register("http", httpFetcher)
	router.Register("https", httpFetcher)
	router.Register("file", fetch.FileFetcher{})

	if cfg.S3Enabled() {
		s3Fetcher, err := fetch.NewS3Fetcher(ctx, fetch.S3Config{
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 fetcher: %w", err)
		}
		router.Register("s3", s3Fetcher)
		logger.Info("S3 fetcher configured", slog.String("region", cfg.S3Region))
	}

	return router, nil
}
