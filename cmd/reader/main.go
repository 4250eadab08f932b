// Package main runs a headless reading session: it loads a manifest, wires
// the active-chunk detector to the crossfade controller, and plays through
// the book with a scripted scroll. Useful for exercising generated audio
// and transition tuning without a browser client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/Theeojeong/READNING/internal/bootstrap"
	"github.com/Theeojeong/READNING/internal/config"
	"github.com/Theeojeong/READNING/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting Readning reader",
		slog.Int("dwell_ms", cfg.DwellMs),
		slog.Int("fade_ms", cfg.FadeMs),
		slog.Float64("master_volume", cfg.MasterVolume),
		slog.Bool("auto_switch", cfg.AutoSwitch),
		slog.Bool("silent", cfg.Silent),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer deps.Output.Close()

	m, err := bootstrap.LoadManifest(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	sess := session.New(ctx, m, deps.Detector, deps.Controller, logger)
	defer sess.Close()

	// Headless runs have no user gesture; starting the program is the
	// explicit consent equivalent.
	unlockCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = sess.Unlock(unlockCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("unlock audio: %w", err)
	}

	// Scroll through the whole book, holding each chunk long enough for
	// the dwell window plus a few seconds of its track.
	hold := time.Duration(cfg.DwellMs)*time.Millisecond + 5*time.Second
	script := session.ScrollThrough(m, 900, hold)

	logger.Info("scroll-through started",
		slog.String("title", m.Title),
		slog.Int("chunks", len(m.Chunks)),
		slog.Duration("hold", hold),
	)

	if err := script.Run(ctx, sess); err != nil {
		logger.Info("scroll-through interrupted", slog.String("reason", err.Error()))
	} else {
		logger.Info("scroll-through finished")
		// Let the final chunk's track play out briefly before fading.
		select {
		case <-time.After(3 * time.Second):
		case <-ctx.Done():
		}
	}

	deps.Controller.StopAll(0)
	logger.Info("reader stopped gracefully")
	return nil
}
