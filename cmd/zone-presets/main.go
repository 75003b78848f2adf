// Package main provides the zone-presets extension entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/TheAppgineer/roon-extension-zone-presets/internal/app/dispatcher"
	"github.com/TheAppgineer/roon-extension-zone-presets/internal/app/settings"
	"github.com/TheAppgineer/roon-extension-zone-presets/internal/infra/config"
	"github.com/TheAppgineer/roon-extension-zone-presets/internal/infra/logger"
	"github.com/TheAppgineer/roon-extension-zone-presets/internal/infra/persist"
	"github.com/TheAppgineer/roon-extension-zone-presets/internal/infra/platform"
)

var (
	app        = kingpin.New("zone-presets", "Preset-based grouping of audio outputs")
	configPath = app.Flag("config", "Path to config file").Default("config/zone-presets.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Err(err).Msg("Extension error")
		os.Exit(1)
	}
}

// run wires the session together and serves until a termination signal.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := persist.NewStore(cfg.State.SettingsPath)
	manager := settings.NewManager(store.Load())

	client := platform.NewClient(cfg.Core.URL, platform.ExtensionInfo{
		ExtensionID: cfg.Extension.ID,
		DisplayName: cfg.Extension.DisplayName,
		Version:     cfg.Extension.Version,
		Publisher:   cfg.Extension.Publisher,
		Email:       cfg.Extension.Email,
	})
	transport := platform.NewTransport(client)
	status := platform.NewStatus(client)

	d := dispatcher.New(manager, store, transport, status)
	platform.NewSettingsService(client, d)

	go client.Run(ctx)
	go d.Run(ctx, client.Events())

	zlog.Info().Str("core", cfg.Core.URL).Msg("Zone presets extension started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	zlog.Info().Str("signal", sig.String()).Msg("Shutting down")
	return nil
}
