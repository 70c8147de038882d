package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/resona-team/resona/internal/audio"
	"github.com/resona-team/resona/internal/config"
	"github.com/resona-team/resona/internal/device"
	"github.com/resona-team/resona/internal/engine/runner"
	"github.com/resona-team/resona/internal/env"
	"github.com/resona-team/resona/internal/envvar"
	"github.com/resona-team/resona/internal/logger"
	"github.com/resona-team/resona/internal/model"
	"github.com/resona-team/resona/internal/service"
	"github.com/resona-team/resona/internal/xfs"
)

func main() {
	var (
		flagConfigPath = flag.String("config", path.Join(config.DefaultConfigPath(), "config.yaml"), "Path to config file")
		flagSchemaPath = flag.String("schema", path.Join(config.DefaultConfigPath(), "resona.v1.schema.json"), "Path to schema file")
		flagRunnerPath = flag.String("runner", "resona-runner", "Path to the inference runner binary")
	)
	flag.Parse()

	environment := env.FromEnv()

	slog.SetDefault(
		logger.New(environment,
			logger.WithLogToFile(true),
			logger.WithLogFile("logs/resona.log"),
		),
	)

	configPath := *flagConfigPath
	if p := os.Getenv(envvar.ResonaConfigPath); p != "" {
		configPath = p
	}

	var cfg *config.Config
	if _, err := os.Stat(configPath); err == nil {
		cfg, err = config.LoadAndValidate(configPath, *flagSchemaPath)
		if err != nil {
			slog.Error("Failed to load config", "path", configPath, "error", err)
			return
		}
		slog.Info("Config loaded successfully", "config", configPath, "schema", *flagSchemaPath)
	} else {
		slog.Warn("No config file found, using built-in defaults", "path", configPath)
		cfg = config.Default()
	}

	if cfg.Logging != (config.LoggingConfig{}) {
		slog.SetDefault(logger.New(environment, loggerOptions(cfg.Logging)...))
	}

	runnerPath := *flagRunnerPath
	if p := os.Getenv(envvar.ResonaRunnerPath); p != "" {
		runnerPath = p
	}

	selector := device.NewSelector(device.NewNvidiaSMI())
	profile := selector.Detect()

	codec := audio.NewCodec()

	loader, err := runner.NewLoader(runnerPath, resolveModelsPath(cfg), cfg.Models.Download, codec)
	if err != nil {
		slog.Error("Failed to create model loader", "error", err)
		return
	}

	manager, err := model.NewManager(cfg, loader, profile)
	if err != nil {
		slog.Error("Failed to create model manager", "error", err)
		return
	}

	if _, err := os.Stat(configPath); err == nil {
		watcher, err := config.NewWatcher(configPath, *flagSchemaPath, func(c *config.Config, err error) {
			if err != nil {
				slog.Error("Failed to reload config, keeping previous state", "error", err)
				return
			}

			if err := manager.SetProfile(c.Models.DefaultProfile); err != nil {
				slog.Error("Failed to apply reloaded profile", "error", err)
			}
		})
		if err != nil {
			slog.Error("Failed to create config watcher", "error", err)
			return
		}
		defer watcher.Close()
	}

	tts := service.NewTTS(manager, codec, selector, cfg.Audio)

	// Readiness does not wait on the pre-load; failures surface in logs only.
	go manager.Prewarm(context.Background())

	slog.Info("Service ready", "health", tts.Health())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("Shutting down")
	manager.ClearCache(context.Background())
}

// loggerOptions maps the logging section of the config onto logger options.
func loggerOptions(cfg config.LoggingConfig) []logger.Option {
	opts := []logger.Option{logger.WithLogToFile(cfg.ToFile)}

	if cfg.File != "" {
		opts = append(opts, logger.WithLogFile(cfg.File))
	}

	switch cfg.Level {
	case "debug":
		opts = append(opts, logger.WithLevel(slog.LevelDebug))
	case "warn":
		opts = append(opts, logger.WithLevel(slog.LevelWarn))
	case "error":
		opts = append(opts, logger.WithLevel(slog.LevelError))
	}

	return opts
}

// resolveModelsPath returns the path to the models directory.
// Precedence:
// 1. RESONA_MODELS_PATH environment variable.
// 2. storage.models_dir in the config.
// 3. Default models path.
func resolveModelsPath(cfg *config.Config) string {
	if p := os.Getenv(envvar.ResonaModelsPath); p != "" {
		return xfs.ExpandTilde(p)
	}
	if cfg.Storage.ModelsDir != "" {
		return xfs.ExpandTilde(cfg.Storage.ModelsDir)
	}
	return xfs.ExpandTilde(config.DefaultModelsPath())
}
