package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"sync"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/ekisa-team/leafsight/internal/config"
	"github.com/ekisa-team/leafsight/internal/config/source"
	"github.com/ekisa-team/leafsight/internal/env"
	"github.com/ekisa-team/leafsight/internal/logger"
	"github.com/ekisa-team/leafsight/internal/model"
	grpcserver "github.com/ekisa-team/leafsight/internal/server/grpc"
	httpserver "github.com/ekisa-team/leafsight/internal/server/http"
	"github.com/ekisa-team/leafsight/internal/service"
)

func main() {
	var (
		flagHTTPPort   = flag.Int("http-port", 0, "HTTP port to listen on (default from config)")
		flagGRPCPort   = flag.Int("grpc-port", 0, "GRPC port to listen on (default from config)")
		flagConfigPath = flag.String("config", path.Join(config.DefaultConfigPath(), "config.yaml"), "Path to config file")
		flagSchemaPath = flag.String("schema", "", "Path to schema file (default: built-in schema)")
		flagClassify   = flag.String("classify", "", "Classify a single image, print the ranking and exit")
		flagLogFile    = flag.String("log-file", "logs/leafsight.log", "Rotating log file, empty to disable")
	)
	flag.Parse()

	environment := env.FromEnv()

	slog.SetDefault(
		logger.New(environment,
			logger.WithLogToFile(*flagLogFile != ""),
			logger.WithLogFile(*flagLogFile),
		),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *flagClassify != "" {
		if err := classifyOnce(ctx, *flagConfigPath, *flagSchemaPath, *flagClassify); err != nil {
			slog.Error("Classification failed", "image", *flagClassify, "error", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, *flagConfigPath, *flagSchemaPath, *flagHTTPPort, *flagGRPCPort); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file. Without a file the defaults plus
// LEAFSIGHT_* variables are used, which is enough when LEAFSIGHT_MODEL_URL
// or LEAFSIGHT_MODEL_PATH points at a model.
func loadConfig(configPath, schemaPath string) (*config.Config, error) {
	cfg, err := config.LoadAndValidate(configPath, schemaPath)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	slog.Warn("Config file not found, using defaults and environment", "config", configPath)
	cfg = config.Default()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newFetcher(cfg *config.Config) *source.Fetcher {
	opts := []source.Option{
		source.WithTimeout(cfg.Storage.Timeout()),
		source.WithMaxBytes(cfg.Storage.MaxDownloadBytes()),
	}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		opts = append(opts, source.WithProgress(func(total int64, description string) io.Writer {
			return progressbar.DefaultBytes(total, description)
		}))
	}
	return source.NewFetcher(opts...)
}

func classifyOnce(ctx context.Context, configPath, schemaPath, imagePath string) error {
	cfg, err := loadConfig(configPath, schemaPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	backends, err := newBackends(cfg)
	if err != nil {
		return err
	}
	defer backends.Close()

	manager := model.NewManager(newFetcher(cfg), backends)
	defer manager.Close()

	if _, err := manager.LoadFromConfig(ctx, cfg); err != nil {
		return err
	}

	classifier, err := service.NewClassifier(manager, service.SettingsFromConfig(cfg))
	if err != nil {
		return err
	}

	p, err := classifier.Classify(ctx, data, service.Options{})
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s (%s, %s)\n\n", imagePath, p.Name, p.Percent, p.Verdict)
	return classifier.WriteTable(os.Stdout, p)
}

// watchConfig loads the config and reloads it on change. Without a config
// file it falls back to loadConfig and nothing is watched.
func watchConfig(configPath, schemaPath string, onReload func(*config.Config, error)) (*config.Config, func() error, error) {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		cfg, err := loadConfig(configPath, schemaPath)
		if err != nil {
			return nil, nil, err
		}
		return cfg, func() error { return nil }, nil
	}

	watcher, err := config.NewWatcher(configPath, schemaPath, onReload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	return watcher.Snapshot(), watcher.Close, nil
}

func serve(ctx context.Context, configPath, schemaPath string, httpPort, grpcPort int) error {
	var (
		classifier *service.Classifier
		grpcSrv    *grpcserver.Server
		manager    *model.Manager
		ready      = make(chan struct{})
	)

	cfg, stopWatching, err := watchConfig(configPath, schemaPath, func(cfg *config.Config, err error) {
		if err != nil {
			slog.Error("Failed to reload config", "error", err)
			return
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return
		}

		classifier.UpdateSettings(service.SettingsFromConfig(cfg))
		if _, err := manager.LoadFromConfig(ctx, cfg); err != nil {
			slog.Error("Failed to load model from reloaded config, keeping the previous one", "error", err)
			return
		}
		slog.Info("Config reloaded", "config", configPath)
	})
	if err != nil {
		return err
	}
	defer stopWatching()

	slog.Info("Config loaded successfully", "config", configPath, "model_id", cfg.Model.ID, "backend", cfg.Model.Backend)

	backends, err := newBackends(cfg)
	if err != nil {
		return err
	}
	defer backends.Close()

	manager = model.NewManager(newFetcher(cfg), backends)
	defer manager.Close()

	// The model must be ready before any request is served.
	if _, err := manager.LoadFromConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to provision model: %w", err)
	}

	classifier, err = service.NewClassifier(manager, service.SettingsFromConfig(cfg))
	if err != nil {
		return err
	}

	if httpPort == 0 {
		httpPort = cfg.Server.HTTPPort
	}
	if grpcPort == 0 {
		grpcPort = cfg.Server.GRPCPort
	}
	maxUpload := cfg.Server.MaxUploadMB << 20

	httpSrv := httpserver.NewServer(httpPort, classifier, maxUpload)
	grpcSrv = grpcserver.NewServer(grpcPort, classifier, int(maxUpload)+(1<<20))
	grpcSrv.SetServing(true)
	close(ready)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		errs = make(chan error, 2)
	)
	for _, run := range []func(context.Context) error{httpSrv.ListenAndServe, grpcSrv.ListenAndServe} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(runCtx); err != nil {
				errs <- err
				cancel()
			}
		}()
	}
	wg.Wait()
	close(errs)

	var all []error
	for err := range errs {
		all = append(all, err)
	}
	return errors.Join(all...)
}
