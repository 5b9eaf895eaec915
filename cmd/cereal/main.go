// Command cereal runs the serial-fiction ingestion and delivery
// daemon: it polls subscribed books for new chapters, converts them to
// Kindle-ready .mobi files, and delivers them to subscribers over push
// and email channels.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/cerealworks/cereal/internal/buildinfo"
	"github.com/cerealworks/cereal/internal/config"
	"github.com/cerealworks/cereal/internal/converter"
	"github.com/cerealworks/cereal/internal/delivery"
	"github.com/cerealworks/cereal/internal/ingest"
	"github.com/cerealworks/cereal/internal/notify"
	"github.com/cerealworks/cereal/internal/objectstore"
	"github.com/cerealworks/cereal/internal/provider"
	"github.com/cerealworks/cereal/internal/repository"
	"github.com/cerealworks/cereal/internal/supervisor"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.String())
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid log level", "error", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	logger.Info("starting cereal", "version", buildinfo.Version, "commit", buildinfo.GitCommit)

	ctx := context.Background()

	repo, err := repository.New(ctx, repository.Config{URL: cfg.Database.URL, PoolSize: cfg.Database.PoolSize})
	if err != nil {
		logger.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.Migrate(repository.Config{URL: cfg.Database.URL, PoolSize: cfg.Database.PoolSize}); err != nil {
		logger.Error("run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	store, err := objectstore.New(objectstore.Config{
		Endpoint: cfg.ObjectStore.Endpoint,
		Key:      cfg.ObjectStore.Key,
		Secret:   cfg.ObjectStore.Secret,
		Bucket:   cfg.ObjectStore.Bucket,
		UseSSL:   true,
	})
	if err != nil {
		logger.Error("construct object store", "error", err)
		os.Exit(1)
	}

	conv := converter.New("")
	providers := provider.NewRegistry(store, cfg.ObjectStore.EmailIngestBucket)
	push := notify.NewPushClient(cfg.Pushover.AppToken)
	email := notify.NewEmailClient(cfg.Email.APIKey, cfg.Email.Endpoint, cfg.Email.From)

	ingestPipeline := ingest.New(repo, providers, store, conv, logger.With("component", "ingest"))
	deliveryScheduler := delivery.New(repo, store, conv, push, email, logger.With("component", "delivery"))

	apiServer := &http.Server{Addr: cfg.Listen.Addr}

	sup := supervisor.New(logger)
	sup.Run(ctx, map[string]supervisor.Task{
		"ingest": func(ctx context.Context) error {
			return ingestPipeline.Run(ctx, cfg.IngestPeriod)
		},
		"delivery": func(ctx context.Context) error {
			return deliveryScheduler.Run(ctx, cfg.DeliveryPeriod)
		},
		"api": func(ctx context.Context) error {
			errCh := make(chan error, 1)
			go func() { errCh <- apiServer.ListenAndServe() }()
			select {
			case <-ctx.Done():
				return apiServer.Shutdown(context.Background())
			case err := <-errCh:
				return err
			}
		},
	})

	logger.Info("cereal stopped")
}
