package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/fieldline/internal/client/client"
	"github.com/dmitrijs2005/fieldline/internal/dbx"
	"github.com/dmitrijs2005/fieldline/internal/devserver"
	"github.com/dmitrijs2005/fieldline/internal/devserver/auth"
	"github.com/dmitrijs2005/fieldline/internal/devserver/config"
	"github.com/dmitrijs2005/fieldline/internal/devserver/store"
	"github.com/dmitrijs2005/fieldline/internal/devserver/store/migrations"
	"github.com/dmitrijs2005/fieldline/internal/logging"
	"golang.org/x/sync/errgroup"
)

type backend interface {
	devserver.Backend
	devserver.Publisher
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	mem := client.NewMemoryClient()
	var b backend = mem
	if cfg.DatabaseDSN != "" {
		db, err := dbx.OpenPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer func(db *sql.DB) { _ = db.Close() }(db)

		if err := migrations.Up(ctx, db); err != nil {
			log.Fatalf("%v", err)
		}
		b = store.NewPostgresStore(db)
		logger.Info(ctx, "Using Postgres backend")
	} else {
		logger.Info(ctx, "Using in-memory backend")
	}

	var presigner devserver.Presigner = mem
	if cfg.S3Enabled() {
		presigner = devserver.NewS3Presigner(devserver.S3Config{
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
	}

	if cfg.SecretKey != "" {
		token, err := auth.GenerateToken(cfg.DeviceID, []byte(cfg.SecretKey), cfg.TokenValidity)
		if err != nil {
			log.Fatalf("%v", err)
		}
		logger.Info(ctx, "Issued development token", "device_id", cfg.DeviceID, "token", token)
	}

	srv := devserver.NewServer(cfg.EndpointAddrGRPC, logger, b, presigner, cfg.SecretKey)
	alerts := devserver.NewAlertGenerator(b, cfg.DemoAlertInterval, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return alerts.Run(ctx) })

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "server stopped", "error", err)
		os.Exit(1)
	}
}
