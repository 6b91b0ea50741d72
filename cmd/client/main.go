package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/app"
	"github.com/dmitrijs2005/fieldline/internal/client/cli"
	"github.com/dmitrijs2005/fieldline/internal/client/config"
	"github.com/dmitrijs2005/fieldline/internal/logging"
	"golang.org/x/term"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	if cfg.UploadMode == "s3" && cfg.S3SecretKey == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		secret, err := cli.GetSecret("S3 secret key", os.Stdout)
		if err != nil {
			log.Fatalf("%v", err)
		}
		cfg.S3SecretKey = secret
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	a := app.New(cfg, app.Options{}, logger)
	if err := a.Init(ctx); err != nil {
		log.Fatalf("%v", err)
	}
	a.Start(ctx)

	cli.NewSession(a, os.Stdin, os.Stdout).Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "shutdown", "error", err)
	}
}
