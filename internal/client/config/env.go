package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/dmitrijs2005/fieldline/internal/flagx"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// loadDotenv is a seam for tests.
var loadDotenv = godotenv.Load

// parseEnv loads the .env file named by -env (required to exist) or ./.env
// (optional), then overlays FIELDLINE_* variables. Variables already set in
// the process environment win over the file.
func parseEnv(cfg *Config, args []string) error {
	_, envPath := flagx.ConfigFiles(args)

	if envPath != "" {
		if err := loadDotenv(envPath); err != nil {
			return fmt.Errorf("failed to load env file[%s]: %w", envPath, err)
		}
	} else if err := loadDotenv(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}
