// Package config handles configuration for the development coordination
// server: defaults, an optional JSON file, .env plus FIELDLINE_DEV_*
// variables, and command-line flags, in that order of precedence.
//
// Supported flags
//
//	-a string       gRPC bind address (e.g. ":50051")
//	-d string       Postgres DSN; empty keeps everything in memory
//	-s string       HMAC secret for bearer tokens; empty disables auth
//	-t int          issued token validity (minutes, 0 never expires)
//	-u string       S3 access key
//	-p string       S3 secret key
//	-b string       S3 bucket
//	-g string       S3 region
//	-e string       S3 base endpoint (e.g. "http://127.0.0.1:9000/")
//	-alerts int     demo alert interval (seconds, 0 disables)
//	-log-level string
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/validate"
)

const EnvPrefix = "FIELDLINE_DEV"

// Config holds runtime settings for the development server.
type Config struct {
	EndpointAddrGRPC string `envconfig:"LISTEN_ADDR" validate:"required"`
	DatabaseDSN      string `envconfig:"DATABASE_DSN"`

	SecretKey     string        `envconfig:"SECRET_KEY"`
	TokenValidity time.Duration `envconfig:"TOKEN_VALIDITY" validate:"gte=0"`
	DeviceID      string        `envconfig:"DEVICE_ID" validate:"required"`

	S3AccessKey    string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey    string `envconfig:"S3_SECRET_KEY"`
	S3Bucket       string `envconfig:"S3_BUCKET"`
	S3Region       string `envconfig:"S3_REGION"`
	S3BaseEndpoint string `envconfig:"S3_BASE_ENDPOINT" validate:"omitempty,url"`

	DemoAlertInterval time.Duration `envconfig:"DEMO_ALERT_INTERVAL" validate:"gte=0"`

	LogLevel  string `envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" validate:"oneof=auto text json"`
}

// LoadDefaults populates Config with development defaults. Auth and S3 are
// off until configured.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":50051"
	c.TokenValidity = 24 * time.Hour
	c.DeviceID = "dev-device"
	c.S3Bucket = "evidence"
	c.S3Region = "us-east-1"
	c.LogLevel = "info"
	c.LogFormat = "auto"
}

// S3Enabled reports whether presigned uploads can be served.
func (c *Config) S3Enabled() bool {
	return c.S3AccessKey != "" && c.S3SecretKey != "" && c.S3Bucket != ""
}

func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}
