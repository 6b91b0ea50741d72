package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/validate"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "FIELDLINE"

// Config holds runtime settings for the reporter client.
type Config struct {
	ServerEndpointAddr  string        `envconfig:"SERVER_ADDR" validate:"required,hostname_port"`
	AccessToken         string        `envconfig:"ACCESS_TOKEN"`
	DatabasePath        string        `envconfig:"DATABASE_PATH" validate:"required"`
	OnlineCheckInterval time.Duration `envconfig:"ONLINE_CHECK_INTERVAL" validate:"gt=0"`

	ConnectivitySignal string        `envconfig:"CONNECTIVITY_SIGNAL" validate:"oneof=probe file"`
	ConnectivityFile   string        `envconfig:"CONNECTIVITY_FILE" validate:"required_if=ConnectivitySignal file"`
	DebounceWindow     time.Duration `envconfig:"DEBOUNCE_WINDOW" validate:"gte=0"`

	PollInterval time.Duration `envconfig:"POLL_INTERVAL" validate:"gt=0"`
	DismissAfter time.Duration `envconfig:"DISMISS_AFTER" validate:"gt=0"`
	DedupPolicy  string        `envconfig:"DEDUP_POLICY" validate:"oneof=session persistent"`
	MarkReadRate float64       `envconfig:"MARK_READ_RATE" validate:"gte=0"`

	SyncBaseBackoff      time.Duration `envconfig:"SYNC_BASE_BACKOFF" validate:"gt=0"`
	SyncMaxBackoff       time.Duration `envconfig:"SYNC_MAX_BACKOFF" validate:"gtefield=SyncBaseBackoff"`
	SurfaceAfterFailures int           `envconfig:"SURFACE_AFTER_FAILURES" validate:"min=1"`

	UploadMode     string `envconfig:"UPLOAD_MODE" validate:"oneof=presigned s3 none"`
	S3AccessKey    string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey    string `envconfig:"S3_SECRET_KEY"`
	S3Bucket       string `envconfig:"S3_BUCKET" validate:"required_if=UploadMode s3"`
	S3Region       string `envconfig:"S3_REGION"`
	S3BaseEndpoint string `envconfig:"S3_BASE_ENDPOINT" validate:"omitempty,url"`

	DebugAddr string `envconfig:"DEBUG_ADDR" validate:"omitempty,hostname_port"`
	LogLevel  string `envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" validate:"oneof=auto text json"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DatabasePath = "fieldline.db"
	c.OnlineCheckInterval = 3 * time.Second

	c.ConnectivitySignal = "probe"
	c.DebounceWindow = 500 * time.Millisecond

	c.PollInterval = 10 * time.Second
	c.DismissAfter = 10 * time.Second
	c.DedupPolicy = "session"
	c.MarkReadRate = 5

	c.SyncBaseBackoff = time.Second
	c.SyncMaxBackoff = time.Minute
	c.SurfaceAfterFailures = 5

	c.UploadMode = "presigned"
	c.S3Bucket = "evidence"
	c.S3Region = "us-east-1"

	c.LogLevel = "info"
	c.LogFormat = "auto"
}

// Load builds a Config from defaults, the JSON file, the environment and
// args (without the program name). Later sources win.
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

// LoadConfig is Load over os.Args.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}
