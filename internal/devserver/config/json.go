package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/fieldline/internal/flagx"
	"github.com/dmitrijs2005/fieldline/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations accept "90s" or
// integer nanoseconds. Empty values keep the current setting.
type JsonConfig struct {
	EndpointAddrGRPC  string         `json:"endpoint_addr_grpc"`
	DatabaseDSN       string         `json:"database_dsn"`
	SecretKey         string         `json:"secret_key"`
	TokenValidity     timex.Duration `json:"token_validity"`
	DeviceID          string         `json:"device_id"`
	S3AccessKey       string         `json:"s3_access_key"`
	S3SecretKey       string         `json:"s3_secret_key"`
	S3Bucket          string         `json:"s3_bucket"`
	S3Region          string         `json:"s3_region"`
	S3BaseEndpoint    string         `json:"s3_base_endpoint"`
	DemoAlertInterval timex.Duration `json:"demo_alert_interval"`
	LogLevel          string         `json:"log_level"`
	LogFormat         string         `json:"log_format"`
}

func parseJson(cfg *Config, args []string) error {
	path, _ := flagx.ConfigFiles(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file[%s]: %w", path, err)
	}
	var c JsonConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("failed to parse config file[%s]: %w", path, err)
	}

	for dst, v := range map[*string]string{
		&cfg.EndpointAddrGRPC: c.EndpointAddrGRPC,
		&cfg.DatabaseDSN:      c.DatabaseDSN,
		&cfg.SecretKey:        c.SecretKey,
		&cfg.DeviceID:         c.DeviceID,
		&cfg.S3AccessKey:      c.S3AccessKey,
		&cfg.S3SecretKey:      c.S3SecretKey,
		&cfg.S3Bucket:         c.S3Bucket,
		&cfg.S3Region:         c.S3Region,
		&cfg.S3BaseEndpoint:   c.S3BaseEndpoint,
		&cfg.LogLevel:         c.LogLevel,
		&cfg.LogFormat:        c.LogFormat,
	} {
		if v != "" {
			*dst = v
		}
	}
	if c.TokenValidity.Duration != 0 {
		cfg.TokenValidity = c.TokenValidity.Duration
	}
	if c.DemoAlertInterval.Duration != 0 {
		cfg.DemoAlertInterval = c.DemoAlertInterval.Duration
	}
	return nil
}
