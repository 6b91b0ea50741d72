package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/flagx"
	"github.com/dmitrijs2005/fieldline/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Intervals
// are timex.Duration so they can be written as "3s". Zero values leave the
// current setting untouched.
type JsonConfig struct {
	ServerEndpointAddr   string         `json:"server_endpoint_addr"`
	AccessToken          string         `json:"access_token"`
	DatabasePath         string         `json:"database_path"`
	OnlineCheckInterval  timex.Duration `json:"online_check_interval"`
	ConnectivitySignal   string         `json:"connectivity_signal"`
	ConnectivityFile     string         `json:"connectivity_file"`
	DebounceWindow       timex.Duration `json:"debounce_window"`
	PollInterval         timex.Duration `json:"poll_interval"`
	DismissAfter         timex.Duration `json:"dismiss_after"`
	DedupPolicy          string         `json:"dedup_policy"`
	MarkReadRate         float64        `json:"mark_read_rate"`
	SyncBaseBackoff      timex.Duration `json:"sync_base_backoff"`
	SyncMaxBackoff       timex.Duration `json:"sync_max_backoff"`
	SurfaceAfterFailures int            `json:"surface_after_failures"`
	UploadMode           string         `json:"upload_mode"`
	S3AccessKey          string         `json:"s3_access_key"`
	S3SecretKey          string         `json:"s3_secret_key"`
	S3Bucket             string         `json:"s3_bucket"`
	S3Region             string         `json:"s3_region"`
	S3BaseEndpoint       string         `json:"s3_base_endpoint"`
	DebugAddr            string         `json:"debug_addr"`
	LogLevel             string         `json:"log_level"`
	LogFormat            string         `json:"log_format"`
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}

// parseJson overlays cfg with the file named by -c / -config, if any.
func parseJson(cfg *Config, args []string) error {
	path, _ := flagx.ConfigFiles(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file[%s]: %w", path, err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("failed to parse config file[%s]: %w", path, err)
	}

	setString(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	setString(&cfg.AccessToken, jc.AccessToken)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setString(&cfg.ConnectivitySignal, jc.ConnectivitySignal)
	setString(&cfg.ConnectivityFile, jc.ConnectivityFile)
	setDuration(&cfg.DebounceWindow, jc.DebounceWindow)
	setDuration(&cfg.PollInterval, jc.PollInterval)
	setDuration(&cfg.DismissAfter, jc.DismissAfter)
	setString(&cfg.DedupPolicy, jc.DedupPolicy)
	if jc.MarkReadRate != 0 {
		cfg.MarkReadRate = jc.MarkReadRate
	}
	setDuration(&cfg.SyncBaseBackoff, jc.SyncBaseBackoff)
	setDuration(&cfg.SyncMaxBackoff, jc.SyncMaxBackoff)
	if jc.SurfaceAfterFailures != 0 {
		cfg.SurfaceAfterFailures = jc.SurfaceAfterFailures
	}
	setString(&cfg.UploadMode, jc.UploadMode)
	setString(&cfg.S3AccessKey, jc.S3AccessKey)
	setString(&cfg.S3SecretKey, jc.S3SecretKey)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setString(&cfg.DebugAddr, jc.DebugAddr)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)
	return nil
}
