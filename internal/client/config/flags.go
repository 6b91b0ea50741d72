package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/flagx"
)

var knownFlags = []string{
	"-a", "-t", "-d", "-i", "-p", "-signal", "-signal-file",
	"-dedup", "-upload", "-debug", "-log-level",
}

// parseFlags overlays cfg with command-line flags. Args not listed in
// knownFlags are ignored so other components can share the command line.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.AccessToken, "t", cfg.AccessToken, "bearer token presented to the server")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path of the local store")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	pollInterval := fs.Int("p", int(cfg.PollInterval.Seconds()), "notification poll interval (in seconds)")
	fs.StringVar(&cfg.ConnectivitySignal, "signal", cfg.ConnectivitySignal, "connectivity signal: probe or file")
	fs.StringVar(&cfg.ConnectivityFile, "signal-file", cfg.ConnectivityFile, "status file for the file signal")
	fs.StringVar(&cfg.DedupPolicy, "dedup", cfg.DedupPolicy, "presented alert policy: session or persistent")
	fs.StringVar(&cfg.UploadMode, "upload", cfg.UploadMode, "evidence upload mode: presigned, s3 or none")
	fs.StringVar(&cfg.DebugAddr, "debug", cfg.DebugAddr, "debug HTTP listen address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	// Second-granular flags only apply when given, so sub-second values from
	// earlier sources survive.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i":
			cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
		case "p":
			cfg.PollInterval = time.Duration(*pollInterval) * time.Second
		}
	})
	return nil
}
