// Package config loads runtime configuration for the field reporter client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Optional .env file (-env, or ./.env when present) followed by
//     FIELDLINE_* environment variables.
//  4. Command-line flags, which override everything else.
//
// Supported flags
//
//	-a string            address:port of the backend gRPC endpoint
//	-t string            bearer token presented to the backend
//	-d string            path of the local SQLite store
//	-i int               connectivity probe interval (seconds)
//	-p int               notification poll interval (seconds)
//	-signal string       connectivity signal: probe or file
//	-signal-file string  status file watched by the file signal
//	-dedup string        presented-alert policy: session or persistent
//	-upload string       evidence upload mode: presigned, s3 or none
//	-debug string        listen address of the debug HTTP server
//	-log-level string    debug, info, warn or error
//
// # JSON schema
//
// Durations use timex.Duration, so "3s" and integer nanoseconds both work:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "online_check_interval": "3s",
//	  "poll_interval": "10s",
//	  "dedup_policy": "persistent"
//	}
package config
