package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected  *Config
		name      string
		args      []string
		expectErr bool
	}{
		{name: "all flags", args: []string{"-a", "127.0.0.1:9090", "-t", "tok", "-i", "10", "-p", "15", "-d", "x.db",
			"-signal", "file", "-signal-file", "/tmp/net", "-dedup", "persistent", "-upload", "s3",
			"-debug", "127.0.0.1:6060", "-log-level", "debug"},
			expected: &Config{ServerEndpointAddr: "127.0.0.1:9090", AccessToken: "tok", OnlineCheckInterval: 10 * time.Second,
				PollInterval: 15 * time.Second, DatabasePath: "x.db", ConnectivitySignal: "file",
				ConnectivityFile: "/tmp/net", DedupPolicy: "persistent", UploadMode: "s3",
				DebugAddr: "127.0.0.1:6060", LogLevel: "debug"}},
		{name: "unset interval flags keep sub-second values", args: []string{"-a", "h:1"},
			expected: &Config{ServerEndpointAddr: "h:1", OnlineCheckInterval: 1500 * time.Millisecond}},
		{name: "incorrect check interval", args: []string{"-i", "abc"}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{OnlineCheckInterval: 1500 * time.Millisecond}

			err := parseFlags(config, tt.args)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.expected.OnlineCheckInterval == 0 {
				tt.expected.OnlineCheckInterval = 1500 * time.Millisecond
			}
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
