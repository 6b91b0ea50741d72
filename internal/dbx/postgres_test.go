package dbx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpenPostgres_PingFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := OpenPostgres(ctx, "postgres://fieldline:x@127.0.0.1:1/fieldline?sslmode=disable&connect_timeout=2")
	require.ErrorContains(t, err, "db ping error")
}
