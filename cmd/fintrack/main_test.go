package main

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/config"
	applog "fintrack/internal/log"
)

func TestRunClosesBackendWhenListenFails(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	t.Setenv("DATA_BACKEND", config.BackendMemory)
	t.Setenv("PORT", strconv.Itoa(ln.Addr().(*net.TCPAddr).Port))
	t.Setenv("AMQP_URL", "")
	cfg := config.Load()

	var buf bytes.Buffer
	logger := applog.New(applog.Config{Handler: slog.NewTextHandler(&buf, nil)})

	err = run(context.Background(), cfg, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
	assert.Contains(t, buf.String(), "Backend closed")
}
