package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fintrack/internal/config"
	applog "fintrack/internal/log"
)

func TestRunClosesBackendOnShutdown(t *testing.T) {
	t.Setenv("DATA_BACKEND", config.BackendMemory)
	t.Setenv("EXPORT_INTERVAL", "1h")
	t.Setenv("AMQP_URL", "")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")
	cfg := config.Load()

	var buf bytes.Buffer
	logger := applog.New(applog.Config{Handler: slog.NewTextHandler(&buf, nil)})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.NoError(t, run(ctx, cfg, logger))
	assert.Contains(t, buf.String(), "Backend closed")
}
