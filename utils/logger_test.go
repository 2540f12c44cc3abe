package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/CharellKing/ela-reindex/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLogger(t *testing.T) {
	InitLogger(&config.Config{Level: "debug"})
	out := &bytes.Buffer{}
	SetLoggerOutput(out)

	ctx := SetCtxKeyTaskID(context.Background(), "run-1")
	ctx = SetCtxKeySourceIndex(ctx, "logs-001")
	ctx = SetCtxKeyDryRun(ctx, true)
	GetLogger(ctx).Debug("drift found")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &line))
	assert.Equal(t, "drift found", line["msg"])
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "run-1", line[string(CtxKeyTaskID)])
	assert.Equal(t, "logs-001", line[string(CtxKeySourceIndex)])
	assert.Equal(t, true, line[string(CtxKeyDryRun)])
	assert.NotContains(t, line, string(CtxKeyTargetIndex))
}

func TestInitLoggerLevel(t *testing.T) {
	InitLogger(&config.Config{Level: "warn"})
	out := &bytes.Buffer{}
	SetLoggerOutput(out)

	GetLogger(context.Background()).Info("hidden")
	assert.Empty(t, out.String())
	GetLogger(nil).Warn("shown") //nolint:staticcheck
	assert.Contains(t, out.String(), "shown")
}
