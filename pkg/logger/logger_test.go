package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextFieldsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(io.Discard) })

	ctx := WithRunID(WithTraceID(context.Background(), "trace-1"), "run-9")
	Info(ctx, "navigated to %s", "https://app.example.com")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "run-9", entry["run_id"])
	assert.Contains(t, entry["msg"], "navigated to https://app.example.com")
	assert.Contains(t, entry["msg"], "[TestContextFieldsAreLogged]")
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetRunID(ctx))

	ctx = WithRunID(ctx, "abc")
	assert.Equal(t, "abc", GetRunID(ctx))
}
