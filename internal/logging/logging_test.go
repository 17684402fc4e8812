package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	flags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(flags)
	})
	return &buf
}

func TestLogWritesJSONLine(t *testing.T) {
	buf := captureLog(t)

	fields := FromContext(WithRequestID(context.Background(), "req-1"))
	fields.TransactionID = 7
	fields.Step = "checkout"
	fields.Status = "ok"
	Log(fields)

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "kasir", got["service"])
	assert.Equal(t, "req-1", got["request_id"])
	assert.Equal(t, float64(7), got["transaction_id"])
	assert.Equal(t, "checkout", got["step"])
	assert.NotEmpty(t, got["timestamp"])
	assert.NotContains(t, got, "error")
}

func TestRequestIDMissing(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))
}
