package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New("warn", false, &buf)

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_JSONAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := New("debug", true, &buf)

	log.WithComponent("relay").WithMedia("movie", "42").Info("resolved")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "resolved", entry["msg"])
	assert.Equal(t, "relay", entry["component"])
	assert.Equal(t, "movie", entry["kind"])
	assert.Equal(t, "42", entry["media_id"])
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	log := New("info", false, &buf).WithRequestID("abc")

	ctx := log.WithContext(context.Background())
	FromContext(ctx).Info("hello")

	assert.Contains(t, buf.String(), "request_id=abc")
}

func TestNewFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	w, closer := NewFileWriter(FileOptions{Path: path, MaxSizeMB: 1})

	log := New("info", false, w)
	log.Info("written to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}
