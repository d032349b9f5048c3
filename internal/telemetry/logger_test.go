package telemetry

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalLogger_HonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLocalLogger(&buf, "warn")

	logger.Info("schema ready")
	assert.Zero(t, buf.Len())

	logger.Warn("slow migration")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "slow migration", entry["msg"])
}
