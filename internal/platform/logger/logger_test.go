package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "JSON")

	log.Info("identity_created", "identity_id", "STU202400001")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "identity_created", line["msg"])
	assert.Equal(t, "STU202400001", line["identity_id"])
}

func TestNewWithWriter_TextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "text")

	log.Debug("hidden")
	log.Info("sweep", "archive_eligible", 2)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "archive_eligible=2")
}
