package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_attrsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{ServiceName: "authflow", Environment: "test", Level: "warn"}, &buf)

	logger.Info("dropped")
	assert.Zero(t, buf.Len(), "info must be filtered at warn level")

	logger.Warn("kept", "k", "v")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "authflow", line["service"])
	assert.Equal(t, "test", line["env"])
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "v", line["k"])
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "jo**@example.com", MaskEmail("john@example.com"))
	assert.Equal(t, "**@x.com", MaskEmail("ab@x.com"))
	assert.Equal(t, "*@x.com", MaskEmail("a@x.com"))
	assert.Equal(t, "****", MaskEmail("not-an-email"))
	assert.Equal(t, "****", MaskEmail("@x.com"))
}
