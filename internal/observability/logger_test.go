package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, false)
	log.Debug().Msg("hidden")
	log.Info().Str("stage", "extracted").Msg("stage complete")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "stage complete", line["message"])
	assert.Equal(t, "extracted", line["stage"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewJSONLogger_Verbose(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSONLogger(&buf, true)
	log.Debug().Msg("shown")
	assert.Contains(t, buf.String(), `"level":"debug"`)
}
