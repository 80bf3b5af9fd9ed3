package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/sentinel/internal/analysis"
	"github.com/technosupport/sentinel/internal/config"
	"github.com/technosupport/sentinel/internal/decision"
)

func decide(t *testing.T, input string) decision.Verdict {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, runDecide(strings.NewReader(input), &out, config.Default().Decision, "cli-1"))

	var v decision.Verdict
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	return v
}

func TestRunDecide(t *testing.T) {
	v := decide(t, `{"threat_level": 9, "description": "fight"}`)
	assert.True(t, v.IsAlert)
	assert.Equal(t, "cli-1", v.ClipID)
	assert.Equal(t, 9, v.Severity)

	v = decide(t, `{"threat_level": 3, "description": "walking"}`)
	assert.False(t, v.IsAlert)

	v = decide(t, `{"threat_level": 0, "description": "quiet", "transcript": "Somebody HELP"}`)
	assert.True(t, v.IsAlert)
	assert.Equal(t, "help", v.Keyword)
}

func TestRunDecide_RejectsMalformed(t *testing.T) {
	err := runDecide(strings.NewReader(`{"description": "no score"}`), &bytes.Buffer{}, config.Default().Decision, "x")
	require.Error(t, err)
	assert.Equal(t, analysis.KindMalformed, analysis.KindOf(err))
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "capture", "decide"}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}
