package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func defaultEngine() *Engine {
	return NewEngine(Config{
		ThreatThreshold: 7,
		Keywords:        []string{"help", "stop", "get away", "danger", "assault", "kidnap"},
		KeywordSeverity: 8,
	})
}

func TestDecide(t *testing.T) {
	e := defaultEngine()

	tests := []struct {
		name     string
		in       AnalysisResult
		alert    bool
		severity int
		keyword  string
	}{
		{"above threshold", AnalysisResult{ThreatLevel: 9, Description: "fight"}, true, 9, ""},
		{"at threshold", AnalysisResult{ThreatLevel: 7}, false, 7, ""},
		{"low, no keyword", AnalysisResult{ThreatLevel: 3, Transcript: "nice weather"}, false, 3, ""},
		{"keyword alone", AnalysisResult{ThreatLevel: 0, Transcript: "somebody HELP me"}, true, 8, "help"},
		{"keyword and high threat", AnalysisResult{ThreatLevel: 10, Transcript: "get away from me"}, true, 10, "get away"},
		{"out of range clamps", AnalysisResult{ThreatLevel: 42}, true, 10, ""},
		{"negative clamps", AnalysisResult{ThreatLevel: -3}, false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := e.Decide("clip-1", tt.in)
			assert.Equal(t, "clip-1", v.ClipID)
			assert.Equal(t, tt.alert, v.IsAlert)
			assert.Equal(t, tt.severity, v.Severity)
			assert.Equal(t, tt.keyword, v.Keyword)
			assert.NotEmpty(t, v.Reason)
		})
	}
}

func TestDecide_Reasons(t *testing.T) {
	e := defaultEngine()

	v := e.Decide("c", AnalysisResult{ThreatLevel: 9, Description: "Two people fighting."})
	assert.Equal(t, "High threat score (9) detected. Description: Two people fighting.", v.Reason)
	assert.Equal(t, "threat", v.Trigger())

	v = e.Decide("c", AnalysisResult{ThreatLevel: 1, Transcript: "please stop"})
	assert.Equal(t, "Alert keyword ('stop') detected in audio.", v.Reason)
	assert.Equal(t, "keyword", v.Trigger())

	assert.Equal(t, "none", e.Decide("c", AnalysisResult{}).Trigger())
}

func TestDecide_KeywordOrder(t *testing.T) {
	e := defaultEngine()
	// "danger" appears first in the transcript, "help" first in the keyword list.
	v := e.Decide("c", AnalysisResult{Transcript: "danger, help"})
	assert.Equal(t, "help", v.Keyword)
}

func TestDecide_Deterministic(t *testing.T) {
	e := defaultEngine()
	in := AnalysisResult{ThreatLevel: 8, Description: "x", Transcript: "assault"}
	assert.Equal(t, e.Decide("c", in), e.Decide("c", in))
}

func TestNewEngine_NormalizesKeywords(t *testing.T) {
	e := NewEngine(Config{ThreatThreshold: 10, Keywords: []string{"  FIRE ", ""}, KeywordSeverity: 5})
	assert.Equal(t, []string{"fire"}, e.keywords)

	v := e.Decide("c", AnalysisResult{ThreatLevel: 7, Transcript: "Fire!"})
	assert.True(t, v.IsAlert)
	assert.Equal(t, 7, v.Severity)
}
