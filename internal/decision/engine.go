package decision

import (
	"fmt"
	"strings"
)

const (
	MinThreatLevel = 0
	MaxThreatLevel = 10
)

// AnalysisResult is the validated output of classifying one clip.
type AnalysisResult struct {
	ThreatLevel int    `json:"threat_level"`
	Description string `json:"description"`
	Transcript  string `json:"transcript,omitempty"`
}

// Clamp forces the threat level into [MinThreatLevel, MaxThreatLevel].
func (r AnalysisResult) Clamp() AnalysisResult {
	r.ThreatLevel = min(max(r.ThreatLevel, MinThreatLevel), MaxThreatLevel)
	return r
}

// Verdict is the alert decision for one clip.
type Verdict struct {
	ClipID      string `json:"clip_id"`
	IsAlert     bool   `json:"is_alert"`
	Severity    int    `json:"severity"`
	Reason      string `json:"reason"`
	Keyword     string `json:"matched_keyword,omitempty"`
	ThreatLevel int    `json:"threat_level"`
	Description string `json:"description"`
}

// Trigger names what raised the alert, for metrics.
func (v Verdict) Trigger() string {
	switch {
	case !v.IsAlert:
		return "none"
	case v.Keyword != "":
		return "keyword"
	default:
		return "threat"
	}
}

type Config struct {
	// ThreatThreshold alerts when the threat level is strictly greater.
	ThreatThreshold int
	Keywords        []string
	// KeywordSeverity is the severity floor for keyword-triggered alerts.
	KeywordSeverity int
}

// Engine is a pure function of its configuration and input.
type Engine struct {
	threshold       int
	keywords        []string
	keywordSeverity int
}

func NewEngine(cfg Config) *Engine {
	kws := make([]string, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kws = append(kws, k)
		}
	}
	return &Engine{
		threshold:       cfg.ThreatThreshold,
		keywords:        kws,
		keywordSeverity: cfg.KeywordSeverity,
	}
}

// Decide never fails. The result is clamped before any comparison.
func (e *Engine) Decide(clipID string, r AnalysisResult) Verdict {
	r = r.Clamp()
	v := Verdict{
		ClipID:      clipID,
		Severity:    r.ThreatLevel,
		ThreatLevel: r.ThreatLevel,
		Description: r.Description,
	}

	var reasons []string
	if r.ThreatLevel > e.threshold {
		v.IsAlert = true
		reasons = append(reasons, fmt.Sprintf("High threat score (%d) detected. Description: %s", r.ThreatLevel, r.Description))
	}

	if kw, ok := e.matchKeyword(r.Transcript); ok {
		v.IsAlert = true
		v.Keyword = kw
		v.Severity = max(v.Severity, e.keywordSeverity)
		reasons = append(reasons, fmt.Sprintf("Alert keyword ('%s') detected in audio.", kw))
	}

	if v.IsAlert {
		v.Reason = strings.Join(reasons, " ")
	} else {
		v.Reason = fmt.Sprintf("Threat score (%d) at or below threshold (%d); no alert keyword in audio.", r.ThreatLevel, e.threshold)
	}
	return v
}

// matchKeyword returns the first configured keyword found in the transcript.
func (e *Engine) matchKeyword(transcript string) (string, bool) {
	if transcript == "" {
		return "", false
	}
	t := strings.ToLower(transcript)
	for _, kw := range e.keywords {
		if strings.Contains(t, kw) {
			return kw, true
		}
	}
	return "", false
}
