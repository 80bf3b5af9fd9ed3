package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/technosupport/sentinel/internal/decision"
)

// Classifier scores keyframes (JPEG bytes) and an optional transcript.
type Classifier interface {
	Classify(ctx context.Context, keyframes [][]byte, transcript string) (decision.AnalysisResult, error)
}

// Prompt is sent with every classification request.
const Prompt = `Analyze this sequence of video frames for a public safety threat.
Is a person showing clear signs of distress, struggling against another person,
being forcibly moved, or being abducted?
Respond ONLY in JSON format with two keys:
1. 'threat_level': An integer from 1 to 10, where 1 is no threat and 10 is a definite, severe assault or abduction.
2. 'description': A brief, 20-word summary of the action.
Example response: {"threat_level": 8, "description": "A person is being forcibly dragged by another individual towards a vehicle against their will."}`

// maxResponseBytes caps how much of a classifier response is read.
const maxResponseBytes = 1 << 20

// HTTPClassifier posts keyframes to a vision model gateway as JSON.
type HTTPClassifier struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPClassifier(url, apiKey string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

type classifyRequest struct {
	Prompt     string   `json:"prompt"`
	Images     []string `json:"images"`
	Transcript string   `json:"transcript,omitempty"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, keyframes [][]byte, transcript string) (decision.AnalysisResult, error) {
	req := classifyRequest{Prompt: Prompt, Transcript: transcript}
	for _, kf := range keyframes {
		req.Images = append(req.Images, base64.StdEncoding.EncodeToString(kf))
	}
	body, err := json.Marshal(req)
	if err != nil {
		return decision.AnalysisResult{}, classifierErr(KindTransport, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return decision.AnalysisResult{}, classifierErr(KindTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return decision.AnalysisResult{}, classifierErr(KindTimeout, err)
		}
		return decision.AnalysisResult{}, classifierErr(KindTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return decision.AnalysisResult{}, classifierErr(KindTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return decision.AnalysisResult{}, classifierErr(KindQuota, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout:
		return decision.AnalysisResult{}, classifierErr(KindTimeout, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return decision.AnalysisResult{}, classifierErr(KindTransport, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 200)))
	}

	return ParseResult(data)
}

// ParseResult validates untrusted classifier output. It accepts either the
// bare result object or a {"text": "..."} envelope whose text holds the
// object, optionally wrapped in markdown code fences.
func ParseResult(data []byte) (decision.AnalysisResult, error) {
	var envelope struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Text != nil {
		data = []byte(stripFences(*envelope.Text))
	}

	var raw struct {
		ThreatLevel *json.Number `json:"threat_level"`
		Description *string      `json:"description"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return decision.AnalysisResult{}, classifierErr(KindMalformed, err)
	}
	if raw.ThreatLevel == nil {
		return decision.AnalysisResult{}, classifierErr(KindMalformed, errors.New("missing threat_level"))
	}
	if raw.Description == nil {
		return decision.AnalysisResult{}, classifierErr(KindMalformed, errors.New("missing description"))
	}

	level, err := raw.ThreatLevel.Float64()
	if err != nil || math.IsNaN(level) || math.IsInf(level, 0) {
		return decision.AnalysisResult{}, classifierErr(KindMalformed, fmt.Errorf("threat_level %q is not a number", raw.ThreatLevel.String()))
	}

	res := decision.AnalysisResult{
		ThreatLevel: int(math.Round(math.Max(math.Min(level, decision.MaxThreatLevel), decision.MinThreatLevel))),
		Description: strings.TrimSpace(*raw.Description),
	}
	return res.Clamp(), nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
