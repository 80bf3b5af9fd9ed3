package alert

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/technosupport/sentinel/internal/decision"
)

const (
	TimestampLayout = "2006-01-02 15:04:05 MST"
	EmailSubject    = "[CRITICAL] Sentinel AI - Automated Threat Alert"

	// maxSummaryLen keeps the SMS body within three segments.
	maxSummaryLen      = 450
	defaultDescription = "A potential threat was detected."
)

// Incident carries what the dispatcher needs to know about the clip.
type Incident struct {
	ClipID    string
	TriggerAt time.Time
	// Location from clip metadata; empty means resolve it.
	Location       string
	AttachmentPath string
}

// Job is one alert, fanned out to every configured channel.
type Job struct {
	ClipID         string    `json:"clip_id"`
	Summary        string    `json:"summary"`
	Reason         string    `json:"reason"`
	Severity       int       `json:"severity"`
	Keyword        string    `json:"matched_keyword,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Location       string    `json:"location"`
	ClipRef        string    `json:"clip_ref"`
	AttachmentPath string    `json:"-"`
}

func (j Job) FormattedTime() string {
	return j.Timestamp.Format(TimestampLayout)
}

// NewJob composes the alert for a verdict.
func NewJob(v decision.Verdict, inc Incident, location string, now time.Time) Job {
	ts := inc.TriggerAt
	if ts.IsZero() {
		ts = now
	}
	desc := strings.TrimSpace(v.Description)
	if desc == "" {
		desc = defaultDescription
	}

	summary := fmt.Sprintf("EMERGENCY ALERT: High-threat event detected at %s on %s. Description: %s",
		location, ts.Format(TimestampLayout), desc)
	if v.Keyword != "" {
		summary += fmt.Sprintf(" Keyword heard: '%s'.", v.Keyword)
	}

	return Job{
		ClipID:         v.ClipID,
		Summary:        clampText(summary, maxSummaryLen),
		Reason:         v.Reason,
		Severity:       v.Severity,
		Keyword:        v.Keyword,
		Timestamp:      ts,
		Location:       location,
		ClipRef:        "clip:" + v.ClipID,
		AttachmentPath: inc.AttachmentPath,
	}
}

func clampText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// SMSBody renders the text message for a job.
func SMSBody(j Job) string {
	return fmt.Sprintf("[Sentinel AI Alert]\n%s\n\nTime: %s\nLocation: %s\nRef: %s",
		j.Summary, j.FormattedTime(), j.Location, j.ClipRef)
}

var emailTmpl = template.Must(template.New("email").Parse(`
<h3>Sentinel AI - High Priority Threat Alert</h3>
<p>An automated threat detection system has identified a potential public safety incident.</p>

<p><strong>Time of Event:</strong> {{.Time}}</p>
<p><strong>Approximate Location:</strong> {{.Location}}</p>
<p><strong>Severity:</strong> {{.Severity}}/10</p>

<p><strong>Generated Alert Message:</strong></p>
<blockquote style='border-left: 4px solid #cc0000; padding-left: 10px; margin-left: 5px;'>
  {{range $i, $line := .Lines}}{{if $i}}<br>{{end}}{{$line}}{{end}}
</blockquote>
<p><strong>Reason:</strong> {{.Reason}}</p>
{{if .HasAttachment}}<p>A keyframe from the event is attached to this email for your review.</p>{{end}}
<p><strong>Clip reference:</strong> <code>{{.ClipRef}}</code></p>
<hr>
<p><em>This is an automated message. Please review the evidence immediately.</em></p>
`))

// EmailHTML renders the HTML body for a job. All fields are escaped.
func EmailHTML(j Job) (string, error) {
	var buf bytes.Buffer
	err := emailTmpl.Execute(&buf, map[string]any{
		"Time":          j.FormattedTime(),
		"Location":      j.Location,
		"Severity":      j.Severity,
		"Lines":         strings.Split(j.Summary, "\n"),
		"Reason":        j.Reason,
		"HasAttachment": j.AttachmentPath != "",
		"ClipRef":       j.ClipRef,
	})
	if err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}
