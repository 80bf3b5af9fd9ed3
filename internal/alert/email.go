package alert

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EmailSender sends one HTML email with an optional file attachment.
type EmailSender interface {
	Send(ctx context.Context, recipient, subject, htmlBody, attachmentPath string) error
}

// SendGridEmail sends mail through the SendGrid v3 API.
type SendGridEmail struct {
	BaseURL string
	APIKey  string
	From    string
	Client  *http.Client
}

func NewSendGridEmail(apiKey, from string) *SendGridEmail {
	return &SendGridEmail{
		BaseURL: "https://api.sendgrid.com",
		APIKey:  apiKey,
		From:    from,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type sgAddress struct {
	Email string `json:"email"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgAttachment struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	Type        string `json:"type"`
	Disposition string `json:"disposition"`
}

type sgMail struct {
	Personalizations []struct {
		To []sgAddress `json:"to"`
	} `json:"personalizations"`
	From        sgAddress      `json:"from"`
	Subject     string         `json:"subject"`
	Content     []sgContent    `json:"content"`
	Attachments []sgAttachment `json:"attachments,omitempty"`
}

func (s *SendGridEmail) Send(ctx context.Context, recipient, subject, htmlBody, attachmentPath string) error {
	mail := sgMail{
		From:    sgAddress{Email: s.From},
		Subject: subject,
		Content: []sgContent{{Type: "text/html", Value: htmlBody}},
	}
	mail.Personalizations = make([]struct {
		To []sgAddress `json:"to"`
	}, 1)
	mail.Personalizations[0].To = []sgAddress{{Email: recipient}}

	// A missing attachment doesn't block the alert; the mail goes out without it.
	if attachmentPath != "" {
		if data, err := os.ReadFile(attachmentPath); err == nil {
			mail.Attachments = []sgAttachment{{
				Content:     base64.StdEncoding.EncodeToString(data),
				Filename:    filepath.Base(attachmentPath),
				Type:        "image/jpeg",
				Disposition: "attachment",
			}}
		}
	}

	payload, err := json.Marshal(mail)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.BaseURL, "/")+"/v3/mail/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// EmailChannel mails every recipient, attaching the job's keyframe.
type EmailChannel struct {
	sender     EmailSender
	recipients []string
	retries    int
}

func NewEmailChannel(sender EmailSender, recipients []string, retries int) *EmailChannel {
	return &EmailChannel{sender: sender, recipients: recipients, retries: retries}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, j Job) error {
	body, err := EmailHTML(j)
	if err != nil {
		return &TransportError{Channel: c.Name(), Err: err}
	}

	var errs []error
	for _, to := range c.recipients {
		err := retry(ctx, c.retries, func() error {
			return c.sender.Send(ctx, to, EmailSubject, body, j.AttachmentPath)
		})
		if err != nil {
			errs = append(errs, &TransportError{Channel: c.Name(), Recipient: to, Err: err})
		}
	}
	return errors.Join(errs...)
}
