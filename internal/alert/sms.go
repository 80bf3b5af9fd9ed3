package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SMSSender sends one text message.
type SMSSender interface {
	Send(ctx context.Context, recipient, body string) error
}

// TwilioSMS sends messages through the Twilio REST API.
type TwilioSMS struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	From       string
	Client     *http.Client
}

func NewTwilioSMS(accountSID, authToken, from string) *TwilioSMS {
	return &TwilioSMS{
		BaseURL:    "https://api.twilio.com",
		AccountSID: accountSID,
		AuthToken:  authToken,
		From:       from,
		Client:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *TwilioSMS) Send(ctx context.Context, recipient, body string) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", strings.TrimRight(t.BaseURL, "/"), url.PathEscape(t.AccountSID))
	form := url.Values{}
	form.Set("To", recipient)
	form.Set("From", t.From)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(t.AccountSID, t.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("twilio status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// SMSChannel texts every recipient, retrying each independently.
type SMSChannel struct {
	sender     SMSSender
	recipients []string
	retries    int
}

func NewSMSChannel(sender SMSSender, recipients []string, retries int) *SMSChannel {
	return &SMSChannel{sender: sender, recipients: recipients, retries: retries}
}

func (c *SMSChannel) Name() string { return "sms" }

func (c *SMSChannel) Send(ctx context.Context, j Job) error {
	body := SMSBody(j)
	var errs []error
	for _, to := range c.recipients {
		err := retry(ctx, c.retries, func() error {
			return c.sender.Send(ctx, to, body)
		})
		if err != nil {
			errs = append(errs, &TransportError{Channel: c.Name(), Recipient: to, Err: err})
		}
	}
	return errors.Join(errs...)
}
