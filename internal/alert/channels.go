package alert

import (
	"log/slog"

	"github.com/technosupport/sentinel/internal/config"
	"github.com/technosupport/sentinel/internal/platform/logger"
)

// ChannelsFromConfig builds every fully configured channel. Incomplete
// channels are skipped with a log line. pub may be nil when NATS is not in use.
func ChannelsFromConfig(cfg config.AlertConfig, pub Publisher, log *slog.Logger) []Channel {
	log = logger.Component(log, "alert")
	var out []Channel

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioPhoneNumber != "" && len(cfg.RecipientPhoneNumbers) > 0 {
		sms := NewTwilioSMS(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber)
		out = append(out, NewSMSChannel(sms, cfg.RecipientPhoneNumbers, cfg.RetryLimit))
	} else {
		skip(log, "sms", "Twilio is not fully configured")
	}

	if cfg.SendGridAPIKey != "" && cfg.FromEmail != "" && len(cfg.ToEmails) > 0 {
		mail := NewSendGridEmail(cfg.SendGridAPIKey, cfg.FromEmail)
		out = append(out, NewEmailChannel(mail, cfg.ToEmails, cfg.RetryLimit))
	} else {
		skip(log, "email", "SendGrid is not fully configured")
	}

	if pub != nil && cfg.NATSSubject != "" {
		out = append(out, NewNATSChannel(pub, cfg.NATSSubject, cfg.RetryLimit))
	} else {
		skip(log, "nats", "NATS_URL not set")
	}

	return out
}

func skip(log *slog.Logger, channel, why string) {
	log.Info("alert channel disabled", "channel", channel, "reason", why)
}
