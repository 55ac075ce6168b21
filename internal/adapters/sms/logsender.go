package sms

import (
	"context"
	"log/slog"

	"github.com/tiffinlabs/tiffin-auth/internal/ports"
)

// LogSender writes outbound messages to the log instead of a gateway. It is
// the development stand-in when no gateway credentials are configured; the
// logged OTP is what a developer types into the verify form.
type LogSender struct {
	logger *slog.Logger
}

var _ ports.MessageSender = (*LogSender)(nil)

// NewLogSender builds a sender that reports every message delivered.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the message and reports delivery.
func (s *LogSender) Send(ctx context.Context, msg ports.Message) (bool, error) {
	s.logger.InfoContext(ctx, "sms (log only)",
		"to", msg.To.String(),
		"template", msg.TemplateID,
		"vars", msg.Vars,
	)
	return true, nil
}
