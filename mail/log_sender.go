package mail

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender records that a code was issued without delivering it anywhere.
// Development fallback for when no Postmark credentials are configured.
// The code itself is never written to the log.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendOTP(_ context.Context, recipientEmail, handle, _ string) error {
	s.logger.Info().
		Str("recipient", recipientEmail).
		Str("handle", handle).
		Msg("otp mail suppressed (no mail provider configured)")
	return nil
}
