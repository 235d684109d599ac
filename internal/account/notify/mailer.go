// Package notify is the outbound message capability consumed by the account
// lifecycle service. Delivery is fire and forget: the lifecycle operations
// must not fail because a message could not be handed off.
package notify

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/brightlake/identity/pkg/slogx"
)

// Kind names the message being sent so a real dispatcher can pick the
// right template.
type Kind string

const (
	KindConfirmation  Kind = "confirmation"
	KindPasswordReset Kind = "password-reset"
	KindEmailChange   Kind = "email-change"
)

// Mailer hands a verification code off to an external dispatcher.
type Mailer interface {
	Send(ctx context.Context, to string, code string, kind Kind) error
}

// LogMailer writes messages to the structured log instead of a mail
// provider. It throttles output so a misbehaving caller cannot flood the
// log; a throttled message is dropped, not queued.
type LogMailer struct {
	limiter *rate.Limiter
}

func NewLogMailer() *LogMailer {
	return &LogMailer{
		// One message a second with a small burst headroom.
		limiter: rate.NewLimiter(rate.Limit(1), 10),
	}
}

func (m *LogMailer) Send(ctx context.Context, to string, code string, kind Kind) error {
	log := slogx.FromContext(ctx)
	if !m.limiter.Allow() {
		log.Warn("mail throttled, dropping message",
			slog.String("to", to),
			slog.String("kind", string(kind)),
		)
		return nil
	}

	log.Info("outbound mail",
		slog.String("to", to),
		slog.String("kind", string(kind)),
		slog.String("code", code),
	)
	return nil
}
