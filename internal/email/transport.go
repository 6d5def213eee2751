// Package email renders and delivers workflow emails. Rendering is keyed by
// template, delivery goes through a pluggable Transport.
package email

import (
	"context"

	"appraisal_portal_backend/platform/config"
	"appraisal_portal_backend/platform/logger"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Transport delivers a rendered message. Any returned error is treated as a
// delivery failure by the caller.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// NewTransport picks the configured transport: SMTP when email is enabled,
// a logging no-op otherwise.
func NewTransport(cfg config.EmailConfig, log *logger.Logger) Transport {
	if !cfg.GetEmailEnabled() {
		return NewNoopTransport(log)
	}
	return NewSMTPTransport(cfg)
}

// NoopTransport drops messages and logs them. Used when email sending is
// disabled in configuration.
type NoopTransport struct {
	log *logger.Logger
}

func NewNoopTransport(log *logger.Logger) *NoopTransport {
	return &NoopTransport{log: log}
}

func (t *NoopTransport) Send(ctx context.Context, msg Message) error {
	if t.log != nil {
		t.log.Info("email sending disabled, dropping message", "to", msg.To, "subject", msg.Subject)
	}
	return nil
}
