package email

import (
	"context"
	"errors"
)

var ErrNoRecipient = errors.New("email recipient is empty")

// Provider delivers one plain text message.
type Provider interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NoOpProvider accepts every message and delivers nothing. It is used when
// SMTP is not configured.
type NoOpProvider struct{}

func (NoOpProvider) Send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return ErrNoRecipient
	}
	return nil
}
