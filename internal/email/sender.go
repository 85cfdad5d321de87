// Package email builds and delivers outbound contact messages.
package email

import (
	"context"
	"fmt"
	"net/mail"
)

// Transport is the interface that all delivery backends must implement.
// This abstraction allows swapping providers (SMTP relay, Gmail, SES)
// without changing the dispatch logic.
type Transport interface {
	// Deliver hands one fully encoded message to the backend.
	Deliver(ctx context.Context, env Envelope) error
	// Name identifies the backend in logs.
	Name() string
}

// Envelope is a single delivery: SMTP-level addresses plus the raw RFC 5322 message.
type Envelope struct {
	From string
	To   []string
	Raw  []byte
}

// Addresses holds the fixed sender and recipient of every relayed message.
type Addresses struct {
	From *mail.Address
	To   *mail.Address
}

// ParseAddresses parses the configured sender and recipient. Both accept the
// "Name <addr>" form. An empty recipient falls back to the sender.
func ParseAddresses(from, to string) (Addresses, error) {
	sender, err := mail.ParseAddress(from)
	if err != nil {
		return Addresses{}, fmt.Errorf("invalid sender address %q: %w", from, err)
	}
	if to == "" {
		return Addresses{From: sender, To: sender}, nil
	}
	recipient, err := mail.ParseAddress(to)
	if err != nil {
		return Addresses{}, fmt.Errorf("invalid recipient address %q: %w", to, err)
	}
	return Addresses{From: sender, To: recipient}, nil
}
