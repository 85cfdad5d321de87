package email

import (
	"context"
	"testing"

	"github.com/contactrelay/contactrelay/internal/config"
	"github.com/contactrelay/contactrelay/internal/logger"
)

func TestNewTransport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		configure func(*config.Config)
		want      string
		wantErr   bool
	}{
		{"smtp", func(c *config.Config) { c.Mail.Transport = "smtp"; c.SMTP.Host = "mail.example.com" }, "smtp", false},
		{"smtp without host", func(c *config.Config) { c.Mail.Transport = "smtp" }, "", true},
		{"log", func(c *config.Config) { c.Mail.Transport = "log" }, "log", false},
		{"gmail without credentials", func(c *config.Config) { c.Mail.Transport = "gmail" }, "", true},
		{"unknown", func(c *config.Config) { c.Mail.Transport = "pigeon" }, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Mail.From = "site@example.com"
			tt.configure(cfg)

			tr, err := NewTransport(context.Background(), cfg, logger.Nop())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tr.Name() != tt.want {
				t.Errorf("Name: got %q, want %q", tr.Name(), tt.want)
			}
		})
	}
}

func TestNewDispatcherFromConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Mail.Transport = "log"
	cfg.Mail.From = "Site <site@example.com>"
	cfg.Mail.Attempts = 5

	d, err := NewDispatcherFromConfig(context.Background(), cfg, logger.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.cfg.Attempts != 5 {
		t.Errorf("Attempts: got %d", d.cfg.Attempts)
	}
	if d.cfg.Addresses.To.Address != "site@example.com" {
		t.Errorf("recipient should default to sender, got %q", d.cfg.Addresses.To.Address)
	}

	cfg.Mail.From = "not an address"
	if _, err := NewDispatcherFromConfig(context.Background(), cfg, logger.Nop()); err == nil {
		t.Error("expected error for invalid sender")
	}
}
