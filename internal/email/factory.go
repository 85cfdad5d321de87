package email

import (
	"context"
	"fmt"

	"github.com/contactrelay/contactrelay/internal/config"
	"github.com/contactrelay/contactrelay/internal/logger"
)

// NewTransport builds the delivery backend selected by cfg.Mail.Transport.
func NewTransport(ctx context.Context, cfg *config.Config, log *logger.Logger) (Transport, error) {
	switch cfg.Mail.Transport {
	case "smtp", "":
		smtpCfg := SMTPConfig{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			Domain:             cfg.SMTP.Domain,
			StartTLS:           cfg.SMTP.StartTLS,
			ImplicitTLS:        cfg.SMTP.ImplicitTLS,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
			CommandTimeout:     cfg.Mail.AttemptTimeout,
		}
		if cfg.SMTP.AuthEnabled() {
			smtpCfg.Username = cfg.SMTP.User
			smtpCfg.Password = cfg.SMTP.Password
		}
		return NewSMTPTransport(smtpCfg)

	case "gmail":
		addrs, err := ParseAddresses(cfg.Mail.From, "")
		if err != nil {
			return nil, err
		}
		return NewGmailTransport(ctx, GmailConfig{
			CredentialsJSON: cfg.Gmail.CredentialsJSON,
			ClientID:        cfg.Gmail.ClientID,
			ClientSecret:    cfg.Gmail.ClientSecret,
			RefreshToken:    cfg.Gmail.RefreshToken,
			SenderAddress:   addrs.From.Address,
		})

	case "ses":
		return NewSESTransport(ctx, SESConfig{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
		})

	case "log":
		return NewLogTransport(log), nil

	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Mail.Transport)
	}
}

// NewDispatcherFromConfig builds the configured transport and wraps it in a Dispatcher.
func NewDispatcherFromConfig(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Dispatcher, error) {
	addrs, err := ParseAddresses(cfg.Mail.From, cfg.Mail.To)
	if err != nil {
		return nil, err
	}

	transport, err := NewTransport(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	return NewDispatcher(transport, DispatcherConfig{
		Addresses:      addrs,
		Attempts:       cfg.Mail.Attempts,
		BaseDelay:      cfg.Mail.BaseDelay,
		AttemptTimeout: cfg.Mail.AttemptTimeout,
		SpoolDir:       cfg.Mail.SpoolDir,
	}, log), nil
}
