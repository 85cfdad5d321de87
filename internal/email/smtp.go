package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// STARTTLS policies.
const (
	StartTLSAuto   = "auto"
	StartTLSAlways = "always"
	StartTLSNever  = "never"
)

// SMTPConfig holds the relay connection parameters.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// Domain is the name announced in EHLO. Empty means "localhost".
	Domain string
	// StartTLS is one of auto, always or never.
	StartTLS    string
	ImplicitTLS bool
	// InsecureSkipVerify disables certificate checks. Only for local relays.
	InsecureSkipVerify bool
	CommandTimeout     time.Duration
}

// SMTPTransport delivers messages through an SMTP relay. A new connection is
// opened for every delivery.
type SMTPTransport struct {
	cfg SMTPConfig
}

// NewSMTPTransport creates an SMTPTransport.
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp: host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	switch cfg.StartTLS {
	case "":
		cfg.StartTLS = StartTLSAuto
	case StartTLSAuto, StartTLSAlways, StartTLSNever:
	default:
		return nil, fmt.Errorf("smtp: unknown starttls policy %q", cfg.StartTLS)
	}
	if cfg.Domain == "" {
		cfg.Domain = "localhost"
	}
	return &SMTPTransport{cfg: cfg}, nil
}

// Name implements Transport.
func (t *SMTPTransport) Name() string { return "smtp" }

// Addr returns host:port of the relay.
func (t *SMTPTransport) Addr() string {
	return net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
}

// Deliver implements Transport.
func (t *SMTPTransport) Deliver(ctx context.Context, env Envelope) error {
	c, release, err := t.connect(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := c.SendMail(env.From, env.To, bytes.NewReader(env.Raw)); err != nil {
		return fmt.Errorf("smtp: send failed: %w", err)
	}
	if err := c.Quit(); err != nil {
		return fmt.Errorf("smtp: quit failed: %w", err)
	}
	return nil
}

// Check opens a session, negotiates TLS and authenticates without sending anything.
func (t *SMTPTransport) Check(ctx context.Context) error {
	c, release, err := t.connect(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := c.Noop(); err != nil {
		return fmt.Errorf("smtp: noop failed: %w", err)
	}
	return c.Quit()
}

// connect dials the relay and runs EHLO, STARTTLS and AUTH. The client is
// closed when ctx is done or when release is called.
func (t *SMTPTransport) connect(ctx context.Context) (*smtp.Client, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	tlsConfig := &tls.Config{
		ServerName:         t.cfg.Host,
		InsecureSkipVerify: t.cfg.InsecureSkipVerify, //nolint:gosec // opt-in for local relays
	}

	var (
		c   *smtp.Client
		err error
	)
	if t.cfg.ImplicitTLS {
		c, err = smtp.DialTLS(t.Addr(), tlsConfig)
	} else {
		c, err = smtp.Dial(t.Addr())
	}
	if err != nil {
		return nil, nil, fmt.Errorf("smtp: dial %s: %w", t.Addr(), err)
	}
	if t.cfg.CommandTimeout > 0 {
		c.CommandTimeout = t.cfg.CommandTimeout
		c.SubmissionTimeout = t.cfg.CommandTimeout
	}

	stop := context.AfterFunc(ctx, func() { c.Close() })
	release := func() {
		stop()
		c.Close()
	}
	ok := false
	defer func() {
		if !ok {
			release()
		}
	}()

	if err := c.Hello(t.cfg.Domain); err != nil {
		return nil, nil, fmt.Errorf("smtp: hello: %w", err)
	}

	if !t.cfg.ImplicitTLS && t.cfg.StartTLS != StartTLSNever {
		supported, _ := c.Extension("STARTTLS")
		switch {
		case supported:
			if err := c.StartTLS(tlsConfig); err != nil {
				return nil, nil, fmt.Errorf("smtp: starttls: %w", err)
			}
		case t.cfg.StartTLS == StartTLSAlways:
			return nil, nil, errors.New("smtp: server does not support STARTTLS")
		}
	}

	if t.cfg.Username != "" {
		auth := sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)
		if err := c.Auth(auth); err != nil {
			return nil, nil, fmt.Errorf("smtp: auth: %w", err)
		}
	}

	ok = true
	return c, release, nil
}
