package email

import (
	"context"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailConfig holds the configuration for the Gmail transport.
type GmailConfig struct {
	// CredentialsJSON is a service account key with domain-wide delegation.
	CredentialsJSON string
	// ClientID, ClientSecret and RefreshToken authorize a personal mailbox
	// when no service account is configured.
	ClientID     string
	ClientSecret string
	RefreshToken string
	// SenderAddress is the mailbox messages are sent from.
	SenderAddress string
}

// GmailTransport implements Transport using the Gmail API.
type GmailTransport struct {
	service *gmail.Service
}

// NewGmailTransport creates a GmailTransport.
// A service account key takes precedence over the refresh token flow.
func NewGmailTransport(ctx context.Context, cfg GmailConfig) (*GmailTransport, error) {
	if cfg.SenderAddress == "" {
		return nil, fmt.Errorf("gmail: sender address is required")
	}

	var opt option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		jwtConfig, err := google.JWTConfigFromJSON([]byte(cfg.CredentialsJSON), gmail.GmailSendScope)
		if err != nil {
			return nil, fmt.Errorf("gmail: failed to parse credentials: %w", err)
		}
		// Impersonate the sender mailbox
		jwtConfig.Subject = cfg.SenderAddress
		opt = option.WithHTTPClient(jwtConfig.Client(ctx))

	case cfg.RefreshToken != "":
		oauthCfg := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailSendScope},
		}
		opt = option.WithHTTPClient(oauthCfg.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken}))

	default:
		return nil, fmt.Errorf("gmail: credentials JSON or refresh token is required")
	}

	svc, err := gmail.NewService(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to create service: %w", err)
	}

	return NewGmailTransportWithService(svc), nil
}

// NewGmailTransportWithService wraps an existing service, used for testing.
func NewGmailTransportWithService(svc *gmail.Service) *GmailTransport {
	return &GmailTransport{service: svc}
}

// Name implements Transport.
func (g *GmailTransport) Name() string { return "gmail" }

// Deliver implements Transport. Gmail derives the envelope from the message
// headers, so only Raw is used.
func (g *GmailTransport) Deliver(ctx context.Context, env Envelope) error {
	msg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(env.Raw),
	}

	if _, err := g.service.Users.Messages.Send("me", msg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail: failed to send email: %w", err)
	}
	return nil
}
