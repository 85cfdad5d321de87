// Package handler implements the HTTP endpoints.
package handler

import (
	"context"
	"time"

	"github.com/contactrelay/contactrelay/internal/config"
	"github.com/contactrelay/contactrelay/internal/contact"
	"github.com/contactrelay/contactrelay/internal/logger"
	"github.com/contactrelay/contactrelay/internal/model"
)

// Mailer delivers a composed message. *email.Dispatcher implements it.
type Mailer interface {
	Send(ctx context.Context, msg model.OutboundMessage) error
}

// Handler holds all HTTP handlers
type Handler struct {
	log      *logger.Logger
	cfg      *config.Config
	decoder  *contact.Decoder
	composer *contact.Composer
	mailer   Mailer
	now      func() time.Time
}

// New creates a new Handler instance
func New(log *logger.Logger, cfg *config.Config, decoder *contact.Decoder, composer *contact.Composer, mailer Mailer) *Handler {
	return &Handler{
		log:      log,
		cfg:      cfg,
		decoder:  decoder,
		composer: composer,
		mailer:   mailer,
		now:      time.Now,
	}
}
