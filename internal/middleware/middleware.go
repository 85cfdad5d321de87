// Package middleware provides the HTTP middleware chain shared by all routes.
package middleware

import (
	"net/netip"

	"github.com/contactrelay/contactrelay/internal/config"
	"github.com/contactrelay/contactrelay/internal/logger"
	"github.com/contactrelay/contactrelay/internal/ratelimit"
)

// Middleware holds all HTTP middleware
type Middleware struct {
	limiter *ratelimit.Limiter
	log     *logger.Logger
	cfg     *config.Config
	proxies []netip.Prefix
}

// New creates a new Middleware instance. limiter may be nil when rate
// limiting is disabled. An invalid trusted proxy list is logged and treated as
// empty; config.Validate rejects it before the server starts.
func New(limiter *ratelimit.Limiter, log *logger.Logger, cfg *config.Config) *Middleware {
	m := &Middleware{
		limiter: limiter,
		log:     log,
		cfg:     cfg,
	}
	proxies, err := config.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		log.Warn().Err(err).Msg("ignoring invalid server.trusted_proxies")
	}
	m.proxies = proxies
	return m
}
