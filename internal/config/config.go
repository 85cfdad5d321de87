package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	App       AppConfig       `mapstructure:"app" yaml:"app"`
	Site      SiteConfig      `mapstructure:"site" yaml:"site"`
	Limits    LimitsConfig    `mapstructure:"limits" yaml:"limits"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Mail      MailConfig      `mapstructure:"mail" yaml:"mail"`
	SMTP      SMTPConfig      `mapstructure:"smtp" yaml:"smtp"`
	Gmail     GmailConfig     `mapstructure:"gmail" yaml:"gmail"`
	SES       SESConfig       `mapstructure:"ses" yaml:"ses"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	// CORSOrigins lists allowed origins; "*" allows any.
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
	// TrustedProxies lists CIDRs or addresses whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means the peer address is used.
	TrustedProxies []string `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ParseTrustedProxies turns CIDRs and bare addresses into prefixes.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig identifies the running service in "/" responses and the test page
type AppConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Version string `mapstructure:"version" yaml:"version"`
}

// SiteConfig controls how outgoing messages are labelled
type SiteConfig struct {
	// Name appears in the body header line ("New message from <Name> contact form").
	Name string `mapstructure:"name" yaml:"name"`
	// Tag is the bracketed subject prefix.
	Tag string `mapstructure:"tag" yaml:"tag"`
	// DefaultSubject replaces a missing submission subject.
	DefaultSubject string `mapstructure:"default_subject" yaml:"default_subject"`
}

// LimitsConfig holds attachment policy
type LimitsConfig struct {
	MaxAttachmentBytes int64    `mapstructure:"max_attachment_bytes" yaml:"max_attachment_bytes"`
	AllowedExtensions  []string `mapstructure:"allowed_extensions" yaml:"allowed_extensions"`
}

// RateLimitConfig holds the fixed-window limiter settings
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Max     int           `mapstructure:"max" yaml:"max"`
	Window  time.Duration `mapstructure:"window" yaml:"window"`
}

// MailConfig holds delivery settings shared by every transport
type MailConfig struct {
	// Transport selects the delivery backend: "smtp", "gmail", "ses" or "log".
	Transport      string        `mapstructure:"transport" yaml:"transport"`
	From           string        `mapstructure:"from" yaml:"from"`
	To             string        `mapstructure:"to" yaml:"to"`
	Attempts       int           `mapstructure:"attempts" yaml:"attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
	// SpoolDir is where attachments are staged while a message is delivered.
	SpoolDir string `mapstructure:"spool_dir" yaml:"spool_dir"`
}

// SMTPConfig holds SMTP relay configuration
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	// Domain is the name sent in EHLO; empty uses the library default.
	Domain string `mapstructure:"domain" yaml:"domain"`
	// StartTLS is "auto" (upgrade when offered), "always" or "never".
	StartTLS           string `mapstructure:"starttls" yaml:"starttls"`
	ImplicitTLS        bool   `mapstructure:"implicit_tls" yaml:"implicit_tls"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// Addr returns the relay address
func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthEnabled returns true if both user and password are set
func (c SMTPConfig) AuthEnabled() bool {
	return c.User != "" && c.Password != ""
}

// GmailConfig holds Gmail API configuration
type GmailConfig struct {
	// CredentialsJSON is the service account credentials JSON content
	CredentialsJSON string `mapstructure:"credentials_json" yaml:"credentials_json"`
	// ClientID for OAuth2 token-based auth (alternative to service account)
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	// ClientSecret for OAuth2 token-based auth
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	// RefreshToken for OAuth2 token-based auth
	RefreshToken string `mapstructure:"refresh_token" yaml:"refresh_token"`
}

// SESConfig holds AWS SES v2 configuration
type SESConfig struct {
	Region          string `mapstructure:"region" yaml:"region"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
}

// Load reads configuration from an optional .env file, an optional config
// file and environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/contactrelay")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Mail.Transport = strings.ToLower(strings.TrimSpace(cfg.Mail.Transport))
	cfg.SMTP.StartTLS = strings.ToLower(strings.TrimSpace(cfg.SMTP.StartTLS))
	if cfg.Mail.To == "" {
		cfg.Mail.To = cfg.Mail.From
	}

	return &cfg, nil
}

// Validate checks the settings the selected transport depends on.
func (c *Config) Validate() error {
	if c.Mail.From == "" {
		return errors.New("mail.from is required")
	}
	if c.Mail.Attempts < 1 {
		return fmt.Errorf("mail.attempts must be at least 1, got %d", c.Mail.Attempts)
	}
	if _, err := ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Max < 1 || c.RateLimit.Window <= 0) {
		return errors.New("rate_limit.max and rate_limit.window must be positive")
	}

	switch c.Mail.Transport {
	case "smtp":
		if c.SMTP.Host == "" {
			return errors.New("smtp.host is required for the smtp transport")
		}
		switch c.SMTP.StartTLS {
		case "auto", "always", "never":
		default:
			return fmt.Errorf("smtp.starttls must be auto, always or never, got %q", c.SMTP.StartTLS)
		}
	case "gmail":
		if c.Gmail.CredentialsJSON == "" && c.Gmail.RefreshToken == "" {
			return errors.New("gmail.credentials_json or gmail.refresh_token is required for the gmail transport")
		}
	case "ses":
		if c.SES.Region == "" {
			return errors.New("ses.region is required for the ses transport")
		}
	case "log":
	default:
		return fmt.Errorf("unknown mail.transport %q", c.Mail.Transport)
	}

	return nil
}

// bindLegacyEnv maps the variable names used by earlier deployments.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"server.port":    {"SERVER_PORT", "PORT"},
		"log.level":      {"LOG_LEVEL"},
		"smtp.user":      {"SMTP_USER", "SMTP_USERNAME"},
		"smtp.password":  {"SMTP_PASSWORD", "SMTP_PASS"},
		"mail.from":      {"MAIL_FROM", "SMTP_FROM"},
		"mail.to":        {"MAIL_TO", "SMTP_TO"},
		"mail.spool_dir": {"MAIL_SPOOL_DIR", "UPLOAD_FOLDER"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.max_body_bytes", 64<<20)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.trusted_proxies", []string{})

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("app.name", "GOP3 Fan Page Backend")
	v.SetDefault("app.version", "1.0.0")

	v.SetDefault("site.name", "GOP3 Fan Page")
	v.SetDefault("site.tag", "GOP3 Fan")
	v.SetDefault("site.default_subject", "GOP3 Fan Message")

	v.SetDefault("limits.max_attachment_bytes", 8<<20)
	v.SetDefault("limits.allowed_extensions", []string{"png", "jpg", "jpeg", "gif", "pdf", "txt", "md"})

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.max", 6)
	v.SetDefault("rate_limit.window", "60s")

	// Mail defaults
	v.SetDefault("mail.transport", "smtp")
	v.SetDefault("mail.from", "gop3-fan@example.com")
	v.SetDefault("mail.to", "")
	v.SetDefault("mail.attempts", 3)
	v.SetDefault("mail.base_delay", "1s")
	v.SetDefault("mail.attempt_timeout", "15s")
	v.SetDefault("mail.spool_dir", "/tmp/contactrelay_uploads")

	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.domain", "")
	v.SetDefault("smtp.starttls", "auto")
	v.SetDefault("smtp.implicit_tls", false)
	v.SetDefault("smtp.insecure_skip_verify", false)

	v.SetDefault("gmail.credentials_json", "")
	v.SetDefault("gmail.client_id", "")
	v.SetDefault("gmail.client_secret", "")
	v.SetDefault("gmail.refresh_token", "")

	v.SetDefault("ses.region", "")
	v.SetDefault("ses.access_key_id", "")
	v.SetDefault("ses.secret_access_key", "")
}

const redacted = "********"

// Redacted returns a copy with credentials masked, suitable for printing.
func (c *Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	out := *c
	out.SMTP.Password = mask(c.SMTP.Password)
	out.Gmail.CredentialsJSON = mask(c.Gmail.CredentialsJSON)
	out.Gmail.ClientSecret = mask(c.Gmail.ClientSecret)
	out.Gmail.RefreshToken = mask(c.Gmail.RefreshToken)
	out.SES.SecretAccessKey = mask(c.SES.SecretAccessKey)
	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	out.Server.TrustedProxies = append([]string(nil), c.Server.TrustedProxies...)
	out.Limits.AllowedExtensions = append([]string(nil), c.Limits.AllowedExtensions...)
	return out
}
