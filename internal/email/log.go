package email

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jhillyerd/enmime"

	"github.com/contactrelay/contactrelay/internal/logger"
)

// LogTransport writes a summary of each message to the logger instead of
// delivering it. Meant for local development.
type LogTransport struct {
	log *logger.Logger
}

// NewLogTransport creates a LogTransport.
func NewLogTransport(log *logger.Logger) *LogTransport {
	return &LogTransport{log: log.WithComponent("mail.log")}
}

// Name implements Transport.
func (l *LogTransport) Name() string { return "log" }

// Deliver implements Transport.
func (l *LogTransport) Deliver(_ context.Context, env Envelope) error {
	parsed, err := enmime.ReadEnvelope(bytes.NewReader(env.Raw))
	if err != nil {
		return fmt.Errorf("log: unreadable message: %w", err)
	}

	files := make([]string, 0, len(parsed.Attachments))
	for _, a := range parsed.Attachments {
		files = append(files, a.FileName)
	}

	l.log.Info().
		Str("from", env.From).
		Strs("to", env.To).
		Str("subject", parsed.GetHeader("Subject")).
		Str("reply_to", parsed.GetHeader("Reply-To")).
		Strs("attachments", files).
		Int("bytes", len(env.Raw)).
		Msg("message not delivered (log transport)")
	l.log.Debug().Msg(parsed.Text)

	return nil
}
