package contact

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/contactrelay/contactrelay/internal/model"
)

// Composer renders submissions into plain-text outbound messages.
type Composer struct {
	siteName       string
	siteTag        string
	defaultSubject string
	now            func() time.Time
}

// NewComposer creates a Composer.
//
// siteName fills the header line, siteTag prefixes the outgoing subject and
// defaultSubject stands in when the submitter left the subject empty.
func NewComposer(siteName, siteTag, defaultSubject string) *Composer {
	return &Composer{
		siteName:       siteName,
		siteTag:        siteTag,
		defaultSubject: defaultSubject,
		now:            time.Now,
	}
}

// WithClock replaces the time source used for the "Sent at" line.
func (c *Composer) WithClock(now func() time.Time) *Composer {
	c.now = now
	return c
}

// DefaultSubject returns the subject used when none was supplied
func (c *Composer) DefaultSubject() string {
	return c.defaultSubject
}

// Compose builds the outbound message for s. Attachments are added by the caller.
func (c *Composer) Compose(s model.Submission) model.OutboundMessage {
	s = s.Trimmed()
	return model.OutboundMessage{
		Subject: fmt.Sprintf("[%s] %s (from %s)", c.siteTag, s.SubjectOrDefault(c.defaultSubject), s.Name),
		Body:    c.Body(s),
		ReplyTo: s.Email,
	}
}

// Body renders the message text.
func (c *Composer) Body(s model.Submission) string {
	s = s.Trimmed()

	lines := []string{
		fmt.Sprintf("New message from %s contact form", c.siteName),
		"",
		fmt.Sprintf("Sent at: %sZ", c.now().UTC().Format("2006-01-02T15:04:05.000000")),
		"",
		"----",
	}
	if s.Name != "" {
		lines = append(lines, "Name: "+s.Name)
	}
	if s.Email != "" {
		lines = append(lines, "Email: "+s.Email)
	}
	if s.Subject != "" {
		lines = append(lines, "Subject: "+s.Subject)
	}

	message := s.Message
	if message == "" {
		message = "(no message)"
	}
	lines = append(lines, "", "Message:", message, "", "----")

	if s.Meta != nil {
		lines = append(lines, "Meta:", formatMeta(s.Meta))
	}

	return strings.Join(lines, "\n")
}

func formatMeta(meta any) string {
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Sprint(meta)
	}
	return string(b)
}
