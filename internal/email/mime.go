package email

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"

	"github.com/contactrelay/contactrelay/internal/model"
)

// BuildMIME encodes msg as a plain-text message with the staged files attached.
// Attachment content types are derived from the file extension.
func BuildMIME(addrs Addresses, msg model.OutboundMessage, paths []string, date time.Time) ([]byte, error) {
	builder := enmime.Builder().
		From(addrs.From.Name, addrs.From.Address).
		To(addrs.To.Name, addrs.To.Address).
		Subject(msg.Subject).
		Date(date).
		Header("Message-ID", messageID(addrs.From.Address)).
		Text([]byte(msg.Body))

	// Submitted addresses are not syntax checked; only set Reply-To when it parses.
	if msg.ReplyTo != "" {
		if replyTo, err := mail.ParseAddress(msg.ReplyTo); err == nil {
			builder = builder.ReplyTo(replyTo.Name, replyTo.Address)
		}
	}

	for _, p := range paths {
		builder = builder.AddFileAttachment(p)
	}

	root, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}

	var buf bytes.Buffer
	if err := root.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return buf.Bytes(), nil
}

func messageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
