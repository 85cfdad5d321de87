package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/contactrelay/contactrelay/internal/config"
	"github.com/contactrelay/contactrelay/internal/contact"
	"github.com/contactrelay/contactrelay/internal/email"
	"github.com/contactrelay/contactrelay/internal/logger"
	"github.com/contactrelay/contactrelay/internal/model"
)

var sendFlags struct {
	name    string
	email   string
	subject string
	message string
	meta    string
	attach  []string
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Compose and relay a submission using the configured transport",
	RunE:  runSend,
}

func init() {
	f := sendCmd.Flags()
	f.StringVar(&sendFlags.name, "name", "", "submitter name")
	f.StringVar(&sendFlags.email, "email", "", "submitter email, used as Reply-To")
	f.StringVar(&sendFlags.subject, "subject", "", "optional subject")
	f.StringVar(&sendFlags.message, "message", "", "message text")
	f.StringVar(&sendFlags.meta, "meta", "", "optional meta value, parsed as JSON when possible")
	f.StringSliceVar(&sendFlags.attach, "attach", nil, "file to attach (repeatable)")
}

func runSend(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, "console")

	sub := model.Submission{
		Name:    sendFlags.name,
		Email:   sendFlags.email,
		Subject: sendFlags.subject,
		Message: sendFlags.message,
	}
	if sendFlags.meta != "" {
		var meta any
		if err := json.Unmarshal([]byte(sendFlags.meta), &meta); err == nil {
			sub.Meta = meta
		} else {
			sub.Meta = sendFlags.meta
		}
	}
	if err := contact.Validate(sub); err != nil {
		return fmt.Errorf("invalid submission: %w", err)
	}

	attachments, err := readAttachments(cfg, sendFlags.attach)
	if err != nil {
		return err
	}

	dispatcher, err := email.NewDispatcherFromConfig(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}

	msg := contact.NewComposer(cfg.Site.Name, cfg.Site.Tag, cfg.Site.DefaultSubject).Compose(sub)
	msg.Attachments = attachments

	if err := dispatcher.Send(cmd.Context(), msg); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Email sent successfully")
	return nil
}

// readAttachments applies the same extension and size policy as the HTTP endpoint.
func readAttachments(cfg *config.Config, paths []string) ([]model.Attachment, error) {
	decoder := contact.NewDecoder(cfg.Limits.MaxAttachmentBytes, cfg.Limits.AllowedExtensions)
	limit := cfg.Limits.MaxAttachmentBytes
	if limit <= 0 {
		limit = contact.DefaultMaxAttachmentBytes
	}

	attachments := make([]model.Attachment, 0, len(paths))
	for _, p := range paths {
		name := contact.SanitizeFilename(p)
		if !decoder.AllowedExtension(name) {
			return nil, &contact.DecodeError{Kind: contact.DisallowedAttachment, Filename: name}
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment: %w", err)
		}
		if info.Size() > limit {
			return nil, &contact.DecodeError{Kind: contact.AttachmentTooLarge, Filename: name}
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment: %w", err)
		}
		attachments = append(attachments, model.Attachment{Filename: name, Content: content})
	}
	return attachments, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
