package model

import (
	"path/filepath"
	"strings"
)

// Submission represents a contact form payload after decoding
type Submission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
	// Meta is an opaque client-supplied value, nil when absent.
	Meta any `json:"meta,omitempty"`
}

// Trimmed returns a copy with surrounding whitespace removed from every text field
func (s Submission) Trimmed() Submission {
	return Submission{
		Name:    strings.TrimSpace(s.Name),
		Email:   strings.TrimSpace(s.Email),
		Subject: strings.TrimSpace(s.Subject),
		Message: strings.TrimSpace(s.Message),
		Meta:    s.Meta,
	}
}

// HasSubject reports whether the submitter supplied a subject
func (s Submission) HasSubject() bool {
	return strings.TrimSpace(s.Subject) != ""
}

// SubjectOrDefault returns the trimmed subject, or def when none was supplied
func (s Submission) SubjectOrDefault(def string) string {
	if subject := strings.TrimSpace(s.Subject); subject != "" {
		return subject
	}
	return def
}

// Attachment represents an uploaded file accompanying a submission
type Attachment struct {
	Filename string
	Content  []byte
}

// Size returns the attachment length in bytes
func (a Attachment) Size() int64 {
	return int64(len(a.Content))
}

// Extension returns the lowercased extension without the dot, or "" if none
func (a Attachment) Extension() string {
	return FileExtension(a.Filename)
}

// FileExtension returns the lowercased extension of name without the dot
func FileExtension(name string) string {
	ext := filepath.Ext(name)
	if ext == "" || ext == "." {
		return ""
	}
	return strings.ToLower(ext[1:])
}

// OutboundMessage is a composed message ready for delivery. It is never stored.
type OutboundMessage struct {
	Subject     string
	Body        string
	ReplyTo     string
	Attachments []Attachment
}
