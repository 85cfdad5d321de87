// Package contact turns inbound form submissions into outbound messages.
package contact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/contactrelay/contactrelay/internal/model"
)

// Defaults for the attachment policy.
const (
	DefaultMaxAttachmentBytes = 8 << 20
	// maxFieldBytes caps a single non-file multipart field.
	maxFieldBytes = 1 << 20
)

// DefaultAllowedExtensions is the attachment allow-list.
var DefaultAllowedExtensions = []string{"png", "jpg", "jpeg", "gif", "pdf", "txt", "md"}

var formFields = []string{"name", "email", "subject", "message", "meta"}

// Decoder normalizes JSON and form requests into a Submission.
type Decoder struct {
	maxAttachment int64
	allowed       map[string]struct{}
}

// NewDecoder creates a Decoder. Zero or empty arguments select the defaults.
func NewDecoder(maxAttachment int64, allowedExtensions []string) *Decoder {
	if maxAttachment <= 0 {
		maxAttachment = DefaultMaxAttachmentBytes
	}
	if len(allowedExtensions) == 0 {
		allowedExtensions = DefaultAllowedExtensions
	}
	allowed := make(map[string]struct{}, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))] = struct{}{}
	}
	return &Decoder{maxAttachment: maxAttachment, allowed: allowed}
}

// AllowedExtension reports whether filename carries an allowed extension
func (d *Decoder) AllowedExtension(filename string) bool {
	ext := model.FileExtension(filename)
	if ext == "" {
		return false
	}
	_, ok := d.allowed[ext]
	return ok
}

// Decode reads the request body. Errors are always *DecodeError.
func (d *Decoder) Decode(r *http.Request) (model.Submission, []model.Attachment, error) {
	if isJSON(r.Header.Get("Content-Type")) {
		sub, err := d.decodeJSON(r.Body)
		return sub, nil, err
	}
	return d.decodeForm(r)
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(contentType), "application/json")
	}
	return mediaType == "application/json"
}

func (d *Decoder) decodeJSON(body io.Reader) (model.Submission, error) {
	if body == nil {
		return model.Submission{}, &DecodeError{Kind: InvalidJSON, Err: errors.New("request body is empty")}
	}

	var payload map[string]any
	if err := unmarshalStrict(body, &payload); err != nil {
		return model.Submission{}, &DecodeError{Kind: InvalidJSON, Err: err}
	}
	if payload == nil {
		return model.Submission{}, &DecodeError{Kind: InvalidJSON, Err: errors.New("payload is null")}
	}

	return model.Submission{
		Name:    stringValue(payload["name"]),
		Email:   stringValue(payload["email"]),
		Subject: stringValue(payload["subject"]),
		Message: stringValue(payload["message"]),
		Meta:    payload["meta"],
	}, nil
}

// unmarshalStrict decodes exactly one JSON value from r, keeping numbers as
// json.Number. Anything but whitespace after the value is an error.
func unmarshalStrict(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after JSON value")
		}
		return err
	}
	return nil
}

// stringValue renders a JSON scalar as text; objects and arrays become compact JSON.
func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return fmt.Sprint(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

func (d *Decoder) decodeForm(r *http.Request) (model.Submission, []model.Attachment, error) {
	mr, err := r.MultipartReader()
	if errors.Is(err, http.ErrNotMultipart) {
		if err := r.ParseForm(); err != nil {
			return model.Submission{}, nil, &DecodeError{Kind: InvalidForm, Err: err}
		}
		fields := make(map[string]string, len(formFields))
		for _, key := range formFields {
			fields[key] = r.PostForm.Get(key)
		}
		return submissionFromFields(fields), nil, nil
	}
	if err != nil {
		return model.Submission{}, nil, &DecodeError{Kind: InvalidForm, Err: err}
	}

	fields := make(map[string]string)
	var attachments []model.Attachment
	index := make(map[string]int)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return model.Submission{}, nil, &DecodeError{Kind: InvalidForm, Err: err}
		}

		if part.FileName() == "" {
			name := part.FormName()
			value, err := readField(part)
			part.Close()
			if err != nil {
				return model.Submission{}, nil, err
			}
			if _, seen := fields[name]; !seen {
				fields[name] = value
			}
			continue
		}

		att, err := d.readAttachment(part)
		part.Close()
		if err != nil {
			return model.Submission{}, nil, err
		}
		// Same filename twice: the later upload replaces the earlier one.
		if i, ok := index[att.Filename]; ok {
			attachments[i] = att
			continue
		}
		index[att.Filename] = len(attachments)
		attachments = append(attachments, att)
	}

	return submissionFromFields(fields), attachments, nil
}

func readField(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxFieldBytes+1))
	if err != nil {
		return "", &DecodeError{Kind: InvalidForm, Err: err}
	}
	if len(b) > maxFieldBytes {
		return "", &DecodeError{Kind: InvalidForm, Err: errors.New("form field too large")}
	}
	return string(b), nil
}

// readAttachment checks the extension before reading anything, then reads
// the whole part so the size check sees every byte.
func (d *Decoder) readAttachment(part *multipart.Part) (model.Attachment, error) {
	filename := SanitizeFilename(part.FileName())
	if !d.AllowedExtension(filename) {
		return model.Attachment{}, &DecodeError{Kind: DisallowedAttachment, Filename: filename}
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(part, d.maxAttachment+1))
	if err != nil {
		return model.Attachment{}, &DecodeError{Kind: InvalidForm, Filename: filename, Err: err}
	}
	if n > d.maxAttachment {
		return model.Attachment{}, &DecodeError{Kind: AttachmentTooLarge, Filename: filename}
	}

	return model.Attachment{Filename: filename, Content: buf.Bytes()}, nil
}

func submissionFromFields(fields map[string]string) model.Submission {
	sub := model.Submission{
		Name:    fields["name"],
		Email:   fields["email"],
		Subject: fields["subject"],
		Message: fields["message"],
	}
	if raw := fields["meta"]; raw != "" {
		var meta any
		if err := unmarshalStrict(strings.NewReader(raw), &meta); err == nil {
			sub.Meta = meta
		} else {
			sub.Meta = raw
		}
	}
	return sub
}

// SanitizeFilename reduces an uploaded filename to a safe base name made of
// letters, digits, dots, dashes and underscores.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
