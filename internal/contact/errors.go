package contact

import (
	"errors"
	"fmt"
)

// MissingFieldsMessage is the client-facing text for ErrMissingFields.
const MissingFieldsMessage = "Missing required fields: name, email, and message are required"

// ErrMissingFields is returned when name, email or message is empty.
var ErrMissingFields = errors.New("missing required fields")

// DecodeErrorKind classifies a client-caused decoding failure
type DecodeErrorKind int

const (
	// InvalidJSON means a JSON body could not be parsed as an object.
	InvalidJSON DecodeErrorKind = iota + 1
	// InvalidForm means a form or multipart body could not be read.
	InvalidForm
	// DisallowedAttachment means a file has an extension outside the allow-list.
	DisallowedAttachment
	// AttachmentTooLarge means a file exceeds the size cap.
	AttachmentTooLarge
)

func (k DecodeErrorKind) String() string {
	switch k {
	case InvalidJSON:
		return "invalid_json"
	case InvalidForm:
		return "invalid_form"
	case DisallowedAttachment:
		return "disallowed_attachment"
	case AttachmentTooLarge:
		return "attachment_too_large"
	default:
		return "unknown"
	}
}

// DecodeError reports why a request body was rejected. Error returns the
// message shown to the client.
type DecodeError struct {
	Kind     DecodeErrorKind
	Filename string
	Err      error
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case InvalidJSON:
		return "Invalid JSON payload"
	case DisallowedAttachment:
		return fmt.Sprintf("Attachment type not allowed: %s", e.Filename)
	case AttachmentTooLarge:
		return fmt.Sprintf("Attachment too large: %s", e.Filename)
	default:
		return "Invalid form payload"
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
