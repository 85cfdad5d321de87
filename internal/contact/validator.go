package contact

import (
	"strings"

	"github.com/contactrelay/contactrelay/internal/model"
)

// Validate checks that name, email and message are present after trimming.
//
// The email address is not checked for syntax here. Format checks happen in
// the browser as a convenience only, so any non-empty string is accepted.
func Validate(s model.Submission) error {
	if strings.TrimSpace(s.Name) == "" ||
		strings.TrimSpace(s.Email) == "" ||
		strings.TrimSpace(s.Message) == "" {
		return ErrMissingFields
	}
	return nil
}
