package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/contactrelay/contactrelay/internal/contact"
	"github.com/contactrelay/contactrelay/internal/email"
	"github.com/contactrelay/contactrelay/internal/middleware"
)

// SendEmailResponse is returned when the message was relayed
type SendEmailResponse struct {
	Message string `json:"message"`
}

// SendFailedResponse is returned when every delivery attempt failed
type SendFailedResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// SendEmail decodes, validates and relays one contact form submission.
func (h *Handler) SendEmail(w http.ResponseWriter, r *http.Request) {
	clientIP := middleware.ClientIP(r)
	log := h.log.WithRequestID(middleware.GetRequestID(r.Context())).WithClientIP(clientIP)

	if limit := h.cfg.Server.MaxBodyBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	sub, attachments, err := h.decoder.Decode(r)
	if err != nil {
		var decodeErr *contact.DecodeError
		if !errors.As(err, &decodeErr) {
			decodeErr = &contact.DecodeError{Kind: contact.InvalidForm, Err: err}
		}
		log.Warn().
			Err(decodeErr.Err).
			Str("kind", decodeErr.Kind.String()).
			Str("filename", decodeErr.Filename).
			Msg("rejected submission")
		writeError(w, http.StatusBadRequest, decodeErr.Error())
		return
	}

	if err := contact.Validate(sub); err != nil {
		log.Submission(clientIP, sub.Name, sub.Email, len(attachments), "missing_fields")
		writeError(w, http.StatusUnprocessableEntity, contact.MissingFieldsMessage)
		return
	}

	msg := h.composer.Compose(sub)
	msg.Attachments = attachments

	// The client going away must not abort a delivery already under way.
	ctx := context.WithoutCancel(r.Context())
	if err := h.mailer.Send(ctx, msg); err != nil {
		log.Error().Err(err).AnErr("cause", errors.Unwrap(err)).Msg("failed to send email")
		log.Submission(clientIP, sub.Name, sub.Email, len(attachments), "send_failed")

		detail := err.Error()
		var sendErr *email.SendError
		if !errors.As(err, &sendErr) {
			detail = "unexpected delivery error"
		}
		writeJSON(w, http.StatusInternalServerError, SendFailedResponse{
			Error:  "Failed to send email",
			Detail: detail,
		})
		return
	}

	log.Submission(clientIP, sub.Name, sub.Email, len(attachments), "sent")
	writeJSON(w, http.StatusOK, SendEmailResponse{Message: "Email sent successfully"})
}
