package contactrelay

// Submission is the contact form payload.
type Submission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
	// Meta is passed through to the message body as JSON.
	Meta any `json:"meta,omitempty"`
}

// FileAttachment is a file uploaded with a submission. The server only
// accepts png, jpg, jpeg, gif, pdf, txt and md files by default.
type FileAttachment struct {
	Filename string
	Content  []byte
}

// SendResponse is returned when the relay accepted and delivered the message.
type SendResponse struct {
	Message string `json:"message"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}
