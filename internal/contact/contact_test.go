package contact

import (
	"bytes"
	"errors"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/contactrelay/contactrelay/internal/model"
)

type filePart struct {
	field    string
	filename string
	content  []byte
}

func multipartRequest(t *testing.T, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	for _, f := range files {
		fw, err := w.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(f.content)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/send-email", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/send-email", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	return req
}

func decodeErrorKind(t *testing.T, err error) *DecodeError {
	t.Helper()
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %T (%v)", err, err)
	}
	return de
}

func TestDecode_JSON(t *testing.T) {
	t.Parallel()

	d := NewDecoder(0, nil)
	sub, atts, err := d.Decode(jsonRequest(`{"name":" Ann ","email":"a@b.com","message":"Hi","meta":{"page":"home","n":2}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(atts) != 0 {
		t.Errorf("attachments: got %d, want 0", len(atts))
	}
	if sub.Name != " Ann " || sub.Email != "a@b.com" || sub.Message != "Hi" {
		t.Errorf("unexpected submission: %+v", sub)
	}
	if sub.Subject != "" {
		t.Errorf("Subject: got %q, want empty", sub.Subject)
	}
	meta, ok := sub.Meta.(map[string]any)
	if !ok || meta["page"] != "home" {
		t.Errorf("Meta: got %#v", sub.Meta)
	}
}

func TestDecode_JSONNonStringFields(t *testing.T) {
	t.Parallel()

	d := NewDecoder(0, nil)
	sub, _, err := d.Decode(jsonRequest(`{"name":42,"email":"a@b.com","message":true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Name != "42" || sub.Message != "true" {
		t.Errorf("unexpected submission: %+v", sub)
	}
}

func TestDecode_InvalidJSON(t *testing.T) {
	t.Parallel()

	d := NewDecoder(0, nil)
	bodies := []string{
		`{"name":`, `null`, `[1,2]`, `"text"`, ``,
		`{"name":"a","email":"b","message":"c"} trailing-garbage`,
		`{"name":"a","email":"b","message":"c"}{}`,
	}
	for _, body := range bodies {
		_, _, err := d.Decode(jsonRequest(body))
		if err == nil {
			t.Errorf("body %q: expected error", body)
			continue
		}
		de := decodeErrorKind(t, err)
		if de.Kind != InvalidJSON {
			t.Errorf("body %q: kind %v, want InvalidJSON", body, de.Kind)
		}
		if de.Error() != "Invalid JSON payload" {
			t.Errorf("body %q: message %q", body, de.Error())
		}
	}
}

func TestDecode_JSONTrailingWhitespace(t *testing.T) {
	t.Parallel()

	sub, _, err := NewDecoder(0, nil).Decode(jsonRequest("{\"name\":\"Ann\",\"email\":\"a@b.com\",\"message\":\"Hi\"}\n  \n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Name != "Ann" {
		t.Errorf("Name: got %q", sub.Name)
	}
}

func TestDecode_MultipartMetaKeepsLargeIntegers(t *testing.T) {
	t.Parallel()

	req := multipartRequest(t, map[string]string{
		"name": "Ann", "email": "a@b.com", "message": "Hi",
		"meta": `{"id":12345678901234567890}`,
	})
	sub, _, err := NewDecoder(0, nil).Decode(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := NewComposer("Site", "Tag", "Default").Body(sub)
	if !strings.Contains(body, `"id": 12345678901234567890`) {
		t.Errorf("meta lost precision:\n%s", body)
	}
}

func TestDecode_FormMetaWithTrailingDataStaysRaw(t *testing.T) {
	t.Parallel()

	req := multipartRequest(t, map[string]string{
		"name": "Ann", "email": "a@b.com", "message": "Hi",
		"meta": `{"ref":"x"} junk`,
	})
	sub, _, err := NewDecoder(0, nil).Decode(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Meta != `{"ref":"x"} junk` {
		t.Errorf("Meta: got %#v, want raw string fallback", sub.Meta)
	}
}

func TestDecode_URLEncodedForm(t *testing.T) {
	t.Parallel()

	form := url.Values{}
	form.Set("name", "Ann")
	form.Set("email", "a@b.com")
	form.Set("subject", "Hello")
	form.Set("message", "Hi")
	form.Set("meta", "not json")

	req := httptest.NewRequest(http.MethodPost, "/send-email", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	sub, atts, err := NewDecoder(0, nil).Decode(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(atts) != 0 {
		t.Errorf("attachments: got %d, want 0", len(atts))
	}
	if sub.Subject != "Hello" {
		t.Errorf("Subject: got %q", sub.Subject)
	}
	if sub.Meta != "not json" {
		t.Errorf("Meta: got %#v, want raw string fallback", sub.Meta)
	}
}

func TestDecode_MultipartWithAttachments(t *testing.T) {
	t.Parallel()

	req := multipartRequest(t,
		map[string]string{"name": "Ann", "email": "a@b.com", "message": "Hi", "meta": `{"ref":"x"}`},
		filePart{"file1", "Screen Shot.PNG", []byte("png-bytes")},
		filePart{"file2", "notes.md", []byte("# notes")},
	)

	sub, atts, err := NewDecoder(0, nil).Decode(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Name != "Ann" {
		t.Errorf("Name: got %q", sub.Name)
	}
	if meta, ok := sub.Meta.(map[string]any); !ok || meta["ref"] != "x" {
		t.Errorf("Meta: got %#v", sub.Meta)
	}
	if len(atts) != 2 {
		t.Fatalf("attachments: got %d, want 2", len(atts))
	}
	if atts[0].Filename != "Screen_Shot.PNG" {
		t.Errorf("filename: got %q, want sanitized Screen_Shot.PNG", atts[0].Filename)
	}
	if string(atts[1].Content) != "# notes" {
		t.Errorf("content: got %q", atts[1].Content)
	}
}

func TestDecode_DisallowedExtension(t *testing.T) {
	t.Parallel()

	req := multipartRequest(t, map[string]string{"name": "Ann"}, filePart{"f", "run.exe", []byte("MZ")})
	_, _, err := NewDecoder(0, nil).Decode(req)
	de := decodeErrorKind(t, err)
	if de.Kind != DisallowedAttachment {
		t.Fatalf("kind: got %v, want DisallowedAttachment", de.Kind)
	}
	if de.Error() != "Attachment type not allowed: run.exe" {
		t.Errorf("message: got %q", de.Error())
	}
}

func TestDecode_NoExtensionIsDisallowed(t *testing.T) {
	t.Parallel()

	req := multipartRequest(t, nil, filePart{"f", "README", []byte("x")})
	_, _, err := NewDecoder(0, nil).Decode(req)
	if de := decodeErrorKind(t, err); de.Kind != DisallowedAttachment {
		t.Fatalf("kind: got %v, want DisallowedAttachment", de.Kind)
	}
}

func TestDecode_ExtensionCheckedBeforeSize(t *testing.T) {
	t.Parallel()

	big := bytes.Repeat([]byte("a"), 32)
	req := multipartRequest(t, nil, filePart{"f", "huge.zip", big})
	_, _, err := NewDecoder(16, nil).Decode(req)
	if de := decodeErrorKind(t, err); de.Kind != DisallowedAttachment {
		t.Fatalf("kind: got %v, want DisallowedAttachment when both rules apply", de.Kind)
	}
}

func TestDecode_SizeCap(t *testing.T) {
	t.Parallel()

	const max = 1024
	d := NewDecoder(max, nil)

	atCap := multipartRequest(t, nil, filePart{"f", "a.txt", bytes.Repeat([]byte("x"), max)})
	_, atts, err := d.Decode(atCap)
	if err != nil {
		t.Fatalf("attachment at the cap: unexpected error %v", err)
	}
	if len(atts) != 1 || atts[0].Size() != max {
		t.Fatalf("attachment at the cap: got %d attachments", len(atts))
	}

	overCap := multipartRequest(t, nil, filePart{"f", "b.txt", bytes.Repeat([]byte("x"), max+1)})
	_, _, err = d.Decode(overCap)
	de := decodeErrorKind(t, err)
	if de.Kind != AttachmentTooLarge {
		t.Fatalf("kind: got %v, want AttachmentTooLarge", de.Kind)
	}
	if de.Error() != "Attachment too large: b.txt" {
		t.Errorf("message: got %q", de.Error())
	}
}

func TestDecode_DuplicateFilenameLastWins(t *testing.T) {
	t.Parallel()

	req := multipartRequest(t, nil,
		filePart{"a", "same.txt", []byte("first")},
		filePart{"b", "same.txt", []byte("second")},
	)
	_, atts, err := NewDecoder(0, nil).Decode(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(atts) != 1 || string(atts[0].Content) != "second" {
		t.Fatalf("got %+v, want one attachment with the later content", atts)
	}
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"report.pdf":           "report.pdf",
		"../../etc/passwd.txt": "passwd.txt",
		`C:\Users\ann\cv.pdf`:  "cv.pdf",
		"my photo (1).jpg":     "my_photo_1.jpg",
		".hidden.md":           "hidden.md",
		"":                     "",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := []model.Submission{
		{Name: "Ann", Email: "a@b.com", Message: "Hi"},
		{Name: "Ann", Email: "a@b.com", Message: "Hi", Subject: "Topic"},
		{Name: " Ann ", Email: "not-an-address", Message: "\tHi\n"},
	}
	for _, s := range valid {
		if err := Validate(s); err != nil {
			t.Errorf("Validate(%+v): unexpected error %v", s, err)
		}
	}

	invalid := []model.Submission{
		{Email: "a@b.com", Message: "Hi"},
		{Name: "Ann", Message: "Hi"},
		{Name: "Ann", Email: "a@b.com"},
		{Name: "   ", Email: "a@b.com", Message: "Hi"},
		{Name: "Ann", Email: "a@b.com", Message: " \n\t "},
	}
	for _, s := range invalid {
		if err := Validate(s); !errors.Is(err, ErrMissingFields) {
			t.Errorf("Validate(%+v): got %v, want ErrMissingFields", s, err)
		}
	}
}

func fixedComposer() *Composer {
	return NewComposer("GOP3 Fan Page", "GOP3 Fan", "GOP3 Fan Message").
		WithClock(func() time.Time { return time.Date(2024, 3, 9, 8, 7, 6, 5000, time.FixedZone("CET", 3600)) })
}

func TestCompose_WithoutSubject(t *testing.T) {
	t.Parallel()

	msg := fixedComposer().Compose(model.Submission{Name: "Ann", Email: "a@b.com", Message: "Hi"})

	if msg.Subject != "[GOP3 Fan] GOP3 Fan Message (from Ann)" {
		t.Errorf("Subject: got %q", msg.Subject)
	}
	if msg.ReplyTo != "a@b.com" {
		t.Errorf("ReplyTo: got %q", msg.ReplyTo)
	}
	if strings.Contains(msg.Body, "Subject: ") {
		t.Error("body should not contain a Subject line when none was supplied")
	}
	if !strings.Contains(msg.Body, "Message:\nHi") {
		t.Errorf("body missing message section:\n%s", msg.Body)
	}
	if strings.Contains(msg.Body, "Meta:") {
		t.Error("body should not contain Meta when absent")
	}
}

func TestCompose_FullBody(t *testing.T) {
	t.Parallel()

	msg := fixedComposer().Compose(model.Submission{
		Name:    "Ann",
		Email:   "a@b.com",
		Subject: " Question ",
		Message: "  Hi there  ",
		Meta:    map[string]any{"page": "faq"},
	})

	want := strings.Join([]string{
		"New message from GOP3 Fan Page contact form",
		"",
		"Sent at: 2024-03-09T07:07:06.000005Z",
		"",
		"----",
		"Name: Ann",
		"Email: a@b.com",
		"Subject: Question",
		"",
		"Message:",
		"Hi there",
		"",
		"----",
		"Meta:",
		"{\n  \"page\": \"faq\"\n}",
	}, "\n")
	if msg.Body != want {
		t.Errorf("body mismatch\ngot:\n%s\nwant:\n%s", msg.Body, want)
	}
	if msg.Subject != "[GOP3 Fan] Question (from Ann)" {
		t.Errorf("Subject: got %q", msg.Subject)
	}
}

func TestCompose_EmptyMessagePlaceholder(t *testing.T) {
	t.Parallel()

	body := fixedComposer().Body(model.Submission{Name: "Ann"})
	if !strings.Contains(body, "Message:\n(no message)") {
		t.Errorf("expected placeholder, got:\n%s", body)
	}
	if strings.Contains(body, "Email: ") {
		t.Error("empty email should be omitted")
	}
}

func TestCompose_MetaFallsBackToString(t *testing.T) {
	t.Parallel()

	body := fixedComposer().Body(model.Submission{Name: "Ann", Message: "Hi", Meta: math.Inf(1)})
	if !strings.Contains(body, "Meta:\n+Inf") {
		t.Errorf("expected plain string fallback, got:\n%s", body)
	}
}
