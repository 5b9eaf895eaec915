package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/cerealworks/cereal/internal/httpkit"
)

// Attachment is a file attached to an outbound email.
type Attachment struct {
	ContentType string
	FileName    string
	Bytes       []byte
}

// Message is an email to be sent through the Email API. Text and HTML
// both default to the subject when the caller leaves them empty.
type Message struct {
	To         string
	Subject    string
	Text       string
	HTML       string
	Attachment *Attachment
}

// EmailClient sends attachment emails through an HTTP Email API (a
// Mailgun-style endpoint): a multipart form POST with basic auth.
type EmailClient struct {
	apiKey   string
	endpoint string
	from     string
	http     *http.Client
}

// NewEmailClient creates an EmailClient bound to the given API key,
// endpoint, and sender address.
func NewEmailClient(apiKey, endpoint, from string) *EmailClient {
	return &EmailClient{
		apiKey:   apiKey,
		endpoint: endpoint,
		from:     from,
		http:     httpkit.NewClient(httpkit.WithTimeout(60 * time.Second)),
	}
}

// Send posts msg to the Email API. Any non-2xx response is a delivery
// failure.
func (c *EmailClient) Send(ctx context.Context, msg Message) error {
	text := msg.Text
	if text == "" {
		text = msg.Subject
	}
	html := msg.HTML
	if html == "" {
		html = msg.Subject
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	fields := map[string]string{
		"to":      msg.To,
		"subject": msg.Subject,
		"from":    c.from,
		"text":    text,
		"html":    html,
	}
	for name, value := range fields {
		if err := form.WriteField(name, value); err != nil {
			return fmt.Errorf("notify: write field %s: %w", name, err)
		}
	}

	if msg.Attachment != nil {
		header := make(map[string][]string)
		header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="attachment"; filename=%q`, msg.Attachment.FileName)}
		header["Content-Type"] = []string{msg.Attachment.ContentType}
		part, err := form.CreatePart(header)
		if err != nil {
			return fmt.Errorf("notify: create attachment part: %w", err)
		}
		if _, err := part.Write(msg.Attachment.Bytes); err != nil {
			return fmt.Errorf("notify: write attachment: %w", err)
		}
	}

	if err := form.Close(); err != nil {
		return fmt.Errorf("notify: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return fmt.Errorf("notify: build email request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.SetBasicAuth("api", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify: email request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		return fmt.Errorf("notify: email API returned %d: %s", resp.StatusCode, errBody)
	}
	httpkit.DrainAndClose(resp.Body, 1<<16)

	return nil
}

// SendMobi sends a .mobi attachment with the conventional content type
// and subject used for chapter delivery.
func (c *EmailClient) SendMobi(ctx context.Context, to, title, subject string, mobiBytes []byte) error {
	return c.Send(ctx, Message{
		To:      to,
		Subject: subject,
		Attachment: &Attachment{
			ContentType: "application/x-mobipocket-ebook",
			FileName:    title + ".mobi",
			Bytes:       mobiBytes,
		},
	})
}
