package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DevSender writes each email to dir as an .html body plus a .json metadata
// file instead of sending it.
type DevSender struct {
	dir string
	now func() time.Time
}

func NewDevSender(dir string) *DevSender {
	return &DevSender{dir: dir, now: time.Now}
}

type emailMetadata struct {
	Timestamp string `json:"timestamp"`
	SendTo    string `json:"send_to"`
	Subject   string `json:"subject"`
	Tag       string `json:"tag,omitempty"`
	BodyText  string `json:"body_text,omitempty"`
}

func (d *DevSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %w", ErrFailedToSendEmail, err)
	}

	now := d.now()
	identifier := params.Tag
	if identifier == "" {
		identifier = params.Subject
	}
	// Nanoseconds keep same-second sends of one template apart.
	baseFilename := fmt.Sprintf("%s_%09d_%s", now.Format("2006_01_02_150405"), now.Nanosecond(), sanitizeFilename(identifier))

	body := params.BodyHTML
	if body == "" {
		body = "<pre>" + params.BodyText + "</pre>"
	}
	htmlPath := filepath.Join(d.dir, baseFilename+".html")
	if err := os.WriteFile(htmlPath, []byte(body), 0o644); err != nil {
		return fmt.Errorf("%w: failed to write HTML file: %w", ErrFailedToSendEmail, err)
	}

	jsonData, err := json.MarshalIndent(emailMetadata{
		Timestamp: now.Format(time.RFC3339),
		SendTo:    params.SendTo,
		Subject:   params.Subject,
		Tag:       params.Tag,
		BodyText:  params.BodyText,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal metadata: %w", ErrFailedToSendEmail, err)
	}

	jsonPath := filepath.Join(d.dir, baseFilename+".json")
	if err := os.WriteFile(jsonPath, jsonData, 0o644); err != nil {
		return fmt.Errorf("%w: failed to write JSON file: %w", ErrFailedToSendEmail, err)
	}

	return nil
}

var sanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = sanitizeRegex.ReplaceAllString(s, "")

	const maxLength = 100
	if len(s) > maxLength {
		s = s[:maxLength]
	}
	if s == "" {
		s = "email"
	}
	return strings.ToLower(s)
}

// New returns the Postmark sender when credentials are configured and a
// DevSender writing to cfg.DevDir otherwise.
func New(cfg Config) (EmailSender, error) {
	if cfg.UsePostmark() {
		return NewPostmarkClient(cfg)
	}
	return NewDevSender(cfg.DevDir), nil
}
