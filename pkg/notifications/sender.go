package notifications

import (
	"context"
	"fmt"
	"strings"
)

// Content is rendered notification text.
type Content struct {
	Subject string
	Body    string
}

// Message is what a channel sender delivers.
type Message struct {
	NotificationID string
	UserID         string
	Type           string
	Template       string
	Channel        Channel
	Recipient      string
	Priority       Priority
	Silent         bool
	Content        Content
	Metadata       map[string]string
}

// ChannelSender delivers messages to one channel's provider.
// Errors wrapped with Permanent are not retried.
type ChannelSender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to ChannelSender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Renderer produces channel-specific content for a template.
type Renderer interface {
	Render(ctx context.Context, template string, ch Channel, vars map[string]string) (Content, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, template string, ch Channel, vars map[string]string) (Content, error)

func (f RendererFunc) Render(ctx context.Context, template string, ch Channel, vars map[string]string) (Content, error) {
	return f(ctx, template, ch, vars)
}

// DigestRenderer builds the consolidated content for a user's digest.
type DigestRenderer interface {
	RenderDigest(ctx context.Context, userID string, ch Channel, entries []DigestEntry) (Content, error)
}

// RecipientResolver looks up a user's address on a channel.
type RecipientResolver interface {
	ResolveRecipient(ctx context.Context, userID string, ch Channel) (string, error)
}

// PlainRenderer takes subject and body straight from the "subject" and
// "body" (or "message") variables, falling back to the template name.
// Used when no template engine is configured.
type PlainRenderer struct{}

func (PlainRenderer) Render(ctx context.Context, template string, ch Channel, vars map[string]string) (Content, error) {
	subject := vars["subject"]
	if subject == "" {
		subject = template
	}
	body := vars["body"]
	if body == "" {
		body = vars["message"]
	}
	if body == "" {
		body = template
	}
	return Content{Subject: subject, Body: body}, nil
}

// joinDigestRenderer renders each entry with a Renderer and joins the bodies.
type joinDigestRenderer struct {
	renderer Renderer
}

// NewJoinDigestRenderer returns a DigestRenderer that lists each entry's body
// under a "%d new updates" subject.
func NewJoinDigestRenderer(r Renderer) DigestRenderer {
	if r == nil {
		r = PlainRenderer{}
	}
	return joinDigestRenderer{renderer: r}
}

func (d joinDigestRenderer) RenderDigest(ctx context.Context, userID string, ch Channel, entries []DigestEntry) (Content, error) {
	var b strings.Builder
	for i, e := range entries {
		c, err := d.renderer.Render(ctx, e.Template, ch, e.Variables)
		if err != nil {
			return Content{}, fmt.Errorf("render digest entry %s: %w", e.ID, err)
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(c.Body)
	}
	return Content{
		Subject: fmt.Sprintf("%d new updates", len(entries)),
		Body:    b.String(),
	}, nil
}
