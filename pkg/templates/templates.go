package templates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

var (
	ErrTemplateNotFound = errors.New("notification template not found")
	ErrInvalidTemplate  = errors.New("invalid notification template")
)

// Template describes one notification. Subject, Body and Short are
// text/template sources executed against the request variables; missing
// variables render empty.
type Template struct {
	Name    string
	Subject string
	Body    string // one paragraph per line
	Short   string // SMS and push text; defaults to Body
	Action  string // email button label, linked to the "action_url" variable
}

type compiled struct {
	subject *template.Template
	body    *template.Template
	short   *template.Template
	action  string
}

// Registry renders registered templates per channel: email gets the HTML
// layout, the other channels plain text.
type Registry struct {
	brand     string
	templates map[string]compiled
	mu        sync.RWMutex
}

var (
	_ notifications.Renderer       = (*Registry)(nil)
	_ notifications.DigestRenderer = (*Registry)(nil)
)

// Option configures a Registry.
type Option func(*Registry)

// WithBrand sets the footer text of HTML emails.
func WithBrand(brand string) Option {
	return func(r *Registry) { r.brand = brand }
}

// WithoutBuiltins starts from an empty registry.
func WithoutBuiltins() Option {
	return func(r *Registry) { r.templates = make(map[string]compiled) }
}

// New returns a Registry preloaded with the built-in catalog.
func New(opts ...Option) *Registry {
	r := &Registry{brand: "SkillSwap", templates: make(map[string]compiled)}
	for _, t := range Builtins() {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register compiles and adds t, replacing any template with the same name.
func (r *Registry) Register(t Template) error {
	if t.Name == "" || t.Subject == "" || t.Body == "" {
		return fmt.Errorf("%w: name, subject and body are required", ErrInvalidTemplate)
	}
	if t.Short == "" {
		t.Short = t.Body
	}

	var c compiled
	var err error
	if c.subject, err = parse(t.Name+".subject", t.Subject); err != nil {
		return err
	}
	if c.body, err = parse(t.Name+".body", t.Body); err != nil {
		return err
	}
	if c.short, err = parse(t.Name+".short", t.Short); err != nil {
		return err
	}
	c.action = t.Action

	r.mu.Lock()
	r.templates[t.Name] = c
	r.mu.Unlock()
	return nil
}

// Names lists registered templates in alphabetical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for n := range r.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (compiled, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.templates[name]
	if !ok {
		return compiled{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return c, nil
}

func (r *Registry) Render(ctx context.Context, name string, ch notifications.Channel, vars map[string]string) (notifications.Content, error) {
	c, err := r.lookup(name)
	if err != nil {
		return notifications.Content{}, err
	}

	subject, err := execute(c.subject, vars)
	if err != nil {
		return notifications.Content{}, err
	}

	switch ch {
	case notifications.ChannelEmail:
		body, err := execute(c.body, vars)
		if err != nil {
			return notifications.Content{}, err
		}
		html, err := Render(ctx, emailLayout(r.brand, subject, join(paragraphs(body), actionButton(c.action, vars["action_url"]))))
		if err != nil {
			return notifications.Content{}, err
		}
		return notifications.Content{Subject: subject, Body: html}, nil

	case notifications.ChannelSMS, notifications.ChannelPush:
		short, err := execute(c.short, vars)
		if err != nil {
			return notifications.Content{}, err
		}
		return notifications.Content{Subject: subject, Body: short}, nil

	default:
		body, err := execute(c.body, vars)
		if err != nil {
			return notifications.Content{}, err
		}
		return notifications.Content{Subject: subject, Body: body}, nil
	}
}

// RenderDigest lists the short text of every entry, oldest first.
func (r *Registry) RenderDigest(ctx context.Context, userID string, ch notifications.Channel, entries []notifications.DigestEntry) (notifications.Content, error) {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		c, err := r.lookup(e.Template)
		if err != nil {
			return notifications.Content{}, fmt.Errorf("digest entry %s: %w", e.ID, err)
		}
		line, err := execute(c.short, e.Variables)
		if err != nil {
			return notifications.Content{}, fmt.Errorf("digest entry %s: %w", e.ID, err)
		}
		lines = append(lines, line)
	}

	subject := "You have 1 new update"
	if len(entries) != 1 {
		subject = fmt.Sprintf("You have %d new updates", len(entries))
	}

	if ch == notifications.ChannelEmail {
		html, err := Render(ctx, emailLayout(r.brand, subject, digestList(lines)))
		if err != nil {
			return notifications.Content{}, err
		}
		return notifications.Content{Subject: subject, Body: html}, nil
	}
	return notifications.Content{Subject: subject, Body: "- " + strings.Join(lines, "\n- ")}, nil
}

func parse(name, src string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=zero").Parse(src)
	if err != nil {
		return nil, errors.Join(ErrInvalidTemplate, err)
	}
	return t, nil
}

func execute(t *template.Template, vars map[string]string) (string, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("executing template %s: %w", t.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
