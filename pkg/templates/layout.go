package templates

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// emailLayout wraps content in the shared HTML email shell.
func emailLayout(brand, title string, content templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html><head><meta charset="utf-8"><title>`+
			templ.EscapeString(title)+`</title></head>`+
			`<body style="font-family:Arial,sans-serif;background:#f6f7f9;margin:0;padding:24px">`+
			`<table role="presentation" width="100%" style="max-width:560px;margin:0 auto;background:#fff;border-radius:8px;padding:24px">`+
			`<tr><td><h1 style="font-size:20px;margin:0 0 16px">`+templ.EscapeString(title)+`</h1>`); err != nil {
			return err
		}
		if err := content.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</td></tr><tr><td style="color:#8a8f98;font-size:12px;padding-top:24px">`+
			templ.EscapeString(brand)+`</td></tr></table></body></html>`)
		return err
	})
}

// paragraphs renders each non-empty line of text as an escaped <p>.
func paragraphs(text string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if _, err := io.WriteString(w, `<p style="font-size:15px;line-height:1.5;margin:0 0 12px">`+templ.EscapeString(line)+`</p>`); err != nil {
				return err
			}
		}
		return nil
	})
}

// actionButton renders a call-to-action link; empty URLs render nothing.
func actionButton(label, url string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if url == "" {
			return nil
		}
		safe := templ.URL(url)
		_, err := io.WriteString(w, `<p style="margin:20px 0"><a href="`+templ.EscapeString(string(safe))+
			`" style="background:#2f6fed;color:#fff;padding:10px 18px;border-radius:6px;text-decoration:none">`+
			templ.EscapeString(label)+`</a></p>`)
		return err
	})
}

// digestList renders digest lines as an escaped <ul>.
func digestList(lines []string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<ul style="font-size:15px;line-height:1.6;padding-left:20px">`); err != nil {
			return err
		}
		for _, l := range lines {
			if _, err := io.WriteString(w, `<li>`+templ.EscapeString(l)+`</li>`); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</ul>`)
		return err
	})
}

func join(components ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		for _, c := range components {
			if err := c.Render(ctx, w); err != nil {
				return err
			}
		}
		return nil
	})
}
