// Package templates renders notification content for every delivery channel.
//
// A Registry holds named templates whose subject and text are Go text/template
// sources executed against the request variables. Email content is wrapped in a
// shared HTML layout built from templ components; SMS and push use the short
// text, in-app the full text.
//
//	r := templates.New(templates.WithBrand("SkillSwap"))
//	content, err := r.Render(ctx, "match_found", notifications.ChannelEmail, vars)
//
// Registry also implements notifications.DigestRenderer, listing the short
// text of every queued entry in one consolidated message.
package templates
