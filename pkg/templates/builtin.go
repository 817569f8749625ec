package templates

// Builtins returns the catalog of platform notification templates.
func Builtins() []Template {
	return []Template{
		{
			Name:    "welcome",
			Subject: "Welcome to SkillSwap, {{.name}}",
			Body:    "Hi {{.name}},\nYour account is ready. Add the skills you can teach and the ones you want to learn to get your first matches.",
			Short:   "Welcome to SkillSwap, {{.name}}!",
			Action:  "Complete your profile",
		},
		{
			Name:    "email_verification",
			Subject: "Confirm your email address",
			Body:    "Hi {{.name}},\nUse the code {{.code}} or the button below to confirm your email address.\nThe link expires in {{or .expires_in \"24 hours\"}}.",
			Short:   "Your SkillSwap verification code is {{.code}}",
			Action:  "Verify email",
		},
		{
			Name:    "password_changed",
			Subject: "Your password was changed",
			Body:    "Hi {{.name}},\nThe password of your account was changed{{with .ip}} from {{.}}{{end}}.\nIf this was not you, reset your password right away.",
			Short:   "Your SkillSwap password was changed. Not you? Reset it now.",
			Action:  "Secure my account",
		},
		{
			Name:    "role_assigned",
			Subject: "You are now a {{.role}}",
			Body:    "Hi {{.name}},\nYou have been given the {{.role}} role.",
			Short:   "You are now a {{.role}} on SkillSwap",
		},
		{
			Name:    "skill_added",
			Subject: "Skill added: {{.skill}}",
			Body:    "{{.skill}} was added to your profile.",
			Short:   "{{.skill}} was added to your profile",
		},
		{
			Name:    "skill_endorsed",
			Subject: "{{.endorser}} endorsed your {{.skill}} skill",
			Body:    "{{.endorser}} endorsed your {{.skill}} skill.",
			Short:   "{{.endorser}} endorsed your {{.skill}} skill",
			Action:  "View profile",
		},
		{
			Name:    "match_found",
			Subject: "New match: {{.match_name}}",
			Body:    "{{.match_name}} can teach {{.skill}} and wants to learn what you know.",
			Short:   "New match: {{.match_name}} ({{.skill}})",
			Action:  "See match",
		},
		{
			Name:    "match_request_received",
			Subject: "{{.requester}} wants to swap skills",
			Body:    "{{.requester}} sent you a match request for {{.skill}}.",
			Short:   "{{.requester}} sent you a match request",
			Action:  "Respond",
		},
		{
			Name:    "match_accepted",
			Subject: "{{.match_name}} accepted your request",
			Body:    "{{.match_name}} accepted your match request. Pick a time for your first session.",
			Short:   "{{.match_name}} accepted your match request",
			Action:  "Book a session",
		},
		{
			Name:    "match_declined",
			Subject: "{{.match_name}} declined your request",
			Body:    "{{.match_name}} declined your match request. Keep exploring, new matches arrive daily.",
			Short:   "{{.match_name}} declined your match request",
		},
		{
			Name:    "appointment_requested",
			Subject: "{{.requester}} requested a session",
			Body:    "{{.requester}} requested a {{.skill}} session on {{.starts_at}}.",
			Short:   "{{.requester}} requested a session on {{.starts_at}}",
			Action:  "Review request",
		},
		{
			Name:    "appointment_confirmed",
			Subject: "Session confirmed for {{.starts_at}}",
			Body:    "Your {{.skill}} session with {{.partner}} is confirmed for {{.starts_at}}.",
			Short:   "Session with {{.partner}} confirmed for {{.starts_at}}",
			Action:  "View appointment",
		},
		{
			Name:    "appointment_cancelled",
			Subject: "Session on {{.starts_at}} cancelled",
			Body:    "{{.partner}} cancelled your session on {{.starts_at}}.{{with .reason}}\nReason: {{.}}{{end}}",
			Short:   "{{.partner}} cancelled the session on {{.starts_at}}",
		},
		{
			Name:    "appointment_rescheduled",
			Subject: "Session moved to {{.starts_at}}",
			Body:    "{{.partner}} moved your session from {{.previous_starts_at}} to {{.starts_at}}.",
			Short:   "Session with {{.partner}} moved to {{.starts_at}}",
			Action:  "View appointment",
		},
		{
			Name:    "appointment_reminder",
			Subject: "Reminder: session with {{.partner}} at {{.starts_at}}",
			Body:    "Your {{.skill}} session with {{.partner}} starts at {{.starts_at}}.",
			Short:   "Reminder: session with {{.partner}} at {{.starts_at}}",
			Action:  "Join",
		},
		{
			Name:    "video_call_scheduled",
			Subject: "Video call scheduled for {{.starts_at}}",
			Body:    "A video call with {{.partner}} is scheduled for {{.starts_at}}.",
			Short:   "Video call with {{.partner}} at {{.starts_at}}",
			Action:  "Open call",
		},
		{
			Name:    "video_call_missed",
			Subject: "You missed a call from {{.partner}}",
			Body:    "You missed a video call from {{.partner}}.",
			Short:   "Missed video call from {{.partner}}",
		},
		{
			Name:    "review_received",
			Subject: "{{.reviewer}} left you a review",
			Body:    "{{.reviewer}} rated your session {{.rating}}/5.{{with .comment}}\n\"{{.}}\"{{end}}",
			Short:   "{{.reviewer}} rated your session {{.rating}}/5",
			Action:  "Read review",
		},
	}
}
