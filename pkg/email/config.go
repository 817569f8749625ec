package email

type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`                               // PostmarkServerToken authorizes sends; empty selects the dev sender.
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`                              // PostmarkAccountToken is required by the Postmark client.
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"notifications@example.com"` // SenderEmail is the From address.
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@example.com"`      // SupportEmail is the Reply-To address.
	DevDir               string `env:"EMAIL_DEV_DIR" envDefault:".dev/emails"`              // DevDir is where the dev sender writes messages.
}

// UsePostmark reports whether Postmark credentials are configured.
func (c Config) UsePostmark() bool {
	return c.PostmarkServerToken != ""
}
