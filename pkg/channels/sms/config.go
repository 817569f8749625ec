package sms

type Config struct {
	Region          string `env:"AWS_REGION" envDefault:"us-east-1"` // Region is the SNS region.
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`                 // AccessKeyID enables static credentials when set with SecretAccessKey.
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`             // SecretAccessKey pairs with AccessKeyID.
	SenderID        string `env:"SMS_SENDER_ID"`                     // SenderID is the alphanumeric sender shown where carriers support it.
	MaxPrice        string `env:"SMS_MAX_PRICE" envDefault:"0.50"`   // MaxPrice caps the USD price of a single message.
	Endpoint        string `env:"SNS_ENDPOINT"`                      // Endpoint overrides the SNS endpoint, e.g. for localstack.
}
