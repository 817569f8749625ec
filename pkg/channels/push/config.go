package push

import "time"

type Config struct {
	ProjectID       string        `env:"FIREBASE_PROJECT_ID"`                       // ProjectID is the Firebase project.
	CredentialsFile string        `env:"FIREBASE_CREDENTIALS_FILE"`                 // CredentialsFile is a service account JSON file.
	CredentialsJSON string        `env:"FIREBASE_CREDENTIALS_JSON"`                 // CredentialsJSON is the service account JSON inline; wins over CredentialsFile.
	TTL             time.Duration `env:"PUSH_TTL" envDefault:"24h"`                 // TTL is how long FCM keeps undelivered messages.
	AndroidChannel  string        `env:"PUSH_ANDROID_CHANNEL" envDefault:"default"` // AndroidChannel is the Android notification channel ID.
}
