package email

import "errors"

var (
	ErrFailedToSendEmail = errors.New("failed to send email")
	ErrInvalidConfig     = errors.New("invalid email config")
	ErrInvalidParams     = errors.New("invalid email params")

	// ErrRecipientRejected is returned when the provider refuses the address
	// itself; retrying cannot succeed.
	ErrRecipientRejected = errors.New("email recipient rejected")
)
