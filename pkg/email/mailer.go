package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

type SendEmailParams struct {
	SendTo   string `json:"send_to" validate:"required,email"`                        // Email address of the recipient
	Subject  string `json:"subject" validate:"required"`                              // Subject of the email
	BodyHTML string `json:"body_html" validate:"required_without=BodyText"`           // HTML body of the email
	BodyText string `json:"body_text,omitempty" validate:"required_without=BodyHTML"` // Plain text alternative
	Tag      string `json:"tag,omitempty"`                                            // Optional
}

// Validate trims the params and checks required fields and the address format.
func (p SendEmailParams) Validate() error {
	p.SendTo = strings.TrimSpace(p.SendTo)
	p.Subject = strings.TrimSpace(p.Subject)
	p.BodyHTML = strings.TrimSpace(p.BodyHTML)
	p.BodyText = strings.TrimSpace(p.BodyText)

	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := []error{ErrInvalidParams}
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Errorf("%s failed on %q", fe.Field(), fe.Tag()))
			}
			return errors.Join(msgs...)
		}
		return errors.Join(ErrInvalidParams, err)
	}
	return nil
}
