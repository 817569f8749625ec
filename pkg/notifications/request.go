package notifications

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// DigestType and DigestTemplate identify consolidated digest notifications.
const (
	DigestType     = "digest"
	DigestTemplate = "digest"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Request is the input to routing: "an event happened for user X".
type Request struct {
	UserID            string             `json:"user_id" validate:"required,max=128"`
	Type              string             `json:"type" validate:"max=64"`
	Template          string             `json:"template" validate:"required,max=128"`
	Priority          Priority           `json:"priority" validate:"gte=0,lte=3"`
	Variables         map[string]string  `json:"variables,omitempty"`
	AllowDigest       bool               `json:"allow_digest"`
	RespectQuietHours bool               `json:"respect_quiet_hours"`
	Recipients        map[Channel]string `json:"recipients,omitempty"`
	Metadata          map[string]string  `json:"metadata,omitempty"`
}

// UnmarshalJSON decodes a request, defaulting a missing priority to Normal so
// the JSON form agrees with ParsePriority. Unknown fields are rejected.
func (r *Request) UnmarshalJSON(b []byte) error {
	type plain Request
	p := plain{Priority: PriorityNormal}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*r = Request(p)
	return nil
}

// Normalize returns a copy with defaults applied and the critical-priority
// invariant enforced: critical requests never digest and ignore quiet hours.
func (r Request) Normalize() Request {
	if r.Type == "" {
		r.Type = r.Template
	}
	if r.Priority == PriorityCritical {
		r.AllowDigest = false
		r.RespectQuietHours = false
	}
	return r
}

// Validate checks required fields.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]error, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Errorf("%s failed on %q", fe.Field(), fe.Tag()))
			}
			return errors.Join(append([]error{ErrInvalidRequest}, msgs...)...)
		}
		return errors.Join(ErrInvalidRequest, err)
	}
	for c := range r.Recipients {
		if !c.Valid() {
			return fmt.Errorf("%w: recipients contain unknown channel %d", ErrInvalidRequest, c)
		}
	}
	return nil
}
