// Package email sends transactional email.
//
// EmailSender has two implementations: a Postmark client built on
// github.com/mrz1836/postmark and DevSender, which writes every message to a
// local directory as an HTML body and a JSON metadata file. New picks Postmark
// when a server token is configured.
//
// SendEmailParams.Validate checks the address and required fields with
// go-playground/validator before anything leaves the process.
//
// # Error Handling
//
// All send failures wrap [ErrFailedToSendEmail]. Postmark rejections of the
// address itself (invalid or inactive recipient) also wrap
// [ErrRecipientRejected], which callers treat as non-retryable.
package email
