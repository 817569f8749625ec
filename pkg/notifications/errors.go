package notifications

import (
	"errors"
	"fmt"
)

var (
	// ErrNotificationNotFound is returned when a notification record does not exist.
	ErrNotificationNotFound = errors.New("notification not found")
	// ErrNotificationExists is returned by Create for an ID that is already stored.
	ErrNotificationExists = errors.New("notification already exists")

	// ErrPreferencesNotFound is returned by preference stores for users without preferences.
	// The router treats it as the Email-only default.
	ErrPreferencesNotFound = errors.New("notification preferences not found")

	ErrInvalidRequest      = errors.New("invalid routing request")
	ErrInvalidDecision     = errors.New("invalid routing decision")
	ErrUnknownChannel      = errors.New("unknown notification channel")
	ErrUnknownPriority     = errors.New("unknown notification priority")
	ErrInvalidChannelTable = errors.New("invalid channel table")
	ErrInvalidQuietHours   = errors.New("invalid quiet hours")
	ErrInvalidTransition   = errors.New("invalid notification status transition")

	// ErrPersistence wraps storage failures; they fail the whole dispatch call.
	ErrPersistence = errors.New("failed to persist notification state")

	ErrStorageNil      = errors.New("notification storage cannot be nil")
	ErrDigestQueueNil  = errors.New("digest queue cannot be nil")
	ErrRendererNil     = errors.New("renderer cannot be nil")
	ErrOrchestratorNil = errors.New("orchestrator cannot be nil")

	// ErrPermanentDelivery marks send failures that must not be retried.
	ErrPermanentDelivery = errors.New("permanent delivery failure")
	ErrNoSender          = errors.New("no sender registered for channel")
	ErrNoRecipient       = errors.New("no recipient address for channel")
	ErrRetriesExhausted  = errors.New("delivery retries exhausted")

	ErrFlushInProgress = errors.New("digest flush already in progress")
	ErrDigestDispatch  = errors.New("digest dispatch failed")
)

// Permanent marks err as non-retryable. Channel senders wrap invalid recipient
// and similar errors with it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if IsPermanent(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPermanentDelivery, err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentDelivery)
}
