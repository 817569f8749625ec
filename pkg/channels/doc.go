// Package channels groups the provider adapters implementing
// notifications.ChannelSender: emailch (Postmark or dev files), sms (AWS SNS),
// push (Firebase Cloud Messaging) and inapp (Redis pub/sub).
//
// Each adapter maps provider errors that retrying cannot fix, such as a
// rejected address or an unregistered device token, to
// notifications.Permanent so the orchestrator fails the record at once.
package channels
