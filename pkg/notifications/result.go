package notifications

import "time"

// ResultStatus discriminates the outcome of RouteAndDispatch.
type ResultStatus uint8

const (
	// ResultSuccess: every attempted channel was sent, or the request was
	// scheduled or queued for a digest.
	ResultSuccess ResultStatus = iota + 1
	// ResultPartialFailure: at least one channel failed; see Result.Channels.
	ResultPartialFailure
	// ResultRejected: the request was invalid or suppressed as a duplicate.
	ResultRejected
)

func (s ResultStatus) String() string {
	switch s {
	case ResultSuccess:
		return "success"
	case ResultPartialFailure:
		return "partial_failure"
	case ResultRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ChannelResult is the outcome for one channel record.
type ChannelResult struct {
	NotificationID string
	Channel        Channel
	Status         Status
	Attempts       int
	Err            error
}

// Result describes what happened to one routing request.
type Result struct {
	Status        ResultStatus
	Mode          Mode
	Reason        string
	ScheduledFor  *time.Time
	Channels      []ChannelResult
	DigestEntryID string
}

// Sent returns the number of channels delivered.
func (r Result) Sent() int {
	return r.count(StatusSent)
}

// Failed returns the number of channels that failed.
func (r Result) Failed() int {
	return r.count(StatusFailed)
}

func (r Result) count(s Status) int {
	n := 0
	for _, c := range r.Channels {
		if c.Status == s {
			n++
		}
	}
	return n
}

func rejected(reason string) Result {
	return Result{Status: ResultRejected, Reason: reason}
}

func deliveryResult(d Decision, channels []ChannelResult) Result {
	status := ResultSuccess
	for _, c := range channels {
		if c.Status != StatusSent {
			status = ResultPartialFailure
			break
		}
	}
	return Result{
		Status:   status,
		Mode:     d.Mode,
		Reason:   d.Reason,
		Channels: channels,
	}
}
