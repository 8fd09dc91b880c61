package notification

// Outcome is the result of one delivery attempt.
type Outcome int

const (
	// OutcomeSent: the transport accepted the message.
	OutcomeSent Outcome = iota
	// OutcomeSubscriberGone: the endpoint is permanently invalid, or the
	// item's subscriber no longer exists.
	OutcomeSubscriberGone
	// OutcomeTransientFailure: leave the item due; the next tick retries.
	OutcomeTransientFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeSubscriberGone:
		return "subscriber_gone"
	case OutcomeTransientFailure:
		return "transient_failure"
	default:
		return "unknown"
	}
}

// Terminal reports whether the item must be marked sent after this outcome.
func (o Outcome) Terminal() bool {
	return o == OutcomeSent || o == OutcomeSubscriberGone
}
