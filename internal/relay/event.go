package relay

// Kind tells which Telegram update field an event came from.
type Kind string

const (
	KindMessage     Kind = "message"
	KindChannelPost Kind = "channel_post"
)

// Event is an inbound message or channel post.
type Event struct {
	Kind      Kind
	ChatID    int64
	MessageID int
}

// Outcome is the result class of handling one event.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeCopied
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCopied:
		return "copied"
	case OutcomeFailed:
		return "failed"
	default:
		return "ignored"
	}
}

// Result describes what Forwarder.Handle did with an event.
// Entry is the zero value when nothing was logged.
type Result struct {
	Outcome Outcome
	Entry   Entry
	Err     error
}
