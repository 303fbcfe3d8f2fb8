package primitives

import "fmt"

// Outcome is the result carried by a completion Event.
type Outcome int

const (
	// Pending means the event has not been signaled yet.
	Pending Outcome = iota
	Success
	Canceled
	TimedOut
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Canceled:
		return "canceled"
	case TimedOut:
		return "timed-out"
	case Failed:
		return "failed"
	}
	return "unknown"
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	for _, candidate := range []Outcome{Pending, Success, Canceled, TimedOut, Failed} {
		if candidate.String() == string(text) {
			*o = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}
