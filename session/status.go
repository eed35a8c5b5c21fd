package session

import "fmt"

// Status is the lifecycle state of a session
type Status int32

const (
	AwaitingHandshake Status = iota
	Negotiating
	Active
	Draining
	Closed
)

func (s Status) String() string {
	switch s {
	case AwaitingHandshake:
		return "AwaitingHandshake"
	case Negotiating:
		return "Negotiating"
	case Active:
		return "Active"
	case Draining:
		return "Draining"
	case Closed:
		return "Closed"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}
