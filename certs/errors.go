package certs

import "fmt"

type Kind int

const (
	KindResolution Kind = iota + 1
	KindService
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindResolution:
		return "resolution"
	case KindService:
		return "service"
	case KindIO:
		return "io"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is what a failed update cycle returns. Callers only need Fatal to
// decide between logging and exiting.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal is true for local write failures. Resolution and service failures
// are retried on the next tick.
func (e *Error) Fatal() bool {
	return e.Kind == KindIO
}
