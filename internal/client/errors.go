package client

import "fmt"

type Kind string

const (
	// KindApplication means the endpoint answered but reported failure.
	KindApplication Kind = "application"
	// KindTransport covers network failures, timeouts and non-2xx responses.
	KindTransport Kind = "transport"
)

type Error struct {
	Kind    Kind
	Status  int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
