package tasksync

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindContract
	KindServer
	KindNetwork
	KindTimeout
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindContract:
		return "contract"
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is returned by every Fetcher and Mutator operation.
type Error struct {
	Kind    Kind
	Op      string
	Status  int    // HTTP status when one was received
	Message string // server-provided message, if any
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Op, e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage is the text shown in a notification.
func (e *Error) UserMessage(fallback string) string {
	switch e.Kind {
	case KindValidation:
		return e.Message
	case KindTimeout:
		return "request timed out"
	case KindNetwork:
		return "could not reach the server, check your connection"
	case KindUnavailable:
		return "service temporarily unavailable"
	}
	if e.Message != "" {
		return e.Message
	}
	return fallback
}

var (
	ErrEmptyTitle      = errors.New("title is required")
	ErrNotConfirmed    = errors.New("action not confirmed")
	ErrAssignInFlight  = errors.New("assignment already in progress")
	ErrStoreClosed     = errors.New("view store closed")
	ErrEmptyChatSubmit = errors.New("message or attachment is required")
)

func validationError(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: err.Error(), Err: err}
}

// KindOf returns the Kind of err, KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
