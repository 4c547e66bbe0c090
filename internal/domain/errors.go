package domain

import "fmt"

// ErrorKind enumerates the error taxonomy MessagingCore and the
// repositories emit, per the error handling design: each handler maps a
// kind to either a typed failure response or an ERROR frame.
type ErrorKind string

const (
	AuthRequired        ErrorKind = "AuthRequired"
	BadRequest          ErrorKind = "BadRequest"
	NotFound            ErrorKind = "NotFound"
	Forbidden           ErrorKind = "Forbidden"
	Conflict            ErrorKind = "Conflict"
	InvalidCredentials  ErrorKind = "InvalidCredentials"
	InvalidOrExpiredCode ErrorKind = "InvalidOrExpiredCode"
	UpstreamFailure     ErrorKind = "UpstreamFailure"
)

// DomainError is the single error type every core component returns so the
// dispatcher can map failures to wire responses without inspecting
// component-specific error values.
type DomainError struct {
	Kind ErrorKind
	Msg  string
	err  error
}

func (e *DomainError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return string(e.Kind)
}

func (e *DomainError) Unwrap() error { return e.err }

// NewError builds a DomainError with a client-facing message.
func NewError(kind ErrorKind, msg string) *DomainError {
	return &DomainError{Kind: kind, Msg: msg}
}

// Wrap builds a DomainError carrying an underlying (non-client-facing)
// cause, typically from HotStore/ColdStore.
func Wrap(kind ErrorKind, msg string, cause error) *DomainError {
	return &DomainError{Kind: kind, Msg: msg, err: cause}
}

// KindOf extracts the ErrorKind from err, defaulting to UpstreamFailure for
// anything that isn't a *DomainError — callers (HotStore/ColdStore) fail in
// ways the core didn't anticipate, and those are always upstream failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *DomainError
	if e, ok := err.(*DomainError); ok {
		de = e
		return de.Kind
	}
	return UpstreamFailure
}

var (
	ErrSelfTarget    = NewError(Conflict, "cannot target yourself")
	ErrNotFriend     = NewError(Forbidden, "you can only send messages to your friends")
	ErrNotMember     = NewError(Forbidden, "you are not a member of this group")
	ErrNotSender     = NewError(Forbidden, "only the sender can perform this action")
	ErrNotRecipient  = NewError(Forbidden, "only the recipient can mark this message read")
	ErrRecallExpired = NewError(Forbidden, "recall window has expired")
	ErrAlreadyFriends = NewError(Conflict, "already friends")
	ErrRequestPending = NewError(Conflict, "friend request already pending")
)

func Errorf(kind ErrorKind, format string, args ...interface{}) *DomainError {
	return NewError(kind, fmt.Sprintf(format, args...))
}
