// Package errs defines the domain error taxonomy shared by the services,
// the repositories and the HTTP layer.
package errs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindAuth
	KindValidation
	KindConflict
	KindNotFound
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	}
	return "internal"
}

// Error is a classified domain failure. Two errors match under errors.Is
// when their codes are equal, so callers can compare against the sentinels
// below even when a field name or message was attached.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Field   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrInvalidCredentials = &Error{Kind: KindAuth, Code: "INVALID_CREDENTIALS", Message: "invalid credentials"}
	ErrUnauthenticated    = &Error{Kind: KindAuth, Code: "UNAUTHENTICATED", Message: "session is not valid"}
	ErrExpiredSession     = &Error{Kind: KindAuth, Code: "EXPIRED_SESSION", Message: "session expired"}
	ErrForbidden          = &Error{Kind: KindAuth, Code: "FORBIDDEN", Message: "operation not allowed for this role"}

	ErrEmptyField        = &Error{Kind: KindValidation, Code: "EMPTY_FIELD", Message: "field is required"}
	ErrOutOfRangeScore   = &Error{Kind: KindValidation, Code: "OUT_OF_RANGE_SCORE", Message: "score must be between 0 and 100"}
	ErrInvalidAssignment = &Error{Kind: KindValidation, Code: "INVALID_ASSIGNMENT", Message: "invalid assignment"}
	ErrInvalidValue      = &Error{Kind: KindValidation, Code: "INVALID_VALUE", Message: "invalid value"}

	ErrAlreadyClaimed           = &Error{Kind: KindConflict, Code: "ALREADY_CLAIMED", Message: "chat was already claimed by another operator"}
	ErrAlreadyClosed            = &Error{Kind: KindConflict, Code: "ALREADY_CLOSED", Message: "chat is closed"}
	ErrAlreadyAssignedElsewhere = &Error{Kind: KindConflict, Code: "ALREADY_ASSIGNED_ELSEWHERE", Message: "chat is assigned to another operator"}
	ErrNotClosed                = &Error{Kind: KindConflict, Code: "NOT_CLOSED", Message: "chat is not closed"}
	ErrDuplicateUsername        = &Error{Kind: KindConflict, Code: "DUPLICATE_USERNAME", Message: "username already taken"}

	ErrUnknownChat = &Error{Kind: KindNotFound, Code: "UNKNOWN_CHAT", Message: "chat not found"}
	ErrUnknownUser = &Error{Kind: KindNotFound, Code: "UNKNOWN_USER", Message: "user not found"}

	ErrRateLimited = &Error{Kind: KindRateLimited, Code: "RATE_LIMITED", Message: "too many attempts, try again later"}
)

// Empty returns an EMPTY_FIELD error naming the missing field.
func Empty(field string) error {
	return &Error{Kind: KindValidation, Code: ErrEmptyField.Code, Message: "is required", Field: field}
}

// Invalid returns an INVALID_VALUE error for a field with a custom message.
func Invalid(field, message string) error {
	return &Error{Kind: KindValidation, Code: ErrInvalidValue.Code, Message: message, Field: field}
}

// Assignment returns an INVALID_ASSIGNMENT error with a specific reason.
func Assignment(message string) error {
	return &Error{Kind: KindValidation, Code: ErrInvalidAssignment.Code, Message: message}
}

// KindOf reports the classification of err, KindInternal for anything
// outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As unwraps err into the domain error, if there is one.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// SessionLost reports whether err should drop the caller back to the
// unauthenticated state.
func SessionLost(err error) bool {
	return errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrExpiredSession)
}
