package models

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindPermissionDenied  ErrorKind = "permission_denied"
	KindCancelled         ErrorKind = "cancelled"
	KindInvalidState      ErrorKind = "invalid_state"
	KindAlreadyInProgress ErrorKind = "already_in_progress"
	KindServiceError      ErrorKind = "service_error"
	KindStaleResponse     ErrorKind = "stale_response"
)

var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrCancelled         = errors.New("cancelled")
	ErrInvalidState      = errors.New("invalid state")
	ErrAlreadyInProgress = errors.New("already in progress")
	ErrServiceError      = errors.New("service error")
	ErrStaleResponse     = errors.New("stale response")
)

var kindSentinels = map[ErrorKind]error{
	KindPermissionDenied:  ErrPermissionDenied,
	KindCancelled:         ErrCancelled,
	KindInvalidState:      ErrInvalidState,
	KindAlreadyInProgress: ErrAlreadyInProgress,
	KindServiceError:      ErrServiceError,
	KindStaleResponse:     ErrStaleResponse,
}

// Error is the error descriptor recorded in a session and returned by
// controller operations. errors.Is(err, ErrServiceError) matches on Kind.
type Error struct {
	Kind ErrorKind `json:"kind"`
	// Op names the operation that failed, e.g. "tryon.process".
	Op string `json:"op,omitempty"`
	// Status is the transport status when one was received.
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func NewError(kind ErrorKind, op string, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func ServiceError(op string, status int, message string, cause error) *Error {
	return &Error{Kind: KindServiceError, Op: op, Status: status, Message: message, Err: cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		if sentinel, ok := kindSentinels[e.Kind]; ok {
			msg = sentinel.Error()
		} else {
			msg = string(e.Kind)
		}
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf reports the taxonomy kind of err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ""
}

// AsError converts any error into a descriptor, defaulting to ServiceError.
func AsError(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if kind := KindOf(err); kind != "" {
		return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
	}
	return ServiceError(op, 0, err.Error(), err)
}
