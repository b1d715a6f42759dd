package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the closed set of error classes the gateway produces.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindSecurity
	KindRateLimit
	KindQueue
	KindFulfillment
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindSecurity:
		return "security"
	case KindRateLimit:
		return "rate_limit"
	case KindQueue:
		return "queue"
	case KindFulfillment:
		return "fulfillment"
	default:
		return "unknown"
	}
}

type ErrorCode string

const (
	CodeInvalidRequest    ErrorCode = "INVALID_REQUEST"
	CodeBlockedAddress    ErrorCode = "BLOCKED_ADDRESS"
	CodeReplayAttack      ErrorCode = "REPLAY_ATTACK"
	CodeAmountTooLow      ErrorCode = "AMOUNT_TOO_LOW"
	CodeAmountTooHigh     ErrorCode = "AMOUNT_TOO_HIGH"
	CodeUnsupportedToken  ErrorCode = "UNSUPPORTED_TOKEN"
	CodeHighRisk          ErrorCode = "HIGH_RISK_TRANSACTION"
	CodeRateLimited       ErrorCode = "RATE_LIMITED"
	CodeDuplicatePending  ErrorCode = "DUPLICATE_PENDING"
	CodeQueueFull         ErrorCode = "QUEUE_FULL"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeFulfillmentFailed ErrorCode = "FULFILLMENT_FAILED"
)

// Error is the structured error returned across the admission and queue paths.
type Error struct {
	Kind             ErrorKind
	Code             ErrorCode
	Message          string
	RetryAfter       time.Duration
	ExistingPosition int
	Assessment       *Assessment
	Cause            error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func NewValidationError(msg string, cause error) *Error {
	return &Error{Kind: KindValidation, Code: CodeInvalidRequest, Message: msg, Cause: cause}
}

func NewSecurityError(code ErrorCode, msg string) *Error {
	return &Error{Kind: KindSecurity, Code: code, Message: msg}
}

func NewRateLimitError(limitedBy string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimit,
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("rate limit exceeded for %s", limitedBy),
		RetryAfter: retryAfter,
	}
}

func NewQueueError(code ErrorCode, msg string) *Error {
	return &Error{Kind: KindQueue, Code: code, Message: msg}
}

func NewFulfillmentError(cause error) *Error {
	return &Error{Kind: KindFulfillment, Code: CodeFulfillmentFailed, Message: "fulfillment failed", Cause: cause}
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the error code carried by err, or "" when err is not structured.
func CodeOf(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}
