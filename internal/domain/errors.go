package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode string

// Error codes for different categories
const (
	// Timer Errors (1xxx)
	ErrCodeStartConflict     ErrorCode = "TIMER_1001"
	ErrCodeInvalidTransition ErrorCode = "TIMER_1002"
	ErrCodePersistence       ErrorCode = "TIMER_1003"

	// Conflict Detection Errors (2xxx)
	ErrCodeQuery           ErrorCode = "CONFLICT_2001"
	ErrCodeInvalidInterval ErrorCode = "CONFLICT_2002"

	// Compliance Errors (3xxx)
	ErrCodeClientNotFound ErrorCode = "COMPLIANCE_3001"
	ErrCodeDirectory      ErrorCode = "COMPLIANCE_3002"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func NewDomainError(message string) *DomainError {
	return &DomainError{Message: message}
}

// AppError represents a structured application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Details)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code, so callers can compare
// against the sentinels below with errors.Is.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// Sentinels for errors.Is comparisons.
var (
	ErrStartConflict     = &AppError{Code: ErrCodeStartConflict, Message: "an active timer already exists"}
	ErrInvalidTransition = &AppError{Code: ErrCodeInvalidTransition, Message: "invalid timer transition"}
	ErrPersistence       = &AppError{Code: ErrCodePersistence, Message: "time entry write failed"}
	ErrQuery             = &AppError{Code: ErrCodeQuery, Message: "commitment query failed"}
	ErrInvalidInterval   = &AppError{Code: ErrCodeInvalidInterval, Message: "invalid candidate interval"}
	ErrClientNotFound    = &AppError{Code: ErrCodeClientNotFound, Message: "client not found"}
	ErrDirectory         = &AppError{Code: ErrCodeDirectory, Message: "customer directory lookup failed"}
)

// Timer errors

func NewStartConflict(operatorID, activeEntryID string) *AppError {
	details := fmt.Sprintf("Operator ID: %s", operatorID)
	if activeEntryID != "" {
		details += fmt.Sprintf(", Active entry: %s", activeEntryID)
	}
	return NewAppError(ErrCodeStartConflict, ErrStartConflict.Message, details, nil)
}

func NewInvalidTransition(from TimerState, op string) *AppError {
	return NewAppError(ErrCodeInvalidTransition, ErrInvalidTransition.Message,
		fmt.Sprintf("cannot %s while %s", op, from), nil)
}

func NewPersistenceError(op, entryID string, cause error) *AppError {
	return NewAppError(ErrCodePersistence, ErrPersistence.Message,
		fmt.Sprintf("Operation: %s, Entry ID: %s", op, entryID), cause)
}

// Conflict detection errors

func NewQueryError(cause error) *AppError {
	return NewAppError(ErrCodeQuery, ErrQuery.Message, "", cause)
}

func NewInvalidInterval(details string) *AppError {
	return NewAppError(ErrCodeInvalidInterval, ErrInvalidInterval.Message, details, nil)
}

// Compliance errors

func NewClientNotFound(clientID string) *AppError {
	return NewAppError(ErrCodeClientNotFound, ErrClientNotFound.Message, fmt.Sprintf("Client ID: %s", clientID), nil)
}

func NewDirectoryError(clientID string, cause error) *AppError {
	return NewAppError(ErrCodeDirectory, ErrDirectory.Message, fmt.Sprintf("Client ID: %s", clientID), cause)
}
