// Package apperr defines the typed error taxonomy shared by all splitpay
// components. Every error carries a stable machine-readable code plus a human
// message; raw causes stay wrapped and are never shown to end users.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code.
type Code string

const (
	CodeKeyGeneration        Code = "KEY_GENERATION"
	CodeDecryption           Code = "DECRYPTION"
	CodeInsufficientBalance  Code = "INSUFFICIENT_BALANCE"
	CodeInvalidAddress       Code = "INVALID_ADDRESS"
	CodeAmountNotPositive    Code = "AMOUNT_NOT_POSITIVE"
	CodeValidation           Code = "VALIDATION"
	CodeDuplicateTransaction Code = "DUPLICATE_TRANSACTION"
	CodeBlockhashExpired     Code = "BLOCKHASH_EXPIRED"
	CodeConfirmationTimeout  Code = "CONFIRMATION_TIMEOUT"
	CodeLedgerMismatch       Code = "LEDGER_MISMATCH"
	CodeNetwork              Code = "NETWORK"
	CodeRateLimited          Code = "RATE_LIMITED"
)

// Error is a coded application error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error wrapping a cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the first coded error in the chain, or empty.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
