package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the acquire-and-dispatch pipeline
type ErrorKind string

const (
	KindLaunch                    ErrorKind = "LaunchError"
	KindAuthenticationFailed      ErrorKind = "AuthenticationFailed"
	KindCredentialCaptureFailed   ErrorKind = "CredentialCaptureFailed"
	KindResourceNotFound          ErrorKind = "ResourceNotFound"
	KindReferenceExtractionFailed ErrorKind = "ReferenceExtractionFailed"
	KindDispatchRejected          ErrorKind = "DispatchRejected"
	KindTotpGeneration            ErrorKind = "TotpGenerationError"
)

// AcquisitionError is the typed error surfaced by every pipeline stage
type AcquisitionError struct {
	Kind    ErrorKind
	Message string
	Status  int    // DispatchRejected only
	Body    string // DispatchRejected only
	Err     error
}

func (e *AcquisitionError) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Kind == KindDispatchRejected {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// Is matches on kind so errors.Is(err, ErrResourceNotFound) works
func (e *AcquisitionError) Is(target error) bool {
	t, ok := target.(*AcquisitionError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is comparisons
var (
	ErrLaunch                    = &AcquisitionError{Kind: KindLaunch}
	ErrAuthenticationFailed      = &AcquisitionError{Kind: KindAuthenticationFailed}
	ErrCredentialCaptureFailed   = &AcquisitionError{Kind: KindCredentialCaptureFailed}
	ErrResourceNotFound          = &AcquisitionError{Kind: KindResourceNotFound}
	ErrReferenceExtractionFailed = &AcquisitionError{Kind: KindReferenceExtractionFailed}
	ErrDispatchRejected          = &AcquisitionError{Kind: KindDispatchRejected}
	ErrTotpGeneration            = &AcquisitionError{Kind: KindTotpGeneration}
)

// NewError builds a typed error wrapping cause
func NewError(kind ErrorKind, message string, cause error) *AcquisitionError {
	return &AcquisitionError{Kind: kind, Message: message, Err: cause}
}

// NewDispatchRejected records the remote status and body of a refused dispatch
func NewDispatchRejected(status int, body string) *AcquisitionError {
	return &AcquisitionError{
		Kind:    KindDispatchRejected,
		Message: "dispatch endpoint refused the request",
		Status:  status,
		Body:    body,
	}
}

// KindOf returns the error kind, or "" for untyped errors
func KindOf(err error) ErrorKind {
	var ae *AcquisitionError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsRetryable reports whether the orchestrator should spend another attempt.
// DispatchRejected and TotpGenerationError are final.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindDispatchRejected, KindTotpGeneration:
		return false
	}
	return err != nil
}
