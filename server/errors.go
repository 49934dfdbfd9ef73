package server

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed detect call.
type ErrorKind string

const (
	KindInvalidInput     ErrorKind = "invalid_input"
	KindDecode           ErrorKind = "decode_error"
	KindModelUnavailable ErrorKind = "model_unavailable"
	KindDetection        ErrorKind = "detection_error"
)

// Sentinels for errors.Is checks against a *DetectError.
var (
	ErrInvalidInput     = &DetectError{Kind: KindInvalidInput}
	ErrDecode           = &DetectError{Kind: KindDecode}
	ErrModelUnavailable = &DetectError{Kind: KindModelUnavailable}
	ErrDetection        = &DetectError{Kind: KindDetection}
)

// DetectError is returned by Handler.Detect. Message is safe to show to clients.
type DetectError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func newDetectError(kind ErrorKind, message string, cause error) *DetectError {
	return &DetectError{Kind: kind, Message: message, Cause: cause}
}

func (e *DetectError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DetectError) Unwrap() error {
	return e.Cause
}

// Is matches any DetectError of the same kind.
func (e *DetectError) Is(target error) bool {
	t, ok := target.(*DetectError)
	return ok && t.Kind == e.Kind
}

// Status maps the kind to an HTTP status: caller mistakes are 400, the rest 500.
func (e *DetectError) Status() int {
	switch e.Kind {
	case KindInvalidInput, KindDecode:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// asDetectError wraps anything that is not already a DetectError as a
// generic detection failure.
func asDetectError(err error) *DetectError {
	var de *DetectError
	if errors.As(err, &de) {
		return de
	}
	return newDetectError(KindDetection, err.Error(), err)
}
