// Package errors provides an error type that separates the internal cause of a
// failure from what is reported to API clients.
//
// Every *Error carries a Kind, which maps to an HTTP status code, and an
// optional public message. The wrapped cause and the stack trace captured at
// creation are only meant for logs:
//
//	payload, err := idtoken.Validate(ctx, credential, clientID)
//	if err != nil {
//	    return nil, errors.NewK(err, errors.KindInvalidCredential).
//	        WithPublicMessage("invalid Google credential")
//	}
//
// At the request boundary, HTTPStatusCode and PublicMessage are used to build
// the response while ErrorStack goes to the logger.
package errors

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
)

// The maximum number of stackframes on any error.
var MaxStackDepth = 50

// Kind classifies an error for the purpose of reporting it to a client.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindInvalidCredential
	KindInvalidToken
	KindUnauthenticated
	KindNotFound
	KindInternal
)

// String returns the machine readable code used in error envelopes.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindInvalidCredential:
		return "INVALID_CREDENTIAL"
	case KindInvalidToken:
		return "INVALID_TOKEN"
	case KindUnauthenticated:
		return "UNAUTHENTICATED"
	case KindNotFound:
		return "NOT_FOUND"
	case KindInternal:
		return "INTERNAL_ERROR"
	}
	return "UNKNOWN_ERROR"
}

// Error is an error with an attached stacktrace, a kind and a public message.
// It can be used wherever the builtin error interface is expected.
type Error struct {
	Err   error
	stack []uintptr

	prefix string
	kind   Kind

	// HTTP status code to associate with an error response, overrides the
	// status derived from kind.
	httpStatusCode int

	// Error message to return to client.
	publicMessage string
}

// New makes an Error from the given value. If that value is already an
// error then it will be used directly, if not, it will be passed to
// fmt.Errorf("%v"). The stacktrace will point to the line of code that
// called New.
func New(e interface{}) *Error {
	return newErr(e, KindUnknown, 3)
}

// NewK makes an Error of the given kind.
func NewK(e interface{}, kind Kind) *Error {
	return newErr(e, kind, 3)
}

// Errorf creates a new error with the given message.
func Errorf(format string, a ...interface{}) *Error {
	return newErr(fmt.Errorf(format, a...), KindUnknown, 3)
}

// Kindf creates a new error of the given kind with a formatted message.
func Kindf(kind Kind, format string, a ...interface{}) *Error {
	return newErr(fmt.Errorf(format, a...), kind, 3)
}

func newErr(e interface{}, kind Kind, skip int) *Error {
	var err error
	switch e := e.(type) {
	case error:
		err = e
	default:
		err = fmt.Errorf("%v", e)
	}

	stack := make([]uintptr, MaxStackDepth)
	length := runtime.Callers(skip, stack[:])
	return &Error{
		Err:   err,
		stack: stack[:length],
		kind:  kind,
	}
}

// Wrap makes an Error from the given value. An existing *Error is returned
// as-is. The skip parameter indicates how far up the stack to start the
// stacktrace. 0 is from the current call, 1 from its caller, etc.
func Wrap(e interface{}, skip int) *Error {
	if e == nil {
		return nil
	}
	if err, ok := e.(*Error); ok {
		return err
	}
	return newErr(e, KindUnknown, 3+skip)
}

// WrapPrefix wraps e and adds a prefix to the message returned by Error().
func WrapPrefix(e interface{}, prefix string, skip int) *Error {
	if e == nil {
		return nil
	}

	err := Wrap(e, 1+skip)
	if err.prefix != "" {
		prefix = fmt.Sprintf("%s: %s", prefix, err.prefix)
	}

	return &Error{
		Err:            err.Err,
		stack:          err.stack,
		kind:           err.kind,
		httpStatusCode: err.httpStatusCode,
		publicMessage:  err.publicMessage,
		prefix:         prefix,
	}
}

// WithKind takes an error and sets its kind. If the error is not already an
// `Error`, it will be wrapped in one.
func WithKind(err error, kind Kind) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, 1).WithKind(kind)
}

// WithPublicMessage takes an error and adds a public message to it.
func WithPublicMessage(err error, publicMessage string) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, 1).WithPublicMessage(publicMessage)
}

// Error returns the underlying error's message.
func (err *Error) Error() string {
	msg := err.Err.Error()
	if err.prefix != "" {
		msg = fmt.Sprintf("%s: %s", err.prefix, msg)
	}
	return msg
}

// Unwrap the error (implements api for As function).
func (err *Error) Unwrap() error {
	return err.Err
}

// Stack returns the callstack formatted similar to runtime/debug.Stack().
func (err *Error) Stack() []byte {
	buf := bytes.Buffer{}
	frames := runtime.CallersFrames(err.stack)
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&buf, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return buf.Bytes()
}

// ErrorStack returns a string that contains both the error message and the
// callstack.
func (err *Error) ErrorStack() string {
	return err.Error() + "\n" + string(err.Stack())
}

// Kind returns the kind associated with the error.
func (err *Error) Kind() Kind {
	return err.kind
}

// WithKind sets the kind associated with the error.
func (err *Error) WithKind(kind Kind) *Error {
	err.kind = kind
	return err
}

// HTTPStatusCode returns the HTTP status code that should be returned to the
// client. If a code is set, it will be used, otherwise a default will be
// returned based on the kind.
func (err *Error) HTTPStatusCode() int {
	if err.httpStatusCode != 0 {
		return err.httpStatusCode
	}
	switch err.kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidCredential, KindUnauthenticated:
		return http.StatusUnauthorized
	case KindInvalidToken:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// WithHTTPStatusCode sets the HTTP status code that should be returned to the
// client.
func (err *Error) WithHTTPStatusCode(code int) *Error {
	err.httpStatusCode = code
	return err
}

// PublicMessage returns the error string that should be returned to the
// client. Errors without a public message and without a client facing kind
// never expose their cause.
func (err *Error) PublicMessage() string {
	if err.publicMessage != "" {
		return err.publicMessage
	}
	if err.HTTPStatusCode() >= http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}

// WithPublicMessage sets the error string that should be returned to the client.
func (err *Error) WithPublicMessage(publicMessage string) *Error {
	err.publicMessage = publicMessage
	return err
}

// KindOf returns the kind of err, searching the wrap chain. Plain errors are
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// HTTPStatusCode returns an HTTP status code for an error. If the error is nil,
// it returns http.StatusOK. Errors that aren't an *Error map to 500.
func HTTPStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var e *Error
	if As(err, &e) {
		return e.HTTPStatusCode()
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message that may be shown to a client for err.
func PublicMessage(err error) string {
	var e *Error
	if As(err, &e) {
		return e.PublicMessage()
	}
	return "internal server error"
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
