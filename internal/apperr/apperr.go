// Package apperr defines the error taxonomy shared by the storage adapter,
// the upload engine and the CLI.
//
// Every error carries a Kind and an ordered list of context fields. Messages
// may reference context fields with {key} placeholders:
//
//	apperr.Wrap(apperr.KindBackend, "Reading file `{path}` failed in the backend.", err).
//		With("path", path).
//		With("type", tpe)
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error by who can act on it
type Kind int

const (
	// KindUnknown is reported for errors that did not originate here
	KindUnknown Kind = iota
	// KindConfiguration covers missing or invalid credentials and settings
	KindConfiguration
	// KindUser covers bad input: missing files, empty files, oversized uploads
	KindUser
	// KindBackend covers failures reported by the object store or the network
	KindBackend
	// KindInternal covers bugs and conditions the user cannot fix
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindUser:
		return "user"
	case KindBackend:
		return "backend"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Field is one piece of context attached to an error
type Field struct {
	Key   string
	Value string
}

// Error is a classified error with attached context
type Error struct {
	Kind    Kind
	Msg     string
	Err     error
	context []Field
}

// New creates an error without a cause
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates an error with a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an error with the given cause
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// With attaches a context field and returns the same error
func (e *Error) With(key string, value any) *Error {
	e.context = append(e.context, Field{Key: key, Value: fmt.Sprint(value)})
	return e
}

// Context returns the attached fields in insertion order
func (e *Error) Context() []Field {
	out := make([]Field, len(e.context))
	copy(out, e.context)
	return out
}

// Get returns the value of a context field
func (e *Error) Get(key string) (string, bool) {
	for _, f := range e.context {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Message renders the message with placeholders substituted
func (e *Error) Message() string {
	msg := e.Msg
	for _, f := range e.context {
		msg = strings.ReplaceAll(msg, "{"+f.Key+"}", f.Value)
	}
	return msg
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message()
	}
	return e.Message() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the outermost *Error in the chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Configuration, User, Backend and Internal are shorthands for New
func Configuration(msg string) *Error { return New(KindConfiguration, msg) }
func User(msg string) *Error          { return New(KindUser, msg) }
func Backend(msg string, err error) *Error {
	return Wrap(KindBackend, msg, err)
}
func Internal(msg string, err error) *Error {
	return Wrap(KindInternal, msg, err)
}
