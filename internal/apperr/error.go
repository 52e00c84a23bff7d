// Package apperr defines the relay's error taxonomy (spec §7): transient
// upstream, fatal upstream, config, command, trade, and invariant errors.
package apperr

import "fmt"

const title = "marketrelay"

type ErrorType string

const (
	TransientUpstream ErrorType = "TransientUpstream"
	FatalUpstream     ErrorType = "FatalUpstream"
	Config            ErrorType = "Config"
	Command           ErrorType = "Command"
	Trade             ErrorType = "Trade"
	Invariant         ErrorType = "Invariant"
)

// Error is the relay's concrete error type, carrying the taxonomy class,
// the failing component/operation, and the wrapped cause.
type Error struct {
	Type      ErrorType
	Component string
	Err       error
}

func New(t ErrorType, component string, err error) *Error {
	return &Error{Type: t, Component: component, Err: err}
}

func (e *Error) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("%s: %s: %s: %s", title, e.Component, e.Type, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", title, e.Type, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsType reports whether the first *Error found along err's Unwrap chain
// has type t.
func IsType(err error, t ErrorType) bool {
	var target *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			target = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return target != nil && target.Type == t
}
