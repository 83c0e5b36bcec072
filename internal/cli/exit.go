// Package cli holds the pieces shared by coachdb commands: exit codes,
// confirmation prompts and version information.
package cli

import (
	"errors"

	"github.com/mesh-intelligence/coachdb/pkg/types"
)

// Exit codes.
const (
	ExitSuccess   = 0
	ExitUserError = 1
	ExitSysError  = 2
)

// Error carries the exit code a command failure should produce.
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// UserError marks err as caused by bad input.
func UserError(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: ExitUserError, Err: err}
}

// SystemError marks err as an environment or backend failure.
func SystemError(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: ExitSysError, Err: err}
}

// userSentinels are errors that always mean the input was wrong.
var userSentinels = []error{
	types.ErrNotFound,
	types.ErrInvalidID,
	types.ErrInvalidPath,
	types.ErrInvalidData,
	types.ErrInvalidPlan,
	types.ErrUnknownRule,
	types.ErrAborted,
	types.ErrBackendEmpty,
	types.ErrBackendUnknown,
	types.ErrProjectIDMissing,
	types.ErrBatchSizeInvalid,
}

// Code returns the exit code for err. Errors marked with UserError or
// SystemError keep their code; unmarked errors wrapping a user-input
// sentinel map to ExitUserError and everything else to ExitSysError.
func Code(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	for _, s := range userSentinels {
		if errors.Is(err, s) {
			return ExitUserError
		}
	}
	return ExitSysError
}
