// Package ferrors defines the typed error kinds surfaced across fabricd,
// and the propagation policy for turning them into wire-layer results.
package ferrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code identifies an error kind stably enough to cross the wire layer.
type Code string

const (
	CodeDatabase      Code = "DatabaseError"
	CodeUUID          Code = "UuidError"
	CodeProgramming   Code = "ProgrammingError"
	CodeConfiguration Code = "ConfigurationError"
	CodeTimeout       Code = "TimeoutError"
	CodeExecutor      Code = "ExecutorError"
	CodeLockManager   Code = "LockManagerError"
	CodeGroup         Code = "GroupError"
	CodeServer        Code = "ServerError"
	CodeSharding      Code = "ShardingError"
	CodeProcedure     Code = "ProcedureError"
	CodePersistence   Code = "PersistenceError"
	CodeInvalidGtid   Code = "InvalidGtidError"
)

// Error is the typed error carried through fabricd. Code is stable across
// versions so the wire layer (internal/rpc) can surface it verbatim; Msg is
// the human diagnosis; Cause, when present, is wrapped with a pkg/errors
// stack trace so logging can render it with .Stack().
type Error struct {
	Code  Code
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no wrapped cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap builds an Error around cause, attaching a stack trace if cause
// doesn't already carry one.
func Wrap(code Code, msg string, cause error) *Error {
	if cause == nil {
		return New(code, msg)
	}
	type stackTracer interface{ StackTrace() errors.StackTrace }
	if _, ok := cause.(stackTracer); !ok {
		cause = errors.WithStack(cause)
	}
	return &Error{Code: code, Msg: msg, Cause: cause}
}

// CodeOf extracts the Code from err if it (or something it wraps) is an
// *Error, and false otherwise.
func CodeOf(err error) (Code, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code, true
	}
	return "", false
}

func Database(msg string, cause error) *Error    { return Wrap(CodeDatabase, msg, cause) }
func UUID(msg string, cause error) *Error        { return Wrap(CodeUUID, msg, cause) }
func Programming(msg string) *Error              { return New(CodeProgramming, msg) }
func Configuration(msg string) *Error            { return New(CodeConfiguration, msg) }
func Timeout(msg string, cause error) *Error     { return Wrap(CodeTimeout, msg, cause) }
func Executor(msg string) *Error                 { return New(CodeExecutor, msg) }
func LockManager(msg string) *Error              { return New(CodeLockManager, msg) }
func Group(msg string) *Error                    { return New(CodeGroup, msg) }
func Server(msg string) *Error                   { return New(CodeServer, msg) }
func Sharding(msg string) *Error                  { return New(CodeSharding, msg) }
func Procedure(msg string) *Error                { return New(CodeProcedure, msg) }
func Persistence(msg string, cause error) *Error { return Wrap(CodePersistence, msg, cause) }
func InvalidGtid(msg string) *Error              { return New(CodeInvalidGtid, msg) }

// LockBroken is the specific LockManagerError diagnosis used when
// break_conflicts aborts a procedure.
func LockBroken() *Error {
	return New(CodeLockManager, "lock broken")
}
