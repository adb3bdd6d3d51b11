package errors

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

var (
	// ErrStoreUnavailable is returned whenever a call against the KVS
	// adapter fails for transport or I/O reasons. It is always fatal for
	// the current run.
	ErrStoreUnavailable = Register(1, "store unavailable")

	// ErrNotFound is returned by update when the entity being updated no
	// longer exists in the store.
	ErrNotFound = Register(2, "not found")

	// ErrAlreadyExists is returned by create when an entity with the
	// given id is already present.
	ErrAlreadyExists = Register(3, "already exists")

	// ErrStaleRevision is returned by update when the entity has been
	// modified since it was loaded.
	ErrStaleRevision = Register(4, "stale revision")

	// ErrCorruptVersion is returned when a stored version record cannot
	// be parsed.
	ErrCorruptVersion = Register(5, "corrupt version record")

	// ErrBadBuildVersion is returned when the build metadata string does
	// not match the expected "<major>.<minor>.<patch>..." shape.
	ErrBadBuildVersion = Register(6, "malformed build version")

	// ErrUnsupportedVersion is returned when the stored schema version is
	// older than the minimum this binary knows how to migrate from.
	ErrUnsupportedVersion = Register(7, "unsupported storage version")

	// ErrUnsupportedLegacy is returned by a step that exists solely to
	// refuse migration from an ancient, no-longer-supported version.
	ErrUnsupportedLegacy = Register(8, "unsupported legacy version")

	// ErrMigrationAlreadyInProgress is returned when the in-progress
	// guard key is found present at the start of a run.
	ErrMigrationAlreadyInProgress = Register(9, "migration already in progress")

	// ErrCorruptLegacyTask is returned when a legacy task record fails to
	// decode during the rekey step.
	ErrCorruptLegacyTask = Register(10, "corrupt legacy task record")

	// ErrMigrationFailed wraps an untyped step failure as it surfaces out
	// of the orchestrator. Typed step failures keep their own root kind.
	ErrMigrationFailed = Register(11, "migration failed")

	// ErrInvalidConfig is returned when the engine's own configuration
	// (state/backup prefixes) fails validation.
	ErrInvalidConfig = Register(12, "invalid configuration")
)

// Register returns a new root error that should be used as the base for
// creating error instances during runtime.
//
// Popular root errors are declared in this package; extensions may declare
// their own using a code that does not collide with an already registered
// one. This function ensures no error code is used twice. Call it only
// during program startup.
func Register(code uint32, description string) *Error {
	if e, ok := usedCodes[code]; ok {
		panic(fmt.Sprintf("error with code %d is already registered: %q", code, e.desc))
	}
	err := &Error{
		code: code,
		desc: description,
	}
	usedCodes[err.code] = err
	return err
}

// usedCodes tracks codes already claimed by Register, so two root errors can
// never share one.
var usedCodes = map[uint32]*Error{}

// Error represents a root error kind.
//
// All instances created during a run wrap one of these roots, which lets
// code test the kind of a failure with Is and lets the failure carry a
// human-readable, stable description independent of whatever context was
// attached on the way up.
type Error struct {
	code uint32
	desc string
}

func (e *Error) Error() string {
	return e.desc
}

// Code returns the stable numeric identifier for this error kind.
func (e *Error) Code() uint32 {
	return e.code
}

// New returns a new error with this root as its cause.
func (e *Error) New(description string) error {
	return Wrap(e, description)
}

// Newf is New with Sprintf-style formatting.
func (e *Error) Newf(description string, args ...interface{}) error {
	return e.New(fmt.Sprintf(description, args...))
}

// Is reports whether err was ultimately created from this root error,
// unwrapping any Wrap/Wrapf layers in between.
func (kind *Error) Is(err error) bool {
	if kind == nil {
		if err == nil {
			return true
		}
		// Reflect usage is necessary to correctly compare with a nil
		// implementation of an error.
		if reflect.ValueOf(err).Kind() == reflect.Ptr {
			return reflect.ValueOf(err).IsNil()
		}
		return false
	}
	for {
		if err == kind {
			return true
		}
		if c, ok := err.(causer); ok {
			err = c.Cause()
		} else {
			return false
		}
	}
}

// Wrap extends err with additional context, attaching a stack trace the
// first time an error is wrapped. Returns nil if err is nil, so callers can
// write `return errors.Wrap(err, "...")` at the end of a function without a
// preceding nil check.
func Wrap(err error, description string) error {
	if err == nil {
		return nil
	}
	if stackTrace(err) == nil {
		err = errors.WithStack(err)
	}
	return &wrappedError{parent: err, msg: description}
}

// Wrapf is Wrap with Sprintf-style formatting.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

type wrappedError struct {
	msg    string
	parent error
}

func (e *wrappedError) Error() string {
	return fmt.Sprintf("%s: %s", e.msg, e.parent.Error())
}

func (e *wrappedError) Cause() error {
	return e.parent
}

func (e *wrappedError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s: %+v", e.msg, e.parent)
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	}
}

// causer is implemented by any error that can unwrap to its parent cause.
type causer interface {
	Cause() error
}

// RootCause walks the Cause() chain to the bottom and returns the innermost
// error. For an error created with a root's New/Newf, that innermost error
// is the registered *Error root kind; Wrap of any other error keeps that
// error as the innermost one.
func RootCause(err error) error {
	for {
		c, ok := err.(causer)
		if !ok {
			return err
		}
		err = c.Cause()
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// stackTrace returns the deepest attached stack trace, or nil if err (or any
// of its causes) never carried one.
func stackTrace(err error) errors.StackTrace {
	for {
		if st, ok := err.(stackTracer); ok {
			return st.StackTrace()
		}
		c, ok := err.(causer)
		if !ok {
			return nil
		}
		err = c.Cause()
	}
}
