/*
Package errors implements the typed-error taxonomy used by the schema
migration engine.

Every failure the engine can return is a registered root error (see
Register). Extensions and callers test against these roots with
ErrXxx.Is(err) rather than string matching, and wrap them with additional
context using Wrap/Wrapf as the failure travels up the call stack. Each
root error is created exactly once during package initialization; Register
panics on a duplicate code.

Use fmt's %+v on a wrapped error to print its stack trace; %s/%v print the
message only.
*/
package errors
