// Package errors wraps github.com/pkg/errors so every wrapped error in this
// module carries a stack trace, recoverable with errors.Cause or a "%+v"
// format verb.
package errors

import "github.com/pkg/errors"

// Wrap returns a new error wrapping the passed error with a stack trace. If
// the passed error is nil, nil is returned.
func Wrap(err error) error {
	if err == nil {
		return nil
	}

	return errors.WithStack(err)
}

// Wrapf returns a new error wrapping the passed error with a stack trace and
// the formatted message. If the passed error is nil, nil is returned.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	return errors.Wrapf(err, format, args...)
}
