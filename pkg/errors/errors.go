// Package errors wraps github.com/pkg/errors with the helpers used throughout
// foldersync.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// New returns an error with the given message.
func New(msg string, args ...interface{}) error {
	return errors.Errorf(msg, args...)
}

// WithContext annotates err with a description of what was being attempted.
// It returns nil if err is nil.
func WithContext(err error, context string) error {
	return errors.WithMessage(err, context)
}

// RootCause returns the innermost error of a chain built with WithContext.
func RootCause(err error) error {
	return errors.Cause(err)
}

// Friendly is implemented by errors whose message is meant to be shown to
// users as-is, without the chain of context that led to it.
type Friendly interface {
	FriendlyMessage() string
}

// FriendlyError is an error with a message formatted for users.
type FriendlyError struct {
	msg string
}

// NewFriendlyError creates a FriendlyError from a format string.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{fmt.Sprintf(format, args...)}
}

func (err FriendlyError) Error() string {
	return err.msg
}

// FriendlyMessage implements the Friendly interface.
func (err FriendlyError) FriendlyMessage() string {
	return err.msg
}
