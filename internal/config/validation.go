package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const maxNameLen = 100

// ValidationError is a problem with one configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ValidationErrors collects field problems in the order they were found.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Add records a problem with field.
func (errs *ValidationErrors) Add(field, msg string) {
	*errs = append(*errs, ValidationError{Field: field, Message: msg})
}

// Check records err under field. A nil err is ignored.
func (errs *ValidationErrors) Check(field string, err error) {
	if err != nil {
		errs.Add(field, err.Error())
	}
}

func (errs ValidationErrors) errOrNil() error {
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func notEmpty(value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New("must not be empty")
	}
	return nil
}

func oneOf(value string, allowed ...string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%q is not one of %s", value, strings.Join(allowed, ", "))
}

// validName accepts names that are safe to embed in callback paths and
// session IDs.
func validName(name string) error {
	if err := notEmpty(name); err != nil {
		return err
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("must be at most %d characters", maxNameLen)
	}
	if strings.ContainsAny(name, " /\\") {
		return errors.New("cannot contain spaces or slashes")
	}
	return nil
}
