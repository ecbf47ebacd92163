package domain

import "fmt"

// ZoneError ties a failure to the zone it happened in.
type ZoneError struct {
	ZoneID string
	Stage  string
	Err    error
}

func (e ZoneError) Error() string {
	return fmt.Sprintf("zone %s: %s: %v", e.ZoneID, e.Stage, e.Err)
}

func (e ZoneError) Unwrap() error { return e.Err }

// MultiError collects independent failures from a batch operation.
type MultiError struct {
	Errors []error `json:"errors"`
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", e.Errors[0].Error(), len(e.Errors)-1)
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add records err if it is non-nil.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors reports whether anything was recorded.
func (e *MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrOrNil returns the MultiError as an error, or nil when empty.
func (e *MultiError) ErrOrNil() error {
	if !e.HasErrors() {
		return nil
	}
	return *e
}
