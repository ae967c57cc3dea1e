package schedule

import "errors"

var (
	// ErrReadOnly is returned when a viewer without the scheduler role tries
	// to change the timetable.
	ErrReadOnly = errors.New("schedule: view is read only")
	// ErrNoModal is returned when a modal operation runs without an open draft.
	ErrNoModal = errors.New("schedule: no open modal")
)

// ValidationError captures field level validation issues that callers can
// surface to users. Messages are user-facing.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
