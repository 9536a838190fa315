package services

import (
	"errors"
	"strings"
)

var (
	ErrVisitorNotFound   = errors.New("visitor not found")
	ErrAlreadyCheckedOut = errors.New("visitor already checked out")
	ErrInvalidTimeRange  = errors.New("checkout time is earlier than checkin time")
	ErrNoIDs             = errors.New("no visitor ids given")
	ErrSubmitInFlight    = errors.New("the same check-in is already being saved")
	ErrNoPhoto           = errors.New("no photo given")

	ErrValidationFailed      = errors.New("validation failed")
	ErrPersistFailed         = errors.New("persist failed")
	ErrUploadFailed          = errors.New("photo upload failed")
	ErrCredentialPatchFailed = errors.New("credential patch failed")
)

// ValidationError carries every field violation of a rejected draft.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+string(f.Reason))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

// PersistError wraps the store failure of the mandatory insert. Error
// returns the underlying message unchanged so it can be shown to the
// operator as-is.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string { return e.Err.Error() }

func (e *PersistError) Unwrap() error { return e.Err }

func (e *PersistError) Is(target error) bool { return target == ErrPersistFailed }
