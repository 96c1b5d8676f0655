package scheduling

import (
	"errors"
	"fmt"
)

var (
	// ErrPatientNotFound is returned when a patient lookup finds nothing
	ErrPatientNotFound = errors.New("patient not found")

	// ErrDoctorNotFound is returned when a doctor lookup finds nothing
	ErrDoctorNotFound = errors.New("doctor not found")

	// ErrAppointmentNotFound is returned when an appointment lookup finds nothing
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotNotFound is returned when no schedule row matches
	ErrSlotNotFound = errors.New("schedule slot not found")

	// ErrSlotUnavailable is returned when the slot exists but is already booked
	ErrSlotUnavailable = errors.New("time slot not available")
)

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// IsNotFound reports whether err is one of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPatientNotFound) ||
		errors.Is(err, ErrDoctorNotFound) ||
		errors.Is(err, ErrAppointmentNotFound) ||
		errors.Is(err, ErrSlotNotFound)
}

// IsValidation reports whether err is a client-side input problem.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) || errors.Is(err, ErrSlotUnavailable)
}
