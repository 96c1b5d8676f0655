package scheduling

import "context"

// Repository defines read access to clinic data plus a transactional write path.
type Repository interface {
	ListPatients(ctx context.Context) ([]Patient, error)
	GetPatient(ctx context.Context, id int64) (*Patient, error)
	// FindPatientByName returns the first patient whose name contains
	// the given text, case-insensitively.
	FindPatientByName(ctx context.Context, name string) (*Patient, error)
	FindPatientByCPF(ctx context.Context, cpf string) (*Patient, error)
	CountPatients(ctx context.Context) (int, error)

	ListDoctors(ctx context.Context) ([]Doctor, error)
	GetDoctor(ctx context.Context, id int64) (*Doctor, error)

	// ListAvailableSlots returns slots flagged available, ordered by date and start time.
	ListAvailableSlots(ctx context.Context, filter SlotFilter) ([]AvailableSlot, error)

	ListAppointments(ctx context.Context) ([]AppointmentDetail, error)
	ListScheduledAppointments(ctx context.Context, patientID int64) ([]AppointmentDetail, error)

	// WithTx runs fn inside a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write surface available inside WithTx.
type Tx interface {
	UpsertPatientByCPF(ctx context.Context, in PatientInput) (*Patient, error)
	InsertDoctor(ctx context.Context, d Doctor) (*Doctor, error)
	InsertSchedule(ctx context.Context, s Schedule) (*Schedule, error)

	// LockSchedule loads a slot and holds it for the rest of the transaction.
	LockSchedule(ctx context.Context, id int64) (*Schedule, error)
	// FindScheduleByStart loads and locks the slot starting at the given time.
	FindScheduleByStart(ctx context.Context, doctorID int64, date Date, start TimeOfDay) (*Schedule, error)
	SetScheduleAvailability(ctx context.Context, id int64, availability Availability) error

	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	// GetAppointment loads and locks an appointment row.
	GetAppointment(ctx context.Context, id int64) (*Appointment, error)
	SetAppointmentStatus(ctx context.Context, id int64, status string) error
}
