package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

var schedulingTracer = otel.Tracer("clinic.internal.scheduling")

// AvailabilityCache is the read-through cache consulted before storage.
// Implementations must never fail: store errors degrade to a miss or no-op.
type AvailabilityCache interface {
	GetSchedules(ctx context.Context, date string, doctorID int64) ([]AvailableSlot, bool)
	SetSchedules(ctx context.Context, slots []AvailableSlot, date string, doctorID int64, ttl time.Duration)
	InvalidateSchedules(ctx context.Context, doctorID int64, date string) int
	GetPatient(ctx context.Context, id int64) (*Patient, bool)
	SetPatient(ctx context.Context, p *Patient, ttl time.Duration)
	InvalidatePatient(ctx context.Context, id int64)
}

// Event kinds delivered to a Notifier.
const (
	EventBooked    = "booked"
	EventCancelled = "cancelled"
)

// AppointmentEvent describes a committed booking or cancellation.
type AppointmentEvent struct {
	Kind            string
	Patient         Patient
	Appointment     Appointment
	DoctorName      string
	DoctorSpecialty string
}

// Notifier is told about committed appointment changes. Failures are the
// notifier's concern and never roll back the change.
type Notifier interface {
	Notify(ctx context.Context, event AppointmentEvent)
}

// ServiceConfig wires optional collaborators into the Service.
type ServiceConfig struct {
	Cache       AvailabilityCache
	Notifier    Notifier
	Metrics     *metrics.BookingMetrics
	ScheduleTTL time.Duration
	PatientTTL  time.Duration
}

// Service implements clinic operations on top of a Repository.
type Service struct {
	repo        Repository
	cache       AvailabilityCache
	notifier    Notifier
	metrics     *metrics.BookingMetrics
	scheduleTTL time.Duration
	patientTTL  time.Duration
	logger      *logging.Logger
}

// NewService constructs a scheduling service.
func NewService(repo Repository, cfg ServiceConfig, logger *logging.Logger) *Service {
	if repo == nil {
		panic("scheduling: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Cache == nil {
		cfg.Cache = noopCache{}
	}
	if cfg.ScheduleTTL <= 0 {
		cfg.ScheduleTTL = 300 * time.Second
	}
	if cfg.PatientTTL <= 0 {
		cfg.PatientTTL = time.Hour
	}
	return &Service{
		repo:        repo,
		cache:       cfg.Cache,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		scheduleTTL: cfg.ScheduleTTL,
		patientTTL:  cfg.PatientTTL,
		logger:      logger,
	}
}

func (s *Service) ListPatients(ctx context.Context) ([]Patient, error) {
	return s.repo.ListPatients(ctx)
}

// GetPatient reads through the patient cache.
func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	if p, ok := s.cache.GetPatient(ctx, id); ok {
		return p, nil
	}
	p, err := s.repo.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetPatient(ctx, p, s.patientTTL)
	return p, nil
}

func (s *Service) FindPatientByName(ctx context.Context, name string) (*Patient, error) {
	return s.repo.FindPatientByName(ctx, name)
}

func (s *Service) ListDoctors(ctx context.Context) ([]Doctor, error) {
	return s.repo.ListDoctors(ctx)
}

// AvailableSlots returns available slots filtered by an optional YYYY-MM-DD
// date and doctor id, reading through the availability cache.
func (s *Service) AvailableSlots(ctx context.Context, date string, doctorID int64) ([]AvailableSlot, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.available_slots")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.date", date), attribute.Int64("clinic.doctor_id", doctorID))

	date = strings.TrimSpace(date)
	var filter SlotFilter
	if date != "" {
		d, err := ParseDate(date)
		if err != nil {
			return nil, &ValidationError{Field: "date", Reason: "Invalid date format. Use YYYY-MM-DD"}
		}
		filter.Date = &d
	}
	filter.DoctorID = doctorID

	if slots, ok := s.cache.GetSchedules(ctx, date, doctorID); ok {
		span.SetAttributes(attribute.Bool("clinic.cache_hit", true))
		return slots, nil
	}

	slots, err := s.repo.ListAvailableSlots(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if slots == nil {
		slots = []AvailableSlot{}
	}
	s.cache.SetSchedules(ctx, slots, date, doctorID, s.scheduleTTL)
	return slots, nil
}

// SearchSlots queries storage directly with a free-form filter. Doctor-name
// searches are not cached.
func (s *Service) SearchSlots(ctx context.Context, filter SlotFilter) ([]AvailableSlot, error) {
	return s.repo.ListAvailableSlots(ctx, filter)
}

func (s *Service) ListAppointments(ctx context.Context) ([]AppointmentDetail, error) {
	return s.repo.ListAppointments(ctx)
}

func (s *Service) ListScheduledAppointments(ctx context.Context, patientID int64) ([]AppointmentDetail, error) {
	return s.repo.ListScheduledAppointments(ctx, patientID)
}

// BookingRequest is the payload for creating an appointment directly.
type BookingRequest struct {
	PatientID       int64  `json:"patient_id"`
	DoctorID        int64  `json:"doctor_id"`
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	Notes           string `json:"notes"`
}

// Validate checks required fields and formats.
func (r BookingRequest) Validate() (Date, TimeOfDay, error) {
	switch {
	case r.PatientID == 0:
		return Date{}, TimeOfDay{}, &ValidationError{Reason: "Missing required field: patient_id"}
	case r.DoctorID == 0:
		return Date{}, TimeOfDay{}, &ValidationError{Reason: "Missing required field: doctor_id"}
	case strings.TrimSpace(r.AppointmentDate) == "":
		return Date{}, TimeOfDay{}, &ValidationError{Reason: "Missing required field: appointment_date"}
	case strings.TrimSpace(r.AppointmentTime) == "":
		return Date{}, TimeOfDay{}, &ValidationError{Reason: "Missing required field: appointment_time"}
	}
	date, err := ParseDate(r.AppointmentDate)
	if err != nil {
		return Date{}, TimeOfDay{}, &ValidationError{Field: "appointment_date", Reason: "use YYYY-MM-DD"}
	}
	at, err := time.Parse(TimeLayout, strings.TrimSpace(r.AppointmentTime))
	if err != nil {
		return Date{}, TimeOfDay{}, &ValidationError{Field: "appointment_time", Reason: "use HH:MM"}
	}
	return date, NewTimeOfDay(at.Hour(), at.Minute()), nil
}

// BookAppointment creates an appointment on the slot that starts at the
// requested date and time, flipping the slot to unavailable.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.book")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("clinic.patient_id", req.PatientID),
		attribute.Int64("clinic.doctor_id", req.DoctorID),
	)

	date, at, err := req.Validate()
	if err != nil {
		s.metrics.ObserveOutcome("book", "invalid")
		return nil, err
	}
	patient, err := s.repo.GetPatient(ctx, req.PatientID)
	if err != nil {
		s.metrics.ObserveOutcome("book", "not_found")
		return nil, err
	}
	doctor, err := s.repo.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		s.metrics.ObserveOutcome("book", "not_found")
		return nil, err
	}

	var created *Appointment
	err = s.repo.WithTx(ctx, func(tx Tx) error {
		slot, err := tx.FindScheduleByStart(ctx, req.DoctorID, date, at)
		if err != nil {
			if errors.Is(err, ErrSlotNotFound) {
				return ErrSlotUnavailable
			}
			return err
		}
		if !slot.Availability.IsAvailable() {
			return ErrSlotUnavailable
		}
		created, err = tx.InsertAppointment(ctx, Appointment{
			PatientID:  req.PatientID,
			DoctorID:   req.DoctorID,
			ScheduleID: slot.ID,
			Date:       date,
			Time:       at,
			Status:     StatusScheduled,
			Notes:      req.Notes,
		})
		if err != nil {
			return err
		}
		return tx.SetScheduleAvailability(ctx, slot.ID, AvailabilityFalse)
	})
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveOutcome("book", outcomeFor(err))
		return nil, err
	}

	s.afterBooking(ctx, *patient, *created, doctor.Name, doctor.Specialty)
	return created, nil
}

// Reservation is the result of ReserveSlot.
type Reservation struct {
	Patient     Patient
	Appointment Appointment
	Slot        Schedule
}

// ReserveSlot upserts the patient by CPF and books the given slot in one
// transaction. The slot is locked and its availability re-checked, so a slot
// taken after it was offered fails with ErrSlotUnavailable.
func (s *Service) ReserveSlot(ctx context.Context, scheduleID int64, in PatientInput) (*Reservation, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.reserve_slot")
	defer span.End()
	span.SetAttributes(attribute.Int64("clinic.schedule_id", scheduleID))

	var res Reservation
	err := s.repo.WithTx(ctx, func(tx Tx) error {
		patient, err := tx.UpsertPatientByCPF(ctx, in)
		if err != nil {
			return err
		}
		slot, err := tx.LockSchedule(ctx, scheduleID)
		if err != nil {
			return err
		}
		if !slot.Availability.IsAvailable() {
			return ErrSlotUnavailable
		}
		appt, err := tx.InsertAppointment(ctx, Appointment{
			PatientID:  patient.ID,
			DoctorID:   slot.DoctorID,
			ScheduleID: slot.ID,
			Date:       slot.Date,
			Time:       slot.StartTime,
			Status:     StatusScheduled,
		})
		if err != nil {
			return err
		}
		if err := tx.SetScheduleAvailability(ctx, slot.ID, AvailabilityFalse); err != nil {
			return err
		}
		res = Reservation{Patient: *patient, Appointment: *appt, Slot: *slot}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveOutcome("reserve", outcomeFor(err))
		return nil, err
	}

	s.cache.InvalidatePatient(ctx, res.Patient.ID)
	var doctorName, specialty string
	if doctor, err := s.repo.GetDoctor(ctx, res.Slot.DoctorID); err == nil {
		doctorName, specialty = doctor.Name, doctor.Specialty
	}
	s.afterBooking(ctx, res.Patient, res.Appointment, doctorName, specialty)
	return &res, nil
}

func (s *Service) afterBooking(ctx context.Context, patient Patient, appt Appointment, doctorName, specialty string) {
	deleted := s.cache.InvalidateSchedules(ctx, appt.DoctorID, appt.Date.String())
	s.metrics.ObserveOutcome("book", "success")
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"patient_id", patient.ID,
		"doctor_id", appt.DoctorID,
		"date", appt.Date.String(),
		"invalidated_keys", deleted,
	)
	if s.notifier != nil {
		s.notifier.Notify(ctx, AppointmentEvent{
			Kind:            EventBooked,
			Patient:         patient,
			Appointment:     appt,
			DoctorName:      doctorName,
			DoctorSpecialty: specialty,
		})
	}
}

// CancelAppointment marks the appointment cancelled and frees its slot.
// Cancelling an already-cancelled appointment succeeds without changes.
func (s *Service) CancelAppointment(ctx context.Context, id int64) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.cancel")
	defer span.End()
	span.SetAttributes(attribute.Int64("clinic.appointment_id", id))

	var (
		appt    *Appointment
		changed bool
	)
	err := s.repo.WithTx(ctx, func(tx Tx) error {
		var err error
		appt, err = tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status == StatusCancelled {
			return nil
		}
		if err := tx.SetAppointmentStatus(ctx, id, StatusCancelled); err != nil {
			return err
		}
		appt.Status = StatusCancelled
		changed = true

		var slot *Schedule
		if appt.ScheduleID != 0 {
			slot, err = tx.LockSchedule(ctx, appt.ScheduleID)
		} else {
			slot, err = tx.FindScheduleByStart(ctx, appt.DoctorID, appt.Date, appt.Time)
		}
		if errors.Is(err, ErrSlotNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.SetScheduleAvailability(ctx, slot.ID, AvailabilityTrue)
	})
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveOutcome("cancel", outcomeFor(err))
		return nil, err
	}
	if !changed {
		return appt, nil
	}

	deleted := s.cache.InvalidateSchedules(ctx, appt.DoctorID, appt.Date.String())
	s.metrics.ObserveOutcome("cancel", "success")
	s.logger.Info("appointment cancelled",
		"appointment_id", appt.ID,
		"doctor_id", appt.DoctorID,
		"date", appt.Date.String(),
		"invalidated_keys", deleted,
	)
	if s.notifier != nil {
		event := AppointmentEvent{Kind: EventCancelled, Appointment: *appt}
		if p, err := s.repo.GetPatient(ctx, appt.PatientID); err == nil {
			event.Patient = *p
		}
		if d, err := s.repo.GetDoctor(ctx, appt.DoctorID); err == nil {
			event.DoctorName, event.DoctorSpecialty = d.Name, d.Specialty
		}
		s.notifier.Notify(ctx, event)
	}
	return appt, nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case IsNotFound(err):
		return "not_found"
	case IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}

type noopCache struct{}

func (noopCache) GetSchedules(context.Context, string, int64) ([]AvailableSlot, bool) {
	return nil, false
}
func (noopCache) SetSchedules(context.Context, []AvailableSlot, string, int64, time.Duration) {}
func (noopCache) InvalidateSchedules(context.Context, int64, string) int                    { return 0 }
func (noopCache) GetPatient(context.Context, int64) (*Patient, bool)                        { return nil, false }
func (noopCache) SetPatient(context.Context, *Patient, time.Duration)                       {}
func (noopCache) InvalidatePatient(context.Context, int64)                                  {}
