package conversation

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

var conversationTracer = otel.Tracer("clinic.internal.conversation")

// Reserver books a slot for a patient in one transaction.
type Reserver interface {
	ReserveSlot(ctx context.Context, scheduleID int64, in scheduling.PatientInput) (*scheduling.Reservation, error)
}

// Finalizer commits a completed registration.
type Finalizer struct {
	reserver Reserver
	logger   *logging.Logger
}

func NewFinalizer(reserver Reserver, logger *logging.Logger) *Finalizer {
	if reserver == nil {
		panic("conversation: reserver cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Finalizer{reserver: reserver, logger: logger}
}

// Finalize upserts the patient and books the pinned slot. The slot's
// availability is checked again under a row lock, so a slot taken since it
// was offered yields a slot_unavailable reply and nothing is written. Either
// way the caller resets the session.
func (f *Finalizer) Finalize(ctx context.Context, userID string, reg Registration) Reply {
	ctx, span := conversationTracer.Start(ctx, "conversation.finalize_booking")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.user_id", userID),
		attribute.Int64("clinic.schedule_id", reg.Slot.ID),
	)

	if !reg.Complete() {
		err := errors.New("conversation: registration incomplete")
		span.RecordError(err)
		f.logger.Error("finalize called with incomplete registration", "user_id", userID)
		return bookingErrorReply(err)
	}

	res, err := f.reserver.ReserveSlot(ctx, reg.Slot.ID, reg.PatientInput())
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, scheduling.ErrSlotUnavailable) || errors.Is(err, scheduling.ErrSlotNotFound) {
			f.logger.Warn("pinned slot no longer available", "user_id", userID, "schedule_id", reg.Slot.ID)
			return failureReply("slot_unavailable",
				"Desculpe, este horário acabou de ser reservado por outra pessoa.\n\n"+
					"Por favor, escolha outro horário para continuar.",
				err, "book_appointment")
		}
		f.logger.Error("failed to book appointment", "user_id", userID, "schedule_id", reg.Slot.ID, "error", err)
		return bookingErrorReply(err)
	}

	f.logger.Info("conversation booking completed",
		"user_id", userID,
		"appointment_id", res.Appointment.ID,
		"patient_id", res.Patient.ID,
	)
	return bookedReply(res, reg.Slot)
}

func bookingErrorReply(err error) Reply {
	return failureReply("booking_error", "Ocorreu um erro ao agendar a consulta. Tente novamente.", err, "book_appointment")
}
