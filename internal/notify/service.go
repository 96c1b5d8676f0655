package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const sendTimeout = 10 * time.Second

// BookingNotifier emails patients when an appointment is booked or
// cancelled. Patients without an email address are skipped. Send failures
// are logged and never surface to the caller.
type BookingNotifier struct {
	email  EmailSender
	logger *logging.Logger
}

func NewBookingNotifier(email EmailSender, logger *logging.Logger) *BookingNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingNotifier{email: email, logger: logger}
}

// Notify implements scheduling.Notifier.
func (n *BookingNotifier) Notify(ctx context.Context, event scheduling.AppointmentEvent) {
	if n == nil || n.email == nil {
		return
	}
	to := strings.TrimSpace(event.Patient.Email)
	if to == "" {
		n.logger.Debug("notify: patient has no email, skipping", "appointment_id", event.Appointment.ID, "kind", event.Kind)
		return
	}

	msg, ok := buildMessage(event)
	if !ok {
		n.logger.Warn("notify: unknown appointment event", "kind", event.Kind)
		return
	}
	msg.To = to
	msg.ToName = event.Patient.Name

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	if err := n.email.Send(ctx, msg); err != nil {
		n.logger.Error("notify: failed to send appointment email",
			"error", err,
			"appointment_id", event.Appointment.ID,
			"kind", event.Kind,
		)
	}
}

func buildMessage(event scheduling.AppointmentEvent) (EmailMessage, bool) {
	appt := event.Appointment
	doctor := scheduling.DoctorDisplayName(event.DoctorName)
	if event.DoctorName == "" {
		doctor = "o médico"
	}

	switch event.Kind {
	case scheduling.EventBooked:
		body := fmt.Sprintf("Olá, %s!\n\nSua consulta foi agendada com sucesso.\n\n"+
			"Data: %s\nHorário: %s\nMédico: %s\n",
			event.Patient.Name, appt.Date.Display(), appt.Time.Short(), doctor)
		if event.DoctorSpecialty != "" {
			body += fmt.Sprintf("Especialidade: %s\n", event.DoctorSpecialty)
		}
		body += "\nAgradecemos a confiança!"
		return EmailMessage{
			Subject: fmt.Sprintf("Consulta agendada para %s às %s", appt.Date.Display(), appt.Time.Short()),
			Body:    body,
		}, true
	case scheduling.EventCancelled:
		return EmailMessage{
			Subject: fmt.Sprintf("Consulta de %s cancelada", appt.Date.Display()),
			Body: fmt.Sprintf("Olá, %s!\n\nSua consulta de %s às %s com %s foi cancelada.\n\n"+
				"Se precisar reagendar, estamos à disposição.",
				event.Patient.Name, appt.Date.Display(), appt.Time.Short(), doctor),
		}, true
	default:
		return EmailMessage{}, false
	}
}

var _ scheduling.Notifier = (*BookingNotifier)(nil)
