package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Scheduler is the subset of the scheduling service the engine drives.
type Scheduler interface {
	Reserver
	AvailableSlots(ctx context.Context, date string, doctorID int64) ([]scheduling.AvailableSlot, error)
	SearchSlots(ctx context.Context, filter scheduling.SlotFilter) ([]scheduling.AvailableSlot, error)
	FindPatientByName(ctx context.Context, name string) (*scheduling.Patient, error)
	ListScheduledAppointments(ctx context.Context, patientID int64) ([]scheduling.AppointmentDetail, error)
	CancelAppointment(ctx context.Context, id int64) (*scheduling.Appointment, error)
}

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Store     SessionStore
	Scheduler Scheduler
	Metrics   *metrics.ConversationMetrics
	// AnonymousUserID replaces blank or anonymous user ids.
	AnonymousUserID string
}

// Engine runs the booking and cancellation state machine.
type Engine struct {
	store       SessionStore
	scheduler   Scheduler
	finalizer   *Finalizer
	metrics     *metrics.ConversationMetrics
	anonymousID string
	locks       *keyedMutex
	logger      *logging.Logger
}

func NewEngine(cfg EngineConfig, logger *logging.Logger) *Engine {
	if cfg.Store == nil {
		panic("conversation: session store cannot be nil")
	}
	if cfg.Scheduler == nil {
		panic("conversation: scheduler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.AnonymousUserID) == "" {
		cfg.AnonymousUserID = "default_user"
	}
	return &Engine{
		store:       cfg.Store,
		scheduler:   cfg.Scheduler,
		finalizer:   NewFinalizer(cfg.Scheduler, logger),
		metrics:     cfg.Metrics,
		anonymousID: cfg.AnonymousUserID,
		locks:       newKeyedMutex(),
		logger:      logger,
	}
}

// HandleTurn processes one message. Turns for the same user run one at a
// time. Any failure resets the user's session and yields the apology reply
// with Success false.
func (e *Engine) HandleTurn(ctx context.Context, rawUserID, message string) Reply {
	userID := NormalizeUserID(rawUserID, e.anonymousID)
	unlock := e.locks.Lock(userID)
	defer unlock()

	start := time.Now()
	sess, err := e.store.Get(ctx, userID)
	if err != nil {
		return e.fail(ctx, userID, StateIdle, err)
	}

	intent := Classify(message)
	out, next, err := e.step(ctx, userID, sess, intent, message)
	e.metrics.ObserveTurnLatency(string(sess.State), time.Since(start).Seconds())
	if err != nil {
		return e.fail(ctx, userID, sess.State, err)
	}

	if next.State == StateIdle {
		if sess.State != StateIdle {
			e.metrics.ObserveSessionReset(out.ActionTaken)
		}
		err = e.store.Reset(ctx, userID)
	} else {
		err = e.store.Put(ctx, userID, next)
	}
	if err != nil {
		return e.fail(ctx, userID, sess.State, err)
	}

	e.metrics.ObserveTurn(string(intent), out.ActionTaken)
	e.logger.Info("conversation turn",
		"user_id", userID,
		"intent", string(intent),
		"state", string(sess.State),
		"next_state", string(next.State),
		"step", next.Step,
		"action", out.ActionTaken,
	)
	return out
}

func (e *Engine) fail(ctx context.Context, userID string, state State, err error) Reply {
	e.metrics.ObserveTurnError(string(state))
	e.metrics.ObserveSessionReset("error")
	e.logger.Error("conversation turn failed", "user_id", userID, "state", string(state), "error", err)
	if resetErr := e.store.Reset(ctx, userID); resetErr != nil {
		e.logger.Error("failed to reset session", "user_id", userID, "error", resetErr)
	}
	return errorReply(err)
}

func (e *Engine) step(ctx context.Context, userID string, sess Session, intent Intent, message string) (Reply, Session, error) {
	switch sess.State {
	case StateIdle, "":
		return e.idle(ctx, intent, message)
	case StateSelectingSchedule:
		return e.selecting(sess, intent, message)
	case StateRegisteringPatient:
		return e.registering(ctx, userID, sess, intent, message)
	case StateCancellingAppointment:
		return e.cancelling(ctx, sess, intent, message)
	default:
		e.logger.Warn("unknown session state, resetting", "user_id", userID, "state", string(sess.State))
		return greetingReply(), IdleSession(), nil
	}
}

func (e *Engine) idle(ctx context.Context, intent Intent, message string) (Reply, Session, error) {
	idle := IdleSession()
	switch intent {
	case IntentGreeting:
		return greetingReply(), idle, nil
	case IntentPaymentInfo:
		return paymentInfoReply(), idle, nil
	case IntentScheduleRequest:
		return reply("show_available_schedules",
			"Horários Disponíveis:\n\n"+e.summary(ctx)+"\n\n"+
				"Para agendar uma consulta, você pode:\n"+
				"• Escolher um médico específico: \"Quero consulta com Dr. Silva\"\n"+
				"• Escolher uma data: \"Preciso de horário para 15/01/2025\"\n"+
				"• Ou simplesmente dizer: \"Quero agendar uma consulta\"",
			"book_appointment"), idle, nil
	case IntentBookAppointment:
		return e.book(ctx, message)
	case IntentCancelAppointment:
		return reply("cancel_flow_started",
				"Cancelamento de Consulta\n\nPara localizar sua consulta e proceder com o cancelamento, por favor digite seu nome completo:",
				"provide_name"),
			Session{State: StateCancellingAppointment, Step: StepFindPatient}, nil
	case IntentNumberSelection:
		return reply("number_without_context",
			"Vejo que você digitou um número, mas não consegui entender o contexto.\n\n"+
				"Como posso ajudá-lo hoje?\n\n"+
				"• Agendar uma consulta\n• Cancelar uma consulta\n• Informações sobre valores",
			"book_appointment", "cancel_appointment", "payment_info"), idle, nil
	default:
		return greetingReply(), idle, nil
	}
}

// book pins the first slot matching a named doctor or date. Without either,
// it lists every open slot for selection.
func (e *Engine) book(ctx context.Context, message string) (Reply, Session, error) {
	doctorName, hasDoctor := ExtractDoctorName(message)
	date, hasDate := ExtractDate(message)

	if !hasDoctor && !hasDate {
		slots, err := e.scheduler.AvailableSlots(ctx, "", 0)
		if err != nil {
			return Reply{}, Session{}, err
		}
		if len(slots) == 0 {
			return reply("show_availability", "Horários Disponíveis:\n\n"+noSlotsSummary, "payment_info"), IdleSession(), nil
		}
		return reply("show_availability", selectionList(slots), "number_selection"),
			Session{State: StateSelectingSchedule, Selection: &Selection{Slots: slots}}, nil
	}

	filter := scheduling.SlotFilter{DoctorName: doctorName}
	if hasDate {
		filter.Date = &date
	}
	if at, ok := ExtractTime(message); ok {
		filter.StartTime = &at
	}
	slots, err := e.scheduler.SearchSlots(ctx, filter)
	if err != nil {
		return Reply{}, Session{}, err
	}
	if len(slots) > 0 {
		return slotPinnedReply(slots[0]), registeringSession(slots[0]), nil
	}

	var wanted []string
	if hasDoctor {
		wanted = append(wanted, "com Dr. "+doctorName)
	}
	if hasDate {
		wanted = append(wanted, "para o dia "+date.Display())
	}
	return reply("no_schedules_found",
		fmt.Sprintf("Desculpe, não encontrei horários disponíveis %s.\n\nHorários Disponíveis:\n%s", strings.Join(wanted, " "), e.summary(ctx)),
		"book_appointment"), IdleSession(), nil
}

func registeringSession(slot scheduling.AvailableSlot) Session {
	return Session{
		State:        StateRegisteringPatient,
		Step:         StepName,
		Registration: &Registration{Slot: slot},
	}
}

// summary renders all open slots. Lookup failures become a notice in the
// text rather than failing the turn.
func (e *Engine) summary(ctx context.Context) string {
	slots, err := e.scheduler.AvailableSlots(ctx, "", 0)
	if err != nil {
		e.logger.Error("failed to load availability summary", "error", err)
		return "Ocorreu um erro ao buscar os horários disponíveis. Por favor, tente novamente."
	}
	return availabilitySummary(slots)
}

func (e *Engine) selecting(sess Session, intent Intent, message string) (Reply, Session, error) {
	if intent != IntentNumberSelection {
		return reply("awaiting_selection", "Por favor, escolha uma das opções digitando o número correspondente.", "number_selection"), sess, nil
	}
	var slots []scheduling.AvailableSlot
	if sess.Selection != nil {
		slots = sess.Selection.Slots
	}
	n, ok := ExtractSelection(message)
	if !ok || n < 1 || n > len(slots) {
		return reply("invalid_selection", "Por favor, digite um número válido da lista de opções.", "number_selection"), sess, nil
	}
	return reply("schedule_selected",
		"Ótima escolha! Agora preciso registrar seus dados para confirmar o agendamento.\n\nPor favor, digite seu nome completo:",
		"provide_name"), registeringSession(slots[n-1]), nil
}

func (e *Engine) registering(ctx context.Context, userID string, sess Session, intent Intent, message string) (Reply, Session, error) {
	if sess.Registration == nil {
		return Reply{}, Session{}, errors.New("conversation: registration session has no pinned slot")
	}
	// Digit-only CPFs and phones classify as number selections.
	if intent != IntentUserData && intent != IntentNumberSelection {
		return stepPrompt(sess.Step), sess, nil
	}

	reg := *sess.Registration
	if !reg.Assign(sess.Step, ExtractUserData(message)) {
		return stepPrompt(sess.Step), sess, nil
	}
	next := sess
	next.Registration = &reg

	if sess.Step >= StepBirthDate {
		return e.finalizer.Finalize(ctx, userID, reg), IdleSession(), nil
	}
	next.Step = sess.Step + 1
	return stepCollected(sess.Step, reg), next, nil
}

func (e *Engine) cancelling(ctx context.Context, sess Session, intent Intent, message string) (Reply, Session, error) {
	switch {
	case sess.Step == StepFindPatient && intent == IntentUserData:
		return e.findAppointments(ctx, sess, message)
	case sess.Step == StepPickAppointment && intent == IntentNumberSelection:
		return e.cancelSelected(ctx, sess, message)
	default:
		return reply("awaiting_input", "Por favor, siga as instruções para cancelar sua consulta.", "provide_name"), sess, nil
	}
}

// findAppointments looks the patient up by name. The first case-insensitive
// substring match wins; homonyms are not disambiguated.
func (e *Engine) findAppointments(ctx context.Context, sess Session, message string) (Reply, Session, error) {
	fields := ExtractUserData(message)
	if fields.Name == "" {
		return reply("awaiting_name", "Por favor, digite seu nome completo para localizar suas consultas.", "provide_name"), sess, nil
	}

	patient, err := e.scheduler.FindPatientByName(ctx, fields.Name)
	if errors.Is(err, scheduling.ErrPatientNotFound) {
		return reply("patient_not_found",
			fmt.Sprintf("Não encontrei um paciente registrado com o nome %s.\n\nGostaria de agendar uma nova consulta?", fields.Name),
			"book_appointment"), IdleSession(), nil
	}
	if err != nil {
		return Reply{}, Session{}, err
	}

	appts, err := e.scheduler.ListScheduledAppointments(ctx, patient.ID)
	if err != nil {
		return Reply{}, Session{}, err
	}
	if len(appts) == 0 {
		return reply("no_appointments",
			fmt.Sprintf("Não encontrei consultas agendadas em nome de %s.\n\nGostaria de agendar uma nova consulta?", fields.Name),
			"book_appointment"), IdleSession(), nil
	}

	next := Session{
		State: StateCancellingAppointment,
		Step:  StepPickAppointment,
		Cancellation: &Cancellation{
			PatientID:    patient.ID,
			PatientName:  patient.Name,
			Appointments: appts,
		},
	}
	return reply("appointments_found", appointmentsList(patient.Name, appts), "number_selection"), next, nil
}

func (e *Engine) cancelSelected(ctx context.Context, sess Session, message string) (Reply, Session, error) {
	var appts []scheduling.AppointmentDetail
	if sess.Cancellation != nil {
		appts = sess.Cancellation.Appointments
	}
	n, ok := ExtractSelection(message)
	if !ok || n < 1 || n > len(appts) {
		return reply("invalid_selection", "Por favor, digite um número válido da lista de consultas.", "number_selection"), sess, nil
	}

	chosen := appts[n-1]
	if _, err := e.scheduler.CancelAppointment(ctx, chosen.ID); err != nil {
		if scheduling.IsNotFound(err) {
			return reply("cancellation_error", "Ocorreu um erro ao cancelar a consulta. Tente novamente.", "cancel_appointment"), IdleSession(), nil
		}
		return Reply{}, Session{}, err
	}
	return reply("appointment_cancelled",
		fmt.Sprintf("Consulta cancelada com sucesso!\n\nDetalhes da consulta cancelada:\nData: %s às %s\nMédico: %s\n\n"+
			"Se precisar reagendar ou marcar uma nova consulta, estarei aqui para ajudá-lo!",
			chosen.Date.Display(), chosen.Time.Short(), scheduling.DoctorDisplayName(chosen.DoctorName)),
		"book_appointment"), IdleSession(), nil
}
