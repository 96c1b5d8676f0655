package conversation

import (
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
)

// Reply is the structured answer to one conversation turn.
type Reply struct {
	Success          bool     `json:"success"`
	ActionTaken      string   `json:"action_taken"`
	Data             any      `json:"data"`
	Message          string   `json:"message"`
	SuggestedActions []string `json:"suggested_actions"`
	Error            string   `json:"error,omitempty"`
}

func reply(action, message string, suggested ...string) Reply {
	if suggested == nil {
		suggested = []string{}
	}
	return Reply{Success: true, ActionTaken: action, Message: message, SuggestedActions: suggested}
}

// failureReply reports a turn that ended without doing what the user asked.
// err is exposed as the machine-readable detail.
func failureReply(action, message string, err error, suggested ...string) Reply {
	out := reply(action, message, suggested...)
	out.Success = false
	out.Error = err.Error()
	return out
}

const apologyMessage = "Desculpe, ocorreu um erro interno. Vamos começar novamente. Como posso ajudá-lo?"

// errorReply is returned when a turn fails. The session has been reset.
func errorReply(err error) Reply {
	return Reply{
		Success:          false,
		ActionTaken:      "error_occurred",
		Message:          apologyMessage,
		SuggestedActions: []string{},
		Error:            err.Error(),
	}
}

func greetingReply() Reply {
	return reply("greeting",
		"Olá! Sou seu assistente médico virtual e estou aqui para ajudá-lo.\n\n"+
			"Como posso ajudá-lo hoje?\n\n"+
			"• Agendar uma consulta\n"+
			"• Cancelar uma consulta\n"+
			"• Informações sobre valores e formas de pagamento\n\n"+
			"Fique à vontade para me dizer o que precisa.",
		"book_appointment", "cancel_appointment", "payment_info")
}

// PaymentInfo lists fees, payment methods and accepted insurance plans.
type PaymentInfo struct {
	ConsultationFees  ConsultationFees `json:"consultation_fees"`
	PaymentMethods    []string         `json:"payment_methods"`
	InsuranceAccepted []string         `json:"insurance_accepted"`
}

type ConsultationFees struct {
	Private   string `json:"private"`
	Insurance string `json:"insurance"`
}

// DefaultPaymentInfo is the clinic's published price list.
func DefaultPaymentInfo() PaymentInfo {
	return PaymentInfo{
		ConsultationFees: ConsultationFees{
			Private:   "R$ 200,00",
			Insurance: "Conforme tabela do convênio",
		},
		PaymentMethods:    []string{"Dinheiro", "Cartão de crédito", "Cartão de débito", "PIX", "Transferência bancária"},
		InsuranceAccepted: []string{"Unimed", "Bradesco Saúde", "Amil", "SulAmérica"},
	}
}

func paymentInfoReply() Reply {
	info := DefaultPaymentInfo()
	var b strings.Builder
	b.WriteString("Informações sobre Valores e Formas de Pagamento:\n\n")
	fmt.Fprintf(&b, "Consulta Particular: %s\n", info.ConsultationFees.Private)
	fmt.Fprintf(&b, "Convênio: %s\n\n", info.ConsultationFees.Insurance)
	b.WriteString("Formas de Pagamento:\n")
	for _, m := range info.PaymentMethods {
		fmt.Fprintf(&b, "• %s\n", m)
	}
	b.WriteString("\nConvênios Aceitos:\n")
	for _, i := range info.InsuranceAccepted {
		fmt.Fprintf(&b, "• %s\n", i)
	}
	b.WriteString("\nFicarei feliz em ajudá-lo com mais informações.")

	r := reply("payment_info_provided", b.String(), "book_appointment", "cancel_appointment")
	r.Data = info
	return r
}

const noSlotsSummary = "Nenhum horário disponível no momento. Por favor, entre em contato para verificar outras opções."

// availabilitySummary groups slots by date:
//
//	📅 15/01/2025
//	   • 09:00 - Dr. Maria Silva (Cardiologia)
func availabilitySummary(slots []scheduling.AvailableSlot) string {
	if len(slots) == 0 {
		return noSlotsSummary
	}
	var b strings.Builder
	var current string
	for _, s := range slots {
		if day := s.Date.String(); day != current {
			if current != "" {
				b.WriteString("\n")
			}
			current = day
			fmt.Fprintf(&b, "📅 %s\n", s.Date.Display())
		}
		fmt.Fprintf(&b, "   • %s - %s (%s)\n", s.StartTime.Short(), scheduling.DoctorDisplayName(s.DoctorName), s.DoctorSpecialty)
	}
	return strings.TrimSpace(b.String())
}

// selectionList numbers slots for the selecting_schedule state.
func selectionList(slots []scheduling.AvailableSlot) string {
	var b strings.Builder
	b.WriteString("Horários Disponíveis:\n\n")
	for i, s := range slots {
		fmt.Fprintf(&b, "%d. %s\n", i+1, scheduling.DoctorDisplayName(s.DoctorName))
		fmt.Fprintf(&b, "   Especialidade: %s\n", s.DoctorSpecialty)
		fmt.Fprintf(&b, "   Data: %s\n", s.Date.Display())
		fmt.Fprintf(&b, "   Horário: %s\n\n", s.StartTime.Short())
	}
	b.WriteString("Por favor, digite o número da consulta que deseja agendar:")
	return b.String()
}

func slotPinnedReply(slot scheduling.AvailableSlot) Reply {
	return reply("schedule_selected", fmt.Sprintf(
		"Perfeito! Encontrei um horário disponível para você:\n\n"+
			"Médico: %s\nEspecialidade: %s\nData: %s\nHorário: %s\n\n"+
			"Para confirmar o agendamento, preciso de algumas informações suas.\n\n"+
			"Por favor, digite seu nome completo:",
		scheduling.DoctorDisplayName(slot.DoctorName), slot.DoctorSpecialty, slot.Date.Display(), slot.StartTime.Short()),
		"provide_name")
}

// stepPrompt re-asks for the field expected at step.
func stepPrompt(step int) Reply {
	switch step {
	case StepCPF:
		return reply("awaiting_cpf", "Agora preciso do seu CPF (apenas números ou com pontos e traço):", "provide_cpf")
	case StepEmail:
		return reply("awaiting_email", "Por favor, digite seu email:", "provide_email")
	case StepPhone:
		return reply("awaiting_phone", "Digite seu telefone com DDD:", "provide_phone")
	case StepBirthDate:
		return reply("awaiting_birth_date", "Por último, digite sua data de nascimento no formato DD/MM/AAAA:", "provide_birth_date")
	default:
		return reply("awaiting_name", "Por favor, digite seu nome completo:", "provide_name")
	}
}

// stepCollected acknowledges the field collected at step and asks for the next.
func stepCollected(step int, reg Registration) Reply {
	switch step {
	case StepName:
		return reply("name_collected", fmt.Sprintf("Obrigado, %s!\n\nAgora preciso do seu CPF. Por favor digite (apenas números ou com pontos e traço):", reg.Name), "provide_cpf")
	case StepCPF:
		return reply("cpf_collected", "CPF registrado com sucesso!\n\nAgora preciso do seu email:", "provide_email")
	case StepEmail:
		return reply("email_collected", "Email registrado!\n\nPor favor, digite seu telefone (com DDD):", "provide_phone")
	default:
		return reply("phone_collected", "Telefone registrado!\n\nPor último, preciso da sua data de nascimento no formato DD/MM/AAAA:", "provide_birth_date")
	}
}

func appointmentsList(name string, appts []scheduling.AppointmentDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Encontrei as seguintes consultas agendadas para %s:\n\n", name)
	for i, a := range appts {
		fmt.Fprintf(&b, "%d. Data: %s às %s\n", i+1, a.Date.Display(), a.Time.Short())
		fmt.Fprintf(&b, "   Médico: %s\n\n", scheduling.DoctorDisplayName(a.DoctorName))
	}
	b.WriteString("Digite o número da consulta que deseja cancelar:")
	return b.String()
}

// BookingData is the payload of a successful booking reply.
type BookingData struct {
	AppointmentID int64                    `json:"appointment_id"`
	Patient       BookedPatient            `json:"patient"`
	Schedule      scheduling.AvailableSlot `json:"schedule"`
}

type BookedPatient struct {
	Name      string          `json:"name"`
	CPF       string          `json:"cpf"`
	Email     string          `json:"email"`
	Phone     string          `json:"phone"`
	BirthDate scheduling.Date `json:"birth_date"`
}

func bookedReply(res *scheduling.Reservation, slot scheduling.AvailableSlot) Reply {
	msg := fmt.Sprintf("Consulta agendada com sucesso!\n\n"+
		"Paciente: %s\nData: %s\nHorário: %s\nMédico: %s\nEspecialidade: %s\n\n"+
		"Você receberá uma confirmação em breve. Agradecemos a confiança!",
		res.Patient.Name, res.Slot.Date.Display(), res.Slot.StartTime.Short(),
		scheduling.DoctorDisplayName(slot.DoctorName), slot.DoctorSpecialty)

	r := reply("appointment_booked", msg, "payment_info")
	r.Data = BookingData{
		AppointmentID: res.Appointment.ID,
		Patient: BookedPatient{
			Name:      res.Patient.Name,
			CPF:       res.Patient.CPF,
			Email:     res.Patient.Email,
			Phone:     res.Patient.Phone,
			BirthDate: res.Patient.BirthDate,
		},
		Schedule: slot,
	}
	return r
}
