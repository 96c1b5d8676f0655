package conversation

import (
	"regexp"
	"strings"
)

// Intent is the classified purpose of a single message.
type Intent string

const (
	IntentGreeting          Intent = "greeting"
	IntentPaymentInfo       Intent = "payment_info"
	IntentScheduleRequest   Intent = "schedule_request"
	IntentCancelAppointment Intent = "cancel_appointment"
	IntentBookAppointment   Intent = "book_appointment"
	IntentNumberSelection   Intent = "number_selection"
	IntentUserData          Intent = "user_data"
	IntentUnknown           Intent = "unknown"
)

// Rule maps a group of patterns to an intent. A rule matches when any of its
// patterns matches the lowercased message.
type Rule struct {
	Intent   Intent
	Patterns []*regexp.Regexp
}

func (r Rule) matches(lower string) bool {
	for _, p := range r.Patterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// words builds a pattern that matches alt only at Unicode word boundaries.
// RE2's \b is ASCII-only and would miss "olá" or "três".
func words(alt string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])(?:` + alt + `)(?:[^\p{L}\p{N}_]|$)`)
}

var digitsOnly = regexp.MustCompile(`^\s*(\d+)\s*$`)

// Order matters: payment is checked before booking so "quanto custa uma
// consulta" is a price question, and schedule requests win over booking.
var rules = []Rule{
	{Intent: IntentGreeting, Patterns: []*regexp.Regexp{
		words(`oi|olá|ola|hey|hi|hello|bom dia|boa tarde|boa noite`),
		words(`tchau|tchauzinho|fui|valeu|obrigad[oa]`),
		words(`como vai|tudo bem|tudo bom`),
	}},
	{Intent: IntentPaymentInfo, Patterns: []*regexp.Regexp{
		words(`pagamento|pagar|valor|preço|preços|custo|quanto custa|valores`),
		words(`payment|pay|cost|price|pricing`),
	}},
	{Intent: IntentScheduleRequest, Patterns: []*regexp.Regexp{
		words(`horários?.*disponíveis?|disponíveis?.*horários?`),
		words(`que.*horários?.*tem|quais.*horários?|que.*horários?`),
		words(`ver.*horários?|mostrar.*horários?|listar.*horários?`),
		words(`available.*schedule|show.*schedule|list.*schedule`),
		words(`quando.*tem.*vaga|tem.*vaga`),
	}},
	{Intent: IntentCancelAppointment, Patterns: []*regexp.Regexp{
		words(`cancelar|desmarcar|remover.*consulta`),
		words(`cancel|remove.*appointment`),
	}},
	{Intent: IntentBookAppointment, Patterns: []*regexp.Regexp{
		words(`agendar|marcar|quero.*consulta|preciso.*consulta`),
		words(`appointment|schedule|booking`),
	}},
	{Intent: IntentNumberSelection, Patterns: []*regexp.Regexp{
		digitsOnly,
		words(`um|dois|três|quatro|cinco|seis|sete|oito|nove|dez`),
		words(`one|two|three|four|five|six|seven|eight|nine|ten`),
	}},
}

// Rules returns the classifier rules in priority order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Classify returns the first intent whose rule matches, falling back to
// user_data when the message looks like personal data, else unknown.
func Classify(message string) Intent {
	lower := strings.ToLower(strings.TrimSpace(message))
	for _, r := range rules {
		if r.matches(lower) {
			return r.Intent
		}
	}
	if LooksLikeUserData(message) {
		return IntentUserData
	}
	return IntentUnknown
}

var (
	cpfPattern       = regexp.MustCompile(`(\d{3}\.?\d{3}\.?\d{3}-?\d{2})`)
	emailPattern     = regexp.MustCompile(`([A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,})`)
	phonePattern     = regexp.MustCompile(`(\(?\d{2}\)?\s?\d{4,5}[-\s]?\d{4})`)
	birthDatePattern = regexp.MustCompile(`(\d{1,2})[/-](\d{1,2})[/-](\d{4})`)
	// Two or more capitalized words, allowing lowercase particles between them.
	namePattern = regexp.MustCompile(`^(\p{Lu}\p{Ll}+(?:\s+(?:(?:da|de|do|das|dos|e)\s+)?\p{Lu}\p{Ll}+)+)\s*$`)
)

// LooksLikeUserData reports whether message carries a CPF, email, phone,
// date or full name.
func LooksLikeUserData(message string) bool {
	trimmed := strings.TrimSpace(message)
	return cpfPattern.MatchString(message) ||
		emailPattern.MatchString(message) ||
		phonePattern.MatchString(message) ||
		birthDatePattern.MatchString(message) ||
		namePattern.MatchString(trimmed)
}
