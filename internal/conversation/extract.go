package conversation

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
)

// Fields holds whatever personal data a single message carried. Empty
// strings and a zero BirthDate mean the field was absent.
type Fields struct {
	Name      string
	CPF       string
	Email     string
	Phone     string
	BirthDate scheduling.Date
}

// Map returns the present fields keyed by their wire names.
func (f Fields) Map() map[string]string {
	out := map[string]string{}
	if f.Name != "" {
		out["name"] = f.Name
	}
	if f.CPF != "" {
		out["cpf"] = f.CPF
	}
	if f.Email != "" {
		out["email"] = f.Email
	}
	if f.Phone != "" {
		out["phone"] = f.Phone
	}
	if !f.BirthDate.IsZero() {
		out["birth_date"] = f.BirthDate.String()
	}
	return out
}

// ExtractUserData pulls name, CPF, email, phone and birth date out of
// message. Each field is extracted independently; none is required.
func ExtractUserData(message string) Fields {
	var f Fields
	if m := namePattern.FindStringSubmatch(strings.TrimSpace(message)); m != nil {
		f.Name = strings.Join(strings.Fields(m[1]), " ")
	}
	if m := cpfPattern.FindStringSubmatch(message); m != nil {
		f.CPF = m[1]
	}
	if m := emailPattern.FindStringSubmatch(message); m != nil {
		f.Email = m[1]
	}
	if m := phonePattern.FindStringSubmatch(message); m != nil {
		f.Phone = m[1]
	}
	if m := birthDatePattern.FindStringSubmatch(message); m != nil {
		if d, ok := calendarDate(m[3], m[2], m[1]); ok {
			f.BirthDate = d
		}
	}
	return f
}

// calendarDate rejects impossible dates such as 31/02.
func calendarDate(year, month, day string) (scheduling.Date, bool) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil || m < 1 || m > 12 || d < 1 {
		return scheduling.Date{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return scheduling.Date{}, false
	}
	return scheduling.DateOf(t), true
}

var numberWords = map[string]int{
	"um": 1, "dois": 2, "três": 3, "tres": 3, "quatro": 4, "cinco": 5,
	"seis": 6, "sete": 7, "oito": 8, "nove": 9, "dez": 10,
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

// ExtractSelection returns the option number in message: a bare integer or
// the first spelled-out number word (1-10).
func ExtractSelection(message string) (int, bool) {
	if m := digitsOnly.FindStringSubmatch(message); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		return n, true
	}
	for _, tok := range tokens(strings.ToLower(message)) {
		if n, ok := numberWords[tok]; ok {
			return n, true
		}
	}
	return 0, false
}

func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var doctorCues = []*regexp.Regexp{
	regexp.MustCompile(`(?:^|[^\p{L}])(?:dra?\.?|doctor|doutora?)\s+([\p{L}\s]+)`),
	regexp.MustCompile(`(?:^|[^\p{L}])with\s+([\p{L}\s]+)`),
}

var nameConnectors = map[string]bool{"o": true, "a": true, "da": true, "de": true, "do": true, "e": true}

// nameStops end a captured doctor name: "com Dr. Silva amanhã" yields "Silva".
var nameStops = map[string]bool{
	"para": true, "no": true, "na": true, "em": true, "dia": true, "às": true, "as": true,
	"hoje": true, "amanhã": true, "amanha": true, "at": true, "on": true, "for": true,
	"today": true, "tomorrow": true,
}

// ExtractDoctorName returns up to two title-cased name tokens following a
// title cue such as "Dr." or "doutora".
func ExtractDoctorName(message string) (string, bool) {
	lower := strings.ToLower(message)
	for _, cue := range doctorCues {
		m := cue.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		var parts []string
		for i, part := range strings.Fields(m[1]) {
			if i >= 3 || nameStops[part] {
				break
			}
			if nameConnectors[part] {
				continue
			}
			parts = append(parts, titleCase(part))
			if len(parts) == 2 {
				break
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, " "), true
		}
	}
	return "", false
}

func titleCase(word string) string {
	runes := []rune(word)
	if len(runes) == 0 {
		return word
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

var (
	dayFirstDate  = regexp.MustCompile(`(\d{1,2})[/-](\d{1,2})[/-](\d{4})`)
	yearFirstDate = regexp.MustCompile(`(\d{4})[/-](\d{1,2})[/-](\d{1,2})`)
)

// ExtractDate finds a DD/MM/YYYY or YYYY-MM-DD date in message.
func ExtractDate(message string) (scheduling.Date, bool) {
	if m := dayFirstDate.FindStringSubmatch(message); m != nil {
		if d, ok := calendarDate(m[3], m[2], m[1]); ok {
			return d, true
		}
	}
	if m := yearFirstDate.FindStringSubmatch(message); m != nil {
		if d, ok := calendarDate(m[1], m[2], m[3]); ok {
			return d, true
		}
	}
	return scheduling.Date{}, false
}

var timePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:às|as|at)\s+(\d{1,2}):(\d{2})`),
	regexp.MustCompile(`(\d{1,2}):(\d{2})`),
	regexp.MustCompile(`(?:às|as)\s+(\d{1,2})h(\d{2})?`),
	regexp.MustCompile(`(\d{1,2})h(\d{2})`),
}

// ExtractTime finds a time of day such as "14:30", "às 9h" or "9h30".
func ExtractTime(message string) (scheduling.TimeOfDay, bool) {
	lower := strings.ToLower(message)
	for _, p := range timePatterns {
		m := p.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		hour, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		minute := 0
		if len(m) > 2 && m[2] != "" {
			if minute, err = strconv.Atoi(m[2]); err != nil {
				continue
			}
		}
		if hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59 {
			return scheduling.NewTimeOfDay(hour, minute), true
		}
	}
	return scheduling.TimeOfDay{}, false
}
