package scheduling

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Appointment statuses.
const (
	StatusScheduled = "scheduled"
	StatusCancelled = "cancelled"
)

const (
	// DateLayout is the wire format for calendar dates.
	DateLayout = "2006-01-02"
	// TimeLayout is the wire format accepted for appointment times.
	TimeLayout = "15:04"
)

// Availability is the tri-state availability flag stored as text.
type Availability string

const (
	AvailabilityTrue    Availability = "true"
	AvailabilityFalse   Availability = "false"
	AvailabilityUnknown Availability = ""
)

// AvailabilityFromBool encodes a boolean flag.
func AvailabilityFromBool(v bool) Availability {
	if v {
		return AvailabilityTrue
	}
	return AvailabilityFalse
}

// IsAvailable reports whether the flag is explicitly "true".
func (a Availability) IsAvailable() bool {
	return a == AvailabilityTrue
}

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay accepts HH:MM or HH:MM:SS.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", TimeLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("scheduling: invalid time %q", s)
}

// NewTimeOfDay builds a TimeOfDay from hour and minute.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay{Hour: hour, Minute: minute}
}

// String renders HH:MM:SS.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Short renders HH:MM for replies.
func (t TimeOfDay) Short() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Microseconds since midnight, the representation Postgres uses for TIME.
func (t TimeOfDay) Microseconds() int64 {
	return (int64(t.Hour)*3600 + int64(t.Minute)*60 + int64(t.Second)) * int64(time.Second/time.Microsecond)
}

// TimeOfDayFromMicroseconds is the inverse of Microseconds.
func TimeOfDayFromMicroseconds(us int64) TimeOfDay {
	secs := us / int64(time.Second/time.Microsecond)
	return TimeOfDay{Hour: int(secs / 3600), Minute: int(secs % 3600 / 60), Second: int(secs % 60)}
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Date is a calendar day encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("scheduling: invalid date %q", s)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Display renders DD/MM/YYYY.
func (d Date) Display() string {
	return d.Format("02/01/2006")
}

func (d Date) Equal(other Date) bool {
	return d.String() == other.String()
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Patient is identified uniquely by CPF.
type Patient struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CPF       string    `json:"cpf"`
	BirthDate Date      `json:"birth_date"`
	CreatedAt time.Time `json:"created_at"`
}

// Doctor is a bookable practitioner.
type Doctor struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// DisplayName prefixes "Dr." unless the stored name already carries it.
func (d Doctor) DisplayName() string {
	return DoctorDisplayName(d.Name)
}

// DoctorDisplayName avoids "Dr. Dr." when the stored name has the title.
func DoctorDisplayName(name string) string {
	if strings.HasPrefix(name, "Dr. ") || strings.HasPrefix(name, "Dra. ") {
		return name
	}
	return "Dr. " + name
}

// Schedule is a doctor's bookable slot on a given date.
type Schedule struct {
	ID           int64        `json:"id"`
	DoctorID     int64        `json:"doctor_id"`
	Date         Date         `json:"date"`
	StartTime    TimeOfDay    `json:"start_time"`
	EndTime      TimeOfDay    `json:"end_time"`
	Availability Availability `json:"is_available"`
}

// AvailableSlot is a schedule enriched with its doctor's name and specialty.
type AvailableSlot struct {
	Schedule
	DoctorName      string `json:"doctor_name"`
	DoctorSpecialty string `json:"doctor_specialty"`
}

// Appointment links a patient to a doctor's slot.
type Appointment struct {
	ID         int64     `json:"id"`
	PatientID  int64     `json:"patient_id"`
	DoctorID   int64     `json:"doctor_id"`
	ScheduleID int64     `json:"schedule_id,omitempty"`
	Date       Date      `json:"appointment_date"`
	Time       TimeOfDay `json:"appointment_time"`
	Status     string    `json:"status"`
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"created_at"`
}

// AppointmentDetail is an appointment joined with patient and doctor names.
type AppointmentDetail struct {
	Appointment
	PatientName     string `json:"patient_name"`
	DoctorName      string `json:"doctor_name"`
	DoctorSpecialty string `json:"doctor_specialty"`
}

// SlotFilter narrows ListAvailableSlots. Zero values mean "any".
type SlotFilter struct {
	Date       *Date
	DoctorID   int64
	DoctorName string
	StartTime  *TimeOfDay
}

// PatientInput carries the fields collected for an upsert.
type PatientInput struct {
	Name      string
	Email     string
	Phone     string
	CPF       string
	BirthDate Date
}
