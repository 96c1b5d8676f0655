package scheduling

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepository keeps clinic data in process memory. It is used when no
// database is configured and in tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	data memoryData
	now  func() time.Time
}

type memoryData struct {
	patients     map[int64]Patient
	doctors      map[int64]Doctor
	schedules    map[int64]Schedule
	appointments map[int64]Appointment
	seq          sequences
}

// sequences mirrors one SERIAL column per table.
type sequences struct {
	patient, doctor, schedule, appointment int64
}

func (d memoryData) clone() memoryData {
	out := memoryData{
		patients:     make(map[int64]Patient, len(d.patients)),
		doctors:      make(map[int64]Doctor, len(d.doctors)),
		schedules:    make(map[int64]Schedule, len(d.schedules)),
		appointments: make(map[int64]Appointment, len(d.appointments)),
		seq:          d.seq,
	}
	for k, v := range d.patients {
		out.patients[k] = v
	}
	for k, v := range d.doctors {
		out.doctors[k] = v
	}
	for k, v := range d.schedules {
		out.schedules[k] = v
	}
	for k, v := range d.appointments {
		out.appointments[k] = v
	}
	return out
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		data: memoryData{
			patients:     make(map[int64]Patient),
			doctors:      make(map[int64]Doctor),
			schedules:    make(map[int64]Schedule),
			appointments: make(map[int64]Appointment),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) ListPatients(ctx context.Context) ([]Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Patient, 0, len(r.data.patients))
	for _, p := range r.data.patients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.data.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) FindPatientByName(ctx context.Context, name string) (*Patient, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, ErrPatientNotFound
	}
	patients, _ := r.ListPatients(ctx)
	for _, p := range patients {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			return &p, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (r *MemoryRepository) FindPatientByCPF(ctx context.Context, cpf string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.data.findPatientByCPF(cpf); ok {
		return &p, nil
	}
	return nil, ErrPatientNotFound
}

func (r *MemoryRepository) CountPatients(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data.patients), nil
}

func (r *MemoryRepository) ListDoctors(ctx context.Context) ([]Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Doctor, 0, len(r.data.doctors))
	for _, d := range r.data.doctors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.data.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) ListAvailableSlots(ctx context.Context, filter SlotFilter) ([]AvailableSlot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doctorName := strings.ToLower(strings.TrimSpace(filter.DoctorName))
	var out []AvailableSlot
	for _, s := range r.data.schedules {
		if !s.Availability.IsAvailable() {
			continue
		}
		if filter.Date != nil && !s.Date.Equal(*filter.Date) {
			continue
		}
		if filter.DoctorID != 0 && s.DoctorID != filter.DoctorID {
			continue
		}
		if filter.StartTime != nil && s.StartTime != *filter.StartTime {
			continue
		}
		doc := r.data.doctors[s.DoctorID]
		if doctorName != "" && !strings.Contains(strings.ToLower(doc.Name), doctorName) {
			continue
		}
		out = append(out, AvailableSlot{Schedule: s, DoctorName: doc.Name, DoctorSpecialty: doc.Specialty})
	}
	sortSlots(out)
	return out, nil
}

func (r *MemoryRepository) ListAppointments(ctx context.Context) ([]AppointmentDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AppointmentDetail, 0, len(r.data.appointments))
	for _, a := range r.data.appointments {
		out = append(out, r.data.detail(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) ListScheduledAppointments(ctx context.Context, patientID int64) ([]AppointmentDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []AppointmentDetail
	for _, a := range r.data.appointments {
		if a.PatientID == patientID && a.Status == StatusScheduled {
			out = append(out, r.data.detail(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date.Time)
		}
		if out[i].Time != out[j].Time {
			return out[i].Time.Microseconds() < out[j].Time.Microseconds()
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// WithTx holds the write lock for the whole transaction and restores a
// snapshot when fn fails.
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.data.clone()
	if err := fn(&memoryTx{repo: r}); err != nil {
		r.data = snapshot
		return err
	}
	return nil
}

func (d memoryData) findPatientByCPF(cpf string) (Patient, bool) {
	for _, p := range d.patients {
		if p.CPF == cpf {
			return p, true
		}
	}
	return Patient{}, false
}

func (d memoryData) detail(a Appointment) AppointmentDetail {
	doc := d.doctors[a.DoctorID]
	return AppointmentDetail{
		Appointment:     a,
		PatientName:     d.patients[a.PatientID].Name,
		DoctorName:      doc.Name,
		DoctorSpecialty: doc.Specialty,
	}
}

func sortSlots(slots []AvailableSlot) {
	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date.Time)
		}
		if a.StartTime != b.StartTime {
			return a.StartTime.Microseconds() < b.StartTime.Microseconds()
		}
		return a.ID < b.ID
	})
}

// memoryTx operates on the repository while WithTx holds its lock.
type memoryTx struct {
	repo *MemoryRepository
}

func (t *memoryTx) UpsertPatientByCPF(ctx context.Context, in PatientInput) (*Patient, error) {
	d := &t.repo.data
	p, ok := d.findPatientByCPF(in.CPF)
	if !ok {
		t.repo.data.seq.patient++
		p = Patient{ID: t.repo.data.seq.patient, CPF: in.CPF, CreatedAt: t.repo.now()}
	}
	p.Name = in.Name
	p.Email = in.Email
	p.Phone = in.Phone
	p.BirthDate = in.BirthDate
	d.patients[p.ID] = p
	return &p, nil
}

func (t *memoryTx) InsertDoctor(ctx context.Context, doc Doctor) (*Doctor, error) {
	t.repo.data.seq.doctor++
	doc.ID = t.repo.data.seq.doctor
	t.repo.data.doctors[doc.ID] = doc
	return &doc, nil
}

func (t *memoryTx) InsertSchedule(ctx context.Context, s Schedule) (*Schedule, error) {
	if _, ok := t.repo.data.doctors[s.DoctorID]; !ok {
		return nil, ErrDoctorNotFound
	}
	t.repo.data.seq.schedule++
	s.ID = t.repo.data.seq.schedule
	t.repo.data.schedules[s.ID] = s
	return &s, nil
}

func (t *memoryTx) LockSchedule(ctx context.Context, id int64) (*Schedule, error) {
	s, ok := t.repo.data.schedules[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (t *memoryTx) FindScheduleByStart(ctx context.Context, doctorID int64, date Date, start TimeOfDay) (*Schedule, error) {
	var found *Schedule
	for _, s := range t.repo.data.schedules {
		if s.DoctorID != doctorID || !s.Date.Equal(date) || s.StartTime != start {
			continue
		}
		if found == nil || s.ID < found.ID {
			found = &s
		}
	}
	if found == nil {
		return nil, ErrSlotNotFound
	}
	return found, nil
}

func (t *memoryTx) SetScheduleAvailability(ctx context.Context, id int64, availability Availability) error {
	s, ok := t.repo.data.schedules[id]
	if !ok {
		return ErrSlotNotFound
	}
	s.Availability = availability
	t.repo.data.schedules[id] = s
	return nil
}

func (t *memoryTx) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	d := &t.repo.data
	if _, ok := d.patients[a.PatientID]; !ok {
		return nil, ErrPatientNotFound
	}
	if _, ok := d.doctors[a.DoctorID]; !ok {
		return nil, ErrDoctorNotFound
	}
	d.seq.appointment++
	a.ID = d.seq.appointment
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	a.CreatedAt = t.repo.now()
	d.appointments[a.ID] = a
	return &a, nil
}

func (t *memoryTx) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	a, ok := t.repo.data.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (t *memoryTx) SetAppointmentStatus(ctx context.Context, id int64, status string) error {
	a, ok := t.repo.data.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.Status = status
	t.repo.data.appointments[id] = a
	return nil
}
