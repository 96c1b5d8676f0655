package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// PgxPool is the subset of pgxpool.Pool the repository needs.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queryer is satisfied by both the pool and a pgx.Tx.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores clinic data in Postgres.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by a pgx pool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const patientColumns = `id, name, COALESCE(email, ''), COALESCE(phone, ''), cpf, birth_date, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p     Patient
		birth pgtype.Date
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.CPF, &birth, &p.CreatedAt); err != nil {
		return nil, err
	}
	if birth.Valid {
		p.BirthDate = DateOf(birth.Time)
	}
	return &p, nil
}

func (r *PostgresRepository) ListPatients(ctx context.Context) ([]Patient, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+patientColumns+` FROM patients ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list patients: %w", err)
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan patient: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: list patients: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	p, err := scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("scheduling: get patient: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) FindPatientByName(ctx context.Context, name string) (*Patient, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrPatientNotFound
	}
	query := `SELECT ` + patientColumns + ` FROM patients
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY id
		LIMIT 1`
	p, err := scanPatient(r.pool.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("scheduling: find patient by name: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) FindPatientByCPF(ctx context.Context, cpf string) (*Patient, error) {
	p, err := scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE cpf = $1`, cpf))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("scheduling: find patient by cpf: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) CountPatients(ctx context.Context) (int, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&n); err != nil {
		return 0, fmt.Errorf("scheduling: count patients: %w", err)
	}
	return int(n), nil
}

const doctorColumns = `id, name, specialty, COALESCE(email, ''), COALESCE(phone, '')`

func (r *PostgresRepository) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+doctorColumns+` FROM doctors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list doctors: %w", err)
	}
	defer rows.Close()

	var out []Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.Specialty, &d.Email, &d.Phone); err != nil {
			return nil, fmt.Errorf("scheduling: scan doctor: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: list doctors: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	var d Doctor
	err := r.pool.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.Specialty, &d.Email, &d.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("scheduling: get doctor: %w", err)
	}
	return &d, nil
}

func (r *PostgresRepository) ListAvailableSlots(ctx context.Context, filter SlotFilter) ([]AvailableSlot, error) {
	var (
		where = []string{"s.is_available = 'true'"}
		args  []any
	)
	if filter.Date != nil {
		args = append(args, filter.Date.Time)
		where = append(where, fmt.Sprintf("s.date = $%d", len(args)))
	}
	if filter.DoctorID != 0 {
		args = append(args, filter.DoctorID)
		where = append(where, fmt.Sprintf("s.doctor_id = $%d", len(args)))
	}
	if name := strings.TrimSpace(filter.DoctorName); name != "" {
		args = append(args, name)
		where = append(where, fmt.Sprintf("d.name ILIKE '%%' || $%d || '%%'", len(args)))
	}
	if filter.StartTime != nil {
		args = append(args, pgTime(*filter.StartTime))
		where = append(where, fmt.Sprintf("s.start_time = $%d", len(args)))
	}

	query := `
		SELECT s.id, s.doctor_id, s.date, s.start_time, s.end_time, COALESCE(s.is_available, ''),
		       d.name, d.specialty
		FROM schedules s
		JOIN doctors d ON d.id = s.doctor_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY s.date, s.start_time, s.id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list available slots: %w", err)
	}
	defer rows.Close()

	var out []AvailableSlot
	for rows.Next() {
		var (
			slot         AvailableSlot
			date         time.Time
			start, end   pgtype.Time
			availability string
		)
		if err := rows.Scan(&slot.ID, &slot.DoctorID, &date, &start, &end, &availability, &slot.DoctorName, &slot.DoctorSpecialty); err != nil {
			return nil, fmt.Errorf("scheduling: scan slot: %w", err)
		}
		slot.Date = DateOf(date)
		slot.StartTime = fromPGTime(start)
		slot.EndTime = fromPGTime(end)
		slot.Availability = Availability(availability)
		out = append(out, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: list available slots: %w", err)
	}
	return out, nil
}

const appointmentDetailQuery = `
	SELECT a.id, a.patient_id, a.doctor_id, COALESCE(a.schedule_id, 0), a.appointment_date, a.appointment_time,
	       a.status, COALESCE(a.notes, ''), a.created_at,
	       p.name, d.name, d.specialty
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN doctors d ON d.id = a.doctor_id`

func (r *PostgresRepository) ListAppointments(ctx context.Context) ([]AppointmentDetail, error) {
	return r.queryAppointmentDetails(ctx, appointmentDetailQuery+` ORDER BY a.id`)
}

func (r *PostgresRepository) ListScheduledAppointments(ctx context.Context, patientID int64) ([]AppointmentDetail, error) {
	query := appointmentDetailQuery + `
	WHERE a.patient_id = $1 AND a.status = 'scheduled'
	ORDER BY a.appointment_date, a.appointment_time, a.id`
	return r.queryAppointmentDetails(ctx, query, patientID)
}

func (r *PostgresRepository) queryAppointmentDetails(ctx context.Context, query string, args ...any) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list appointments: %w", err)
	}
	defer rows.Close()

	var out []AppointmentDetail
	for rows.Next() {
		var (
			a    AppointmentDetail
			date time.Time
			at   pgtype.Time
		)
		if err := rows.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ScheduleID, &date, &at,
			&a.Status, &a.Notes, &a.CreatedAt, &a.PatientName, &a.DoctorName, &a.DoctorSpecialty); err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		a.Date = DateOf(date)
		a.Time = fromPGTime(at)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: list appointments: %w", err)
	}
	return out, nil
}

// WithTx begins a transaction, runs fn, and commits on success.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("scheduling: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&postgresTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("scheduling: commit: %w", err)
	}
	return nil
}

type postgresTx struct {
	q queryer
}

func (t *postgresTx) UpsertPatientByCPF(ctx context.Context, in PatientInput) (*Patient, error) {
	query := `
		INSERT INTO patients (name, email, phone, cpf, birth_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cpf) DO UPDATE
		SET name = EXCLUDED.name,
		    email = EXCLUDED.email,
		    phone = EXCLUDED.phone,
		    birth_date = EXCLUDED.birth_date
		RETURNING ` + patientColumns
	p, err := scanPatient(t.q.QueryRow(ctx, query, in.Name, in.Email, in.Phone, in.CPF, pgDate(in.BirthDate)))
	if err != nil {
		return nil, fmt.Errorf("scheduling: upsert patient: %w", err)
	}
	return p, nil
}

func (t *postgresTx) InsertDoctor(ctx context.Context, d Doctor) (*Doctor, error) {
	query := `
		INSERT INTO doctors (name, specialty, email, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := t.q.QueryRow(ctx, query, d.Name, d.Specialty, d.Email, d.Phone).Scan(&d.ID); err != nil {
		return nil, fmt.Errorf("scheduling: insert doctor: %w", err)
	}
	return &d, nil
}

func (t *postgresTx) InsertSchedule(ctx context.Context, s Schedule) (*Schedule, error) {
	query := `
		INSERT INTO schedules (doctor_id, date, start_time, end_time, is_available)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err := t.q.QueryRow(ctx, query, s.DoctorID, s.Date.Time, pgTime(s.StartTime), pgTime(s.EndTime), string(s.Availability)).Scan(&s.ID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: insert schedule: %w", err)
	}
	return &s, nil
}

const scheduleColumns = `id, doctor_id, date, start_time, end_time, COALESCE(is_available, '')`

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var (
		s            Schedule
		date         time.Time
		start, end   pgtype.Time
		availability string
	)
	if err := row.Scan(&s.ID, &s.DoctorID, &date, &start, &end, &availability); err != nil {
		return nil, err
	}
	s.Date = DateOf(date)
	s.StartTime = fromPGTime(start)
	s.EndTime = fromPGTime(end)
	s.Availability = Availability(availability)
	return &s, nil
}

func (t *postgresTx) LockSchedule(ctx context.Context, id int64) (*Schedule, error) {
	s, err := scanSchedule(t.q.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("scheduling: lock schedule: %w", err)
	}
	return s, nil
}

func (t *postgresTx) FindScheduleByStart(ctx context.Context, doctorID int64, date Date, start TimeOfDay) (*Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules
		WHERE doctor_id = $1 AND date = $2 AND start_time = $3
		ORDER BY id
		LIMIT 1
		FOR UPDATE`
	s, err := scanSchedule(t.q.QueryRow(ctx, query, doctorID, date.Time, pgTime(start)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("scheduling: find schedule: %w", err)
	}
	return s, nil
}

func (t *postgresTx) SetScheduleAvailability(ctx context.Context, id int64, availability Availability) error {
	tag, err := t.q.Exec(ctx, `UPDATE schedules SET is_available = $2 WHERE id = $1`, id, string(availability))
	if err != nil {
		return fmt.Errorf("scheduling: update schedule availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (t *postgresTx) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	var scheduleID pgtype.Int8
	if a.ScheduleID != 0 {
		scheduleID = pgtype.Int8{Int64: a.ScheduleID, Valid: true}
	}
	query := `
		INSERT INTO appointments (patient_id, doctor_id, schedule_id, appointment_date, appointment_time, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	err := t.q.QueryRow(ctx, query, a.PatientID, a.DoctorID, scheduleID, a.Date.Time, pgTime(a.Time), a.Status, a.Notes).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scheduling: insert appointment: %w", err)
	}
	return &a, nil
}

func (t *postgresTx) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	var (
		a    Appointment
		date time.Time
		at   pgtype.Time
	)
	query := `
		SELECT id, patient_id, doctor_id, COALESCE(schedule_id, 0), appointment_date, appointment_time,
		       status, COALESCE(notes, ''), created_at
		FROM appointments
		WHERE id = $1
		FOR UPDATE`
	err := t.q.QueryRow(ctx, query, id).Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ScheduleID, &date, &at, &a.Status, &a.Notes, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("scheduling: get appointment: %w", err)
	}
	a.Date = DateOf(date)
	a.Time = fromPGTime(at)
	return &a, nil
}

func (t *postgresTx) SetAppointmentStatus(ctx context.Context, id int64, status string) error {
	tag, err := t.q.Exec(ctx, `UPDATE appointments SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("scheduling: update appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func pgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: t.Microseconds(), Valid: true}
}

func fromPGTime(t pgtype.Time) TimeOfDay {
	if !t.Valid {
		return TimeOfDay{}
	}
	return TimeOfDayFromMicroseconds(t.Microseconds)
}

func pgDate(d Date) pgtype.Date {
	if d.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.Time, Valid: true}
}
