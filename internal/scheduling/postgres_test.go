package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewPostgresRepository(mock), mock
}

var patientCols = []string{"id", "name", "email", "phone", "cpf", "birth_date", "created_at"}

func TestPostgresGetPatient(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	created := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	birth := time.Date(1985, 3, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM patients WHERE id").WithArgs(int64(1)).WillReturnRows(
		pgxmock.NewRows(patientCols).AddRow(int64(1), "Pedro Oliveira", "pedro@email.com", "(11) 98888-0001", "123.456.789-01", pgtype.Date{Time: birth, Valid: true}, created),
	)
	p, err := repo.GetPatient(ctx, 1)
	if err != nil {
		t.Fatalf("get patient failed: %v", err)
	}
	if p.Name != "Pedro Oliveira" || p.BirthDate.String() != "1985-03-15" {
		t.Fatalf("unexpected patient: %+v", p)
	}

	mock.ExpectQuery("FROM patients WHERE id").WithArgs(int64(2)).WillReturnRows(pgxmock.NewRows(patientCols))
	if _, err := repo.GetPatient(ctx, 2); !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresListAvailableSlotsBuildsFilters(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	day := NewDate(2025, time.January, 15)
	rows := pgxmock.NewRows([]string{"id", "doctor_id", "date", "start_time", "end_time", "is_available", "name", "specialty"}).
		AddRow(int64(10), int64(1), day.Time, pgTime(NewTimeOfDay(9, 0)), pgTime(NewTimeOfDay(10, 0)), "true", "Dr. Maria Silva", "Cardiologia")

	mock.ExpectQuery(`s.is_available = 'true' AND s.date = \$1 AND s.doctor_id = \$2 AND d.name ILIKE`).
		WithArgs(day.Time, int64(1), "Maria").
		WillReturnRows(rows)

	slots, err := repo.ListAvailableSlots(ctx, SlotFilter{Date: &day, DoctorID: 1, DoctorName: "Maria"})
	if err != nil {
		t.Fatalf("list slots failed: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected one slot, got %d", len(slots))
	}
	got := slots[0]
	if got.StartTime.Short() != "09:00" || got.EndTime.Short() != "10:00" || !got.Availability.IsAvailable() || got.DoctorSpecialty != "Cardiologia" {
		t.Fatalf("unexpected slot: %+v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresWithTxCommits(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	birth := NewDate(1990, time.July, 22)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO patients").
		WithArgs("Lucia Fernandes", "lucia@email.com", "(11) 98888-0002", "123.456.789-02", pgtype.Date{Time: birth.Time, Valid: true}).
		WillReturnRows(pgxmock.NewRows(patientCols).AddRow(int64(2), "Lucia Fernandes", "lucia@email.com", "(11) 98888-0002", "123.456.789-02", pgtype.Date{Time: birth.Time, Valid: true}, time.Now()))
	mock.ExpectCommit()

	err := repo.WithTx(ctx, func(tx Tx) error {
		p, err := tx.UpsertPatientByCPF(ctx, PatientInput{Name: "Lucia Fernandes", Email: "lucia@email.com", Phone: "(11) 98888-0002", CPF: "123.456.789-02", BirthDate: birth})
		if err != nil {
			return err
		}
		if p.ID != 2 {
			t.Fatalf("expected id 2, got %d", p.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresReserveSlotRollsBackWhenSlotTaken(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	svc := NewService(repo, ServiceConfig{}, nil)
	day := NewDate(2025, time.January, 15)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO patients").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "321.654.987-00", pgtype.Date{}).
		WillReturnRows(pgxmock.NewRows(patientCols).AddRow(int64(7), "Joana Prado", "joana@email.com", "(11) 91234-5678", "321.654.987-00", pgtype.Date{}, time.Now()))
	mock.ExpectQuery("FROM schedules WHERE id = \\$1 FOR UPDATE").WithArgs(int64(10)).WillReturnRows(
		pgxmock.NewRows([]string{"id", "doctor_id", "date", "start_time", "end_time", "is_available"}).
			AddRow(int64(10), int64(1), day.Time, pgTime(NewTimeOfDay(9, 0)), pgTime(NewTimeOfDay(10, 0)), "false"),
	)
	mock.ExpectRollback()

	_, err := svc.ReserveSlot(ctx, 10, PatientInput{Name: "Joana Prado", Email: "joana@email.com", Phone: "(11) 91234-5678", CPF: "321.654.987-00"})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresReserveSlotCommitsAllWrites(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	svc := NewService(repo, ServiceConfig{}, nil)
	day := NewDate(2025, time.January, 15)
	nine := pgTime(NewTimeOfDay(9, 0))

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO patients").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "321.654.987-00", pgtype.Date{}).
		WillReturnRows(pgxmock.NewRows(patientCols).AddRow(int64(7), "Joana Prado", "joana@email.com", "(11) 91234-5678", "321.654.987-00", pgtype.Date{}, time.Now()))
	mock.ExpectQuery("FROM schedules WHERE id = \\$1 FOR UPDATE").WithArgs(int64(10)).WillReturnRows(
		pgxmock.NewRows([]string{"id", "doctor_id", "date", "start_time", "end_time", "is_available"}).
			AddRow(int64(10), int64(1), day.Time, nine, pgTime(NewTimeOfDay(10, 0)), "true"),
	)
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(int64(7), int64(1), pgtype.Int8{Int64: 10, Valid: true}, day.Time, nine, StatusScheduled, "").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(99), time.Now()))
	mock.ExpectExec("UPDATE schedules SET is_available").WithArgs(int64(10), "false").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectQuery("FROM doctors WHERE id").WithArgs(int64(1)).WillReturnRows(
		pgxmock.NewRows([]string{"id", "name", "specialty", "email", "phone"}).
			AddRow(int64(1), "Dr. Maria Silva", "Cardiologia", "maria.silva@clinic.com", "(11) 99999-0001"),
	)

	res, err := svc.ReserveSlot(ctx, 10, PatientInput{Name: "Joana Prado", Email: "joana@email.com", Phone: "(11) 91234-5678", CPF: "321.654.987-00"})
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if res.Appointment.ID != 99 || res.Patient.ID != 7 || res.Slot.ID != 10 {
		t.Fatalf("unexpected reservation: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresCancelWithoutLinkedSlotFindsByStart(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	svc := NewService(repo, ServiceConfig{}, nil)
	day := NewDate(2025, time.January, 16)
	eleven := pgTime(NewTimeOfDay(11, 0))

	mock.ExpectBegin()
	mock.ExpectQuery("FROM appointments").WithArgs(int64(5)).WillReturnRows(
		pgxmock.NewRows([]string{"id", "patient_id", "doctor_id", "schedule_id", "appointment_date", "appointment_time", "status", "notes", "created_at"}).
			AddRow(int64(5), int64(2), int64(2), int64(0), day.Time, eleven, StatusScheduled, "", time.Now()),
	)
	mock.ExpectExec("UPDATE appointments SET status").WithArgs(int64(5), StatusCancelled).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("WHERE doctor_id = \\$1 AND date = \\$2 AND start_time = \\$3").WithArgs(int64(2), day.Time, eleven).
		WillReturnRows(pgxmock.NewRows([]string{"id", "doctor_id", "date", "start_time", "end_time", "is_available"}).
			AddRow(int64(12), int64(2), day.Time, eleven, pgTime(NewTimeOfDay(12, 0)), "false"))
	mock.ExpectExec("UPDATE schedules SET is_available").WithArgs(int64(12), "true").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	appt, err := svc.CancelAppointment(ctx, 5)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if appt.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", appt.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
