package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"
)

var seedNow = time.Date(2025, time.January, 14, 8, 0, 0, 0, time.UTC)

func seededMemoryRepo(t *testing.T) *MemoryRepository {
	t.Helper()
	repo := NewMemoryRepository()
	if err := Seed(context.Background(), repo, seedNow, nil); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return repo
}

func TestSeedIsSkippedWhenPatientsExist(t *testing.T) {
	repo := seededMemoryRepo(t)
	ctx := context.Background()

	if err := Seed(ctx, repo, seedNow, nil); err != nil {
		t.Fatalf("second seed failed: %v", err)
	}
	patients, _ := repo.ListPatients(ctx)
	if len(patients) != 4 {
		t.Fatalf("expected 4 patients after reseed, got %d", len(patients))
	}
	doctors, _ := repo.ListDoctors(ctx)
	if len(doctors) != 4 {
		t.Fatalf("expected 4 doctors, got %d", len(doctors))
	}
	slots, _ := repo.ListAvailableSlots(ctx, SlotFilter{})
	if len(slots) != 7 {
		t.Fatalf("expected 7 open slots, got %d", len(slots))
	}
}

func TestMemoryListAvailableSlotsFilters(t *testing.T) {
	repo := seededMemoryRepo(t)
	ctx := context.Background()

	day := NewDate(2025, time.January, 15)
	slots, err := repo.ListAvailableSlots(ctx, SlotFilter{Date: &day})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots on %s, got %d", day, len(slots))
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].StartTime.Microseconds() < slots[i-1].StartTime.Microseconds() {
			t.Fatalf("slots not ordered by start time: %+v", slots)
		}
	}

	byName, err := repo.ListAvailableSlots(ctx, SlotFilter{DoctorName: "maria"})
	if err != nil {
		t.Fatalf("list by name failed: %v", err)
	}
	if len(byName) != 3 || byName[0].DoctorName != "Dr. Maria Silva" || byName[0].DoctorSpecialty != "Cardiologia" {
		t.Fatalf("unexpected doctor-name filter result: %+v", byName)
	}

	nine := NewTimeOfDay(9, 0)
	at, _ := repo.ListAvailableSlots(ctx, SlotFilter{Date: &day, StartTime: &nine})
	if len(at) != 2 {
		t.Fatalf("expected two 09:00 slots, got %d", len(at))
	}
}

func TestMemoryFindPatientByNameFirstMatch(t *testing.T) {
	repo := seededMemoryRepo(t)
	ctx := context.Background()

	p, err := repo.FindPatientByName(ctx, "COSTA")
	if err != nil {
		t.Fatalf("expected match: %v", err)
	}
	if p.Name != "Fernanda Costa" {
		t.Fatalf("expected Fernanda Costa, got %s", p.Name)
	}

	if _, err := repo.FindPatientByName(ctx, "Ninguem Aqui"); !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
	if _, err := repo.FindPatientByName(ctx, "   "); !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected blank name to miss, got %v", err)
	}
}

func TestMemoryUpsertPatientByCPFUpdatesInPlace(t *testing.T) {
	repo := seededMemoryRepo(t)
	ctx := context.Background()

	in := PatientInput{Name: "Pedro O. Junior", Email: "novo@email.com", Phone: "(11) 90000-0000", CPF: "123.456.789-01", BirthDate: NewDate(1985, time.March, 15)}
	var first, second *Patient
	if err := repo.WithTx(ctx, func(tx Tx) error {
		var err error
		first, err = tx.UpsertPatientByCPF(ctx, in)
		return err
	}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := repo.WithTx(ctx, func(tx Tx) error {
		var err error
		second, err = tx.UpsertPatientByCPF(ctx, in)
		return err
	}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("expected same patient id, got %d and %d", first.ID, second.ID)
	}
	count, _ := repo.CountPatients(ctx)
	if count != 4 {
		t.Fatalf("expected no duplicate patient, got %d patients", count)
	}
	stored, _ := repo.FindPatientByCPF(ctx, "123.456.789-01")
	if stored.Email != "novo@email.com" || stored.Name != "Pedro O. Junior" {
		t.Fatalf("expected updated fields, got %+v", stored)
	}
}

func TestMemoryWithTxRollsBackOnError(t *testing.T) {
	repo := seededMemoryRepo(t)
	ctx := context.Background()

	slots, _ := repo.ListAvailableSlots(ctx, SlotFilter{})
	target := slots[0]
	boom := errors.New("boom")

	err := repo.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.UpsertPatientByCPF(ctx, PatientInput{Name: "Novo Paciente", CPF: "999.999.999-99"}); err != nil {
			return err
		}
		if err := tx.SetScheduleAvailability(ctx, target.ID, AvailabilityFalse); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := repo.FindPatientByCPF(ctx, "999.999.999-99"); !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected patient insert to be rolled back, got %v", err)
	}
	after, _ := repo.ListAvailableSlots(ctx, SlotFilter{})
	if len(after) != len(slots) {
		t.Fatalf("expected slot flip to be rolled back, %d -> %d", len(slots), len(after))
	}
}

func TestMemoryInsertAppointmentRequiresPatient(t *testing.T) {
	repo := seededMemoryRepo(t)
	ctx := context.Background()

	err := repo.WithTx(ctx, func(tx Tx) error {
		_, err := tx.InsertAppointment(ctx, Appointment{PatientID: 9999, DoctorID: 1})
		return err
	})
	if !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
}
