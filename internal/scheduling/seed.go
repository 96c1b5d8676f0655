package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

var seedDoctors = []Doctor{
	{Name: "Dr. Maria Silva", Specialty: "Cardiologia", Email: "maria.silva@clinic.com", Phone: "(11) 99999-0001"},
	{Name: "Dr. João Santos", Specialty: "Dermatologia", Email: "joao.santos@clinic.com", Phone: "(11) 99999-0002"},
	{Name: "Dr. Ana Costa", Specialty: "Pediatria", Email: "ana.costa@clinic.com", Phone: "(11) 99999-0003"},
	{Name: "Dr. Carlos Lima", Specialty: "Ortopedia", Email: "carlos.lima@clinic.com", Phone: "(11) 99999-0004"},
}

var seedPatients = []PatientInput{
	{Name: "Pedro Oliveira", Email: "pedro@email.com", Phone: "(11) 98888-0001", CPF: "123.456.789-01", BirthDate: NewDate(1985, time.March, 15)},
	{Name: "Lucia Fernandes", Email: "lucia@email.com", Phone: "(11) 98888-0002", CPF: "123.456.789-02", BirthDate: NewDate(1990, time.July, 22)},
	{Name: "Roberto Alves", Email: "roberto@email.com", Phone: "(11) 98888-0003", CPF: "123.456.789-03", BirthDate: NewDate(1978, time.November, 8)},
	{Name: "Fernanda Costa", Email: "fernanda@email.com", Phone: "(11) 98888-0004", CPF: "123.456.789-04", BirthDate: NewDate(1995, time.January, 30)},
}

// seedSlot places a one-hour slot dayOffset days after the seed date.
type seedSlot struct {
	doctor    int
	dayOffset int
	hour      int
}

var seedSlots = []seedSlot{
	{doctor: 0, dayOffset: 1, hour: 9},
	{doctor: 0, dayOffset: 1, hour: 10},
	{doctor: 0, dayOffset: 1, hour: 14},
	{doctor: 1, dayOffset: 1, hour: 9},
	{doctor: 1, dayOffset: 2, hour: 11},
	{doctor: 2, dayOffset: 2, hour: 8},
	{doctor: 3, dayOffset: 3, hour: 15},
}

// Seed loads demo doctors, patients and open slots on the three days after
// now. It does nothing when patients already exist.
func Seed(ctx context.Context, repo Repository, now time.Time, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Default()
	}
	count, err := repo.CountPatients(ctx)
	if err != nil {
		return fmt.Errorf("scheduling: seed: %w", err)
	}
	if count > 0 {
		logger.Info("database already has data, skipping seed", "patients", count)
		return nil
	}

	today := DateOf(now)
	err = repo.WithTx(ctx, func(tx Tx) error {
		doctorIDs := make([]int64, len(seedDoctors))
		for i, d := range seedDoctors {
			created, err := tx.InsertDoctor(ctx, d)
			if err != nil {
				return err
			}
			doctorIDs[i] = created.ID
		}
		for _, p := range seedPatients {
			if _, err := tx.UpsertPatientByCPF(ctx, p); err != nil {
				return err
			}
		}
		for _, s := range seedSlots {
			_, err := tx.InsertSchedule(ctx, Schedule{
				DoctorID:     doctorIDs[s.doctor],
				Date:         DateOf(today.AddDate(0, 0, s.dayOffset)),
				StartTime:    NewTimeOfDay(s.hour, 0),
				EndTime:      NewTimeOfDay(s.hour+1, 0),
				Availability: AvailabilityTrue,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scheduling: seed: %w", err)
	}
	logger.Info("database seeded", "doctors", len(seedDoctors), "patients", len(seedPatients), "slots", len(seedSlots))
	return nil
}
