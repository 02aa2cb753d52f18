package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/sirupsen/logrus"

	"github.com/carewellhq/hospital-scheduling/internal/config"
	"github.com/carewellhq/hospital-scheduling/internal/schedule"
)

const (
	doctorCount  = 10
	patientCount = 200
	gridDays     = 14
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var medications = []string{
	"Paracetamol",
	"Ibuprofen",
	"Amoxicillin",
	"Atorvastatin",
	"Metformin",
	"Omeprazole",
	"Amlodipine",
	"Salbutamol",
	"Cetirizine",
	"Prednisolone",
}

func main() {
	log := logrus.New()
	log.Info("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config load error")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.WithError(err).Fatal("create data dir")
	}

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(cfg.DataDir)
	if err != nil {
		log.WithError(err).Fatal("seed doctors")
	}
	log.WithField("count", len(doctorIDs)).Info("doctors seeded")

	if err := seedPatients(cfg.DataDir); err != nil {
		log.WithError(err).Fatal("seed patients")
	}
	log.WithField("count", patientCount).Info("patients seeded")

	slots, err := seedSchedule(cfg.DataDir, doctorIDs)
	if err != nil {
		log.WithError(err).Fatal("seed schedule")
	}
	log.WithField("slots", slots).Info("schedule grid seeded")

	if err := seedInventory(cfg.DataDir); err != nil {
		log.WithError(err).Fatal("seed inventory")
	}
	log.WithField("count", len(medications)).Info("inventory seeded")

	log.Info("seed complete")
}

func seedDoctors(dataDir string) ([]string, error) {
	rows := [][]string{{"doctorID", "name", "specialty"}}
	ids := make([]string, 0, doctorCount)

	for i := 0; i < doctorCount; i++ {
		id := fmt.Sprintf("D%03d", i+1)
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		rows = append(rows, []string{id, "Dr. " + gofakeit.Name(), spec})
		ids = append(ids, id)
	}

	return ids, writeCSV(filepath.Join(dataDir, "doctors.csv"), rows)
}

func seedPatients(dataDir string) error {
	rows := [][]string{{"patientID", "name", "email"}}

	for i := 0; i < patientCount; i++ {
		id := fmt.Sprintf("P%04d", i+1)
		rows = append(rows, []string{id, gofakeit.Name(), gofakeit.Email()})
	}

	return writeCSV(filepath.Join(dataDir, "patients.csv"), rows)
}

// seedSchedule fills each doctor's grid with half-hour slots, 09:00 to
// 17:00, for the next gridDays days, all Available.
func seedSchedule(dataDir string, doctorIDs []string) (int, error) {
	var slots []schedule.Slot

	start := time.Now()
	for day := 0; day < gridDays; day++ {
		date := start.AddDate(0, 0, day+1).Format(schedule.DateLayout)
		for _, doctorID := range doctorIDs {
			for hour := 9; hour < 17; hour++ {
				for _, minute := range []int{0, 30} {
					slots = append(slots, schedule.Slot{
						DoctorID: doctorID,
						Date:     date,
						TimeSlot: fmt.Sprintf("%02d:%02d", hour, minute),
						Status:   schedule.StatusAvailable,
					})
				}
			}
		}
	}

	if err := schedule.NewCSVStore(dataDir).Save(slots); err != nil {
		return 0, err
	}
	return len(slots), nil
}

func seedInventory(dataDir string) error {
	rows := [][]string{{"medicationName", "stock"}}
	for _, name := range medications {
		rows = append(rows, []string{name, fmt.Sprintf("%d", gofakeit.Number(50, 500))})
	}
	return writeCSV(filepath.Join(dataDir, "inventory.csv"), rows)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
