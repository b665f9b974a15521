package repository

import (
	"fmt"
	"time"

	"github.com/ahmadzakiakmal/medichain/repository/models"
)

// SeedHospital is a demo hospital together with its plain text password
type SeedHospital struct {
	Name          string
	Email         string
	Password      string
	WalletAddress string
	Latitude      float64
	Longitude     float64
}

// DemoHospitals are hospitals around Delhi NCR used for local environments
var DemoHospitals = []SeedHospital{
	{"Apollo Hospital Delhi", "apollo.delhi@medileger.com", "apollo123", "0x1234567890123456789012345678901234567890", 28.5621, 77.2841},
	{"Fortis Hospital Noida", "fortis.noida@medileger.com", "fortis123", "0x2345678901234567890123456789012345678901", 28.5355, 77.391},
	{"Max Super Speciality Hospital Saket", "max.saket@medileger.com", "max123", "0x3456789012345678901234567890123456789012", 28.528, 77.211},
	{"Medanta The Medicity Gurugram", "medanta.gurugram@medileger.com", "medanta123", "0x4567890123456789012345678901234567890123", 28.4391, 77.0405},
	{"Asian Hospital Faridabad", "asian.faridabad@medileger.com", "asian123", "0x5678901234567890123456789012345678901234", 28.3808, 77.2937},
	{"Indraprastha Apollo Hospital New Delhi", "ip.apollo@medileger.com", "ipapollo123", "0x6789012345678901234567890123456789012345", 28.5679, 77.2831},
	{"Artemis Hospital Gurugram", "artemis.gurugram@medileger.com", "artemis123", "0x7890123456789012345678901234567890123456", 28.4595, 77.0266},
	{"Jaypee Hospital Noida", "jaypee.noida@medileger.com", "jaypee123", "0x8901234567890123456789012345678901234567", 28.5801, 77.3244},
	{"Metro Hospital Noida", "metro.noida@medileger.com", "metro123", "0x9012345678901234567890123456789012345678", 28.5728, 77.3615},
	{"Sarvodaya Hospital Faridabad", "sarvodaya.faridabad@medileger.com", "sarvodaya123", "0xa123456789012345678901234567890123456789", 28.4089, 77.3178},
}

type seedMedicine struct {
	name       string
	baseQty    int
	spreadQty  int
	expiryDays int
	priority   bool
}

var demoStock = []seedMedicine{
	{"Paracetamol", 50, 100, 30, false},
	{"Ibuprofen", 30, 100, 45, false},
	{"Amoxicillin", 20, 50, 60, true},
	{"Loratadine", 40, 70, 90, false},
	{"Insulin", 10, 30, 30, true},
}

// Seed inserts the demo hospitals and their stock when the hospitals table is empty.
// hash turns a plain text password into the stored password hash.
func (r *Repository) Seed(hash func(string) (string, error)) error {
	var hospitalCount int64
	if err := r.db.Model(&models.Hospital{}).Count(&hospitalCount).Error; err != nil {
		return fmt.Errorf("count hospitals: %w", err)
	}
	if hospitalCount > 0 {
		r.logger.Info("Seed data already exists, skipping...")
		return nil
	}

	r.logger.Info("Seeding database with initial data...")
	now := time.Now().UTC()

	for i, h := range DemoHospitals {
		passwordHash, err := hash(h.Password)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", h.Email, err)
		}
		lat, lon := h.Latitude, h.Longitude
		hospital := &models.Hospital{
			Name:          h.Name,
			Email:         h.Email,
			PasswordHash:  passwordHash,
			WalletAddress: h.WalletAddress,
			Latitude:      &lat,
			Longitude:     &lon,
		}
		if _, repoErr := r.CreateHospital(hospital); repoErr != nil {
			return fmt.Errorf("create hospital %s: %w", h.Email, repoErr)
		}

		for j, s := range demoStock {
			medicine := &models.Medicine{
				Name:       s.name,
				Quantity:   s.baseQty + (i*37+j*11)%s.spreadQty,
				Expiry:     now.AddDate(0, 0, s.expiryDays+(i*29+j*13)%180),
				Priority:   s.priority,
				HospitalID: hospital.ID,
			}
			if _, repoErr := r.CreateMedicine(medicine); repoErr != nil {
				return fmt.Errorf("create medicine %s for %s: %w", s.name, h.Email, repoErr)
			}
		}
		r.logger.Info("Seeded hospital", "name", hospital.Name, "id", hospital.ID)
	}

	r.logger.Info("Database seeding completed successfully")
	return nil
}
