package repository

import (
	"errors"
	"sort"

	"github.com/ahmadzakiakmal/medichain/geo"
	"github.com/ahmadzakiakmal/medichain/repository/models"
	"gorm.io/gorm"
)

// HospitalUpdate carries the optional profile fields a hospital may change
type HospitalUpdate struct {
	Name      *string
	Email     *string
	Latitude  *float64
	Longitude *float64
}

// Empty reports whether no field was supplied
func (u HospitalUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Latitude == nil && u.Longitude == nil
}

// NearbyHospital is a hospital annotated with its distance from a query point
type NearbyHospital struct {
	models.Hospital
	Distance float64 `json:"distance"`
}

// CreateHospital registers a new hospital, rejecting duplicate emails and wallets
func (r *Repository) CreateHospital(hospital *models.Hospital) (*models.Hospital, *RepositoryError) {
	dbTx := r.db.Begin()

	var count int64
	err := dbTx.Model(&models.Hospital{}).Where("email = ?", hospital.Email).Count(&count).Error
	if err != nil {
		dbTx.Rollback()
		return nil, dbError(err, "")
	}
	if count > 0 {
		dbTx.Rollback()
		return nil, &RepositoryError{
			Code:    ErrCodeDuplicate,
			Message: "Hospital with this email already exists",
		}
	}

	err = dbTx.Model(&models.Hospital{}).Where("wallet_address = ?", hospital.WalletAddress).Count(&count).Error
	if err != nil {
		dbTx.Rollback()
		return nil, dbError(err, "")
	}
	if count > 0 {
		dbTx.Rollback()
		return nil, &RepositoryError{
			Code:    ErrCodeDuplicate,
			Message: "Wallet address already in use",
		}
	}

	hospital.Reputation = 0
	if err := dbTx.Create(hospital).Error; err != nil {
		dbTx.Rollback()
		return nil, dbError(err, "")
	}

	if repoErr := commit(dbTx); repoErr != nil {
		return nil, repoErr
	}
	return hospital, nil
}

// GetHospitalByID returns a hospital without its medicines
func (r *Repository) GetHospitalByID(id string) (*models.Hospital, *RepositoryError) {
	var hospital models.Hospital
	err := r.db.Where("hospital_id = ?", id).First(&hospital).Error
	if err != nil {
		return nil, dbError(err, "Hospital not found")
	}
	return &hospital, nil
}

// GetHospitalByEmail is used by the login flow
func (r *Repository) GetHospitalByEmail(email string) (*models.Hospital, *RepositoryError) {
	var hospital models.Hospital
	err := r.db.Where("email = ?", email).First(&hospital).Error
	if err != nil {
		return nil, dbError(err, "Hospital not found")
	}
	return &hospital, nil
}

// GetHospitalProfile returns a hospital with its medicines preloaded
func (r *Repository) GetHospitalProfile(id string) (*models.Hospital, *RepositoryError) {
	var hospital models.Hospital
	err := r.db.Preload("Medicines", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at DESC")
	}).Where("hospital_id = ?", id).First(&hospital).Error
	if err != nil {
		return nil, dbError(err, "Hospital not found")
	}
	return &hospital, nil
}

// ListHospitals returns every registered hospital
func (r *Repository) ListHospitals() ([]models.Hospital, *RepositoryError) {
	hospitals := []models.Hospital{}
	if err := r.db.Order("created_at ASC").Find(&hospitals).Error; err != nil {
		return nil, dbError(err, "")
	}
	return hospitals, nil
}

// UpdateHospitalProfile applies a partial profile update.
// An email already used by another hospital is rejected.
func (r *Repository) UpdateHospitalProfile(id string, update HospitalUpdate) (*models.Hospital, *RepositoryError) {
	dbTx := r.db.Begin()

	var hospital models.Hospital
	if err := dbTx.Where("hospital_id = ?", id).First(&hospital).Error; err != nil {
		dbTx.Rollback()
		return nil, dbError(err, "Hospital not found")
	}

	fields := map[string]interface{}{}
	if update.Name != nil {
		fields["name"] = *update.Name
	}
	if update.Email != nil && *update.Email != hospital.Email {
		var other models.Hospital
		err := dbTx.Where("email = ? AND hospital_id <> ?", *update.Email, id).First(&other).Error
		if err == nil {
			dbTx.Rollback()
			return nil, &RepositoryError{
				Code:    ErrCodeDuplicate,
				Message: "Email already in use",
			}
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			dbTx.Rollback()
			return nil, dbError(err, "")
		}
		fields["email"] = *update.Email
	}
	if update.Latitude != nil {
		fields["latitude"] = *update.Latitude
	}
	if update.Longitude != nil {
		fields["longitude"] = *update.Longitude
	}

	if len(fields) > 0 {
		if err := dbTx.Model(&hospital).Updates(fields).Error; err != nil {
			dbTx.Rollback()
			return nil, dbError(err, "")
		}
	}

	if err := dbTx.Where("hospital_id = ?", id).First(&hospital).Error; err != nil {
		dbTx.Rollback()
		return nil, dbError(err, "Hospital not found")
	}

	if repoErr := commit(dbTx); repoErr != nil {
		return nil, repoErr
	}
	return &hospital, nil
}

// NearbyHospitals scans all hospitals with coordinates and keeps those whose
// distance from origin is within radiusKm, nearest first.
func (r *Repository) NearbyHospitals(origin geo.Coordinate, radiusKm float64) ([]NearbyHospital, *RepositoryError) {
	var hospitals []models.Hospital
	err := r.db.Where("latitude IS NOT NULL AND longitude IS NOT NULL").Find(&hospitals).Error
	if err != nil {
		return nil, dbError(err, "")
	}

	type candidate struct {
		hospital models.Hospital
		distance float64
	}
	candidates := make([]candidate, 0, len(hospitals))
	for _, h := range hospitals {
		pos, ok := geo.FromPointers(h.Latitude, h.Longitude)
		if !ok {
			continue
		}
		d := geo.Distance(origin, pos)
		if d <= radiusKm {
			candidates = append(candidates, candidate{hospital: h, distance: d})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})

	nearby := make([]NearbyHospital, 0, len(candidates))
	for _, c := range candidates {
		nearby = append(nearby, NearbyHospital{Hospital: c.hospital, Distance: geo.Round1(c.distance)})
	}
	return nearby, nil
}
