package repository

import (
	"sort"
	"strings"
	"time"

	"github.com/ahmadzakiakmal/medichain/geo"
	"github.com/ahmadzakiakmal/medichain/repository/models"
	"gorm.io/gorm"
)

// MedicineUpdate carries the optional fields of a stock line update
type MedicineUpdate struct {
	Name     *string
	Quantity *int
	Expiry   *time.Time
	Priority *bool
}

// Empty reports whether no field was supplied
func (u MedicineUpdate) Empty() bool {
	return u.Name == nil && u.Quantity == nil && u.Expiry == nil && u.Priority == nil
}

// MedicineQuery describes a cross-hospital availability search
type MedicineQuery struct {
	Name          string
	MinQuantity   int
	MaxDistanceKm float64
}

// PaymentOptions lists the settlement channels a supplier can accept
type PaymentOptions struct {
	Crypto   bool `json:"crypto"`
	Razorpay bool `json:"razorpay"`
}

// MedicineMatch is a search hit annotated with distance and payment options
type MedicineMatch struct {
	models.Medicine
	Distance       float64        `json:"distance"`
	PaymentOptions PaymentOptions `json:"paymentOptions"`
}

func withHospital(db *gorm.DB) *gorm.DB {
	return db.Preload("Hospital")
}

// ListMedicines returns all stock lines across the network
func (r *Repository) ListMedicines() ([]models.Medicine, *RepositoryError) {
	medicines := []models.Medicine{}
	if err := r.db.Scopes(withHospital).Order("created_at DESC").Find(&medicines).Error; err != nil {
		return nil, dbError(err, "")
	}
	return medicines, nil
}

// GetMedicine returns a single stock line with its owner
func (r *Repository) GetMedicine(id string) (*models.Medicine, *RepositoryError) {
	var medicine models.Medicine
	err := r.db.Scopes(withHospital).Where("medicine_id = ?", id).First(&medicine).Error
	if err != nil {
		return nil, dbError(err, "Medicine not found")
	}
	return &medicine, nil
}

// ListMedicinesByHospital returns the stock of one hospital
func (r *Repository) ListMedicinesByHospital(hospitalID string) ([]models.Medicine, *RepositoryError) {
	medicines := []models.Medicine{}
	err := r.db.Where("hospital_id = ?", hospitalID).Order("name ASC").Find(&medicines).Error
	if err != nil {
		return nil, dbError(err, "")
	}
	return medicines, nil
}

// CreateMedicine adds a stock line for its owning hospital
func (r *Repository) CreateMedicine(medicine *models.Medicine) (*models.Medicine, *RepositoryError) {
	dbTx := r.db.Begin()

	var owner models.Hospital
	if err := dbTx.Where("hospital_id = ?", medicine.HospitalID).First(&owner).Error; err != nil {
		dbTx.Rollback()
		return nil, dbError(err, "Hospital not found")
	}

	if err := dbTx.Omit("Hospital").Create(medicine).Error; err != nil {
		dbTx.Rollback()
		return nil, dbError(err, "")
	}

	if repoErr := commit(dbTx); repoErr != nil {
		return nil, repoErr
	}
	return medicine, nil
}

// UpdateMedicine applies a partial update on behalf of callerID.
// Only the owning hospital may update a stock line.
func (r *Repository) UpdateMedicine(id, callerID string, update MedicineUpdate) (*models.Medicine, *RepositoryError) {
	dbTx := r.db.Begin()

	var medicine models.Medicine
	if err := dbTx.Where("medicine_id = ?", id).First(&medicine).Error; err != nil {
		dbTx.Rollback()
		return nil, dbError(err, "Medicine not found")
	}
	if medicine.HospitalID != callerID {
		dbTx.Rollback()
		return nil, &RepositoryError{
			Code:    ErrCodeForbidden,
			Message: "Not authorized to update this medicine",
		}
	}

	fields := map[string]interface{}{}
	if update.Name != nil {
		fields["name"] = *update.Name
	}
	if update.Quantity != nil {
		fields["quantity"] = *update.Quantity
	}
	if update.Expiry != nil {
		fields["expiry"] = update.Expiry.UTC()
	}
	if update.Priority != nil {
		fields["priority"] = *update.Priority
	}

	if len(fields) > 0 {
		if err := dbTx.Model(&medicine).Updates(fields).Error; err != nil {
			dbTx.Rollback()
			return nil, dbError(err, "")
		}
	}

	if err := dbTx.Where("medicine_id = ?", id).First(&medicine).Error; err != nil {
		dbTx.Rollback()
		return nil, dbError(err, "Medicine not found")
	}

	if repoErr := commit(dbTx); repoErr != nil {
		return nil, repoErr
	}
	return &medicine, nil
}

// DeleteMedicine removes a stock line owned by callerID
func (r *Repository) DeleteMedicine(id, callerID string) *RepositoryError {
	dbTx := r.db.Begin()

	var medicine models.Medicine
	if err := dbTx.Where("medicine_id = ?", id).First(&medicine).Error; err != nil {
		dbTx.Rollback()
		return dbError(err, "Medicine not found")
	}
	if medicine.HospitalID != callerID {
		dbTx.Rollback()
		return &RepositoryError{
			Code:    ErrCodeForbidden,
			Message: "Not authorized to delete this medicine",
		}
	}

	if err := dbTx.Delete(&medicine).Error; err != nil {
		dbTx.Rollback()
		return dbError(err, "")
	}

	return commit(dbTx)
}

// LowStock returns the caller's medicines at or below threshold, smallest first
func (r *Repository) LowStock(hospitalID string, threshold int) ([]models.Medicine, *RepositoryError) {
	medicines := []models.Medicine{}
	err := r.db.
		Where("hospital_id = ? AND quantity <= ?", hospitalID, threshold).
		Order("quantity ASC").
		Find(&medicines).Error
	if err != nil {
		return nil, dbError(err, "")
	}
	return medicines, nil
}

// ExpiringBefore returns the caller's medicines expiring at or before until, soonest first
func (r *Repository) ExpiringBefore(hospitalID string, until time.Time) ([]models.Medicine, *RepositoryError) {
	medicines := []models.Medicine{}
	err := r.db.
		Where("hospital_id = ? AND expiry <= ?", hospitalID, until.UTC()).
		Order("expiry ASC").
		Find(&medicines).Error
	if err != nil {
		return nil, dbError(err, "")
	}
	return medicines, nil
}

// SearchMedicines finds stock held by other hospitals within the query radius
// of the caller. Owners without coordinates never match.
func (r *Repository) SearchMedicines(callerID string, query MedicineQuery) ([]MedicineMatch, *RepositoryError) {
	caller, repoErr := r.GetHospitalByID(callerID)
	if repoErr != nil {
		return nil, repoErr
	}
	origin, ok := geo.FromPointers(caller.Latitude, caller.Longitude)
	if !ok {
		return nil, &RepositoryError{
			Code:    ErrCodeInvalidInput,
			Message: "Hospital location not available",
		}
	}

	var medicines []models.Medicine
	err := r.db.Scopes(withHospital).
		Where("LOWER(name) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(query.Name))+"%").
		Where("quantity >= ?", query.MinQuantity).
		Where("hospital_id <> ?", callerID).
		Find(&medicines).Error
	if err != nil {
		return nil, dbError(err, "")
	}

	type candidate struct {
		medicine models.Medicine
		distance float64
	}
	candidates := make([]candidate, 0, len(medicines))
	for _, m := range medicines {
		if m.Hospital == nil {
			continue
		}
		pos, ok := geo.FromPointers(m.Hospital.Latitude, m.Hospital.Longitude)
		if !ok {
			continue
		}
		d := geo.Distance(origin, pos)
		if d <= query.MaxDistanceKm {
			candidates = append(candidates, candidate{medicine: m, distance: d})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})

	matches := make([]MedicineMatch, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, MedicineMatch{
			Medicine: c.medicine,
			Distance: geo.Round1(c.distance),
			PaymentOptions: PaymentOptions{
				Crypto:   c.medicine.Hospital.WalletAddress != "",
				Razorpay: true,
			},
		})
	}
	return matches, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
