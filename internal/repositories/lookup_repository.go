package repositories

import (
	"context"

	"example.com/backstage/services/charity/internal/models"

	"gorm.io/gorm"
)

// LookupRepository reads reference data matched by name or id
type LookupRepository interface {
	StatusByName(ctx context.Context, name string) (*models.EventStatus, error)
	DemandTypeByName(ctx context.Context, name string) (*models.DemandType, error)
	DeliveryOptions(ctx context.Context) ([]models.DeliveryOption, error)
	CityByID(ctx context.Context, id uint) (*models.City, error)
}

type lookupRepository struct {
	readOnlyDB *gorm.DB
}

// NewLookupRepository creates a new lookup repository
func NewLookupRepository(readOnlyDB *gorm.DB) LookupRepository {
	return &lookupRepository{readOnlyDB: readOnlyDB}
}

func (r *lookupRepository) StatusByName(ctx context.Context, name string) (*models.EventStatus, error) {
	var status models.EventStatus
	if err := r.readOnlyDB.WithContext(ctx).Where("name = ?", name).First(&status).Error; err != nil {
		return nil, translate(err, "failed to get event status")
	}
	return &status, nil
}

func (r *lookupRepository) DemandTypeByName(ctx context.Context, name string) (*models.DemandType, error) {
	var demandType models.DemandType
	if err := r.readOnlyDB.WithContext(ctx).Where("name = ?", name).First(&demandType).Error; err != nil {
		return nil, translate(err, "failed to get demand type")
	}
	return &demandType, nil
}

func (r *lookupRepository) DeliveryOptions(ctx context.Context) ([]models.DeliveryOption, error) {
	var options []models.DeliveryOption
	if err := r.readOnlyDB.WithContext(ctx).Order("id ASC").Find(&options).Error; err != nil {
		return nil, translate(err, "failed to list delivery options")
	}
	return options, nil
}

func (r *lookupRepository) CityByID(ctx context.Context, id uint) (*models.City, error) {
	var city models.City
	if err := r.readOnlyDB.WithContext(ctx).First(&city, id).Error; err != nil {
		return nil, translate(err, "failed to get city")
	}
	return &city, nil
}
