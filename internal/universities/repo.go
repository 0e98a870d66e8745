package universities

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuseats/campuseats-backend/pkg/db/models"
	pkgerrors "github.com/campuseats/campuseats-backend/pkg/errors"
)

// Repository reads university metadata. Writes happen in an external admin
// surface, so only lookups are exposed here.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.University, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.University, error) {
	var uni models.University
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&uni).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "university not found")
		}
		return nil, err
	}
	return &uni, nil
}
