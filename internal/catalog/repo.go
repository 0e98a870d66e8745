package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuseats/campuseats-backend/pkg/db/models"
	"github.com/campuseats/campuseats-backend/pkg/enums"
	pkgerrors "github.com/campuseats/campuseats-backend/pkg/errors"
)

// ItemRef addresses one catalog item by id and kind.
type ItemRef struct {
	ItemID uuid.UUID
	Kind   enums.ItemKind
}

// Repository resolves catalog item records for transfer manifests, checkout
// pricing, and report enrichment.
type Repository interface {
	FindByIDAndKind(ctx context.Context, id uuid.UUID, kind enums.ItemKind) (*models.CatalogItem, error)
	FindByRefs(ctx context.Context, refs []ItemRef) (map[ItemRef]models.CatalogItem, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByIDAndKind(ctx context.Context, id uuid.UUID, kind enums.ItemKind) (*models.CatalogItem, error) {
	var item models.CatalogItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND kind = ?", id, kind).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "catalog item not found")
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindByRefs(ctx context.Context, refs []ItemRef) (map[ItemRef]models.CatalogItem, error) {
	result := make(map[ItemRef]models.CatalogItem, len(refs))
	if len(refs) == 0 {
		return result, nil
	}

	ids := make([]uuid.UUID, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ItemID)
	}

	var items []models.CatalogItem
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, item := range items {
		result[ItemRef{ItemID: item.ID, Kind: item.Kind}] = item
	}
	return result, nil
}
