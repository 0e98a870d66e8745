package universities

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/campuseats/campuseats-backend/pkg/db/models"
	pkgerrors "github.com/campuseats/campuseats-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:universities_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.University{}))
	return db
}

func TestFindByID(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	campus := &models.University{Name: "IIT Bombay", City: "Mumbai"}
	require.NoError(t, db.Create(campus).Error)

	found, err := repo.FindByID(context.Background(), campus.ID)
	require.NoError(t, err)
	assert.Equal(t, "IIT Bombay", found.Name)
	assert.Equal(t, "Mumbai", found.City)
}

func TestFindByIDMissing(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)

	_, err := repo.FindByID(context.Background(), uuid.New())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}
