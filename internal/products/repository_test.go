package products

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/db/dbtest"
)

func TestFindByIDs(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	seller := uuid.New()
	tomatoes := dbtest.SeedProduct(t, conn, seller, "Tomatoes", 250, 10)
	eggs := dbtest.SeedProduct(t, conn, seller, "Eggs", 400, 0)

	found, err := repo.FindByIDs(context.Background(), []uuid.UUID{tomatoes.ID, eggs.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Tomatoes", found[tomatoes.ID].Name)
	foundTomatoes, foundEggs := found[tomatoes.ID], found[eggs.ID]
	assert.True(t, foundTomatoes.Sellable())
	assert.False(t, foundEggs.Sellable())

	empty, err := repo.FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFindByIDNotFound(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
