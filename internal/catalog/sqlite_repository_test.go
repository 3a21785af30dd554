package catalog_test

import (
	"context"
	"testing"

	"github.com/avolk/go_checkout/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRepo(t *testing.T) *catalog.Repository {
	t.Helper()

	repo, err := catalog.NewRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.RunMigrations("./migrations"))
	return repo
}

func TestGetProduct_Seeded(t *testing.T) {
	repo := setupTestRepo(t)

	p, err := repo.GetProduct(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "TS-BLK-M", p.SKU)
	assert.Equal(t, int64(2800), p.Price)
	assert.True(t, p.IsActive)
}

func TestGetProduct_NotFound(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.GetProduct(context.Background(), 9999)
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestGetProduct_InactiveIsReturnedWithFlag(t *testing.T) {
	repo := setupTestRepo(t)

	// The discontinued poster stays queryable; callers decide what
	// inactive means for them.
	p, err := repo.GetProduct(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, p.IsActive)
}
