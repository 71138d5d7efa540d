package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/marketplace/internal/apperr"
	"github.com/example/marketplace/internal/models"
	"github.com/example/marketplace/internal/testutil"
)

func TestCartService_TotalsAlwaysRecomputed(t *testing.T) {
	t.Parallel()
	db := testutil.NewDB(t)
	accounts := NewAccountService(db, "secret", time.Hour)
	svc := NewCartService(db)
	ctx := context.Background()

	vendor := newAccount(t, accounts, "vendor@example.com", "vendor")
	buyer := newAccount(t, accounts, "buyer@example.com", "buyer")
	other := newAccount(t, accounts, "other@example.com", "buyer")

	rice := newFlatProduct(t, db, vendor, "Rice", 0.1)
	vendorID := vendor.ProfileID
	yam := models.Product{Name: "Yam", VendorID: &vendorID, HasVariants: true, IsAvailable: true, Category: models.CategoryAgriculture,
		Variants: []models.Variant{{Name: "tuber", Price: 2.5}, {Name: "bag", Price: 40}}}
	require.NoError(t, db.Create(&yam).Error)

	cart, err := svc.Create(ctx, buyer, CartInput{Items: []CartItemInput{
		{ProductID: rice.ID.String(), Quantity: 3},
		{ProductID: yam.ID.String(), Quantity: 2, SelectedVariants: []string{"bag"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, 80.3, cart.Total)

	_, err = svc.Get(ctx, other, cart.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	items := []CartItemInput{{ProductID: yam.ID.String(), Quantity: 4, SelectedVariants: []string{"tuber"}}}
	updated, err := svc.Update(ctx, buyer, cart.ID, CartUpdate{Items: &items})
	require.NoError(t, err)
	assert.Equal(t, 10.0, updated.Total)

	reloaded, err := svc.Get(ctx, buyer, cart.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Items, 1)
	assert.Equal(t, 10.0, reloaded.Total)

	carts, err := svc.List(ctx, buyer)
	require.NoError(t, err)
	assert.Len(t, carts, 1)
}

func TestCartService_Rejects(t *testing.T) {
	t.Parallel()
	db := testutil.NewDB(t)
	accounts := NewAccountService(db, "secret", time.Hour)
	svc := NewCartService(db)
	ctx := context.Background()

	vendor := newAccount(t, accounts, "vendor@example.com", "vendor")
	buyer := newAccount(t, accounts, "buyer@example.com", "buyer")
	rice := newFlatProduct(t, db, vendor, "Rice", 5)

	_, err := svc.Create(ctx, vendor, CartInput{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.Create(ctx, buyer, CartInput{Items: []CartItemInput{{ProductID: uuid.NewString(), Quantity: 1}}})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Create(ctx, buyer, CartInput{Items: []CartItemInput{{ProductID: rice.ID.String(), Quantity: 1, SelectedVariants: []string{"huge"}}}})
	assert.NoError(t, err, "flat-priced products ignore variant selections")

	require.NoError(t, db.Model(&rice).Update("is_available", false).Error)
	_, err = svc.Create(ctx, buyer, CartInput{Items: []CartItemInput{{ProductID: rice.ID.String(), Quantity: 1}}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
