package services

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/marketplace/internal/models"
)

type fakeMedia struct {
	mu        sync.Mutex
	uploaded  map[string]string
	destroyed []string
	err       error
}

var _ MediaStore = (*fakeMedia)(nil)

func (f *fakeMedia) Upload(_ context.Context, publicID, file string) (string, error) {
	if file == "" {
		return "", nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.uploaded == nil {
		f.uploaded = map[string]string{}
	}
	f.uploaded[publicID] = file
	return "https://cdn.test/" + publicID, nil
}

func (f *fakeMedia) Destroy(_ context.Context, publicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, publicID)
	return nil
}

func newAccount(t *testing.T, svc *AccountService, email, role string) Identity {
	t.Helper()

	var in CreateAccountInput
	in.BaseProfile.Name = "Test " + role
	in.BaseProfile.Email = email
	in.BaseProfile.Role = role
	in.ProfileByRole.BusinessName = "Shop of " + email

	created, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	identity, err := svc.IdentityOf(context.Background(), created.Account)
	require.NoError(t, err)
	return identity
}

func price(v float64) *float64 { return &v }

func newFlatProduct(t *testing.T, db *gorm.DB, vendor Identity, name string, unit float64) models.Product {
	t.Helper()

	vendorID := vendor.ProfileID
	p := models.Product{
		Name:         name,
		VendorID:     &vendorID,
		PricePerUnit: price(unit),
		IsAvailable:  true,
		Category:     models.CategoryAgriculture,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}
