package query_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/marketplace/internal/apperr"
	"github.com/example/marketplace/internal/models"
	"github.com/example/marketplace/internal/query"
	"github.com/example/marketplace/internal/testutil"
)

func seedOrder(t *testing.T, db *gorm.DB, buyer uuid.UUID, createdAt time.Time, total float64, product string) models.Order {
	t.Helper()

	o := models.Order{
		BaseModel:     models.BaseModel{CreatedAt: createdAt},
		BuyerID:       buyer,
		Total:         total,
		Status:        models.OrderReceived,
		TransactionID: uuid.NewString(),
		PaymentStatus: models.PaymentUnpaid,
		Items:         []models.OrderItem{{ProductID: uuid.New(), ProductName: product, Quantity: 1, Price: total}},
	}
	require.NoError(t, db.Create(&o).Error)
	return o
}

func listOrders(t *testing.T, db *gorm.DB, opts query.OrderOptions, scope query.OrderScope, now time.Time) []models.Order {
	t.Helper()

	var out []models.Order
	for i := 0; i < 20; i++ {
		plan, err := query.BuildOrderQuery(opts, scope, now)
		require.NoError(t, err)
		res, err := query.Paginate(db, plan, query.OrderKey, "Items")
		require.NoError(t, err)
		out = append(out, res.Items...)
		if res.NextCursor == nil {
			return out
		}
		opts.Cursor = *res.NextCursor
	}
	t.Fatalf("pagination did not terminate")
	return nil
}

func TestOrders_ScopeAndDatePreset(t *testing.T) {
	t.Parallel()
	db := testutil.NewDB(t)

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	buyer, other := uuid.New(), uuid.New()

	inWeek := seedOrder(t, db, buyer, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), 10, "Rice")
	seedOrder(t, db, buyer, time.Date(2024, 3, 9, 23, 59, 59, 0, time.UTC), 20, "Beans")
	seedOrder(t, db, other, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), 30, "Rice")

	got := listOrders(t, db, query.OrderOptions{DatePreset: "thisWeek"}, query.OrderScope{BuyerID: &buyer}, now)
	require.Len(t, got, 1)
	assert.Equal(t, inWeek.ID, got[0].ID)
	require.Len(t, got[0].Items, 1)

	got = listOrders(t, db, query.OrderOptions{StartDate: "2024-03-09", EndDate: "2024-03-09", DatePreset: "thisWeek"},
		query.OrderScope{BuyerID: &buyer}, now)
	require.Len(t, got, 1)
	assert.Equal(t, 20.0, got[0].Total)
}

func TestOrders_TotalsSearchAndSort(t *testing.T) {
	t.Parallel()
	db := testutil.NewDB(t)

	buyer := uuid.New()
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	totals := []float64{50, 10, 70, 30, 30, 90, 20}
	for i, total := range totals {
		name := "Maize"
		if i%2 == 1 {
			name = "Yam_Flour"
		}
		seedOrder(t, db, buyer, base.Add(time.Duration(i)*time.Hour), total, name)
	}
	scope := query.OrderScope{BuyerID: &buyer}
	now := base.AddDate(0, 1, 0)

	got := listOrders(t, db, query.OrderOptions{SortBy: "total", Order: "asc", Limit: 2}, scope, now)
	require.Len(t, got, len(totals))
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Total, got[i].Total)
	}

	got = listOrders(t, db, query.OrderOptions{Limit: 3}, scope, now)
	require.Len(t, got, len(totals))
	for i := 1; i < len(got); i++ {
		assert.True(t, !got[i-1].CreatedAt.Before(got[i].CreatedAt))
	}

	minTotal, maxTotal := 20.0, 50.0
	got = listOrders(t, db, query.OrderOptions{MinTotal: &minTotal, MaxTotal: &maxTotal}, scope, now)
	assert.Len(t, got, 4)

	got = listOrders(t, db, query.OrderOptions{SearchQuery: "yam_"}, scope, now)
	assert.Len(t, got, 3)
}

func TestBuildOrderQuery_Rejects(t *testing.T) {
	t.Parallel()

	buyer := uuid.New()
	scope := query.OrderScope{BuyerID: &buyer}
	now := time.Now()

	_, err := query.BuildOrderQuery(query.OrderOptions{}, query.OrderScope{}, now)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	for _, opts := range []query.OrderOptions{
		{DatePreset: "eventually"},
		{StartDate: "2024-01-01"},
		{StartDate: "2024-02-01", EndDate: "2024-01-01"},
		{StartDate: "01/02/2024", EndDate: "2024-01-03"},
		{Status: "lost"},
		{SortBy: "buyer"},
	} {
		_, err := query.BuildOrderQuery(opts, scope, now)
		assert.ErrorIs(t, err, apperr.ErrValidation, "%+v", opts)
	}
}
