package query

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/marketplace/internal/apperr"
	"github.com/example/marketplace/internal/models"
)

// OrderOptions are the order listing filters accepted by GET /orders.
type OrderOptions struct {
	SearchQuery string   `json:"searchQuery"`
	MinTotal    *float64 `json:"minTotal"`
	MaxTotal    *float64 `json:"maxTotal"`
	Status      string   `json:"status"`
	SortBy      string   `json:"sortBy"`
	Order       string   `json:"order"`
	Cursor      string   `json:"cursor"`
	Limit       Limit    `json:"limit"`
	DatePreset  string   `json:"datePreset"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
}

// OrderScope restricts a listing to one buyer or one vendor.
type OrderScope struct {
	BuyerID  *uuid.UUID
	VendorID *uuid.UUID
}

const ordersTable = "orders"

// BuildOrderQuery compiles opts into a listing plan. now anchors date presets.
func BuildOrderQuery(opts OrderOptions, scope OrderScope, now time.Time) (Plan, error) {
	limit, err := opts.Limit.resolve()
	if err != nil {
		return Plan{}, err
	}

	p := Plan{Table: ordersTable, Limit: limit}

	switch {
	case scope.BuyerID != nil:
		p.where(p.col("buyer_id")+" = ?", *scope.BuyerID)
	case scope.VendorID != nil:
		p.where(p.col("vendor_id")+" = ?", *scope.VendorID)
	default:
		return Plan{}, apperr.New(apperr.ErrValidation, "a buyer or vendor scope is required")
	}

	if opts.MinTotal != nil && opts.MaxTotal != nil && *opts.MinTotal > *opts.MaxTotal {
		return Plan{}, apperr.New(apperr.ErrValidation, "minTotal must not exceed maxTotal")
	}
	if opts.MinTotal != nil {
		p.where(p.col("total")+" >= ?", *opts.MinTotal)
	}
	if opts.MaxTotal != nil {
		p.where(p.col("total")+" <= ?", *opts.MaxTotal)
	}

	if opts.Status != "" {
		if !models.OrderStatus(opts.Status).Valid() {
			return Plan{}, apperr.New(apperr.ErrValidation, "unknown order status")
		}
		p.where(p.col("status")+" = ?", opts.Status)
	}

	if opts.DatePreset != "" {
		from, to, ok := DatePreset(opts.DatePreset).Range(now)
		if !ok {
			return Plan{}, apperr.New(apperr.ErrValidation, "unknown datePreset")
		}
		if opts.StartDate == "" || opts.EndDate == "" {
			p.where(p.col("created_at")+" BETWEEN ? AND ?", from, to)
		}
	}

	if opts.StartDate != "" || opts.EndDate != "" {
		if opts.StartDate == "" || opts.EndDate == "" {
			return Plan{}, apperr.New(apperr.ErrValidation, "startDate and endDate must be provided together")
		}
		from, err := parseDate(opts.StartDate, false)
		if err != nil {
			return Plan{}, err
		}
		to, err := parseDate(opts.EndDate, true)
		if err != nil {
			return Plan{}, err
		}
		if from.After(to) {
			return Plan{}, apperr.New(apperr.ErrValidation, "startDate must not be after endDate")
		}
		p.where(p.col("created_at")+" BETWEEN ? AND ?", from, to)
	}

	if opts.SearchQuery != "" {
		pattern := likePattern(opts.SearchQuery)
		p.where(
			"(LOWER(CAST("+p.col("id")+` AS TEXT)) LIKE ? ESCAPE '\'`+
				` OR EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = `+p.col("id")+` AND LOWER(oi.product_name) LIKE ? ESCAPE '\')`+
				` OR EXISTS (SELECT 1 FROM stores s WHERE s.id = `+p.col("store_id")+` AND LOWER(s.name) LIKE ? ESCAPE '\')`+
				` OR EXISTS (SELECT 1 FROM vendors v WHERE v.id = `+p.col("vendor_id")+` AND LOWER(v.business_name) LIKE ? ESCAPE '\'))`,
			pattern, pattern, pattern, pattern,
		)
	}

	desc := true
	switch opts.Order {
	case "", "desc":
	case "asc":
		desc = false
	default:
		return Plan{}, apperr.New(apperr.ErrValidation, "order must be asc or desc")
	}

	switch opts.SortBy {
	case "", "createdAt":
	case "total":
		p.Keys = append(p.Keys, SortKey{Column: p.col("total"), Desc: desc})
	default:
		return Plan{}, apperr.New(apperr.ErrValidation, "sortBy must be total or createdAt")
	}
	p.Keys = append(p.Keys,
		SortKey{Column: p.col("created_at"), Desc: desc},
		SortKey{Column: p.col("id"), Desc: desc},
	)

	if err := p.setCursor(opts.Cursor); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// OrderKey extracts the ordering values of an order row.
func OrderKey(o models.Order) (time.Time, uuid.UUID, map[string]float64) {
	return o.CreatedAt, o.ID, map[string]float64{ordersTable + ".total": o.Total}
}

// parseDate accepts RFC 3339 timestamps or plain dates; a plain end date
// covers the whole day.
func parseDate(raw string, end bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, apperr.New(apperr.ErrValidation, "dates must be RFC 3339 or YYYY-MM-DD")
	}
	if end {
		return endBefore(t.AddDate(0, 0, 1)), nil
	}
	return t, nil
}
