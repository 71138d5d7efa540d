package query

import (
	"time"

	"github.com/google/uuid"

	"github.com/example/marketplace/internal/apperr"
	"github.com/example/marketplace/internal/models"
)

// ProductOptions are the catalog listing filters accepted by GET /products.
type ProductOptions struct {
	Category           string   `json:"category"`
	VendorID           string   `json:"vendorId"`
	StoreID            string   `json:"storeId"`
	SearchQuery        string   `json:"searchQuery"`
	MinPrice           *float64 `json:"minPrice"`
	MaxPrice           *float64 `json:"maxPrice"`
	SortBy             string   `json:"sortBy"`
	Order              string   `json:"order"`
	ExcludeUnavailable bool     `json:"excludeUnavailable"`
	Cursor             string   `json:"cursor"`
	Limit              Limit    `json:"limit"`
	IsRefresh          bool     `json:"isRefresh"`
}

const productsTable = "products"

// BuildProductQuery compiles opts into a listing plan.
func BuildProductQuery(opts ProductOptions) (Plan, error) {
	limit, err := opts.Limit.resolve()
	if err != nil {
		return Plan{}, err
	}

	p := Plan{Table: productsTable, Limit: limit, Random: opts.IsRefresh}

	if opts.Category != "" {
		if !models.Category(opts.Category).Valid() {
			return Plan{}, apperr.New(apperr.ErrValidation, "unknown category")
		}
		p.where(p.col("category")+" = ?", opts.Category)
	}

	if opts.VendorID != "" {
		id, err := parseID(opts.VendorID, "vendorId")
		if err != nil {
			return Plan{}, err
		}
		p.where(p.col("vendor_id")+" = ?", id)
	}

	if opts.StoreID != "" {
		id, err := parseID(opts.StoreID, "storeId")
		if err != nil {
			return Plan{}, err
		}
		p.where(p.col("store_id")+" = ?", id)
	}

	if opts.MinPrice != nil && *opts.MinPrice < 0 || opts.MaxPrice != nil && *opts.MaxPrice < 0 {
		return Plan{}, apperr.New(apperr.ErrValidation, "price bounds must not be negative")
	}
	if opts.MinPrice != nil && opts.MaxPrice != nil && *opts.MinPrice > *opts.MaxPrice {
		return Plan{}, apperr.New(apperr.ErrValidation, "minPrice must not exceed maxPrice")
	}
	if opts.MinPrice != nil {
		p.where("("+p.col("price_per_unit")+" >= ? OR "+p.col("max_price_of_variants")+" >= ?)", *opts.MinPrice, *opts.MinPrice)
	}
	if opts.MaxPrice != nil {
		p.where("("+p.col("price_per_unit")+" <= ? OR "+p.col("min_price_of_variants")+" <= ?)", *opts.MaxPrice, *opts.MaxPrice)
	}

	if opts.SearchQuery != "" {
		pattern := likePattern(opts.SearchQuery)
		p.where(
			"(LOWER("+p.col("name")+`) LIKE ? ESCAPE '\' OR LOWER(`+p.col("aliases")+`) LIKE ? ESCAPE '\' OR LOWER(`+p.col("short_desc")+`) LIKE ? ESCAPE '\')`,
			pattern, pattern, pattern,
		)
	}

	if opts.ExcludeUnavailable {
		p.where(p.col("is_available")+" = ?", true)
	}

	var desc bool
	switch opts.Order {
	case "", "asc":
	case "desc":
		desc = true
	default:
		return Plan{}, apperr.New(apperr.ErrValidation, "order must be asc or desc")
	}

	switch opts.SortBy {
	case "", "rating":
	case "price":
		p.Keys = append(p.Keys, SortKey{Column: p.col("display_price"), Desc: desc})
	default:
		return Plan{}, apperr.New(apperr.ErrValidation, "sortBy must be price or rating")
	}
	p.Keys = append(p.Keys,
		SortKey{Column: p.col("rating"), Desc: desc},
		SortKey{Column: p.col("created_at"), Desc: true},
		SortKey{Column: p.col("id"), Desc: true},
	)

	if err := p.setCursor(opts.Cursor); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// ProductKey extracts the ordering values of a product row.
func ProductKey(p models.Product) (time.Time, uuid.UUID, map[string]float64) {
	return p.CreatedAt, p.ID, map[string]float64{
		productsTable + ".display_price": p.DisplayPrice,
		productsTable + ".rating":        p.Rating,
	}
}
