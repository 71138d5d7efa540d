package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/marketplace/internal/apperr"
	"github.com/example/marketplace/internal/models"
)

// CartService manages buyers' carts.
type CartService struct {
	db *gorm.DB
}

// NewCartService constructs CartService.
func NewCartService(db *gorm.DB) *CartService {
	return &CartService{db: db}
}

// CartItemInput is one line of a cart as submitted by a buyer.
type CartItemInput struct {
	ProductID           string   `json:"product" validate:"required,uuid"`
	Quantity            int      `json:"quantity" validate:"required,min=1,max=1000"`
	SelectedVariants    []string `json:"selectedVariants"`
	SelectedPreferences []string `json:"selectedPreferences"`
}

// CartInput is the payload of POST /carts.
type CartInput struct {
	StoreID  string          `json:"store" validate:"omitempty,uuid"`
	VendorID string          `json:"vendor" validate:"omitempty,uuid"`
	Items    []CartItemInput `json:"items" validate:"dive"`
}

// CartUpdate carries the mutable cart fields.
type CartUpdate struct {
	StoreID  *string          `json:"store" validate:"omitempty,uuid"`
	VendorID *string          `json:"vendor" validate:"omitempty,uuid"`
	Items    *[]CartItemInput `json:"items" validate:"omitempty,dive"`
}

func optionalID(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

// SumLines totals price × quantity with exact decimal arithmetic.
func SumLines[T any](lines []T, line func(T) (float64, int)) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		price, qty := line(l)
		total = total.Add(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(qty))))
	}
	return total
}

func cartLine(i models.CartItem) (float64, int) { return i.Price, i.Quantity }

// priceItems snapshots unit prices for in from the catalog.
func priceItems(tx *gorm.DB, in []CartItemInput) ([]models.CartItem, error) {
	items := make([]models.CartItem, 0, len(in))
	for _, it := range in {
		productID, err := uuid.Parse(it.ProductID)
		if err != nil {
			return nil, apperr.New(apperr.ErrValidation, "product must be a valid id")
		}
		var product models.Product
		if err := tx.First(&product, "id = ?", productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.New(apperr.ErrNotFound, "product "+it.ProductID+" not found")
			}
			return nil, err
		}
		if !product.IsAvailable {
			return nil, apperr.New(apperr.ErrValidation, product.Name+" is not available")
		}

		variant := ""
		if len(it.SelectedVariants) > 0 {
			variant = it.SelectedVariants[0]
		}
		price, ok := product.UnitPrice(variant)
		if !ok {
			return nil, apperr.New(apperr.ErrValidation, "unknown variant for "+product.Name)
		}

		items = append(items, models.CartItem{
			ProductID:           productID,
			Quantity:            it.Quantity,
			Price:               price,
			SelectedVariants:    it.SelectedVariants,
			SelectedPreferences: it.SelectedPreferences,
		})
	}
	return items, nil
}

// Create opens a cart for the calling buyer.
func (s *CartService) Create(ctx context.Context, caller Identity, in CartInput) (*models.Cart, error) {
	if !caller.IsBuyer() {
		return nil, apperr.New(apperr.ErrForbidden, "only buyers can create carts")
	}

	cart := &models.Cart{
		OwnerID:  caller.ProfileID,
		StoreID:  optionalID(in.StoreID),
		VendorID: optionalID(in.VendorID),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items, err := priceItems(tx, in.Items)
		if err != nil {
			return err
		}
		cart.Items = items
		cart.Total = SumLines(items, cartLine).InexactFloat64()
		return tx.Create(cart).Error
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// List returns the caller's carts, newest first.
func (s *CartService) List(ctx context.Context, caller Identity) ([]models.Cart, error) {
	var carts []models.Cart
	err := s.db.WithContext(ctx).Preload("Items").
		Where("owner_id = ?", caller.ProfileID).
		Order("created_at DESC").Order("id DESC").
		Find(&carts).Error
	return carts, err
}

// Get loads one of the caller's carts.
func (s *CartService) Get(ctx context.Context, caller Identity, id uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.WithContext(ctx).Preload("Items").
		First(&cart, "id = ? AND owner_id = ?", id, caller.ProfileID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.ErrNotFound, "cart not found")
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// Update replaces the fields present in in and recomputes the total.
func (s *CartService) Update(ctx context.Context, caller Identity, id uuid.UUID, in CartUpdate) (*models.Cart, error) {
	cart, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if in.StoreID != nil {
		cart.StoreID = optionalID(*in.StoreID)
	}
	if in.VendorID != nil {
		cart.VendorID = optionalID(*in.VendorID)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.Items != nil {
			items, err := priceItems(tx, *in.Items)
			if err != nil {
				return err
			}
			if err := tx.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
				return err
			}
			for i := range items {
				items[i].CartID = cart.ID
			}
			if len(items) > 0 {
				if err := tx.Create(&items).Error; err != nil {
					return err
				}
			}
			cart.Items = items
		}
		cart.Total = SumLines(cart.Items, cartLine).InexactFloat64()
		return tx.Omit("Items").Save(cart).Error
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}
