package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/marketplace/internal/apperr"
	"github.com/example/marketplace/internal/models"
	"github.com/example/marketplace/internal/query"
)

// MediaStore hosts product images.
type MediaStore interface {
	Upload(ctx context.Context, publicID, file string) (string, error)
	Destroy(ctx context.Context, publicID string) error
}

// ProductService manages the catalog.
type ProductService struct {
	db    *gorm.DB
	media MediaStore
	log   *zap.Logger
}

// NewProductService constructs ProductService.
func NewProductService(db *gorm.DB, media MediaStore, log *zap.Logger) *ProductService {
	return &ProductService{db: db, media: media, log: log}
}

// VariantInput is a variant as submitted by a vendor.
type VariantInput struct {
	Name  string  `json:"name" validate:"required"`
	Price float64 `json:"price" validate:"gte=0"`
	Image string  `json:"image"`
}

// ProductInput is the payload of POST /products.
type ProductInput struct {
	Name         string         `json:"name" validate:"required,max=200"`
	StoreID      string         `json:"store" validate:"omitempty,uuid"`
	Aliases      []string       `json:"aliases"`
	Preferences  []string       `json:"preferences"`
	DefaultImage string         `json:"defaultImage"`
	ShortDesc    string         `json:"shortDesc" validate:"max=500"`
	LongDesc     string         `json:"longDesc"`
	Unit         string         `json:"unit"`
	PricePerUnit *float64       `json:"pricePerUnit" validate:"omitempty,gte=0"`
	HasVariants  bool           `json:"hasVariants"`
	Variants     []VariantInput `json:"variants" validate:"dive"`
	IsAvailable  *bool          `json:"isAvailable"`
	Category     string         `json:"category" validate:"required"`
}

// ProductUpdate carries the mutable product fields.
type ProductUpdate struct {
	Name         *string         `json:"name" validate:"omitempty,min=1,max=200"`
	Aliases      *[]string       `json:"aliases"`
	Preferences  *[]string       `json:"preferences"`
	DefaultImage *string         `json:"defaultImage"`
	ShortDesc    *string         `json:"shortDesc" validate:"omitempty,max=500"`
	LongDesc     *string         `json:"longDesc"`
	Unit         *string         `json:"unit"`
	PricePerUnit *float64        `json:"pricePerUnit" validate:"omitempty,gte=0"`
	HasVariants  *bool           `json:"hasVariants"`
	Variants     *[]VariantInput `json:"variants" validate:"omitempty,dive"`
	IsAvailable  *bool           `json:"isAvailable"`
	Category     *string         `json:"category"`
}

func defaultImageID(productID uuid.UUID) string {
	return productID.String() + "_product-image"
}

func variantImageID(productID uuid.UUID, i int) string {
	return fmt.Sprintf("%s_variant-%d", productID, i)
}

func checkPricing(p *models.Product) error {
	if !p.Category.Valid() {
		return apperr.New(apperr.ErrValidation, "category must be one of Agriculture, Electronics, Pets")
	}
	if p.HasVariants {
		if len(p.Variants) == 0 {
			return apperr.New(apperr.ErrValidation, "a product with variants needs at least one variant")
		}
		return nil
	}
	if p.PricePerUnit == nil {
		return apperr.New(apperr.ErrValidation, "pricePerUnit is required for products without variants")
	}
	return nil
}

func (s *ProductService) uploadVariants(ctx context.Context, productID uuid.UUID, in []VariantInput) ([]models.Variant, error) {
	variants := make([]models.Variant, 0, len(in))
	for i, v := range in {
		imageURL, err := s.media.Upload(ctx, variantImageID(productID, i), v.Image)
		if err != nil {
			return nil, err
		}
		variants = append(variants, models.Variant{Name: strings.TrimSpace(v.Name), Price: v.Price, ImageURL: imageURL})
	}
	return variants, nil
}

// Create adds a product owned by the calling vendor.
func (s *ProductService) Create(ctx context.Context, caller Identity, in ProductInput) (*models.Product, error) {
	if !caller.IsVendor() {
		return nil, apperr.New(apperr.ErrForbidden, "only vendors can create products")
	}

	vendorID := caller.ProfileID
	product := &models.Product{
		BaseModel:    models.BaseModel{ID: uuid.New()},
		Name:         strings.TrimSpace(in.Name),
		VendorID:     &vendorID,
		Aliases:      in.Aliases,
		Preferences:  in.Preferences,
		ShortDesc:    in.ShortDesc,
		LongDesc:     in.LongDesc,
		Unit:         in.Unit,
		PricePerUnit: in.PricePerUnit,
		HasVariants:  in.HasVariants,
		IsAvailable:  true,
		Category:     models.Category(in.Category),
	}
	if in.IsAvailable != nil {
		product.IsAvailable = *in.IsAvailable
	}
	if in.StoreID != "" {
		storeID, err := uuid.Parse(in.StoreID)
		if err != nil {
			return nil, apperr.New(apperr.ErrValidation, "store must be a valid id")
		}
		product.StoreID = &storeID
	}
	if in.HasVariants {
		for _, v := range in.Variants {
			product.Variants = append(product.Variants, models.Variant{Name: v.Name, Price: v.Price})
		}
	}
	if err := checkPricing(product); err != nil {
		return nil, err
	}

	imageURL, err := s.media.Upload(ctx, defaultImageID(product.ID), in.DefaultImage)
	if err != nil {
		return nil, err
	}
	product.DefaultImageURL = imageURL

	if product.HasVariants {
		if product.Variants, err = s.uploadVariants(ctx, product.ID, in.Variants); err != nil {
			return nil, err
		}
	}

	if err := s.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, err
	}

	s.log.Info("product created", zap.String("product_id", product.ID.String()), zap.String("vendor_id", vendorID.String()))
	return product, nil
}

// Get loads a product.
func (s *ProductService) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.ErrNotFound, "product not found")
		}
		return nil, err
	}
	return &product, nil
}

// List returns one page of the catalog.
func (s *ProductService) List(ctx context.Context, opts query.ProductOptions) (query.Page[models.Product], error) {
	plan, err := query.BuildProductQuery(opts)
	if err != nil {
		return query.Page[models.Product]{}, err
	}
	return query.Paginate(s.db.WithContext(ctx), plan, query.ProductKey)
}

func (s *ProductService) owned(ctx context.Context, caller Identity, id uuid.UUID) (*models.Product, error) {
	product, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsVendor() || product.VendorID == nil || *product.VendorID != caller.ProfileID {
		return nil, apperr.New(apperr.ErrForbidden, "you do not own this product")
	}
	return product, nil
}

// Update applies in to a product owned by the caller.
func (s *ProductService) Update(ctx context.Context, caller Identity, id uuid.UUID, in ProductUpdate) (*models.Product, error) {
	product, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		product.Name = strings.TrimSpace(*in.Name)
	}
	if in.Aliases != nil {
		product.Aliases = *in.Aliases
	}
	if in.Preferences != nil {
		product.Preferences = *in.Preferences
	}
	if in.ShortDesc != nil {
		product.ShortDesc = *in.ShortDesc
	}
	if in.LongDesc != nil {
		product.LongDesc = *in.LongDesc
	}
	if in.Unit != nil {
		product.Unit = *in.Unit
	}
	if in.PricePerUnit != nil {
		product.PricePerUnit = in.PricePerUnit
	}
	if in.HasVariants != nil {
		product.HasVariants = *in.HasVariants
	}
	if in.IsAvailable != nil {
		product.IsAvailable = *in.IsAvailable
	}
	if in.Category != nil {
		product.Category = models.Category(*in.Category)
	}
	if in.Variants != nil {
		if product.Variants, err = s.uploadVariants(ctx, product.ID, *in.Variants); err != nil {
			return nil, err
		}
	}
	if !product.HasVariants {
		product.Variants = nil
	}
	if err := checkPricing(product); err != nil {
		return nil, err
	}
	if in.DefaultImage != nil {
		if product.DefaultImageURL, err = s.media.Upload(ctx, defaultImageID(product.ID), *in.DefaultImage); err != nil {
			return nil, err
		}
	}

	if err := s.db.WithContext(ctx).Save(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// Delete removes a product owned by the caller together with its images.
func (s *ProductService) Delete(ctx context.Context, caller Identity, id uuid.UUID) error {
	product, err := s.owned(ctx, caller, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&models.Product{}, "id = ?", product.ID).Error; err != nil {
		return err
	}

	ids := []string{defaultImageID(product.ID)}
	for i := range product.Variants {
		ids = append(ids, variantImageID(product.ID, i))
	}
	for _, publicID := range ids {
		if err := s.media.Destroy(ctx, publicID); err != nil {
			s.log.Warn("failed to remove product image", zap.String("public_id", publicID), zap.Error(err))
		}
	}
	return nil
}
