package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Category is the closed set of product categories.
type Category string

const (
	CategoryAgriculture Category = "Agriculture"
	CategoryElectronics Category = "Electronics"
	CategoryPets        Category = "Pets"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryAgriculture, CategoryElectronics, CategoryPets:
		return true
	}
	return false
}

// Variant is a priced option of a product.
type Variant struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	ImageURL string  `json:"imageURL,omitempty"`
}

type Product struct {
	BaseModel
	Name               string     `gorm:"not null" json:"name"`
	VendorID           *uuid.UUID `gorm:"type:uuid;index" json:"vendor,omitempty"`
	StoreID            *uuid.UUID `gorm:"type:uuid;index" json:"store,omitempty"`
	Aliases            []string   `gorm:"serializer:json;type:text" json:"aliases"`
	Preferences        []string   `gorm:"serializer:json;type:text" json:"preferences"`
	DefaultImageURL    string     `json:"defaultImageURL"`
	ShortDesc          string     `json:"shortDesc"`
	LongDesc           string     `json:"longDesc,omitempty"`
	Unit               string     `json:"unit,omitempty"`
	Rating             float64    `gorm:"index" json:"rating"`
	RatingsCount       int        `json:"ratingsCount"`
	PricePerUnit       *float64   `json:"pricePerUnit,omitempty"`
	HasVariants        bool       `json:"hasVariants"`
	Variants           []Variant  `gorm:"serializer:json;type:text" json:"variants,omitempty"`
	MinPriceOfVariants *float64   `json:"minPriceOfVariants,omitempty"`
	MaxPriceOfVariants *float64   `json:"maxPriceOfVariants,omitempty"`
	DisplayPrice       float64    `gorm:"index" json:"displayPrice"`
	IsAvailable        bool       `json:"isAvailable"`
	Category           Category   `gorm:"index" json:"category"`
}

// BeforeSave keeps the derived price columns in step with the variants.
func (p *Product) BeforeSave(tx *gorm.DB) error {
	p.DerivePrices()
	return nil
}

// DerivePrices recomputes the variant bounds and the display price.
func (p *Product) DerivePrices() {
	if !p.HasVariants || len(p.Variants) == 0 {
		p.MinPriceOfVariants = nil
		p.MaxPriceOfVariants = nil
		if p.PricePerUnit != nil {
			p.DisplayPrice = *p.PricePerUnit
		}
		return
	}

	lo, hi := p.Variants[0].Price, p.Variants[0].Price
	for _, v := range p.Variants[1:] {
		if v.Price < lo {
			lo = v.Price
		}
		if v.Price > hi {
			hi = v.Price
		}
	}
	p.MinPriceOfVariants = &lo
	p.MaxPriceOfVariants = &hi
	p.DisplayPrice = lo
}

// UnitPrice returns the price of one unit, honouring a selected variant.
func (p *Product) UnitPrice(variant string) (float64, bool) {
	if p.HasVariants {
		for _, v := range p.Variants {
			if v.Name == variant {
				return v.Price, true
			}
		}
		if variant == "" && p.MinPriceOfVariants != nil {
			return *p.MinPriceOfVariants, true
		}
		return 0, false
	}
	if p.PricePerUnit == nil {
		return 0, false
	}
	return *p.PricePerUnit, true
}
