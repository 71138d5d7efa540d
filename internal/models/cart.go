package models

import (
	"github.com/google/uuid"
)

type Cart struct {
	BaseModel
	OwnerID  uuid.UUID  `gorm:"type:uuid;index;not null" json:"owner"`
	StoreID  *uuid.UUID `gorm:"type:uuid" json:"store,omitempty"`
	VendorID *uuid.UUID `gorm:"type:uuid" json:"vendor,omitempty"`
	Items    []CartItem `gorm:"constraint:OnDelete:CASCADE" json:"items"`
	Total    float64    `json:"total"`
}

type CartItem struct {
	BaseModel
	CartID              uuid.UUID `gorm:"type:uuid;index;not null" json:"-"`
	ProductID           uuid.UUID `gorm:"type:uuid;not null" json:"product"`
	Quantity            int       `json:"quantity"`
	Price               float64   `json:"price"`
	SelectedVariants    []string  `gorm:"serializer:json;type:text" json:"selectedVariants"`
	SelectedPreferences []string  `gorm:"serializer:json;type:text" json:"selectedPreferences"`
}
