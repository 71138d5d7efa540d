package models

import (
	"github.com/google/uuid"
)

// Role selects which profile an account owns.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleVendor Role = "vendor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleVendor
}

// Account is the login identity shared by buyers and vendors.
type Account struct {
	BaseModel
	Name  string `json:"name"`
	Email string `gorm:"uniqueIndex;not null" json:"email"`
	Role  Role   `gorm:"not null" json:"role"`
}

// UserProfile is the role-specific half of an account: *Buyer or *Vendor.
type UserProfile interface {
	ProfileID() uuid.UUID
	OwnerAccountID() uuid.UUID
}

type Buyer struct {
	BaseModel
	AccountID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"account"`
}

func (b *Buyer) ProfileID() uuid.UUID      { return b.ID }
func (b *Buyer) OwnerAccountID() uuid.UUID { return b.AccountID }

type Vendor struct {
	BaseModel
	AccountID    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"account"`
	BusinessName string    `json:"businessName"`
	IsOnline     bool      `json:"isOnline"`
}

func (v *Vendor) ProfileID() uuid.UUID      { return v.ID }
func (v *Vendor) OwnerAccountID() uuid.UUID { return v.AccountID }

// Store is a storefront products and carts may be attached to.
type Store struct {
	BaseModel
	Name    string `json:"name"`
	Website string `json:"website"`
}
