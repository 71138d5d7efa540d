package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentTransaction records a payment initialized with the gateway and its settlement.
type PaymentTransaction struct {
	BaseModel
	Reference        string        `gorm:"uniqueIndex;not null" json:"reference"`
	AccountID        uuid.UUID     `gorm:"type:uuid;index" json:"account"`
	OrderID          *uuid.UUID    `gorm:"type:uuid;index" json:"order,omitempty"`
	Email            string        `json:"email"`
	AmountMinor      int64         `json:"amountMinor"`
	Currency         string        `json:"currency"`
	AuthorizationURL string        `json:"authorizationUrl"`
	Status           PaymentStatus `json:"status"`
	GatewayStatus    string        `json:"gatewayStatus,omitempty"`
	PaidAt           *time.Time    `json:"paidAt,omitempty"`
	LastEvent        string        `json:"lastEvent,omitempty"`
	LastEventPayload []byte        `json:"-"`
}
