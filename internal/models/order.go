package models

import (
	"github.com/google/uuid"
)

// OrderStatus is the delivery lifecycle of an order.
type OrderStatus string

const (
	OrderPending            OrderStatus = "pending"
	OrderReceived           OrderStatus = "received"
	OrderProcessing         OrderStatus = "processing"
	OrderReadyForPickup     OrderStatus = "ready_for_pickup"
	OrderLookingForNewRider OrderStatus = "looking_for_a_new_rider"
	OrderRiderAccepted      OrderStatus = "rider_accepted"
	OrderRiderAtVendor      OrderStatus = "rider_at_vendor"
	OrderOutForDelivery     OrderStatus = "out_for_delivery"
	OrderRiderArrived       OrderStatus = "rider_arrived"
	OrderDelivered          OrderStatus = "delivered"
	OrderCancelled          OrderStatus = "cancelled"
)

var orderStatuses = map[OrderStatus]struct{}{
	OrderPending: {}, OrderReceived: {}, OrderProcessing: {}, OrderReadyForPickup: {},
	OrderLookingForNewRider: {}, OrderRiderAccepted: {}, OrderRiderAtVendor: {},
	OrderOutForDelivery: {}, OrderRiderArrived: {}, OrderDelivered: {}, OrderCancelled: {},
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	_, ok := orderStatuses[s]
	return ok
}

// PaymentStatus tracks settlement of an order.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
	PaymentFailed PaymentStatus = "failed"
)

type Order struct {
	BaseModel
	BuyerID          uuid.UUID     `gorm:"type:uuid;index;not null" json:"buyer"`
	VendorID         *uuid.UUID    `gorm:"type:uuid;index" json:"vendor,omitempty"`
	StoreID          *uuid.UUID    `gorm:"type:uuid" json:"store,omitempty"`
	CartID           *uuid.UUID    `gorm:"type:uuid" json:"cart,omitempty"`
	ProductID        *uuid.UUID    `gorm:"type:uuid" json:"product,omitempty"`
	Items            []OrderItem   `gorm:"constraint:OnDelete:CASCADE" json:"items"`
	ServiceFee       float64       `json:"serviceFee"`
	SubTotal         float64       `json:"subTotal"`
	Total            float64       `gorm:"index" json:"total"`
	Status           OrderStatus   `gorm:"index;not null" json:"status"`
	TransactionID    string        `gorm:"uniqueIndex" json:"transactionId"`
	PaymentReference *string       `gorm:"uniqueIndex" json:"paymentReference,omitempty"`
	PaymentStatus    PaymentStatus `json:"paymentStatus"`
	Notes            string        `json:"notes,omitempty"`
}

type OrderItem struct {
	BaseModel
	OrderID             uuid.UUID `gorm:"type:uuid;index;not null" json:"-"`
	ProductID           uuid.UUID `gorm:"type:uuid;not null" json:"product"`
	ProductName         string    `json:"productName"`
	Quantity            int       `json:"quantity"`
	Price               float64   `json:"price"`
	SelectedVariants    []string  `gorm:"serializer:json;type:text" json:"selectedVariants"`
	SelectedPreferences []string  `gorm:"serializer:json;type:text" json:"selectedPreferences"`
}
