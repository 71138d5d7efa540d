package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/marketplace/internal/apperr"
	"github.com/example/marketplace/internal/models"
	"github.com/example/marketplace/internal/query"
)

// Order state errors.
var (
	// ErrOrderCancelled is returned for any change to a cancelled order.
	ErrOrderCancelled = apperr.New(apperr.ErrDomainState, "order has been cancelled and can no longer be updated")

	ErrOrderDelivered = apperr.New(apperr.ErrDomainState, "a delivered order cannot be cancelled")
)

// OrderService manages the order lifecycle.
type OrderService struct {
	db         *gorm.DB
	serviceFee decimal.Decimal
	log        *zap.Logger
	now        func() time.Time
}

// NewOrderService constructs OrderService.
func NewOrderService(db *gorm.DB, serviceFee float64, log *zap.Logger) *OrderService {
	return &OrderService{
		db:         db,
		serviceFee: decimal.NewFromFloat(serviceFee),
		log:        log,
		now:        time.Now,
	}
}

// CreateOrderInput is the payload of POST /orders. Exactly one of CartID and
// ProductID must be set.
type CreateOrderInput struct {
	CartID              string   `json:"cartId" validate:"omitempty,uuid"`
	ProductID           string   `json:"productId" validate:"omitempty,uuid"`
	Quantity            int      `json:"quantity" validate:"omitempty,min=1,max=1000"`
	SelectedVariants    []string `json:"selectedVariants"`
	SelectedPreferences []string `json:"selectedPreferences"`
	Notes               string   `json:"notes" validate:"max=1000"`
}

// OrderUpdate carries the mutable order fields.
type OrderUpdate struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes" validate:"omitempty,max=1000"`
}

func orderLine(i models.OrderItem) (float64, int) { return i.Price, i.Quantity }

// Create places an order for the calling buyer from a cart or a single product.
func (s *OrderService) Create(ctx context.Context, caller Identity, in CreateOrderInput) (*models.Order, error) {
	if !caller.IsBuyer() {
		return nil, apperr.New(apperr.ErrForbidden, "only buyers can place orders")
	}
	if (in.CartID == "") == (in.ProductID == "") {
		return nil, apperr.New(apperr.ErrValidation, "provide either cartId or productId")
	}

	order := &models.Order{
		BuyerID:       caller.ProfileID,
		Status:        models.OrderReceived,
		TransactionID: uuid.NewString(),
		PaymentStatus: models.PaymentUnpaid,
		Notes:         in.Notes,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lines []CartItemInput
		if in.CartID != "" {
			cartID := uuid.MustParse(in.CartID)
			var cart models.Cart
			if err := tx.Preload("Items").First(&cart, "id = ? AND owner_id = ?", cartID, caller.ProfileID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperr.New(apperr.ErrNotFound, "cart not found")
				}
				return err
			}
			if len(cart.Items) == 0 {
				return apperr.New(apperr.ErrValidation, "cart is empty")
			}
			order.CartID = &cart.ID
			order.StoreID = cart.StoreID
			order.VendorID = cart.VendorID
			for _, it := range cart.Items {
				lines = append(lines, CartItemInput{
					ProductID:           it.ProductID.String(),
					Quantity:            it.Quantity,
					SelectedVariants:    it.SelectedVariants,
					SelectedPreferences: it.SelectedPreferences,
				})
			}
		} else {
			productID := uuid.MustParse(in.ProductID)
			order.ProductID = &productID
			qty := in.Quantity
			if qty == 0 {
				qty = 1
			}
			lines = []CartItemInput{{
				ProductID:           in.ProductID,
				Quantity:            qty,
				SelectedVariants:    in.SelectedVariants,
				SelectedPreferences: in.SelectedPreferences,
			}}
		}

		priced, err := priceItems(tx, lines)
		if err != nil {
			return err
		}

		for _, it := range priced {
			var product models.Product
			if err := tx.Select("id", "name", "vendor_id", "store_id").First(&product, "id = ?", it.ProductID).Error; err != nil {
				return err
			}
			if order.VendorID == nil {
				order.VendorID = product.VendorID
			}
			if order.StoreID == nil {
				order.StoreID = product.StoreID
			}
			order.Items = append(order.Items, models.OrderItem{
				ProductID:           it.ProductID,
				ProductName:         product.Name,
				Quantity:            it.Quantity,
				Price:               it.Price,
				SelectedVariants:    it.SelectedVariants,
				SelectedPreferences: it.SelectedPreferences,
			})
		}

		subTotal := SumLines(order.Items, orderLine)
		order.SubTotal = subTotal.InexactFloat64()
		order.ServiceFee = s.serviceFee.InexactFloat64()
		order.Total = subTotal.Add(s.serviceFee).InexactFloat64()

		return tx.Create(order).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("buyer_id", order.BuyerID.String()),
		zap.Float64("total", order.Total),
	)
	return order, nil
}

// Scope restricts listings and lookups to the caller's own orders.
func Scope(caller Identity) query.OrderScope {
	id := caller.ProfileID
	if caller.IsVendor() {
		return query.OrderScope{VendorID: &id}
	}
	return query.OrderScope{BuyerID: &id}
}

// List returns one page of the caller's orders.
func (s *OrderService) List(ctx context.Context, caller Identity, opts query.OrderOptions) (query.Page[models.Order], error) {
	plan, err := query.BuildOrderQuery(opts, Scope(caller), s.now())
	if err != nil {
		return query.Page[models.Order]{}, err
	}
	return query.Paginate(s.db.WithContext(ctx), plan, query.OrderKey, "Items")
}

// Get loads one of the caller's orders.
func (s *OrderService) Get(ctx context.Context, caller Identity, id uuid.UUID) (*models.Order, error) {
	scope := Scope(caller)
	q := s.db.WithContext(ctx).Preload("Items").Where("id = ?", id)
	if scope.VendorID != nil {
		q = q.Where("vendor_id = ?", *scope.VendorID)
	} else {
		q = q.Where("buyer_id = ?", *scope.BuyerID)
	}

	var order models.Order
	if err := q.First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.ErrNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

// Update changes the status or notes of an order. Cancelled orders are frozen,
// delivered orders cannot be cancelled and buyers may only cancel. Both state
// guards are part of the UPDATE so a concurrent cancel is never overwritten.
func (s *OrderService) Update(ctx context.Context, caller Identity, id uuid.UUID, in OrderUpdate) (*models.Order, error) {
	order, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderCancelled {
		return nil, ErrOrderCancelled
	}

	changes := map[string]any{}
	q := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status <> ?", order.ID, models.OrderCancelled)

	if in.Status != nil {
		next := models.OrderStatus(*in.Status)
		if !next.Valid() {
			return nil, apperr.New(apperr.ErrValidation, "unknown order status")
		}
		if caller.IsBuyer() && next != models.OrderCancelled {
			return nil, apperr.New(apperr.ErrForbidden, "buyers can only cancel orders")
		}
		if next == models.OrderCancelled {
			if order.Status == models.OrderDelivered {
				return nil, ErrOrderDelivered
			}
			q = q.Where("status <> ?", models.OrderDelivered)
		}
		changes["status"] = next
	}
	if in.Notes != nil {
		changes["notes"] = *in.Notes
	}
	if len(changes) == 0 {
		return order, nil
	}

	res := q.Updates(changes)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		current, err := s.Get(ctx, caller, id)
		if err != nil {
			return nil, err
		}
		if current.Status == models.OrderDelivered {
			return nil, ErrOrderDelivered
		}
		return nil, ErrOrderCancelled
	}

	updated, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("order updated", zap.String("order_id", updated.ID.String()), zap.String("status", string(updated.Status)))
	return updated, nil
}

// AttachPayment records the gateway reference of a pending payment.
func (s *OrderService) AttachPayment(ctx context.Context, caller Identity, id uuid.UUID, reference string) (*models.Order, error) {
	order, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderCancelled {
		return nil, ErrOrderCancelled
	}
	if order.PaymentStatus == models.PaymentPaid {
		return nil, apperr.New(apperr.ErrDomainState, "order is already paid")
	}

	order.PaymentReference = &reference
	if err := s.db.WithContext(ctx).Model(order).Update("payment_reference", reference).Error; err != nil {
		return nil, err
	}
	return order, nil
}

// SettlePayment marks the order carrying reference as paid or failed. A paid
// order stays paid. It reports false when no order carries the reference.
func (s *OrderService) SettlePayment(ctx context.Context, reference string, status models.PaymentStatus) (bool, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Select("id", "status", "payment_status").
		First(&order, "payment_reference = ?", reference).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if order.PaymentStatus == models.PaymentPaid {
		return true, nil
	}
	if status == models.PaymentPaid && order.Status == models.OrderCancelled {
		s.log.Warn("payment received for cancelled order",
			zap.String("order_id", order.ID.String()),
			zap.String("reference", reference),
		)
	}

	err = s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", order.ID, models.PaymentPaid).
		Update("payment_status", status).Error
	return true, err
}
