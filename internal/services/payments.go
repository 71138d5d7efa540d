package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/marketplace/internal/apperr"
	"github.com/example/marketplace/internal/models"
)

// PaymentGateway opens hosted-checkout transactions.
type PaymentGateway interface {
	InitializeTransaction(ctx context.Context, in InitializeRequest) (*InitializeResult, error)
}

// PaymentService ties gateway transactions to orders.
type PaymentService struct {
	db      *gorm.DB
	gateway PaymentGateway
	orders  *OrderService
	liveURL string
	log     *zap.Logger
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(db *gorm.DB, gateway PaymentGateway, orders *OrderService, liveURL string, log *zap.Logger) *PaymentService {
	return &PaymentService{db: db, gateway: gateway, orders: orders, liveURL: strings.TrimRight(liveURL, "/"), log: log}
}

// PaymentLinkInput is the payload of POST /third-party/paystack/payment-link.
type PaymentLinkInput struct {
	Amount      float64 `json:"amount" validate:"omitempty,gt=0"`
	Email       string  `json:"email" validate:"omitempty,email"`
	OrderID     string  `json:"orderId" validate:"omitempty,uuid"`
	CallbackURL string  `json:"callbackUrl" validate:"omitempty,url"`
}

// CreatePaymentLink opens a transaction and returns the gateway reply verbatim.
func (s *PaymentService) CreatePaymentLink(ctx context.Context, caller Identity, in PaymentLinkInput) (json.RawMessage, error) {
	amount := decimal.NewFromFloat(in.Amount)

	var order *models.Order
	if in.OrderID != "" {
		var err error
		if order, err = s.orders.Get(ctx, caller, uuid.MustParse(in.OrderID)); err != nil {
			return nil, err
		}
		if order.Status == models.OrderCancelled {
			return nil, ErrOrderCancelled
		}
		if order.PaymentStatus == models.PaymentPaid {
			return nil, apperr.New(apperr.ErrDomainState, "order is already paid")
		}
		if in.Amount == 0 {
			amount = decimal.NewFromFloat(order.Total)
		}
	}
	if !amount.IsPositive() {
		return nil, apperr.New(apperr.ErrValidation, "amount must be greater than zero")
	}

	email := caller.Email
	if in.Email != "" {
		email = NormalizeEmail(in.Email)
	}

	callback := in.CallbackURL
	if callback == "" && s.liveURL != "" {
		callback = s.liveURL + "/checkout/complete"
	}

	reference := uuid.NewString()
	metadata := map[string]any{"accountId": caller.AccountID.String()}
	if order != nil {
		metadata["orderId"] = order.ID.String()
	}

	result, err := s.gateway.InitializeTransaction(ctx, InitializeRequest{
		Email:       email,
		Amount:      amount,
		Reference:   reference,
		CallbackURL: callback,
		CancelURL:   s.liveURL,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, err
	}

	txn := &models.PaymentTransaction{
		Reference:        reference,
		AccountID:        caller.AccountID,
		Email:            email,
		AmountMinor:      ToMinorUnits(amount),
		Currency:         "NGN",
		AuthorizationURL: result.AuthorizationURL,
		Status:           models.PaymentUnpaid,
	}
	if order != nil {
		txn.OrderID = &order.ID
		if _, err := s.orders.AttachPayment(ctx, caller, order.ID, reference); err != nil {
			return nil, err
		}
	}
	if err := s.db.WithContext(ctx).Create(txn).Error; err != nil {
		return nil, err
	}

	s.log.Info("payment link created", zap.String("reference", reference), zap.Int64("amount_minor", txn.AmountMinor))
	return result.Raw, nil
}

// WebhookEvent is the envelope of a gateway notification.
type WebhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type chargeData struct {
	Reference string     `json:"reference"`
	Status    string     `json:"status"`
	Amount    int64      `json:"amount"`
	PaidAt    *time.Time `json:"paid_at"`
}

// HandleWebhook applies a verified gateway notification.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte) error {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return apperr.Wrap(apperr.ErrValidation, err, "malformed webhook payload")
	}

	switch event.Event {
	case "charge.success", "charge.failed":
		var data chargeData
		if err := json.Unmarshal(event.Data, &data); err != nil || data.Reference == "" {
			return apperr.New(apperr.ErrValidation, "webhook payload has no reference")
		}
		status := models.PaymentPaid
		if event.Event == "charge.failed" {
			status = models.PaymentFailed
		}
		return s.settle(ctx, event, data, status, body)
	case "transfer.success", "transfer.failed", "transfer.reversed":
		s.log.Info("transfer notification received", zap.String("event", event.Event))
		return nil
	default:
		s.log.Debug("ignoring webhook event", zap.String("event", event.Event))
		return nil
	}
}

func (s *PaymentService) settle(ctx context.Context, event WebhookEvent, data chargeData, status models.PaymentStatus, body []byte) error {
	var txn models.PaymentTransaction
	err := s.db.WithContext(ctx).First(&txn, "reference = ?", data.Reference).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Warn("webhook for unknown payment reference", zap.String("reference", data.Reference))
		return nil
	}
	if err != nil {
		return err
	}

	if txn.Status == models.PaymentPaid {
		s.log.Info("ignoring event for settled payment", zap.String("reference", data.Reference), zap.String("event", event.Event))
		return nil
	}

	if status == models.PaymentPaid && data.Amount != 0 && data.Amount != txn.AmountMinor {
		s.log.Warn("paid amount differs from initialized amount",
			zap.String("reference", data.Reference),
			zap.Int64("expected", txn.AmountMinor),
			zap.Int64("received", data.Amount),
		)
		status = models.PaymentFailed
	}

	res := s.db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Where("id = ? AND status <> ?", txn.ID, models.PaymentPaid).
		Updates(map[string]any{
			"status":             status,
			"gateway_status":     data.Status,
			"paid_at":            data.PaidAt,
			"last_event":         event.Event,
			"last_event_payload": body,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		s.log.Info("payment settled concurrently", zap.String("reference", data.Reference))
		return nil
	}

	if txn.OrderID != nil {
		found, err := s.orders.SettlePayment(ctx, data.Reference, status)
		if err != nil {
			return err
		}
		if !found {
			s.log.Warn("no order carries payment reference", zap.String("reference", data.Reference))
		}
	}

	s.log.Info("payment settled", zap.String("reference", data.Reference), zap.String("status", string(status)))
	return nil
}
