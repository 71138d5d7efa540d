package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/marketplace/internal/apperr"
)

// PaystackClient talks to the Paystack transaction API.
type PaystackClient struct {
	baseURL string
	secret  string
	http    *http.Client
	log     *zap.Logger
}

// NewPaystackClient constructs PaystackClient.
func NewPaystackClient(baseURL, secret string, timeout time.Duration, log *zap.Logger) *PaystackClient {
	return &PaystackClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    newHTTPClient(timeout),
		log:     log,
	}
}

// InitializeRequest describes a transaction to open with the gateway.
type InitializeRequest struct {
	Email       string
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	CallbackURL string
	CancelURL   string
	Metadata    map[string]any
}

// InitializeResult is the parsed portion of the gateway reply.
type InitializeResult struct {
	Raw              json.RawMessage
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// ToMinorUnits converts a major-unit amount (naira) into kobo.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// InitializeTransaction opens a payment and returns the hosted checkout link.
func (c *PaystackClient) InitializeTransaction(ctx context.Context, in InitializeRequest) (*InitializeResult, error) {
	if c.secret == "" {
		return nil, apperr.New(apperr.ErrUpstream, "payment gateway is not configured")
	}

	metadata := map[string]any{}
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	if in.CancelURL != "" {
		metadata["cancel_action"] = in.CancelURL
	}

	payload := map[string]any{
		"email":     in.Email,
		"amount":    ToMinorUnits(in.Amount),
		"reference": in.Reference,
		"channels":  []string{"card", "bank", "ussd", "bank_transfer"},
		"metadata":  metadata,
	}
	if in.Currency != "" {
		payload["currency"] = in.Currency
	}
	if in.CallbackURL != "" {
		payload["callback_url"] = in.CallbackURL
	}

	resp, err := doRequest(ctx, c.http, "Paystack initialize", RequestOpts{
		Method:  http.MethodPost,
		URL:     c.baseURL + "/transaction/initialize",
		JSON:    payload,
		Headers: map[string]string{"Authorization": "Bearer " + c.secret},
	})
	if err != nil {
		c.log.Error("paystack request failed", zap.Error(err))
		return nil, apperr.Wrap(apperr.ErrUpstream, err, "payment gateway unavailable")
	}

	var body struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AuthorizationURL string `json:"authorization_url"`
			AccessCode       string `json:"access_code"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, err, "unexpected payment gateway response")
	}
	if !resp.OK() || !body.Status {
		c.log.Warn("paystack rejected transaction", zap.Int("status", resp.Status), zap.String("message", body.Message))
		return nil, apperr.New(apperr.ErrUpstream, "payment gateway rejected the transaction: "+body.Message)
	}

	return &InitializeResult{
		Raw:              json.RawMessage(resp.Body),
		AuthorizationURL: body.Data.AuthorizationURL,
		AccessCode:       body.Data.AccessCode,
		Reference:        body.Data.Reference,
	}, nil
}

// VerifySignature checks the x-paystack-signature header of a webhook body.
func (c *PaystackClient) VerifySignature(body []byte, signature string) bool {
	if c.secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(c.secret, body)), []byte(strings.ToLower(signature)))
}

// Sign computes the hex HMAC-SHA512 Paystack uses to sign webhooks.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
