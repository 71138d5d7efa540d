package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/example/marketplace/internal/config"
	"github.com/example/marketplace/internal/database"
	"github.com/example/marketplace/internal/handlers"
	"github.com/example/marketplace/internal/models"
	"github.com/example/marketplace/internal/services"
	"github.com/example/marketplace/internal/testutil"
)

const webhookSecret = "sk_test"

type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *captureSender) SendOTP(_ context.Context, email, code string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codes == nil {
		s.codes = map[string]string{}
	}
	s.codes[email] = code
	return nil
}

func (s *captureSender) code(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[email]
}

type scriptedGenerator struct {
	text string
}

func (g *scriptedGenerator) GenerateRequest(context.Context, string, string) (string, error) {
	return g.text, nil
}

type harness struct {
	app      *fiber.App
	db       *gorm.DB
	cfg      *config.Config
	accounts *services.AccountService
	mail     *captureSender
	gen      *scriptedGenerator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)

	cfg := &config.Config{
		JWTSecret:      "secret",
		TokenExpires:   168 * time.Hour,
		AuthCookieName: "marketplace_token",
		OTPTTL:         300 * time.Second,
		OTPMaxRetries:  3,
	}

	db := testutil.NewDB(t)
	kv, _ := testutil.NewCache(t)

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"authorization_url":"https://checkout.test/x"}}`))
	}))
	t.Cleanup(gateway.Close)

	accounts := services.NewAccountService(db, cfg.JWTSecret, cfg.TokenExpires)
	orders := services.NewOrderService(db, 0, log)
	paystack := services.NewPaystackClient(gateway.URL, webhookSecret, time.Second, log)
	mail := &captureSender{}
	gen := &scriptedGenerator{}

	app := NewApp(cfg, log)
	Register(app, cfg, Services{
		Accounts: accounts,
		OTP:      services.NewOTPService(kv, mail, accounts, cfg.OTPTTL, cfg.OTPMaxRetries, log),
		Products: services.NewProductService(db, services.NewCloudinaryClient("", "", "", "", time.Second, log), log),
		Carts:    services.NewCartService(db),
		Orders:   orders,
		Payments: services.NewPaymentService(db, paystack, orders, "https://app.test", log),
		Webhooks: paystack,
		AI:       gen,
		Health: map[string]handlers.Pinger{
			"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
			"cache":    kv.Ping,
		},
	}, log)

	return &harness{app: app, db: db, cfg: cfg, accounts: accounts, mail: mail, gen: gen}
}

// signup creates an account and returns its session cookie value.
func (h *harness) signup(t *testing.T, email, role string) (string, services.Identity) {
	t.Helper()

	var in services.CreateAccountInput
	in.BaseProfile.Name = "Test"
	in.BaseProfile.Email = email
	in.BaseProfile.Role = role
	created, err := h.accounts.Create(context.Background(), in)
	require.NoError(t, err)

	token, err := h.accounts.IssueToken(context.Background(), created.Account)
	require.NoError(t, err)
	identity, err := h.accounts.IdentityOf(context.Background(), created.Account)
	require.NoError(t, err)
	return token, identity
}

func (h *harness) do(t *testing.T, method, target, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: h.cfg.AuthCookieName, Value: token})
	}

	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func sessionCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	email := "ada@example.com"

	resp, _ := h.do(t, http.MethodPost, "/api/v1/auth/send-otp", "", map[string]string{"email": email})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := h.do(t, http.MethodPost, "/api/v1/auth/verify-otp", "", map[string]string{"email": email, "OTPFromUser": h.mail.code(email)})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var verified struct {
		Success      bool           `json:"success"`
		Account      models.Account `json:"account"`
		IsNewAccount bool           `json:"isNewAccount"`
		Token        string         `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &verified))
	assert.True(t, verified.Success)
	assert.True(t, verified.IsNewAccount)
	assert.Equal(t, email, verified.Account.Email)
	assert.Empty(t, verified.Token)
	assert.Nil(t, sessionCookie(resp, h.cfg.AuthCookieName))

	resp, body = h.do(t, http.MethodPost, "/api/v1/accounts", "", map[string]any{
		"baseProfile": map[string]string{"name": "Ada", "email": email, "role": "buyer"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	cookie := sessionCookie(resp, h.cfg.AuthCookieName)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, int((168 * time.Hour).Seconds()), cookie.MaxAge)

	var created struct {
		BaseProfile models.Account `json:"baseProfile"`
		Token       string         `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, cookie.Value, created.Token)

	resp, _ = h.do(t, http.MethodPost, "/api/v1/accounts", "", map[string]any{
		"baseProfile": map[string]string{"name": "Ada", "email": email, "role": "buyer"},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/api/v1/auth/send-otp", "", map[string]string{"email": email})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = h.do(t, http.MethodPost, "/api/v1/auth/verify-otp", "", map[string]string{"email": email, "OTPFromUser": "000000x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))

	wrong := "000000"
	if h.mail.code(email) == wrong {
		wrong = "111111"
	}
	resp, body = h.do(t, http.MethodPost, "/api/v1/auth/verify-otp", "", map[string]string{"email": email, "OTPFromUser": wrong})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"success":false,"error":"invalid OTP"}`, string(body))

	resp, body = h.do(t, http.MethodPost, "/api/v1/auth/verify-otp", "", map[string]string{"email": email, "OTPFromUser": h.mail.code(email)})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	cookie = sessionCookie(resp, h.cfg.AuthCookieName)
	require.NotNil(t, cookie)

	resp, body = h.do(t, http.MethodGet, "/api/v1/accounts/"+created.BaseProfile.ID.String(), cookie.Value, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"profileByRole"`)

	resp, _ = h.do(t, http.MethodDelete, "/api/v1/auth/logout", cookie.Value, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	cleared := sessionCookie(resp, h.cfg.AuthCookieName)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	resp, body = h.do(t, http.MethodGet, "/api/v1/accounts/"+created.BaseProfile.ID.String(), "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), `"success":false`)

	resp, _ = h.do(t, http.MethodGet, "/api/v1/accounts/"+created.BaseProfile.ID.String(), "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestValidationErrors(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	resp, body := h.do(t, http.MethodPost, "/api/v1/auth/send-otp", "", map[string]string{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"success":false,"error":"invalid fields: email (email)"}`, string(body))

	resp, _ = h.do(t, http.MethodPost, "/api/v1/auth/send-otp", "", "{")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/api/v1/products?options="+url.QueryEscape(`{"sortBy":"colour"}`), "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/api/v1/products/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func seedProducts(t *testing.T, h *harness, vendor services.Identity, n int) {
	t.Helper()

	vendorID := vendor.ProfileID
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		unit := float64(10 + i)
		p := models.Product{
			Name:         "Product " + string(rune('A'+i)),
			VendorID:     &vendorID,
			PricePerUnit: &unit,
			IsAvailable:  true,
			Category:     models.CategoryPets,
		}
		p.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, h.db.Create(&p).Error)
	}
}

func TestDispatchMatchesDirectListing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, vendor := h.signup(t, "vendor@example.com", "vendor")
	buyerToken, _ := h.signup(t, "buyer@example.com", "buyer")
	seedProducts(t, h, vendor, 5)

	options := `{"limit":3,"category":"Pets"}`
	direct, directBody := h.do(t, http.MethodGet, "/api/v1/products?options="+url.QueryEscape(options), "", nil)
	require.Equal(t, http.StatusOK, direct.StatusCode, string(directBody))

	h.gen.text = "```json\n" + `{"method":"GET","route":"/api/v1/products","query":{"options":` + options + `}}` + "\n```"
	bridged, bridgedBody := h.do(t, http.MethodPost, "/api/v1/third-party/ai/conversation", buyerToken, map[string]string{"message": "show me three pet products"})
	require.Equal(t, http.StatusOK, bridged.StatusCode, string(bridgedBody))

	assert.JSONEq(t, string(directBody), string(bridgedBody))

	var page struct {
		Products   []models.Product `json:"products"`
		NextCursor *string          `json:"nextCursor"`
	}
	require.NoError(t, json.Unmarshal(directBody, &page))
	assert.Len(t, page.Products, 3)
	assert.NotNil(t, page.NextCursor)
}

func TestConversationFailures(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	token, _ := h.signup(t, "buyer@example.com", "buyer")
	msg := map[string]string{"message": "do something"}

	h.gen.text = `{"method":"DELETE","route":"/api/v1/products/:id","params":{"id":"x"}}`
	resp, _ := h.do(t, http.MethodPost, "/api/v1/third-party/ai/conversation", token, msg)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	h.gen.text = "I cannot help with that."
	resp, _ = h.do(t, http.MethodPost, "/api/v1/third-party/ai/conversation", token, msg)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	h.gen.text = `{"route":"/api/v1/products"}`
	resp, _ = h.do(t, http.MethodPost, "/api/v1/third-party/ai/conversation", token, msg)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/api/v1/third-party/ai/conversation", "", msg)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCartOrderPaymentFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, vendor := h.signup(t, "vendor@example.com", "vendor")
	buyerToken, _ := h.signup(t, "buyer@example.com", "buyer")
	seedProducts(t, h, vendor, 1)

	var product models.Product
	require.NoError(t, h.db.First(&product).Error)

	resp, body := h.do(t, http.MethodPost, "/api/v1/carts", buyerToken, map[string]any{
		"cartInfo": map[string]any{"items": []map[string]any{{"product": product.ID.String(), "quantity": 3}}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var cart models.Cart
	require.NoError(t, json.Unmarshal(body, &cart))
	assert.Equal(t, 30.0, cart.Total)

	resp, body = h.do(t, http.MethodPost, "/api/v1/orders", buyerToken, map[string]string{"cartId": cart.ID.String()})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var order models.Order
	require.NoError(t, json.Unmarshal(body, &order))

	resp, body = h.do(t, http.MethodPost, "/api/v1/third-party/paystack/payment-link", buyerToken, map[string]string{"orderId": order.ID.String()})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), "checkout.test")

	resp, body = h.do(t, http.MethodGet, "/api/v1/orders", buyerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), order.ID.String())

	resp, _ = h.do(t, http.MethodPut, "/api/v1/orders/"+order.ID.String(), buyerToken, map[string]string{"status": "cancelled"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = h.do(t, http.MethodPut, "/api/v1/orders/"+order.ID.String(), buyerToken, map[string]string{"status": "cancelled"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.JSONEq(t, `{"success":false,"error":"order has been cancelled and can no longer be updated"}`, string(body))

	resp, _ = h.do(t, http.MethodGet, "/api/v1/carts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebhookSignature(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	body := `{"event":"charge.success","data":{"reference":"unknown"}}`

	resp, _ := h.do(t, http.MethodPost, "/api/v1/third-party/paystack/webhook", "", body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/third-party/paystack/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-paystack-signature", services.Sign(webhookSecret, []byte(body)))
	signed, err := h.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, signed.StatusCode)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	resp, body := h.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true,"checks":{"database":"up","cache":"up"}}`, string(body))
}

func TestTableAdvertisesOnlyServedRoutes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	app := NewApp(h.cfg, zaptest.NewLogger(t))
	table := Register(app, h.cfg, Services{Accounts: h.accounts}, zaptest.NewLogger(t))

	var keys []string
	for _, r := range table.Routes() {
		keys = append(keys, r.Key())
	}
	assert.ElementsMatch(t, []string{
		"GET /api/v1/products", "GET /api/v1/products/:id", "POST /api/v1/products",
		"GET /api/v1/orders", "GET /api/v1/orders/:id", "POST /api/v1/orders", "PUT /api/v1/orders/:id",
		"GET /api/v1/carts", "GET /api/v1/carts/:id", "POST /api/v1/carts", "PUT /api/v1/carts/:id",
	}, keys)
}
