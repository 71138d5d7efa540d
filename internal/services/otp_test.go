package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/example/marketplace/internal/cache"
	"github.com/example/marketplace/internal/models"
	"github.com/example/marketplace/internal/testutil"
)

type fakeSender struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

var _ OTPSender = (*fakeSender)(nil)

func (f *fakeSender) SendOTP(_ context.Context, email, code string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.codes == nil {
		f.codes = map[string]string{}
	}
	f.codes[email] = code
	return f.err
}

func (f *fakeSender) code(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codes[email]
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

type otpFixture struct {
	svc      *OTPService
	sender   *fakeSender
	store    *cache.Client
	accounts *AccountService
	ff       func(time.Duration)
}

func newOTPFixture(t *testing.T) otpFixture {
	t.Helper()

	store, mr := testutil.NewCache(t)
	accounts := NewAccountService(testutil.NewDB(t), "secret", time.Hour)
	sender := &fakeSender{}
	svc := NewOTPService(store, sender, accounts, 300*time.Second, 3, zaptest.NewLogger(t))
	return otpFixture{svc: svc, sender: sender, store: store, accounts: accounts, ff: mr.FastForward}
}

func TestOTP_IssueAndVerifyNewAccount(t *testing.T) {
	t.Parallel()
	f := newOTPFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, " New@Example.com "))
	code := f.sender.code("new@example.com")
	require.Len(t, code, 6)

	res, err := f.svc.Verify(ctx, "new@example.com", code)
	require.NoError(t, err)
	assert.True(t, res.IsNewAccount)
	assert.Empty(t, res.Token)
	assert.Equal(t, "new@example.com", res.Account.Email)

	_, err = f.svc.Verify(ctx, "new@example.com", code)
	assert.ErrorIs(t, err, ErrOTPExpired)
}

func TestOTP_VerifyExistingAccountIssuesToken(t *testing.T) {
	t.Parallel()
	f := newOTPFixture(t)
	ctx := context.Background()

	var in CreateAccountInput
	in.BaseProfile.Name = "Ada"
	in.BaseProfile.Email = "ada@example.com"
	in.BaseProfile.Role = "buyer"
	created, err := f.accounts.Create(ctx, in)
	require.NoError(t, err)

	require.NoError(t, f.svc.Issue(ctx, "ada@example.com"))
	res, err := f.svc.Verify(ctx, "ada@example.com", f.sender.code("ada@example.com"))
	require.NoError(t, err)
	assert.False(t, res.IsNewAccount)
	assert.Equal(t, created.Account.ID, res.Account.ID)

	identity, err := f.accounts.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, created.Profile.ProfileID(), identity.ProfileID)
}

func TestOTP_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()
	f := newOTPFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, "a@example.com"))
	code := f.sender.code("a@example.com")

	f.ff(301 * time.Second)

	_, err := f.svc.Verify(ctx, "a@example.com", code)
	assert.ErrorIs(t, err, ErrOTPExpired)
}

func TestOTP_RetryCeiling(t *testing.T) {
	t.Parallel()
	f := newOTPFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, "a@example.com"))
	code := f.sender.code("a@example.com")
	bad := wrongCode(code)

	_, err := f.svc.Verify(ctx, "a@example.com", bad)
	assert.ErrorIs(t, err, ErrOTPInvalid)
	_, err = f.svc.Verify(ctx, "a@example.com", bad)
	assert.ErrorIs(t, err, ErrOTPInvalid)
	_, err = f.svc.Verify(ctx, "a@example.com", bad)
	assert.ErrorIs(t, err, ErrOTPMaxRetries)

	_, err = f.svc.Verify(ctx, "a@example.com", code)
	assert.ErrorIs(t, err, ErrOTPMaxRetries)

	raw, err := f.store.Get(ctx, otpKey("a@example.com"))
	require.NoError(t, err)
	var rec otpRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	assert.Equal(t, 3, rec.Retries)
}

func TestOTP_FailedAttemptPreservesTTL(t *testing.T) {
	t.Parallel()
	f := newOTPFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, "a@example.com"))
	code := f.sender.code("a@example.com")

	f.ff(5 * time.Second)
	_, err := f.svc.Verify(ctx, "a@example.com", wrongCode(code))
	require.ErrorIs(t, err, ErrOTPInvalid)

	ttl, err := f.store.TTL(ctx, otpKey("a@example.com"))
	require.NoError(t, err)
	assert.Less(t, ttl, 300*time.Second)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestOTP_EmailMismatchInRecord(t *testing.T) {
	t.Parallel()
	f := newOTPFixture(t)
	ctx := context.Background()

	raw, err := json.Marshal(otpRecord{Email: "other@example.com", Value: "123456"})
	require.NoError(t, err)
	require.NoError(t, f.store.SetEx(ctx, otpKey("a@example.com"), string(raw), time.Minute))

	_, err = f.svc.Verify(ctx, "a@example.com", "123456")
	assert.ErrorIs(t, err, ErrOTPInvalidEmail)
}

func TestOTP_ReissueResetsRetries(t *testing.T) {
	t.Parallel()
	f := newOTPFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, "a@example.com"))
	bad := wrongCode(f.sender.code("a@example.com"))
	for i := 0; i < 3; i++ {
		_, _ = f.svc.Verify(ctx, "a@example.com", bad)
	}

	require.NoError(t, f.svc.Issue(ctx, "a@example.com"))
	_, err := f.svc.Verify(ctx, "a@example.com", f.sender.code("a@example.com"))
	require.NoError(t, err)
}

func TestOTP_ConcurrentFailuresAllCounted(t *testing.T) {
	t.Parallel()
	f := newOTPFixture(t)
	f.svc.maxRetries = 100
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, "a@example.com"))
	bad := wrongCode(f.sender.code("a@example.com"))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		counted int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Verify(ctx, "a@example.com", bad)
			if errors.Is(err, ErrOTPInvalid) {
				mu.Lock()
				counted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Positive(t, counted)

	raw, err := f.store.Get(ctx, otpKey("a@example.com"))
	require.NoError(t, err)
	var rec otpRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	assert.Equal(t, counted, rec.Retries)
}

func TestGenerateVerificationCode(t *testing.T) {
	t.Parallel()

	for i := 0; i < 50; i++ {
		code, err := generateVerificationCode()
		require.NoError(t, err)
		assert.Regexp(t, `^\d{6}$`, code)
	}
}

type flakySessions struct {
	SessionIssuer
	failures int
}

func (f *flakySessions) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset")
	}
	return f.SessionIssuer.FindByEmail(ctx, email)
}

func TestOTP_LookupFailureKeepsCode(t *testing.T) {
	t.Parallel()
	f := newOTPFixture(t)
	f.svc.sessions = &flakySessions{SessionIssuer: f.accounts, failures: 1}
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, "late@example.com"))
	code := f.sender.code("late@example.com")

	_, err := f.svc.Verify(ctx, "late@example.com", code)
	require.Error(t, err)

	res, err := f.svc.Verify(ctx, "late@example.com", code)
	require.NoError(t, err)
	assert.True(t, res.IsNewAccount)

	_, err = f.svc.Verify(ctx, "late@example.com", code)
	assert.ErrorIs(t, err, ErrOTPExpired)
}
