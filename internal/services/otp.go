package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/example/marketplace/internal/apperr"
	"github.com/example/marketplace/internal/cache"
	"github.com/example/marketplace/internal/models"
)

const otpKeyPrefix = "email-otp:"

// Verification outcomes.
var (
	ErrOTPExpired      = apperr.New(apperr.ErrDomainState, "OTP has expired, request a new one")
	ErrOTPInvalidEmail = apperr.New(apperr.ErrUnauthorized, "invalid email")
	ErrOTPInvalid      = apperr.New(apperr.ErrUnauthorized, "invalid OTP")
	ErrOTPMaxRetries   = apperr.New(apperr.ErrDomainState, "maximum OTP retries reached, wait for the code to expire")
)

// OTPStore is the cache surface used by the verification flow.
type OTPStore interface {
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	Mutate(ctx context.Context, key string, fn cache.MutateFunc) error
}

// OTPSender delivers codes to users.
type OTPSender interface {
	SendOTP(ctx context.Context, email, code string, minutes int) error
}

// SessionIssuer looks accounts up and signs their session tokens.
type SessionIssuer interface {
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	IssueToken(ctx context.Context, account *models.Account) (string, error)
}

type otpRecord struct {
	Email   string `json:"email"`
	Value   string `json:"value"`
	Retries int    `json:"retries"`
}

// OTPService issues and verifies one-time passwords sent by email.
type OTPService struct {
	store      OTPStore
	sender     OTPSender
	sessions   SessionIssuer
	ttl        time.Duration
	maxRetries int
	log        *zap.Logger
}

// NewOTPService constructs OTPService.
func NewOTPService(store OTPStore, sender OTPSender, sessions SessionIssuer, ttl time.Duration, maxRetries int, log *zap.Logger) *OTPService {
	return &OTPService{
		store:      store,
		sender:     sender,
		sessions:   sessions,
		ttl:        ttl,
		maxRetries: maxRetries,
		log:        log,
	}
}

func otpKey(email string) string {
	return otpKeyPrefix + email
}

func generateVerificationCode() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Issue stores a fresh code for email, replacing any pending one, and sends it.
func (s *OTPService) Issue(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return apperr.New(apperr.ErrValidation, "email is required")
	}

	code, err := generateVerificationCode()
	if err != nil {
		return fmt.Errorf("generate verification code: %w", err)
	}

	record, err := json.Marshal(otpRecord{Email: email, Value: code})
	if err != nil {
		return err
	}
	if err := s.store.SetEx(ctx, otpKey(email), string(record), s.ttl); err != nil {
		return fmt.Errorf("store verification code: %w", err)
	}

	if err := s.sender.SendOTP(ctx, email, code, int(s.ttl/time.Minute)); err != nil {
		return err
	}

	s.log.Info("verification code issued", zap.String("email", email))
	return nil
}

// VerifyResult is the outcome of a successful verification.
type VerifyResult struct {
	Account      *models.Account `json:"account"`
	IsNewAccount bool            `json:"isNewAccount"`
	Token        string          `json:"token,omitempty"`
}

// Verify checks code against the pending record for email. Failed attempts
// are counted atomically without extending the record's lifetime. A matching
// code is consumed only once the account lookup has succeeded, so a storage
// error leaves the code usable.
func (s *OTPService) Verify(ctx context.Context, email, code string) (*VerifyResult, error) {
	email = NormalizeEmail(email)
	if email == "" || code == "" {
		return nil, apperr.New(apperr.ErrValidation, "email and OTP are required")
	}

	var outcome error
	err := s.store.Mutate(ctx, otpKey(email), func(e cache.Entry) (cache.Mutation, error) {
		outcome = nil

		if !e.Found {
			return cache.Keep(), ErrOTPExpired
		}

		var rec otpRecord
		if err := json.Unmarshal([]byte(e.Value), &rec); err != nil {
			outcome = ErrOTPExpired
			return cache.Remove(), nil
		}

		if rec.Email != email {
			return cache.Keep(), ErrOTPInvalidEmail
		}
		if rec.Retries >= s.maxRetries {
			return cache.Keep(), ErrOTPMaxRetries
		}

		if subtle.ConstantTimeCompare([]byte(rec.Value), []byte(code)) != 1 {
			rec.Retries++
			next, err := json.Marshal(rec)
			if err != nil {
				return cache.Keep(), err
			}
			outcome = ErrOTPInvalid
			if rec.Retries >= s.maxRetries {
				outcome = ErrOTPMaxRetries
			}
			return cache.Replace(string(next)), nil
		}

		return cache.Keep(), nil
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		s.log.Info("verification failed", zap.String("email", email), zap.Error(outcome))
		return nil, outcome
	}

	var res *VerifyResult
	account, err := s.sessions.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		res = &VerifyResult{Account: &models.Account{Email: email}, IsNewAccount: true}
	case err != nil:
		return nil, err
	default:
		token, err := s.sessions.IssueToken(ctx, account)
		if err != nil {
			return nil, err
		}
		res = &VerifyResult{Account: account, Token: token}
	}

	if err := s.consume(ctx, email, code); err != nil {
		return nil, err
	}
	return res, nil
}

// consume deletes the record if it still holds code. Of two concurrent
// verifications with the same code only one gets past this point.
func (s *OTPService) consume(ctx context.Context, email, code string) error {
	return s.store.Mutate(ctx, otpKey(email), func(e cache.Entry) (cache.Mutation, error) {
		if !e.Found {
			return cache.Keep(), ErrOTPExpired
		}
		var rec otpRecord
		if err := json.Unmarshal([]byte(e.Value), &rec); err != nil || rec.Value != code {
			return cache.Keep(), ErrOTPExpired
		}
		return cache.Remove(), nil
	})
}
