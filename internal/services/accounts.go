package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/marketplace/internal/apperr"
	"github.com/example/marketplace/internal/models"
	"github.com/example/marketplace/internal/utils"
)

// Identity is the authenticated caller attached to a request.
type Identity struct {
	AccountID uuid.UUID   `json:"accountId"`
	ProfileID uuid.UUID   `json:"userId"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	Role      models.Role `json:"role"`
}

// IsBuyer reports whether the caller acts as a buyer.
func (i Identity) IsBuyer() bool { return i.Role == models.RoleBuyer }

// IsVendor reports whether the caller acts as a vendor.
func (i Identity) IsVendor() bool { return i.Role == models.RoleVendor }

// AccountService manages accounts, their role profiles and session tokens.
type AccountService struct {
	db       *gorm.DB
	secret   string
	tokenTTL time.Duration
}

// NewAccountService constructs AccountService.
func NewAccountService(db *gorm.DB, secret string, tokenTTL time.Duration) *AccountService {
	return &AccountService{db: db, secret: secret, tokenTTL: tokenTTL}
}

// CreateAccountInput is the payload of POST /accounts.
type CreateAccountInput struct {
	BaseProfile struct {
		Name  string `json:"name" validate:"required,max=120"`
		Email string `json:"email" validate:"required,email"`
		Role  string `json:"role" validate:"required,oneof=buyer vendor"`
	} `json:"baseProfile" validate:"required"`
	ProfileByRole struct {
		BusinessName string `json:"businessName" validate:"max=160"`
	} `json:"profileByRole"`
}

// AccountWithProfile is an account joined with its role profile.
type AccountWithProfile struct {
	Account *models.Account    `json:"baseProfile"`
	Profile models.UserProfile `json:"profileByRole"`
}

// NormalizeEmail canonicalises email addresses used as identifiers.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create stores an account and its role profile atomically.
func (s *AccountService) Create(ctx context.Context, in CreateAccountInput) (*AccountWithProfile, error) {
	role := models.Role(in.BaseProfile.Role)
	if !role.Valid() {
		return nil, apperr.New(apperr.ErrValidation, "role must be buyer or vendor")
	}

	account := &models.Account{
		Name:  strings.TrimSpace(in.BaseProfile.Name),
		Email: NormalizeEmail(in.BaseProfile.Email),
		Role:  role,
	}

	var profile models.UserProfile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Account{}).Where("email = ?", account.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperr.New(apperr.ErrConflict, "an account with this email already exists")
		}

		if err := tx.Create(account).Error; err != nil {
			return err
		}

		switch role {
		case models.RoleBuyer:
			buyer := &models.Buyer{AccountID: account.ID}
			if err := tx.Create(buyer).Error; err != nil {
				return err
			}
			profile = buyer
		case models.RoleVendor:
			vendor := &models.Vendor{AccountID: account.ID, BusinessName: strings.TrimSpace(in.ProfileByRole.BusinessName)}
			if err := tx.Create(vendor).Error; err != nil {
				return err
			}
			profile = vendor
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &AccountWithProfile{Account: account, Profile: profile}, nil
}

// GetByID loads an account.
func (s *AccountService) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.ErrNotFound, "account not found")
		}
		return nil, err
	}
	return &account, nil
}

// FindByEmail loads an account by its normalized email.
func (s *AccountService) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).First(&account, "email = ?", NormalizeEmail(email)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.ErrNotFound, "account not found")
		}
		return nil, err
	}
	return &account, nil
}

// Profile resolves the role profile of account.
func (s *AccountService) Profile(ctx context.Context, account *models.Account) (models.UserProfile, error) {
	var (
		profile models.UserProfile
		err     error
	)
	db := s.db.WithContext(ctx)

	switch account.Role {
	case models.RoleBuyer:
		var buyer models.Buyer
		err = db.First(&buyer, "account_id = ?", account.ID).Error
		profile = &buyer
	case models.RoleVendor:
		var vendor models.Vendor
		err = db.First(&vendor, "account_id = ?", account.ID).Error
		profile = &vendor
	default:
		return nil, apperr.New(apperr.ErrDomainState, "account has no role")
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.ErrNotFound, "profile not found")
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// Get returns an account joined with its profile.
func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*AccountWithProfile, error) {
	account, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	profile, err := s.Profile(ctx, account)
	if err != nil {
		return nil, err
	}
	return &AccountWithProfile{Account: account, Profile: profile}, nil
}

// UpdateAccountInput carries the mutable account fields.
type UpdateAccountInput struct {
	Name         *string `json:"name" validate:"omitempty,min=1,max=120"`
	Email        *string `json:"email" validate:"omitempty,email"`
	BusinessName *string `json:"businessName" validate:"omitempty,max=160"`
	IsOnline     *bool   `json:"isOnline"`
}

// Update applies in to the caller's own account.
func (s *AccountService) Update(ctx context.Context, caller Identity, id uuid.UUID, in UpdateAccountInput) (*AccountWithProfile, error) {
	if caller.AccountID != id {
		return nil, apperr.New(apperr.ErrForbidden, "you can only update your own account")
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	account := current.Account

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.Email != nil {
			email := NormalizeEmail(*in.Email)
			if email != account.Email {
				var count int64
				if err := tx.Model(&models.Account{}).Where("email = ? AND id <> ?", email, account.ID).Count(&count).Error; err != nil {
					return err
				}
				if count > 0 {
					return apperr.New(apperr.ErrConflict, "an account with this email already exists")
				}
				account.Email = email
			}
		}
		if in.Name != nil {
			account.Name = strings.TrimSpace(*in.Name)
		}
		if err := tx.Save(account).Error; err != nil {
			return err
		}

		if vendor, ok := current.Profile.(*models.Vendor); ok && (in.BusinessName != nil || in.IsOnline != nil) {
			if in.BusinessName != nil {
				vendor.BusinessName = strings.TrimSpace(*in.BusinessName)
			}
			if in.IsOnline != nil {
				vendor.IsOnline = *in.IsOnline
			}
			return tx.Save(vendor).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}

// IdentityOf builds the request identity of account.
func (s *AccountService) IdentityOf(ctx context.Context, account *models.Account) (Identity, error) {
	profile, err := s.Profile(ctx, account)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		AccountID: account.ID,
		ProfileID: profile.ProfileID(),
		Email:     account.Email,
		Name:      account.Name,
		Role:      account.Role,
	}, nil
}

// IssueToken signs a session token for account.
func (s *AccountService) IssueToken(ctx context.Context, account *models.Account) (string, error) {
	identity, err := s.IdentityOf(ctx, account)
	if err != nil {
		return "", err
	}
	return utils.GenerateToken(s.secret, utils.Claims{
		AccountID: identity.AccountID.String(),
		UserID:    identity.ProfileID.String(),
		Email:     identity.Email,
		Name:      identity.Name,
		Role:      string(identity.Role),
	}, s.tokenTTL)
}

// Authenticate resolves a session token into the identity of a live account.
func (s *AccountService) Authenticate(ctx context.Context, token string) (Identity, error) {
	claims, err := utils.ParseToken(s.secret, token)
	if err != nil {
		return Identity{}, apperr.Wrap(apperr.ErrUnauthorized, err, "invalid or expired session")
	}
	id, err := claims.AccountUUID()
	if err != nil {
		return Identity{}, apperr.Wrap(apperr.ErrUnauthorized, err, "invalid session")
	}
	account, err := s.GetByID(ctx, id)
	if err != nil {
		return Identity{}, apperr.Wrap(apperr.ErrUnauthorized, err, "account no longer exists")
	}
	identity, err := s.IdentityOf(ctx, account)
	if err != nil {
		return Identity{}, apperr.Wrap(apperr.ErrUnauthorized, err, "account profile missing")
	}
	return identity, nil
}
