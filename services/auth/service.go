package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"licensing-controlplane/pkg/errutil"
	"licensing-controlplane/pkg/repository"
	"licensing-controlplane/services/account"
	"licensing-controlplane/services/license"
)

var authResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "auth_resolutions_total",
	Help: "Credential resolutions by kind and outcome.",
}, []string{"kind", "outcome"})

// Bearer is the resolved identity behind a request. Exactly one of User and
// License is set for the non-anonymous types; Token is set when the
// credential was a token.
type Bearer struct {
	Type    BearerType
	User    *account.User
	License *license.License
	Token   *Token
}

func anonymous() *Bearer {
	return &Bearer{Type: BearerAnonymous}
}

type Service struct {
	db       *gorm.DB
	accounts *account.Service
	licenses *license.Service
	repo     repository.Repository[Token]
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Accounts *account.Service
	Licenses *license.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		accounts: p.Accounts,
		licenses: p.Licenses,
		repo:     repository.ProvideStore[Token](p.DB),
	}
}

// Authenticate resolves a classified credential to its bearer. A missing
// credential resolves to the anonymous bearer; a present credential either
// resolves fully or fails with a stable wire code.
func (s *Service) Authenticate(ctx context.Context, accountID string, cred Credential) (*Bearer, error) {
	bearer, err := s.authenticate(ctx, accountID, cred)

	outcome := "ok"
	if err != nil {
		outcome = "denied"
		if ae, ok := err.(*Error); ok {
			outcome = ae.Code
		}
	}
	authResolutions.WithLabelValues(cred.Kind.String(), outcome).Inc()

	return bearer, err
}

func (s *Service) authenticate(ctx context.Context, accountID string, cred Credential) (*Bearer, error) {
	switch cred.Kind {
	case CredentialNone:
		return anonymous(), nil
	case CredentialToken:
		return s.authenticateToken(ctx, accountID, cred.Value)
	case CredentialLicenseKey:
		return s.authenticateLicenseKey(ctx, accountID, cred.Value)
	default:
		return nil, ErrTokenFormatInvalid
	}
}

func (s *Service) authenticateToken(ctx context.Context, accountID, raw string) (*Bearer, error) {
	// A token id instead of the secret is a caller formatting mistake, not
	// a bad secret. Rejected before any store round trip.
	if looksLikeUUID(raw) {
		return nil, ErrTokenFormatInvalid
	}

	digest := digestSecret(raw)
	token, err := s.repo.FindOne(ctx, &Token{Digest: digest})
	if err != nil {
		return nil, errutil.Internal("failed to look up token", errutil.WithErr(err))
	}
	if token == nil {
		return nil, ErrTokenInvalid
	}

	if token.AccountID != accountID {
		// A valid secret presented against the wrong account is worth
		// operator attention; the caller still only learns TOKEN_INVALID.
		zap.L().Error("token presented against foreign account",
			zap.String("token_id", token.ID),
			zap.String("token_account_id", token.AccountID),
			zap.String("request_account_id", accountID))
		return nil, ErrTokenInvalid
	}

	if token.Revoked() {
		return nil, ErrTokenInvalid
	}
	if token.Expired(time.Now()) {
		return nil, ErrTokenExpired
	}

	switch token.BearerType {
	case BearerUser:
		user, err := s.accounts.GetUser(ctx, accountID, token.BearerID)
		if err != nil {
			return nil, ErrTokenInvalid
		}
		if user.Banned() {
			return nil, ErrTokenInvalid
		}
		return &Bearer{Type: BearerUser, User: user, Token: token}, nil
	case BearerLicense:
		lic, err := s.licenses.GetLicense(ctx, accountID, token.BearerID)
		if err != nil {
			return nil, ErrTokenInvalid
		}
		if err := checkLicenseState(lic); err != nil {
			return nil, err
		}
		return &Bearer{Type: BearerLicense, License: lic, Token: token}, nil
	default:
		zap.L().Error("token has unknown bearer type",
			zap.String("token_id", token.ID),
			zap.String("bearer_type", string(token.BearerType)))
		return nil, ErrTokenInvalid
	}
}

func (s *Service) authenticateLicenseKey(ctx context.Context, accountID, key string) (*Bearer, error) {
	lic, err := s.licenses.LookupByKey(ctx, key)
	if err != nil {
		return nil, errutil.Internal("failed to look up license key", errutil.WithErr(err))
	}
	if lic == nil {
		return nil, ErrLicenseInvalid
	}
	if lic.AccountID != accountID {
		// Same security signal as the token path; the caller only learns
		// LICENSE_INVALID.
		zap.L().Error("license key presented against foreign account",
			zap.String("license_id", lic.ID),
			zap.String("license_account_id", lic.AccountID),
			zap.String("request_account_id", accountID))
		return nil, ErrLicenseInvalid
	}

	if err := checkLicenseState(lic); err != nil {
		return nil, err
	}
	return &Bearer{Type: BearerLicense, License: lic}, nil
}

// checkLicenseState rejects license credentials whose ownership or time
// state rules them out. Banned owners are indistinguishable from missing
// licenses on the wire.
func checkLicenseState(lic *license.License) error {
	switch {
	case lic.Banned():
		return ErrLicenseInvalid
	case lic.Suspended:
		return ErrLicenseSuspended
	case lic.Expired(time.Now()):
		return ErrLicenseExpired
	default:
		return nil
	}
}

type IssueTokenParams struct {
	AccountID  string
	BearerType BearerType
	BearerID   string
	Name       *string
	TTL        *time.Duration
}

// IssueToken mints an opaque token for a user or license bearer. The raw
// secret is returned once; only its digest is stored.
func (s *Service) IssueToken(ctx context.Context, params IssueTokenParams) (*Token, string, error) {
	var prefix string
	switch params.BearerType {
	case BearerUser:
		if _, err := s.accounts.GetUser(ctx, params.AccountID, params.BearerID); err != nil {
			return nil, "", err
		}
		prefix = "user-"
	case BearerLicense:
		if _, err := s.licenses.GetLicense(ctx, params.AccountID, params.BearerID); err != nil {
			return nil, "", err
		}
		prefix = "activ-"
	default:
		return nil, "", errutil.ValidationFailed("bearer_type must be user or license")
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, "", errutil.Internal("failed to generate token secret", errutil.WithErr(err))
	}
	raw := prefix + hex.EncodeToString(buf)

	var expiresAt *time.Time
	if params.TTL != nil {
		t := time.Now().Add(*params.TTL)
		expiresAt = &t
	}

	token := &Token{
		ID:         uuid.NewString(),
		AccountID:  params.AccountID,
		BearerType: params.BearerType,
		BearerID:   params.BearerID,
		Digest:     digestSecret(raw),
		Name:       params.Name,
		ExpiresAt:  expiresAt,
	}
	if err := s.repo.Create(ctx, token); err != nil {
		return nil, "", errutil.Internal("failed to store token", errutil.WithErr(err))
	}
	return token, raw, nil
}

// RevokeToken marks the token unusable. Revocation is permanent.
func (s *Service) RevokeToken(ctx context.Context, accountID, tokenID string) error {
	token, err := s.repo.FindOne(ctx, &Token{ID: tokenID, AccountID: accountID})
	if err != nil {
		return errutil.Internal("failed to look up token", errutil.WithErr(err))
	}
	if token == nil {
		return errutil.NotFound("token not found")
	}
	if token.Revoked() {
		return nil
	}

	now := time.Now()
	return s.repo.Update(ctx, token.ID, map[string]interface{}{
		"revoked_at": now,
		"updated_at": now,
	})
}

func digestSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
