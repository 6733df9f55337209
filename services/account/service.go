package account

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"licensing-controlplane/pkg/db/option"
	"licensing-controlplane/pkg/errutil"
	"licensing-controlplane/pkg/repository"
)

type Service struct {
	db       *gorm.DB
	accounts repository.Repository[Account]
	users    repository.Repository[User]
	keypairs repository.Repository[KeyPair]
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		accounts: repository.ProvideStore[Account](p.DB),
		users:    repository.ProvideStore[User](p.DB),
		keypairs: repository.ProvideStore[KeyPair](p.DB),
	}
}

type CreateAccountParams struct {
	Slug string
	Name string
}

// CreateAccount persists a new account together with its freshly provisioned
// key pair in a single transaction.
func (s *Service) CreateAccount(ctx context.Context, params CreateAccountParams) (*Account, error) {
	slug := strings.TrimSpace(params.Slug)
	if slug == "" {
		return nil, errutil.ValidationFailed("slug is required")
	}

	exist, err := s.accounts.FindOne(ctx, &Account{Slug: slug})
	if err != nil {
		return nil, errutil.Internal("failed to look up account", errutil.WithErr(err))
	}
	if exist != nil {
		return nil, errutil.Conflict("account slug already in use")
	}

	acct := &Account{
		ID:        uuid.NewString(),
		Slug:      slug,
		Name:      params.Name,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	kp, err := GenerateKeyPair(acct.ID)
	if err != nil {
		zap.L().Error("failed to provision account key pair", zap.Error(err))
		return nil, errutil.Internal("failed to provision key pair", errutil.WithErr(err))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.accounts.WithTrx(tx).Create(ctx, acct); err != nil {
			return err
		}
		return s.keypairs.WithTrx(tx).Create(ctx, kp)
	})
	if err != nil {
		return nil, errutil.Internal("failed to create account", errutil.WithErr(err))
	}

	acct.KeyPair = kp
	return acct, nil
}

// GetAccount loads an account with its key pair.
func (s *Service) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	acct, err := s.accounts.FindOne(ctx, &Account{ID: accountID}, option.WithPreload("KeyPair"))
	if err != nil {
		return nil, errutil.Internal("failed to look up account", errutil.WithErr(err))
	}
	if acct == nil {
		return nil, errutil.NotFound("account not found")
	}
	return acct, nil
}

type CreateUserParams struct {
	AccountID string
	Email     string
}

func (s *Service) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	if params.AccountID == "" || params.Email == "" {
		return nil, errutil.ValidationFailed("account_id and email are required")
	}

	user := &User{
		ID:        uuid.NewString(),
		AccountID: params.AccountID,
		Email:     strings.ToLower(params.Email),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, errutil.Internal("failed to create user", errutil.WithErr(err))
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, accountID, userID string) (*User, error) {
	user, err := s.users.FindOne(ctx, &User{ID: userID, AccountID: accountID})
	if err != nil {
		return nil, errutil.Internal("failed to look up user", errutil.WithErr(err))
	}
	if user == nil {
		return nil, errutil.NotFound("user not found")
	}
	return user, nil
}

// BanUser marks the user banned; status resolution reports BANNED for every
// license the user owns from this point on.
func (s *Service) BanUser(ctx context.Context, accountID, userID string) error {
	user, err := s.GetUser(ctx, accountID, userID)
	if err != nil {
		return err
	}

	now := time.Now()
	if err := s.users.Update(ctx, user.ID, map[string]interface{}{"banned_at": now, "updated_at": now}); err != nil {
		return errutil.Internal("failed to ban user", errutil.WithErr(err))
	}
	return nil
}

func (s *Service) UnbanUser(ctx context.Context, accountID, userID string) error {
	user, err := s.GetUser(ctx, accountID, userID)
	if err != nil {
		return err
	}

	if err := s.users.Update(ctx, user.ID, map[string]interface{}{"banned_at": nil, "updated_at": time.Now()}); err != nil {
		return errutil.Internal("failed to unban user", errutil.WithErr(err))
	}
	return nil
}
