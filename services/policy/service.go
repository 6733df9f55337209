package policy

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"licensing-controlplane/pkg/db/option"
	"licensing-controlplane/pkg/errutil"
	"licensing-controlplane/pkg/repository"
	"licensing-controlplane/services/scheme"
)

// ErrPoolEmpty reports that a pooled policy has no unclaimed keys left.
var ErrPoolEmpty = errors.New("policy: key pool is empty")

const cacheTTL = 30 * time.Second

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	cache *Cache

	policies repository.Repository[Policy]
	items    repository.Repository[PoolItem]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		cache:    NewCache(cacheTTL),
		policies: repository.ProvideStore[Policy](p.DB),
		items:    repository.ProvideStore[PoolItem](p.DB),
	}
}

type CreatePolicyParams struct {
	AccountID string
	ProductID string
	Name      string
	Scheme    *string
	Encrypted bool
	UsePool   bool
	Duration  *int64
	MaxUses   *int64

	ExpireFromCreation        bool
	ExpireFromFirstValidation bool
	ExpireFromFirstActivation bool
	ExpireFromFirstUse        bool
	ExpireFromFirstDownload   bool
	TransferResetsExpiry      bool
}

func (s *Service) CreatePolicy(ctx context.Context, params CreatePolicyParams) (*Policy, error) {
	if params.AccountID == "" {
		return nil, errutil.ValidationFailed("account_id is required")
	}
	if params.Scheme != nil && *params.Scheme != "" && !scheme.Valid(scheme.ID(*params.Scheme)) {
		return nil, errutil.ValidationFailed("unsupported key scheme",
			errutil.WithDetails(errutil.Detail{Field: "scheme", Message: *params.Scheme}))
	}
	if params.Duration != nil && *params.Duration <= 0 {
		return nil, errutil.ValidationFailed("duration must be positive")
	}

	pol := &Policy{
		ID:        uuid.NewString(),
		AccountID: params.AccountID,
		ProductID: params.ProductID,
		Name:      params.Name,
		Scheme:    params.Scheme,
		Encrypted: params.Encrypted,
		UsePool:   params.UsePool,
		Duration:  params.Duration,
		MaxUses:   params.MaxUses,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),

		ExpireFromCreation:        params.ExpireFromCreation,
		ExpireFromFirstValidation: params.ExpireFromFirstValidation,
		ExpireFromFirstActivation: params.ExpireFromFirstActivation,
		ExpireFromFirstUse:        params.ExpireFromFirstUse,
		ExpireFromFirstDownload:   params.ExpireFromFirstDownload,
		TransferResetsExpiry:      params.TransferResetsExpiry,
	}

	if err := s.policies.Create(ctx, pol); err != nil {
		return nil, errutil.Internal("failed to create policy", errutil.WithErr(err))
	}
	return pol, nil
}

// GetPolicy loads a policy through the in-process cache.
func (s *Service) GetPolicy(ctx context.Context, accountID, policyID string) (*Policy, error) {
	key := CacheKey{AccountID: accountID, PolicyID: policyID}
	pol, err := s.cache.GetOrLoad(key, func() (*Policy, error) {
		return s.policies.FindOne(ctx, &Policy{ID: policyID, AccountID: accountID})
	})
	if err != nil {
		return nil, errutil.Internal("failed to look up policy", errutil.WithErr(err))
	}
	if pol == nil {
		return nil, errutil.NotFound("policy not found")
	}
	return pol, nil
}

// PushPoolKeys provisions key strings into the policy's pool.
func (s *Service) PushPoolKeys(ctx context.Context, accountID, policyID string, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, errutil.ValidationFailed("keys are required")
	}

	items := make([]*PoolItem, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		items = append(items, &PoolItem{
			ID:        s.node.Generate().String(),
			AccountID: accountID,
			PolicyID:  policyID,
			Key:       key,
			CreatedAt: time.Now(),
		})
	}

	if err := s.items.BatchCreate(ctx, items); err != nil {
		return 0, errutil.Internal("failed to push pool keys", errutil.WithErr(err))
	}
	return len(items), nil
}

// PopPoolKey claims the oldest unclaimed pool key within tx. The claim is
// optimistic: the UPDATE is guarded on claimed=false, and a lost race moves
// on to the next candidate. Returns ErrPoolEmpty when no keys remain.
func (s *Service) PopPoolKey(ctx context.Context, tx *gorm.DB, accountID, policyID string) (string, error) {
	items := s.items.WithTrx(tx)

	for attempt := 0; attempt < 3; attempt++ {
		item, err := items.FindOne(ctx, &PoolItem{AccountID: accountID, PolicyID: policyID},
			option.WithOrder("id ASC"),
			option.WithLockForUpdate(),
			func(q *gorm.DB) *gorm.DB { return q.Where("claimed = ?", false) },
		)
		if err != nil {
			return "", err
		}
		if item == nil {
			return "", ErrPoolEmpty
		}

		now := time.Now()
		res := tx.WithContext(ctx).Model(&PoolItem{}).
			Where("id = ? AND claimed = ?", item.ID, false).
			Updates(map[string]interface{}{"claimed": true, "claimed_at": now})
		if res.Error != nil {
			return "", res.Error
		}
		if res.RowsAffected == 1 {
			return item.Key, nil
		}
	}

	return "", ErrPoolEmpty
}

// PoolSize counts unclaimed keys remaining in the policy's pool.
func (s *Service) PoolSize(ctx context.Context, accountID, policyID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&PoolItem{}).
		Where("account_id = ? AND policy_id = ? AND claimed = ?", accountID, policyID, false).
		Count(&count).Error
	return count, err
}
