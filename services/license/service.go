package license

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"licensing-controlplane/pkg/config"
	"licensing-controlplane/pkg/db/option"
	"licensing-controlplane/pkg/db/pagination"
	"licensing-controlplane/pkg/errutil"
	"licensing-controlplane/pkg/repository"
	"licensing-controlplane/pkg/task"
	"licensing-controlplane/services/account"
	"licensing-controlplane/services/policy"
)

type Service struct {
	db       *gorm.DB
	cfg      *config.Config
	enqueuer task.Enqueuer
	issuer   *Issuer
	policies *policy.Service
	accounts *account.Service
	repo     repository.Repository[License]
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Cfg      *config.Config
	Enqueuer task.Enqueuer
	Issuer   *Issuer
	Policies *policy.Service
	Accounts *account.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		cfg:      p.Cfg,
		enqueuer: p.Enqueuer,
		issuer:   p.Issuer,
		policies: p.Policies,
		accounts: p.Accounts,
		repo:     repository.ProvideStore[License](p.DB),
	}
}

type CreateLicenseParams struct {
	AccountID string
	PolicyID  string
	UserID    *string
	GroupID   *string

	// Key optionally pre-assigns a key pattern; template tokens in it are
	// expanded before the value is used as the signing seed.
	Key *string

	MaxUses   *int64
	Protected bool
	Metadata  map[string]interface{}
}

// CreateLicense runs the issuance pipeline and persists the license in one
// transaction. A failed issuance aborts the creation; no license row with a
// null key is ever visible outside the transaction. The returned string is
// the one-time-display raw key for the legacy encrypted scheme.
func (s *Service) CreateLicense(ctx context.Context, params CreateLicenseParams) (*License, string, error) {
	if params.AccountID == "" || params.PolicyID == "" {
		return nil, "", errutil.ValidationFailed("account_id and policy_id are required")
	}
	if len(params.Metadata) > MaxMetadataKeys {
		return nil, "", errutil.ValidationFailed("metadata exceeds the maximum key count")
	}

	acct, err := s.accounts.GetAccount(ctx, params.AccountID)
	if err != nil {
		return nil, "", err
	}

	pol, err := s.policies.GetPolicy(ctx, params.AccountID, params.PolicyID)
	if err != nil {
		return nil, "", err
	}

	if _, ok := pol.SchemeID(); ok && acct.KeyPair == nil {
		return nil, "", errutil.UnprocessableEntity("account has no key pair provisioned")
	}

	var user *account.User
	if params.UserID != nil {
		user, err = s.accounts.GetUser(ctx, params.AccountID, *params.UserID)
		if err != nil {
			return nil, "", err
		}
	}

	maxUses := params.MaxUses
	if maxUses == nil {
		maxUses = pol.MaxUses
	}

	lic := &License{
		AccountID: params.AccountID,
		PolicyID:  params.PolicyID,
		UserID:    params.UserID,
		GroupID:   params.GroupID,
		Key:       params.Key,
		MaxUses:   maxUses,
		Protected: params.Protected,
		Metadata:  datatypes.JSONMap(params.Metadata),
	}

	var raw string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		in := &issueInput{
			License: lic,
			Policy:  pol,
			Account: acct,
			KeyPair: acct.KeyPair,
			User:    user,
			Now:     time.Now(),
		}

		raw, err = s.issuer.Issue(ctx, tx, in)
		if err != nil {
			return err
		}

		return s.repo.WithTrx(tx).Create(ctx, lic)
	})
	if err != nil {
		if _, ok := err.(*IssueError); ok {
			zap.L().Warn("license issuance failed",
				zap.String("account_id", params.AccountID),
				zap.String("policy_id", params.PolicyID),
				zap.Error(err))
			return nil, "", err
		}
		return nil, "", errutil.Internal("failed to create license", errutil.WithErr(err))
	}

	lic.User = user
	return lic, raw, nil
}

// GetLicense loads a license with its owning user.
func (s *Service) GetLicense(ctx context.Context, accountID, licenseID string) (*License, error) {
	lic, err := s.repo.FindOne(ctx, &License{ID: licenseID, AccountID: accountID}, option.WithPreload("User"))
	if err != nil {
		return nil, errutil.Internal("failed to look up license", errutil.WithErr(err))
	}
	if lic == nil {
		return nil, errutil.NotFound("license not found")
	}
	return lic, nil
}

// ListLicenses returns a cursor-paginated page of the account's licenses.
func (s *Service) ListLicenses(ctx context.Context, accountID string, page pagination.Pagination) ([]*License, *pagination.PageInfo, error) {
	licenses, err := s.repo.Find(ctx, &License{AccountID: accountID},
		option.WithPreload("User"),
		option.ApplyPagination(page),
	)
	if err != nil {
		return nil, nil, errutil.Internal("failed to list licenses", errutil.WithErr(err))
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 10
	}
	licenses, info := pagination.BuildCursorPageInfo(licenses, limit, func(l *License) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt.UTC().Format(time.RFC3339Nano), ID: l.ID}
	})
	return licenses, info, nil
}

// LookupByKey resolves a presented key to its license, unscoped: callers own
// the account check. Exact key match first; legacy encrypted keys carry the
// license id in their leading characters and are matched by digest.
func (s *Service) LookupByKey(ctx context.Context, key string) (*License, error) {
	if key == "" {
		return nil, nil
	}

	lic, err := s.repo.FindOne(ctx, &License{Key: &key}, option.WithPreload("User"))
	if err != nil {
		return nil, err
	}
	if lic != nil {
		return lic, nil
	}

	id, ok := LegacyKeyLicenseID(key)
	if !ok {
		return nil, nil
	}

	lic, err = s.repo.FindOne(ctx, &License{ID: id}, option.WithPreload("User"))
	if err != nil {
		return nil, err
	}
	if lic == nil || lic.KeyDigest == nil || *lic.KeyDigest != DigestKey(key) {
		return nil, nil
	}
	return lic, nil
}

type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Status Status `json:"status"`
}

// Validate records the validation and publishes the validation event that
// may fire the first-validation expiry trigger. A license is valid unless an
// ownership or time state rules it out.
func (s *Service) Validate(ctx context.Context, accountID, licenseID string) (*ValidationResult, error) {
	lic, err := s.GetLicense(ctx, accountID, licenseID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.repo.Update(ctx, lic.ID, map[string]interface{}{
		"last_validated_at": now,
		"updated_at":        now,
	}); err != nil {
		return nil, errutil.Internal("failed to record validation", errutil.WithErr(err))
	}
	lic.LastValidatedAt = &now

	s.publish(ctx, TaskLicenseValidated, accountID, lic.ID)

	status := lic.StatusAt(now, s.activityWindow())
	return &ValidationResult{
		Valid:  status != StatusBanned && status != StatusSuspended && status != StatusExpired,
		Status: status,
	}, nil
}

// CheckIn records a heartbeat from the license holder.
func (s *Service) CheckIn(ctx context.Context, accountID, licenseID string) (*License, error) {
	lic, err := s.GetLicense(ctx, accountID, licenseID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.repo.Update(ctx, lic.ID, map[string]interface{}{
		"last_check_in_at": now,
		"updated_at":       now,
	}); err != nil {
		return nil, errutil.Internal("failed to record check-in", errutil.WithErr(err))
	}
	lic.LastCheckInAt = &now
	return lic, nil
}

// IncrementUsage bumps the use counter, guarded against max_uses, and
// publishes the usage event that may fire the first-use trigger.
func (s *Service) IncrementUsage(ctx context.Context, accountID, licenseID string) (*License, error) {
	lic, err := s.GetLicense(ctx, accountID, licenseID)
	if err != nil {
		return nil, err
	}

	res := s.db.WithContext(ctx).Model(&License{}).
		Where("id = ? AND (max_uses IS NULL OR uses < max_uses)", lic.ID).
		Updates(map[string]interface{}{
			"uses":       gorm.Expr("uses + ?", 1),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return nil, errutil.Internal("failed to increment usage", errutil.WithErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, errutil.UnprocessableEntity("license has reached its usage limit")
	}
	lic.Uses++

	s.publish(ctx, TaskLicenseUsageIncremented, accountID, lic.ID)
	return lic, nil
}

// Activate publishes the machine-created event that may fire the
// first-activation trigger. Machine records themselves live outside this
// service.
func (s *Service) Activate(ctx context.Context, accountID, licenseID, fingerprint string) error {
	if fingerprint == "" {
		return errutil.ValidationFailed("fingerprint is required")
	}
	if _, err := s.GetLicense(ctx, accountID, licenseID); err != nil {
		return err
	}

	s.publish(ctx, TaskMachineCreated, accountID, licenseID)
	return nil
}

// PublishDownload publishes a download event that may fire the
// first-download trigger.
func (s *Service) PublishDownload(ctx context.Context, accountID, licenseID, taskType string) error {
	switch taskType {
	case TaskArtifactDownloaded, TaskReleaseDownloaded, TaskReleaseUpgraded:
	default:
		return errutil.ValidationFailed("unknown download event")
	}
	if _, err := s.GetLicense(ctx, accountID, licenseID); err != nil {
		return err
	}

	s.publish(ctx, taskType, accountID, licenseID)
	return nil
}

// Renew adds one policy duration to the license's expiry.
func (s *Service) Renew(ctx context.Context, accountID, licenseID string) (*License, error) {
	lic, err := s.GetLicense(ctx, accountID, licenseID)
	if err != nil {
		return nil, err
	}

	pol, err := s.policies.GetPolicy(ctx, accountID, lic.PolicyID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if !Renew(lic, pol, now) {
		return nil, errutil.UnprocessableEntity("policy has no duration to renew against")
	}

	if err := s.repo.Update(ctx, lic.ID, map[string]interface{}{
		"expiry":     lic.Expiry,
		"updated_at": now,
	}); err != nil {
		return nil, errutil.Internal("failed to renew license", errutil.WithErr(err))
	}
	return lic, nil
}

// TransferLicense moves the license onto a new policy and re-times or clears
// its expiry per the new policy's configuration.
func (s *Service) TransferLicense(ctx context.Context, accountID, licenseID, newPolicyID string) (*License, error) {
	lic, err := s.GetLicense(ctx, accountID, licenseID)
	if err != nil {
		return nil, err
	}

	pol, err := s.policies.GetPolicy(ctx, accountID, newPolicyID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	Transfer(lic, pol, now)

	if err := s.repo.Update(ctx, lic.ID, map[string]interface{}{
		"policy_id":  lic.PolicyID,
		"expiry":     lic.Expiry,
		"updated_at": now,
	}); err != nil {
		return nil, errutil.Internal("failed to transfer license", errutil.WithErr(err))
	}
	return lic, nil
}

func (s *Service) Suspend(ctx context.Context, accountID, licenseID string) error {
	return s.setSuspended(ctx, accountID, licenseID, true)
}

func (s *Service) Reinstate(ctx context.Context, accountID, licenseID string) error {
	return s.setSuspended(ctx, accountID, licenseID, false)
}

func (s *Service) setSuspended(ctx context.Context, accountID, licenseID string, suspended bool) error {
	lic, err := s.GetLicense(ctx, accountID, licenseID)
	if err != nil {
		return err
	}

	if err := s.repo.Update(ctx, lic.ID, map[string]interface{}{
		"suspended":  suspended,
		"updated_at": time.Now(),
	}); err != nil {
		return errutil.Internal("failed to update license", errutil.WithErr(err))
	}
	return nil
}

// Revoke destroys the license.
func (s *Service) Revoke(ctx context.Context, accountID, licenseID string) error {
	lic, err := s.GetLicense(ctx, accountID, licenseID)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, lic.ID); err != nil {
		return errutil.Internal("failed to revoke license", errutil.WithErr(err))
	}
	return nil
}

// ActivityWindow is the inactivity cutoff used by status resolution.
func (s *Service) ActivityWindow() time.Duration {
	return s.activityWindow()
}

func (s *Service) activityWindow() time.Duration {
	if s.cfg != nil && s.cfg.Licensing.ActivityWindow > 0 {
		return s.cfg.Licensing.ActivityWindow
	}
	return DefaultActivityWindow
}

func (s *Service) publish(ctx context.Context, taskType, accountID, licenseID string) {
	if s.enqueuer == nil {
		return
	}

	if _, err := s.enqueuer.Enqueue(ctx, NewEvent(taskType, EventPayload{
		AccountID: accountID,
		LicenseID: licenseID,
	})); err != nil {
		zap.L().Error("failed to publish licensing event",
			zap.String("task_type", taskType),
			zap.String("license_id", licenseID),
			zap.Error(err))
	}
}
