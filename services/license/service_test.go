package license

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"licensing-controlplane/pkg/config"
	"licensing-controlplane/pkg/db/pagination"
	"licensing-controlplane/pkg/repository"
	"licensing-controlplane/services/account"
	"licensing-controlplane/services/policy"
	"licensing-controlplane/services/testutil"
)

type captureEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (c *captureEnqueuer) Enqueue(ctx context.Context, t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, t)
	return &asynq.TaskInfo{}, nil
}

func (c *captureEnqueuer) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.tasks))
	for _, t := range c.tasks {
		out = append(out, t.Type())
	}
	return out
}

type serviceFixture struct {
	svc      *Service
	db       *gorm.DB
	enqueuer *captureEnqueuer
	accounts *account.Service
	policies *policy.Service
	acct     *account.Account
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&account.Account{}, &account.User{}, &account.KeyPair{},
		&policy.Policy{}, &policy.PoolItem{},
		&License{},
	)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Crypto.LegacyKeySecret = "service-test-secret"

	accounts := account.NewService(account.ServiceParams{DB: db})
	policies := policy.NewService(policy.ServiceParams{DB: db, Node: node})
	enqueuer := &captureEnqueuer{}

	svc := &Service{
		db:       db,
		cfg:      cfg,
		enqueuer: enqueuer,
		issuer:   &Issuer{policies: policies, cfg: cfg},
		policies: policies,
		accounts: accounts,
		repo:     repository.ProvideStore[License](db),
	}

	acct, err := accounts.CreateAccount(context.Background(), account.CreateAccountParams{Slug: "acme"})
	require.NoError(t, err)

	return &serviceFixture{svc: svc, db: db, enqueuer: enqueuer, accounts: accounts, policies: policies, acct: acct}
}

func (f *serviceFixture) createPolicy(t *testing.T, params policy.CreatePolicyParams) *policy.Policy {
	t.Helper()
	params.AccountID = f.acct.ID
	if params.Name == "" {
		params.Name = "standard"
	}
	pol, err := f.policies.CreatePolicy(context.Background(), params)
	require.NoError(t, err)
	return pol
}

func TestCreateLicensePlain(t *testing.T) {
	f := newServiceFixture(t)
	pol := f.createPolicy(t, policy.CreatePolicyParams{})

	lic, raw, err := f.svc.CreateLicense(context.Background(), CreateLicenseParams{
		AccountID: f.acct.ID,
		PolicyID:  pol.ID,
	})
	require.NoError(t, err)
	require.Empty(t, raw)
	require.NotNil(t, lic.Key)
	require.Regexp(t, plainKeyPattern, *lic.Key)

	got, err := f.svc.GetLicense(context.Background(), f.acct.ID, lic.ID)
	require.NoError(t, err)
	require.Equal(t, *lic.Key, *got.Key)
}

func TestCreateLicenseMetadataLimit(t *testing.T) {
	f := newServiceFixture(t)
	pol := f.createPolicy(t, policy.CreatePolicyParams{})

	metadata := map[string]interface{}{}
	for i := 0; i < MaxMetadataKeys+1; i++ {
		metadata[string(rune('a'+i%26))+string(rune('a'+i/26))] = i
	}

	_, _, err := f.svc.CreateLicense(context.Background(), CreateLicenseParams{
		AccountID: f.acct.ID,
		PolicyID:  pol.ID,
		Metadata:  metadata,
	})
	require.Error(t, err)
}

func TestCreateLicenseLegacyNotPersisted(t *testing.T) {
	f := newServiceFixture(t)
	pol := f.createPolicy(t, policy.CreatePolicyParams{Encrypted: true})

	lic, raw, err := f.svc.CreateLicense(context.Background(), CreateLicenseParams{
		AccountID: f.acct.ID,
		PolicyID:  pol.ID,
	})
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.NotEqual(t, raw, *lic.Key)

	// Only the encrypted form ever reaches the database.
	var stored License
	require.NoError(t, f.db.First(&stored, "id = ?", lic.ID).Error)
	require.NotEqual(t, raw, *stored.Key)
	require.Equal(t, DigestKey(raw), *stored.KeyDigest)
}

func TestCreateLicensePoolEmptyAborts(t *testing.T) {
	f := newServiceFixture(t)
	pol := f.createPolicy(t, policy.CreatePolicyParams{UsePool: true})

	_, _, err := f.svc.CreateLicense(context.Background(), CreateLicenseParams{
		AccountID: f.acct.ID,
		PolicyID:  pol.ID,
	})
	var ie *IssueError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, FailurePoolEmpty, ie.Failure)

	// The aborted creation left no row behind.
	var count int64
	require.NoError(t, f.db.Model(&License{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestValidateRecordsAndPublishes(t *testing.T) {
	f := newServiceFixture(t)
	pol := f.createPolicy(t, policy.CreatePolicyParams{})

	lic, _, err := f.svc.CreateLicense(context.Background(), CreateLicenseParams{
		AccountID: f.acct.ID,
		PolicyID:  pol.ID,
	})
	require.NoError(t, err)

	result, err := f.svc.Validate(context.Background(), f.acct.ID, lic.ID)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, StatusActive, result.Status)
	require.Contains(t, f.enqueuer.types(), TaskLicenseValidated)

	got, err := f.svc.GetLicense(context.Background(), f.acct.ID, lic.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastValidatedAt)
}

func TestValidateSuspendedLicense(t *testing.T) {
	f := newServiceFixture(t)
	pol := f.createPolicy(t, policy.CreatePolicyParams{})

	lic, _, err := f.svc.CreateLicense(context.Background(), CreateLicenseParams{
		AccountID: f.acct.ID,
		PolicyID:  pol.ID,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Suspend(context.Background(), f.acct.ID, lic.ID))

	result, err := f.svc.Validate(context.Background(), f.acct.ID, lic.ID)
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, StatusSuspended, result.Status)

	require.NoError(t, f.svc.Reinstate(context.Background(), f.acct.ID, lic.ID))
	result, err = f.svc.Validate(context.Background(), f.acct.ID, lic.ID)
	require.NoError(t, err)
	require.True(t, result.Valid)
}

func TestIncrementUsageGuard(t *testing.T) {
	f := newServiceFixture(t)
	pol := f.createPolicy(t, policy.CreatePolicyParams{})
	ctx := context.Background()

	max := int64(2)
	lic, _, err := f.svc.CreateLicense(ctx, CreateLicenseParams{
		AccountID: f.acct.ID,
		PolicyID:  pol.ID,
		MaxUses:   &max,
	})
	require.NoError(t, err)

	for i := int64(1); i <= max; i++ {
		got, err := f.svc.IncrementUsage(ctx, f.acct.ID, lic.ID)
		require.NoError(t, err)
		require.Equal(t, i, got.Uses)
	}

	_, err = f.svc.IncrementUsage(ctx, f.acct.ID, lic.ID)
	require.Error(t, err)

	require.Contains(t, f.enqueuer.types(), TaskLicenseUsageIncremented)
}

func TestLookupByKey(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	plainPol := f.createPolicy(t, policy.CreatePolicyParams{})
	plain, _, err := f.svc.CreateLicense(ctx, CreateLicenseParams{AccountID: f.acct.ID, PolicyID: plainPol.ID})
	require.NoError(t, err)

	legacyPol := f.createPolicy(t, policy.CreatePolicyParams{Name: "legacy", Encrypted: true})
	legacy, raw, err := f.svc.CreateLicense(ctx, CreateLicenseParams{AccountID: f.acct.ID, PolicyID: legacyPol.ID})
	require.NoError(t, err)

	got, err := f.svc.LookupByKey(ctx, *plain.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, plain.ID, got.ID)

	// Legacy keys resolve through the embedded license id and digest.
	got, err = f.svc.LookupByKey(ctx, raw)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, legacy.ID, got.ID)

	// A tampered legacy key resolves no license.
	tampered := "00000000" + raw[8:]
	got, err = f.svc.LookupByKey(ctx, tampered)
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = f.svc.LookupByKey(ctx, "NO-SUCH-KEY")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRenewAndTransfer(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	duration := int64(3600)
	pol := f.createPolicy(t, policy.CreatePolicyParams{Duration: &duration, ExpireFromCreation: true})

	lic, _, err := f.svc.CreateLicense(ctx, CreateLicenseParams{AccountID: f.acct.ID, PolicyID: pol.ID})
	require.NoError(t, err)
	require.NotNil(t, lic.Expiry)
	firstExpiry := *lic.Expiry

	renewed, err := f.svc.Renew(ctx, f.acct.ID, lic.ID)
	require.NoError(t, err)
	require.Equal(t, firstExpiry.Add(time.Hour).Unix(), renewed.Expiry.Unix())

	// Transfer to a policy that does not reset clears the expiry.
	plainPol := f.createPolicy(t, policy.CreatePolicyParams{Name: "plain"})
	moved, err := f.svc.TransferLicense(ctx, f.acct.ID, lic.ID, plainPol.ID)
	require.NoError(t, err)
	require.Equal(t, plainPol.ID, moved.PolicyID)
	require.Nil(t, moved.Expiry)

	// Transfer to a resetting policy re-times from now.
	resetPol := f.createPolicy(t, policy.CreatePolicyParams{Name: "reset", Duration: &duration, TransferResetsExpiry: true})
	moved, err = f.svc.TransferLicense(ctx, f.acct.ID, lic.ID, resetPol.ID)
	require.NoError(t, err)
	require.NotNil(t, moved.Expiry)
}

func TestRenewWithoutDurationFails(t *testing.T) {
	f := newServiceFixture(t)
	pol := f.createPolicy(t, policy.CreatePolicyParams{})

	lic, _, err := f.svc.CreateLicense(context.Background(), CreateLicenseParams{AccountID: f.acct.ID, PolicyID: pol.ID})
	require.NoError(t, err)

	_, err = f.svc.Renew(context.Background(), f.acct.ID, lic.ID)
	require.Error(t, err)
}

func TestRevoke(t *testing.T) {
	f := newServiceFixture(t)
	pol := f.createPolicy(t, policy.CreatePolicyParams{})
	ctx := context.Background()

	lic, _, err := f.svc.CreateLicense(ctx, CreateLicenseParams{AccountID: f.acct.ID, PolicyID: pol.ID})
	require.NoError(t, err)

	require.NoError(t, f.svc.Revoke(ctx, f.acct.ID, lic.ID))

	_, err = f.svc.GetLicense(ctx, f.acct.ID, lic.ID)
	require.Error(t, err)
}

func TestListLicensesPagination(t *testing.T) {
	f := newServiceFixture(t)
	pol := f.createPolicy(t, policy.CreatePolicyParams{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := f.svc.CreateLicense(ctx, CreateLicenseParams{AccountID: f.acct.ID, PolicyID: pol.ID})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	page, info, err := f.svc.ListLicenses(ctx, f.acct.ID, pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.True(t, info.HasMore)
	require.NotEmpty(t, info.NextCursor)

	rest, info, err := f.svc.ListLicenses(ctx, f.acct.ID, pagination.Pagination{Limit: 2, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.False(t, info.HasMore)
}

func TestActivatePublishesMachineEvent(t *testing.T) {
	f := newServiceFixture(t)
	pol := f.createPolicy(t, policy.CreatePolicyParams{})
	ctx := context.Background()

	lic, _, err := f.svc.CreateLicense(ctx, CreateLicenseParams{AccountID: f.acct.ID, PolicyID: pol.ID})
	require.NoError(t, err)

	require.Error(t, f.svc.Activate(ctx, f.acct.ID, lic.ID, ""))
	require.NoError(t, f.svc.Activate(ctx, f.acct.ID, lic.ID, "fp-1"))
	require.Contains(t, f.enqueuer.types(), TaskMachineCreated)

	require.Error(t, f.svc.PublishDownload(ctx, f.acct.ID, lic.ID, "machine:created"))
	require.NoError(t, f.svc.PublishDownload(ctx, f.acct.ID, lic.ID, TaskReleaseUpgraded))
	require.Contains(t, f.enqueuer.types(), TaskReleaseUpgraded)
}
