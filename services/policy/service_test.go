package policy

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"licensing-controlplane/services/testutil"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &Policy{}, &PoolItem{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node}), db
}

func TestCreatePolicyValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreatePolicy(ctx, CreatePolicyParams{})
	require.Error(t, err)

	bogus := "RSA_1024_PKCS1_SIGN"
	_, err = svc.CreatePolicy(ctx, CreatePolicyParams{AccountID: "acct-1", Scheme: &bogus})
	require.Error(t, err)

	negative := int64(-1)
	_, err = svc.CreatePolicy(ctx, CreatePolicyParams{AccountID: "acct-1", Duration: &negative})
	require.Error(t, err)
}

func TestCreateAndGetPolicy(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	schemeID := "ED25519_SIGN"
	duration := int64(3600)
	created, err := svc.CreatePolicy(ctx, CreatePolicyParams{
		AccountID:                 "acct-1",
		ProductID:                 "prod-1",
		Name:                      "pro",
		Scheme:                    &schemeID,
		Duration:                  &duration,
		ExpireFromFirstValidation: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := svc.GetPolicy(ctx, "acct-1", created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.True(t, got.ExpireFromFirstValidation)

	id, ok := got.SchemeID()
	require.True(t, ok)
	require.Equal(t, schemeID, string(id))

	d, ok := got.ExpiryDuration()
	require.True(t, ok)
	require.Equal(t, time.Hour, d)

	// Scoped to the owning account.
	_, err = svc.GetPolicy(ctx, "acct-2", created.ID)
	require.Error(t, err)
}

func TestGetPolicyCaches(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreatePolicy(ctx, CreatePolicyParams{AccountID: "acct-1", Name: "standard"})
	require.NoError(t, err)

	_, err = svc.GetPolicy(ctx, "acct-1", created.ID)
	require.NoError(t, err)

	// A direct row change is not visible until the entry is invalidated.
	require.NoError(t, db.Model(&Policy{}).Where("id = ?", created.ID).Update("name", "renamed").Error)

	got, err := svc.GetPolicy(ctx, "acct-1", created.ID)
	require.NoError(t, err)
	require.Equal(t, "standard", got.Name)

	svc.cache.Invalidate(CacheKey{AccountID: "acct-1", PolicyID: created.ID})
	got, err = svc.GetPolicy(ctx, "acct-1", created.ID)
	require.NoError(t, err)
	require.Equal(t, "renamed", got.Name)
}

func TestPoolLifecycle(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.PushPoolKeys(ctx, "acct-1", "pol-1", nil)
	require.Error(t, err)

	n, err := svc.PushPoolKeys(ctx, "acct-1", "pol-1", []string{"KEY-A", "", "KEY-B"})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	size, err := svc.PoolSize(ctx, "acct-1", "pol-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, size)

	// Pops claim in insertion order and never hand out a key twice.
	key, err := svc.PopPoolKey(ctx, db, "acct-1", "pol-1")
	require.NoError(t, err)
	require.Equal(t, "KEY-A", key)

	key, err = svc.PopPoolKey(ctx, db, "acct-1", "pol-1")
	require.NoError(t, err)
	require.Equal(t, "KEY-B", key)

	_, err = svc.PopPoolKey(ctx, db, "acct-1", "pol-1")
	require.ErrorIs(t, err, ErrPoolEmpty)

	size, err = svc.PoolSize(ctx, "acct-1", "pol-1")
	require.NoError(t, err)
	require.Zero(t, size)

	// Claimed rows remain for audit.
	var total int64
	require.NoError(t, db.Model(&PoolItem{}).Count(&total).Error)
	require.EqualValues(t, 2, total)
}

func TestPoolScopedByPolicy(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.PushPoolKeys(ctx, "acct-1", "pol-1", []string{"KEY-A"})
	require.NoError(t, err)

	_, err = svc.PopPoolKey(ctx, db, "acct-1", "pol-2")
	require.ErrorIs(t, err, ErrPoolEmpty)

	_, err = svc.PopPoolKey(ctx, db, "acct-2", "pol-1")
	require.ErrorIs(t, err, ErrPoolEmpty)
}
