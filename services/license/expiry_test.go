package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"licensing-controlplane/services/policy"
)

func durationPolicy(seconds int64) *policy.Policy {
	return &policy.Policy{ID: "pol-1", Duration: &seconds}
}

func TestApplyTriggerAssignsOnce(t *testing.T) {
	now := time.Now()
	pol := durationPolicy(3600)
	pol.ExpireFromFirstValidation = true

	lic := &License{}
	require.True(t, ApplyTrigger(lic, pol, TriggerFirstValidation, now))
	require.NotNil(t, lic.Expiry)
	require.Equal(t, now.Add(time.Hour), *lic.Expiry)

	// A later trigger observes the set expiry and does nothing, even with
	// a different clock.
	require.False(t, ApplyTrigger(lic, pol, TriggerFirstValidation, now.Add(time.Minute)))
	require.Equal(t, now.Add(time.Hour), *lic.Expiry)
}

func TestApplyTriggerFirstSatisfiedWins(t *testing.T) {
	now := time.Now()
	pol := durationPolicy(60)
	pol.ExpireFromFirstValidation = true
	pol.ExpireFromFirstUse = true

	lic := &License{}
	require.True(t, ApplyTrigger(lic, pol, TriggerFirstUse, now))
	require.False(t, ApplyTrigger(lic, pol, TriggerFirstValidation, now.Add(time.Second)))
	require.Equal(t, now.Add(time.Minute), *lic.Expiry)
}

func TestApplyTriggerGates(t *testing.T) {
	now := time.Now()

	// Trigger not enabled on the policy.
	pol := durationPolicy(60)
	lic := &License{}
	require.False(t, ApplyTrigger(lic, pol, TriggerFirstActivation, now))
	require.Nil(t, lic.Expiry)

	// Enabled but no duration configured.
	pol = &policy.Policy{ID: "pol-2", ExpireFromCreation: true}
	require.False(t, ApplyTrigger(lic, pol, TriggerCreation, now))
	require.Nil(t, lic.Expiry)

	// Zero duration counts as absent.
	zero := int64(0)
	pol = &policy.Policy{ID: "pol-3", Duration: &zero, ExpireFromCreation: true}
	require.False(t, ApplyTrigger(lic, pol, TriggerCreation, now))
	require.Nil(t, lic.Expiry)
}

func TestRenewExtendsFromExpiry(t *testing.T) {
	now := time.Now()
	pol := durationPolicy(3600)

	expiry := now.Add(30 * time.Minute)
	lic := &License{Expiry: &expiry}
	require.True(t, Renew(lic, pol, now))
	require.Equal(t, expiry.Add(time.Hour), *lic.Expiry)
}

func TestRenewStartsFromNowWhenUnset(t *testing.T) {
	now := time.Now()
	pol := durationPolicy(3600)

	lic := &License{}
	require.True(t, Renew(lic, pol, now))
	require.Equal(t, now.Add(time.Hour), *lic.Expiry)
}

func TestRenewWithoutDuration(t *testing.T) {
	lic := &License{}
	require.False(t, Renew(lic, &policy.Policy{ID: "pol-1"}, time.Now()))
	require.Nil(t, lic.Expiry)
}

func TestTransferResetsExpiry(t *testing.T) {
	now := time.Now()
	old := now.Add(-time.Hour)

	pol := durationPolicy(7200)
	pol.TransferResetsExpiry = true

	lic := &License{PolicyID: "pol-old", Expiry: &old}
	Transfer(lic, pol, now)
	require.Equal(t, pol.ID, lic.PolicyID)
	require.Equal(t, now.Add(2*time.Hour), *lic.Expiry)
}

func TestTransferClearsExpiry(t *testing.T) {
	now := time.Now()
	old := now.Add(time.Hour)

	// Reset not requested.
	pol := durationPolicy(7200)
	lic := &License{PolicyID: "pol-old", Expiry: &old}
	Transfer(lic, pol, now)
	require.Nil(t, lic.Expiry)

	// Reset requested but the new policy has no duration.
	pol = &policy.Policy{ID: "pol-2", TransferResetsExpiry: true}
	lic = &License{PolicyID: "pol-old", Expiry: &old}
	Transfer(lic, pol, now)
	require.Equal(t, "pol-2", lic.PolicyID)
	require.Nil(t, lic.Expiry)
}

func TestTriggerKindString(t *testing.T) {
	require.Equal(t, "creation", TriggerCreation.String())
	require.Equal(t, "first_download", TriggerFirstDownload.String())
	require.Equal(t, "unknown", TriggerKind(99).String())
}
