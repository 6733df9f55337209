package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"licensing-controlplane/services/account"
)

func TestStatusPriority(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	soon := now.Add(24 * time.Hour)
	far := now.Add(365 * 24 * time.Hour)
	bannedAt := now.Add(-time.Minute)

	tests := []struct {
		name string
		lic  License
		want Status
	}{
		{
			name: "banned outranks everything",
			lic: License{
				User:      &account.User{BannedAt: &bannedAt},
				Suspended: true,
				Expiry:    &past,
				CreatedAt: now,
			},
			want: StatusBanned,
		},
		{
			name: "suspended outranks expired",
			lic:  License{Suspended: true, Expiry: &past, CreatedAt: now},
			want: StatusSuspended,
		},
		{
			name: "expired",
			lic:  License{Expiry: &past, CreatedAt: now},
			want: StatusExpired,
		},
		{
			name: "expiring inside the window",
			lic:  License{Expiry: &soon, CreatedAt: now},
			want: StatusExpiring,
		},
		{
			name: "inactive when nothing happened inside the window",
			lic:  License{CreatedAt: now.Add(-200 * 24 * time.Hour)},
			want: StatusInactive,
		},
		{
			name: "recent validation keeps it active",
			lic: License{
				CreatedAt:       now.Add(-200 * 24 * time.Hour),
				LastValidatedAt: &past,
				Expiry:          &far,
			},
			want: StatusActive,
		},
		{
			name: "fresh license is active",
			lic:  License{CreatedAt: now},
			want: StatusActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.lic.StatusAt(now, DefaultActivityWindow))
		})
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	require.False(t, (&License{}).Expired(now))
	require.False(t, (&License{Expiry: &future}).Expired(now))
	require.True(t, (&License{Expiry: &past}).Expired(now))
}

func TestBannedWithoutOwner(t *testing.T) {
	require.False(t, (&License{}).Banned())
}
