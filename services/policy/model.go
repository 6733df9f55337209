package policy

import (
	"time"

	"licensing-controlplane/services/scheme"
)

// Policy configures how licenses under it are issued and when they expire.
// Read-only to the issuance and expiry machinery.
type Policy struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	AccountID string    `gorm:"column:account_id;index;not null" json:"account_id"`
	ProductID string    `gorm:"column:product_id;index" json:"product_id,omitempty"`
	Name      string    `gorm:"column:name" json:"name"`
	Scheme    *string   `gorm:"column:scheme" json:"scheme,omitempty"`
	Encrypted bool      `gorm:"column:encrypted" json:"encrypted"`
	UsePool   bool      `gorm:"column:use_pool" json:"use_pool"`
	Duration  *int64    `gorm:"column:duration" json:"duration,omitempty"`
	MaxUses   *int64    `gorm:"column:max_uses" json:"max_uses,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`

	// The five expiry trigger gates are independent booleans, not an enum.
	// When several are true the first satisfied event wins, because expiry
	// is only ever assigned while it is still null.
	ExpireFromCreation        bool `gorm:"column:expire_from_creation" json:"expire_from_creation"`
	ExpireFromFirstValidation bool `gorm:"column:expire_from_first_validation" json:"expire_from_first_validation"`
	ExpireFromFirstActivation bool `gorm:"column:expire_from_first_activation" json:"expire_from_first_activation"`
	ExpireFromFirstUse        bool `gorm:"column:expire_from_first_use" json:"expire_from_first_use"`
	ExpireFromFirstDownload   bool `gorm:"column:expire_from_first_download" json:"expire_from_first_download"`

	// TransferResetsExpiry re-times a transferred license against this
	// policy's duration instead of clearing its expiry.
	TransferResetsExpiry bool `gorm:"column:transfer_resets_expiry" json:"transfer_resets_expiry"`
}

// SchemeID returns the configured key scheme, if any.
func (p *Policy) SchemeID() (scheme.ID, bool) {
	if p.Scheme == nil || *p.Scheme == "" {
		return "", false
	}
	return scheme.ID(*p.Scheme), true
}

// ExpiryDuration returns the configured duration, if present and positive.
func (p *Policy) ExpiryDuration() (time.Duration, bool) {
	if p.Duration == nil || *p.Duration <= 0 {
		return 0, false
	}
	return time.Duration(*p.Duration) * time.Second, true
}

// PoolItem is a pre-provisioned key awaiting assignment to a license.
type PoolItem struct {
	ID        string     `gorm:"column:id;primaryKey" json:"id"`
	AccountID string     `gorm:"column:account_id;index;not null" json:"account_id"`
	PolicyID  string     `gorm:"column:policy_id;index;not null" json:"policy_id"`
	Key       string     `gorm:"column:key;not null" json:"-"`
	Claimed   bool       `gorm:"column:claimed;default:false" json:"claimed"`
	ClaimedAt *time.Time `gorm:"column:claimed_at" json:"claimed_at,omitempty"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
}
