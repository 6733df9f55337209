package license

import (
	"time"

	"gorm.io/datatypes"

	"licensing-controlplane/services/account"
)

// MaxMetadataKeys bounds the metadata object accepted on a license.
const MaxMetadataKeys = 32

type License struct {
	ID        string  `gorm:"column:id;primaryKey" json:"id"`
	AccountID string  `gorm:"column:account_id;uniqueIndex:idx_licenses_account_key;not null" json:"account_id"`
	PolicyID  string  `gorm:"column:policy_id;index;not null" json:"policy_id"`
	UserID    *string `gorm:"column:user_id;index" json:"user_id,omitempty"`
	GroupID   *string `gorm:"column:group_id;index" json:"group_id,omitempty"`

	// Key holds the stored key form: the issued key string for every
	// scheme except legacy encrypted, where it holds the encrypted form
	// and KeyDigest carries the comparison digest.
	Key       *string `gorm:"column:key;uniqueIndex:idx_licenses_account_key" json:"key,omitempty"`
	KeyDigest *string `gorm:"column:key_digest;index" json:"-"`

	Expiry          *time.Time        `gorm:"column:expiry" json:"expiry,omitempty"`
	Suspended       bool              `gorm:"column:suspended" json:"suspended"`
	Uses            int64             `gorm:"column:uses" json:"uses"`
	MaxUses         *int64            `gorm:"column:max_uses" json:"max_uses,omitempty"`
	Protected       bool              `gorm:"column:protected" json:"protected"`
	Metadata        datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	LastValidatedAt *time.Time        `gorm:"column:last_validated_at" json:"last_validated_at,omitempty"`
	LastCheckInAt   *time.Time        `gorm:"column:last_check_in_at" json:"last_check_in_at,omitempty"`
	CreatedAt       time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"column:updated_at" json:"updated_at"`

	User *account.User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
