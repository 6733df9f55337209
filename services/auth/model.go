package auth

import "time"

// BearerType tags the identity a credential resolved to.
type BearerType string

const (
	BearerAnonymous BearerType = "anonymous"
	BearerUser      BearerType = "user"
	BearerLicense   BearerType = "license"
)

// Token is an opaque API token. Only the SHA-256 digest of the secret is
// stored; the raw secret exists in memory at issuance time and is returned
// to the caller exactly once.
type Token struct {
	ID         string     `gorm:"column:id;primaryKey" json:"id"`
	AccountID  string     `gorm:"column:account_id;index;not null" json:"account_id"`
	BearerType BearerType `gorm:"column:bearer_type;not null" json:"bearer_type"`
	BearerID   string     `gorm:"column:bearer_id;index;not null" json:"bearer_id"`
	Digest     string     `gorm:"column:digest;uniqueIndex;not null" json:"-"`
	Name       *string    `gorm:"column:name" json:"name,omitempty"`
	ExpiresAt  *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`
	RevokedAt  *time.Time `gorm:"column:revoked_at" json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (t *Token) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

func (t *Token) Revoked() bool {
	return t.RevokedAt != nil
}
