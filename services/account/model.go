package account

import "time"

type Account struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	Slug      string    `gorm:"column:slug;uniqueIndex" json:"slug"`
	Name      string    `gorm:"column:name" json:"name"`
	Protected bool      `gorm:"column:protected" json:"protected"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`

	KeyPair *KeyPair `gorm:"foreignKey:AccountID" json:"key_pair,omitempty"`
}

type User struct {
	ID        string     `gorm:"column:id;primaryKey" json:"id"`
	AccountID string     `gorm:"column:account_id;index;not null" json:"account_id"`
	Email     string     `gorm:"column:email;index" json:"email"`
	BannedAt  *time.Time `gorm:"column:banned_at" json:"banned_at,omitempty"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

// Banned reports whether the user is currently banned.
func (u *User) Banned() bool {
	return u != nil && u.BannedAt != nil
}

// KeyPair holds the per-account signing material: an RSA-2048 key pair and an
// Ed25519 seed. The issuance engine only reads it. Private material never
// serializes to API responses.
type KeyPair struct {
	ID               string    `gorm:"column:id;primaryKey" json:"id"`
	AccountID        string    `gorm:"column:account_id;uniqueIndex;not null" json:"account_id"`
	PrivateKeyPEM    string    `gorm:"column:private_key_pem;type:text" json:"-"`
	PublicKeyPEM     string    `gorm:"column:public_key_pem;type:text" json:"public_key_pem"`
	Ed25519Seed      string    `gorm:"column:ed25519_seed" json:"-"`
	Ed25519PublicKey string    `gorm:"column:ed25519_public_key" json:"ed25519_public_key"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
}
