package account

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"github.com/google/uuid"
)

const rsaKeyBits = 2048

// GenerateKeyPair provisions fresh RSA-2048 and Ed25519 material for an
// account. Called once, when the account is created.
func GenerateKeyPair(accountID string) (*KeyPair, error) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(rsaKey),
	})
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&rsaKey.PublicKey),
	})

	return &KeyPair{
		ID:               uuid.NewString(),
		AccountID:        accountID,
		PrivateKeyPEM:    string(privPEM),
		PublicKeyPEM:     string(pubPEM),
		Ed25519Seed:      base64.RawURLEncoding.EncodeToString(priv.Seed()),
		Ed25519PublicKey: base64.RawURLEncoding.EncodeToString(pub),
	}, nil
}

// RSAPrivateKey parses the persisted PKCS#1 private key.
func (kp *KeyPair) RSAPrivateKey() (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(kp.PrivateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("keypair %s: no PEM block in private key", kp.ID)
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

// RSAPublicKey parses the persisted PKCS#1 public key.
func (kp *KeyPair) RSAPublicKey() (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(kp.PublicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("keypair %s: no PEM block in public key", kp.ID)
	}
	return x509.ParsePKCS1PublicKey(block.Bytes)
}

// Ed25519PrivateKey expands the persisted seed into a signing key.
func (kp *KeyPair) Ed25519PrivateKey() (ed25519.PrivateKey, error) {
	seed, err := base64.RawURLEncoding.DecodeString(kp.Ed25519Seed)
	if err != nil {
		return nil, fmt.Errorf("keypair %s: decode ed25519 seed: %w", kp.ID, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keypair %s: ed25519 seed has %d bytes", kp.ID, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// Ed25519Public decodes the persisted public key.
func (kp *KeyPair) Ed25519Public() (ed25519.PublicKey, error) {
	pub, err := base64.RawURLEncoding.DecodeString(kp.Ed25519PublicKey)
	if err != nil {
		return nil, fmt.Errorf("keypair %s: decode ed25519 public key: %w", kp.ID, err)
	}
	return ed25519.PublicKey(pub), nil
}
