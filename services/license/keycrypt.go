package license

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const (
	plainKeyCharset    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	plainKeyLength     = 24
	plainKeyGroupWidth = 6

	legacyKeyHexLength  = 64
	legacyKeyGroupWidth = 8
)

// randomPlainKey produces an uppercase alphanumeric key grouped into
// dash-separated blocks, e.g. XXXXXX-XXXXXX-XXXXXX-XXXXXX.
func randomPlainKey() (string, error) {
	b := make([]byte, plainKeyLength)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}

	chars := make([]byte, plainKeyLength)
	for i, v := range b {
		chars[i] = plainKeyCharset[int(v)%len(plainKeyCharset)]
	}
	return groupKey(string(chars), plainKeyGroupWidth), nil
}

// randomLegacyKey produces a hex token with the license id (separators
// stripped) spliced over its leading characters, so the id can be recovered
// from any presented key. The result is dash-grouped into fixed-width blocks.
func randomLegacyKey(licenseID string) (string, error) {
	b := make([]byte, legacyKeyHexLength/2)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}

	token := hex.EncodeToString(b)
	stripped := strings.ReplaceAll(licenseID, "-", "")
	if len(stripped) < len(token) {
		token = stripped + token[len(stripped):]
	} else {
		token = stripped
	}
	return groupKey(token, legacyKeyGroupWidth), nil
}

// LegacyKeyLicenseID recovers the embedded license id from a presented
// legacy key. Returns false when the key is too short to carry one.
func LegacyKeyLicenseID(key string) (string, bool) {
	stripped := strings.ReplaceAll(key, "-", "")
	if len(stripped) < 32 {
		return "", false
	}
	raw := stripped[:32]
	return fmt.Sprintf("%s-%s-%s-%s-%s", raw[0:8], raw[8:12], raw[12:16], raw[16:20], raw[20:32]), true
}

func groupKey(s string, width int) string {
	var b strings.Builder
	for i := 0; i < len(s); i += width {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + width
		if end > len(s) {
			end = len(s)
		}
		b.WriteString(s[i:end])
	}
	return b.String()
}

// DigestKey returns the SHA-256 hex digest used for key comparison without
// storing the raw value.
func DigestKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// encryptKeyAtRest seals a raw key with AES-256-GCM under a key derived from
// the configured secret. Only the sealed form is persisted.
func encryptKeyAtRest(plain string, secret string) (string, error) {
	key := sha256.Sum256([]byte(secret))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", fmt.Errorf("cipher init: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("gcm init: %w", err)
	}
	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce gen: %w", err)
	}
	ciphertext := aesgcm.Seal(nonce, nonce, []byte(plain), nil)
	return hex.EncodeToString(ciphertext), nil
}

// DecryptKeyAtRest recovers a raw legacy key for admin display.
func DecryptKeyAtRest(encHex string, secret string) (string, error) {
	key := sha256.Sum256([]byte(secret))

	data, err := hex.DecodeString(encHex)
	if err != nil {
		return "", fmt.Errorf("invalid hex: %w", err)
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", fmt.Errorf("cipher init: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("gcm init: %w", err)
	}

	nonceSize := aesgcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("invalid ciphertext")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plain, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plain), nil
}
