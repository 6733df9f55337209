package license

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"licensing-controlplane/pkg/config"
	"licensing-controlplane/services/account"
	"licensing-controlplane/services/policy"
	"licensing-controlplane/services/scheme"
)

const jwtIssuer = "urn:licensing-controlplane"

var b64 = base64.RawURLEncoding

// Issuer derives a license key from the policy's configuration. It runs
// exactly once per license, inside the creation transaction; any failure
// aborts the creation.
type Issuer struct {
	policies *policy.Service
	cfg      *config.Config
}

type IssuerParams struct {
	fx.In
	Policies *policy.Service
	Cfg      *config.Config
}

func NewIssuer(p IssuerParams) *Issuer {
	return &Issuer{policies: p.Policies, cfg: p.Cfg}
}

// issueInput carries everything a stage may read or mutate. rawKey holds the
// transient one-time-display secret for the legacy scheme; it is returned to
// the caller and never persisted.
type issueInput struct {
	License *License
	Policy  *policy.Policy
	Account *account.Account
	KeyPair *account.KeyPair
	User    *account.User
	Now     time.Time

	rawKey string
}

type issueStage struct {
	name string
	run  func(ctx context.Context, tx *gorm.DB, in *issueInput) error
}

func (i *Issuer) stages() []issueStage {
	return []issueStage{
		{"finalize_identity", i.finalizeIdentity},
		{"apply_creation_expiry", i.applyCreationExpiry},
		{"derive_key", i.deriveKey},
		{"verify_key", i.verifyKey},
	}
}

// Issue runs the issuance pipeline. The returned string is the transient raw
// key for the legacy encrypted scheme and empty otherwise.
func (i *Issuer) Issue(ctx context.Context, tx *gorm.DB, in *issueInput) (string, error) {
	for _, stage := range i.stages() {
		if err := stage.run(ctx, tx, in); err != nil {
			if ie, ok := err.(*IssueError); ok && ie.Stage == "" {
				ie.Stage = stage.name
			}
			return "", err
		}
	}
	return in.rawKey, nil
}

// finalizeIdentity assigns id and creation timestamp up front: key material
// that embeds them must see their final values.
func (i *Issuer) finalizeIdentity(ctx context.Context, tx *gorm.DB, in *issueInput) error {
	lic := in.License
	if lic.ID == "" {
		lic.ID = uuid.NewString()
	}
	if lic.CreatedAt.IsZero() {
		lic.CreatedAt = in.Now
	}
	if lic.UpdatedAt.IsZero() {
		lic.UpdatedAt = in.Now
	}
	return nil
}

// applyCreationExpiry fires the creation trigger before key derivation so
// seeds and templates observe the final expiry.
func (i *Issuer) applyCreationExpiry(ctx context.Context, tx *gorm.DB, in *issueInput) error {
	ApplyTrigger(in.License, in.Policy, TriggerCreation, in.Now)
	return nil
}

// deriveKey evaluates the key branches in priority order: legacy encrypted,
// keyed scheme, pooled, plain.
func (i *Issuer) deriveKey(ctx context.Context, tx *gorm.DB, in *issueInput) error {
	switch {
	case in.Policy.Encrypted:
		return i.deriveLegacyKey(in)
	case hasScheme(in.Policy):
		return i.deriveSchemeKey(in)
	case in.Policy.UsePool:
		return i.derivePooledKey(ctx, tx, in)
	default:
		return i.derivePlainKey(in)
	}
}

func (i *Issuer) verifyKey(ctx context.Context, tx *gorm.DB, in *issueInput) error {
	if in.License.Key == nil || *in.License.Key == "" {
		return issueFailure(FailureKeyAbsent, "", "no key was derived")
	}
	return nil
}

func hasScheme(pol *policy.Policy) bool {
	_, ok := pol.SchemeID()
	return ok
}

func (i *Issuer) deriveLegacyKey(in *issueInput) error {
	raw, err := randomLegacyKey(in.License.ID)
	if err != nil {
		return err
	}

	enc, err := encryptKeyAtRest(raw, i.cfg.Crypto.LegacyKeySecret)
	if err != nil {
		return err
	}

	digest := DigestKey(raw)
	in.License.Key = &enc
	in.License.KeyDigest = &digest
	in.rawKey = raw
	return nil
}

func (i *Issuer) derivePooledKey(ctx context.Context, tx *gorm.DB, in *issueInput) error {
	key, err := i.policies.PopPoolKey(ctx, tx, in.Policy.AccountID, in.Policy.ID)
	if err != nil {
		if err == policy.ErrPoolEmpty {
			return issueFailure(FailurePoolEmpty, "", "policy key pool is empty")
		}
		return err
	}

	in.License.Key = &key
	return nil
}

func (i *Issuer) derivePlainKey(in *issueInput) error {
	key, err := randomPlainKey()
	if err != nil {
		return err
	}

	in.License.Key = &key
	return nil
}

func (i *Issuer) deriveSchemeKey(in *issueInput) error {
	id, _ := in.Policy.SchemeID()
	sp, ok := scheme.Lookup(id)
	if !ok {
		return issueFailure(FailureSchemeUnsupported, "", fmt.Sprintf("scheme %s is not implemented", id))
	}

	var key string
	var err error

	switch sp.Material {
	case scheme.MaterialRSAPrivateKey:
		key, err = i.deriveRSAKey(in, sp)
	case scheme.MaterialEd25519Seed:
		key, err = i.deriveEd25519Key(in)
	default:
		return issueFailure(FailureSchemeUnsupported, "", fmt.Sprintf("scheme %s carries no key material branch", id))
	}
	if err != nil {
		return err
	}

	in.License.Key = &key
	return nil
}

func (i *Issuer) deriveRSAKey(in *issueInput, sp scheme.Spec) (string, error) {
	priv, err := in.KeyPair.RSAPrivateKey()
	if err != nil {
		return "", err
	}

	switch sp.Operation {
	case scheme.OpEncrypt:
		seed, err := i.encryptionSeed(in)
		if err != nil {
			return "", err
		}
		return rsaEncrypt(priv, seed)
	case scheme.OpSign, scheme.OpSignPSS:
		seed, err := i.signingSeed(in)
		if err != nil {
			return "", err
		}
		return rsaSign(priv, seed, sp)
	case scheme.OpEncodeJWT:
		claims, custom, err := i.jwtClaims(in)
		if err != nil {
			return "", err
		}
		return encodeJWT(priv, claims, custom)
	default:
		return "", issueFailure(FailureSchemeUnsupported, "", fmt.Sprintf("scheme %s has no issuance branch", sp.ID))
	}
}

func (i *Issuer) deriveEd25519Key(in *issueInput) (string, error) {
	priv, err := in.KeyPair.Ed25519PrivateKey()
	if err != nil {
		return "", err
	}

	seed, err := i.signingSeed(in)
	if err != nil {
		return "", err
	}

	signingData := "key/" + b64.EncodeToString(seed)
	sig := ed25519.Sign(priv, []byte(signingData))
	return signingData + "." + b64.EncodeToString(sig), nil
}

// encryptionSeed is the minimal payload for the pure-encryption scheme. A
// pre-assigned key value becomes the seed verbatim after template expansion.
func (i *Issuer) encryptionSeed(in *issueInput) ([]byte, error) {
	if tpl := presetKey(in.License); tpl != "" {
		return []byte(expandTemplate(tpl, templateVars(in.License, in.Policy, in.Account, in.User))), nil
	}

	payload := struct {
		ID       string `json:"id"`
		Created  int64  `json:"created"`
		Duration *int64 `json:"duration"`
		Expiry   *int64 `json:"expiry"`
	}{
		ID:       in.License.ID,
		Created:  in.License.CreatedAt.UnixMilli(),
		Duration: in.Policy.Duration,
	}
	if in.License.Expiry != nil {
		ms := in.License.Expiry.UnixMilli()
		payload.Expiry = &ms
	}

	return json.Marshal(payload)
}

// signingSeed is the richer payload shared by every signing scheme.
func (i *Issuer) signingSeed(in *issueInput) ([]byte, error) {
	if tpl := presetKey(in.License); tpl != "" {
		return []byte(expandTemplate(tpl, templateVars(in.License, in.Policy, in.Account, in.User))), nil
	}

	type ref struct {
		ID string `json:"id"`
	}
	type userRef struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	type policyRef struct {
		ID       string `json:"id"`
		Duration *int64 `json:"duration"`
	}
	type licenseRef struct {
		ID      string `json:"id"`
		Created int64  `json:"created"`
		Expiry  *int64 `json:"expiry"`
	}

	payload := struct {
		Account ref        `json:"account"`
		Product ref        `json:"product"`
		Policy  policyRef  `json:"policy"`
		User    *userRef   `json:"user"`
		License licenseRef `json:"license"`
	}{
		Account: ref{ID: in.Account.ID},
		Product: ref{ID: in.Policy.ProductID},
		Policy:  policyRef{ID: in.Policy.ID, Duration: in.Policy.Duration},
		License: licenseRef{ID: in.License.ID, Created: in.License.CreatedAt.UnixMilli()},
	}
	if in.User != nil {
		payload.User = &userRef{ID: in.User.ID, Email: in.User.Email}
	}
	if in.License.Expiry != nil {
		ms := in.License.Expiry.UnixMilli()
		payload.License.Expiry = &ms
	}

	return json.Marshal(payload)
}

// jwtClaims builds the registered claim set, or parses a template-expanded
// claims object when the key value is operator-supplied.
func (i *Issuer) jwtClaims(in *issueInput) (*jwt.Claims, map[string]interface{}, error) {
	if tpl := presetKey(in.License); tpl != "" {
		expanded := expandTemplate(tpl, templateVars(in.License, in.Policy, in.Account, in.User))
		var custom map[string]interface{}
		if err := json.Unmarshal([]byte(expanded), &custom); err != nil {
			return nil, nil, &IssueError{Failure: FailureClaimsInvalid, Message: "key template is not a valid claims object", Err: err}
		}
		return nil, custom, nil
	}

	claims := &jwt.Claims{
		ID:        uuid.NewString(),
		Issuer:    jwtIssuer,
		Audience:  jwt.Audience{in.Account.ID},
		Subject:   in.License.ID,
		IssuedAt:  jwt.NewNumericDate(in.License.CreatedAt),
		NotBefore: jwt.NewNumericDate(in.License.CreatedAt),
	}
	if in.License.Expiry != nil {
		claims.Expiry = jwt.NewNumericDate(*in.License.Expiry)
	}
	return claims, nil, nil
}

func presetKey(lic *License) string {
	if lic.Key == nil {
		return ""
	}
	return *lic.Key
}

// rsaEncrypt performs a private-key PKCS#1 v1.5 operation over the seed. The
// modulus bound is checked first so an oversized seed surfaces as a typed
// issuance failure, not a generic crypto error.
func rsaEncrypt(priv *rsa.PrivateKey, seed []byte) (string, error) {
	max := priv.Size() - 11
	if len(seed) > max {
		return "", issueFailure(FailureByteSizeExceeded, "",
			fmt.Sprintf("seed is %d bytes, exceeding the %d byte maximum for the account's RSA modulus", len(seed), max))
	}

	ciphertext, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.Hash(0), seed)
	if err != nil {
		return "", err
	}
	return b64.EncodeToString(ciphertext), nil
}

func rsaSign(priv *rsa.PrivateKey, seed []byte, sp scheme.Spec) (string, error) {
	var signingData []byte
	var prefix string

	switch sp.Version {
	case scheme.V2:
		prefix = "key/" + b64.EncodeToString(seed)
		signingData = []byte(prefix)
	default:
		signingData = seed
	}

	digest := sha256.Sum256(signingData)

	var sig []byte
	var err error
	if sp.Operation == scheme.OpSignPSS {
		sig, err = rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthAuto,
			Hash:       crypto.SHA256,
		})
	} else {
		sig, err = rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	}
	if err != nil {
		return "", err
	}

	if sp.Version == scheme.V2 {
		return prefix + "." + b64.EncodeToString(sig), nil
	}
	return b64.EncodeToString(seed) + "." + b64.EncodeToString(sig), nil
}

func encodeJWT(priv *rsa.PrivateKey, claims *jwt.Claims, custom map[string]interface{}) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: priv},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}

	builder := jwt.Signed(signer)
	if claims != nil {
		builder = builder.Claims(claims)
	}
	if custom != nil {
		builder = builder.Claims(custom)
	}

	raw, err := builder.Serialize()
	if err != nil {
		return "", &IssueError{Failure: FailureClaimsInvalid, Message: "claims were rejected during encoding", Err: err}
	}
	return raw, nil
}
