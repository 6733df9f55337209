package scheme

import "sort"

// ID identifies a key-generation scheme. The identifiers are part of the
// policy wire contract and never change.
type ID string

const (
	LegacyEncrypt         ID = "LEGACY_ENCRYPT"
	RSA2048PKCS1Encrypt   ID = "RSA_2048_PKCS1_ENCRYPT"
	RSA2048PKCS1Sign      ID = "RSA_2048_PKCS1_SIGN"
	RSA2048PKCS1SignV2    ID = "RSA_2048_PKCS1_SIGN_V2"
	RSA2048PKCS1PSSSign   ID = "RSA_2048_PKCS1_PSS_SIGN"
	RSA2048PKCS1PSSSignV2 ID = "RSA_2048_PKCS1_PSS_SIGN_V2"
	RSA2048JWTRS256       ID = "RSA_2048_JWT_RS256"
	Ed25519Sign           ID = "ED25519_SIGN"
)

// Material names the key material a scheme operates with.
type Material int

const (
	MaterialNone Material = iota
	MaterialRSAPrivateKey
	MaterialEd25519Seed
)

// Operation names the cryptographic operation a scheme performs. No scheme
// performs both encryption and signing.
type Operation int

const (
	OpEncrypt Operation = iota
	OpSign
	OpSignPSS
	OpEncodeJWT
)

// Version distinguishes wire-format variants. V1 signs the raw seed bytes;
// V2 signs the namespaced "key/" + base64url(seed) string.
type Version int

const (
	V1 Version = 1
	V2 Version = 2
)

type Spec struct {
	ID        ID
	Material  Material
	Operation Operation
	Version   Version
}

var registry = map[ID]Spec{
	LegacyEncrypt:         {ID: LegacyEncrypt, Material: MaterialNone, Operation: OpEncrypt, Version: V1},
	RSA2048PKCS1Encrypt:   {ID: RSA2048PKCS1Encrypt, Material: MaterialRSAPrivateKey, Operation: OpEncrypt, Version: V1},
	RSA2048PKCS1Sign:      {ID: RSA2048PKCS1Sign, Material: MaterialRSAPrivateKey, Operation: OpSign, Version: V1},
	RSA2048PKCS1SignV2:    {ID: RSA2048PKCS1SignV2, Material: MaterialRSAPrivateKey, Operation: OpSign, Version: V2},
	RSA2048PKCS1PSSSign:   {ID: RSA2048PKCS1PSSSign, Material: MaterialRSAPrivateKey, Operation: OpSignPSS, Version: V1},
	RSA2048PKCS1PSSSignV2: {ID: RSA2048PKCS1PSSSignV2, Material: MaterialRSAPrivateKey, Operation: OpSignPSS, Version: V2},
	RSA2048JWTRS256:       {ID: RSA2048JWTRS256, Material: MaterialRSAPrivateKey, Operation: OpEncodeJWT, Version: V1},
	Ed25519Sign:           {ID: Ed25519Sign, Material: MaterialEd25519Seed, Operation: OpSign, Version: V2},
}

// Lookup resolves a scheme identifier to its spec.
func Lookup(id ID) (Spec, bool) {
	spec, ok := registry[id]
	return spec, ok
}

// Valid reports whether id names a supported scheme.
func Valid(id ID) bool {
	_, ok := registry[id]
	return ok
}

// IDs enumerates supported scheme identifiers in stable order.
func IDs() []ID {
	out := make([]ID, 0, len(registry))
	for id := range registry {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
