package auth

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// CredentialKind discriminates what the request presented.
type CredentialKind int

const (
	CredentialNone CredentialKind = iota
	CredentialToken
	CredentialLicenseKey
)

func (k CredentialKind) String() string {
	switch k {
	case CredentialNone:
		return "none"
	case CredentialToken:
		return "token"
	case CredentialLicenseKey:
		return "license_key"
	default:
		return "unknown"
	}
}

// Credential is the classified, not yet authenticated, secret carried by a
// request.
type Credential struct {
	Kind  CredentialKind
	Value string
}

// Classify extracts the credential from a request. Precedence is the
// Authorization header, then the token query parameter. Recognised header
// schemes are Bearer and License for raw secrets and Basic for the bare
// username-as-token encoding. A header that is present but unparseable is a
// format error, never an anonymous request.
func Classify(r *http.Request) (Credential, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			return Credential{Kind: CredentialToken, Value: token}, nil
		}
		return Credential{Kind: CredentialNone}, nil
	}

	scheme, value, found := strings.Cut(header, " ")
	if !found || strings.TrimSpace(value) == "" {
		return Credential{}, ErrTokenFormatInvalid
	}
	value = strings.TrimSpace(value)

	switch strings.ToLower(scheme) {
	case "bearer", "token":
		return Credential{Kind: CredentialToken, Value: value}, nil
	case "license":
		return Credential{Kind: CredentialLicenseKey, Value: value}, nil
	case "basic":
		return classifyBasic(value)
	default:
		return Credential{}, ErrTokenFormatInvalid
	}
}

func classifyBasic(encoded string) (Credential, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Credential{}, ErrTokenFormatInvalid
	}

	// Only the bare username-as-token form is accepted: the secret rides in
	// the user slot and the password must be empty. Anything in the password
	// slot is a malformed credential, not an alternate transport.
	user, password, _ := strings.Cut(string(decoded), ":")
	if user == "" || password != "" {
		return Credential{}, ErrTokenFormatInvalid
	}
	return Credential{Kind: CredentialToken, Value: user}, nil
}

// looksLikeUUID reports whether the value has the canonical 8-4-4-4-12
// hex shape. Legacy UUID session tokens were retired; anything shaped like
// one is rejected before a database round trip.
func looksLikeUUID(v string) bool {
	if len(v) != 36 {
		return false
	}
	for i, c := range v {
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			switch {
			case c >= '0' && c <= '9':
			case c >= 'a' && c <= 'f':
			case c >= 'A' && c <= 'F':
			default:
				return false
			}
		}
	}
	return true
}
