package license

import (
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var plainKeyPattern = regexp.MustCompile(`^[A-Z0-9]{1,6}(-[A-Z0-9]{1,6})*$`)

func TestRandomPlainKeyShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		key, err := randomPlainKey()
		require.NoError(t, err)
		require.Regexp(t, plainKeyPattern, key)
		require.Len(t, key, plainKeyLength+plainKeyLength/plainKeyGroupWidth-1)
		require.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}

func TestRandomLegacyKeyEmbedsLicenseID(t *testing.T) {
	id := uuid.NewString()
	key, err := randomLegacyKey(id)
	require.NoError(t, err)

	stripped := strings.ReplaceAll(key, "-", "")
	require.Len(t, stripped, legacyKeyHexLength)
	require.Equal(t, strings.ReplaceAll(id, "-", ""), stripped[:32])

	recovered, ok := LegacyKeyLicenseID(key)
	require.True(t, ok)
	require.Equal(t, id, recovered)
}

func TestLegacyKeyLicenseIDTooShort(t *testing.T) {
	_, ok := LegacyKeyLicenseID("ABC-DEF")
	require.False(t, ok)
}

func TestGroupKey(t *testing.T) {
	require.Equal(t, "ABCD-EFGH", groupKey("ABCDEFGH", 4))
	require.Equal(t, "ABCD-EF", groupKey("ABCDEF", 4))
	require.Equal(t, "AB", groupKey("AB", 4))
	require.Equal(t, "", groupKey("", 4))
}

func TestDigestKeyDeterministic(t *testing.T) {
	require.Equal(t, DigestKey("abc"), DigestKey("abc"))
	require.NotEqual(t, DigestKey("abc"), DigestKey("abd"))
	require.Len(t, DigestKey("abc"), 64)
}

func TestKeyAtRestRoundTrip(t *testing.T) {
	const secret = "test-secret"

	enc, err := encryptKeyAtRest("RAW-KEY-VALUE", secret)
	require.NoError(t, err)
	require.NotContains(t, enc, "RAW")

	plain, err := DecryptKeyAtRest(enc, secret)
	require.NoError(t, err)
	require.Equal(t, "RAW-KEY-VALUE", plain)

	// Two encryptions of the same value differ because the nonce is random.
	enc2, err := encryptKeyAtRest("RAW-KEY-VALUE", secret)
	require.NoError(t, err)
	require.NotEqual(t, enc, enc2)

	_, err = DecryptKeyAtRest(enc, "wrong-secret")
	require.Error(t, err)

	_, err = DecryptKeyAtRest("zz", secret)
	require.Error(t, err)
}
