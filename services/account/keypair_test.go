package account

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPairRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair("acct-1")
	require.NoError(t, err)
	require.Equal(t, "acct-1", kp.AccountID)
	require.NotEmpty(t, kp.ID)

	priv, err := kp.RSAPrivateKey()
	require.NoError(t, err)
	require.Equal(t, 2048, priv.N.BitLen())

	pub, err := kp.RSAPublicKey()
	require.NoError(t, err)
	require.Equal(t, priv.PublicKey.N, pub.N)

	edPriv, err := kp.Ed25519PrivateKey()
	require.NoError(t, err)

	edPub, err := kp.Ed25519Public()
	require.NoError(t, err)
	require.Equal(t, ed25519.PublicKey(edPriv.Public().(ed25519.PublicKey)), edPub)

	msg := []byte("probe")
	sig := ed25519.Sign(edPriv, msg)
	require.True(t, ed25519.Verify(edPub, msg, sig))
}

func TestKeyPairRejectsGarbageMaterial(t *testing.T) {
	kp := &KeyPair{ID: "kp-1", PrivateKeyPEM: "not a pem", Ed25519Seed: "!!"}

	_, err := kp.RSAPrivateKey()
	require.Error(t, err)

	_, err = kp.Ed25519PrivateKey()
	require.Error(t, err)
}

func TestUserBannedNilSafe(t *testing.T) {
	var u *User
	require.False(t, u.Banned())
	require.False(t, (&User{}).Banned())
}
