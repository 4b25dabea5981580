package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateConversationKeySizes(t *testing.T) {
	key, iv, err := GenerateConversationKey()
	require.NoError(t, err)
	assert.Len(t, key, ConversationKeySize)
	assert.Len(t, iv, ConversationIVSize)

	key2, iv2, err := GenerateConversationKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, key2)
	assert.NotEqual(t, iv, iv2)
}

func TestWrapUnwrapRoundtrip(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	key, _, err := GenerateConversationKey()
	require.NoError(t, err)

	wrapped, err := WrapKey(pub, key)
	require.NoError(t, err)
	assert.NotContains(t, wrapped, string(key))

	unwrapped, err := UnwrapKey(priv, wrapped)
	require.NoError(t, err)
	assert.Equal(t, key, unwrapped)
}

func TestUnwrapFailuresAreUniform(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)
	_, otherPriv, err := GenerateKeyPair()
	require.NoError(t, err)

	key, _, err := GenerateConversationKey()
	require.NoError(t, err)
	wrapped, err := WrapKey(pub, key)
	require.NoError(t, err)

	// wrong private key
	_, err = UnwrapKey(otherPriv, wrapped)
	assert.ErrorIs(t, err, ErrDecryption)

	// malformed private key
	_, err = UnwrapKey("not a pem", wrapped)
	assert.ErrorIs(t, err, ErrDecryption)

	// corrupt ciphertext
	_, err = UnwrapKey(priv, "%%%not-base64%%%")
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	key, iv, err := GenerateConversationKey()
	require.NoError(t, err)

	for _, plaintext := range []string{"", "hi", "héllo wörld 🙂", strings.Repeat("a", 4096)} {
		ct, err := EncryptMessage(key, iv, plaintext)
		require.NoError(t, err)

		pt, err := DecryptMessage(key, iv, ct)
		require.NoError(t, err)
		assert.Equal(t, plaintext, pt)
	}
}

func TestDecryptWithWrongKeyYieldsGarbage(t *testing.T) {
	key, iv, err := GenerateConversationKey()
	require.NoError(t, err)
	wrongKey, _, err := GenerateConversationKey()
	require.NoError(t, err)

	ct, err := EncryptMessage(key, iv, "attack at dawn")
	require.NoError(t, err)

	// No integrity tag: decryption succeeds and returns garbage.
	pt, err := DecryptMessage(wrongKey, iv, ct)
	require.NoError(t, err)
	assert.NotEqual(t, "attack at dawn", pt)
}

func TestDecryptRejectsBadHex(t *testing.T) {
	key, iv, err := GenerateConversationKey()
	require.NoError(t, err)

	_, err = DecryptMessage(key, iv, "zzzz")
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestPrivateKeyPasswordRoundtrip(t *testing.T) {
	_, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	sealed, err := EncryptPrivateKey(priv, "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "PRIVATE KEY")

	opened, err := DecryptPrivateKey(sealed, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, priv, opened)

	_, err = DecryptPrivateKey(sealed, "wrong password")
	assert.ErrorIs(t, err, ErrDecryption)
}
