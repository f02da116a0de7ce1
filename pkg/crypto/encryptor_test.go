package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEncryptor(t *testing.T) {
	t.Run("generates identity when key is empty", func(t *testing.T) {
		enc, err := NewEncryptor("")
		require.NoError(t, err)
		assert.NotNil(t, enc.identity)
		assert.Contains(t, enc.PublicKey(), "age1")
	})

	t.Run("parses provided key", func(t *testing.T) {
		key, err := GenerateKey()
		require.NoError(t, err)

		enc, err := NewEncryptor(key)
		require.NoError(t, err)
		assert.NotEmpty(t, enc.PublicKey())
	})

	t.Run("rejects malformed key", func(t *testing.T) {
		_, err := NewEncryptor("not-an-age-key")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing identity")
	})
}

func TestEncryptDecrypt(t *testing.T) {
	enc, err := NewEncryptor("")
	require.NoError(t, err)

	plaintext := []byte("circle admin token")
	first, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	second, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	for _, ct := range [][]byte{first, second} {
		got, err := enc.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}

	_, err = enc.Decrypt([]byte("garbage"))
	assert.Error(t, err)
}

func TestDecrypt_WrongKey(t *testing.T) {
	enc1, err := NewEncryptor("")
	require.NoError(t, err)
	enc2, err := NewEncryptor("")
	require.NoError(t, err)

	ct, err := enc1.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = enc2.Decrypt(ct)
	assert.Error(t, err)
}

func TestSharedKeyAcrossInstances(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	server, err := NewEncryptor(key)
	require.NoError(t, err)
	worker, err := NewEncryptor(key)
	require.NoError(t, err)

	sealed, err := server.EncryptString("tok_123")
	require.NoError(t, err)

	opened, err := worker.DecryptString(sealed)
	require.NoError(t, err)
	assert.Equal(t, "tok_123", opened)

	_, err = worker.DecryptString("%%%")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding base64")
}

func TestSealOpenJSON(t *testing.T) {
	enc, err := NewEncryptor("")
	require.NoError(t, err)

	type secret struct {
		Token       string `json:"token"`
		CommunityID int64  `json:"community_id"`
	}

	sealed, err := enc.SealJSON(secret{Token: "abc", CommunityID: 42})
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "abc")

	var got secret
	require.NoError(t, enc.OpenJSON(sealed, &got))
	assert.Equal(t, secret{Token: "abc", CommunityID: 42}, got)
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken(32)
	require.NoError(t, err)
	b, err := GenerateToken(32)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
	assert.NotContains(t, a, "=")
}
