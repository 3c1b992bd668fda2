package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEncryptor_GenerateNewKey(t *testing.T) {
	enc, err := NewEncryptor("")
	require.NoError(t, err)
	assert.NotNil(t, enc.identity)
	assert.NotNil(t, enc.recipient)
}

func TestNewEncryptor_WithProvidedKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	enc, err := NewEncryptor(key)
	require.NoError(t, err)
	assert.NotEmpty(t, enc.PublicKey())
}

func TestNewEncryptor_InvalidKey(t *testing.T) {
	_, err := NewEncryptor("invalid-key-format")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing identity")
}

func TestEncrypt_Decrypt(t *testing.T) {
	enc, err := NewEncryptor("")
	require.NoError(t, err)

	plaintext := []byte("alice@example.com")

	ciphertext, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(ciphertext), "alice@example.com")

	decrypted, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestSealJSON_OpenJSON(t *testing.T) {
	enc, err := NewEncryptor("")
	require.NoError(t, err)

	type notice struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}

	sealed, err := enc.SealJSON(notice{Email: "bob@example.com", Name: "Bob"})
	require.NoError(t, err)

	var got notice
	require.NoError(t, enc.OpenJSON(sealed, &got))
	assert.Equal(t, "bob@example.com", got.Email)
	assert.Equal(t, "Bob", got.Name)
}

func TestOpenJSON_WrongKey(t *testing.T) {
	sender, err := NewEncryptor("")
	require.NoError(t, err)
	receiver, err := NewEncryptor("")
	require.NoError(t, err)

	sealed, err := sender.SealJSON(map[string]string{"email": "carol@example.com"})
	require.NoError(t, err)

	var got map[string]string
	assert.Error(t, receiver.OpenJSON(sealed, &got))
}
