package envelope

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, KeySize)
}

func TestRoundTrip(t *testing.T) {
	key := testKey(0x42)
	plaintext := []byte(`{"access_token":"abc123"}`)

	env, err := Encrypt(key, plaintext)
	require.NoError(t, err)
	require.Len(t, env.IV, NonceSize)
	require.Len(t, env.AuthTag, 16)
	require.NotEqual(t, plaintext, env.Ciphertext)

	got, err := Decrypt(key, env)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestFreshNoncePerWrite(t *testing.T) {
	key := testKey(0x42)
	env1, err := Encrypt(key, []byte("same"))
	require.NoError(t, err)
	env2, err := Encrypt(key, []byte("same"))
	require.NoError(t, err)
	require.NotEqual(t, env1.IV, env2.IV)
	require.NotEqual(t, env1.Ciphertext, env2.Ciphertext)
}

func TestInvalidKeyLength(t *testing.T) {
	_, err := Encrypt([]byte("short"), []byte("data"))
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = Decrypt(bytes.Repeat([]byte{1}, 16), &Envelope{})
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestWrongKeyFails(t *testing.T) {
	env, err := Encrypt(testKey(0x01), []byte("secret"))
	require.NoError(t, err)

	_, err = Decrypt(testKey(0x02), env)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestTamperedEnvelopeFails(t *testing.T) {
	key := testKey(0x01)
	env, err := Encrypt(key, []byte("secret"))
	require.NoError(t, err)

	env.Ciphertext[0] ^= 0xFF
	_, err = Decrypt(key, env)
	require.ErrorIs(t, err, ErrDecrypt)

	env.Ciphertext[0] ^= 0xFF
	env.AuthTag[0] ^= 0xFF
	_, err = Decrypt(key, env)
	require.ErrorIs(t, err, ErrDecrypt)
}
