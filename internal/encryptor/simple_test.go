package encryptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
)

func mustSymmetricKey(t *testing.T) tcrypto.SymmetricKey {
	t.Helper()
	key, err := tcrypto.GenerateSymmetricKey()
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptV2RoundTrip(t *testing.T) {
	key := mustSymmetricKey(t)
	clear := []byte("hello from a V2 buffer")

	enc, rid, err := EncryptV2(clear, key)
	require.NoError(t, err)
	assert.Equal(t, byte(V2), enc[0])

	got, err := DecryptV2(enc, key)
	require.NoError(t, err)
	assert.Equal(t, clear, got)

	extracted, err := ExtractResourceID(enc)
	require.NoError(t, err)
	assert.Equal(t, rid, extracted)

	size, err := EncryptedSize(V2, uint64(len(clear)))
	require.NoError(t, err)
	assert.Equal(t, uint64(len(enc)), size)

	decSize, err := DecryptedSize(enc)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(clear)), decSize)
}

func TestDecryptV2RejectsWrongKey(t *testing.T) {
	key := mustSymmetricKey(t)
	other := mustSymmetricKey(t)
	enc, _, err := EncryptV2([]byte("secret"), key)
	require.NoError(t, err)
	_, err = DecryptV2(enc, other)
	assert.Error(t, err)
}

func TestDecryptV2RejectsWrongVersionByte(t *testing.T) {
	key := mustSymmetricKey(t)
	enc, _, err := EncryptV2([]byte("secret"), key)
	require.NoError(t, err)
	enc[0] = byte(V3)
	_, err = DecryptV2(enc, key)
	assert.Error(t, err)
}

func TestEncryptDecryptV3RoundTrip(t *testing.T) {
	key := mustSymmetricKey(t)
	clear := []byte("a V3 buffer, one-shot key")

	enc, rid, err := EncryptV3(clear, key)
	require.NoError(t, err)
	assert.Equal(t, byte(V3), enc[0])

	got, err := DecryptV3(enc, key)
	require.NoError(t, err)
	assert.Equal(t, clear, got)

	extracted, err := ExtractResourceID(enc)
	require.NoError(t, err)
	assert.Equal(t, rid, extracted)
}

func TestEncryptV3IsDeterministicForSameKey(t *testing.T) {
	key := mustSymmetricKey(t)
	clear := []byte("same plaintext twice")
	enc1, _, err := EncryptV3(clear, key)
	require.NoError(t, err)
	enc2, _, err := EncryptV3(clear, key)
	require.NoError(t, err)
	assert.Equal(t, enc1, enc2, "V3 uses an all-zero nonce so identical plaintext must produce identical ciphertext")
}

func TestEncryptDecryptV5RoundTrip(t *testing.T) {
	key := mustSymmetricKey(t)
	clear := []byte("a V5 buffer with a random resourceId")

	enc, rid, err := EncryptV5(clear, key)
	require.NoError(t, err)
	assert.Equal(t, byte(V5), enc[0])

	got, err := DecryptV5(enc, key)
	require.NoError(t, err)
	assert.Equal(t, clear, got)

	extracted, err := ExtractResourceID(enc)
	require.NoError(t, err)
	assert.Equal(t, rid, extracted)
}

func TestEncryptV5ResourceIDsAreRandom(t *testing.T) {
	key := mustSymmetricKey(t)
	clear := []byte("same plaintext, different resourceIds")
	_, rid1, err := EncryptV5(clear, key)
	require.NoError(t, err)
	_, rid2, err := EncryptV5(clear, key)
	require.NoError(t, err)
	assert.NotEqual(t, rid1, rid2)
}

func TestEncryptDecryptV6RoundTripWithPadding(t *testing.T) {
	key := mustSymmetricKey(t)
	clear := []byte("short")
	step := PaddingStep{Step: 64}

	enc, rid, err := EncryptV6(clear, key, step)
	require.NoError(t, err)
	assert.Equal(t, byte(V6), enc[0])

	got, err := DecryptV6(enc, key)
	require.NoError(t, err)
	assert.Equal(t, clear, got)

	extracted, err := ExtractResourceID(enc)
	require.NoError(t, err)
	assert.Equal(t, rid, extracted)

	_, err = DecryptedSize(enc)
	assert.Error(t, err, "padded versions cannot report decryptedSize without decrypting")
}

func TestEncryptDecryptV7RoundTripWithPadding(t *testing.T) {
	key := mustSymmetricKey(t)
	clear := make([]byte, 500)
	step := PaddingStep{Auto: true}

	enc, rid, err := EncryptV7(clear, key, step)
	require.NoError(t, err)
	assert.Equal(t, byte(V7), enc[0])

	got, err := DecryptV7(enc, key)
	require.NoError(t, err)
	assert.Equal(t, clear, got)

	extracted, err := ExtractResourceID(enc)
	require.NoError(t, err)
	assert.Equal(t, rid, extracted)
}

func TestEncryptedSizeMatchesActualSizeForPaddedVersions(t *testing.T) {
	key := mustSymmetricKey(t)
	clear := make([]byte, 777)

	enc6, _, err := EncryptV6(clear, key, defaultPaddingStep())
	require.NoError(t, err)
	predicted6, err := EncryptedSize(V6, uint64(len(clear)))
	require.NoError(t, err)
	assert.Equal(t, uint64(len(enc6)), predicted6)

	enc7, _, err := EncryptV7(clear, key, defaultPaddingStep())
	require.NoError(t, err)
	predicted7, err := EncryptedSize(V7, uint64(len(clear)))
	require.NoError(t, err)
	assert.Equal(t, uint64(len(enc7)), predicted7)
}
