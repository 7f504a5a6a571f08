package encryptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaydenbeard/sdk-core/internal/ids"
)

func mustSessionID(t *testing.T, tag byte) [ids.ResourceSize]byte {
	t.Helper()
	var id [ids.ResourceSize]byte
	id[0] = tag
	return id
}

func TestEncryptDecryptV9RoundTrip(t *testing.T) {
	sessionKey := mustSymmetricKey(t)
	sessionID := mustSessionID(t, 1)
	clear := []byte("a resource shared under a transparent session")

	enc, rid, err := EncryptV9(clear, sessionKey, sessionID)
	require.NoError(t, err)
	assert.Equal(t, byte(V9), enc[0])

	got, err := DecryptV9(enc, sessionKey)
	require.NoError(t, err)
	assert.Equal(t, clear, got)

	extracted, err := ExtractResourceID(enc)
	require.NoError(t, err)
	assert.Equal(t, rid, extracted)
}

func TestEncryptV9SharesSessionIDAcrossCalls(t *testing.T) {
	sessionKey := mustSymmetricKey(t)
	sessionID := mustSessionID(t, 2)

	enc1, _, err := EncryptV9([]byte("first"), sessionKey, sessionID)
	require.NoError(t, err)
	enc2, _, err := EncryptV9([]byte("second"), sessionKey, sessionID)
	require.NoError(t, err)

	assert.Equal(t, enc1[1:1+ids.ResourceSize], enc2[1:1+ids.ResourceSize])
	assert.NotEqual(t, enc1[1+ids.ResourceSize:], enc2[1+ids.ResourceSize:], "each call must derive a fresh subkey seed")
}

func TestDecryptV9RejectsWrongSessionKey(t *testing.T) {
	sessionKey := mustSymmetricKey(t)
	other := mustSymmetricKey(t)
	sessionID := mustSessionID(t, 3)

	enc, _, err := EncryptV9([]byte("secret"), sessionKey, sessionID)
	require.NoError(t, err)
	_, err = DecryptV9(enc, other)
	assert.Error(t, err)
}

func TestEncryptDecryptV10RoundTripWithPadding(t *testing.T) {
	sessionKey := mustSymmetricKey(t)
	sessionID := mustSessionID(t, 4)
	clear := []byte("padded transparent-session resource")
	step := PaddingStep{Step: 32}

	enc, rid, err := EncryptV10(clear, sessionKey, sessionID, step)
	require.NoError(t, err)
	assert.Equal(t, byte(V10), enc[0])

	got, err := DecryptV10(enc, sessionKey)
	require.NoError(t, err)
	assert.Equal(t, clear, got)

	extracted, err := ExtractResourceID(enc)
	require.NoError(t, err)
	assert.Equal(t, rid, extracted)
}

func TestV9And10ResourceIDsShareSessionComponent(t *testing.T) {
	sessionKey := mustSymmetricKey(t)
	sessionID := mustSessionID(t, 5)

	_, rid9, err := EncryptV9([]byte("a"), sessionKey, sessionID)
	require.NoError(t, err)
	_, rid10, err := EncryptV10([]byte("b"), sessionKey, sessionID, PaddingStep{Auto: true})
	require.NoError(t, err)

	assert.Equal(t, rid9[:ids.ResourceSize], rid10[:ids.ResourceSize])
}
