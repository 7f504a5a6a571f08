package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/serialize"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
)

func signedDeviceCreationBlock(t *testing.T) (*Block, tcrypto.SignatureKeyPair) {
	t.Helper()
	ephemeral, err := tcrypto.GenerateSignatureKeyPair()
	require.NoError(t, err)
	device, err := tcrypto.GenerateSignatureKeyPair()
	require.NoError(t, err)
	enc, err := tcrypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)

	var userID ids.UserID
	userID[0] = 42

	action := &DeviceCreation{
		Version:                     1,
		EphemeralPublicSignatureKey: ephemeral.PublicKey,
		UserID:                      userID,
		PublicSignatureKey:          device.PublicKey,
		PublicEncryptionKey:         enc.PublicKey,
	}
	var trustchainID ids.TrustchainID
	trustchainID[0] = 7

	b := &Block{Version: 1, TrustchainID: trustchainID, Action: action}
	b.Sign(ephemeral.PrivateKey)
	return b, ephemeral
}

func TestBlockMarshalUnmarshalRoundTrip(t *testing.T) {
	b, _ := signedDeviceCreationBlock(t)
	b.Index = 5

	buf := b.Marshal()
	got, err := Unmarshal(buf)
	require.NoError(t, err)

	assert.Equal(t, b.Version, got.Version)
	assert.Equal(t, b.Index, got.Index)
	assert.Equal(t, b.TrustchainID, got.TrustchainID)
	assert.Equal(t, b.Signature, got.Signature)
	assert.Equal(t, b.Action.Nature(), got.Action.Nature())
	assert.Equal(t, b.Action.MarshalPayload(), got.Action.MarshalPayload())
}

func TestBlockSignatureVerifiesAgainstSigningKey(t *testing.T) {
	b, ephemeral := signedDeviceCreationBlock(t)
	assert.True(t, b.VerifySignature(ephemeral.PublicKey))

	other, err := tcrypto.GenerateSignatureKeyPair()
	require.NoError(t, err)
	assert.False(t, b.VerifySignature(other.PublicKey))
}

func TestBlockSignatureExcludesIndex(t *testing.T) {
	b, ephemeral := signedDeviceCreationBlock(t)
	b.Index = 99
	assert.True(t, b.VerifySignature(ephemeral.PublicKey), "index is server-assigned after signing, so it must not be covered by the signature")
}

func TestBlockHashChangesWithPayload(t *testing.T) {
	b1, _ := signedDeviceCreationBlock(t)
	b2, _ := signedDeviceCreationBlock(t)
	assert.NotEqual(t, b1.Hash(), b2.Hash(), "independently generated device creations must hash to distinct ids")
}

func TestUnmarshalRejectsUnknownNature(t *testing.T) {
	w := serialize.NewWriter()
	w.PutVarint(1)                   // version
	w.PutVarint(0)                   // index
	w.PutFixed(make([]byte, ids.Size)) // trustchainId
	w.PutVarint(9999)                // unknown nature
	w.PutVarint(0)                   // empty payload
	w.PutFixed(make([]byte, ids.Size))              // author
	w.PutFixed(make([]byte, tcrypto.SignatureSize)) // signature

	_, err := Unmarshal(w.Bytes())
	assert.Error(t, err)
}

func TestUnmarshalRejectsTruncatedInput(t *testing.T) {
	b, _ := signedDeviceCreationBlock(t)
	buf := b.Marshal()
	_, err := Unmarshal(buf[:len(buf)-10])
	assert.Error(t, err)
}

func TestNatureHelpers(t *testing.T) {
	assert.True(t, NatureDeviceCreationV1.IsDeviceCreation())
	assert.True(t, NatureDeviceCreationV2.IsDeviceCreation())
	assert.True(t, NatureDeviceCreationV3.IsDeviceCreation())
	assert.False(t, NatureKeyPublishToDevice.IsDeviceCreation())

	assert.True(t, NatureUserGroupCreationV2.IsUserGroupCreation())
	assert.True(t, NatureUserGroupAdditionV3.IsUserGroupAddition())
	assert.True(t, NatureDeviceRevocationV2.IsDeviceRevocation())
}

func TestTrustchainCreationRoundTrip(t *testing.T) {
	root, err := tcrypto.GenerateSignatureKeyPair()
	require.NoError(t, err)

	action := &TrustchainCreation{PublicSignatureKey: root.PublicKey}
	b := &Block{Version: 1, Action: action}
	b.TrustchainID = ids.TrustchainID(b.Hash())

	buf := b.Marshal()
	got, err := Unmarshal(buf)
	require.NoError(t, err)

	gotAction, ok := got.Action.(*TrustchainCreation)
	require.True(t, ok)
	assert.Equal(t, root.PublicKey, gotAction.PublicSignatureKey)
	assert.Equal(t, b.TrustchainID, got.TrustchainID)
}
