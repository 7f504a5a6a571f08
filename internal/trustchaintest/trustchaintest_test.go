package trustchaintest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaydenbeard/sdk-core/internal/blocks"
	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
)

func mustSigKeyPair(t *testing.T) tcrypto.SignatureKeyPair {
	t.Helper()
	kp, err := tcrypto.GenerateSignatureKeyPair()
	require.NoError(t, err)
	return kp
}

func buildRootBlock(t *testing.T) (*blocks.Block, tcrypto.SignatureKeyPair) {
	t.Helper()
	root := mustSigKeyPair(t)
	b := &blocks.Block{Version: 1, Action: &blocks.TrustchainCreation{PublicSignatureKey: root.PublicKey}}
	b.TrustchainID = ids.TrustchainID(b.Hash())
	return b, root
}

func TestPushBlockAssignsIndexAndAccepts(t *testing.T) {
	srv := NewServer(nil)
	root, _ := buildRootBlock(t)

	err := srv.PushBlock(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), root.Index)
	assert.Equal(t, 1, srv.BlockCount(root.TrustchainID))

	ledger, ok := srv.Ledger(root.TrustchainID)
	require.True(t, ok)
	assert.Equal(t, uint64(1), ledger.LastIndex())
}

func TestPushBlockRejectsInvalidBlock(t *testing.T) {
	srv := NewServer(nil)
	root, _ := buildRootBlock(t)
	root.TrustchainID[0] ^= 0xFF // break trustchainId = hash(block) before pushing

	err := srv.PushBlock(context.Background(), root)
	assert.Error(t, err)
	assert.Equal(t, 0, srv.BlockCount(root.TrustchainID))
}

func TestPullBlocksReturnsOnlyNewerBlocks(t *testing.T) {
	srv := NewServer(nil)
	root, _ := buildRootBlock(t)
	require.NoError(t, srv.PushBlock(context.Background(), root))

	ephemeral := mustSigKeyPair(t)
	enc, err := tcrypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)

	var userID ids.UserID
	userID[0] = 1
	delegationPayload := append(append([]byte{}, ephemeral.PublicKey[:]...), userID[:]...)
	deviceAction := &blocks.DeviceCreation{
		Version:                     1,
		EphemeralPublicSignatureKey: ephemeral.PublicKey,
		UserID:                      userID,
		DelegationSignature:         tcrypto.Sign(delegationPayload, ephemeral.PrivateKey),
		PublicSignatureKey:          ephemeral.PublicKey,
		PublicEncryptionKey:         enc.PublicKey,
	}
	deviceBlock := &blocks.Block{Version: 1, TrustchainID: root.TrustchainID, Action: deviceAction}
	deviceBlock.Sign(ephemeral.PrivateKey)
	require.NoError(t, srv.PushBlock(context.Background(), deviceBlock))

	all, err := srv.PullBlocks(context.Background(), root.TrustchainID, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	onlyNew, err := srv.PullBlocks(context.Background(), root.TrustchainID, 1)
	require.NoError(t, err)
	require.Len(t, onlyNew, 1)
	assert.Equal(t, uint64(2), onlyNew[0].Index)
}

func TestPullBlocksUnknownTrustchainReturnsEmpty(t *testing.T) {
	srv := NewServer(nil)
	var unknown ids.TrustchainID
	unknown[0] = 77

	out, err := srv.PullBlocks(context.Background(), unknown, 0)
	assert.NoError(t, err)
	assert.Nil(t, out)
}

func TestAuthenticateWithoutAuthServiceFails(t *testing.T) {
	srv := NewServer(nil)
	root, _ := buildRootBlock(t)
	require.NoError(t, srv.PushBlock(context.Background(), root))

	_, err := srv.Authenticate(context.Background(), root.TrustchainID, ids.DeviceID{}, func(c []byte) []byte { return c })
	assert.Error(t, err)
}

func TestAuthenticateUnknownTrustchainFails(t *testing.T) {
	srv := NewServer(nil)
	var unknown ids.TrustchainID
	unknown[0] = 9

	_, err := srv.Authenticate(context.Background(), unknown, ids.DeviceID{}, func(c []byte) []byte { return c })
	assert.Error(t, err)
}
