package share

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaydenbeard/sdk-core/internal/accessors"
	"github.com/jaydenbeard/sdk-core/internal/blocks"
	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/store"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
	"github.com/jaydenbeard/sdk-core/internal/trustchaintest"
)

func mustSigKeyPair(t *testing.T) tcrypto.SignatureKeyPair {
	t.Helper()
	kp, err := tcrypto.GenerateSignatureKeyPair()
	require.NoError(t, err)
	return kp
}

// ghostDeviceWithUserKey builds a user's first device already holding a
// user encryption keypair (DeviceCreation v3), as createIdentity does.
func ghostDeviceWithUserKey(t *testing.T, userID ids.UserID) (*blocks.Block, tcrypto.SignatureKeyPair, tcrypto.EncryptionKeyPair) {
	t.Helper()
	ephemeral := mustSigKeyPair(t)
	deviceEnc, err := tcrypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)
	userEnc, err := tcrypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)

	delegationPayload := append(append([]byte{}, ephemeral.PublicKey[:]...), userID[:]...)
	action := &blocks.DeviceCreation{
		Version:                     3,
		EphemeralPublicSignatureKey: ephemeral.PublicKey,
		UserID:                      userID,
		DelegationSignature:         tcrypto.Sign(delegationPayload, ephemeral.PrivateKey),
		PublicSignatureKey:          ephemeral.PublicKey,
		PublicEncryptionKey:         deviceEnc.PublicKey,
		PublicUserEncryptionKey:     userEnc.PublicKey,
	}
	b := &blocks.Block{Version: 1, Action: action}
	b.Sign(ephemeral.PrivateKey)
	return b, ephemeral, userEnc
}

type shareFixture struct {
	trustchainID ids.TrustchainID
	server       *trustchaintest.Server
	users        *accessors.UserAccessor
	groupsAcc    *accessors.GroupAccessor
	provisional  *accessors.ProvisionalUserAccessor
}

func newShareFixture(t *testing.T) *shareFixture {
	t.Helper()
	server := trustchaintest.NewServer(nil)

	root := mustSigKeyPair(t)
	rootBlock := &blocks.Block{Version: 1, Action: &blocks.TrustchainCreation{PublicSignatureKey: root.PublicKey}}
	rootBlock.TrustchainID = ids.TrustchainID(rootBlock.Hash())
	require.NoError(t, server.PushBlock(context.Background(), rootBlock))

	ledger := accessors.NewLedger(rootBlock.TrustchainID)
	puller := accessors.NewPuller(rootBlock.TrustchainID, server, ledger)

	return &shareFixture{
		trustchainID: rootBlock.TrustchainID,
		server:       server,
		users:        accessors.NewUserAccessor(puller),
		groupsAcc:    accessors.NewGroupAccessor(puller, store.NewMemory()),
		provisional:  accessors.NewProvisionalUserAccessor(puller),
	}
}

func TestShareRejectsEmptyTargets(t *testing.T) {
	f := newShareFixture(t)
	sharer := NewSharer(f.trustchainID, f.server)

	var deviceID ids.DeviceID
	key, err := tcrypto.GenerateSymmetricKey()
	require.NoError(t, err)
	resourceID, err := ids.NewSimpleResourceID(make([]byte, ids.ResourceSize))
	require.NoError(t, err)

	err = sharer.Share(context.Background(), deviceID, tcrypto.PrivateSignatureKey{}, resourceID, key, nil)
	assert.Error(t, err)
}

func TestShareToUserPushesKeyPublishBlock(t *testing.T) {
	f := newShareFixture(t)

	var authorUserID ids.UserID
	authorUserID[0] = 1
	authorBlock, authorKey, _ := ghostDeviceWithUserKey(t, authorUserID)
	authorBlock.TrustchainID = f.trustchainID
	require.NoError(t, f.server.PushBlock(context.Background(), authorBlock))
	authorDeviceID := ids.DeviceID(authorBlock.Hash())

	recipientEnc, err := tcrypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)

	sharer := NewSharer(f.trustchainID, f.server)
	key, err := tcrypto.GenerateSymmetricKey()
	require.NoError(t, err)
	resourceID, err := ids.NewSimpleResourceID(make([]byte, ids.ResourceSize))
	require.NoError(t, err)

	before := f.server.BlockCount(f.trustchainID)
	err = sharer.Share(context.Background(), authorDeviceID, authorKey.PrivateKey, resourceID, key, []Target{
		{Kind: TargetUser, UserPublicEncryptionKey: recipientEnc.PublicKey},
	})
	require.NoError(t, err)
	assert.Equal(t, before+1, f.server.BlockCount(f.trustchainID))
}

func TestShareWithSelfTargetsOwnUserKey(t *testing.T) {
	f := newShareFixture(t)

	var authorUserID ids.UserID
	authorUserID[0] = 2
	authorBlock, authorKey, ownUserEnc := ghostDeviceWithUserKey(t, authorUserID)
	authorBlock.TrustchainID = f.trustchainID
	require.NoError(t, f.server.PushBlock(context.Background(), authorBlock))
	authorDeviceID := ids.DeviceID(authorBlock.Hash())

	sharer := NewSharer(f.trustchainID, f.server)
	key, err := tcrypto.GenerateSymmetricKey()
	require.NoError(t, err)
	resourceID, err := ids.NewSimpleResourceID(make([]byte, ids.ResourceSize))
	require.NoError(t, err)

	err = sharer.ShareWithSelf(context.Background(), authorDeviceID, authorKey.PrivateKey, resourceID, key, ownUserEnc.PublicKey)
	assert.NoError(t, err)
}

func TestResolverResolveUser(t *testing.T) {
	f := newShareFixture(t)

	var userID ids.UserID
	userID[0] = 3
	userBlock, _, userEnc := ghostDeviceWithUserKey(t, userID)
	userBlock.TrustchainID = f.trustchainID
	require.NoError(t, f.server.PushBlock(context.Background(), userBlock))

	var noKeyUserID ids.UserID
	noKeyUserID[0] = 4
	noKeyEphemeral := mustSigKeyPair(t)
	deviceEnc, err := tcrypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)
	delegationPayload := append(append([]byte{}, noKeyEphemeral.PublicKey[:]...), noKeyUserID[:]...)
	noKeyAction := &blocks.DeviceCreation{
		Version:                     1,
		EphemeralPublicSignatureKey: noKeyEphemeral.PublicKey,
		UserID:                      noKeyUserID,
		DelegationSignature:         tcrypto.Sign(delegationPayload, noKeyEphemeral.PrivateKey),
		PublicSignatureKey:          noKeyEphemeral.PublicKey,
		PublicEncryptionKey:         deviceEnc.PublicKey,
	}
	noKeyBlock := &blocks.Block{Version: 1, TrustchainID: f.trustchainID, Action: noKeyAction}
	noKeyBlock.Sign(noKeyEphemeral.PrivateKey)
	require.NoError(t, f.server.PushBlock(context.Background(), noKeyBlock))

	resolver := NewResolver(f.users, f.groupsAcc, nil)

	target, err := resolver.ResolveUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, TargetUser, target.Kind)
	assert.Equal(t, userEnc.PublicKey, target.UserPublicEncryptionKey)

	_, err = resolver.ResolveUser(context.Background(), noKeyUserID)
	assert.Error(t, err, "a user with no user key yet cannot be a share recipient")
}

func TestResolverResolveProvisionalNotYetClaimed(t *testing.T) {
	f := newShareFixture(t)
	resolver := NewResolver(f.users, f.groupsAcc, f.provisional)

	appSig := mustSigKeyPair(t)
	tankerSig := mustSigKeyPair(t)
	appEnc, err := tcrypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)
	tankerEnc, err := tcrypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)

	target, err := resolver.ResolveProvisional(context.Background(), appSig.PublicKey, tankerSig.PublicKey, appEnc.PublicKey, tankerEnc.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, TargetProvisionalUser, target.Kind)
	assert.Equal(t, appSig.PublicKey, target.ProvisionalAppPublicSignatureKey)
	assert.Equal(t, tankerSig.PublicKey, target.ProvisionalTankerPublicSignatureKey)
	assert.Equal(t, appEnc.PublicKey, target.ProvisionalAppPublicEncryptionKey)
	assert.Equal(t, tankerEnc.PublicKey, target.ProvisionalTankerPublicEncryptionKey)
}

func TestResolverResolveProvisionalAlreadyClaimedGoesStraightToUser(t *testing.T) {
	f := newShareFixture(t)

	var claimingUserID ids.UserID
	claimingUserID[0] = 9
	userBlock, userKey, userEnc := ghostDeviceWithUserKey(t, claimingUserID)
	userBlock.TrustchainID = f.trustchainID
	require.NoError(t, f.server.PushBlock(context.Background(), userBlock))
	authorDeviceID := ids.DeviceID(userBlock.Hash())

	appSig := mustSigKeyPair(t)
	tankerSig := mustSigKeyPair(t)

	claim := &blocks.ProvisionalIdentityClaim{
		UserID:                           claimingUserID,
		AppSignaturePublicKey:            appSig.PublicKey,
		TankerSignaturePublicKey:         tankerSig.PublicKey,
		AuthorSignatureByAppKey:          tcrypto.Sign(claimingUserID[:], appSig.PrivateKey),
		AuthorSignatureByTankerKey:       tcrypto.Sign(claimingUserID[:], tankerSig.PrivateKey),
		RecipientUserPublicEncryptionKey: userEnc.PublicKey,
	}
	claimBlock := &blocks.Block{Version: 1, TrustchainID: f.trustchainID, Author: ids.BlockHash(authorDeviceID), Action: claim}
	claimBlock.Sign(userKey.PrivateKey)
	require.NoError(t, f.server.PushBlock(context.Background(), claimBlock))

	resolver := NewResolver(f.users, f.groupsAcc, f.provisional)
	target, err := resolver.ResolveProvisional(context.Background(), appSig.PublicKey, tankerSig.PublicKey, tcrypto.PublicEncryptionKey{}, tcrypto.PublicEncryptionKey{})
	require.NoError(t, err)
	assert.Equal(t, TargetUser, target.Kind)
	assert.Equal(t, userEnc.PublicKey, target.UserPublicEncryptionKey)
}
