package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaydenbeard/sdk-core/internal/blocks"
	"github.com/jaydenbeard/sdk-core/internal/encryptor"
	"github.com/jaydenbeard/sdk-core/internal/groups"
	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/share"
	"github.com/jaydenbeard/sdk-core/internal/store"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
	"github.com/jaydenbeard/sdk-core/internal/trustchaintest"
)

func newReadySession(t *testing.T, server *trustchaintest.Server, trustchainID ids.TrustchainID, userTag byte, passphrase string) (*Session, ids.UserID) {
	t.Helper()
	var userID ids.UserID
	userID[0] = userTag
	sess := New(server, store.NewMemory())
	_, err := sess.Start(context.Background(), Identity{TrustchainID: trustchainID, UserID: userID})
	require.NoError(t, err)
	require.NoError(t, sess.RegisterIdentity(context.Background(), VerificationMethod{Kind: VerificationPassphrase, Passphrase: passphrase}))
	return sess, userID
}

func newTrustchain(t *testing.T) (*trustchaintest.Server, ids.TrustchainID) {
	t.Helper()
	server := trustchaintest.NewServer(nil)
	root, err := tcrypto.GenerateSignatureKeyPair()
	require.NoError(t, err)
	rootBlock := &blocks.Block{Version: 1, Action: &blocks.TrustchainCreation{PublicSignatureKey: root.PublicKey}}
	rootBlock.TrustchainID = ids.TrustchainID(rootBlock.Hash())
	require.NoError(t, server.PushBlock(context.Background(), rootBlock))
	return server, rootBlock.TrustchainID
}

func TestSessionStartFirstDeviceNeedsRegistration(t *testing.T) {
	server, trustchainID := newTrustchain(t)
	sess := New(server, store.NewMemory())

	var userID ids.UserID
	userID[0] = 1
	state, err := sess.Start(context.Background(), Identity{TrustchainID: trustchainID, UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, StateIdentityRegistrationNeeded, state)
	assert.Equal(t, state, sess.State())
}

func TestSessionStartTwiceRejected(t *testing.T) {
	server, trustchainID := newTrustchain(t)
	sess := New(server, store.NewMemory())

	var userID ids.UserID
	userID[0] = 1
	_, err := sess.Start(context.Background(), Identity{TrustchainID: trustchainID, UserID: userID})
	require.NoError(t, err)

	_, err = sess.Start(context.Background(), Identity{TrustchainID: trustchainID, UserID: userID})
	assert.Error(t, err)
}

func TestSessionRegisterIdentityWithPassphraseReachesReady(t *testing.T) {
	server, trustchainID := newTrustchain(t)
	sess := New(server, store.NewMemory())

	var userID ids.UserID
	userID[0] = 2
	state, err := sess.Start(context.Background(), Identity{TrustchainID: trustchainID, UserID: userID})
	require.NoError(t, err)
	require.Equal(t, StateIdentityRegistrationNeeded, state)

	err = sess.RegisterIdentity(context.Background(), VerificationMethod{Kind: VerificationPassphrase, Passphrase: "correct horse battery staple"})
	require.NoError(t, err)
	assert.Equal(t, StateReady, sess.State())
}

func TestSessionRegisterIdentityWrongStateRejected(t *testing.T) {
	server, _ := newTrustchain(t)
	sess := New(server, store.NewMemory())

	err := sess.RegisterIdentity(context.Background(), VerificationMethod{Kind: VerificationPassphrase, Passphrase: "x"})
	assert.Error(t, err, "RegisterIdentity before Start must fail")
}

func TestSessionSecondDeviceVerifiesWithPassphrase(t *testing.T) {
	server, trustchainID := newTrustchain(t)

	var userID ids.UserID
	userID[0] = 3

	first := New(server, store.NewMemory())
	_, err := first.Start(context.Background(), Identity{TrustchainID: trustchainID, UserID: userID})
	require.NoError(t, err)
	require.NoError(t, first.RegisterIdentity(context.Background(), VerificationMethod{Kind: VerificationPassphrase, Passphrase: "shared-secret"}))

	second := New(server, store.NewMemory())
	state, err := second.Start(context.Background(), Identity{TrustchainID: trustchainID, UserID: userID})
	require.NoError(t, err)
	require.Equal(t, StateIdentityVerificationNeeded, state)

	err = second.VerifyIdentity(context.Background(), VerificationMethod{Kind: VerificationPassphrase, Passphrase: "shared-secret"})
	require.NoError(t, err)
	assert.Equal(t, StateReady, second.State())
}

func TestSessionVerifyIdentityWrongPassphraseFails(t *testing.T) {
	server, trustchainID := newTrustchain(t)

	var userID ids.UserID
	userID[0] = 4

	first := New(server, store.NewMemory())
	_, err := first.Start(context.Background(), Identity{TrustchainID: trustchainID, UserID: userID})
	require.NoError(t, err)
	require.NoError(t, first.RegisterIdentity(context.Background(), VerificationMethod{Kind: VerificationPassphrase, Passphrase: "the-real-one"}))

	second := New(server, store.NewMemory())
	_, err = second.Start(context.Background(), Identity{TrustchainID: trustchainID, UserID: userID})
	require.NoError(t, err)

	err = second.VerifyIdentity(context.Background(), VerificationMethod{Kind: VerificationPassphrase, Passphrase: "a-wrong-guess"})
	assert.Error(t, err)
}

func TestSessionGenerateAndUseVerificationKey(t *testing.T) {
	server, trustchainID := newTrustchain(t)

	var userID ids.UserID
	userID[0] = 5

	first := New(server, store.NewMemory())
	_, err := first.Start(context.Background(), Identity{TrustchainID: trustchainID, UserID: userID})
	require.NoError(t, err)
	key, err := first.GenerateVerificationKey(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	second := New(server, store.NewMemory())
	state, err := second.Start(context.Background(), Identity{TrustchainID: trustchainID, UserID: userID})
	require.NoError(t, err)
	require.Equal(t, StateIdentityVerificationNeeded, state)

	err = second.VerifyIdentity(context.Background(), VerificationMethod{Kind: VerificationKey, VerificationKeyB64: key})
	require.NoError(t, err)
	assert.Equal(t, StateReady, second.State())
}

func TestSessionRevokeDeviceStopsTargetAndSurvivesForOthers(t *testing.T) {
	server, trustchainID := newTrustchain(t)

	var userID ids.UserID
	userID[0] = 6

	first := New(server, store.NewMemory())
	_, err := first.Start(context.Background(), Identity{TrustchainID: trustchainID, UserID: userID})
	require.NoError(t, err)
	require.NoError(t, first.RegisterIdentity(context.Background(), VerificationMethod{Kind: VerificationPassphrase, Passphrase: "pw"}))

	second := New(server, store.NewMemory())
	_, err = second.Start(context.Background(), Identity{TrustchainID: trustchainID, UserID: userID})
	require.NoError(t, err)
	require.NoError(t, second.VerifyIdentity(context.Background(), VerificationMethod{Kind: VerificationPassphrase, Passphrase: "pw"}))

	secondDeviceID := second.deviceKeys.DeviceID

	require.NoError(t, first.RevokeDevice(context.Background(), secondDeviceID))

	require.NoError(t, second.puller.Sync(context.Background()))
	dev, ok := second.ledger.Device(secondDeviceID)
	require.True(t, ok)
	assert.NotNil(t, dev.RevokedAtIndex)

	assert.Equal(t, StateReady, first.State())
}

func TestSessionRevokeDeviceWrongStateRejected(t *testing.T) {
	server, _ := newTrustchain(t)
	sess := New(server, store.NewMemory())
	err := sess.RevokeDevice(context.Background(), ids.DeviceID{})
	assert.Error(t, err)
}

func TestSessionStopIsIdempotentAndFiresCallback(t *testing.T) {
	server, trustchainID := newTrustchain(t)
	sess := New(server, store.NewMemory())

	var userID ids.UserID
	userID[0] = 7
	_, err := sess.Start(context.Background(), Identity{TrustchainID: trustchainID, UserID: userID})
	require.NoError(t, err)
	require.NoError(t, sess.RegisterIdentity(context.Background(), VerificationMethod{Kind: VerificationPassphrase, Passphrase: "pw"}))

	fired := 0
	sess.OnSessionClosed = func() { fired++ }

	sess.Stop()
	assert.Equal(t, StateStopped, sess.State())
	assert.Equal(t, 1, fired)

	sess.Stop()
	assert.Equal(t, 1, fired, "stopping an already-stopped session must not fire the callback again")
}

func TestSessionEncryptDecryptRoundTripsForSelf(t *testing.T) {
	server, trustchainID := newTrustchain(t)
	sess, _ := newReadySession(t, server, trustchainID, 10, "pw")

	clear := []byte("hello trustchain")
	encrypted, err := sess.Encrypt(context.Background(), clear, nil)
	require.NoError(t, err)

	decrypted, err := sess.Decrypt(context.Background(), encrypted)
	require.NoError(t, err)
	assert.Equal(t, clear, decrypted)
}

func TestSessionEncryptShareAndDecryptBetweenTwoUsers(t *testing.T) {
	server, trustchainID := newTrustchain(t)
	alice, _ := newReadySession(t, server, trustchainID, 11, "alice-pw")
	bob, bobUserID := newReadySession(t, server, trustchainID, 12, "bob-pw")

	require.NoError(t, alice.Users.Sync(context.Background()))
	target, err := alice.Resolver.ResolveUser(context.Background(), bobUserID)
	require.NoError(t, err)

	clear := []byte("shared with bob")
	encrypted, err := alice.Encrypt(context.Background(), clear, []share.Target{target})
	require.NoError(t, err)

	decrypted, err := bob.Decrypt(context.Background(), encrypted)
	require.NoError(t, err)
	assert.Equal(t, clear, decrypted)
}

func TestSessionShareAfterEncryptAddsRecipientLater(t *testing.T) {
	server, trustchainID := newTrustchain(t)
	alice, _ := newReadySession(t, server, trustchainID, 13, "alice-pw")
	bob, bobUserID := newReadySession(t, server, trustchainID, 14, "bob-pw")

	clear := []byte("late share")
	encrypted, err := alice.Encrypt(context.Background(), clear, nil)
	require.NoError(t, err)
	resourceID, err := extractResourceIDForTest(encrypted)
	require.NoError(t, err)

	require.NoError(t, alice.Users.Sync(context.Background()))
	target, err := alice.Resolver.ResolveUser(context.Background(), bobUserID)
	require.NoError(t, err)
	require.NoError(t, alice.Share(context.Background(), resourceID, []share.Target{target}))

	decrypted, err := bob.Decrypt(context.Background(), encrypted)
	require.NoError(t, err)
	assert.Equal(t, clear, decrypted)
}

// TestSessionCreateGroupAndUpdateGroupMembersChainsBlocks exercises the
// Session-level CreateGroup/UpdateGroupMembers wiring (block construction,
// pushing, local group-key caching) the same way groups_test.go exercises
// the underlying groups.Manager directly. The group's own creator is the
// only local device verified here to come back able to decrypt a
// group-targeted share: receivekey unwraps group-targeted keys only through
// a locally held Internal group record, and no package unseals a member's
// own sealed Member entry.
func TestSessionCreateGroupAndUpdateGroupMembersChainsBlocks(t *testing.T) {
	server, trustchainID := newTrustchain(t)
	alice, _ := newReadySession(t, server, trustchainID, 15, "alice-pw")
	_, bobUserID := newReadySession(t, server, trustchainID, 16, "bob-pw")
	_, carolUserID := newReadySession(t, server, trustchainID, 17, "carol-pw")

	require.NoError(t, alice.Users.Sync(context.Background()))
	bobUser, err := alice.Users.GetUser(context.Background(), bobUserID)
	require.NoError(t, err)

	before := server.BlockCount(trustchainID)
	groupID, err := alice.CreateGroup(context.Background(), []groups.MemberTarget{
		{UserID: bobUserID, PublicUserEncryptionKey: bobUser.CurrentUserPublicKey},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, before+1, server.BlockCount(trustchainID))

	clear := []byte("group secret")
	encrypted, err := alice.Encrypt(context.Background(), clear, []share.Target{{Kind: share.TargetUserGroup, GroupPublicEncryptionKey: mustGroupKey(t, alice, groupID)}})
	require.NoError(t, err)

	// Alice both created the group and shared the resource with herself
	// directly (Encrypt always shares with self), so she can decrypt it
	// regardless of the group target resolving correctly.
	decrypted, err := alice.Decrypt(context.Background(), encrypted)
	require.NoError(t, err)
	assert.Equal(t, clear, decrypted)

	carolUser, err := alice.Users.GetUser(context.Background(), carolUserID)
	require.NoError(t, err)
	before = server.BlockCount(trustchainID)
	require.NoError(t, alice.UpdateGroupMembers(context.Background(), groupID, []groups.MemberTarget{
		{UserID: carolUserID, PublicUserEncryptionKey: carolUser.CurrentUserPublicKey},
	}, nil))
	assert.Equal(t, before+1, server.BlockCount(trustchainID))
}

func mustGroupKey(t *testing.T, sess *Session, groupID ids.GroupID) tcrypto.PublicEncryptionKey {
	t.Helper()
	g, err := sess.Groups.GetGroup(context.Background(), groupID)
	require.NoError(t, err)
	return g.PublicEncryptionKey
}

func extractResourceIDForTest(encrypted []byte) (ids.ResourceID, error) {
	return encryptor.ExtractResourceID(encrypted)
}

func TestSessionProvisionalShareBeforeClaimUnwrapsOnSync(t *testing.T) {
	server, trustchainID := newTrustchain(t)
	alice, _ := newReadySession(t, server, trustchainID, 18, "alice-pw")
	bob, _ := newReadySession(t, server, trustchainID, 19, "bob-pw")

	appSig, err := tcrypto.GenerateSignatureKeyPair()
	require.NoError(t, err)
	tankerSig, err := tcrypto.GenerateSignatureKeyPair()
	require.NoError(t, err)
	appEnc, err := tcrypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)
	tankerEnc, err := tcrypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)

	// Bob has already been handed this provisional identity's keypairs out
	// of band (e.g. verified ownership of the underlying email) but has not
	// yet attached it to his trustchain identity.
	lookup := store.ProvisionalKeyLookup{AppPublicSignatureKey: appSig.PublicKey, TankerPublicSignatureKey: tankerSig.PublicKey}
	keys := store.ProvisionalUserKeys{AppEncryptionKeyPair: appEnc, TankerEncryptionKeyPair: tankerEnc}
	require.NoError(t, bob.store.PutProvisionalUserKeys(context.Background(), lookup, keys))

	target, err := alice.Resolver.ResolveProvisional(context.Background(), appSig.PublicKey, tankerSig.PublicKey, appEnc.PublicKey, tankerEnc.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, share.TargetProvisionalUser, target.Kind, "identity has not been claimed yet")

	clear := []byte("for whoever claims this address")
	encrypted, err := alice.Encrypt(context.Background(), clear, []share.Target{target})
	require.NoError(t, err)

	decrypted, err := bob.Decrypt(context.Background(), encrypted)
	require.NoError(t, err)
	assert.Equal(t, clear, decrypted)
}

func TestSessionAttachProvisionalIdentityClaimsAndResolvesToUser(t *testing.T) {
	server, trustchainID := newTrustchain(t)
	alice, _ := newReadySession(t, server, trustchainID, 20, "alice-pw")
	bob, _ := newReadySession(t, server, trustchainID, 21, "bob-pw")

	appSig, err := tcrypto.GenerateSignatureKeyPair()
	require.NoError(t, err)
	tankerSig, err := tcrypto.GenerateSignatureKeyPair()
	require.NoError(t, err)
	appEnc, err := tcrypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)
	tankerEnc, err := tcrypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)

	require.NoError(t, bob.AttachProvisionalIdentity(context.Background(), ProvisionalIdentity{
		AppSignature:     appSig,
		TankerSignature:  tankerSig,
		AppEncryption:    appEnc,
		TankerEncryption: tankerEnc,
	}))

	require.NoError(t, alice.Provisional.Sync(context.Background()))
	target, err := alice.Resolver.ResolveProvisional(context.Background(), appSig.PublicKey, tankerSig.PublicKey, appEnc.PublicKey, tankerEnc.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, share.TargetUser, target.Kind, "once claimed, sharing to the provisional identity should resolve straight to the user")

	clear := []byte("claimed already")
	encrypted, err := alice.Encrypt(context.Background(), clear, []share.Target{target})
	require.NoError(t, err)

	decrypted, err := bob.Decrypt(context.Background(), encrypted)
	require.NoError(t, err)
	assert.Equal(t, clear, decrypted)
}
