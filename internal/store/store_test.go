package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
)

func TestMemoryDeviceKeysRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, found, err := m.DeviceKeys(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	keys := DeviceKeys{UserID: ids.UserID{1}, DeviceID: ids.DeviceID{2}}
	require.NoError(t, m.SetDeviceKeys(ctx, keys))

	got, found, err := m.DeviceKeys(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, keys, got)
}

func TestMemoryTrustchainPublicSignatureKeyRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var key tcrypto.PublicSignatureKey
	key[0] = 9
	require.NoError(t, m.SetTrustchainPublicSignatureKey(ctx, key))

	got, found, err := m.TrustchainPublicSignatureKey(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, key, got)
}

func TestMemoryDeviceInitializedDefaultsFalse(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	initialized, err := m.DeviceInitialized(ctx)
	require.NoError(t, err)
	assert.False(t, initialized)

	require.NoError(t, m.SetDeviceInitialized(ctx, true))
	initialized, err = m.DeviceInitialized(ctx)
	require.NoError(t, err)
	assert.True(t, initialized)
}

func TestMemoryLocalUserKeyPairsAppendOnly(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	kp1, err := tcrypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)
	kp2, err := tcrypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)

	require.NoError(t, m.AppendLocalUserKeyPair(ctx, LocalUserKeyPair{kp1}))
	require.NoError(t, m.AppendLocalUserKeyPair(ctx, LocalUserKeyPair{kp2}))

	all, err := m.LocalUserKeyPairs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, kp1, all[0].EncryptionKeyPair)
	assert.Equal(t, kp2, all[1].EncryptionKeyPair)

	all[0].PublicKey[0] = 0xFF
	reread, err := m.LocalUserKeyPairs(ctx)
	require.NoError(t, err)
	assert.Equal(t, kp1, reread[0].EncryptionKeyPair, "LocalUserKeyPairs must return a defensive copy")
}

func TestMemoryGroupRoundTripAndLookupByEncryptionKey(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var groupID ids.GroupID
	groupID[0] = 3
	enc, err := tcrypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)

	rec := GroupRecord{GroupID: groupID, PublicEncryptionKey: enc.PublicKey}
	require.NoError(t, m.PutGroup(ctx, rec))

	got, found, err := m.Group(ctx, groupID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec, got)

	byKey, found, err := m.GroupByPublicEncryptionKey(ctx, enc.PublicKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, groupID, byKey.GroupID)

	otherEnc, err := tcrypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)
	_, found, err = m.GroupByPublicEncryptionKey(ctx, otherEnc.PublicKey)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryResourceKeyRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := ids.NewSimpleResourceID(make([]byte, ids.ResourceSize))
	require.NoError(t, err)
	key, err := tcrypto.GenerateSymmetricKey()
	require.NoError(t, err)

	require.NoError(t, m.PutResourceKey(ctx, id, key))
	got, found, err := m.ResourceKey(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, key, got)
}

func TestMemoryProvisionalUserKeysRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	appKey, err := tcrypto.GenerateSignatureKeyPair()
	require.NoError(t, err)
	tankerKey, err := tcrypto.GenerateSignatureKeyPair()
	require.NoError(t, err)
	lookup := ProvisionalKeyLookup{AppPublicSignatureKey: appKey.PublicKey, TankerPublicSignatureKey: tankerKey.PublicKey}

	appEnc, err := tcrypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)
	keys := ProvisionalUserKeys{AppEncryptionKeyPair: appEnc}

	require.NoError(t, m.PutProvisionalUserKeys(ctx, lookup, keys))
	got, found, err := m.ProvisionalUserKeys(ctx, lookup)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, keys, got)
}

func TestMemoryGhostRecoveryRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	userID := ids.UserID{4}
	rec := GhostRecovery{UserID: userID, Sealed: []byte("sealed material")}
	require.NoError(t, m.SetGhostRecovery(ctx, userID, rec))

	got, found, err := m.GhostRecovery(ctx, userID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec, got)
}

func TestMemoryFlushCachesPreservesDeviceIdentity(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	keys := DeviceKeys{UserID: ids.UserID{1}}
	require.NoError(t, m.SetDeviceKeys(ctx, keys))
	require.NoError(t, m.SetDeviceInitialized(ctx, true))

	var groupID ids.GroupID
	groupID[0] = 1
	require.NoError(t, m.PutGroup(ctx, GroupRecord{GroupID: groupID}))

	require.NoError(t, m.FlushCaches(ctx))

	_, found, err := m.Group(ctx, groupID)
	require.NoError(t, err)
	assert.False(t, found, "FlushCaches must clear groups")

	gotKeys, found, err := m.DeviceKeys(ctx)
	require.NoError(t, err)
	require.True(t, found, "FlushCaches must preserve device identity")
	assert.Equal(t, keys, gotKeys)

	initialized, err := m.DeviceInitialized(ctx)
	require.NoError(t, err)
	assert.True(t, initialized)
}
