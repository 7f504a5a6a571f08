// Package store implements the local key/value contract: at minimum
// deviceKeys, localUserKeys[], trustchainPublicSignatureKey,
// deviceInitialized, groups[groupId], resourceKeys[resourceId],
// provisionalUserKeys[appSigPub, tankerSigPub], plus a flush-all-caches
// operation. No schema or migration version counter is kept.
package store

import (
	"context"
	"sync"

	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
)

// LocalUserKeyPair is one entry of the local user's chronologically
// ordered user-key history (LocalUser.userKeyPairs).
type LocalUserKeyPair struct {
	tcrypto.EncryptionKeyPair
}

// DeviceKeys is the local device's private identity material, persisted
// once at registerIdentity/verifyIdentity time.
type DeviceKeys struct {
	DeviceID   ids.DeviceID
	UserID     ids.UserID
	Signature  tcrypto.SignatureKeyPair
	Encryption tcrypto.EncryptionKeyPair
}

// GroupRecord is what the local store keeps for a group: public state
// always, private key material only for groups we are (or were) a member
// of ("internal" groups).
type GroupRecord struct {
	GroupID                  ids.GroupID
	PublicSignatureKey       tcrypto.PublicSignatureKey
	PublicEncryptionKey      tcrypto.PublicEncryptionKey
	LastBlockHash            ids.BlockHash
	LastKeyRotationBlockHash ids.BlockHash
	Internal                 bool
	SignatureKeyPair         tcrypto.SignatureKeyPair
	EncryptionKeyPair        tcrypto.EncryptionKeyPair
}

// ProvisionalUserKeys is the pair of keypairs (app half + tanker half) a
// provisional-identity-claim block teaches the local accessor.
type ProvisionalUserKeys struct {
	AppEncryptionKeyPair    tcrypto.EncryptionKeyPair
	TankerEncryptionKeyPair tcrypto.EncryptionKeyPair
}

// GhostRecovery is the sealed ghost-device key material registerIdentity
// leaves behind so a later verifyIdentity call (possibly from a brand new
// device) can recover it once the user re-presents the same verification
// factor. Sealed is an AEAD ciphertext under a key derived from the
// verification factor itself (see internal/session), standing in for the
// out-of-scope server-side escrow channel a real deployment would use: in
// this Store implementation it is only reachable from a device that shares
// the same Store instance as the one that registered the identity.
type GhostRecovery struct {
	UserID ids.UserID
	Sealed []byte
}

// ProvisionalKeyLookup identifies a provisional identity by its two public
// signature keys (app half, tanker half).
type ProvisionalKeyLookup struct {
	AppPublicSignatureKey    tcrypto.PublicSignatureKey
	TankerPublicSignatureKey tcrypto.PublicSignatureKey
}

// Store is the local persistence contract. Implementations: an in-memory
// default (Memory) and a Postgres-backed durable option (PostgresStore),
// both safe for concurrent use.
type Store interface {
	SetDeviceKeys(ctx context.Context, keys DeviceKeys) error
	DeviceKeys(ctx context.Context) (DeviceKeys, bool, error)

	SetTrustchainPublicSignatureKey(ctx context.Context, key tcrypto.PublicSignatureKey) error
	TrustchainPublicSignatureKey(ctx context.Context) (tcrypto.PublicSignatureKey, bool, error)

	SetDeviceInitialized(ctx context.Context, initialized bool) error
	DeviceInitialized(ctx context.Context) (bool, error)

	AppendLocalUserKeyPair(ctx context.Context, kp LocalUserKeyPair) error
	LocalUserKeyPairs(ctx context.Context) ([]LocalUserKeyPair, error)

	PutGroup(ctx context.Context, g GroupRecord) error
	Group(ctx context.Context, id ids.GroupID) (GroupRecord, bool, error)
	GroupByPublicEncryptionKey(ctx context.Context, key tcrypto.PublicEncryptionKey) (GroupRecord, bool, error)

	PutResourceKey(ctx context.Context, id ids.ResourceID, key tcrypto.SymmetricKey) error
	ResourceKey(ctx context.Context, id ids.ResourceID) (tcrypto.SymmetricKey, bool, error)

	PutProvisionalUserKeys(ctx context.Context, lookup ProvisionalKeyLookup, keys ProvisionalUserKeys) error
	ProvisionalUserKeys(ctx context.Context, lookup ProvisionalKeyLookup) (ProvisionalUserKeys, bool, error)

	SetGhostRecovery(ctx context.Context, userID ids.UserID, rec GhostRecovery) error
	GhostRecovery(ctx context.Context, userID ids.UserID) (GhostRecovery, bool, error)

	// FlushCaches resets every table except the device-identity ones
	// (deviceKeys, trustchainPublicSignatureKey, deviceInitialized).
	FlushCaches(ctx context.Context) error

	Close() error
}

// Memory is the default in-memory Store, a mutex-guarded set of maps. It
// has no pack analogue beyond "a map protected by a mutex" -- which is what
// every teacher store wraps a real backend around anyway.
type Memory struct {
	mu sync.RWMutex

	deviceKeys        *DeviceKeys
	trustchainPubKey  *tcrypto.PublicSignatureKey
	deviceInitialized bool
	localUserKeys     []LocalUserKeyPair
	groups            map[ids.GroupID]GroupRecord
	resourceKeys      map[string]tcrypto.SymmetricKey
	provisionalKeys   map[string]ProvisionalUserKeys
	ghostRecovery     map[ids.UserID]GhostRecovery
}

func NewMemory() *Memory {
	return &Memory{
		groups:          make(map[ids.GroupID]GroupRecord),
		resourceKeys:    make(map[string]tcrypto.SymmetricKey),
		provisionalKeys: make(map[string]ProvisionalUserKeys),
		ghostRecovery:   make(map[ids.UserID]GhostRecovery),
	}
}

func (m *Memory) SetDeviceKeys(_ context.Context, keys DeviceKeys) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deviceKeys = &keys
	return nil
}

func (m *Memory) DeviceKeys(_ context.Context) (DeviceKeys, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.deviceKeys == nil {
		return DeviceKeys{}, false, nil
	}
	return *m.deviceKeys, true, nil
}

func (m *Memory) SetTrustchainPublicSignatureKey(_ context.Context, key tcrypto.PublicSignatureKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trustchainPubKey = &key
	return nil
}

func (m *Memory) TrustchainPublicSignatureKey(_ context.Context) (tcrypto.PublicSignatureKey, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.trustchainPubKey == nil {
		return tcrypto.PublicSignatureKey{}, false, nil
	}
	return *m.trustchainPubKey, true, nil
}

func (m *Memory) SetDeviceInitialized(_ context.Context, initialized bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deviceInitialized = initialized
	return nil
}

func (m *Memory) DeviceInitialized(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deviceInitialized, nil
}

func (m *Memory) AppendLocalUserKeyPair(_ context.Context, kp LocalUserKeyPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localUserKeys = append(m.localUserKeys, kp)
	return nil
}

func (m *Memory) LocalUserKeyPairs(_ context.Context) ([]LocalUserKeyPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]LocalUserKeyPair, len(m.localUserKeys))
	copy(out, m.localUserKeys)
	return out, nil
}

func (m *Memory) PutGroup(_ context.Context, g GroupRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.GroupID] = g
	return nil
}

func (m *Memory) Group(_ context.Context, id ids.GroupID) (GroupRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	return g, ok, nil
}

func (m *Memory) GroupByPublicEncryptionKey(_ context.Context, key tcrypto.PublicEncryptionKey) (GroupRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.groups {
		if g.PublicEncryptionKey == key {
			return g, true, nil
		}
	}
	return GroupRecord{}, false, nil
}

func (m *Memory) PutResourceKey(_ context.Context, id ids.ResourceID, key tcrypto.SymmetricKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resourceKeys[id.Key()] = key
	return nil
}

func (m *Memory) ResourceKey(_ context.Context, id ids.ResourceID) (tcrypto.SymmetricKey, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.resourceKeys[id.Key()]
	return k, ok, nil
}

func provisionalKey(l ProvisionalKeyLookup) string {
	return string(l.AppPublicSignatureKey[:]) + "|" + string(l.TankerPublicSignatureKey[:])
}

func (m *Memory) PutProvisionalUserKeys(_ context.Context, lookup ProvisionalKeyLookup, keys ProvisionalUserKeys) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provisionalKeys[provisionalKey(lookup)] = keys
	return nil
}

func (m *Memory) ProvisionalUserKeys(_ context.Context, lookup ProvisionalKeyLookup) (ProvisionalUserKeys, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.provisionalKeys[provisionalKey(lookup)]
	return k, ok, nil
}

func (m *Memory) SetGhostRecovery(_ context.Context, userID ids.UserID, rec GhostRecovery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ghostRecovery[userID] = rec
	return nil
}

func (m *Memory) GhostRecovery(_ context.Context, userID ids.UserID) (GhostRecovery, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.ghostRecovery[userID]
	return rec, ok, nil
}

func (m *Memory) FlushCaches(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localUserKeys = nil
	m.groups = make(map[ids.GroupID]GroupRecord)
	m.resourceKeys = make(map[string]tcrypto.SymmetricKey)
	m.provisionalKeys = make(map[string]ProvisionalUserKeys)
	m.ghostRecovery = make(map[ids.UserID]GhostRecovery)
	return nil
}

func (m *Memory) Close() error { return nil }
