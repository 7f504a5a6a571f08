// Package session implements the client-facing state machine:
// start/registerIdentity/verifyIdentity/stop/revokeDevice, wiring together
// the ledger, accessors, groups, share and receivekey packages behind the
// single entry point an application actually holds onto. Shape follows the
// teacher's AuthService (internal/auth/auth.go): one struct owning the
// credential lifecycle, a mutex guarding the parts that must not interleave,
// and a dedicated logger.
package session

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jaydenbeard/sdk-core/internal/accessors"
	"github.com/jaydenbeard/sdk-core/internal/blocks"
	"github.com/jaydenbeard/sdk-core/internal/encryptor"
	"github.com/jaydenbeard/sdk-core/internal/groups"
	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/metrics"
	"github.com/jaydenbeard/sdk-core/internal/receivekey"
	"github.com/jaydenbeard/sdk-core/internal/sdkerr"
	"github.com/jaydenbeard/sdk-core/internal/share"
	"github.com/jaydenbeard/sdk-core/internal/store"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
	"github.com/jaydenbeard/sdk-core/internal/transport"
)

var logger = log.New(os.Stdout, "[SESSION] ", log.Ldate|log.Ltime|log.LUTC)

// State is one of the four states a Session moves through.
type State int

const (
	StateStopped State = iota
	StateIdentityRegistrationNeeded
	StateIdentityVerificationNeeded
	StateReady
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateIdentityRegistrationNeeded:
		return "IdentityRegistrationNeeded"
	case StateIdentityVerificationNeeded:
		return "IdentityVerificationNeeded"
	case StateReady:
		return "Ready"
	default:
		return "Unknown"
	}
}

// Identity names the trustchain and user a Session is being started for.
// A real deployment mints this server-side as a signed token; sdk-core
// takes it pre-resolved since token issuance is outside this SDK's
// boundary.
type Identity struct {
	TrustchainID ids.TrustchainID
	UserID       ids.UserID
}

// Session is the single stateful object an application holds: it owns the
// local device's identity lifecycle and wires the ledger, accessors,
// groups, share and receivekey packages behind the Encrypt/Decrypt/Share/
// CreateGroup/UpdateGroupMembers entry points. Every exported method takes
// sess.mu, so the session runs one operation at a time; waiting callers
// are not guaranteed to run in arrival order.
type Session struct {
	mu sync.Mutex

	requester transport.IRequester
	store     store.Store

	ledger      *accessors.Ledger
	puller      *accessors.Puller
	Users       *accessors.UserAccessor
	Groups      *accessors.GroupAccessor
	Provisional *accessors.ProvisionalUserAccessor
	local       *accessors.LocalUserAccessor

	// GroupsManager and Resolver are the group-lifecycle and
	// share-target-resolution entry points; Encrypt/Share drive them
	// internally, but callers needing to resolve a Target themselves
	// before calling Share can reach them directly.
	GroupsManager *groups.Manager
	Resolver      *share.Resolver
	sharer        *share.Sharer
	receiver      *receivekey.Processor

	identity   Identity
	state      State
	deviceKeys store.DeviceKeys

	// OnSessionClosed fires whenever the session transitions to Stopped,
	// whether from an explicit Stop or a detected revocation.
	OnSessionClosed func()
	// OnDeviceRevoked fires when Start finds the local device revoked, or
	// when RevokeDevice revokes the local device itself. Other syncs do not
	// check for revocation.
	OnDeviceRevoked func()
}

// New constructs a Session in the Stopped state. Call Start to move it
// forward.
func New(requester transport.IRequester, s store.Store) *Session {
	return &Session{requester: requester, store: s, state: StateStopped}
}

func (sess *Session) State() State {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state
}

func (sess *Session) requireState(want State) error {
	if sess.state != want {
		return sdkerr.Newf(sdkerr.KindPreconditionFailed, "InvalidSessionState",
			fmt.Sprintf("operation requires state %s, session is %s", want, sess.state))
	}
	return nil
}

// Start opens a Session for identity, returning the state the caller must
// react to next: Ready if an already-registered local device picked up
// where it left off, IdentityRegistrationNeeded if this user has never
// had a device on this trustchain, or IdentityVerificationNeeded if the
// user exists but this particular device does not yet.
func (sess *Session) Start(ctx context.Context, identity Identity) (State, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != StateStopped {
		return 0, sdkerr.New(sdkerr.KindPreconditionFailed, "session is already started")
	}

	sess.identity = identity
	sess.ledger = accessors.NewLedger(identity.TrustchainID)
	sess.puller = accessors.NewPuller(identity.TrustchainID, sess.requester, sess.ledger)
	sess.Users = accessors.NewUserAccessor(sess.puller)
	sess.Groups = accessors.NewGroupAccessor(sess.puller, sess.store)
	sess.Provisional = accessors.NewProvisionalUserAccessor(sess.puller)
	sess.local = accessors.NewLocalUserAccessor(sess.puller, sess.store)

	sess.GroupsManager = groups.NewManager(identity.TrustchainID, sess.requester, sess.store, sess.Users, sess.Groups)
	sess.Resolver = share.NewResolver(sess.Users, sess.Groups, sess.Provisional)
	sess.sharer = share.NewSharer(identity.TrustchainID, sess.requester)

	initialized, err := sess.store.DeviceInitialized(ctx)
	if err != nil {
		return 0, fmt.Errorf("session: start: %w", err)
	}

	if !initialized {
		if err := sess.puller.Sync(ctx); err != nil {
			return 0, fmt.Errorf("session: start: initial sync: %w", err)
		}
		if _, ok := sess.ledger.User(identity.UserID); ok {
			sess.state = StateIdentityVerificationNeeded
		} else {
			sess.state = StateIdentityRegistrationNeeded
		}
		logger.Printf("start: device not initialized, moving to %s", sess.state)
		metrics.RecordSessionStateTransition(sess.state.String())
		return sess.state, nil
	}

	keys, ok, err := sess.store.DeviceKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("session: start: %w", err)
	}
	if !ok {
		return 0, sdkerr.New(sdkerr.KindInternalError, "deviceInitialized is true but no device keys are stored")
	}
	sess.deviceKeys = keys
	sess.initReceiver()

	if err := sess.puller.Sync(ctx); err != nil {
		return 0, fmt.Errorf("session: start: sync: %w", err)
	}

	if dev, ok := sess.ledger.Device(keys.DeviceID); ok && dev.RevokedAtIndex != nil {
		sess.state = StateStopped
		if sess.OnDeviceRevoked != nil {
			sess.OnDeviceRevoked()
		}
		if sess.OnSessionClosed != nil {
			sess.OnSessionClosed()
		}
		return StateStopped, sdkerr.New(sdkerr.KindDeviceRevoked, "local device has been revoked")
	}

	sess.state = StateReady
	logger.Printf("start: device %s ready", keys.DeviceID)
	metrics.RecordSessionStateTransition(sess.state.String())
	return StateReady, nil
}

// RegisterIdentity bootstraps a user's very first device on a trustchain:
// it mints a ghost device (an invisible device that exists only to
// delegate to real ones), a permanent user encryption keypair, and this
// device's own keys, then seals the ghost+user key material behind
// method so a later verifyIdentity call (from any device) can recover it.
func (sess *Session) RegisterIdentity(ctx context.Context, method VerificationMethod) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.requireState(StateIdentityRegistrationNeeded); err != nil {
		return err
	}

	ghostSig, err := tcrypto.GenerateSignatureKeyPair()
	if err != nil {
		return fmt.Errorf("session: registerIdentity: %w", err)
	}
	ghostEnc, err := tcrypto.GenerateEncryptionKeyPair()
	if err != nil {
		return fmt.Errorf("session: registerIdentity: %w", err)
	}
	userEnc, err := tcrypto.GenerateEncryptionKeyPair()
	if err != nil {
		return fmt.Errorf("session: registerIdentity: %w", err)
	}

	ghostDeviceID, err := sess.pushGhostDevice(ctx, ghostSig, ghostEnc, userEnc)
	if err != nil {
		return fmt.Errorf("session: registerIdentity: %w", err)
	}

	deviceSig, err := tcrypto.GenerateSignatureKeyPair()
	if err != nil {
		return fmt.Errorf("session: registerIdentity: %w", err)
	}
	deviceEnc, err := tcrypto.GenerateEncryptionKeyPair()
	if err != nil {
		return fmt.Errorf("session: registerIdentity: %w", err)
	}

	deviceID, err := sess.pushRealDevice(ctx, ghostDeviceID, ghostSig.PrivateKey, deviceSig, deviceEnc, userEnc)
	if err != nil {
		return fmt.Errorf("session: registerIdentity: %w", err)
	}

	if method.Kind != VerificationKey {
		sealKey, err := method.sealKey()
		if err != nil {
			return fmt.Errorf("session: registerIdentity: %w", err)
		}
		sealed, err := sealRecoveryPayload(recoveryPayload{GhostSignature: ghostSig, GhostEncryption: ghostEnc, UserEncryption: userEnc}, sealKey)
		if err != nil {
			return fmt.Errorf("session: registerIdentity: %w", err)
		}
		if err := sess.store.SetGhostRecovery(ctx, sess.identity.UserID, store.GhostRecovery{UserID: sess.identity.UserID, Sealed: sealed}); err != nil {
			return fmt.Errorf("session: registerIdentity: %w", err)
		}
	}

	return sess.finishRegistration(ctx, deviceID, deviceSig, deviceEnc, userEnc)
}

// GenerateVerificationKey exports the ghost+user recovery payload as a
// standalone credential the caller can store themselves: bypasses
// GhostRecovery storage entirely, so it works even against a deployment
// that never implemented server-side escrow.
func (sess *Session) GenerateVerificationKey(ctx context.Context) (string, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.requireState(StateIdentityRegistrationNeeded); err != nil {
		return "", err
	}

	ghostSig, err := tcrypto.GenerateSignatureKeyPair()
	if err != nil {
		return "", fmt.Errorf("session: generateVerificationKey: %w", err)
	}
	ghostEnc, err := tcrypto.GenerateEncryptionKeyPair()
	if err != nil {
		return "", fmt.Errorf("session: generateVerificationKey: %w", err)
	}
	userEnc, err := tcrypto.GenerateEncryptionKeyPair()
	if err != nil {
		return "", fmt.Errorf("session: generateVerificationKey: %w", err)
	}

	ghostDeviceID, err := sess.pushGhostDevice(ctx, ghostSig, ghostEnc, userEnc)
	if err != nil {
		return "", fmt.Errorf("session: generateVerificationKey: %w", err)
	}

	return encodeVerificationKey(ghostDeviceID, recoveryPayload{GhostSignature: ghostSig, GhostEncryption: ghostEnc, UserEncryption: userEnc}), nil
}

// VerifyIdentity recovers an already-registered user's ghost+user key
// material via method and mints a brand new device for it, used whenever
// RegisterIdentity is not the right call (this device is not this user's
// first).
func (sess *Session) VerifyIdentity(ctx context.Context, method VerificationMethod) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.requireState(StateIdentityVerificationNeeded); err != nil {
		return err
	}

	var ghostDeviceID ids.DeviceID
	var payload recoveryPayload
	if method.Kind == VerificationKey {
		gid, p, err := decodeVerificationKey(method.VerificationKeyB64)
		if err != nil {
			return err
		}
		ghostDeviceID, payload = gid, p
	} else {
		rec, found, err := sess.store.GhostRecovery(ctx, sess.identity.UserID)
		if err != nil {
			return fmt.Errorf("session: verifyIdentity: %w", err)
		}
		if !found {
			return sdkerr.New(sdkerr.KindInvalidVerification, "no recovery payload is available for this verification method")
		}
		sealKey, err := method.sealKey()
		if err != nil {
			return fmt.Errorf("session: verifyIdentity: %w", err)
		}
		p, err := openRecoveryPayload(rec.Sealed, sealKey)
		if err != nil {
			return err
		}
		payload = p
		dev, ok := sess.ledger.Device(ghostDeviceIDFromSignatureKey(payload.GhostSignature.PublicKey, sess.ledger))
		if !ok {
			return sdkerr.New(sdkerr.KindInternalError, "ghost device not found on trustchain after recovery")
		}
		ghostDeviceID = dev.DeviceID
	}

	deviceSig, err := tcrypto.GenerateSignatureKeyPair()
	if err != nil {
		return fmt.Errorf("session: verifyIdentity: %w", err)
	}
	deviceEnc, err := tcrypto.GenerateEncryptionKeyPair()
	if err != nil {
		return fmt.Errorf("session: verifyIdentity: %w", err)
	}

	deviceID, err := sess.pushRealDevice(ctx, ghostDeviceID, payload.GhostSignature.PrivateKey, deviceSig, deviceEnc, payload.UserEncryption)
	if err != nil {
		return fmt.Errorf("session: verifyIdentity: %w", err)
	}

	return sess.finishRegistration(ctx, deviceID, deviceSig, deviceEnc, payload.UserEncryption)
}

// ghostDeviceIDFromSignatureKey scans the (already-synced) ledger for the
// device whose signature key matches pub. The ghost device's own deviceId
// is hash(block), which the recovery payload doesn't carry, so it has to
// be looked up by the one stable thing it does carry: its public key.
func ghostDeviceIDFromSignatureKey(pub tcrypto.PublicSignatureKey, ledger *accessors.Ledger) ids.DeviceID {
	return ledger.DeviceIDBySignatureKey(pub)
}

func (sess *Session) pushGhostDevice(ctx context.Context, ghostSig tcrypto.SignatureKeyPair, ghostEnc tcrypto.EncryptionKeyPair, userEnc tcrypto.EncryptionKeyPair) (ids.DeviceID, error) {
	sealedUserPriv, err := tcrypto.SealEncrypt(userEnc.PrivateKey[:], ghostEnc.PublicKey)
	if err != nil {
		return ids.DeviceID{}, fmt.Errorf("seal user key to ghost device: %w", err)
	}

	action := &blocks.DeviceCreation{
		Version:                     3,
		EphemeralPublicSignatureKey: ghostSig.PublicKey,
		UserID:                      sess.identity.UserID,
		PublicSignatureKey:          ghostSig.PublicKey,
		PublicEncryptionKey:         ghostEnc.PublicKey,
		PublicUserEncryptionKey:     userEnc.PublicKey,
		IsGhostDevice:               true,
	}
	copy(action.SealedPrivateUserEncryptionKey[:], sealedUserPriv)
	delegationPayload := append(append([]byte{}, ghostSig.PublicKey[:]...), sess.identity.UserID[:]...)
	action.DelegationSignature = tcrypto.Sign(delegationPayload, ghostSig.PrivateKey)

	b := &blocks.Block{Version: 1, TrustchainID: sess.identity.TrustchainID, Action: action}
	b.Sign(ghostSig.PrivateKey)

	if err := sess.requester.PushBlock(ctx, b); err != nil {
		return ids.DeviceID{}, fmt.Errorf("push ghost device: %w", err)
	}
	if err := sess.puller.Sync(ctx); err != nil {
		return ids.DeviceID{}, fmt.Errorf("sync after ghost device: %w", err)
	}
	return ids.DeviceID(b.Hash()), nil
}

// pushRealDevice authors a DeviceCreation v3 for a brand new (non-ghost)
// device, delegated by authorDeviceID/authorSigningKey (the ghost device),
// resealing the user's long-term encryption private key to the new
// device's own encryption key.
func (sess *Session) pushRealDevice(ctx context.Context, authorDeviceID ids.DeviceID, authorSigningKey tcrypto.PrivateSignatureKey, deviceSig tcrypto.SignatureKeyPair, deviceEnc tcrypto.EncryptionKeyPair, userEnc tcrypto.EncryptionKeyPair) (ids.DeviceID, error) {
	sealedUserPriv, err := tcrypto.SealEncrypt(userEnc.PrivateKey[:], deviceEnc.PublicKey)
	if err != nil {
		return ids.DeviceID{}, fmt.Errorf("seal user key to new device: %w", err)
	}

	action := &blocks.DeviceCreation{
		Version:                     3,
		EphemeralPublicSignatureKey: deviceSig.PublicKey,
		UserID:                      sess.identity.UserID,
		PublicSignatureKey:          deviceSig.PublicKey,
		PublicEncryptionKey:         deviceEnc.PublicKey,
		PublicUserEncryptionKey:     userEnc.PublicKey,
	}
	copy(action.SealedPrivateUserEncryptionKey[:], sealedUserPriv)
	delegationPayload := append(append([]byte{}, deviceSig.PublicKey[:]...), sess.identity.UserID[:]...)
	action.DelegationSignature = tcrypto.Sign(delegationPayload, authorSigningKey)

	b := &blocks.Block{Version: 1, TrustchainID: sess.identity.TrustchainID, Author: ids.BlockHash(authorDeviceID), Action: action}
	b.Sign(deviceSig.PrivateKey)

	if err := sess.requester.PushBlock(ctx, b); err != nil {
		return ids.DeviceID{}, fmt.Errorf("push device: %w", err)
	}
	if err := sess.puller.Sync(ctx); err != nil {
		return ids.DeviceID{}, fmt.Errorf("sync after device creation: %w", err)
	}
	return ids.DeviceID(b.Hash()), nil
}

func (sess *Session) finishRegistration(ctx context.Context, deviceID ids.DeviceID, deviceSig tcrypto.SignatureKeyPair, deviceEnc tcrypto.EncryptionKeyPair, userEnc tcrypto.EncryptionKeyPair) error {
	sess.deviceKeys = store.DeviceKeys{
		DeviceID:   deviceID,
		UserID:     sess.identity.UserID,
		Signature:  deviceSig,
		Encryption: deviceEnc,
	}
	if err := sess.store.SetDeviceKeys(ctx, sess.deviceKeys); err != nil {
		return fmt.Errorf("persist device keys: %w", err)
	}
	if err := sess.store.AppendLocalUserKeyPair(ctx, store.LocalUserKeyPair{EncryptionKeyPair: userEnc}); err != nil {
		return fmt.Errorf("persist user key: %w", err)
	}
	if err := sess.store.SetDeviceInitialized(ctx, true); err != nil {
		return fmt.Errorf("persist device initialized: %w", err)
	}
	sess.initReceiver()
	sess.state = StateReady
	logger.Printf("device %s ready for user %s", deviceID, sess.identity.UserID)
	metrics.RecordSessionStateTransition(sess.state.String())
	return nil
}

// initReceiver (re)builds the receivekey processor for the local device's
// current encryption keypair and hooks it into the puller so every freshly
// synced block gets a chance to unwrap a resource key meant for this
// device, driven automatically rather than requiring the caller to replay
// blocks by hand.
func (sess *Session) initReceiver() {
	sess.receiver = receivekey.NewProcessor(sess.store, sess.deviceKeys.Encryption)
	sess.puller.OnBlock = func(b *blocks.Block) {
		if err := sess.receiver.Process(context.Background(), b); err != nil {
			logger.Printf("receivekey: process block %d: %v", b.Index, err)
		}
	}
}

// Stop closes the session; it may be started again with a fresh Start
// call.
func (sess *Session) Stop() {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state == StateStopped {
		return
	}
	sess.state = StateStopped
	metrics.RecordSessionStateTransition(sess.state.String())
	if sess.OnSessionClosed != nil {
		sess.OnSessionClosed()
	}
	logger.Printf("session stopped")
}

// RevokeDevice issues a v2 DeviceRevocation: a fresh user encryption
// keypair is generated and resealed to every other currently active
// device, and targetDeviceID loses the ability to decrypt anything shared
// after this point.
func (sess *Session) RevokeDevice(ctx context.Context, targetDeviceID ids.DeviceID) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.requireState(StateReady); err != nil {
		return err
	}

	user, ok := sess.ledger.User(sess.identity.UserID)
	if !ok {
		return sdkerr.New(sdkerr.KindInternalError, "local user missing from ledger")
	}
	if !user.HasUserKey {
		return sdkerr.New(sdkerr.KindInvalidArgument, "user has no user key; cannot issue a v2 revocation")
	}

	newUserEnc, err := tcrypto.GenerateEncryptionKeyPair()
	if err != nil {
		return fmt.Errorf("session: revokeDevice: %w", err)
	}

	sealedForSelf, err := tcrypto.SealEncrypt(newUserEnc.PrivateKey[:], sess.deviceKeys.Encryption.PublicKey)
	if err != nil {
		return fmt.Errorf("session: revokeDevice: %w", err)
	}

	var sealedForDevices []blocks.SealedKeyForDevice
	for devID, dev := range user.Devices {
		if devID == targetDeviceID || dev.RevokedAtIndex != nil {
			continue
		}
		if devID == sess.deviceKeys.DeviceID {
			var sealed [80]byte
			copy(sealed[:], sealedForSelf)
			sealedForDevices = append(sealedForDevices, blocks.SealedKeyForDevice{DeviceID: devID, SealedPrivateEncryptionKey: sealed})
			continue
		}
		sealed, err := tcrypto.SealEncrypt(newUserEnc.PrivateKey[:], dev.PublicEncryptionKey)
		if err != nil {
			return fmt.Errorf("session: revokeDevice: seal for %s: %w", devID, err)
		}
		var fixed [80]byte
		copy(fixed[:], sealed)
		sealedForDevices = append(sealedForDevices, blocks.SealedKeyForDevice{DeviceID: devID, SealedPrivateEncryptionKey: fixed})
	}

	action := &blocks.DeviceRevocation{
		Version:                     2,
		TargetDeviceID:              targetDeviceID,
		NewPublicEncryptionKey:      newUserEnc.PublicKey,
		PreviousPublicEncryptionKey: user.CurrentUserPublicKey,
		SealedKeysForDevices:        sealedForDevices,
	}
	sealedPrev, err := tcrypto.SealEncrypt(newUserEnc.PrivateKey[:], sess.deviceKeys.Encryption.PublicKey)
	if err != nil {
		return fmt.Errorf("session: revokeDevice: %w", err)
	}
	copy(action.SealedPrivateEncryptionKeyForPreviousUserKey[:], sealedPrev)

	b := &blocks.Block{Version: 1, TrustchainID: sess.identity.TrustchainID, Author: ids.BlockHash(sess.deviceKeys.DeviceID), Action: action}
	b.Sign(sess.deviceKeys.Signature.PrivateKey)

	if err := sess.requester.PushBlock(ctx, b); err != nil {
		return fmt.Errorf("session: revokeDevice: push: %w", err)
	}
	if err := sess.puller.Sync(ctx); err != nil {
		return fmt.Errorf("session: revokeDevice: sync: %w", err)
	}
	if err := sess.store.AppendLocalUserKeyPair(ctx, store.LocalUserKeyPair{EncryptionKeyPair: newUserEnc}); err != nil {
		return fmt.Errorf("session: revokeDevice: persist rotated user key: %w", err)
	}

	logger.Printf("revoked device %s", targetDeviceID)
	metrics.RecordDeviceRevocation()

	if targetDeviceID == sess.deviceKeys.DeviceID {
		sess.state = StateStopped
		metrics.RecordSessionStateTransition(sess.state.String())
		if sess.OnDeviceRevoked != nil {
			sess.OnDeviceRevoked()
		}
		if sess.OnSessionClosed != nil {
			sess.OnSessionClosed()
		}
	}
	return nil
}

// Authenticate performs the challenge/response exchange: the local device
// signs whatever challenge the server issues through
// signChallenge, and the server returns a bearer token on success. The
// token is parsed (without verification, since this device never holds
// the server's signing secret) purely so its expiry can be logged --
// mirroring the claims shape internal/auth.AuthService issues.
func (sess *Session) Authenticate(ctx context.Context) (string, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.requireState(StateReady); err != nil {
		return "", err
	}

	token, err := sess.requester.Authenticate(ctx, sess.identity.TrustchainID, sess.deviceKeys.DeviceID, func(challenge []byte) []byte {
		sig := tcrypto.Sign(challenge, sess.deviceKeys.Signature.PrivateKey)
		return sig[:]
	})
	if err != nil {
		return "", fmt.Errorf("session: authenticate: %w", err)
	}

	if claims, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{}); err == nil {
		if mapClaims, ok := claims.Claims.(jwt.MapClaims); ok {
			if exp, ok := mapClaims["exp"]; ok {
				logger.Printf("authenticated, token expires at claim %v", exp)
			}
		}
	}

	return token, nil
}

// Encrypt generates a fresh resource key, encrypts clear under it with the
// simple (V3) encryptor, publishes the key to the local user (every
// current device can decrypt its own output) and to targets, and caches
// the key locally so Decrypt needs no further round trip.
func (sess *Session) Encrypt(ctx context.Context, clear []byte, targets []share.Target) ([]byte, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.requireState(StateReady); err != nil {
		return nil, err
	}

	user, ok := sess.ledger.User(sess.identity.UserID)
	if !ok || !user.HasUserKey {
		return nil, sdkerr.New(sdkerr.KindInternalError, "local user has no user key yet")
	}

	key, err := tcrypto.GenerateSymmetricKey()
	if err != nil {
		return nil, fmt.Errorf("session: encrypt: %w", err)
	}
	encrypted, resourceID, err := encryptor.EncryptV3(clear, key)
	if err != nil {
		return nil, fmt.Errorf("session: encrypt: %w", err)
	}

	if err := sess.sharer.ShareWithSelf(ctx, sess.deviceKeys.DeviceID, sess.deviceKeys.Signature.PrivateKey, resourceID, key, user.CurrentUserPublicKey); err != nil {
		return nil, fmt.Errorf("session: encrypt: %w", err)
	}
	if len(targets) > 0 {
		if err := sess.sharer.Share(ctx, sess.deviceKeys.DeviceID, sess.deviceKeys.Signature.PrivateKey, resourceID, key, targets); err != nil {
			return nil, fmt.Errorf("session: encrypt: %w", err)
		}
	}
	if err := sess.store.PutResourceKey(ctx, resourceID, key); err != nil {
		return nil, fmt.Errorf("session: encrypt: cache resource key: %w", err)
	}

	logger.Printf("encrypted resource %s for %d targets", resourceID, len(targets))
	return encrypted, nil
}

// Decrypt recovers the plaintext behind encrypted. If the resource key is
// not already cached locally, it syncs once (driving the receivekey
// processor over any newly pulled KeyPublishTo* blocks) before giving up.
func (sess *Session) Decrypt(ctx context.Context, encrypted []byte) ([]byte, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.requireState(StateReady); err != nil {
		return nil, err
	}

	resourceID, err := encryptor.ExtractResourceID(encrypted)
	if err != nil {
		return nil, fmt.Errorf("session: decrypt: %w", err)
	}

	key, found, err := sess.store.ResourceKey(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("session: decrypt: %w", err)
	}
	if !found {
		if err := sess.puller.Sync(ctx); err != nil {
			return nil, fmt.Errorf("session: decrypt: sync: %w", err)
		}
		key, found, err = sess.store.ResourceKey(ctx, resourceID)
		if err != nil {
			return nil, fmt.Errorf("session: decrypt: %w", err)
		}
		if !found {
			return nil, sdkerr.New(sdkerr.KindInvalidArgument, "no resource key known for this ciphertext")
		}
	}

	if len(encrypted) < 1 {
		return nil, sdkerr.New(sdkerr.KindInvalidArgument, "empty buffer")
	}
	switch encryptor.Version(encrypted[0]) {
	case encryptor.V2:
		return encryptor.DecryptV2(encrypted, key)
	case encryptor.V3:
		return encryptor.DecryptV3(encrypted, key)
	case encryptor.V5:
		return encryptor.DecryptV5(encrypted, key)
	case encryptor.V6:
		return encryptor.DecryptV6(encrypted, key)
	case encryptor.V7:
		return encryptor.DecryptV7(encrypted, key)
	case encryptor.V4:
		return encryptor.DecryptV4(encrypted, key, encryptor.DefaultChunkSize)
	case encryptor.V8:
		return encryptor.DecryptV8(encrypted, key, encryptor.DefaultChunkSize)
	case encryptor.V9:
		return encryptor.DecryptV9(encrypted, key)
	case encryptor.V10:
		return encryptor.DecryptV10(encrypted, key)
	default:
		return nil, sdkerr.New(sdkerr.KindInvalidArgument, "unknown encrypted version")
	}
}

// Share publishes an already-encrypted resource's key to additional
// targets, looking the key up from local cache rather than taking it as
// an argument so a caller can never accidentally share the wrong key
// under someone else's resourceId.
func (sess *Session) Share(ctx context.Context, resourceID ids.ResourceID, targets []share.Target) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.requireState(StateReady); err != nil {
		return err
	}

	key, found, err := sess.store.ResourceKey(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("session: share: %w", err)
	}
	if !found {
		return sdkerr.New(sdkerr.KindInvalidArgument, "no resource key known locally for this resourceId")
	}

	return sess.sharer.Share(ctx, sess.deviceKeys.DeviceID, sess.deviceKeys.Signature.PrivateKey, resourceID, key, targets)
}

// CreateGroup delegates to GroupsManager using the local device's own
// authoring identity.
func (sess *Session) CreateGroup(ctx context.Context, members []groups.MemberTarget, provisionalMembers []groups.ProvisionalMemberTarget) (ids.GroupID, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.requireState(StateReady); err != nil {
		return ids.GroupID{}, err
	}

	return sess.GroupsManager.CreateGroup(ctx, sess.deviceKeys.DeviceID, sess.deviceKeys.Signature.PrivateKey, members, provisionalMembers)
}

// UpdateGroupMembers delegates to GroupsManager using the local device's
// own authoring identity.
func (sess *Session) UpdateGroupMembers(ctx context.Context, groupID ids.GroupID, newMembers []groups.MemberTarget, newProvisionalMembers []groups.ProvisionalMemberTarget) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.requireState(StateReady); err != nil {
		return err
	}

	return sess.GroupsManager.UpdateGroupMembers(ctx, sess.deviceKeys.DeviceID, sess.deviceKeys.Signature.PrivateKey, groupID, newMembers, newProvisionalMembers)
}
