package blocks

import (
	"fmt"

	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/serialize"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
)

// Action is the payload carried by a Block; exactly one concrete type per
// Nature.
type Action interface {
	Nature() Nature
	MarshalPayload() []byte
}

// --- TrustchainCreation ---

type TrustchainCreation struct {
	PublicSignatureKey tcrypto.PublicSignatureKey
}

func (a *TrustchainCreation) Nature() Nature { return NatureTrustchainCreation }

func (a *TrustchainCreation) MarshalPayload() []byte {
	return serialize.NewWriter().PutFixed(a.PublicSignatureKey[:]).Bytes()
}

func unmarshalTrustchainCreation(r *serialize.Reader) (*TrustchainCreation, error) {
	pub, err := r.GetFixed(tcrypto.SignaturePublicKeySize)
	if err != nil {
		return nil, fmt.Errorf("TrustchainCreation: %w", err)
	}
	a := &TrustchainCreation{}
	copy(a.PublicSignatureKey[:], pub)
	return a, nil
}

// --- DeviceCreation v1/v2/v3 ---

// DeviceCreation holds the fields common to v1-v3 plus the version-specific
// extras; Version selects which fields are meaningful / present on the
// wire.
type DeviceCreation struct {
	Version                     int // 1, 2 or 3
	LastReset                   [32]byte // v2 only, must be all-zero
	EphemeralPublicSignatureKey tcrypto.PublicSignatureKey
	UserID                      ids.UserID
	DelegationSignature         tcrypto.Signature
	PublicSignatureKey          tcrypto.PublicSignatureKey
	PublicEncryptionKey         tcrypto.PublicEncryptionKey

	// v3 only
	PublicUserEncryptionKey            tcrypto.PublicEncryptionKey
	SealedPrivateUserEncryptionKey      [80]byte
	IsGhostDevice                       bool
}

func (a *DeviceCreation) Nature() Nature {
	switch a.Version {
	case 2:
		return NatureDeviceCreationV2
	case 3:
		return NatureDeviceCreationV3
	default:
		return NatureDeviceCreationV1
	}
}

func (a *DeviceCreation) MarshalPayload() []byte {
	w := serialize.NewWriter()
	if a.Version == 2 {
		w.PutFixed(a.LastReset[:])
	}
	w.PutFixed(a.EphemeralPublicSignatureKey[:])
	w.PutFixed(a.UserID[:])
	w.PutFixed(a.DelegationSignature[:])
	w.PutFixed(a.PublicSignatureKey[:])
	w.PutFixed(a.PublicEncryptionKey[:])
	if a.Version == 3 {
		w.PutFixed(a.PublicUserEncryptionKey[:])
		w.PutFixed(a.SealedPrivateUserEncryptionKey[:])
		if a.IsGhostDevice {
			w.PutByte(1)
		} else {
			w.PutByte(0)
		}
	}
	return w.Bytes()
}

// AsV1 converts a convertible v2 block to v1: only legal when LastReset
// is all-zero (see DESIGN.md for the open-question decision behind this).
func (a *DeviceCreation) AsV1() (*DeviceCreation, bool) {
	if a.Version != 2 {
		return a, a.Version == 1
	}
	if a.LastReset != ([32]byte{}) {
		return nil, false
	}
	v1 := *a
	v1.Version = 1
	return &v1, true
}

func unmarshalDeviceCreation(version int, r *serialize.Reader) (*DeviceCreation, error) {
	a := &DeviceCreation{Version: version}
	if version == 2 {
		lr, err := r.GetFixed(32)
		if err != nil {
			return nil, fmt.Errorf("DeviceCreationV2: lastReset: %w", err)
		}
		copy(a.LastReset[:], lr)
	}
	ephemeral, err := r.GetFixed(tcrypto.SignaturePublicKeySize)
	if err != nil {
		return nil, fmt.Errorf("DeviceCreation: ephemeral key: %w", err)
	}
	copy(a.EphemeralPublicSignatureKey[:], ephemeral)

	userID, err := r.GetFixed(ids.Size)
	if err != nil {
		return nil, fmt.Errorf("DeviceCreation: userId: %w", err)
	}
	copy(a.UserID[:], userID)

	delegation, err := r.GetFixed(tcrypto.SignatureSize)
	if err != nil {
		return nil, fmt.Errorf("DeviceCreation: delegationSignature: %w", err)
	}
	copy(a.DelegationSignature[:], delegation)

	pubSig, err := r.GetFixed(tcrypto.SignaturePublicKeySize)
	if err != nil {
		return nil, fmt.Errorf("DeviceCreation: publicSignatureKey: %w", err)
	}
	copy(a.PublicSignatureKey[:], pubSig)

	pubEnc, err := r.GetFixed(tcrypto.EncryptionPublicKeySize)
	if err != nil {
		return nil, fmt.Errorf("DeviceCreation: publicEncryptionKey: %w", err)
	}
	copy(a.PublicEncryptionKey[:], pubEnc)

	if version == 3 {
		pubUserEnc, err := r.GetFixed(tcrypto.EncryptionPublicKeySize)
		if err != nil {
			return nil, fmt.Errorf("DeviceCreationV3: publicUserEncryptionKey: %w", err)
		}
		copy(a.PublicUserEncryptionKey[:], pubUserEnc)

		sealed, err := r.GetFixed(80)
		if err != nil {
			return nil, fmt.Errorf("DeviceCreationV3: sealedPrivateUserEncryptionKey: %w", err)
		}
		copy(a.SealedPrivateUserEncryptionKey[:], sealed)

		ghost, err := r.GetByte()
		if err != nil {
			return nil, fmt.Errorf("DeviceCreationV3: isGhostDevice: %w", err)
		}
		a.IsGhostDevice = ghost != 0
	}
	return a, nil
}

// --- KeyPublish* ---

type KeyPublishToDevice struct {
	Recipient  ids.DeviceID
	ResourceID ids.ResourceID
	EncryptedKey []byte
}

func (a *KeyPublishToDevice) Nature() Nature { return NatureKeyPublishToDevice }
func (a *KeyPublishToDevice) MarshalPayload() []byte {
	return serialize.NewWriter().PutFixed(a.Recipient[:]).PutFixed(a.ResourceID).PutBlob(a.EncryptedKey).Bytes()
}

func unmarshalKeyPublishToDevice(r *serialize.Reader) (*KeyPublishToDevice, error) {
	recipient, err := r.GetFixed(ids.Size)
	if err != nil {
		return nil, fmt.Errorf("KeyPublishToDevice: recipient: %w", err)
	}
	rid, err := r.GetFixed(ids.ResourceSize)
	if err != nil {
		return nil, fmt.Errorf("KeyPublishToDevice: resourceId: %w", err)
	}
	key, err := r.GetBlob()
	if err != nil {
		return nil, fmt.Errorf("KeyPublishToDevice: encryptedKey: %w", err)
	}
	a := &KeyPublishToDevice{ResourceID: append(ids.ResourceID(nil), rid...), EncryptedKey: append([]byte(nil), key...)}
	copy(a.Recipient[:], recipient)
	return a, nil
}

type KeyPublishToUser struct {
	RecipientPublicEncryptionKey tcrypto.PublicEncryptionKey
	ResourceID                   ids.ResourceID
	SealedKey                    [80]byte
}

func (a *KeyPublishToUser) Nature() Nature { return NatureKeyPublishToUser }
func (a *KeyPublishToUser) MarshalPayload() []byte {
	return serialize.NewWriter().PutFixed(a.RecipientPublicEncryptionKey[:]).PutFixed(a.ResourceID).PutFixed(a.SealedKey[:]).Bytes()
}

func unmarshalKeyPublishToUser(r *serialize.Reader) (*KeyPublishToUser, error) {
	pub, err := r.GetFixed(tcrypto.EncryptionPublicKeySize)
	if err != nil {
		return nil, fmt.Errorf("KeyPublishToUser: recipient key: %w", err)
	}
	rid, err := r.GetFixed(ids.ResourceSize)
	if err != nil {
		return nil, fmt.Errorf("KeyPublishToUser: resourceId: %w", err)
	}
	sealed, err := r.GetFixed(80)
	if err != nil {
		return nil, fmt.Errorf("KeyPublishToUser: sealedKey: %w", err)
	}
	a := &KeyPublishToUser{ResourceID: append(ids.ResourceID(nil), rid...)}
	copy(a.RecipientPublicEncryptionKey[:], pub)
	copy(a.SealedKey[:], sealed)
	return a, nil
}

type KeyPublishToUserGroup struct {
	RecipientPublicEncryptionKey tcrypto.PublicEncryptionKey
	ResourceID                   ids.ResourceID
	SealedKey                    [80]byte
}

func (a *KeyPublishToUserGroup) Nature() Nature { return NatureKeyPublishToUserGroup }
func (a *KeyPublishToUserGroup) MarshalPayload() []byte {
	return serialize.NewWriter().PutFixed(a.RecipientPublicEncryptionKey[:]).PutFixed(a.ResourceID).PutFixed(a.SealedKey[:]).Bytes()
}

func unmarshalKeyPublishToUserGroup(r *serialize.Reader) (*KeyPublishToUserGroup, error) {
	kp, err := unmarshalKeyPublishToUser(r)
	if err != nil {
		return nil, fmt.Errorf("KeyPublishToUserGroup: %w", err)
	}
	return &KeyPublishToUserGroup{RecipientPublicEncryptionKey: kp.RecipientPublicEncryptionKey, ResourceID: kp.ResourceID, SealedKey: kp.SealedKey}, nil
}

type KeyPublishToProvisionalUser struct {
	AppPublicSignatureKey    tcrypto.PublicSignatureKey
	TankerPublicSignatureKey tcrypto.PublicSignatureKey
	ResourceID               ids.ResourceID
	TwoTimesSealedKey        []byte
}

func (a *KeyPublishToProvisionalUser) Nature() Nature { return NatureKeyPublishToProvisionalUser }
func (a *KeyPublishToProvisionalUser) MarshalPayload() []byte {
	return serialize.NewWriter().
		PutFixed(a.AppPublicSignatureKey[:]).
		PutFixed(a.TankerPublicSignatureKey[:]).
		PutFixed(a.ResourceID).
		PutBlob(a.TwoTimesSealedKey).
		Bytes()
}

func unmarshalKeyPublishToProvisionalUser(r *serialize.Reader) (*KeyPublishToProvisionalUser, error) {
	appKey, err := r.GetFixed(tcrypto.SignaturePublicKeySize)
	if err != nil {
		return nil, fmt.Errorf("KeyPublishToProvisionalUser: appKey: %w", err)
	}
	tankerKey, err := r.GetFixed(tcrypto.SignaturePublicKeySize)
	if err != nil {
		return nil, fmt.Errorf("KeyPublishToProvisionalUser: tankerKey: %w", err)
	}
	rid, err := r.GetFixed(ids.ResourceSize)
	if err != nil {
		return nil, fmt.Errorf("KeyPublishToProvisionalUser: resourceId: %w", err)
	}
	sealed, err := r.GetBlob()
	if err != nil {
		return nil, fmt.Errorf("KeyPublishToProvisionalUser: sealedKey: %w", err)
	}
	a := &KeyPublishToProvisionalUser{ResourceID: append(ids.ResourceID(nil), rid...), TwoTimesSealedKey: append([]byte(nil), sealed...)}
	copy(a.AppPublicSignatureKey[:], appKey)
	copy(a.TankerPublicSignatureKey[:], tankerKey)
	return a, nil
}

// --- Group members ---

// Member is a group's per-user encrypted key entry. UserID is absent
// (zero) only for v1 groups, which are parse-only in sdk-core.
type Member struct {
	UserID                          ids.UserID
	UserIDPresent                   bool
	PublicUserEncryptionKey         tcrypto.PublicEncryptionKey
	SealedPrivateGroupEncryptionKey [80]byte
}

// ProvisionalMember is a group's per-provisional-identity encrypted key
// entry. AppPublicEncryptionKey/TankerPublicEncryptionKey are present only
// from v3 onward.
type ProvisionalMember struct {
	AppPublicSignatureKey       tcrypto.PublicSignatureKey
	TankerPublicSignatureKey    tcrypto.PublicSignatureKey
	TwoTimesSealedGroupKey      [128]byte
	AppPublicEncryptionKey      tcrypto.PublicEncryptionKey
	TankerPublicEncryptionKey   tcrypto.PublicEncryptionKey
	HasEncryptionKeys           bool // v3 only
}

func marshalMembers(w *serialize.Writer, members []Member, v1 bool) {
	w.PutVarint(uint64(len(members)))
	for _, m := range members {
		if !v1 {
			w.PutFixed(m.UserID[:])
		}
		w.PutFixed(m.PublicUserEncryptionKey[:])
		w.PutFixed(m.SealedPrivateGroupEncryptionKey[:])
	}
}

func unmarshalMembers(r *serialize.Reader, v1 bool) ([]Member, error) {
	n, err := r.GetVarint()
	if err != nil {
		return nil, fmt.Errorf("members: count: %w", err)
	}
	out := make([]Member, 0, n)
	for i := uint64(0); i < n; i++ {
		var m Member
		if !v1 {
			uid, err := r.GetFixed(ids.Size)
			if err != nil {
				return nil, fmt.Errorf("members[%d]: userId: %w", i, err)
			}
			copy(m.UserID[:], uid)
			m.UserIDPresent = true
		}
		pub, err := r.GetFixed(tcrypto.EncryptionPublicKeySize)
		if err != nil {
			return nil, fmt.Errorf("members[%d]: publicUserEncryptionKey: %w", i, err)
		}
		copy(m.PublicUserEncryptionKey[:], pub)
		sealed, err := r.GetFixed(80)
		if err != nil {
			return nil, fmt.Errorf("members[%d]: sealedPrivateGroupEncryptionKey: %w", i, err)
		}
		copy(m.SealedPrivateGroupEncryptionKey[:], sealed)
		out = append(out, m)
	}
	return out, nil
}

func marshalProvisionalMembers(w *serialize.Writer, members []ProvisionalMember, v3 bool) {
	w.PutVarint(uint64(len(members)))
	for _, m := range members {
		w.PutFixed(m.AppPublicSignatureKey[:])
		w.PutFixed(m.TankerPublicSignatureKey[:])
		w.PutFixed(m.TwoTimesSealedGroupKey[:])
		if v3 {
			w.PutFixed(m.AppPublicEncryptionKey[:])
			w.PutFixed(m.TankerPublicEncryptionKey[:])
		}
	}
}

func unmarshalProvisionalMembers(r *serialize.Reader, v3 bool) ([]ProvisionalMember, error) {
	n, err := r.GetVarint()
	if err != nil {
		return nil, fmt.Errorf("provisionalMembers: count: %w", err)
	}
	out := make([]ProvisionalMember, 0, n)
	for i := uint64(0); i < n; i++ {
		var m ProvisionalMember
		app, err := r.GetFixed(tcrypto.SignaturePublicKeySize)
		if err != nil {
			return nil, fmt.Errorf("provisionalMembers[%d]: appKey: %w", i, err)
		}
		copy(m.AppPublicSignatureKey[:], app)
		tanker, err := r.GetFixed(tcrypto.SignaturePublicKeySize)
		if err != nil {
			return nil, fmt.Errorf("provisionalMembers[%d]: tankerKey: %w", i, err)
		}
		copy(m.TankerPublicSignatureKey[:], tanker)
		sealed, err := r.GetFixed(128)
		if err != nil {
			return nil, fmt.Errorf("provisionalMembers[%d]: twoTimesSealedGroupKey: %w", i, err)
		}
		copy(m.TwoTimesSealedGroupKey[:], sealed)
		if v3 {
			appEnc, err := r.GetFixed(tcrypto.EncryptionPublicKeySize)
			if err != nil {
				return nil, fmt.Errorf("provisionalMembers[%d]: appEncKey: %w", i, err)
			}
			copy(m.AppPublicEncryptionKey[:], appEnc)
			tankerEnc, err := r.GetFixed(tcrypto.EncryptionPublicKeySize)
			if err != nil {
				return nil, fmt.Errorf("provisionalMembers[%d]: tankerEncKey: %w", i, err)
			}
			copy(m.TankerPublicEncryptionKey[:], tankerEnc)
			m.HasEncryptionKeys = true
		}
		out = append(out, m)
	}
	return out, nil
}

// --- UserGroupCreation / UserGroupAddition ---

type UserGroupCreation struct {
	Version                  int // 1, 2 or 3
	PublicSignatureKey       tcrypto.PublicSignatureKey
	PublicEncryptionKey      tcrypto.PublicEncryptionKey
	SealedPrivateSignatureKey [112]byte // group's own private signature key, self-sealed to its encryption keypair
	Members                  []Member
	ProvisionalMembers       []ProvisionalMember
	SelfSignature            tcrypto.Signature
}

func (a *UserGroupCreation) Nature() Nature {
	switch a.Version {
	case 2:
		return NatureUserGroupCreationV2
	case 3:
		return NatureUserGroupCreationV3
	default:
		return NatureUserGroupCreationV1
	}
}

// SignaturePayload is the canonical byte sequence the group self-signs
// (spec invariant 5): members || provisionalMembers || sigPub || encPub ||
// sealedPrivSig.
func (a *UserGroupCreation) SignaturePayload() []byte {
	w := serialize.NewWriter()
	marshalMembers(w, a.Members, a.Version == 1)
	if a.Version >= 2 {
		marshalProvisionalMembers(w, a.ProvisionalMembers, a.Version == 3)
	}
	w.PutFixed(a.PublicSignatureKey[:])
	w.PutFixed(a.PublicEncryptionKey[:])
	w.PutFixed(a.SealedPrivateSignatureKey[:])
	return w.Bytes()
}

func (a *UserGroupCreation) MarshalPayload() []byte {
	w := serialize.NewWriter()
	w.PutFixed(a.PublicSignatureKey[:])
	w.PutFixed(a.PublicEncryptionKey[:])
	w.PutFixed(a.SealedPrivateSignatureKey[:])
	marshalMembers(w, a.Members, a.Version == 1)
	if a.Version >= 2 {
		marshalProvisionalMembers(w, a.ProvisionalMembers, a.Version == 3)
	}
	w.PutFixed(a.SelfSignature[:])
	return w.Bytes()
}

func unmarshalUserGroupCreation(version int, r *serialize.Reader) (*UserGroupCreation, error) {
	a := &UserGroupCreation{Version: version}
	sigPub, err := r.GetFixed(tcrypto.SignaturePublicKeySize)
	if err != nil {
		return nil, fmt.Errorf("UserGroupCreation: publicSignatureKey: %w", err)
	}
	copy(a.PublicSignatureKey[:], sigPub)
	encPub, err := r.GetFixed(tcrypto.EncryptionPublicKeySize)
	if err != nil {
		return nil, fmt.Errorf("UserGroupCreation: publicEncryptionKey: %w", err)
	}
	copy(a.PublicEncryptionKey[:], encPub)
	sealed, err := r.GetFixed(112)
	if err != nil {
		return nil, fmt.Errorf("UserGroupCreation: sealedPrivateSignatureKey: %w", err)
	}
	copy(a.SealedPrivateSignatureKey[:], sealed)

	members, err := unmarshalMembers(r, version == 1)
	if err != nil {
		return nil, fmt.Errorf("UserGroupCreation: %w", err)
	}
	a.Members = members

	if version >= 2 {
		pm, err := unmarshalProvisionalMembers(r, version == 3)
		if err != nil {
			return nil, fmt.Errorf("UserGroupCreation: %w", err)
		}
		a.ProvisionalMembers = pm
	}

	sig, err := r.GetFixed(tcrypto.SignatureSize)
	if err != nil {
		return nil, fmt.Errorf("UserGroupCreation: selfSignature: %w", err)
	}
	copy(a.SelfSignature[:], sig)
	return a, nil
}

type UserGroupAddition struct {
	Version                int
	GroupID                ids.GroupID
	PreviousGroupBlockHash ids.BlockHash
	Members                []Member
	ProvisionalMembers     []ProvisionalMember
	SelfSignature          tcrypto.Signature
}

func (a *UserGroupAddition) Nature() Nature {
	switch a.Version {
	case 2:
		return NatureUserGroupAdditionV2
	case 3:
		return NatureUserGroupAdditionV3
	default:
		return NatureUserGroupAdditionV1
	}
}

func (a *UserGroupAddition) SignaturePayload() []byte {
	w := serialize.NewWriter()
	w.PutFixed(a.GroupID[:])
	w.PutFixed(a.PreviousGroupBlockHash[:])
	marshalMembers(w, a.Members, false)
	if a.Version >= 2 {
		marshalProvisionalMembers(w, a.ProvisionalMembers, a.Version == 3)
	}
	return w.Bytes()
}

func (a *UserGroupAddition) MarshalPayload() []byte {
	w := serialize.NewWriter()
	w.PutFixed(a.GroupID[:])
	w.PutFixed(a.PreviousGroupBlockHash[:])
	marshalMembers(w, a.Members, false)
	if a.Version >= 2 {
		marshalProvisionalMembers(w, a.ProvisionalMembers, a.Version == 3)
	}
	w.PutFixed(a.SelfSignature[:])
	return w.Bytes()
}

func unmarshalUserGroupAddition(version int, r *serialize.Reader) (*UserGroupAddition, error) {
	a := &UserGroupAddition{Version: version}
	gid, err := r.GetFixed(ids.Size)
	if err != nil {
		return nil, fmt.Errorf("UserGroupAddition: groupId: %w", err)
	}
	copy(a.GroupID[:], gid)
	prev, err := r.GetFixed(ids.Size)
	if err != nil {
		return nil, fmt.Errorf("UserGroupAddition: previousGroupBlockHash: %w", err)
	}
	copy(a.PreviousGroupBlockHash[:], prev)

	members, err := unmarshalMembers(r, false)
	if err != nil {
		return nil, fmt.Errorf("UserGroupAddition: %w", err)
	}
	a.Members = members

	if version >= 2 {
		pm, err := unmarshalProvisionalMembers(r, version == 3)
		if err != nil {
			return nil, fmt.Errorf("UserGroupAddition: %w", err)
		}
		a.ProvisionalMembers = pm
	}

	sig, err := r.GetFixed(tcrypto.SignatureSize)
	if err != nil {
		return nil, fmt.Errorf("UserGroupAddition: selfSignature: %w", err)
	}
	copy(a.SelfSignature[:], sig)
	return a, nil
}

// --- DeviceRevocation v1/v2 ---

type SealedKeyForDevice struct {
	DeviceID                     ids.DeviceID
	SealedPrivateEncryptionKey   [80]byte
}

type DeviceRevocation struct {
	Version        int // 1 or 2
	TargetDeviceID ids.DeviceID

	// v2 only
	NewPublicEncryptionKey                         tcrypto.PublicEncryptionKey
	SealedPrivateEncryptionKeyForPreviousUserKey    [80]byte
	PreviousPublicEncryptionKey                     tcrypto.PublicEncryptionKey
	SealedKeysForDevices                           []SealedKeyForDevice
}

func (a *DeviceRevocation) Nature() Nature {
	if a.Version == 2 {
		return NatureDeviceRevocationV2
	}
	return NatureDeviceRevocationV1
}

func (a *DeviceRevocation) MarshalPayload() []byte {
	w := serialize.NewWriter()
	w.PutFixed(a.TargetDeviceID[:])
	if a.Version == 2 {
		w.PutFixed(a.NewPublicEncryptionKey[:])
		w.PutFixed(a.SealedPrivateEncryptionKeyForPreviousUserKey[:])
		w.PutFixed(a.PreviousPublicEncryptionKey[:])
		w.PutVarint(uint64(len(a.SealedKeysForDevices)))
		for _, d := range a.SealedKeysForDevices {
			w.PutFixed(d.DeviceID[:])
			w.PutFixed(d.SealedPrivateEncryptionKey[:])
		}
	}
	return w.Bytes()
}

func unmarshalDeviceRevocation(version int, r *serialize.Reader) (*DeviceRevocation, error) {
	a := &DeviceRevocation{Version: version}
	target, err := r.GetFixed(ids.Size)
	if err != nil {
		return nil, fmt.Errorf("DeviceRevocation: targetDeviceId: %w", err)
	}
	copy(a.TargetDeviceID[:], target)

	if version == 2 {
		newPub, err := r.GetFixed(tcrypto.EncryptionPublicKeySize)
		if err != nil {
			return nil, fmt.Errorf("DeviceRevocationV2: newPublicEncryptionKey: %w", err)
		}
		copy(a.NewPublicEncryptionKey[:], newPub)

		sealed, err := r.GetFixed(80)
		if err != nil {
			return nil, fmt.Errorf("DeviceRevocationV2: sealedPrivateEncryptionKeyForPreviousUserKey: %w", err)
		}
		copy(a.SealedPrivateEncryptionKeyForPreviousUserKey[:], sealed)

		prevPub, err := r.GetFixed(tcrypto.EncryptionPublicKeySize)
		if err != nil {
			return nil, fmt.Errorf("DeviceRevocationV2: previousPublicEncryptionKey: %w", err)
		}
		copy(a.PreviousPublicEncryptionKey[:], prevPub)

		n, err := r.GetVarint()
		if err != nil {
			return nil, fmt.Errorf("DeviceRevocationV2: sealedKeysForDevices count: %w", err)
		}
		a.SealedKeysForDevices = make([]SealedKeyForDevice, 0, n)
		for i := uint64(0); i < n; i++ {
			var d SealedKeyForDevice
			did, err := r.GetFixed(ids.Size)
			if err != nil {
				return nil, fmt.Errorf("DeviceRevocationV2: sealedKeysForDevices[%d]: deviceId: %w", i, err)
			}
			copy(d.DeviceID[:], did)
			sealedKey, err := r.GetFixed(80)
			if err != nil {
				return nil, fmt.Errorf("DeviceRevocationV2: sealedKeysForDevices[%d]: sealedKey: %w", i, err)
			}
			copy(d.SealedPrivateEncryptionKey[:], sealedKey)
			a.SealedKeysForDevices = append(a.SealedKeysForDevices, d)
		}
	}
	return a, nil
}

// --- ProvisionalIdentityClaim ---

type ProvisionalIdentityClaim struct {
	UserID                           ids.UserID
	AppSignaturePublicKey            tcrypto.PublicSignatureKey
	TankerSignaturePublicKey         tcrypto.PublicSignatureKey
	AuthorSignatureByAppKey          tcrypto.Signature
	AuthorSignatureByTankerKey       tcrypto.Signature
	RecipientUserPublicEncryptionKey tcrypto.PublicEncryptionKey
	SealedPrivateKeys                []byte
}

func (a *ProvisionalIdentityClaim) Nature() Nature { return NatureProvisionalIdentityClaim }

func (a *ProvisionalIdentityClaim) MarshalPayload() []byte {
	return serialize.NewWriter().
		PutFixed(a.UserID[:]).
		PutFixed(a.AppSignaturePublicKey[:]).
		PutFixed(a.TankerSignaturePublicKey[:]).
		PutFixed(a.AuthorSignatureByAppKey[:]).
		PutFixed(a.AuthorSignatureByTankerKey[:]).
		PutFixed(a.RecipientUserPublicEncryptionKey[:]).
		PutBlob(a.SealedPrivateKeys).
		Bytes()
}

func unmarshalProvisionalIdentityClaim(r *serialize.Reader) (*ProvisionalIdentityClaim, error) {
	a := &ProvisionalIdentityClaim{}
	uid, err := r.GetFixed(ids.Size)
	if err != nil {
		return nil, fmt.Errorf("ProvisionalIdentityClaim: userId: %w", err)
	}
	copy(a.UserID[:], uid)
	appKey, err := r.GetFixed(tcrypto.SignaturePublicKeySize)
	if err != nil {
		return nil, fmt.Errorf("ProvisionalIdentityClaim: appSigPubKey: %w", err)
	}
	copy(a.AppSignaturePublicKey[:], appKey)
	tankerKey, err := r.GetFixed(tcrypto.SignaturePublicKeySize)
	if err != nil {
		return nil, fmt.Errorf("ProvisionalIdentityClaim: tankerSigPubKey: %w", err)
	}
	copy(a.TankerSignaturePublicKey[:], tankerKey)
	appSig, err := r.GetFixed(tcrypto.SignatureSize)
	if err != nil {
		return nil, fmt.Errorf("ProvisionalIdentityClaim: authorSignatureByAppKey: %w", err)
	}
	copy(a.AuthorSignatureByAppKey[:], appSig)
	tankerSig, err := r.GetFixed(tcrypto.SignatureSize)
	if err != nil {
		return nil, fmt.Errorf("ProvisionalIdentityClaim: authorSignatureByTankerKey: %w", err)
	}
	copy(a.AuthorSignatureByTankerKey[:], tankerSig)
	recipientKey, err := r.GetFixed(tcrypto.EncryptionPublicKeySize)
	if err != nil {
		return nil, fmt.Errorf("ProvisionalIdentityClaim: recipientUserPublicEncryptionKey: %w", err)
	}
	copy(a.RecipientUserPublicEncryptionKey[:], recipientKey)
	sealed, err := r.GetBlob()
	if err != nil {
		return nil, fmt.Errorf("ProvisionalIdentityClaim: sealedPrivateKeys: %w", err)
	}
	a.SealedPrivateKeys = append([]byte(nil), sealed...)
	return a, nil
}
