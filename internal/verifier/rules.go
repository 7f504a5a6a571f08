package verifier

import (
	"bytes"

	"github.com/jaydenbeard/sdk-core/internal/blocks"
	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/sdkerr"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
)

func invalid(reason, msg string) *sdkerr.Error {
	return sdkerr.Newf(sdkerr.KindInvalidArgument, reason, msg)
}

// VerifyTrustchainCreation checks the root block: index 1, zero author, no
// signature, and trustchainId = hash(block).
func VerifyTrustchainCreation(b *blocks.Block) error {
	if b.Index != 1 {
		return invalid("InvalidHash", "trustchain creation must be the first block")
	}
	if b.Author != (ids.BlockHash{}) {
		return invalid("InvalidAuthor", "trustchain creation must have a zero author")
	}
	if b.Signature != (tcrypto.Signature{}) {
		return invalid("InvalidSignature", "trustchain creation must carry no signature")
	}
	action, ok := b.Action.(*blocks.TrustchainCreation)
	if !ok {
		return invalid("InvalidHash", "not a TrustchainCreation action")
	}
	if ids.TrustchainID(b.Hash()) != b.TrustchainID {
		return invalid("InvalidHash", "trustchainId does not match hash(block)")
	}
	_ = action
	return nil
}

// VerifyDeviceCreation checks DeviceCreation v1/v3 (v2 must already have
// been converted to v1 by the caller, or rejected as InvalidLastResetField).
//
// author is the device that authored this new device's delegation (nil for
// a user's very first device, whose delegation is checked against the
// identity's own permanent signature key passed as identityKey instead).
func VerifyDeviceCreation(b *blocks.Block, action *blocks.DeviceCreation, author *AuthorDevice, previousUserKey *tcrypto.PublicEncryptionKey, identityKey *tcrypto.PublicSignatureKey) error {
	if !b.VerifySignature(action.EphemeralPublicSignatureKey) {
		return invalid("InvalidSignature", "device creation signature does not verify under the ephemeral key")
	}

	delegationPayload := append(append([]byte{}, action.EphemeralPublicSignatureKey[:]...), action.UserID[:]...)
	var delegationAuthorKey tcrypto.PublicSignatureKey
	switch {
	case author != nil:
		delegationAuthorKey = author.PublicSignatureKey
		if author.UserID != action.UserID {
			return invalid("InvalidUserId", "delegation author belongs to a different user")
		}
		if author.RevokedBefore(b.Index) {
			return invalid("InvalidAuthor", "author device is revoked")
		}
	case identityKey != nil:
		delegationAuthorKey = *identityKey
	default:
		return invalid("InvalidAuthor", "device creation requires a known author or identity key")
	}

	if !tcrypto.Verify(delegationPayload, action.DelegationSignature, delegationAuthorKey) {
		return invalid("InvalidDelegationSignature", "delegation signature does not verify under the author's key")
	}

	if action.Version == 3 && previousUserKey != nil {
		if action.PublicUserEncryptionKey != *previousUserKey {
			return invalid("InvalidUserKey", "device creation v3 does not reference the user's current user key")
		}
	}
	return nil
}

// VerifyDeviceRevocationV1 implements the v1 rule: author not revoked,
// target belongs to the same user, and the user must NOT currently hold a
// user key (else this must be a v2 revocation).
func VerifyDeviceRevocationV1(b *blocks.Block, action *blocks.DeviceRevocation, author *AuthorDevice, target *AuthorDevice, user *UserState) error {
	if author.RevokedBefore(b.Index) {
		return invalid("InvalidAuthor", "revoking device is itself revoked")
	}
	if target == nil || target.UserID != author.UserID {
		return invalid("InvalidTargetDevice", "target device does not belong to the author's user")
	}
	if user.HasUserKey {
		return invalid("InvalidUserKey", "user has a user key; a v1 revocation cannot be used")
	}
	return nil
}

// VerifyDeviceRevocationV2 implements the v2 rule: as v1, plus
// previousPublicEncryptionKey must match the user's current key, and
// sealedKeysForDevices must cover exactly the user's other non-revoked
// devices with no duplicates and no entry for the target itself.
func VerifyDeviceRevocationV2(b *blocks.Block, action *blocks.DeviceRevocation, author *AuthorDevice, target *AuthorDevice, user *UserState) error {
	if author.RevokedBefore(b.Index) {
		return invalid("InvalidAuthor", "revoking device is itself revoked")
	}
	if target == nil || target.UserID != author.UserID {
		return invalid("InvalidTargetDevice", "target device does not belong to the author's user")
	}
	if !user.HasUserKey {
		return invalid("InvalidUserKey", "user has no user key; a v2 revocation cannot be used")
	}
	if action.PreviousPublicEncryptionKey != user.CurrentUserPublicKey {
		return invalid("InvalidUserKey", "previousPublicEncryptionKey does not match the user's current key")
	}

	expected := map[ids.DeviceID]bool{}
	for devID, dev := range user.Devices {
		if devID == action.TargetDeviceID {
			continue
		}
		if dev.RevokedBefore(b.Index) {
			continue
		}
		expected[devID] = true
	}

	seen := map[ids.DeviceID]bool{}
	for _, entry := range action.SealedKeysForDevices {
		if entry.DeviceID == action.TargetDeviceID {
			return invalid("InvalidUserKeys", "sealedKeysForDevices must not contain the target device")
		}
		if seen[entry.DeviceID] {
			return invalid("InvalidUserKeys", "sealedKeysForDevices contains a duplicate device")
		}
		seen[entry.DeviceID] = true
		if !expected[entry.DeviceID] {
			return invalid("InvalidUserKeys", "sealedKeysForDevices contains an unexpected device")
		}
	}
	if len(seen) != len(expected) {
		return invalid("InvalidUserKeys", "sealedKeysForDevices does not cover exactly the user's other current devices")
	}
	return nil
}

// VerifyKeyPublish checks the three KeyPublishTo* natures: signature
// verifies and the author device is not revoked.
func VerifyKeyPublish(b *blocks.Block, author *AuthorDevice) error {
	if author.RevokedBefore(b.Index) {
		return invalid("InvalidAuthor", "key publish author device is revoked")
	}
	if !b.VerifySignature(author.PublicSignatureKey) {
		return invalid("InvalidSignature", "key publish signature does not verify")
	}
	return nil
}

// VerifyUserGroupCreation checks signature, self-signature, and groupId
// uniqueness (invariant 6: the caller passes existingGroup.Exists=true to
// trigger an AlreadyExists rejection rather than re-verifying).
func VerifyUserGroupCreation(b *blocks.Block, action *blocks.UserGroupCreation, author *AuthorDevice, existingGroup *GroupState) error {
	if existingGroup != nil && existingGroup.Exists {
		return sdkerr.Newf(sdkerr.KindAlreadyExists, "InvalidGroup", "a group with this id already exists")
	}
	if author.RevokedBefore(b.Index) {
		return invalid("InvalidAuthor", "group creation author device is revoked")
	}
	if !b.VerifySignature(author.PublicSignatureKey) {
		return invalid("InvalidSignature", "group creation signature does not verify")
	}
	if !tcrypto.Verify(action.SignaturePayload(), action.SelfSignature, action.PublicSignatureKey) {
		return invalid("InvalidGroup", "group self-signature does not verify")
	}
	return nil
}

// VerifyUserGroupAddition checks signature, self-signature, and hash
// chaining to the group's current last block (invariant 5).
func VerifyUserGroupAddition(b *blocks.Block, action *blocks.UserGroupAddition, author *AuthorDevice, group *GroupState) error {
	if group == nil || !group.Exists {
		return invalid("InvalidGroup", "unknown group")
	}
	if author.RevokedBefore(b.Index) {
		return invalid("InvalidAuthor", "group addition author device is revoked")
	}
	if !b.VerifySignature(author.PublicSignatureKey) {
		return invalid("InvalidSignature", "group addition signature does not verify")
	}
	if !tcrypto.Verify(action.SignaturePayload(), action.SelfSignature, group.PublicSignatureKey) {
		return invalid("InvalidGroup", "group self-signature does not verify")
	}
	if action.PreviousGroupBlockHash != group.LastBlockHash {
		return invalid("InvalidGroup", "previousGroupBlockHash does not match the group's last block")
	}
	return nil
}

// VerifyProvisionalIdentityClaim checks the outer signature plus both
// factor signatures, and that the embedded identity matches the claiming
// user.
func VerifyProvisionalIdentityClaim(b *blocks.Block, action *blocks.ProvisionalIdentityClaim, author *AuthorDevice, claimingUserID ids.UserID, claimingUserPublicKey tcrypto.PublicEncryptionKey) error {
	if author.RevokedBefore(b.Index) {
		return invalid("InvalidAuthor", "provisional claim author device is revoked")
	}
	if !b.VerifySignature(author.PublicSignatureKey) {
		return invalid("InvalidSignature", "provisional claim signature does not verify")
	}
	if !tcrypto.Verify(action.UserID[:], action.AuthorSignatureByAppKey, action.AppSignaturePublicKey) {
		return invalid("InvalidSignature", "provisional claim app-key signature does not verify")
	}
	if !tcrypto.Verify(action.UserID[:], action.AuthorSignatureByTankerKey, action.TankerSignaturePublicKey) {
		return invalid("InvalidSignature", "provisional claim tanker-key signature does not verify")
	}
	if action.UserID != claimingUserID {
		return invalid("InvalidUserId", "claim userId does not match the claiming user")
	}
	if action.RecipientUserPublicEncryptionKey != claimingUserPublicKey {
		return invalid("InvalidUserKey", "claim recipient key does not match the claiming user's current key")
	}
	return nil
}

// VerifyDeviceCreationV2LastReset checks the v2-transitional rule: lastReset
// must be all-zero to be convertible to v1 (§9 open question).
func VerifyDeviceCreationV2LastReset(action *blocks.DeviceCreation) error {
	if action.Version != 2 {
		return nil
	}
	if !bytes.Equal(action.LastReset[:], make([]byte, 32)) {
		return invalid("InvalidLastResetField", "DeviceCreation v2 lastReset must be all-zero")
	}
	return nil
}
