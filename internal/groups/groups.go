// Package groups implements createGroup and updateGroupMembers from spec
// §4.F: building and submitting the UserGroupCreation / UserGroupAddition
// blocks that let a set of users share resources under one group identity
// without re-publishing a key per member each time.
package groups

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jaydenbeard/sdk-core/internal/accessors"
	"github.com/jaydenbeard/sdk-core/internal/blocks"
	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/sdkerr"
	"github.com/jaydenbeard/sdk-core/internal/store"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
	"github.com/jaydenbeard/sdk-core/internal/transport"
)

var logger = log.New(os.Stdout, "[GROUPS] ", log.Ldate|log.Ltime|log.LUTC)

// Manager issues group-lifecycle blocks on behalf of the local device.
type Manager struct {
	trustchainID ids.TrustchainID
	requester    transport.IRequester
	store        store.Store
	users        *accessors.UserAccessor
	groupsAcc    *accessors.GroupAccessor
}

func NewManager(trustchainID ids.TrustchainID, requester transport.IRequester, s store.Store, users *accessors.UserAccessor, groupsAcc *accessors.GroupAccessor) *Manager {
	return &Manager{trustchainID: trustchainID, requester: requester, store: s, users: users, groupsAcc: groupsAcc}
}

// MemberTarget is one user to add/include, identified by their current
// user public encryption key (the accessor-resolved projection, never a
// caller-supplied key).
type MemberTarget struct {
	UserID                  ids.UserID
	PublicUserEncryptionKey tcrypto.PublicEncryptionKey
}

// ProvisionalMemberTarget is one not-yet-claimed (email/phone) identity to
// add/include, identified by the four public keys its invite carries
// (groups can address provisional identities the same way share() does).
type ProvisionalMemberTarget struct {
	AppPublicSignatureKey     tcrypto.PublicSignatureKey
	TankerPublicSignatureKey  tcrypto.PublicSignatureKey
	AppPublicEncryptionKey    tcrypto.PublicEncryptionKey
	TankerPublicEncryptionKey tcrypto.PublicEncryptionKey
}

// buildProvisionalMembers seals groupPrivateEncryptionKey to each
// provisional target, tanker half first then app half, matching the
// unseal order receivekey.processProvisional expects.
func buildProvisionalMembers(groupPrivateEncryptionKey tcrypto.PrivateEncryptionKey, targets []ProvisionalMemberTarget) ([]blocks.ProvisionalMember, error) {
	entries := make([]blocks.ProvisionalMember, 0, len(targets))
	for _, target := range targets {
		onceSealed, err := tcrypto.SealEncrypt(groupPrivateEncryptionKey[:], target.TankerPublicEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("seal for provisional member (tanker half): %w", err)
		}
		twiceSealed, err := tcrypto.SealEncrypt(onceSealed, target.AppPublicEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("seal for provisional member (app half): %w", err)
		}
		var sealedFixed [128]byte
		copy(sealedFixed[:], twiceSealed)
		entries = append(entries, blocks.ProvisionalMember{
			AppPublicSignatureKey:     target.AppPublicSignatureKey,
			TankerPublicSignatureKey:  target.TankerPublicSignatureKey,
			TwoTimesSealedGroupKey:    sealedFixed,
			AppPublicEncryptionKey:    target.AppPublicEncryptionKey,
			TankerPublicEncryptionKey: target.TankerPublicEncryptionKey,
			HasEncryptionKeys:         true,
		})
	}
	return entries, nil
}

// CreateGroup builds a fresh group keypair, seals the group's private
// encryption key to each member's current user key, self-signs the
// creation payload with the group's own signature key, signs the block
// with the author device's key, and pushes it.
func (m *Manager) CreateGroup(ctx context.Context, authorDeviceID ids.DeviceID, authorSigningKey tcrypto.PrivateSignatureKey, members []MemberTarget, provisionalMembers []ProvisionalMemberTarget) (ids.GroupID, error) {
	if len(members) == 0 && len(provisionalMembers) == 0 {
		return ids.GroupID{}, sdkerr.New(sdkerr.KindInvalidArgument, "a group needs at least one member")
	}

	sigKP, err := tcrypto.GenerateSignatureKeyPair()
	if err != nil {
		return ids.GroupID{}, fmt.Errorf("groups: create: %w", err)
	}
	encKP, err := tcrypto.GenerateEncryptionKeyPair()
	if err != nil {
		return ids.GroupID{}, fmt.Errorf("groups: create: %w", err)
	}

	sealedPrivSig, err := tcrypto.SealEncrypt(sigKP.PrivateKey[:], encKP.PublicKey)
	if err != nil {
		return ids.GroupID{}, fmt.Errorf("groups: create: seal group signature key: %w", err)
	}

	memberEntries := make([]blocks.Member, 0, len(members))
	for _, target := range members {
		sealed, err := tcrypto.SealEncrypt(encKP.PrivateKey[:], target.PublicUserEncryptionKey)
		if err != nil {
			return ids.GroupID{}, fmt.Errorf("groups: create: seal for member %s: %w", target.UserID, err)
		}
		var sealedFixed [80]byte
		copy(sealedFixed[:], sealed)
		memberEntries = append(memberEntries, blocks.Member{
			UserID:                          target.UserID,
			UserIDPresent:                   true,
			PublicUserEncryptionKey:         target.PublicUserEncryptionKey,
			SealedPrivateGroupEncryptionKey: sealedFixed,
		})
	}

	provisionalEntries, err := buildProvisionalMembers(encKP.PrivateKey, provisionalMembers)
	if err != nil {
		return ids.GroupID{}, fmt.Errorf("groups: create: %w", err)
	}

	action := &blocks.UserGroupCreation{
		Version:             3,
		PublicSignatureKey:  sigKP.PublicKey,
		PublicEncryptionKey: encKP.PublicKey,
		Members:             memberEntries,
		ProvisionalMembers:  provisionalEntries,
	}
	copy(action.SealedPrivateSignatureKey[:], sealedPrivSig)
	action.SelfSignature = tcrypto.Sign(action.SignaturePayload(), sigKP.PrivateKey)

	b := &blocks.Block{Version: 1, TrustchainID: m.trustchainID, Author: ids.BlockHash(authorDeviceID), Action: action}
	b.Sign(authorSigningKey)

	if err := m.requester.PushBlock(ctx, b); err != nil {
		return ids.GroupID{}, fmt.Errorf("groups: create: push: %w", err)
	}

	groupID := ids.GroupID(tcrypto.GenericHash(sigKP.PublicKey[:]))
	if err := m.store.PutGroup(ctx, store.GroupRecord{
		GroupID:             groupID,
		PublicSignatureKey:  sigKP.PublicKey,
		PublicEncryptionKey: encKP.PublicKey,
		Internal:            true,
		SignatureKeyPair:    sigKP,
		EncryptionKeyPair:   encKP,
	}); err != nil {
		logger.Printf("create group: local cache write failed: %v", err)
	}

	logger.Printf("created group %s with %d members and %d provisional members", groupID, len(members), len(provisionalMembers))
	return groupID, nil
}

// UpdateGroupMembers adds members to an existing group the local device
// holds the private signature key for. The group's encryption keypair is
// reused verbatim; only the new members' sealed entries are added.
func (m *Manager) UpdateGroupMembers(ctx context.Context, authorDeviceID ids.DeviceID, authorSigningKey tcrypto.PrivateSignatureKey, groupID ids.GroupID, newMembers []MemberTarget, newProvisionalMembers []ProvisionalMemberTarget) error {
	if len(newMembers) == 0 && len(newProvisionalMembers) == 0 {
		return sdkerr.New(sdkerr.KindInvalidArgument, "no members to add")
	}

	rec, found, err := m.store.Group(ctx, groupID)
	if err != nil {
		return fmt.Errorf("groups: update: %w", err)
	}
	if !found || !rec.Internal {
		return sdkerr.New(sdkerr.KindInvalidArgument, "group private key material is not available locally")
	}

	group, err := m.groupsAcc.GetGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("groups: update: %w", err)
	}

	memberEntries := make([]blocks.Member, 0, len(newMembers))
	for _, target := range newMembers {
		sealed, err := tcrypto.SealEncrypt(rec.EncryptionKeyPair.PrivateKey[:], target.PublicUserEncryptionKey)
		if err != nil {
			return fmt.Errorf("groups: update: seal for member %s: %w", target.UserID, err)
		}
		var sealedFixed [80]byte
		copy(sealedFixed[:], sealed)
		memberEntries = append(memberEntries, blocks.Member{
			UserID:                          target.UserID,
			UserIDPresent:                   true,
			PublicUserEncryptionKey:         target.PublicUserEncryptionKey,
			SealedPrivateGroupEncryptionKey: sealedFixed,
		})
	}

	provisionalEntries, err := buildProvisionalMembers(rec.EncryptionKeyPair.PrivateKey, newProvisionalMembers)
	if err != nil {
		return fmt.Errorf("groups: update: %w", err)
	}

	action := &blocks.UserGroupAddition{
		Version:                3,
		GroupID:                groupID,
		PreviousGroupBlockHash: group.LastBlockHash,
		Members:                memberEntries,
		ProvisionalMembers:     provisionalEntries,
	}
	action.SelfSignature = tcrypto.Sign(action.SignaturePayload(), rec.SignatureKeyPair.PrivateKey)

	b := &blocks.Block{Version: 1, TrustchainID: m.trustchainID, Author: ids.BlockHash(authorDeviceID), Action: action}
	b.Sign(authorSigningKey)

	if err := m.requester.PushBlock(ctx, b); err != nil {
		return fmt.Errorf("groups: update: push: %w", err)
	}

	logger.Printf("added %d members and %d provisional members to group %s", len(newMembers), len(newProvisionalMembers), groupID)
	return nil
}
