// Package share implements the key-publish fan-out: turning a resource
// key into one or more KeyPublishTo* blocks addressed to users, groups,
// provisional identities or (legacy) individual devices.
package share

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jaydenbeard/sdk-core/internal/accessors"
	"github.com/jaydenbeard/sdk-core/internal/blocks"
	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/sdkerr"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
	"github.com/jaydenbeard/sdk-core/internal/transport"
)

var logger = log.New(os.Stdout, "[SHARE] ", log.Ldate|log.Ltime|log.LUTC)

// TargetKind selects which KeyPublishTo* nature a Target resolves to.
type TargetKind int

const (
	TargetUser TargetKind = iota
	TargetUserGroup
	TargetProvisionalUser
	TargetDevice
)

// Target is one recipient of a shared resource key. Exactly the fields
// for Kind are meaningful; the resolver (not this package) is responsible
// for turning a user/group/email identity into one of these.
type Target struct {
	Kind TargetKind

	UserPublicEncryptionKey tcrypto.PublicEncryptionKey // TargetUser
	GroupPublicEncryptionKey tcrypto.PublicEncryptionKey // TargetUserGroup

	ProvisionalAppPublicSignatureKey    tcrypto.PublicSignatureKey // TargetProvisionalUser
	ProvisionalTankerPublicSignatureKey tcrypto.PublicSignatureKey
	ProvisionalAppPublicEncryptionKey   tcrypto.PublicEncryptionKey
	ProvisionalTankerPublicEncryptionKey tcrypto.PublicEncryptionKey

	DeviceID                   ids.DeviceID                // TargetDevice
	DevicePublicEncryptionKey  tcrypto.PublicEncryptionKey
}

// Resolver resolves share() identities into Targets by consulting the
// user/group/provisional accessors.
type Resolver struct {
	users       *accessors.UserAccessor
	groups      *accessors.GroupAccessor
	provisional *accessors.ProvisionalUserAccessor
}

func NewResolver(users *accessors.UserAccessor, groups *accessors.GroupAccessor, provisional *accessors.ProvisionalUserAccessor) *Resolver {
	return &Resolver{users: users, groups: groups, provisional: provisional}
}

func (r *Resolver) ResolveUser(ctx context.Context, userID ids.UserID) (Target, error) {
	u, err := r.users.GetUser(ctx, userID)
	if err != nil {
		return Target{}, err
	}
	if !u.HasUserKey {
		return Target{}, sdkerr.New(sdkerr.KindInvalidArgument, "recipient has no user key yet")
	}
	return Target{Kind: TargetUser, UserPublicEncryptionKey: u.CurrentUserPublicKey}, nil
}

// ResolveProvisional resolves an app/tanker provisional identity to a
// Target: if the identity has already been claimed by a real user (see
// accessors.ProvisionalUserAccessor.ResolveClaim), shares go straight to
// that user's current key instead; otherwise the share fans out as a
// TargetProvisionalUser, addressed by the four public keys the identity's
// invite carries.
func (r *Resolver) ResolveProvisional(ctx context.Context, appSig, tankerSig tcrypto.PublicSignatureKey, appEnc, tankerEnc tcrypto.PublicEncryptionKey) (Target, error) {
	userID, claimed, err := r.provisional.ResolveClaim(ctx, appSig, tankerSig)
	if err != nil {
		return Target{}, err
	}
	if claimed {
		return r.ResolveUser(ctx, userID)
	}
	return Target{
		Kind:                                 TargetProvisionalUser,
		ProvisionalAppPublicSignatureKey:     appSig,
		ProvisionalTankerPublicSignatureKey:  tankerSig,
		ProvisionalAppPublicEncryptionKey:    appEnc,
		ProvisionalTankerPublicEncryptionKey: tankerEnc,
	}, nil
}

func (r *Resolver) ResolveGroup(ctx context.Context, groupID ids.GroupID) (Target, error) {
	g, err := r.groups.GetGroup(ctx, groupID)
	if err != nil {
		return Target{}, err
	}
	if g.PublicEncryptionKey == (tcrypto.PublicEncryptionKey{}) {
		return Target{}, sdkerr.New(sdkerr.KindInvalidArgument, "group has no known encryption key")
	}
	return Target{Kind: TargetUserGroup, GroupPublicEncryptionKey: g.PublicEncryptionKey}, nil
}

// Sharer builds and pushes KeyPublishTo* blocks for an already-known
// resource key.
type Sharer struct {
	trustchainID ids.TrustchainID
	requester    transport.IRequester
}

func NewSharer(trustchainID ids.TrustchainID, requester transport.IRequester) *Sharer {
	return &Sharer{trustchainID: trustchainID, requester: requester}
}

// Share publishes key to every target, one block per target: share() may
// fan out to any mix of users, groups and provisional identities in one
// call.
func (s *Sharer) Share(ctx context.Context, authorDeviceID ids.DeviceID, authorSigningKey tcrypto.PrivateSignatureKey, resourceID ids.ResourceID, key tcrypto.SymmetricKey, targets []Target) error {
	if len(targets) == 0 {
		return sdkerr.New(sdkerr.KindInvalidArgument, "share requires at least one target")
	}
	for _, t := range targets {
		action, err := buildAction(t, resourceID, key)
		if err != nil {
			return err
		}
		b := &blocks.Block{Version: 1, TrustchainID: s.trustchainID, Author: ids.BlockHash(authorDeviceID), Action: action}
		b.Sign(authorSigningKey)
		if err := s.requester.PushBlock(ctx, b); err != nil {
			return fmt.Errorf("share: push: %w", err)
		}
	}
	logger.Printf("shared resource %s with %d targets", resourceID, len(targets))
	return nil
}

// ShareWithSelf re-publishes a resource key to the local user's own
// current user key, so every device of the creating user can decrypt
// without going through another user's recipient list.
func (s *Sharer) ShareWithSelf(ctx context.Context, authorDeviceID ids.DeviceID, authorSigningKey tcrypto.PrivateSignatureKey, resourceID ids.ResourceID, key tcrypto.SymmetricKey, ownPublicUserKey tcrypto.PublicEncryptionKey) error {
	return s.Share(ctx, authorDeviceID, authorSigningKey, resourceID, key, []Target{{Kind: TargetUser, UserPublicEncryptionKey: ownPublicUserKey}})
}

func buildAction(t Target, resourceID ids.ResourceID, key tcrypto.SymmetricKey) (blocks.Action, error) {
	switch t.Kind {
	case TargetUser:
		sealed, err := tcrypto.SealEncrypt(key[:], t.UserPublicEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("share: seal for user: %w", err)
		}
		a := &blocks.KeyPublishToUser{RecipientPublicEncryptionKey: t.UserPublicEncryptionKey, ResourceID: resourceID}
		copy(a.SealedKey[:], sealed)
		return a, nil

	case TargetUserGroup:
		sealed, err := tcrypto.SealEncrypt(key[:], t.GroupPublicEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("share: seal for group: %w", err)
		}
		a := &blocks.KeyPublishToUserGroup{RecipientPublicEncryptionKey: t.GroupPublicEncryptionKey, ResourceID: resourceID}
		copy(a.SealedKey[:], sealed)
		return a, nil

	case TargetProvisionalUser:
		onceSealed, err := tcrypto.SealEncrypt(key[:], t.ProvisionalTankerPublicEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("share: seal for provisional (tanker half): %w", err)
		}
		twiceSealed, err := tcrypto.SealEncrypt(onceSealed, t.ProvisionalAppPublicEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("share: seal for provisional (app half): %w", err)
		}
		return &blocks.KeyPublishToProvisionalUser{
			AppPublicSignatureKey:    t.ProvisionalAppPublicSignatureKey,
			TankerPublicSignatureKey: t.ProvisionalTankerPublicSignatureKey,
			ResourceID:               resourceID,
			TwoTimesSealedKey:        twiceSealed,
		}, nil

	case TargetDevice:
		sealed, err := tcrypto.SealEncrypt(key[:], t.DevicePublicEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("share: seal for device: %w", err)
		}
		return &blocks.KeyPublishToDevice{Recipient: t.DeviceID, ResourceID: resourceID, EncryptedKey: sealed}, nil

	default:
		return nil, sdkerr.New(sdkerr.KindInvalidArgument, "unknown share target kind")
	}
}
