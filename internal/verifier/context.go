// Package verifier implements the per-nature verification rules: pure
// functions (no I/O) that check signature, authorship, ordering and
// uniqueness invariants for a single block given its surrounding
// projection. Each rule is a function that takes already-fetched state and
// returns an error, with no side effects of its own.
package verifier

import (
	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
)

// AuthorDevice is the projected state of the block's author device, as
// known to the caller before verification.
type AuthorDevice struct {
	DeviceID            ids.DeviceID
	UserID              ids.UserID
	PublicSignatureKey  tcrypto.PublicSignatureKey
	PublicEncryptionKey tcrypto.PublicEncryptionKey
	RevokedAtIndex      *uint64 // nil if not revoked
}

// RevokedBefore reports whether the device was revoked at or before
// blockIndex (invariant 1: "not revoked at the referenced block's index").
func (d *AuthorDevice) RevokedBefore(blockIndex uint64) bool {
	return d.RevokedAtIndex != nil && *d.RevokedAtIndex <= blockIndex
}

// UserState is the verifier's view of a user: whether they currently hold
// a user encryption keypair (absent for never-migrated legacy v1 users)
// and the set of their devices.
type UserState struct {
	UserID               ids.UserID
	HasUserKey           bool
	CurrentUserPublicKey tcrypto.PublicEncryptionKey
	Devices              map[ids.DeviceID]*AuthorDevice
}

// GroupState is the verifier's view of a group for UserGroupCreation /
// UserGroupAddition checks.
type GroupState struct {
	Exists              bool
	PublicSignatureKey  tcrypto.PublicSignatureKey
	PublicEncryptionKey tcrypto.PublicEncryptionKey
	LastBlockHash       ids.BlockHash
}
