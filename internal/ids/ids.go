// Package ids defines the opaque, fixed-width, byte-comparable
// identifiers: TrustchainId, UserId, DeviceId, GroupId, and the simple /
// composite ResourceId. Same newtype-over-byte-array shape as
// tcrypto.PublicSignatureKey, generalized to identifiers rather than key
// material.
package ids

import (
	"encoding/hex"
	"fmt"
)

const (
	Size          = 32
	ResourceSize  = 16
	CompositeSize = 32
)

type TrustchainID [Size]byte
type UserID [Size]byte
type DeviceID [Size]byte
type GroupID [Size]byte

// BlockHash identifies a block by the hash of its (nature, author, payload)
// tuple (spec invariant 2); device, group and "previous block" references
// are all expressed as a BlockHash.
type BlockHash [Size]byte

func (h BlockHash) IsNull() bool   { return h == BlockHash{} }
func (h BlockHash) String() string { return hex.EncodeToString(h[:]) }
func (id UserID) String() string   { return hex.EncodeToString(id[:]) }
func (id DeviceID) String() string { return hex.EncodeToString(id[:]) }
func (id GroupID) String() string  { return hex.EncodeToString(id[:]) }
func (id UserID) IsNull() bool     { return id == UserID{} }
func (id DeviceID) IsNull() bool   { return id == DeviceID{} }
func (id GroupID) IsNull() bool    { return id == GroupID{} }

// ResourceKind distinguishes a plain per-resource identifier from a
// transparent-session composite identifier (spec invariant 8).
type ResourceKind int

const (
	ResourceKindSimple ResourceKind = iota
	ResourceKindTransparentSession
)

// ResourceID is either a 16-byte simple id or a 32-byte composite id
// (sessionId(16) || individualResourceId(16)).
type ResourceID []byte

// NewSimpleResourceID validates and wraps a 16-byte resource id.
func NewSimpleResourceID(b []byte) (ResourceID, error) {
	if len(b) != ResourceSize {
		return nil, fmt.Errorf("ids: simple resource id must be %d bytes, got %d", ResourceSize, len(b))
	}
	out := make(ResourceID, ResourceSize)
	copy(out, b)
	return out, nil
}

// NewCompositeResourceID builds a 32-byte session||individual composite id.
func NewCompositeResourceID(session, individual [ResourceSize]byte) ResourceID {
	out := make(ResourceID, CompositeSize)
	copy(out[:ResourceSize], session[:])
	copy(out[ResourceSize:], individual[:])
	return out
}

func (r ResourceID) Kind() ResourceKind {
	if len(r) == CompositeSize {
		return ResourceKindTransparentSession
	}
	return ResourceKindSimple
}

// SessionID returns the session-id prefix of a composite resource id. It
// panics if r is not composite; callers must check Kind() first.
func (r ResourceID) SessionID() ResourceID {
	if r.Kind() != ResourceKindTransparentSession {
		panic("ids: SessionID called on a non-composite resource id")
	}
	out := make(ResourceID, ResourceSize)
	copy(out, r[:ResourceSize])
	return out
}

// IndividualPart returns the individual-id suffix of a composite resource
// id, or the id itself if simple.
func (r ResourceID) IndividualPart() ResourceID {
	if r.Kind() == ResourceKindTransparentSession {
		out := make(ResourceID, ResourceSize)
		copy(out, r[ResourceSize:])
		return out
	}
	return r
}

func (r ResourceID) Equal(o ResourceID) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if r[i] != o[i] {
			return false
		}
	}
	return true
}

func (r ResourceID) String() string { return hex.EncodeToString(r) }

// Key returns a string usable as a map key (ResourceID being a slice can't
// be one directly).
func (r ResourceID) Key() string { return string(r) }
