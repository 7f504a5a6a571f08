package blocks

import (
	"fmt"

	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/serialize"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
)

// Block is the fixed preamble wrapped around a typed Action:
// version(varint=1) | index(varint) | trustchainId(32) | nature(varint) |
// payloadSize(varint) | payload(payloadSize) | author(32) | signature(64).
type Block struct {
	Version      uint64
	Index        uint64 // server-assigned; 0 before insertion
	TrustchainID ids.TrustchainID
	Author       ids.BlockHash
	Action       Action
	Signature    tcrypto.Signature
}

// SignedData is the byte sequence the block's signature covers: every
// preamble field up to and including the payload, excluding index (which
// the server assigns after signing) and the signature itself.
func (b *Block) SignedData() []byte {
	w := serialize.NewWriter()
	w.PutVarint(b.Version)
	w.PutFixed(b.TrustchainID[:])
	w.PutVarint(uint64(b.Action.Nature()))
	payload := b.Action.MarshalPayload()
	w.PutVarint(uint64(len(payload)))
	w.PutFixed(payload)
	w.PutFixed(b.Author[:])
	return w.Bytes()
}

// Marshal serializes the full wire block (preamble + payload + author +
// signature), round-tripping byte-exactly.
func (b *Block) Marshal() []byte {
	w := serialize.NewWriter()
	w.PutVarint(b.Version)
	w.PutVarint(b.Index)
	w.PutFixed(b.TrustchainID[:])
	w.PutVarint(uint64(b.Action.Nature()))
	payload := b.Action.MarshalPayload()
	w.PutVarint(uint64(len(payload)))
	w.PutFixed(payload)
	w.PutFixed(b.Author[:])
	w.PutFixed(b.Signature[:])
	return w.Bytes()
}

// Hash computes this block's identity hash: generichash(nature || author ||
// payload). Used both for DeviceId (invariant 2) and as the "previous
// block hash" / lastBlockHash reference chained groups carry.
func (b *Block) Hash() ids.BlockHash {
	w := serialize.NewWriter()
	w.PutVarint(uint64(b.Action.Nature()))
	w.PutFixed(b.Author[:])
	w.PutFixed(b.Action.MarshalPayload())
	h := tcrypto.GenericHash(w.Bytes())
	return ids.BlockHash(h)
}

// Unmarshal parses the wire preamble and dispatches to the nature-specific
// payload decoder.
func Unmarshal(buf []byte) (*Block, error) {
	r := serialize.NewReader(buf)

	version, err := r.GetVarint()
	if err != nil {
		return nil, fmt.Errorf("block: version: %w", err)
	}
	index, err := r.GetVarint()
	if err != nil {
		return nil, fmt.Errorf("block: index: %w", err)
	}
	trustchainID, err := r.GetFixed(ids.Size)
	if err != nil {
		return nil, fmt.Errorf("block: trustchainId: %w", err)
	}
	natureVal, err := r.GetVarint()
	if err != nil {
		return nil, fmt.Errorf("block: nature: %w", err)
	}
	nature := Nature(natureVal)

	payloadSize, err := r.GetVarint()
	if err != nil {
		return nil, fmt.Errorf("block: payloadSize: %w", err)
	}
	payload, err := r.GetFixed(int(payloadSize))
	if err != nil {
		return nil, fmt.Errorf("block: payload: %w", err)
	}
	payloadReader := serialize.NewReader(payload)

	author, err := r.GetFixed(ids.Size)
	if err != nil {
		return nil, fmt.Errorf("block: author: %w", err)
	}
	sig, err := r.GetFixed(tcrypto.SignatureSize)
	if err != nil {
		return nil, fmt.Errorf("block: signature: %w", err)
	}

	action, err := unmarshalAction(nature, payloadReader)
	if err != nil {
		return nil, fmt.Errorf("block: nature %s: %w", nature, err)
	}

	b := &Block{Version: version, Index: index, Action: action}
	copy(b.TrustchainID[:], trustchainID)
	copy(b.Author[:], author)
	copy(b.Signature[:], sig)
	return b, nil
}

func unmarshalAction(nature Nature, r *serialize.Reader) (Action, error) {
	switch nature {
	case NatureTrustchainCreation:
		return unmarshalTrustchainCreation(r)
	case NatureDeviceCreationV1:
		return unmarshalDeviceCreation(1, r)
	case NatureDeviceCreationV2:
		return unmarshalDeviceCreation(2, r)
	case NatureDeviceCreationV3:
		return unmarshalDeviceCreation(3, r)
	case NatureKeyPublishToDevice:
		return unmarshalKeyPublishToDevice(r)
	case NatureKeyPublishToUser:
		return unmarshalKeyPublishToUser(r)
	case NatureKeyPublishToUserGroup:
		return unmarshalKeyPublishToUserGroup(r)
	case NatureKeyPublishToProvisionalUser:
		return unmarshalKeyPublishToProvisionalUser(r)
	case NatureUserGroupCreationV1:
		return unmarshalUserGroupCreation(1, r)
	case NatureUserGroupCreationV2:
		return unmarshalUserGroupCreation(2, r)
	case NatureUserGroupCreationV3:
		return unmarshalUserGroupCreation(3, r)
	case NatureUserGroupAdditionV1:
		return unmarshalUserGroupAddition(1, r)
	case NatureUserGroupAdditionV2:
		return unmarshalUserGroupAddition(2, r)
	case NatureUserGroupAdditionV3:
		return unmarshalUserGroupAddition(3, r)
	case NatureDeviceRevocationV1:
		return unmarshalDeviceRevocation(1, r)
	case NatureDeviceRevocationV2:
		return unmarshalDeviceRevocation(2, r)
	case NatureProvisionalIdentityClaim:
		return unmarshalProvisionalIdentityClaim(r)
	default:
		return nil, fmt.Errorf("unknown nature %d", nature)
	}
}

// Sign computes and sets b.Signature over b.SignedData() using priv. For
// DeviceCreationV1/V3 blocks signed by an ephemeral key (not the author
// device), pass that ephemeral private key instead of the author's.
func (b *Block) Sign(priv tcrypto.PrivateSignatureKey) {
	b.Signature = tcrypto.Sign(b.SignedData(), priv)
}

// VerifySignature checks b.Signature against pub.
func (b *Block) VerifySignature(pub tcrypto.PublicSignatureKey) bool {
	return tcrypto.Verify(b.SignedData(), b.Signature, pub)
}
