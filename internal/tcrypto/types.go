// Package tcrypto wraps the fixed-size cryptographic material used across
// the trustchain (signature keys, encryption keys, hashes, AEAD keys) in
// the same newtype-over-[32]byte shape used for X25519 keys, plus the
// sign/seal/AEAD/hash primitives built on top of them.
package tcrypto

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
)

const (
	SignaturePublicKeySize  = ed25519.PublicKeySize
	SignaturePrivateKeySize = ed25519.PrivateKeySize
	SignatureSize           = ed25519.SignatureSize

	EncryptionPublicKeySize  = 32
	EncryptionPrivateKeySize = 32

	HashSize      = 32
	SymmetricKeySize = 32
	AEADNonceSize = 24
	AEADMACSize   = 16
	SealOverhead  = 48
	SubkeySeedSize = 32
)

// PublicSignatureKey is an Ed25519 public key.
type PublicSignatureKey [SignaturePublicKeySize]byte

// PrivateSignatureKey is an Ed25519 private key.
type PrivateSignatureKey [SignaturePrivateKeySize]byte

// Signature is an Ed25519 signature.
type Signature [SignatureSize]byte

// PublicEncryptionKey is an X25519 public key.
type PublicEncryptionKey [EncryptionPublicKeySize]byte

// PrivateEncryptionKey is an X25519 private key.
type PrivateEncryptionKey [EncryptionPrivateKeySize]byte

// Hash is a generichash (blake2b-256) digest.
type Hash [HashSize]byte

// SymmetricKey is an AEAD key (XChaCha20-Poly1305, 256-bit).
type SymmetricKey [SymmetricKeySize]byte

// SubkeySeed seeds the derivation of a transparent-session individual key.
type SubkeySeed [SubkeySeedSize]byte

func (k PublicSignatureKey) IsNull() bool    { return k == PublicSignatureKey{} }
func (k PublicEncryptionKey) IsNull() bool   { return k == PublicEncryptionKey{} }
func (k Hash) IsNull() bool                  { return k == Hash{} }
func (k SymmetricKey) IsNull() bool          { return k == SymmetricKey{} }

func (k PublicSignatureKey) String() string  { return hex.EncodeToString(k[:]) }
func (k PublicEncryptionKey) String() string { return hex.EncodeToString(k[:]) }
func (k Hash) String() string                { return hex.EncodeToString(k[:]) }

// Equal reports byte-equality; kept explicit (rather than relying on `==`
// everywhere) because several callers compare slices obtained from parsed
// wire buffers.
func (k PublicSignatureKey) Equal(o PublicSignatureKey) bool { return bytes.Equal(k[:], o[:]) }
func (k PublicEncryptionKey) Equal(o PublicEncryptionKey) bool { return bytes.Equal(k[:], o[:]) }
func (k Hash) Equal(o Hash) bool { return bytes.Equal(k[:], o[:]) }

// SignatureKeyPair is a matched Ed25519 keypair.
type SignatureKeyPair struct {
	PublicKey  PublicSignatureKey
	PrivateKey PrivateSignatureKey
}

// EncryptionKeyPair is a matched X25519 keypair.
type EncryptionKeyPair struct {
	PublicKey  PublicEncryptionKey
	PrivateKey PrivateEncryptionKey
}
