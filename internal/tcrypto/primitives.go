package tcrypto

import (
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"fmt"
	"io"
	"log"
	"os"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

var logger = log.New(os.Stderr, "[TCRYPTO] ", log.Ldate|log.Ltime|log.LUTC)

// RandomFill fills buf with cryptographically secure random bytes read
// straight from crypto/rand.Reader.
func RandomFill(buf []byte) error {
	if _, err := io.ReadFull(cryptorand.Reader, buf); err != nil {
		return fmt.Errorf("randomFill: %w", err)
	}
	return nil
}

// GenerateSignatureKeyPair creates a fresh Ed25519 signing keypair.
func GenerateSignatureKeyPair() (SignatureKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		return SignatureKeyPair{}, fmt.Errorf("generate signature keypair: %w", err)
	}
	var kp SignatureKeyPair
	copy(kp.PublicKey[:], pub)
	copy(kp.PrivateKey[:], priv)
	return kp, nil
}

// GenerateEncryptionKeyPair creates a fresh X25519 keypair, clamped per
// the standard Curve25519 clamping rules.
func GenerateEncryptionKeyPair() (EncryptionKeyPair, error) {
	var priv, pub [32]byte
	if err := RandomFill(priv[:]); err != nil {
		return EncryptionKeyPair{}, err
	}
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	curve25519.ScalarBaseMult(&pub, &priv)

	return EncryptionKeyPair{PublicKey: PublicEncryptionKey(pub), PrivateKey: PrivateEncryptionKey(priv)}, nil
}

// Sign signs message with an Ed25519 private key.
func Sign(message []byte, priv PrivateSignatureKey) Signature {
	sig := ed25519.Sign(ed25519.PrivateKey(priv[:]), message)
	var out Signature
	copy(out[:], sig)
	return out
}

// Verify reports whether sig is a valid Ed25519 signature of message under
// pub.
func Verify(message []byte, sig Signature, pub PublicSignatureKey) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), message, sig[:])
}

// GenericHash computes the blake2b-256 digest of data, the Go equivalent of
// libsodium's crypto_generichash used throughout the original for block
// hashes and composite-resource subkey derivation.
func GenericHash(data ...[]byte) Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for an oversized key, and we pass none.
		panic(fmt.Sprintf("tcrypto: blake2b.New256: %v", err))
	}
	for _, chunk := range data {
		h.Write(chunk)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// sealNonce reproduces libsodium's crypto_box_seal nonce derivation:
// blake2b(ephemeralPublicKey || recipientPublicKey), truncated to the box
// nonce size.
func sealNonce(ephemeralPub, recipientPub *[32]byte) *[24]byte {
	h := GenericHash(ephemeralPub[:], recipientPub[:])
	var nonce [24]byte
	copy(nonce[:], h[:24])
	return &nonce
}

// SealEncrypt performs anonymous public-key encryption (an X25519 sealed
// box, libsodium's crypto_box_seal): a fresh ephemeral keypair is generated,
// the nonce is derived from blake2b(ephemeralPub||recipientPub), and the
// message is boxed with box.Seal under (ephemeralPriv, recipientPub). The
// ciphertext is ephemeralPublicKey || box(message); overhead is
// 32 (ephemeral pub) + box.Overhead (16) = 48 bytes, matching SealOverhead.
func SealEncrypt(message []byte, recipientPublicKey PublicEncryptionKey) ([]byte, error) {
	ephPub, ephPriv, err := box.GenerateKey(cryptorand.Reader)
	if err != nil {
		return nil, fmt.Errorf("sealEncrypt: generate ephemeral key: %w", err)
	}
	recipient := [32]byte(recipientPublicKey)
	nonce := sealNonce(ephPub, &recipient)

	out := make([]byte, 0, 32+len(message)+box.Overhead)
	out = append(out, ephPub[:]...)
	out = box.Seal(out, message, nonce, &recipient, ephPriv)
	return out, nil
}

// SealDecrypt opens a sealed box produced by SealEncrypt.
func SealDecrypt(sealed []byte, kp EncryptionKeyPair) ([]byte, error) {
	if len(sealed) < 32 {
		return nil, fmt.Errorf("sealDecrypt: %w", errDecryptionFailed)
	}
	var ephPub [32]byte
	copy(ephPub[:], sealed[:32])
	boxed := sealed[32:]

	recipientPub := [32]byte(kp.PublicKey)
	nonce := sealNonce(&ephPub, &recipientPub)

	recipientPriv := [32]byte(kp.PrivateKey)
	out, ok := openBox(boxed, nonce, &ephPub, &recipientPriv)
	if !ok {
		return nil, fmt.Errorf("sealDecrypt: %w", errDecryptionFailed)
	}
	return out, nil
}

func openBox(boxed []byte, nonce *[24]byte, senderPub, recipientPriv *[32]byte) ([]byte, bool) {
	return box.Open(nil, boxed, nonce, senderPub, recipientPriv)
}

var errDecryptionFailed = fmt.Errorf("open sealed box failed")

// AEADEncrypt encrypts plaintext with XChaCha20-Poly1305-IETF under key and
// a random 24-byte nonce, prepending the nonce to the returned ciphertext.
func AEADEncrypt(plaintext []byte, key SymmetricKey, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("aeadEncrypt: new cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if err := RandomFill(nonce); err != nil {
		return nil, err
	}
	ct := aead.Seal(nil, nonce, plaintext, associatedData)
	return append(nonce, ct...), nil
}

// AEADEncryptWithNonce is AEADEncrypt with a caller-supplied nonce, used by
// the chunked streaming encryptor which derives a fresh random nonce per
// chunk itself.
func AEADEncryptWithNonce(plaintext []byte, key SymmetricKey, nonce, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("aeadEncrypt: new cipher: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("aeadEncrypt: bad nonce size %d", len(nonce))
	}
	return aead.Seal(nil, nonce, plaintext, associatedData), nil
}

// AEADDecrypt reverses AEADEncrypt: ciphertext is nonce || ct || mac.
func AEADDecrypt(ciphertext []byte, key SymmetricKey, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("aeadDecrypt: new cipher: %w", err)
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("aeadDecrypt: %w", errDecryptionFailed)
	}
	nonce, ct := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, associatedData)
	if err != nil {
		return nil, fmt.Errorf("aeadDecrypt: %w", errDecryptionFailed)
	}
	return pt, nil
}

// AEADDecryptWithNonce decrypts ciphertext (ct || mac only, no embedded
// nonce) against a caller-supplied nonce.
func AEADDecryptWithNonce(ciphertext []byte, key SymmetricKey, nonce, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("aeadDecrypt: new cipher: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("aeadDecrypt: bad nonce size %d", len(nonce))
	}
	pt, err := aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, fmt.Errorf("aeadDecrypt: %w", errDecryptionFailed)
	}
	return pt, nil
}

// GenerateSymmetricKey returns a fresh random AEAD key.
func GenerateSymmetricKey() (SymmetricKey, error) {
	var k SymmetricKey
	if err := RandomFill(k[:]); err != nil {
		return k, err
	}
	return k, nil
}

// GenerateNonce returns a fresh random XChaCha20-Poly1305 nonce.
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, AEADNonceSize)
	if err := RandomFill(nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}

// DeriveSubkey implements the composite-resource individual key derivation
// from spec invariant 8: generichash(sessionKey || subkeySeed).
func DeriveSubkey(sessionKey SymmetricKey, seed SubkeySeed) SymmetricKey {
	h := GenericHash(sessionKey[:], seed[:])
	var out SymmetricKey
	copy(out[:], h[:])
	return out
}
