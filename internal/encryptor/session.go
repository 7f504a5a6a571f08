package encryptor

import (
	"fmt"

	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/sdkerr"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
)

// compositeResourceID builds the composite resourceId a transparent
// session's encrypted buffers share a sessionId prefix under: the
// individual part is derived from the first 16 bytes of the subkey seed
// (the seed itself is 32 bytes; spec invariant 8 only requires the
// individual *key* derivation to consume the full seed).
func compositeResourceID(sessionID [ids.ResourceSize]byte, seed tcrypto.SubkeySeed) ids.ResourceID {
	var individual [ids.ResourceSize]byte
	copy(individual[:], seed[:ids.ResourceSize])
	return ids.NewCompositeResourceID(sessionID, individual)
}

// EncryptV9 encrypts clear under a key derived from the session key and a
// fresh per-call subkey seed (spec invariant 8), framing as
// version‖sessionId‖subkeySeed‖ct‖mac with a zero IV (one subkey is used
// for exactly one buffer, so nonce reuse is not a concern).
func EncryptV9(clear []byte, sessionKey tcrypto.SymmetricKey, sessionID [ids.ResourceSize]byte) (encrypted []byte, resourceID ids.ResourceID, err error) {
	var seed tcrypto.SubkeySeed
	if err := tcrypto.RandomFill(seed[:]); err != nil {
		return nil, nil, fmt.Errorf("encryptV9: %w", err)
	}
	individualKey := tcrypto.DeriveSubkey(sessionKey, seed)

	zeroNonce := make([]byte, tcrypto.AEADNonceSize)
	sealed, err := tcrypto.AEADEncryptWithNonce(clear, individualKey, zeroNonce, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("encryptV9: %w", err)
	}

	out := make([]byte, 0, 1+ids.ResourceSize+tcrypto.SubkeySeedSize+len(sealed))
	out = append(out, byte(V9))
	out = append(out, sessionID[:]...)
	out = append(out, seed[:]...)
	out = append(out, sealed...)
	return out, compositeResourceID(sessionID, seed), nil
}

func DecryptV9(encrypted []byte, sessionKey tcrypto.SymmetricKey) ([]byte, error) {
	if len(encrypted) < overheadV9 || Version(encrypted[0]) != V9 {
		return nil, sdkerr.New(sdkerr.KindDecryptionFailed, "malformed V9 buffer")
	}
	var seed tcrypto.SubkeySeed
	copy(seed[:], encrypted[1+ids.ResourceSize:1+ids.ResourceSize+tcrypto.SubkeySeedSize])
	individualKey := tcrypto.DeriveSubkey(sessionKey, seed)

	sealed := encrypted[1+ids.ResourceSize+tcrypto.SubkeySeedSize:]
	zeroNonce := make([]byte, tcrypto.AEADNonceSize)
	clear, err := tcrypto.AEADDecryptWithNonce(sealed, individualKey, zeroNonce, nil)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindDecryptionFailed, "V9 decryption failed", err)
	}
	return clear, nil
}

// EncryptV10 pads clear and applies the V9 framing, tagged as V10.
func EncryptV10(clear []byte, sessionKey tcrypto.SymmetricKey, sessionID [ids.ResourceSize]byte, step PaddingStep) (encrypted []byte, resourceID ids.ResourceID, err error) {
	padded := Pad(clear, step, DefaultMinimalPadding)
	enc, rid, err := EncryptV9(padded, sessionKey, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("encryptV10: %w", err)
	}
	enc[0] = byte(V10)
	return enc, rid, nil
}

func DecryptV10(encrypted []byte, sessionKey tcrypto.SymmetricKey) ([]byte, error) {
	if len(encrypted) < 1 || Version(encrypted[0]) != V10 {
		return nil, sdkerr.New(sdkerr.KindDecryptionFailed, "malformed V10 buffer")
	}
	asV9 := append([]byte{byte(V9)}, encrypted[1:]...)
	padded, err := DecryptV9(asV9, sessionKey)
	if err != nil {
		return nil, err
	}
	return Unpad(padded)
}
