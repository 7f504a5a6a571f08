package encryptor

import (
	"fmt"

	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/sdkerr"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
)

// EncryptV2 encrypts clear under a random IV; the resulting resourceId is
// the AEAD tag itself (resourceId = MAC).
func EncryptV2(clear []byte, key tcrypto.SymmetricKey) (encrypted []byte, resourceID ids.ResourceID, err error) {
	sealed, err := tcrypto.AEADEncrypt(clear, key, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("encryptV2: %w", err)
	}
	out := make([]byte, 0, 1+len(sealed))
	out = append(out, byte(V2))
	out = append(out, sealed...)
	mac := sealed[len(sealed)-tcrypto.AEADMACSize:]
	rid, _ := ids.NewSimpleResourceID(mac[:ids.ResourceSize])
	return out, rid, nil
}

func DecryptV2(encrypted []byte, key tcrypto.SymmetricKey) ([]byte, error) {
	if len(encrypted) < overheadV2 || Version(encrypted[0]) != V2 {
		return nil, sdkerr.New(sdkerr.KindDecryptionFailed, "malformed V2 buffer")
	}
	clear, err := tcrypto.AEADDecrypt(encrypted[1:], key, nil)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindDecryptionFailed, "V2 decryption failed", err)
	}
	return clear, nil
}

// EncryptV3 encrypts clear under an all-zero IV (legal here because each
// resource key is used for exactly one V3 buffer). resourceId = MAC.
func EncryptV3(clear []byte, key tcrypto.SymmetricKey) (encrypted []byte, resourceID ids.ResourceID, err error) {
	zeroNonce := make([]byte, tcrypto.AEADNonceSize)
	sealed, err := tcrypto.AEADEncryptWithNonce(clear, key, zeroNonce, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("encryptV3: %w", err)
	}
	out := make([]byte, 0, 1+len(sealed))
	out = append(out, byte(V3))
	out = append(out, sealed...)
	mac := sealed[len(sealed)-tcrypto.AEADMACSize:]
	rid, _ := ids.NewSimpleResourceID(mac[:ids.ResourceSize])
	return out, rid, nil
}

func DecryptV3(encrypted []byte, key tcrypto.SymmetricKey) ([]byte, error) {
	if len(encrypted) < overheadV3 || Version(encrypted[0]) != V3 {
		return nil, sdkerr.New(sdkerr.KindDecryptionFailed, "malformed V3 buffer")
	}
	zeroNonce := make([]byte, tcrypto.AEADNonceSize)
	clear, err := tcrypto.AEADDecryptWithNonce(encrypted[1:], key, zeroNonce, nil)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindDecryptionFailed, "V3 decryption failed", err)
	}
	return clear, nil
}

// EncryptV6 pads clear to the padding step (Auto/padme if step.Auto) and
// then applies the V3 framing, tagged as V6.
func EncryptV6(clear []byte, key tcrypto.SymmetricKey, step PaddingStep) (encrypted []byte, resourceID ids.ResourceID, err error) {
	padded := Pad(clear, step, DefaultMinimalPadding)
	enc, rid, err := EncryptV3(padded, key)
	if err != nil {
		return nil, nil, fmt.Errorf("encryptV6: %w", err)
	}
	enc[0] = byte(V6)
	return enc, rid, nil
}

func DecryptV6(encrypted []byte, key tcrypto.SymmetricKey) ([]byte, error) {
	if len(encrypted) < 1 || Version(encrypted[0]) != V6 {
		return nil, sdkerr.New(sdkerr.KindDecryptionFailed, "malformed V6 buffer")
	}
	asV3 := append([]byte{byte(V3)}, encrypted[1:]...)
	padded, err := DecryptV3(asV3, key)
	if err != nil {
		return nil, err
	}
	return Unpad(padded)
}

// EncryptV5 encrypts clear under a freshly random resourceId and IV; the
// resourceId carries no cryptographic meaning (unlike V2/V3's MAC-derived
// one) and is embedded directly in the header.
func EncryptV5(clear []byte, key tcrypto.SymmetricKey) (encrypted []byte, resourceID ids.ResourceID, err error) {
	ridBytes := make([]byte, ids.ResourceSize)
	if err := tcrypto.RandomFill(ridBytes); err != nil {
		return nil, nil, fmt.Errorf("encryptV5: %w", err)
	}
	sealed, err := tcrypto.AEADEncrypt(clear, key, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("encryptV5: %w", err)
	}
	out := make([]byte, 0, 1+len(ridBytes)+len(sealed))
	out = append(out, byte(V5))
	out = append(out, ridBytes...)
	out = append(out, sealed...)
	rid, _ := ids.NewSimpleResourceID(ridBytes)
	return out, rid, nil
}

func DecryptV5(encrypted []byte, key tcrypto.SymmetricKey) ([]byte, error) {
	if len(encrypted) < overheadV5 || Version(encrypted[0]) != V5 {
		return nil, sdkerr.New(sdkerr.KindDecryptionFailed, "malformed V5 buffer")
	}
	sealed := encrypted[1+ids.ResourceSize:]
	clear, err := tcrypto.AEADDecrypt(sealed, key, nil)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindDecryptionFailed, "V5 decryption failed", err)
	}
	return clear, nil
}

// EncryptV7 pads clear and applies the V5 framing, tagged as V7.
func EncryptV7(clear []byte, key tcrypto.SymmetricKey, step PaddingStep) (encrypted []byte, resourceID ids.ResourceID, err error) {
	padded := Pad(clear, step, DefaultMinimalPadding)
	enc, rid, err := EncryptV5(padded, key)
	if err != nil {
		return nil, nil, fmt.Errorf("encryptV7: %w", err)
	}
	enc[0] = byte(V7)
	return enc, rid, nil
}

func DecryptV7(encrypted []byte, key tcrypto.SymmetricKey) ([]byte, error) {
	if len(encrypted) < 1 || Version(encrypted[0]) != V7 {
		return nil, sdkerr.New(sdkerr.KindDecryptionFailed, "malformed V7 buffer")
	}
	asV5 := append([]byte{byte(V5)}, encrypted[1:]...)
	padded, err := DecryptV5(asV5, key)
	if err != nil {
		return nil, err
	}
	return Unpad(padded)
}
