// Package encryptor implements the versioned resource-encryption family:
// plain (V2/V3), randomized-resourceId (V5), padded variants
// (V6/V7/V8/V10), chunked streaming (V4/V8) and composite transparent-
// session framing (V9/V10), each exposing encryptedSize/decryptedSize/
// extractResourceId as pure functions over byte buffers, built on
// tcrypto's XChaCha20-Poly1305-IETF AEAD.
package encryptor

import (
	"errors"
	"fmt"

	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/sdkerr"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
)

// Version is the one-byte version tag every encrypted buffer starts with.
type Version byte

const (
	V2  Version = 2
	V3  Version = 3
	V4  Version = 4
	V5  Version = 5
	V6  Version = 6
	V7  Version = 7
	V8  Version = 8
	V9  Version = 9
	V10 Version = 10
)

var (
	errEmptyPadded  = errors.New("encryptor: padded buffer is empty")
	errBadPadding   = errors.New("encryptor: invalid padding length byte")
	errTooShort     = errors.New("encryptor: buffer shorter than the version's framing overhead")
	errTruncated    = errors.New("encryptor: truncated chunked stream")
	errWrongVersion = errors.New("encryptor: version byte does not match the expected version")
)

const (
	overheadV2 = 1 + tcrypto.AEADNonceSize + tcrypto.AEADMACSize // 41
	overheadV3 = 1 + tcrypto.AEADMACSize                          // 17
	overheadV5 = 1 + ids.ResourceSize + tcrypto.AEADNonceSize + tcrypto.AEADMACSize
	overheadV9 = 1 + ids.ResourceSize + tcrypto.SubkeySeedSize + tcrypto.AEADMACSize
)

// EncryptedSize returns the size of the encrypted buffer produced for
// clearSize bytes of plaintext, for every version; the streamed versions
// (V4, V8) are sized at DefaultChunkSize.
func EncryptedSize(v Version, clearSize uint64) (uint64, error) {
	switch v {
	case V2:
		return clearSize + overheadV2, nil
	case V3:
		return clearSize + overheadV3, nil
	case V5:
		return clearSize + overheadV5, nil
	case V6:
		return paddedEncryptedSize(clearSize, defaultPaddingStep(), overheadV3), nil
	case V7:
		return paddedEncryptedSize(clearSize, defaultPaddingStep(), overheadV5), nil
	case V9:
		return clearSize + overheadV9, nil
	case V10:
		return paddedEncryptedSize(clearSize, defaultPaddingStep(), overheadV9), nil
	case V4, V8:
		return streamEncryptedSize(v, clearSize), nil
	default:
		return 0, fmt.Errorf("encryptor: unknown version %d", v)
	}
}

func paddedEncryptedSize(clearSize uint64, step PaddingStep, overhead uint64) uint64 {
	return PaddedSize(clearSize, step, DefaultMinimalPadding) + overhead
}

// defaultPaddingStep is Auto (padme); the dispatch-level helpers always use
// it, so size-prediction functions stay pure and argument-free.
func defaultPaddingStep() PaddingStep { return PaddingStep{Auto: true} }

// DecryptedSize returns the plaintext size implied by an encrypted buffer,
// without decrypting it.
func DecryptedSize(encrypted []byte) (uint64, error) {
	if len(encrypted) < 1 {
		return 0, sdkerr.New(sdkerr.KindInvalidArgument, "empty buffer")
	}
	v := Version(encrypted[0])
	switch v {
	case V2:
		if len(encrypted) < overheadV2 {
			return 0, sdkerr.New(sdkerr.KindInvalidArgument, "buffer shorter than V2 overhead")
		}
		return uint64(len(encrypted) - overheadV2), nil
	case V3:
		if len(encrypted) < overheadV3 {
			return 0, sdkerr.New(sdkerr.KindInvalidArgument, "buffer shorter than V3 overhead")
		}
		return uint64(len(encrypted) - overheadV3), nil
	case V5:
		if len(encrypted) < overheadV5 {
			return 0, sdkerr.New(sdkerr.KindInvalidArgument, "buffer shorter than V5 overhead")
		}
		return uint64(len(encrypted) - overheadV5), nil
	case V6, V7, V9, V10:
		// Padded and session-keyed variants: no plaintext size is reported
		// for them without decrypting, so this returns an error.
		return 0, sdkerr.New(sdkerr.KindInvalidArgument, "decryptedSize requires decryption for padded/composite versions")
	case V4, V8:
		return streamDecryptedSize(encrypted)
	default:
		return 0, sdkerr.New(sdkerr.KindInvalidArgument, fmt.Sprintf("unknown version %d", v))
	}
}

// ExtractResourceID recovers the resource identifier carried by (or
// derivable from) an encrypted buffer, without the key.
func ExtractResourceID(encrypted []byte) (ids.ResourceID, error) {
	if len(encrypted) < 1 {
		return nil, sdkerr.New(sdkerr.KindInvalidArgument, "empty buffer")
	}
	v := Version(encrypted[0])
	switch v {
	case V2:
		if len(encrypted) < overheadV2 {
			return nil, sdkerr.New(sdkerr.KindInvalidArgument, "buffer shorter than V2 overhead")
		}
		mac := encrypted[len(encrypted)-tcrypto.AEADMACSize:]
		return ids.NewSimpleResourceID(mac[:ids.ResourceSize])
	case V3, V6:
		if len(encrypted) < overheadV3 {
			return nil, sdkerr.New(sdkerr.KindInvalidArgument, "buffer shorter than V3 overhead")
		}
		mac := encrypted[len(encrypted)-tcrypto.AEADMACSize:]
		return ids.NewSimpleResourceID(mac[:ids.ResourceSize])
	case V5, V7:
		if len(encrypted) < 1+ids.ResourceSize {
			return nil, sdkerr.New(sdkerr.KindInvalidArgument, "buffer shorter than resourceId field")
		}
		return ids.NewSimpleResourceID(encrypted[1 : 1+ids.ResourceSize])
	case V9, V10:
		if len(encrypted) < 1+ids.ResourceSize+tcrypto.SubkeySeedSize {
			return nil, sdkerr.New(sdkerr.KindInvalidArgument, "buffer shorter than session header")
		}
		session := encrypted[1 : 1+ids.ResourceSize]
		seed := encrypted[1+ids.ResourceSize : 1+ids.ResourceSize+tcrypto.SubkeySeedSize]
		var sessionArr, individualArr [ids.ResourceSize]byte
		copy(sessionArr[:], session)
		copy(individualArr[:], seed[:ids.ResourceSize])
		return ids.NewCompositeResourceID(sessionArr, individualArr), nil
	case V4, V8:
		return streamExtractResourceID(encrypted)
	default:
		return nil, sdkerr.New(sdkerr.KindInvalidArgument, fmt.Sprintf("unknown version %d", v))
	}
}
