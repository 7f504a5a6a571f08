package encryptor

import (
	"encoding/binary"
	"fmt"

	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/sdkerr"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
)

// DefaultChunkSize is the plaintext chunk size used when a caller doesn't
// pick one, matching the defaultEncryptedChunkSize convention (1 MiB of
// plaintext per chunk before AEAD overhead).
const DefaultChunkSize = 1 << 20

// chunkHeaderSize is version(1) + encryptedChunkLen(4, BE u32) +
// resourceId(16) + nonce(24).
const chunkHeaderSize = 1 + 4 + ids.ResourceSize + tcrypto.AEADNonceSize

// EncryptStream encrypts clear as a sequence of independently-authenticated
// chunks (V4/V8 framing): each chunk has its own random nonce and
// carries the shared resourceId and the stream version tag. A final chunk
// shorter than chunkSize (possibly empty) marks end-of-stream.
func EncryptStream(version Version, clear []byte, key tcrypto.SymmetricKey, chunkSize int) (encrypted []byte, resourceID ids.ResourceID, err error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	ridBytes := make([]byte, ids.ResourceSize)
	if err := tcrypto.RandomFill(ridBytes); err != nil {
		return nil, nil, fmt.Errorf("encryptStream: %w", err)
	}
	var rid [ids.ResourceSize]byte
	copy(rid[:], ridBytes)

	out := make([]byte, 0, len(clear)+chunkHeaderSize*(len(clear)/chunkSize+2))
	offset := 0
	for {
		end := offset + chunkSize
		final := end >= len(clear)
		if final {
			end = len(clear)
		}
		chunk := clear[offset:end]

		nonce := make([]byte, tcrypto.AEADNonceSize)
		if err := tcrypto.RandomFill(nonce); err != nil {
			return nil, nil, fmt.Errorf("encryptStream: %w", err)
		}
		sealed, err := tcrypto.AEADEncryptWithNonce(chunk, key, nonce, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("encryptStream: %w", err)
		}

		header := make([]byte, chunkHeaderSize)
		header[0] = byte(version)
		binary.BigEndian.PutUint32(header[1:5], uint32(len(sealed)))
		copy(header[5:5+ids.ResourceSize], rid[:])
		copy(header[5+ids.ResourceSize:], nonce)

		out = append(out, header...)
		out = append(out, sealed...)

		offset = end
		if final && len(chunk) < chunkSize {
			break
		}
		if final {
			// clear was an exact multiple of chunkSize: emit one more,
			// empty, chunk purely to signal end-of-stream.
			chunk = nil
			nonce := make([]byte, tcrypto.AEADNonceSize)
			if err := tcrypto.RandomFill(nonce); err != nil {
				return nil, nil, fmt.Errorf("encryptStream: %w", err)
			}
			sealed, err := tcrypto.AEADEncryptWithNonce(chunk, key, nonce, nil)
			if err != nil {
				return nil, nil, fmt.Errorf("encryptStream: %w", err)
			}
			header := make([]byte, chunkHeaderSize)
			header[0] = byte(version)
			binary.BigEndian.PutUint32(header[1:5], uint32(len(sealed)))
			copy(header[5:5+ids.ResourceSize], rid[:])
			copy(header[5+ids.ResourceSize:], nonce)
			out = append(out, header...)
			out = append(out, sealed...)
			break
		}
	}

	rid16, _ := ids.NewSimpleResourceID(rid[:])
	return out, rid16, nil
}

// DecryptStream reverses EncryptStream, rejecting a stream whose last
// chunk was never reached (spec: a truncated stream is DecryptionFailed).
func DecryptStream(expectedVersion Version, encrypted []byte, key tcrypto.SymmetricKey, chunkSize int) ([]byte, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	var out []byte
	offset := 0
	sawEnd := false
	for offset < len(encrypted) {
		if offset+chunkHeaderSize > len(encrypted) {
			return nil, sdkerr.New(sdkerr.KindDecryptionFailed, "truncated chunk header")
		}
		header := encrypted[offset : offset+chunkHeaderSize]
		if Version(header[0]) != expectedVersion {
			return nil, sdkerr.New(sdkerr.KindDecryptionFailed, "chunk version mismatch")
		}
		encLen := int(binary.BigEndian.Uint32(header[1:5]))
		nonce := header[5+ids.ResourceSize:]
		offset += chunkHeaderSize

		if offset+encLen > len(encrypted) {
			return nil, sdkerr.New(sdkerr.KindDecryptionFailed, "truncated chunk body")
		}
		sealed := encrypted[offset : offset+encLen]
		offset += encLen

		clear, err := tcrypto.AEADDecryptWithNonce(sealed, key, nonce, nil)
		if err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindDecryptionFailed, "chunk decryption failed", err)
		}
		out = append(out, clear...)

		plainChunkLen := encLen - tcrypto.AEADMACSize
		if plainChunkLen < chunkSize {
			sawEnd = true
			break
		}
	}
	if !sawEnd {
		return nil, sdkerr.New(sdkerr.KindDecryptionFailed, "stream ended without a terminating chunk")
	}
	return out, nil
}

// EncryptV4 is EncryptStream tagged as the plain (unpadded) chunked
// version.
func EncryptV4(clear []byte, key tcrypto.SymmetricKey, chunkSize int) (encrypted []byte, resourceID ids.ResourceID, err error) {
	return EncryptStream(V4, clear, key, chunkSize)
}

func DecryptV4(encrypted []byte, key tcrypto.SymmetricKey, chunkSize int) ([]byte, error) {
	return DecryptStream(V4, encrypted, key, chunkSize)
}

// EncryptV8 pads clear before chunking, tagged as the padded streamed
// version.
func EncryptV8(clear []byte, key tcrypto.SymmetricKey, chunkSize int, step PaddingStep) (encrypted []byte, resourceID ids.ResourceID, err error) {
	padded := Pad(clear, step, DefaultMinimalPadding)
	return EncryptStream(V8, padded, key, chunkSize)
}

func DecryptV8(encrypted []byte, key tcrypto.SymmetricKey, chunkSize int) ([]byte, error) {
	padded, err := DecryptStream(V8, encrypted, key, chunkSize)
	if err != nil {
		return nil, err
	}
	return Unpad(padded)
}

func streamEncryptedSize(v Version, clearSize uint64) uint64 {
	size := clearSize
	if v == V8 {
		size = PaddedSize(clearSize, defaultPaddingStep(), DefaultMinimalPadding)
	}
	chunkSize := uint64(DefaultChunkSize)
	fullChunks := size / chunkSize
	remainder := size % chunkSize

	total := fullChunks * (uint64(chunkHeaderSize) + chunkSize + tcrypto.AEADMACSize)
	if remainder > 0 {
		total += uint64(chunkHeaderSize) + remainder + tcrypto.AEADMACSize
	} else {
		// exact multiple: one extra empty terminating chunk
		total += uint64(chunkHeaderSize) + tcrypto.AEADMACSize
	}
	return total
}

func streamDecryptedSize(encrypted []byte) (uint64, error) {
	var total uint64
	offset := 0
	sawEnd := false
	chunkSize := DefaultChunkSize
	for offset < len(encrypted) {
		if offset+chunkHeaderSize > len(encrypted) {
			return 0, sdkerr.New(sdkerr.KindInvalidArgument, "truncated chunk header")
		}
		header := encrypted[offset : offset+chunkHeaderSize]
		encLen := int(binary.BigEndian.Uint32(header[1:5]))
		offset += chunkHeaderSize
		if offset+encLen > len(encrypted) {
			return 0, sdkerr.New(sdkerr.KindInvalidArgument, "truncated chunk body")
		}
		offset += encLen
		plainChunkLen := encLen - tcrypto.AEADMACSize
		total += uint64(plainChunkLen)
		if plainChunkLen < chunkSize {
			sawEnd = true
			break
		}
	}
	if !sawEnd {
		return 0, sdkerr.New(sdkerr.KindInvalidArgument, "stream ended without a terminating chunk")
	}
	return total, nil
}

func streamExtractResourceID(encrypted []byte) (ids.ResourceID, error) {
	if len(encrypted) < chunkHeaderSize {
		return nil, sdkerr.New(sdkerr.KindInvalidArgument, "buffer shorter than one chunk header")
	}
	rid := encrypted[5 : 5+ids.ResourceSize]
	return ids.NewSimpleResourceID(rid)
}
