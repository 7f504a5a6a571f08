package encryptor

import "math/bits"

// PaddingStep selects how a padded version rounds plaintext size up
// before encryption. Auto triggers the padme algorithm; Step(k) for
// k>=2 rounds up to the next multiple of k.
type PaddingStep struct {
	Auto bool
	Step uint64 // meaningful only when Auto is false; must be >= 2
}

const DefaultMinimalPadding = 20

// padme computes the padme-rounded size of l, producing at least minimal
// bytes. padme minimises the information an observer gains about the
// exact plaintext length by only ever producing a small, size-dependent
// set of distinct output sizes.
func padme(l, minimal uint64) uint64 {
	if l == 0 {
		return minimal
	}
	e := uint64(bits.Len64(l) - 1) // floor(log2(l))
	var s uint64
	if e > 0 {
		s = uint64(bits.Len64(e)) // floor(log2(e)) + 1
	}
	if s > e {
		s = e
	}
	lastBits := e - s
	mask := (uint64(1) << lastBits) - 1
	result := (l + mask) &^ mask
	if result < minimal {
		result = minimal
	}
	return result
}

// roundUpToStep rounds n up to the next multiple of step, except that 0
// rounds up to step itself rather than staying 0 (a zero-length plaintext
// still needs room for the trailing padding-length byte).
func roundUpToStep(n, step uint64) uint64 {
	if n == 0 {
		return step
	}
	return ((n + step - 1) / step) * step
}

// PaddedSize computes the padded plaintext size for clearSize bytes of
// plaintext under the given step, without allocating.
func PaddedSize(clearSize uint64, step PaddingStep, minimalPadding uint64) uint64 {
	if step.Auto {
		return padme(clearSize, minimalPadding)
	}
	return roundUpToStep(clearSize, step.Step)
}

// Pad appends zero bytes and a trailing length byte so the result is
// PaddedSize(len(clear), step, minimalPadding) bytes long. paddingLength
// (the trailing byte) counts every byte added, including itself.
func Pad(clear []byte, step PaddingStep, minimalPadding uint64) []byte {
	padded := PaddedSize(uint64(len(clear)), step, minimalPadding)
	out := make([]byte, padded)
	copy(out, clear)
	paddingLength := padded - uint64(len(clear))
	if paddingLength > 255 {
		paddingLength = 255 // the single-byte length field caps at 255
	}
	out[len(out)-1] = byte(paddingLength)
	return out
}

// Unpad trims the trailing padding added by Pad.
func Unpad(padded []byte) ([]byte, error) {
	if len(padded) == 0 {
		return nil, errEmptyPadded
	}
	n := int(padded[len(padded)-1])
	if n <= 0 || n > len(padded) {
		return nil, errBadPadding
	}
	return padded[:len(padded)-n], nil
}
