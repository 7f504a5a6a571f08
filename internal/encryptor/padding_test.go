package encryptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadUnpadRoundTripStep(t *testing.T) {
	step := PaddingStep{Step: 16}
	for _, n := range []int{0, 1, 15, 16, 17, 100} {
		clear := make([]byte, n)
		for i := range clear {
			clear[i] = byte(i)
		}
		padded := Pad(clear, step, 0)
		assert.Equal(t, uint64(0), uint64(len(padded))%16)
		got, err := Unpad(padded)
		require.NoError(t, err)
		assert.Equal(t, clear, got)
	}
}

func TestPadUnpadRoundTripAuto(t *testing.T) {
	step := PaddingStep{Auto: true}
	for _, n := range []int{0, 1, 20, 1000, 1 << 16} {
		clear := make([]byte, n)
		padded := Pad(clear, step, DefaultMinimalPadding)
		got, err := Unpad(padded)
		require.NoError(t, err)
		assert.Equal(t, clear, got)
	}
}

func TestPaddedSizeAppliesMinimalPaddingOnlyUnderAuto(t *testing.T) {
	assert.Equal(t, uint64(20), PaddedSize(0, PaddingStep{Auto: true}, 20), "auto mode must still respect the minimal padding floor")
	assert.Equal(t, uint64(4), PaddedSize(0, PaddingStep{Step: 4}, 20), "an explicit step must not be raised to the minimal padding floor")
}

func TestPaddedSizeMatchesFixedStepTable(t *testing.T) {
	step := PaddingStep{Step: 5}
	cases := map[uint64]uint64{
		0: 5, 2: 5, 4: 5, 5: 5, 9: 10, 10: 10, 14: 15, 40: 40, 42: 45, 45: 45,
	}
	for clear, want := range cases {
		assert.Equal(t, want, PaddedSize(clear, step, 20), "clear size %d", clear)
	}
}

func TestUnpadRejectsEmptyBuffer(t *testing.T) {
	_, err := Unpad(nil)
	assert.ErrorIs(t, err, errEmptyPadded)
}

func TestUnpadRejectsPaddingLengthLargerThanBuffer(t *testing.T) {
	_, err := Unpad([]byte{0xFF})
	assert.ErrorIs(t, err, errBadPadding)
}

func TestUnpadRejectsZeroPaddingLength(t *testing.T) {
	_, err := Unpad([]byte{1, 2, 0})
	assert.ErrorIs(t, err, errBadPadding)
}

func TestRoundUpToStepZeroRoundsToStep(t *testing.T) {
	assert.Equal(t, uint64(16), roundUpToStep(0, 16))
	assert.Equal(t, uint64(16), roundUpToStep(1, 16))
	assert.Equal(t, uint64(32), roundUpToStep(17, 16))
}
