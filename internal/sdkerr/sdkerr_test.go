package sdkerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	base := New(KindNotFound, "no such group")
	wrapped := fmt.Errorf("accessors: %w", base)

	assert.True(t, Is(wrapped, KindNotFound))
	assert.False(t, Is(wrapped, KindInternalError))
}

func TestReasonOfSurvivesWrap(t *testing.T) {
	base := Newf(KindInvalidArgument, "InvalidSignature", "bad block signature")
	wrapped := fmt.Errorf("verifier: %w", base)

	assert.Equal(t, "InvalidSignature", ReasonOf(wrapped))
}

func TestWrapPreservesUnwrapChain(t *testing.T) {
	inner := errors.New("connection refused")
	wrapped := Wrap(KindNetworkError, "pull failed", inner)

	assert.True(t, errors.Is(wrapped, inner))
	assert.True(t, Is(wrapped, KindNetworkError))
}

func TestErrorStringIncludesReasonWhenPresent(t *testing.T) {
	withReason := Newf(KindInvalidArgument, "InvalidHash", "bad hash")
	assert.Contains(t, withReason.Error(), "InvalidHash")

	withoutReason := New(KindNotFound, "missing")
	assert.NotContains(t, withoutReason.Error(), "(")
}

func TestReasonOfOnNonSdkErrorReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", ReasonOf(errors.New("plain error")))
}
