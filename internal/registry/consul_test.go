package registry

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jaydenbeard/sdk-core/internal/ids"
)

func TestTrustchainServiceTagIsStableAndHexEncoded(t *testing.T) {
	var trustchainID ids.TrustchainID
	trustchainID[0] = 0xAB
	trustchainID[1] = 0xCD

	want := "trustchain-" + hex.EncodeToString(trustchainID[:])
	assert.Equal(t, want, trustchainServiceTag(trustchainID))
	assert.Equal(t, trustchainServiceTag(trustchainID), trustchainServiceTag(trustchainID), "tag derivation must be deterministic")
}

func TestTrustchainServiceTagDiffersPerTrustchain(t *testing.T) {
	var a, b ids.TrustchainID
	a[0] = 1
	b[0] = 2

	assert.NotEqual(t, trustchainServiceTag(a), trustchainServiceTag(b))
}
