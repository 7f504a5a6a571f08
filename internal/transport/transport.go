// Package transport defines the network boundary: the IRequester
// contract an accessor uses to pull and push trustchain blocks,
// independent of whatever wire protocol a given deployment speaks.
package transport

import (
	"context"

	"github.com/jaydenbeard/sdk-core/internal/blocks"
	"github.com/jaydenbeard/sdk-core/internal/ids"
)

// IRequester is the server-facing boundary a Session is built on. A real
// deployment implements it over HTTP/gRPC/whatever; tests implement it over
// an in-memory fixture (internal/trustchaintest).
type IRequester interface {
	// PullBlocks returns every block with index > afterIndex, in ascending
	// index order, for the given trustchain.
	PullBlocks(ctx context.Context, trustchainID ids.TrustchainID, afterIndex uint64) ([]*blocks.Block, error)

	// PushBlock submits a signed block for the server to index and append.
	PushBlock(ctx context.Context, block *blocks.Block) error

	// Authenticate exchanges a device's signature over a server-issued
	// challenge for a session token (authenticate()).
	Authenticate(ctx context.Context, trustchainID ids.TrustchainID, deviceID ids.DeviceID, signChallenge func(challenge []byte) []byte) (token string, err error)
}
