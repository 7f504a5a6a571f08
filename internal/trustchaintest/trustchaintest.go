// Package trustchaintest is an in-memory implementation of
// transport.IRequester: it keeps one append-only block log and one
// accessors.Ledger per trustchain, verifying every pushed block through
// internal/verifier exactly as a real trustchain server would before
// indexing and storing it. It exists to exercise internal/session and
// internal/accessors end-to-end without a network, and doubles as the
// server side of the authenticate() handshake via internal/auth.
package trustchaintest

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/jaydenbeard/sdk-core/internal/accessors"
	"github.com/jaydenbeard/sdk-core/internal/auth"
	"github.com/jaydenbeard/sdk-core/internal/blocks"
	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/metrics"
	"github.com/jaydenbeard/sdk-core/internal/sdkerr"
)

var logger = log.New(os.Stdout, "[TRUSTCHAINTEST] ", log.Ldate|log.Ltime|log.LUTC)

// Server is an in-memory trustchain server: one log + one ledger per
// trustchain, guarded by a single lock since tests never need more
// throughput than that.
type Server struct {
	mu     sync.Mutex
	chains map[ids.TrustchainID]*chain

	auth *auth.AuthService
}

type chain struct {
	blocks []*blocks.Block
	ledger *accessors.Ledger
}

// NewServer builds an empty in-memory trustchain server. authService may be
// nil, in which case Authenticate always fails; tests that don't exercise
// authenticate() can pass nil.
func NewServer(authService *auth.AuthService) *Server {
	return &Server{
		chains: make(map[ids.TrustchainID]*chain),
		auth:   authService,
	}
}

func (s *Server) chainFor(trustchainID ids.TrustchainID) *chain {
	c, ok := s.chains[trustchainID]
	if !ok {
		c = &chain{ledger: accessors.NewLedger(trustchainID)}
		s.chains[trustchainID] = c
	}
	return c
}

// PullBlocks returns every block with index > afterIndex for trustchainID,
// in ascending order. Unknown trustchains simply return no blocks, matching
// a fresh trustchain that nobody has pushed a root block to yet.
func (s *Server) PullBlocks(_ context.Context, trustchainID ids.TrustchainID, afterIndex uint64) ([]*blocks.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chains[trustchainID]
	if !ok {
		return nil, nil
	}

	var out []*blocks.Block
	for _, b := range c.blocks {
		if b.Index > afterIndex {
			out = append(out, b)
		}
	}
	return out, nil
}

// PushBlock assigns the next index to block, verifies it against the
// trustchain's current projected state, and appends it on success. A block
// that fails verification is never indexed or stored.
func (s *Server) PushBlock(_ context.Context, block *blocks.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.chainFor(block.TrustchainID)
	block.Index = c.ledger.LastIndex() + 1

	nature := block.Action.Nature().String()
	if err := c.ledger.Apply(block); err != nil {
		kind := "Unknown"
		if e, ok := asSdkErr(err); ok {
			kind = e.Kind.String()
		}
		metrics.RecordVerificationFailure(nature, kind)
		metrics.RecordBlockPushed(nature, false)
		return fmt.Errorf("trustchaintest: push rejected: %w", err)
	}

	c.blocks = append(c.blocks, block)
	metrics.RecordBlockPushed(nature, true)
	logger.Printf("accepted block %d (%s) on trustchain %s", block.Index, nature, block.TrustchainID)
	return nil
}

func asSdkErr(err error) (*sdkerr.Error, bool) {
	e, ok := err.(*sdkerr.Error)
	if ok {
		return e, true
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return asSdkErr(u.Unwrap())
	}
	return nil, false
}

// Authenticate plays the network round trip of the authenticate() handshake directly against
// the in-memory AuthService: issue a challenge, invoke signChallenge to get
// the device's signature over it, verify it, and return an access token.
func (s *Server) Authenticate(ctx context.Context, trustchainID ids.TrustchainID, deviceID ids.DeviceID, signChallenge func(challenge []byte) []byte) (string, error) {
	if s.auth == nil {
		return "", sdkerr.New(sdkerr.KindPreconditionFailed, "trustchaintest: server has no auth service configured")
	}

	s.mu.Lock()
	c, ok := s.chains[trustchainID]
	s.mu.Unlock()
	if !ok {
		return "", sdkerr.New(sdkerr.KindNotFound, "trustchaintest: unknown trustchain")
	}

	device, ok := c.ledger.Device(deviceID)
	if !ok {
		return "", sdkerr.New(sdkerr.KindNotFound, "trustchaintest: unknown device")
	}
	if device.RevokedAtIndex != nil {
		return "", sdkerr.New(sdkerr.KindDeviceRevoked, "trustchaintest: device has been revoked")
	}

	challenge, err := s.auth.IssueChallenge(ctx, trustchainID, deviceID)
	if err != nil {
		return "", fmt.Errorf("trustchaintest: authenticate: %w", err)
	}

	signature := signChallenge(challenge)

	token, _, err := s.auth.VerifyChallengeResponse(ctx, trustchainID, device.UserID, deviceID, device.PublicSignatureKey, signature)
	if err != nil {
		return "", fmt.Errorf("trustchaintest: authenticate: %w", err)
	}
	return token, nil
}

// Ledger exposes the projected state for a trustchain, mainly so test code
// can assert on devices/users/groups without re-deriving them.
func (s *Server) Ledger(trustchainID ids.TrustchainID) (*accessors.Ledger, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chains[trustchainID]
	if !ok {
		return nil, false
	}
	return c.ledger, true
}

// BlockCount returns the number of blocks accepted onto a trustchain.
func (s *Server) BlockCount(trustchainID ids.TrustchainID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chains[trustchainID]
	if !ok {
		return 0
	}
	return len(c.blocks)
}
