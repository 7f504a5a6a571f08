package accessors

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jaydenbeard/sdk-core/internal/blocks"
	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/metrics"
	"github.com/jaydenbeard/sdk-core/internal/sdkerr"
	"github.com/jaydenbeard/sdk-core/internal/store"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
	"github.com/jaydenbeard/sdk-core/internal/transport"
	"github.com/jaydenbeard/sdk-core/internal/verifier"
)

var logger = log.New(os.Stdout, "[ACCESSORS] ", log.Ldate|log.Ltime|log.LUTC)

// Puller is the shared pull-coalescing core every accessor embeds: a
// single in-flight request per trustchain no matter how many goroutines
// ask for fresh state at once.
type Puller struct {
	trustchainID ids.TrustchainID
	requester    transport.IRequester
	ledger       *Ledger
	group        singleflight.Group

	// OnBlock, if set, is called for every block successfully applied by
	// Sync, in order. Used by the session layer to feed freshly pulled
	// KeyPublishTo* blocks to the receivekey processor without this
	// package needing to know anything about it.
	OnBlock func(*blocks.Block)
}

func NewPuller(trustchainID ids.TrustchainID, requester transport.IRequester, ledger *Ledger) *Puller {
	return &Puller{trustchainID: trustchainID, requester: requester, ledger: ledger}
}

// Sync pulls every block past the ledger's current high-water mark and
// applies them in order. Concurrent callers share one pull.
func (p *Puller) Sync(ctx context.Context) error {
	_, err, _ := p.group.Do("pull", func() (any, error) {
		after := p.ledger.LastIndex()
		pulled, err := p.requester.PullBlocks(ctx, p.trustchainID, after)
		if err != nil {
			return nil, fmt.Errorf("accessors: pull: %w", err)
		}
		metrics.BlocksPulledTotal.WithLabelValues(fmt.Sprintf("%x", p.trustchainID[:8])).Add(float64(len(pulled)))

		start := time.Now()
		for _, b := range pulled {
			if err := p.ledger.Apply(b); err != nil {
				return nil, fmt.Errorf("accessors: apply block %d: %w", b.Index, err)
			}
			if p.OnBlock != nil {
				p.OnBlock(b)
			}
		}
		metrics.LedgerReplayLatency.Observe(time.Since(start).Seconds())

		if len(pulled) > 0 {
			logger.Printf("synced %d new blocks, ledger now at index %d", len(pulled), p.ledger.LastIndex())
		}
		return nil, nil
	})
	return err
}

// UserAccessor resolves users and their devices, pulling lazily on a
// cache miss.
type UserAccessor struct {
	*Puller
}

func NewUserAccessor(p *Puller) *UserAccessor { return &UserAccessor{Puller: p} }

func (a *UserAccessor) GetUser(ctx context.Context, id ids.UserID) (*verifier.UserState, error) {
	if u, ok := a.ledger.User(id); ok {
		return u, nil
	}
	if err := a.Sync(ctx); err != nil {
		return nil, err
	}
	u, ok := a.ledger.User(id)
	if !ok {
		return nil, sdkerr.New(sdkerr.KindInvalidArgument, "unknown user")
	}
	return u, nil
}

func (a *UserAccessor) GetDevice(ctx context.Context, id ids.DeviceID) (*verifier.AuthorDevice, error) {
	if d, ok := a.ledger.Device(id); ok {
		return d, nil
	}
	if err := a.Sync(ctx); err != nil {
		return nil, err
	}
	d, ok := a.ledger.Device(id)
	if !ok {
		return nil, sdkerr.New(sdkerr.KindInvalidArgument, "unknown device")
	}
	return d, nil
}

// GroupAccessor resolves groups, caching results into Store so a
// previously-seen group's public keys survive a restart without a pull.
type GroupAccessor struct {
	*Puller
	store store.Store
}

func NewGroupAccessor(p *Puller, s store.Store) *GroupAccessor {
	return &GroupAccessor{Puller: p, store: s}
}

// Store exposes the backing Store so callers (e.g. the share resolver) can
// read group records GetGroup has already cached without duplicating the
// ledger-to-store projection logic.
func (a *GroupAccessor) Store() store.Store { return a.store }

func (a *GroupAccessor) GetGroup(ctx context.Context, id ids.GroupID) (*verifier.GroupState, error) {
	if g, ok := a.ledger.Group(id); ok {
		a.cache(ctx, id, g)
		return g, nil
	}
	if err := a.Sync(ctx); err != nil {
		return nil, err
	}
	g, ok := a.ledger.Group(id)
	if !ok {
		return nil, sdkerr.New(sdkerr.KindInvalidArgument, "unknown group")
	}
	a.cache(ctx, id, g)
	return g, nil
}

func (a *GroupAccessor) cache(ctx context.Context, id ids.GroupID, g *verifier.GroupState) {
	existing, found, err := a.store.Group(ctx, id)
	if err != nil {
		logger.Printf("group cache lookup failed for %s: %v", id, err)
		return
	}
	rec := store.GroupRecord{
		GroupID:             id,
		PublicSignatureKey:  g.PublicSignatureKey,
		PublicEncryptionKey: g.PublicEncryptionKey,
		LastBlockHash:       g.LastBlockHash,
	}
	if found {
		rec.Internal = existing.Internal
		rec.SignatureKeyPair = existing.SignatureKeyPair
		rec.EncryptionKeyPair = existing.EncryptionKeyPair
		rec.LastKeyRotationBlockHash = existing.LastKeyRotationBlockHash
	}
	if err := a.store.PutGroup(ctx, rec); err != nil {
		logger.Printf("group cache write failed for %s: %v", id, err)
	}
}

// ProvisionalUserAccessor resolves a provisional identity's claimed user,
// used when sharing a resource with an email/phone identity that may or
// may not have been claimed yet.
type ProvisionalUserAccessor struct {
	*Puller
}

func NewProvisionalUserAccessor(p *Puller) *ProvisionalUserAccessor {
	return &ProvisionalUserAccessor{Puller: p}
}

func (a *ProvisionalUserAccessor) ResolveClaim(ctx context.Context, app, tanker tcrypto.PublicSignatureKey) (ids.UserID, bool, error) {
	if uid, ok := a.ledger.ClaimedUserID(app, tanker); ok {
		return uid, true, nil
	}
	if err := a.Sync(ctx); err != nil {
		return ids.UserID{}, false, err
	}
	uid, ok := a.ledger.ClaimedUserID(app, tanker)
	return uid, ok, nil
}

// LocalUserAccessor exposes the local device's own projected state plus
// its full user-key history, used by the session state machine and by
// receivekey/share when acting as "self".
type LocalUserAccessor struct {
	*Puller
	store store.Store
}

func NewLocalUserAccessor(p *Puller, s store.Store) *LocalUserAccessor {
	return &LocalUserAccessor{Puller: p, store: s}
}

func (a *LocalUserAccessor) Self(ctx context.Context) (*verifier.UserState, *verifier.AuthorDevice, error) {
	keys, ok, err := a.store.DeviceKeys(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, sdkerr.New(sdkerr.KindPreconditionFailed, "device has not been initialized")
	}
	if err := a.Sync(ctx); err != nil {
		return nil, nil, err
	}
	user, ok := a.ledger.User(keys.UserID)
	if !ok {
		return nil, nil, sdkerr.New(sdkerr.KindInternalError, "local user missing from ledger after sync")
	}
	device, ok := a.ledger.Device(keys.DeviceID)
	if !ok {
		return nil, nil, sdkerr.New(sdkerr.KindInternalError, "local device missing from ledger after sync")
	}
	return user, device, nil
}
