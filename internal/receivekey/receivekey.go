// Package receivekey implements the inbound half of key publishing:
// turning a KeyPublishTo* block the local device is the recipient of into a
// resource key persisted in Store, trying every keypair the local device
// currently holds until one opens the sealed box.
package receivekey

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jaydenbeard/sdk-core/internal/blocks"
	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/sdkerr"
	"github.com/jaydenbeard/sdk-core/internal/store"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
)

var logger = log.New(os.Stdout, "[RECEIVEKEY] ", log.Ldate|log.Ltime|log.LUTC)

// Processor applies KeyPublishTo* blocks against the local device's known
// keypairs and persists any resource key it manages to unwrap.
type Processor struct {
	store             store.Store
	deviceEncryption  tcrypto.EncryptionKeyPair
}

func NewProcessor(s store.Store, deviceEncryption tcrypto.EncryptionKeyPair) *Processor {
	return &Processor{store: s, deviceEncryption: deviceEncryption}
}

// Process inspects b's action and, if it is a KeyPublishTo* addressed to
// a keypair the local device holds, unwraps and stores the resource key.
// Blocks addressed elsewhere are silently ignored: a device only
// processes the key publishes meant for it.
func (p *Processor) Process(ctx context.Context, b *blocks.Block) error {
	switch action := b.Action.(type) {
	case *blocks.KeyPublishToDevice:
		return p.processDevice(ctx, action)
	case *blocks.KeyPublishToUser:
		return p.processUser(ctx, action)
	case *blocks.KeyPublishToUserGroup:
		return p.processUserGroup(ctx, action)
	case *blocks.KeyPublishToProvisionalUser:
		return p.processProvisional(ctx, action)
	default:
		return nil
	}
}

func (p *Processor) processDevice(ctx context.Context, action *blocks.KeyPublishToDevice) error {
	plain, err := tcrypto.SealDecrypt(action.EncryptedKey, p.deviceEncryption)
	if err != nil {
		// Not addressed to this device; nothing to do.
		return nil
	}
	return p.storeKey(ctx, action.ResourceID, plain)
}

func (p *Processor) processUser(ctx context.Context, action *blocks.KeyPublishToUser) error {
	history, err := p.store.LocalUserKeyPairs(ctx)
	if err != nil {
		return fmt.Errorf("receivekey: load user key history: %w", err)
	}
	for _, kp := range history {
		if kp.PublicKey != action.RecipientPublicEncryptionKey {
			continue
		}
		plain, err := tcrypto.SealDecrypt(action.SealedKey[:], kp.EncryptionKeyPair)
		if err != nil {
			continue
		}
		return p.storeKey(ctx, action.ResourceID, plain)
	}
	return nil
}

func (p *Processor) processUserGroup(ctx context.Context, action *blocks.KeyPublishToUserGroup) error {
	rec, found, err := p.store.GroupByPublicEncryptionKey(ctx, action.RecipientPublicEncryptionKey)
	if err != nil {
		return fmt.Errorf("receivekey: lookup group: %w", err)
	}
	if !found || !rec.Internal {
		return nil
	}
	plain, err := tcrypto.SealDecrypt(action.SealedKey[:], rec.EncryptionKeyPair)
	if err != nil {
		return nil
	}
	return p.storeKey(ctx, action.ResourceID, plain)
}

func (p *Processor) processProvisional(ctx context.Context, action *blocks.KeyPublishToProvisionalUser) error {
	keys, found, err := p.store.ProvisionalUserKeys(ctx, store.ProvisionalKeyLookup{
		AppPublicSignatureKey:    action.AppPublicSignatureKey,
		TankerPublicSignatureKey: action.TankerPublicSignatureKey,
	})
	if err != nil {
		return fmt.Errorf("receivekey: lookup provisional keys: %w", err)
	}
	if !found {
		return nil
	}
	onceSealed, err := tcrypto.SealDecrypt(action.TwoTimesSealedKey, keys.AppEncryptionKeyPair)
	if err != nil {
		return nil
	}
	plain, err := tcrypto.SealDecrypt(onceSealed, keys.TankerEncryptionKeyPair)
	if err != nil {
		return nil
	}
	return p.storeKey(ctx, action.ResourceID, plain)
}

func (p *Processor) storeKey(ctx context.Context, resourceID ids.ResourceID, plain []byte) error {
	if len(plain) != tcrypto.SymmetricKeySize {
		return sdkerr.Newf(sdkerr.KindDecryptionFailed, "InvalidKeySize", "unwrapped resource key has the wrong length")
	}
	var key tcrypto.SymmetricKey
	copy(key[:], plain)
	if err := p.store.PutResourceKey(ctx, resourceID, key); err != nil {
		return fmt.Errorf("receivekey: store resource key: %w", err)
	}
	logger.Printf("learned resource key for %s", resourceID)
	return nil
}
