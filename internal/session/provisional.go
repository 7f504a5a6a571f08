package session

import (
	"context"
	"fmt"

	"github.com/jaydenbeard/sdk-core/internal/blocks"
	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/sdkerr"
	"github.com/jaydenbeard/sdk-core/internal/store"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
)

// ProvisionalIdentity bundles the full keypairs behind an app/tanker
// provisional identity: a real deployment recovers these out of band once
// the claiming user has verified the address (email, phone, ...) with the
// application backend; sdk-core takes them pre-resolved the same way it
// takes Identity pre-resolved in Start.
type ProvisionalIdentity struct {
	AppSignature     tcrypto.SignatureKeyPair
	TankerSignature  tcrypto.SignatureKeyPair
	AppEncryption    tcrypto.EncryptionKeyPair
	TankerEncryption tcrypto.EncryptionKeyPair
}

// AttachProvisionalIdentity claims identity on behalf of the local user:
// it proves ownership of both provisional factors by signing the user's
// own id with each, publishes a ProvisionalIdentityClaim sealing the
// provisional keypairs to the user's current key so every device of the
// user can recover them, and caches the keypairs locally so any
// KeyPublishToProvisionalUser already pulled (or pulled from here on) can
// be unwrapped immediately.
func (sess *Session) AttachProvisionalIdentity(ctx context.Context, identity ProvisionalIdentity) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.requireState(StateReady); err != nil {
		return err
	}

	user, ok := sess.ledger.User(sess.identity.UserID)
	if !ok || !user.HasUserKey {
		return sdkerr.New(sdkerr.KindInternalError, "local user has no user key yet")
	}

	privateKeys := append(append([]byte{}, identity.AppEncryption.PrivateKey[:]...), identity.TankerEncryption.PrivateKey[:]...)
	sealedPrivateKeys, err := tcrypto.SealEncrypt(privateKeys, user.CurrentUserPublicKey)
	if err != nil {
		return fmt.Errorf("session: attachProvisionalIdentity: %w", err)
	}

	action := &blocks.ProvisionalIdentityClaim{
		UserID:                           sess.identity.UserID,
		AppSignaturePublicKey:            identity.AppSignature.PublicKey,
		TankerSignaturePublicKey:         identity.TankerSignature.PublicKey,
		AuthorSignatureByAppKey:          tcrypto.Sign(sess.identity.UserID[:], identity.AppSignature.PrivateKey),
		AuthorSignatureByTankerKey:       tcrypto.Sign(sess.identity.UserID[:], identity.TankerSignature.PrivateKey),
		RecipientUserPublicEncryptionKey: user.CurrentUserPublicKey,
		SealedPrivateKeys:                sealedPrivateKeys,
	}

	b := &blocks.Block{Version: 1, TrustchainID: sess.identity.TrustchainID, Author: ids.BlockHash(sess.deviceKeys.DeviceID), Action: action}
	b.Sign(sess.deviceKeys.Signature.PrivateKey)

	if err := sess.requester.PushBlock(ctx, b); err != nil {
		return fmt.Errorf("session: attachProvisionalIdentity: push: %w", err)
	}
	if err := sess.puller.Sync(ctx); err != nil {
		return fmt.Errorf("session: attachProvisionalIdentity: sync: %w", err)
	}

	lookup := store.ProvisionalKeyLookup{AppPublicSignatureKey: identity.AppSignature.PublicKey, TankerPublicSignatureKey: identity.TankerSignature.PublicKey}
	keys := store.ProvisionalUserKeys{AppEncryptionKeyPair: identity.AppEncryption, TankerEncryptionKeyPair: identity.TankerEncryption}
	if err := sess.store.PutProvisionalUserKeys(ctx, lookup, keys); err != nil {
		return fmt.Errorf("session: attachProvisionalIdentity: cache provisional keys: %w", err)
	}

	logger.Printf("attached provisional identity for user %s", sess.identity.UserID)
	return nil
}
