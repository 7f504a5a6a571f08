package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/sdkerr"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
)

// VerificationKind selects which proof of identity a caller is presenting
// to registerIdentity/verifyIdentity.
type VerificationKind int

const (
	VerificationPassphrase VerificationKind = iota
	VerificationEmail
	VerificationPhoneNumber
	VerificationOIDCIDToken
	VerificationKey
)

// VerificationMethod carries exactly the fields meaningful for its Kind.
// VerificationKey is the odd one out: rather than protecting the ghost
// device's keys behind a derived seal key, it directly embeds an
// already-exported recovery payload (see GenerateVerificationKey), letting
// a device recover identity with no round trip to GhostRecovery storage at
// all.
type VerificationMethod struct {
	Kind VerificationKind

	Passphrase string

	Email     string
	EmailCode string

	PhoneNumber string
	PhoneCode   string

	OIDCIDToken string

	VerificationKeyB64 string
}

// sealKey derives the symmetric key a passphrase/email/phone/oidc factor
// seals the ghost recovery payload under. A real deployment would run this
// through a slow KDF (e.g. argon2/scrypt); this is a worked exercise, not a
// production credential store, so a single generichash pass stands in for
// it -- documented as a known simplification.
func (m VerificationMethod) sealKey() (tcrypto.SymmetricKey, error) {
	var secret []byte
	switch m.Kind {
	case VerificationPassphrase:
		secret = []byte(m.Passphrase)
	case VerificationEmail:
		secret = []byte(m.Email + "|" + m.EmailCode)
	case VerificationPhoneNumber:
		secret = []byte(m.PhoneNumber + "|" + m.PhoneCode)
	case VerificationOIDCIDToken:
		secret = []byte(m.OIDCIDToken)
	default:
		return tcrypto.SymmetricKey{}, fmt.Errorf("session: verification kind %d has no derivable seal key", m.Kind)
	}
	if len(secret) == 0 {
		return tcrypto.SymmetricKey{}, sdkerr.New(sdkerr.KindInvalidArgument, "verification factor is empty")
	}
	h := tcrypto.GenericHash(secret)
	var key tcrypto.SymmetricKey
	copy(key[:], h[:])
	return key, nil
}

// recoveryPayload is everything a device needs to author further
// DeviceCreation v3 blocks on a user's behalf: the ghost device's own
// signing/encryption keypairs, plus the user's long-term encryption
// keypair (needed to reseal PublicUserEncryptionKey's private half to each
// newly created device).
type recoveryPayload struct {
	GhostSignature  tcrypto.SignatureKeyPair
	GhostEncryption tcrypto.EncryptionKeyPair
	UserEncryption  tcrypto.EncryptionKeyPair
}

func sealRecoveryPayload(p recoveryPayload, key tcrypto.SymmetricKey) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("session: marshal recovery payload: %w", err)
	}
	sealed, err := tcrypto.AEADEncrypt(data, key, nil)
	if err != nil {
		return nil, fmt.Errorf("session: seal recovery payload: %w", err)
	}
	return sealed, nil
}

func openRecoveryPayload(sealed []byte, key tcrypto.SymmetricKey) (recoveryPayload, error) {
	var p recoveryPayload
	data, err := tcrypto.AEADDecrypt(sealed, key, nil)
	if err != nil {
		return p, sdkerr.Wrap(sdkerr.KindInvalidVerification, "verification factor did not unseal any recovery payload", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("session: unmarshal recovery payload: %w", err)
	}
	return p, nil
}

// verificationKeyExport is the on-the-wire shape of a VerificationKey
// factor: a base64 blob of JSON, exported once by GenerateVerificationKey
// and stored by the caller wherever they see fit: a verification key is
// itself a credential and must be handled like one.
type verificationKeyExport struct {
	GhostDeviceID            ids.DeviceID `json:"deviceId"`
	PrivateSignatureKey      string       `json:"privateSignatureKey"`
	PrivateEncryptionKey     string       `json:"privateEncryptionKey"`
	UserPrivateEncryptionKey string       `json:"userPrivateEncryptionKey"`
	UserPublicEncryptionKey  string       `json:"userPublicEncryptionKey"`
}

func encodeVerificationKey(ghostDeviceID ids.DeviceID, p recoveryPayload) string {
	export := verificationKeyExport{
		GhostDeviceID:            ghostDeviceID,
		PrivateSignatureKey:      base64.StdEncoding.EncodeToString(p.GhostSignature.PrivateKey[:]),
		PrivateEncryptionKey:     base64.StdEncoding.EncodeToString(p.GhostEncryption.PrivateKey[:]),
		UserPrivateEncryptionKey: base64.StdEncoding.EncodeToString(p.UserEncryption.PrivateKey[:]),
		UserPublicEncryptionKey:  base64.StdEncoding.EncodeToString(p.UserEncryption.PublicKey[:]),
	}
	data, err := json.Marshal(export)
	if err != nil {
		// Every field is a fixed-size byte array re-encoded as base64 text;
		// json.Marshal cannot fail on this shape.
		panic(fmt.Sprintf("session: marshal verification key export: %v", err))
	}
	return base64.StdEncoding.EncodeToString(data)
}

func decodeVerificationKey(b64 string) (ids.DeviceID, recoveryPayload, error) {
	var out recoveryPayload
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return ids.DeviceID{}, out, sdkerr.WrapReason(sdkerr.KindInvalidVerification, "InvalidVerificationKey", "verification key is not valid base64", err)
	}
	var export verificationKeyExport
	if err := json.Unmarshal(data, &export); err != nil {
		return ids.DeviceID{}, out, sdkerr.WrapReason(sdkerr.KindInvalidVerification, "InvalidVerificationKey", "verification key is not valid JSON", err)
	}
	sig, err := base64.StdEncoding.DecodeString(export.PrivateSignatureKey)
	if err != nil || len(sig) != tcrypto.SignaturePrivateKeySize {
		return ids.DeviceID{}, out, sdkerr.Newf(sdkerr.KindInvalidVerification, "InvalidVerificationKey", "verification key has a malformed signature key")
	}
	enc, err := base64.StdEncoding.DecodeString(export.PrivateEncryptionKey)
	if err != nil || len(enc) != tcrypto.EncryptionPrivateKeySize {
		return ids.DeviceID{}, out, sdkerr.Newf(sdkerr.KindInvalidVerification, "InvalidVerificationKey", "verification key has a malformed encryption key")
	}
	userPriv, err := base64.StdEncoding.DecodeString(export.UserPrivateEncryptionKey)
	if err != nil || len(userPriv) != tcrypto.EncryptionPrivateKeySize {
		return ids.DeviceID{}, out, sdkerr.Newf(sdkerr.KindInvalidVerification, "InvalidVerificationKey", "verification key has a malformed user encryption key")
	}
	userPub, err := base64.StdEncoding.DecodeString(export.UserPublicEncryptionKey)
	if err != nil || len(userPub) != tcrypto.EncryptionPublicKeySize {
		return ids.DeviceID{}, out, sdkerr.Newf(sdkerr.KindInvalidVerification, "InvalidVerificationKey", "verification key has a malformed user public key")
	}

	copy(out.GhostSignature.PrivateKey[:], sig)
	// An Ed25519 private key is seed(32)||publicKey(32); no recomputation
	// needed.
	copy(out.GhostSignature.PublicKey[:], sig[32:])

	copy(out.GhostEncryption.PrivateKey[:], enc)
	encPriv := [32]byte(out.GhostEncryption.PrivateKey)
	var encPub [32]byte
	curve25519.ScalarBaseMult(&encPub, &encPriv)
	out.GhostEncryption.PublicKey = tcrypto.PublicEncryptionKey(encPub)

	copy(out.UserEncryption.PrivateKey[:], userPriv)
	copy(out.UserEncryption.PublicKey[:], userPub)
	return export.GhostDeviceID, out, nil
}
