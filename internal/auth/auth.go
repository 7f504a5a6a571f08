// Package auth implements the server side of the authenticate() challenge
// handshake: issue a random nonce to a device, verify the device signed
// it with the signature key the trustchain ledger has on file for it, and
// hand back a short-lived access token. internal/session's Authenticate is
// the client half of this same handshake.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/jaydenbeard/sdk-core/internal/config"
	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/metrics"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
)

var (
	ErrInvalidToken        = errors.New("auth: invalid token")
	ErrTokenExpired        = errors.New("auth: token expired")
	ErrChallengeSecretWeak = errors.New("auth: challenge secret is too weak for security requirements")
	ErrUnknownNonce        = errors.New("auth: challenge nonce not found or already consumed")
	ErrBadSignature        = errors.New("auth: challenge response signature does not verify")
	ErrTokenBlacklisted    = errors.New("auth: token has been blacklisted due to device revocation")
)

// Claims is the payload of the access token authenticate() hands back to a
// device, identifying it within a trustchain.
type Claims struct {
	TrustchainID string `json:"tid"`
	UserID       string `json:"uid"`
	DeviceID     string `json:"did"`
	jwt.RegisteredClaims
}

// AuthService issues and validates the access tokens authenticate() deals
// in, and verifies the challenge-response signature that earns one.
type AuthService struct {
	challengeSecret         []byte
	previousChallengeSecret []byte
	secretLock              sync.RWMutex
	rotationLogger          *log.Logger

	redisClient    *redis.Client
	blacklistLock  sync.RWMutex
	securityLogger *log.Logger
}

// NewAuthService builds an AuthService around a Redis client (nonce
// storage, token blacklist) and the current challenge secret.
func NewAuthService(redisClient *redis.Client, challengeSecret string) (*AuthService, error) {
	if err := config.ValidateChallengeSecret(challengeSecret); err != nil {
		return nil, ErrChallengeSecretWeak
	}

	current, previous, hasPrevious := config.GetAllActiveSecrets()
	if current == "" {
		current = challengeSecret
	}
	if !hasPrevious {
		previous = ""
	}

	return &AuthService{
		challengeSecret:         []byte(current),
		previousChallengeSecret: []byte(previous),
		rotationLogger:          log.New(os.Stdout, "[AUTH-ROTATION] ", log.Ldate|log.Ltime|log.LUTC),
		redisClient:             redisClient,
		securityLogger:          log.New(os.Stdout, "[AUTH-SECURITY] ", log.Ldate|log.Ltime|log.LUTC),
	}, nil
}

// IssueChallenge mints a random nonce for a device to sign, stashing it in
// Redis for two minutes so VerifyChallengeResponse can consume it exactly
// once.
func (a *AuthService) IssueChallenge(ctx context.Context, trustchainID ids.TrustchainID, deviceID ids.DeviceID) ([]byte, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("auth: generate challenge nonce: %w", err)
	}

	key := challengeKey(trustchainID, deviceID)
	if err := a.redisClient.Set(ctx, key, hex.EncodeToString(nonce), 2*time.Minute).Err(); err != nil {
		return nil, fmt.Errorf("auth: store challenge nonce: %w", err)
	}
	return nonce, nil
}

func challengeKey(trustchainID ids.TrustchainID, deviceID ids.DeviceID) string {
	return fmt.Sprintf("challenge:%s:%s", hex.EncodeToString(trustchainID[:]), hex.EncodeToString(deviceID[:]))
}

// VerifyChallengeResponse checks that signature is a valid Ed25519
// signature by pub over the nonce previously issued to deviceID, consumes
// the nonce, and if it checks out returns a fresh access token.
func (a *AuthService) VerifyChallengeResponse(ctx context.Context, trustchainID ids.TrustchainID, userID ids.UserID, deviceID ids.DeviceID, pub tcrypto.PublicSignatureKey, signature []byte) (accessToken string, expiresAt time.Time, err error) {
	key := challengeKey(trustchainID, deviceID)
	stored, err := a.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		metrics.RecordAuthChallengeAttempt("unknown_nonce")
		return "", time.Time{}, ErrUnknownNonce
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: retrieve challenge nonce: %w", err)
	}
	// Single use: delete regardless of outcome below.
	a.redisClient.Del(ctx, key)

	nonce, err := hex.DecodeString(stored)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: corrupt stored challenge nonce: %w", err)
	}

	var sig tcrypto.Signature
	if len(signature) != len(sig) {
		metrics.RecordAuthChallengeAttempt("bad_signature")
		return "", time.Time{}, ErrBadSignature
	}
	copy(sig[:], signature)
	if !tcrypto.Verify(nonce, sig, pub) {
		metrics.RecordAuthChallengeAttempt("bad_signature")
		return "", time.Time{}, ErrBadSignature
	}

	metrics.RecordAuthChallengeAttempt("success")
	return a.GenerateAccessToken(trustchainID, userID, deviceID)
}

// GenerateAccessToken mints a one-hour access token for an already
// authenticated device.
func (a *AuthService) GenerateAccessToken(trustchainID ids.TrustchainID, userID ids.UserID, deviceID ids.DeviceID) (accessToken string, expiresAt time.Time, err error) {
	expiresAt = time.Now().Add(1 * time.Hour)
	claims := &Claims{
		TrustchainID: hex.EncodeToString(trustchainID[:]),
		UserID:       hex.EncodeToString(userID[:]),
		DeviceID:     hex.EncodeToString(deviceID[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   hex.EncodeToString(deviceID[:]),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessToken, err = token.SignedString(a.GetChallengeSecret())
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign access token: %w", err)
	}
	return accessToken, expiresAt, nil
}

// GetChallengeSecret provides thread-safe access to the current signing
// secret.
func (a *AuthService) GetChallengeSecret() []byte {
	a.secretLock.RLock()
	defer a.secretLock.RUnlock()
	return a.challengeSecret
}

// GetPreviousChallengeSecret provides thread-safe access to the previous
// signing secret, for dual-key validation across a rotation.
func (a *AuthService) GetPreviousChallengeSecret() []byte {
	a.secretLock.RLock()
	defer a.secretLock.RUnlock()
	return a.previousChallengeSecret
}

func (a *AuthService) hasPreviousSecret() bool {
	a.secretLock.RLock()
	defer a.secretLock.RUnlock()
	return len(a.previousChallengeSecret) > 0
}

// RotateChallengeSecret rotates the signing secret with a transition
// window during which tokens signed under the previous secret still
// validate.
func (a *AuthService) RotateChallengeSecret(newSecret string) error {
	if err := config.ValidateChallengeSecret(newSecret); err != nil {
		return ErrChallengeSecretWeak
	}

	a.secretLock.Lock()
	defer a.secretLock.Unlock()

	a.rotationLogger.Printf("starting challenge secret rotation in auth service")
	a.previousChallengeSecret = a.challengeSecret
	a.challengeSecret = []byte(newSecret)

	if err := config.RotateSecret(newSecret); err != nil {
		a.rotationLogger.Printf("warning: failed to update global key manager: %v", err)
	}

	a.rotationLogger.Printf("challenge secret rotation completed, dual-key validation enabled")
	return nil
}

// ValidateToken validates an access token with dual-key support, accepting
// tokens signed under either the current or previous secret.
func (a *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := a.validateTokenWithSecret(tokenString, a.GetChallengeSecret())
	if err == nil {
		return claims, nil
	}

	if a.hasPreviousSecret() {
		fingerprint := hashTokenForBlacklist(tokenString)[:8]
		a.rotationLogger.Printf("attempting validation with previous challenge secret for token fingerprint: %s...", fingerprint)
		claims, err = a.validateTokenWithSecret(tokenString, a.GetPreviousChallengeSecret())
		if err == nil {
			a.rotationLogger.Printf("token validated with previous secret, transition period active")
			return claims, nil
		}
	}

	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	return nil, ErrInvalidToken
}

func (a *AuthService) validateTokenWithSecret(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// BlacklistToken blocks a token from further use, called by RevokeDevice's
// server-side counterpart when a device is cut out of the trustchain.
func (a *AuthService) BlacklistToken(ctx context.Context, tokenString, reason string) error {
	a.blacklistLock.Lock()
	defer a.blacklistLock.Unlock()

	tokenHash := hashTokenForBlacklist(tokenString)
	if err := a.redisClient.Set(ctx, "blacklist:"+tokenHash, reason, 7*24*time.Hour).Err(); err != nil {
		a.securityLogger.Printf("failed to blacklist token %s: %v", tokenHash[:8], err)
		return fmt.Errorf("auth: blacklist token: %w", err)
	}

	a.securityLogger.Printf("token blacklisted: %s (reason: %s)", tokenHash[:8], reason)
	return nil
}

// IsTokenBlacklisted reports whether a token has been blacklisted, and if
// so, why.
func (a *AuthService) IsTokenBlacklisted(ctx context.Context, tokenString string) (bool, string, error) {
	a.blacklistLock.RLock()
	defer a.blacklistLock.RUnlock()

	tokenHash := hashTokenForBlacklist(tokenString)
	reason, err := a.redisClient.Get(ctx, "blacklist:"+tokenHash).Result()
	if errors.Is(err, redis.Nil) {
		return false, "", nil
	}
	if err != nil {
		a.securityLogger.Printf("error checking token blacklist: %v", err)
		return false, "", fmt.Errorf("auth: check token blacklist: %w", err)
	}

	a.securityLogger.Printf("blacklisted token detected: %s (reason: %s)", tokenHash[:8], reason)
	return true, reason, nil
}

// CheckTokenSecurity runs the full validation + blacklist check a server
// handler should perform before trusting a bearer token.
func (a *AuthService) CheckTokenSecurity(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := a.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	blacklisted, reason, err := a.IsTokenBlacklisted(ctx, tokenString)
	if err != nil {
		return nil, fmt.Errorf("auth: token security check failed: %w", err)
	}
	if blacklisted {
		a.securityLogger.Printf("security violation: blacklisted token used (reason: %s)", reason)
		return nil, ErrTokenBlacklisted
	}

	return claims, nil
}

func hashTokenForBlacklist(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
