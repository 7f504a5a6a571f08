// Command sdkdemo wires every ambient and domain dependency of sdk-core
// together into one runnable binary: Vault/env-backed config, Postgres
// device storage, Redis-backed auth nonces/blacklist/resource-key cache,
// Consul service registration, Prometheus metrics, and an in-memory
// trustchain server backing a full identity-registration walkthrough on
// startup.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/jaydenbeard/sdk-core/internal/auth"
	"github.com/jaydenbeard/sdk-core/internal/blocks"
	"github.com/jaydenbeard/sdk-core/internal/config"
	"github.com/jaydenbeard/sdk-core/internal/groups"
	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/metrics"
	"github.com/jaydenbeard/sdk-core/internal/registry"
	"github.com/jaydenbeard/sdk-core/internal/session"
	"github.com/jaydenbeard/sdk-core/internal/share"
	"github.com/jaydenbeard/sdk-core/internal/store"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
	"github.com/jaydenbeard/sdk-core/internal/trustchaintest"
)

func main() {
	cfg := config.Load()

	config.InitializeKeyManager(cfg.ChallengeSecret)
	if err := config.ValidateChallengeSecret(cfg.ChallengeSecret); err != nil {
		log.Fatalf("FATAL: challenge secret validation failed: %v", err)
	}

	log.Printf("starting sdk-core demo server: %s", cfg.ServerID)

	deviceStore, err := store.NewPostgresStore(cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer func() {
		if err := deviceStore.Close(); err != nil {
			log.Printf("warning: failed to close postgres store: %v", err)
		}
	}()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to parse redis url: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Printf("warning: failed to close redis: %v", err)
		}
	}()

	authService, err := auth.NewAuthService(redisClient, cfg.ChallengeSecret)
	if err != nil {
		log.Fatalf("failed to initialize auth service: %v", err)
	}

	trustchain := trustchaintest.NewServer(authService)

	demoTrustchainID, err := bootstrapDemoTrustchain(trustchain)
	if err != nil {
		log.Fatalf("failed to bootstrap demo trustchain: %v", err)
	}
	if err := runIdentityWalkthrough(trustchain, demoTrustchainID); err != nil {
		log.Printf("warning: demo identity walkthrough failed: %v", err)
	}

	serviceRegistry, err := registry.NewConsulRegistry(cfg.ConsulURL, cfg.ServerID, cfg.ServerPort)
	if err != nil {
		log.Fatalf("failed to connect to consul: %v", err)
	}
	if err := serviceRegistry.Register(demoTrustchainID); err != nil {
		log.Fatalf("failed to register service: %v", err)
	}
	defer func() {
		if err := serviceRegistry.Deregister(); err != nil {
			log.Printf("warning: failed to deregister service: %v", err)
		}
	}()

	resourceCache := store.NewRedisResourceKeyCache(redisClient, demoTrustchainID, time.Hour)
	_ = resourceCache // constructed only; nothing in this binary reads it, and no test exercises it

	router := mux.NewRouter()
	router.Handle("/health", metrics.Middleware(http.HandlerFunc(healthHandler))).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Handle("/trustchain/{trustchainId}/blocks", metrics.Middleware(pushBlockHandler(trustchain))).Methods("POST")
	api.Handle("/trustchain/{trustchainId}/blocks", metrics.Middleware(pullBlocksHandler(trustchain))).Methods("GET")
	api.Handle("/trustchain/{trustchainId}/devices/{deviceId}/challenge", metrics.Middleware(issueChallengeHandler(authService))).Methods("POST")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           corsHandler.Handler(router),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("sdk-core demo server listening on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("received signal %v, starting graceful shutdown", sig)

	if err := serviceRegistry.Deregister(); err != nil {
		log.Printf("warning: failed to deregister from consul: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("warning: server shutdown error: %v", err)
	}

	log.Println("server stopped gracefully")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func pushBlockHandler(trustchain *trustchaintest.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buf, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read block body", http.StatusBadRequest)
			return
		}
		block, err := blocks.Unmarshal(buf)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid block: %v", err), http.StatusBadRequest)
			return
		}
		if err := trustchain.PushBlock(r.Context(), block); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func pullBlocksHandler(trustchain *trustchaintest.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		trustchainID, err := parseTrustchainID(vars["trustchainId"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		pulled, err := trustchain.PullBlocks(r.Context(), trustchainID, 0)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		for _, b := range pulled {
			_, _ = w.Write(b.Marshal())
		}
	}
}

func issueChallengeHandler(authService *auth.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		trustchainID, err := parseTrustchainID(vars["trustchainId"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		deviceIDBytes, err := hex.DecodeString(vars["deviceId"])
		if err != nil || len(deviceIDBytes) != ids.Size {
			http.Error(w, "invalid device id", http.StatusBadRequest)
			return
		}
		var deviceID ids.DeviceID
		copy(deviceID[:], deviceIDBytes)

		challenge, err := authService.IssueChallenge(r.Context(), trustchainID, deviceID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(challenge)
	}
}

func parseTrustchainID(s string) (ids.TrustchainID, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != ids.Size {
		return ids.TrustchainID{}, fmt.Errorf("invalid trustchain id")
	}
	var id ids.TrustchainID
	copy(id[:], b)
	return id, nil
}

// bootstrapDemoTrustchain mints a fresh root keypair and pushes the
// TrustchainCreation block the rest of the demo walkthrough builds on, the
// way a customer's own backend would when provisioning a new trustchain.
func bootstrapDemoTrustchain(trustchain *trustchaintest.Server) (ids.TrustchainID, error) {
	rootKeys, err := tcrypto.GenerateSignatureKeyPair()
	if err != nil {
		return ids.TrustchainID{}, fmt.Errorf("generate root keypair: %w", err)
	}

	action := &blocks.TrustchainCreation{PublicSignatureKey: rootKeys.PublicKey}
	root := &blocks.Block{Version: 1, Action: action}
	root.TrustchainID = ids.TrustchainID(root.Hash())

	if err := trustchain.PushBlock(context.Background(), root); err != nil {
		return ids.TrustchainID{}, fmt.Errorf("push trustchain creation: %w", err)
	}
	log.Printf("demo trustchain %s created", hex.EncodeToString(root.TrustchainID[:]))
	return root.TrustchainID, nil
}

// runIdentityWalkthrough exercises a full registerIdentity/start cycle for
// two demo users against the in-memory trustchain, then drives encrypt,
// share, decrypt and group creation between them, logging every step so
// startup logs demonstrate the core SDK flow without needing a separate
// client.
func runIdentityWalkthrough(trustchain *trustchaintest.Server, trustchainID ids.TrustchainID) error {
	ctx := context.Background()

	alice, aliceID, err := registerDemoUser(ctx, trustchain, trustchainID, "alice-walkthrough-passphrase")
	if err != nil {
		return fmt.Errorf("register alice: %w", err)
	}
	bob, bobID, err := registerDemoUser(ctx, trustchain, trustchainID, "bob-walkthrough-passphrase")
	if err != nil {
		return fmt.Errorf("register bob: %w", err)
	}

	token, err := alice.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	log.Printf("demo session authenticated, issued access token of length %d", len(token))

	bobTarget, err := alice.Resolver.ResolveUser(ctx, bobID)
	if err != nil {
		return fmt.Errorf("resolve bob as a share target: %w", err)
	}

	encrypted, err := alice.Encrypt(ctx, []byte("welcome to the trustchain"), []share.Target{bobTarget})
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}
	log.Printf("alice encrypted a %d-byte resource and shared it with bob", len(encrypted))

	clear, err := bob.Decrypt(ctx, encrypted)
	if err != nil {
		return fmt.Errorf("decrypt: %w", err)
	}
	log.Printf("bob decrypted the shared resource: %q", clear)

	bobUser, err := alice.Users.GetUser(ctx, bobID)
	if err != nil {
		return fmt.Errorf("look up bob's user key: %w", err)
	}
	groupID, err := alice.CreateGroup(ctx, []groups.MemberTarget{{UserID: bobID, PublicUserEncryptionKey: bobUser.CurrentUserPublicKey}}, nil)
	if err != nil {
		return fmt.Errorf("createGroup: %w", err)
	}
	log.Printf("alice created group %s with bob as a member", groupID)

	return nil
}

// registerDemoUser starts a fresh Session for a brand new demo user and
// registers its first device with a passphrase, returning the Ready
// session.
func registerDemoUser(ctx context.Context, trustchain *trustchaintest.Server, trustchainID ids.TrustchainID, passphrase string) (*session.Session, ids.UserID, error) {
	var userID ids.UserID
	if err := tcrypto.RandomFill(userID[:]); err != nil {
		return nil, ids.UserID{}, fmt.Errorf("generate demo user id: %w", err)
	}

	sess := session.New(trustchain, store.NewMemory())
	state, err := sess.Start(ctx, session.Identity{TrustchainID: trustchainID, UserID: userID})
	if err != nil {
		return nil, ids.UserID{}, fmt.Errorf("start: %w", err)
	}
	log.Printf("demo session started in state %s", state)

	if err := sess.RegisterIdentity(ctx, session.VerificationMethod{
		Kind:       session.VerificationPassphrase,
		Passphrase: passphrase,
	}); err != nil {
		return nil, ids.UserID{}, fmt.Errorf("registerIdentity: %w", err)
	}
	log.Printf("demo session reached state %s after registration", sess.State())

	return sess, userID, nil
}
