package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
	_ "github.com/lib/pq"
)

// PostgresStore is the durable backing for the local KV contract,
// grounded on a PostgresDB-style wrapper: same
// *sql.DB wrapper, same connection-pool tuning, same
// sql.Open/Ping-at-construction-time pattern. Rather than one table per
// entity (as the chat schema does for messages/groups/media), sdk-core
// keeps a single `sdk_kv(category, key, value, updated_at)` table, since
// every entry here is already a self-describing blob keyed by an opaque id
// -- a second normalized schema would buy nothing the KV contract needs.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("sdk-core postgres store: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sdk-core postgres store: ping: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sdk_kv (
			category   TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (category, key)
		)`)
	if err != nil {
		return fmt.Errorf("sdk-core postgres store: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) put(ctx context.Context, category, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("sdk-core postgres store: marshal: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sdk_kv (category, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (category, key) DO UPDATE SET value = $3, updated_at = now()`,
		category, key, data)
	if err != nil {
		return fmt.Errorf("sdk-core postgres store: put %s/%s: %w", category, key, err)
	}
	return nil
}

func (s *PostgresStore) get(ctx context.Context, category, key string, dest any) (bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sdk_kv WHERE category = $1 AND key = $2`, category, key).Scan(&data)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sdk-core postgres store: get %s/%s: %w", category, key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("sdk-core postgres store: unmarshal %s/%s: %w", category, key, err)
	}
	return true, nil
}

func (s *PostgresStore) SetDeviceKeys(ctx context.Context, keys DeviceKeys) error {
	return s.put(ctx, "identity", "deviceKeys", keys)
}

func (s *PostgresStore) DeviceKeys(ctx context.Context) (DeviceKeys, bool, error) {
	var keys DeviceKeys
	ok, err := s.get(ctx, "identity", "deviceKeys", &keys)
	return keys, ok, err
}

func (s *PostgresStore) SetTrustchainPublicSignatureKey(ctx context.Context, key tcrypto.PublicSignatureKey) error {
	return s.put(ctx, "identity", "trustchainPublicSignatureKey", key)
}

func (s *PostgresStore) TrustchainPublicSignatureKey(ctx context.Context) (tcrypto.PublicSignatureKey, bool, error) {
	var key tcrypto.PublicSignatureKey
	ok, err := s.get(ctx, "identity", "trustchainPublicSignatureKey", &key)
	return key, ok, err
}

func (s *PostgresStore) SetDeviceInitialized(ctx context.Context, initialized bool) error {
	return s.put(ctx, "identity", "deviceInitialized", initialized)
}

func (s *PostgresStore) DeviceInitialized(ctx context.Context) (bool, error) {
	var initialized bool
	_, err := s.get(ctx, "identity", "deviceInitialized", &initialized)
	return initialized, err
}

func (s *PostgresStore) AppendLocalUserKeyPair(ctx context.Context, kp LocalUserKeyPair) error {
	var all []LocalUserKeyPair
	if _, err := s.get(ctx, "identity", "localUserKeys", &all); err != nil {
		return err
	}
	all = append(all, kp)
	return s.put(ctx, "identity", "localUserKeys", all)
}

func (s *PostgresStore) LocalUserKeyPairs(ctx context.Context) ([]LocalUserKeyPair, error) {
	var all []LocalUserKeyPair
	if _, err := s.get(ctx, "identity", "localUserKeys", &all); err != nil {
		return nil, err
	}
	return all, nil
}

func (s *PostgresStore) PutGroup(ctx context.Context, g GroupRecord) error {
	return s.put(ctx, "groups", g.GroupID.String(), g)
}

func (s *PostgresStore) Group(ctx context.Context, id ids.GroupID) (GroupRecord, bool, error) {
	var g GroupRecord
	ok, err := s.get(ctx, "groups", id.String(), &g)
	return g, ok, err
}

func (s *PostgresStore) GroupByPublicEncryptionKey(ctx context.Context, key tcrypto.PublicEncryptionKey) (GroupRecord, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT value FROM sdk_kv WHERE category = 'groups'`)
	if err != nil {
		return GroupRecord{}, false, fmt.Errorf("sdk-core postgres store: scan groups: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return GroupRecord{}, false, err
		}
		var g GroupRecord
		if err := json.Unmarshal(data, &g); err != nil {
			continue
		}
		if g.PublicEncryptionKey == key {
			return g, true, nil
		}
	}
	return GroupRecord{}, false, nil
}

func (s *PostgresStore) PutResourceKey(ctx context.Context, id ids.ResourceID, key tcrypto.SymmetricKey) error {
	return s.put(ctx, "resourceKeys", id.String(), key)
}

func (s *PostgresStore) ResourceKey(ctx context.Context, id ids.ResourceID) (tcrypto.SymmetricKey, bool, error) {
	var key tcrypto.SymmetricKey
	ok, err := s.get(ctx, "resourceKeys", id.String(), &key)
	return key, ok, err
}

func (s *PostgresStore) PutProvisionalUserKeys(ctx context.Context, lookup ProvisionalKeyLookup, keys ProvisionalUserKeys) error {
	return s.put(ctx, "provisionalUserKeys", provisionalKey(lookup), keys)
}

func (s *PostgresStore) ProvisionalUserKeys(ctx context.Context, lookup ProvisionalKeyLookup) (ProvisionalUserKeys, bool, error) {
	var keys ProvisionalUserKeys
	ok, err := s.get(ctx, "provisionalUserKeys", provisionalKey(lookup), &keys)
	return keys, ok, err
}

func (s *PostgresStore) SetGhostRecovery(ctx context.Context, userID ids.UserID, rec GhostRecovery) error {
	return s.put(ctx, "ghostRecovery", userID.String(), rec)
}

func (s *PostgresStore) GhostRecovery(ctx context.Context, userID ids.UserID) (GhostRecovery, bool, error) {
	var rec GhostRecovery
	ok, err := s.get(ctx, "ghostRecovery", userID.String(), &rec)
	return rec, ok, err
}

func (s *PostgresStore) FlushCaches(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sdk_kv WHERE category != 'identity' OR key = 'localUserKeys'`)
	if err != nil {
		return fmt.Errorf("sdk-core postgres store: flush caches: %w", err)
	}
	return nil
}
