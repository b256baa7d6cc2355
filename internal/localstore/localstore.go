// Package localstore keeps the per-user records that are deliberately
// not part of the authoritative user row: the daily bonus cooldown and
// the recent-activity ledger. They live in Redis as small JSON blobs;
// a missing or malformed record is always treated as absent, never as
// an error.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"telegram-mining-app/internal/model"
)

// ledgerCap bounds the per-user ledger to the newest entries.
const ledgerCap = 50

// BonusRecord is the daily bonus cooldown record. LastClaim is the epoch
// milliseconds of the last successful claim; BonusDay indexes the
// escalating reward table and cycles modulo its length.
type BonusRecord struct {
	LastClaim Millis `json:"lastClaim"`
	BonusDay  int    `json:"bonusDay"`
}

// Store wraps the Redis client holding local per-user records.
type Store struct {
	rdb *redis.Client
}

// New creates a Store on the given Redis client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func bonusKey(userID int64) string {
	return fmt.Sprintf("bonus:%d", userID)
}

func ledgerKey(userID int64) string {
	return fmt.Sprintf("ledger:%d", userID)
}

// BonusRecord loads the user's cooldown record. An absent, expired or
// unparseable record comes back as the zero record, which means the user
// is immediately eligible.
func (s *Store) BonusRecord(ctx context.Context, userID int64) (BonusRecord, error) {
	raw, err := s.rdb.Get(ctx, bonusKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return BonusRecord{}, nil
		}
		return BonusRecord{}, fmt.Errorf("failed to load bonus record: %w", err)
	}

	var rec BonusRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Malformed bonus record, treating as absent")
		return BonusRecord{}, nil
	}
	return rec, nil
}

// SetBonusRecord stores the user's cooldown record.
func (s *Store) SetBonusRecord(ctx context.Context, userID int64, rec BonusRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal bonus record: %w", err)
	}
	if err := s.rdb.Set(ctx, bonusKey(userID), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to store bonus record: %w", err)
	}
	return nil
}

// AppendLedger pushes an entry onto the front of the user's ledger and
// trims it to the newest ledgerCap entries. The entry gets an ID and
// timestamp here if the caller left them empty.
func (s *Store) AppendLedger(ctx context.Context, userID int64, entry model.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt == "" {
		entry.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	key := ledgerKey(userID)
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, ledgerCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// Ledger returns up to limit of the user's newest ledger entries, newest
// first. Entries that fail to parse are skipped.
func (s *Store) Ledger(ctx context.Context, userID int64, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 || limit > ledgerCap {
		limit = ledgerCap
	}

	raws, err := s.rdb.LRange(ctx, ledgerKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	entries := make([]model.LedgerEntry, 0, len(raws))
	for _, raw := range raws {
		var entry model.LedgerEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("Skipping malformed ledger entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
