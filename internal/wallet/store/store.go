// Package store layers the Redis cache over the durable wallet
// transaction repository. The cache is a read-through/write-through
// accelerator only; on any disagreement the durable store wins.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"wallet2bank/internal/wallet/db"
	"wallet2bank/internal/wallet/domain"
)

// DefaultCacheTTL bounds how long cache entries and status-index members
// survive without a refresh.
const DefaultCacheTTL = 5 * time.Minute

// Store implements domain.TransactionStore.
type Store struct {
	repo  *db.TransactionRepository
	cache *redis.Client
	ttl   time.Duration
}

// New creates a Store. cache may be nil, in which case every call goes
// straight to the durable store.
func New(repo *db.TransactionRepository, cache *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Store{repo: repo, cache: cache, ttl: ttl}
}

func statusIndexKey(status domain.Status) string {
	return "transaction:" + string(status)
}

// Get looks up the cache first; on a miss it loads from the durable store
// and repopulates cache entry plus, for non-terminal statuses, the
// per-status index set, all with the bounded TTL. Returns (nil, nil) when
// the record does not exist anywhere.
func (s *Store) Get(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, transactionID).Bytes()
		if err == nil {
			var txn domain.Transaction
			if err := json.Unmarshal(raw, &txn); err == nil {
				return &txn, nil
			}
			log.Printf("dropping undecodable cache entry for %s", transactionID)
		} else if !errors.Is(err, redis.Nil) {
			log.Printf("transaction cache read failed, falling back to store: %v", err)
		}
	}

	txn, err := s.repo.GetByTransactionID(ctx, transactionID)
	if err != nil || txn == nil {
		return txn, err
	}
	s.refreshCache(ctx, txn)
	return txn, nil
}

// Create inserts into the durable store first, then refreshes the cache
// entry and index membership. A duplicate transactionId surfaces as
// domain.ErrTransactionExists and leaves the cache untouched.
func (s *Store) Create(ctx context.Context, txn *domain.Transaction) error {
	if err := s.repo.Create(ctx, txn); err != nil {
		return err
	}
	s.refreshCache(ctx, txn)
	return nil
}

// Put updates the existing durable record first, then refreshes the cache
// entry and index membership identically. A cache failure never fails the
// write.
func (s *Store) Put(ctx context.Context, txn *domain.Transaction) error {
	if err := s.repo.Update(ctx, txn); err != nil {
		return err
	}
	s.refreshCache(ctx, txn)
	return nil
}

// Remove deletes the record from the durable store, the cache and any
// status index set it may sit in. The durable delete is keyed by both
// transactionId and idempotency key, so a record persisted by a
// concurrent request under another key stays put.
func (s *Store) Remove(ctx context.Context, txn *domain.Transaction) error {
	if err := s.repo.Delete(ctx, txn.TransactionID, txn.IdempotencyKey.String()); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, txn.TransactionID).Err(); err != nil {
			log.Printf("transaction cache delete failed: %v", err)
		}
		if err := s.cache.SRem(ctx, statusIndexKey(txn.Status), txn.TransactionID).Err(); err != nil {
			log.Printf("status index cleanup failed: %v", err)
		}
	}
	return nil
}

// ListByStatus queries the durable store, the source of truth for
// reconciliation. TTL expiry can silently drop index-set members, so the
// cached sets are never used here.
func (s *Store) ListByStatus(ctx context.Context, status domain.Status) ([]*domain.Transaction, error) {
	return s.repo.ListByStatus(ctx, status)
}

// CachedByStatus is the fast-path hint over the status index set. Members
// that expired out of the value cache are skipped; callers needing a
// complete answer use ListByStatus.
func (s *Store) CachedByStatus(ctx context.Context, status domain.Status) ([]*domain.Transaction, error) {
	if s.cache == nil {
		return nil, nil
	}
	ids, err := s.cache.SMembers(ctx, statusIndexKey(status)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read status index: %w", err)
	}
	var txns []*domain.Transaction
	for _, id := range ids {
		raw, err := s.cache.Get(ctx, id).Bytes()
		if err != nil {
			continue
		}
		var txn domain.Transaction
		if err := json.Unmarshal(raw, &txn); err != nil {
			continue
		}
		txns = append(txns, &txn)
	}
	return txns, nil
}

func (s *Store) refreshCache(ctx context.Context, txn *domain.Transaction) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(txn)
	if err != nil {
		log.Printf("failed to encode transaction for cache: %v", err)
		return
	}
	if err := s.cache.Set(ctx, txn.TransactionID, raw, s.ttl).Err(); err != nil {
		log.Printf("transaction cache write failed: %v", err)
		return
	}
	if !txn.Status.IsTerminal() {
		key := statusIndexKey(txn.Status)
		if err := s.cache.SAdd(ctx, key, txn.TransactionID).Err(); err != nil {
			log.Printf("status index write failed: %v", err)
			return
		}
		s.cache.Expire(ctx, key, s.ttl)
	}
}
