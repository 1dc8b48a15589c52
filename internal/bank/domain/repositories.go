package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"wallet2bank/internal/outbound"
)

var (
	// ErrNotFound is returned by the status query when no record matches
	// the (transactionId, idempotencyKey) pair.
	ErrNotFound = errors.New("transaction not found")

	// ErrIdempotencyKeyMismatch rejects a repeat transactionId arriving
	// with a different idempotency key.
	ErrIdempotencyKeyMismatch = errors.New("request header contains invalid idempotency key")

	// ErrRetriesExhausted marks a settlement that kept faulting past the
	// redelivery ceiling; the delivery must be parked, not requeued.
	ErrRetriesExhausted = errors.New("settlement retries exhausted")
)

// AccountRepository is the bank ledger data access interface.
type AccountRepository interface {
	// GetByAccountNumber returns the account, or (nil, nil) if absent.
	// Absence is a business outcome here, not an error: settlement turns
	// it into a FAILED record.
	GetByAccountNumber(ctx context.Context, accountNumber string) (*BankAccount, error)

	// Update persists the account balance.
	Update(ctx context.Context, account *BankAccount) error
}

// TransactionRepository is the bank-side transfer record store.
type TransactionRepository interface {
	// Create inserts a new record; the unique constraint on
	// transaction_id makes a duplicate insert fail atomically.
	Create(ctx context.Context, txn *Transaction) error

	// GetByTransactionID returns the record, or (nil, nil) when absent.
	GetByTransactionID(ctx context.Context, transactionID string) (*Transaction, error)

	// GetByTransactionIDAndKey resolves the correlated pair for the
	// status query; ErrNotFound on absence or key mismatch.
	GetByTransactionIDAndKey(ctx context.Context, transactionID string, key uuid.UUID) (*Transaction, error)

	// Update persists status, message and updated_at.
	Update(ctx context.Context, txn *Transaction) error

	// ListByStatus enumerates records in a given status.
	ListByStatus(ctx context.Context, status Status) ([]*Transaction, error)
}

// TransactionManager runs fn within a database transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// SettlementQueue enqueues accepted transaction ids for asynchronous
// settlement.
type SettlementQueue interface {
	Publish(ctx context.Context, transactionID string) error
}

// WalletGateway delivers the signed webhook callback to the wallet side.
type WalletGateway interface {
	SendCallback(ctx context.Context, txn *Transaction) outbound.Result
}
