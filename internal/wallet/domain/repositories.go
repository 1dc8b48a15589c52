package domain

import (
	"context"

	"wallet2bank/internal/outbound"
)

// WalletRepository is the wallet ledger data access interface.
type WalletRepository interface {
	// GetByWalletID resolves a wallet, ErrWalletNotFound if absent.
	GetByWalletID(ctx context.Context, walletID string) (*Wallet, error)

	// Lock resolves a wallet under a row lock. Must run inside a
	// transaction context.
	Lock(ctx context.Context, walletID string) (*Wallet, error)

	// Update persists the wallet balance.
	Update(ctx context.Context, wallet *Wallet) error
}

// TransactionStore is the cached durable store of transfer records
// described by the transaction-store contract: cache read-through on Get,
// write-through with status-index maintenance on Put, full erase on Remove.
type TransactionStore interface {
	// Get returns the record for transactionID, or (nil, nil) on a miss.
	Get(ctx context.Context, transactionID string) (*Transaction, error)

	// Create inserts a new durable record and seeds cache entry and
	// status-index membership. A transactionId already persisted fails
	// with ErrTransactionExists instead of merging onto the winner.
	Create(ctx context.Context, txn *Transaction) error

	// Put updates the existing durable record and refreshes cache entry
	// and status-index membership.
	Put(ctx context.Context, txn *Transaction) error

	// Remove erases the record from store, cache and any status index.
	// The durable delete matches both transactionId and idempotency key.
	Remove(ctx context.Context, txn *Transaction) error

	// ListByStatus queries the durable store; this, not the cache, is
	// authoritative for reconciliation.
	ListByStatus(ctx context.Context, status Status) ([]*Transaction, error)
}

// TransactionManager runs fn within a database transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// BankGateway is the outbound client toward the bank service.
type BankGateway interface {
	// CheckHealth is the advisory fail-fast probe.
	CheckHealth(ctx context.Context) bool

	// SendTransfer submits the signed transfer request and collapses the
	// outcome to Accepted, Rejected or Unknown.
	SendTransfer(ctx context.Context, txn *Transaction) outbound.Result

	// FetchStatus polls the bank-side record state for reconciliation.
	FetchStatus(ctx context.Context, transactionID, idempotencyKey string) (Status, error)
}
