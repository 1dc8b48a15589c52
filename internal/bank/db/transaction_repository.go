package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"wallet2bank/internal/bank/domain"
	"wallet2bank/internal/postgres"
)

// TransactionRepository implements domain.TransactionRepository.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a TransactionRepository over the pool.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

const txnColumns = `id, idempotency_key, transaction_id, wallet_id, bank_account,
       amount, currency, status, message, retry_count, created_at, updated_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		txn    domain.Transaction
		amount string
		status string
	)
	err := row.Scan(
		&txn.ID,
		&txn.IdempotencyKey,
		&txn.TransactionID,
		&txn.WalletID,
		&txn.BankAccount,
		&amount,
		&txn.Currency,
		&status,
		&txn.Message,
		&txn.RetryCount,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	txn.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	txn.Status = domain.Status(status)
	return &txn, nil
}

// Create inserts a new record. A duplicate transaction_id fails on the
// unique constraint rather than racing to two rows.
func (r *TransactionRepository) Create(ctx context.Context, txn *domain.Transaction) error {
	query := `
		INSERT INTO from_wallet_transactions (
			idempotency_key, transaction_id, wallet_id, bank_account,
			amount, currency, status, message, retry_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err := postgres.FromContext(ctx, r.pool).QueryRow(ctx, query,
		txn.IdempotencyKey,
		txn.TransactionID,
		txn.WalletID,
		txn.BankAccount,
		txn.Amount.String(),
		txn.Currency,
		string(txn.Status),
		txn.Message,
		txn.RetryCount,
		txn.CreatedAt,
		txn.UpdatedAt,
	).Scan(&txn.ID)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("transaction %s already exists: %w", txn.TransactionID, err)
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetByTransactionID returns the record, or (nil, nil) when absent.
func (r *TransactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	query := `SELECT ` + txnColumns + ` FROM from_wallet_transactions WHERE transaction_id = $1`
	txn, err := scanTransaction(postgres.FromContext(ctx, r.pool).QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetByTransactionIDAndKey resolves the correlated pair; domain.ErrNotFound
// covers both absence and key mismatch so a caller cannot distinguish them.
func (r *TransactionRepository) GetByTransactionIDAndKey(ctx context.Context, transactionID string, key uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + txnColumns + ` FROM from_wallet_transactions WHERE transaction_id = $1 AND idempotency_key = $2`
	txn, err := scanTransaction(postgres.FromContext(ctx, r.pool).QueryRow(ctx, query, transactionID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// Update persists status, message, retry count and updated_at.
func (r *TransactionRepository) Update(ctx context.Context, txn *domain.Transaction) error {
	query := `
		UPDATE from_wallet_transactions
		SET status = $2, message = $3, retry_count = $4, updated_at = $5
		WHERE transaction_id = $1
	`
	tag, err := postgres.FromContext(ctx, r.pool).Exec(ctx, query,
		txn.TransactionID,
		string(txn.Status),
		txn.Message,
		txn.RetryCount,
		txn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByStatus enumerates records in a given status.
func (r *TransactionRepository) ListByStatus(ctx context.Context, status domain.Status) ([]*domain.Transaction, error) {
	query := `SELECT ` + txnColumns + ` FROM from_wallet_transactions WHERE status = $1 ORDER BY created_at`
	rows, err := postgres.FromContext(ctx, r.pool).Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}
