// Package db implements the bank-side repositories on PostgreSQL.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"wallet2bank/internal/bank/domain"
	"wallet2bank/internal/postgres"
)

// AccountRepository implements domain.AccountRepository.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates an AccountRepository over the pool.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// GetByAccountNumber returns the account, or (nil, nil) when absent.
func (r *AccountRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.BankAccount, error) {
	query := `SELECT id, account_number, balance, currency FROM bank_accounts WHERE account_number = $1`

	var (
		account domain.BankAccount
		balance string
	)
	row := postgres.FromContext(ctx, r.pool).QueryRow(ctx, query, accountNumber)
	if err := row.Scan(&account.ID, &account.AccountNumber, &balance, &account.Currency); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get bank account: %w", err)
	}
	var err error
	account.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("invalid stored balance %q: %w", balance, err)
	}
	return &account, nil
}

// Update persists the account balance.
func (r *AccountRepository) Update(ctx context.Context, account *domain.BankAccount) error {
	query := `UPDATE bank_accounts SET balance = $2 WHERE account_number = $1`
	tag, err := postgres.FromContext(ctx, r.pool).Exec(ctx, query, account.AccountNumber, account.Balance.String())
	if err != nil {
		return fmt.Errorf("failed to update bank account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bank account %s not found", account.AccountNumber)
	}
	return nil
}
