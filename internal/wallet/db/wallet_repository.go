// Package db implements the wallet-side repositories on PostgreSQL.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"wallet2bank/internal/postgres"
	"wallet2bank/internal/wallet/domain"
)

// WalletRepository implements domain.WalletRepository.
type WalletRepository struct {
	pool *pgxpool.Pool
}

// NewWalletRepository creates a WalletRepository over the pool.
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

const walletColumns = `id, wallet_id, balance, currency`

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var (
		wallet  domain.Wallet
		balance string
	)
	if err := row.Scan(&wallet.ID, &wallet.WalletID, &balance, &wallet.Currency); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}
	var err error
	wallet.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("invalid stored balance %q: %w", balance, err)
	}
	return &wallet, nil
}

// GetByWalletID resolves a wallet by its external id.
func (r *WalletRepository) GetByWalletID(ctx context.Context, walletID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE wallet_id = $1`
	return scanWallet(postgres.FromContext(ctx, r.pool).QueryRow(ctx, query, walletID))
}

// Lock resolves a wallet under FOR UPDATE. Must run inside a transaction.
func (r *WalletRepository) Lock(ctx context.Context, walletID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE wallet_id = $1 FOR UPDATE`
	return scanWallet(postgres.FromContext(ctx, r.pool).QueryRow(ctx, query, walletID))
}

// Update persists the wallet balance.
func (r *WalletRepository) Update(ctx context.Context, wallet *domain.Wallet) error {
	query := `UPDATE wallets SET balance = $2 WHERE wallet_id = $1`
	tag, err := postgres.FromContext(ctx, r.pool).Exec(ctx, query, wallet.WalletID, wallet.Balance.String())
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}
