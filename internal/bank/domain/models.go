// Package domain holds the bank-side entities and interfaces for the
// settlement pipeline.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the bank-side transfer state machine:
// PENDING → PROCESSING → {SUCCESS, FAILED}, with PROCESSING → PENDING as
// the recovery edge for unexpected processing faults.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// BankAccount is the bank-side ledger entity; credit-only in this flow.
type BankAccount struct {
	ID            int64
	AccountNumber string
	Balance       decimal.Decimal
	Currency      string
}

// Credit adds amount to the balance.
func (a *BankAccount) Credit(amount decimal.Decimal) {
	a.Balance = a.Balance.Add(amount)
}

// Transaction is the bank-side transfer record. IdempotencyKey echoes the
// key the wallet side minted; the pair (TransactionID, IdempotencyKey) is
// the cross-service correlation contract.
type Transaction struct {
	ID             int64
	IdempotencyKey uuid.UUID
	TransactionID  string
	WalletID       string
	BankAccount    string
	Amount         decimal.Decimal
	Currency       string
	Status         Status
	Message        string
	RetryCount     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewTransaction builds a PENDING record from an accepted transfer request.
func NewTransaction(req TransferRequest, idempotencyKey uuid.UUID) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		IdempotencyKey: idempotencyKey,
		TransactionID:  req.TransactionID,
		WalletID:       req.FromWalletID,
		BankAccount:    req.ToBankAccount,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TransferRequest is the signed ingress body from the wallet side.
type TransferRequest struct {
	TransactionID string          `json:"transactionId"`
	FromWalletID  string          `json:"fromWalletId"`
	ToBankAccount string          `json:"toBankAccount"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

// Acknowledgement is the 202 body returned on ingress and by the status
// query.
type Acknowledgement struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}
