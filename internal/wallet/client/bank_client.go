// Package client implements the wallet side's outbound calls to the bank
// service: the signed transfer request, the reconciliation status poll and
// the advisory health probe.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"wallet2bank/internal/outbound"
	"wallet2bank/internal/retry"
	"wallet2bank/internal/wallet/domain"
)

const (
	transferPath = "/api/bank/transfer"
	statusPath   = "/api/bank/transfer/status"
	healthPath   = "/health"
)

// transferRequest is the bank-facing transfer body.
type transferRequest struct {
	TransactionID string          `json:"transactionId"`
	FromWalletID  string          `json:"fromWalletId"`
	ToBankAccount string          `json:"toBankAccount"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

type statusResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

// BankClient implements domain.BankGateway.
type BankClient struct {
	caller *outbound.Caller
}

// NewBankClient creates a BankClient for the bank service at baseURL.
func NewBankClient(baseURL, secret string, policy retry.Policy, timeout time.Duration) *BankClient {
	return &BankClient{caller: outbound.NewCaller(baseURL, secret, policy, timeout)}
}

// CheckHealth probes the bank liveness endpoint.
func (c *BankClient) CheckHealth(ctx context.Context) bool {
	return c.caller.CheckHealth(ctx, healthPath)
}

// SendTransfer submits the signed transfer request, retrying per policy,
// and returns the collapsed outcome.
func (c *BankClient) SendTransfer(ctx context.Context, txn *domain.Transaction) outbound.Result {
	body := transferRequest{
		TransactionID: txn.TransactionID,
		FromWalletID:  txn.WalletID,
		ToBankAccount: txn.BankAccount,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
	}
	return c.caller.Post(ctx, transferPath, txn.TransactionID, txn.IdempotencyKey.String(), body)
}

// FetchStatus polls the definitive bank-side state for a record, keyed by
// (transactionID, idempotencyKey). Used by the reconciliation loop for
// records stuck in UNKNOWN.
func (c *BankClient) FetchStatus(ctx context.Context, transactionID, idempotencyKey string) (domain.Status, error) {
	path := statusPath + "?transactionId=" + url.QueryEscape(transactionID)
	res := c.caller.Get(ctx, path, transactionID, idempotencyKey)
	switch res.Outcome {
	case outbound.Accepted:
		var body statusResponse
		if err := json.Unmarshal(res.Body, &body); err != nil {
			return "", fmt.Errorf("undecodable status response: %w", err)
		}
		return domain.Status(body.Status), nil
	case outbound.Rejected:
		if res.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("no bank-side record for %s", transactionID)
		}
		return "", fmt.Errorf("status query rejected (%d): %s", res.StatusCode, res.Body)
	default:
		return "", fmt.Errorf("status query outcome unknown: %w", res.Err)
	}
}
