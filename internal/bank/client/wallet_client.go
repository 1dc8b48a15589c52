// Package client implements the bank side's outbound webhook callback to
// the wallet service.
package client

import (
	"context"
	"time"

	"wallet2bank/internal/bank/domain"
	"wallet2bank/internal/outbound"
	"wallet2bank/internal/retry"
)

const callbackPath = "/api/wallet/transfer-callback"

// callbackRequest is the webhook body. referenceId echoes the idempotency
// key so the wallet side can correlate without shared storage.
type callbackRequest struct {
	TransactionID string `json:"transactionId"`
	ReferenceID   string `json:"referenceId"`
	ProcessedAt   string `json:"processedAt"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// WalletClient implements domain.WalletGateway.
type WalletClient struct {
	caller *outbound.Caller
}

// NewWalletClient creates a WalletClient for the wallet service at baseURL.
func NewWalletClient(baseURL, secret string, policy retry.Policy, timeout time.Duration) *WalletClient {
	return &WalletClient{caller: outbound.NewCaller(baseURL, secret, policy, timeout)}
}

// SendCallback delivers the signed settlement callback with retry and
// returns the collapsed outcome. The caller decides what an Unknown
// outcome means; this side has no compensating action of its own.
func (c *WalletClient) SendCallback(ctx context.Context, txn *domain.Transaction) outbound.Result {
	body := callbackRequest{
		TransactionID: txn.TransactionID,
		ReferenceID:   txn.IdempotencyKey.String(),
		ProcessedAt:   txn.UpdatedAt.Format(time.RFC3339),
		Status:        string(txn.Status),
		Message:       txn.Message,
	}
	return c.caller.Post(ctx, callbackPath, txn.TransactionID, txn.IdempotencyKey.String(), body)
}
