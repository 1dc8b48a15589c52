package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrWalletNotFound is returned when the wallet id resolves to nothing.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrCurrencyMismatch is returned when the request currency differs
	// from the wallet currency.
	ErrCurrencyMismatch = errors.New("currency did not match")

	// ErrBankUnavailable is returned when the health probe fails before
	// any debit has happened.
	ErrBankUnavailable = errors.New("bank service unavailable")

	// ErrInvalidTransactionID is returned for callbacks referencing an
	// unknown transaction.
	ErrInvalidTransactionID = errors.New("invalid transaction id")

	// ErrConfirmationAlreadyReceived rejects duplicate webhook deliveries
	// once the record is terminal.
	ErrConfirmationAlreadyReceived = errors.New("transfer confirmation already received")

	// ErrInvalidCallbackStatus is returned for callback statuses other
	// than SUCCESS or FAILED.
	ErrInvalidCallbackStatus = errors.New("invalid callback status")

	// ErrTransactionExists is returned when inserting a transfer record
	// whose transactionId is already persisted. The unique constraint,
	// not an upsert, decides the winner of a racing insert.
	ErrTransactionExists = errors.New("transaction record already exists")
)

// DuplicateTransactionError is the informational rejection for a repeated
// transactionId. It carries a status-specific explanation and is surfaced
// with a success-range response so the caller treats it as an acknowledged
// no-op, never as a hard failure.
type DuplicateTransactionError struct {
	Status  Status
	Message string
}

func (e *DuplicateTransactionError) Error() string {
	return fmt.Sprintf("duplicate transaction (%s): %s", e.Status, e.Message)
}

// NewDuplicateTransaction classifies the existing record by status.
func NewDuplicateTransaction(status Status) *DuplicateTransactionError {
	message := "Transfer request accepted. Transaction is in processing."
	switch status {
	case StatusUnknown:
		message = "Bank service unavailable: no transaction acknowledgement received. Transfer will be processed later."
	case StatusSuccess:
		message = "Transaction was successful. Balance has been transferred to the bank service."
	case StatusFailed:
		message = "Transaction was not successful. Try again with a new transaction."
	}
	return &DuplicateTransactionError{Status: status, Message: message}
}

// BankRejectionError carries the terminal business rejection the bank side
// answered with. It is never retried.
type BankRejectionError struct {
	StatusCode int
	Body       string
}

func (e *BankRejectionError) Error() string {
	return fmt.Sprintf("bank transfer request failed (%d): %s", e.StatusCode, e.Body)
}
