package model

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnauthorized rejects owner-only operations invoked by anyone else.
	ErrUnauthorized = errors.New("caller is not the owner")

	ErrLedgerExists   = errors.New("ledger already exists")
	ErrLedgerNotFound = errors.New("ledger does not exist")

	ErrAccountNotFound     = errors.New("account does not exist")
	ErrServiceNotFound     = errors.New("service does not exist")
	ErrDeliverableNotFound = errors.New("deliverable does not exist")

	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrLimitTooLarge rejects paginated listings whose limit exceeds
	// MaxPageLimit.
	ErrLimitTooLarge = errors.New("limit too large")

	// ErrInvalidOffset rejects paginated listings with a negative offset.
	ErrInvalidOffset = errors.New("invalid offset")

	// ErrRefundLocked rejects explicit refund processing before the slot's
	// unlock time.
	ErrRefundLocked = errors.New("refund not yet unlocked")

	// ErrRefundNotFound rejects refund indices that are out of range or
	// already processed.
	ErrRefundNotFound = errors.New("refund does not exist")

	// ErrNonceUsed rejects settlement records whose nonce is not above the
	// account's committed watermark.
	ErrNonceUsed = errors.New("nonce already processed")

	ErrNoSettlements = errors.New("no settlements provided")

	// ErrSecretMissing and ErrSecretPresent guard the fine-tuning settlement
	// branches: the acknowledged path must carry an encrypted secret, the
	// penalty path must not.
	ErrSecretMissing = errors.New("secret should not be empty")
	ErrSecretPresent = errors.New("secret should be empty")

	ErrModelRootMismatch = errors.New("model root hash mismatch")

	// ErrSignerNotAcknowledged rejects settlements signed by a key the user
	// has not acknowledged for the provider.
	ErrSignerNotAcknowledged = errors.New("signer not acknowledged by user")

	ErrUnknownServingKind = errors.New("unknown serving kind")
)

// TooManyRefundsError reports an account whose refund slots are all occupied
// by unprocessed entries.
type TooManyRefundsError struct {
	User     common.Address
	Provider common.Address
}

func (e *TooManyRefundsError) Error() string {
	return fmt.Sprintf("too many refunds for account %s/%s", e.User.Hex(), e.Provider.Hex())
}
