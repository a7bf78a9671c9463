// Package settlement implements the three fee settlement protocols.
//
// The claim-chain settler verifies ordered traces of user-signed usage
// claims and applies them all-or-nothing. The TEE settler verifies batches
// of enclave-signed fee totals with per-record failure isolation. The
// verifier settler handles the fine-tuning variant: one enclave-signed
// record per task, settled at full fee when the user acknowledged the
// deliverable and at the penalty rate when they did not.
//
// Settlers validate and debit; event emission and earnings accounting stay
// with the owning serving instance.
package settlement

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceChange reports the post-settlement state of one account so the
// caller can emit balance events.
type BalanceChange struct {
	User          common.Address
	Balance       *big.Int
	PendingRefund *big.Int
}
