package settlement

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-serving-ledger/pkg/account"
	"github.com/0gfoundation/0g-serving-ledger/pkg/model"
	"github.com/0gfoundation/0g-serving-ledger/pkg/signing"
)

// Rejection reasons reported per TEE settlement record.
const (
	ReasonProviderMismatch     = "Provider mismatch"
	ReasonAccountNotFound      = "Account does not exist"
	ReasonNonceUsed            = "Nonce already processed"
	ReasonSignerUnacknowledged = "TEE signer not acknowledged"
	ReasonInvalidSignature     = "Invalid signature"
	ReasonInsufficientBalance  = "Insufficient balance"
)

// TEEResult is the outcome of one record of a TEE settlement batch. An
// empty Reason marks success.
type TEEResult struct {
	User   common.Address
	Fee    *big.Int
	Reason string
}

// TEESettler applies batches of enclave-signed fee totals. Records fail
// independently: a bad record is reported and skipped while the rest of the
// batch settles.
type TEESettler struct {
	accounts *account.Store
}

// NewTEESettler returns a settler over the given account store.
func NewTEESettler(accounts *account.Store) *TEESettler {
	return &TEESettler{accounts: accounts}
}

// Settle processes the batch for provider and returns the total fee
// collected, the balance changes of settled accounts, and the per-record
// outcomes. An empty batch is an error.
func (s *TEESettler) Settle(provider common.Address, batch []model.TEESettlement) (*big.Int, []BalanceChange, []TEEResult, error) {
	if len(batch) == 0 {
		return nil, nil, nil, model.ErrNoSettlements
	}

	total := new(big.Int)
	changes := make([]BalanceChange, 0, len(batch))
	results := make([]TEEResult, 0, len(batch))
	for _, rec := range batch {
		res := TEEResult{User: rec.User, Fee: new(big.Int).Set(rec.TotalFee)}
		res.Reason = s.settleOne(provider, rec)
		if res.Reason == "" {
			balance := s.accounts.Balance(rec.User, provider)
			pending := s.accounts.PendingRefund(rec.User, provider)
			changes = append(changes, BalanceChange{User: rec.User, Balance: balance, PendingRefund: pending})
			total.Add(total, rec.TotalFee)
		}
		results = append(results, res)
	}
	return total, changes, results, nil
}

// settleOne validates and applies a single record, returning the rejection
// reason or "" on success.
func (s *TEESettler) settleOne(provider common.Address, rec model.TEESettlement) string {
	if rec.Provider != provider {
		return ReasonProviderMismatch
	}
	if !s.accounts.Exists(rec.User, provider) {
		return ReasonAccountNotFound
	}
	nonce, _ := s.accounts.Nonce(rec.User, provider)
	if rec.Nonce <= nonce {
		return ReasonNonceUsed
	}
	signer, acknowledged, _ := s.accounts.TEESigner(rec.User, provider)
	if !acknowledged {
		return ReasonSignerUnacknowledged
	}
	digest := signing.TEESettlementHash(rec.RequestsHash, rec.Nonce, rec.Provider, rec.User, rec.TotalFee)
	if err := signing.VerifySigner(digest, rec.Signature, signer); err != nil {
		return ReasonInvalidSignature
	}
	if _, _, err := s.accounts.DebitAndAdvance(rec.User, provider, rec.TotalFee, rec.Nonce); err != nil {
		return ReasonInsufficientBalance
	}
	return ""
}
