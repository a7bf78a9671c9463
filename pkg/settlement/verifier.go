package settlement

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-serving-ledger/pkg/account"
	"github.com/0gfoundation/0g-serving-ledger/pkg/model"
	"github.com/0gfoundation/0g-serving-ledger/pkg/signing"
)

// VerifierSettler applies fine-tuning settlement records. Each record
// settles one task: full fee with the encrypted model secret when the user
// acknowledged the deliverable, the penalty share of the fee without a
// secret when they did not.
type VerifierSettler struct {
	accounts *account.Store
	// penaltyPercentage is the provider's share, 0-100, of the task fee on
	// the unacknowledged path.
	penaltyPercentage uint64
}

// NewVerifierSettler returns a settler over the given account store.
func NewVerifierSettler(accounts *account.Store, penaltyPercentage uint64) *VerifierSettler {
	return &VerifierSettler{accounts: accounts, penaltyPercentage: penaltyPercentage}
}

// SetPenaltyPercentage changes the provider share applied on the
// unacknowledged path. Applies to settlements from now on.
func (s *VerifierSettler) SetPenaltyPercentage(p uint64) {
	s.penaltyPercentage = p
}

// Settle validates and applies one record for provider, returning the fee
// collected and the account's balance change.
func (s *VerifierSettler) Settle(provider common.Address, input model.VerifierInput) (*big.Int, BalanceChange, error) {
	if !s.accounts.Exists(input.User, provider) {
		return nil, BalanceChange{}, model.ErrAccountNotFound
	}
	nonce, _ := s.accounts.Nonce(input.User, provider)
	if input.Nonce <= nonce {
		return nil, BalanceChange{}, model.ErrNonceUsed
	}
	signer, acknowledged, _ := s.accounts.TEESigner(input.User, provider)
	if !acknowledged || signer != input.ProviderSigner {
		return nil, BalanceChange{}, model.ErrSignerNotAcknowledged
	}
	digest := signing.VerifierInputHash(input.EncryptedSecret, input.ModelRootHash, input.Nonce, input.ProviderSigner, input.TaskFee, input.User)
	if err := signing.VerifySigner(digest, input.Signature, signer); err != nil {
		return nil, BalanceChange{}, err
	}

	deliverable, err := s.accounts.Deliverable(input.User, provider, input.ID)
	if err != nil {
		return nil, BalanceChange{}, err
	}
	if !bytes.Equal(deliverable.ModelRootHash, input.ModelRootHash) {
		return nil, BalanceChange{}, model.ErrModelRootMismatch
	}

	fee := new(big.Int).Set(input.TaskFee)
	if deliverable.Acknowledged {
		if len(input.EncryptedSecret) == 0 {
			return nil, BalanceChange{}, model.ErrSecretMissing
		}
	} else {
		if len(input.EncryptedSecret) != 0 {
			return nil, BalanceChange{}, model.ErrSecretPresent
		}
		fee.Mul(fee, new(big.Int).SetUint64(s.penaltyPercentage))
		fee.Div(fee, big.NewInt(100))
	}

	balance, pending, err := s.accounts.DebitAndAdvance(input.User, provider, fee, input.Nonce)
	if err != nil {
		return nil, BalanceChange{}, err
	}
	if deliverable.Acknowledged {
		if err := s.accounts.SetDeliverableSecret(input.User, provider, input.ID, input.EncryptedSecret); err != nil {
			return nil, BalanceChange{}, err
		}
	}
	return fee, BalanceChange{User: input.User, Balance: balance, PendingRefund: pending}, nil
}
