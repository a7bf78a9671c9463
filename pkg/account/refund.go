package account

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-serving-ledger/pkg/model"
)

// RequestRefund pledges amount of the account's free balance for withdrawal
// after unlockTime. Processed slots are reused in place before the array
// grows; once all MaxRefundsPerAccount slots hold unprocessed entries the
// request fails with TooManyRefundsError. Returns the slot index used.
func (s *Store) RequestRefund(user, provider common.Address, amount *big.Int, unlockTime int64) (int, error) {
	acc, err := s.get(user, provider)
	if err != nil {
		return 0, err
	}
	available := new(big.Int).Sub(acc.Balance, acc.PendingRefund)
	if amount.Cmp(available) > 0 {
		return 0, model.ErrInsufficientBalance
	}

	slot := -1
	for i := range acc.Refunds {
		if acc.Refunds[i].Processed {
			slot = i
			break
		}
	}
	if slot < 0 {
		if len(acc.Refunds) >= model.MaxRefundsPerAccount {
			return 0, &model.TooManyRefundsError{User: user, Provider: provider}
		}
		acc.Refunds = append(acc.Refunds, model.Refund{Index: len(acc.Refunds), Amount: new(big.Int)})
		slot = len(acc.Refunds) - 1
	}

	r := &acc.Refunds[slot]
	r.Amount = new(big.Int).Set(amount)
	r.UnlockTime = unlockTime
	r.Processed = false
	acc.PendingRefund.Add(acc.PendingRefund, amount)
	return slot, nil
}

// ProcessMatured releases every refund slot whose unlock time has passed,
// debiting the balance and pending total, and returns the sum released.
func (s *Store) ProcessMatured(user, provider common.Address, now int64) (*big.Int, error) {
	acc, err := s.get(user, provider)
	if err != nil {
		return nil, err
	}
	total := new(big.Int)
	for i := range acc.Refunds {
		r := &acc.Refunds[i]
		if r.Processed || r.UnlockTime > now {
			continue
		}
		total.Add(total, r.Amount)
		acc.Balance.Sub(acc.Balance, r.Amount)
		acc.PendingRefund.Sub(acc.PendingRefund, r.Amount)
		r.Amount = new(big.Int)
		r.Processed = true
	}
	s.maybeCompact(acc)
	return total, nil
}

// ProcessRefund releases the named refund slots. The call is all-or-nothing:
// any invalid index or still-locked slot fails the whole batch before funds
// move. Returns the sum released.
func (s *Store) ProcessRefund(user, provider common.Address, indices []int, now int64) (*big.Int, error) {
	acc, err := s.get(user, provider)
	if err != nil {
		return nil, err
	}
	for _, i := range indices {
		if i < 0 || i >= len(acc.Refunds) || acc.Refunds[i].Processed {
			return nil, fmt.Errorf("refund %d: %w", i, model.ErrRefundNotFound)
		}
		if acc.Refunds[i].UnlockTime > now {
			return nil, model.ErrRefundLocked
		}
	}
	total := new(big.Int)
	for _, i := range indices {
		r := &acc.Refunds[i]
		total.Add(total, r.Amount)
		acc.Balance.Sub(acc.Balance, r.Amount)
		acc.PendingRefund.Sub(acc.PendingRefund, r.Amount)
		r.Amount = new(big.Int)
		r.Processed = true
	}
	s.maybeCompact(acc)
	return total, nil
}

// maybeCompact physically drops processed slots once more than
// RefundCleanupThreshold of them have accumulated, reindexing the survivors.
func (s *Store) maybeCompact(acc *model.Account) {
	dirty := 0
	for i := range acc.Refunds {
		if acc.Refunds[i].Processed {
			dirty++
		}
	}
	if dirty <= model.RefundCleanupThreshold {
		return
	}
	kept := acc.Refunds[:0]
	for i := range acc.Refunds {
		if acc.Refunds[i].Processed {
			continue
		}
		r := acc.Refunds[i]
		r.Index = len(kept)
		kept = append(kept, r)
	}
	acc.Refunds = kept
}
