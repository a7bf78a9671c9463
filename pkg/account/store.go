// Package account implements the per-serving-instance store of
// (user, provider) sub-accounts: balances, the bounded refund slot array
// with in-place reuse, and the bounded deliverable ring with oldest-first
// eviction. The store enforces structural invariants only; authorization is
// the caller's concern, and callers serialize access per instance.
package account

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-serving-ledger/pkg/model"
)

type key struct {
	user     common.Address
	provider common.Address
}

// Store holds every account of one serving instance. It is not safe for
// concurrent use; the owning serving instance serializes calls.
type Store struct {
	accounts map[key]*model.Account
	order    []key
	// deliverableIdx maps deliverable ids to ring positions per account.
	// Evicted ids are removed, which is what makes them unfetchable.
	deliverableIdx map[key]map[common.Hash]int
}

// NewStore returns an empty account store.
func NewStore() *Store {
	return &Store{
		accounts:       make(map[key]*model.Account),
		deliverableIdx: make(map[key]map[common.Hash]int),
	}
}

func (s *Store) get(user, provider common.Address) (*model.Account, error) {
	acc, ok := s.accounts[key{user, provider}]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return acc, nil
}

func (s *Store) getOrCreate(user, provider common.Address) *model.Account {
	k := key{user, provider}
	if acc, ok := s.accounts[k]; ok {
		return acc
	}
	acc := &model.Account{
		User:          user,
		Provider:      provider,
		Balance:       new(big.Int),
		PendingRefund: new(big.Int),
	}
	s.accounts[k] = acc
	s.order = append(s.order, k)
	return acc
}

// Exists reports whether the (user, provider) account has been created.
func (s *Store) Exists(user, provider common.Address) bool {
	_, ok := s.accounts[key{user, provider}]
	return ok
}

// Snapshot returns a deep copy of the account.
func (s *Store) Snapshot(user, provider common.Address) (model.Account, error) {
	acc, err := s.get(user, provider)
	if err != nil {
		return model.Account{}, err
	}
	return acc.Clone(), nil
}

// Delete removes the account and its deliverable index. Missing accounts are
// ignored so cascade deletion stays idempotent.
func (s *Store) Delete(user, provider common.Address) {
	k := key{user, provider}
	if _, ok := s.accounts[k]; !ok {
		return
	}
	delete(s.accounts, k)
	delete(s.deliverableIdx, k)
	for i, o := range s.order {
		if o == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of accounts.
func (s *Store) Len() int { return len(s.order) }

// All returns a page of every account in creation order plus the total
// count.
func (s *Store) All(offset, limit int) ([]model.Account, int, error) {
	return s.page(s.order, offset, limit)
}

// ByProvider returns a page of the provider's accounts plus their total
// count.
func (s *Store) ByProvider(provider common.Address, offset, limit int) ([]model.Account, int, error) {
	var keys []key
	for _, k := range s.order {
		if k.provider == provider {
			keys = append(keys, k)
		}
	}
	return s.page(keys, offset, limit)
}

// ByUser returns a page of the user's accounts plus their total count.
func (s *Store) ByUser(user common.Address, offset, limit int) ([]model.Account, int, error) {
	var keys []key
	for _, k := range s.order {
		if k.user == user {
			keys = append(keys, k)
		}
	}
	return s.page(keys, offset, limit)
}

func (s *Store) page(keys []key, offset, limit int) ([]model.Account, int, error) {
	total := len(keys)
	start, end, err := model.PageBounds(total, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.Account, 0, end-start)
	for _, k := range keys[start:end] {
		out = append(out, s.accounts[k].Clone())
	}
	return out, total, nil
}

// BatchByUsers returns the provider's accounts for the given users in input
// order. Missing users yield a zero-valued placeholder instead of an error,
// so providers can sweep balances without filtering their user list first.
func (s *Store) BatchByUsers(provider common.Address, users []common.Address) []model.Account {
	out := make([]model.Account, len(users))
	for i, u := range users {
		if acc, ok := s.accounts[key{u, provider}]; ok {
			out[i] = acc.Clone()
			continue
		}
		out[i] = model.Account{Balance: new(big.Int), PendingRefund: new(big.Int)}
	}
	return out
}

// Balance returns a copy of the account balance, zero for missing accounts.
func (s *Store) Balance(user, provider common.Address) *big.Int {
	if acc, err := s.get(user, provider); err == nil {
		return new(big.Int).Set(acc.Balance)
	}
	return new(big.Int)
}

// PendingRefund returns a copy of the pending refund total, zero for missing
// accounts.
func (s *Store) PendingRefund(user, provider common.Address) *big.Int {
	if acc, err := s.get(user, provider); err == nil {
		return new(big.Int).Set(acc.PendingRefund)
	}
	return new(big.Int)
}

// Nonce returns the account's replay-protection watermark.
func (s *Store) Nonce(user, provider common.Address) (uint64, error) {
	acc, err := s.get(user, provider)
	if err != nil {
		return 0, err
	}
	return acc.Nonce, nil
}

// Credit cancels up to cancel from the pending refunds and then adds credit
// to the balance, creating the account if needed. Cancellation walks slots
// in index order, reducing the earliest unprocessed slot first; a slot whose
// amount reaches zero is marked processed and free for reuse. The new
// balance and pending refund are returned for event emission.
func (s *Store) Credit(user, provider common.Address, credit, cancel *big.Int) (balance, pending *big.Int) {
	acc := s.getOrCreate(user, provider)
	if cancel != nil && cancel.Sign() > 0 {
		s.cancelRefunds(acc, cancel)
	}
	if credit != nil && credit.Sign() > 0 {
		acc.Balance.Add(acc.Balance, credit)
	}
	return new(big.Int).Set(acc.Balance), new(big.Int).Set(acc.PendingRefund)
}

func (s *Store) cancelRefunds(acc *model.Account, amount *big.Int) {
	remaining := new(big.Int).Set(amount)
	if remaining.Cmp(acc.PendingRefund) > 0 {
		remaining.Set(acc.PendingRefund)
	}
	cancelled := new(big.Int).Set(remaining)
	for i := range acc.Refunds {
		if remaining.Sign() == 0 {
			break
		}
		slot := &acc.Refunds[i]
		if slot.Processed {
			continue
		}
		if slot.Amount.Cmp(remaining) <= 0 {
			remaining.Sub(remaining, slot.Amount)
			slot.Amount = new(big.Int)
			slot.Processed = true
			continue
		}
		slot.Amount.Sub(slot.Amount, remaining)
		remaining.SetInt64(0)
	}
	acc.PendingRefund.Sub(acc.PendingRefund, cancelled)
}

// DebitAndAdvance atomically checks the balance against fee, debits it, and
// commits the nonce watermark. Used by the settlement engines so a record
// either fully applies or leaves the account untouched.
func (s *Store) DebitAndAdvance(user, provider common.Address, fee *big.Int, nonce uint64) (balance, pending *big.Int, err error) {
	acc, err := s.get(user, provider)
	if err != nil {
		return nil, nil, err
	}
	if fee.Cmp(acc.Balance) > 0 {
		return nil, nil, model.ErrInsufficientBalance
	}
	acc.Balance.Sub(acc.Balance, fee)
	acc.Nonce = nonce
	// Keep the invariant pendingRefund <= balance: settlement consumes
	// pledged funds last, shrinking the pending total when it must.
	if acc.PendingRefund.Cmp(acc.Balance) > 0 {
		over := new(big.Int).Sub(acc.PendingRefund, acc.Balance)
		s.cancelRefunds(acc, over)
	}
	return new(big.Int).Set(acc.Balance), new(big.Int).Set(acc.PendingRefund), nil
}

// AcknowledgeTEESigner records the settlement signer the user trusts for
// this provider.
func (s *Store) AcknowledgeTEESigner(user, provider, signer common.Address) error {
	acc, err := s.get(user, provider)
	if err != nil {
		return err
	}
	acc.TEESigner = signer
	acc.TEESignerAcknowledged = true
	return nil
}

// TEESigner returns the acknowledged signer for the account.
func (s *Store) TEESigner(user, provider common.Address) (common.Address, bool, error) {
	acc, err := s.get(user, provider)
	if err != nil {
		return common.Address{}, false, err
	}
	return acc.TEESigner, acc.TEESignerAcknowledged, nil
}
