package settlement

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-serving-ledger/pkg/account"
	"github.com/0gfoundation/0g-serving-ledger/pkg/model"
	"github.com/0gfoundation/0g-serving-ledger/pkg/registry"
	"github.com/0gfoundation/0g-serving-ledger/pkg/signing"
)

// NonceUsedError rejects a claim whose nonce does not advance past the
// previous one. Want is the smallest acceptable nonce.
type NonceUsedError struct {
	User  common.Address
	Index int
	Want  uint64
	Given uint64
}

func (e *NonceUsedError) Error() string {
	return fmt.Sprintf("request %d of user %s: nonce %d already used, want at least %d", e.Index, e.User.Hex(), e.Given, e.Want)
}

// InvalidRequestError rejects a claim whose signature does not recover to
// the claiming user.
type InvalidRequestError struct {
	User  common.Address
	Index int
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("request %d of user %s: invalid signature", e.Index, e.User.Hex())
}

// ServiceStaleError rejects a claim signed before the service terms were
// last updated: the user never agreed to the current prices.
type ServiceStaleError struct {
	Provider    common.Address
	ServiceName string
	Index       int
}

func (e *ServiceStaleError) Error() string {
	return fmt.Sprintf("request %d: service %q of provider %s updated after the claim was signed", e.Index, e.ServiceName, e.Provider.Hex())
}

// InsufficientBalanceError rejects a trace whose total fee exceeds the
// user's balance.
type InsufficientBalanceError struct {
	User    common.Address
	Amount  *big.Int
	Balance *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("user %s: settlement of %v exceeds balance %v", e.User.Hex(), e.Amount, e.Balance)
}

// ClaimSettler applies claim-chain settlements against an account store and
// the provider's service registry.
type ClaimSettler struct {
	accounts *account.Store
	services *registry.Registry[model.Service]
}

// NewClaimSettler returns a settler over the given stores.
func NewClaimSettler(accounts *account.Store, services *registry.Registry[model.Service]) *ClaimSettler {
	return &ClaimSettler{accounts: accounts, services: services}
}

type userPlan struct {
	fee   *big.Int
	nonce uint64
}

// Settle verifies every trace and applies them atomically: one bad claim or
// one underfunded user rejects the entire batch. Fees and nonces are
// aggregated per user across traces before anything commits, so several
// traces from one user settle against their combined total and a nonce
// spent by one trace cannot be replayed by another. Returns the total fee
// credited to the provider and the per-account balance changes.
func (s *ClaimSettler) Settle(provider common.Address, traces []model.RequestTrace) (*big.Int, []BalanceChange, error) {
	plans := make(map[common.Address]*userPlan)
	var order []common.Address
	for _, trace := range traces {
		if len(trace.Requests) == 0 {
			continue
		}
		user := trace.Requests[0].User
		plan, ok := plans[user]
		if !ok {
			nonce, err := s.accounts.Nonce(user, provider)
			if err != nil {
				return nil, nil, err
			}
			plan = &userPlan{fee: new(big.Int), nonce: nonce}
			plans[user] = plan
			order = append(order, user)
		}
		fee, lastNonce, err := s.planTrace(provider, user, plan.nonce, trace)
		if err != nil {
			return nil, nil, err
		}
		plan.fee.Add(plan.fee, fee)
		plan.nonce = lastNonce
	}

	for _, user := range order {
		plan := plans[user]
		balance := s.accounts.Balance(user, provider)
		if plan.fee.Cmp(balance) > 0 {
			return nil, nil, &InsufficientBalanceError{User: user, Amount: plan.fee, Balance: balance}
		}
	}

	total := new(big.Int)
	changes := make([]BalanceChange, 0, len(order))
	for _, user := range order {
		plan := plans[user]
		balance, pending, err := s.accounts.DebitAndAdvance(user, provider, plan.fee, plan.nonce)
		if err != nil {
			return total, changes, err
		}
		total.Add(total, plan.fee)
		changes = append(changes, BalanceChange{User: user, Balance: balance, PendingRefund: pending})
	}
	return total, changes, nil
}

// planTrace validates one trace and totals its fees without mutating state.
// prevNonce carries the user's watermark, including nonces already claimed
// by earlier traces of the same call; the final nonce is returned.
func (s *ClaimSettler) planTrace(provider, user common.Address, prevNonce uint64, trace model.RequestTrace) (*big.Int, uint64, error) {
	fee := new(big.Int)
	for i, req := range trace.Requests {
		if req.User != user {
			return nil, 0, &InvalidRequestError{User: req.User, Index: i}
		}
		// The nonce gate comes before signature verification so replayed
		// claims fail cheaply.
		if req.Nonce <= prevNonce {
			return nil, 0, &NonceUsedError{User: user, Index: i, Want: prevNonce + 1, Given: req.Nonce}
		}
		entry, err := s.services.Get(provider, req.ServiceName)
		if err != nil {
			return nil, 0, err
		}
		if entry.UpdatedAt > req.CreatedAt {
			return nil, 0, &ServiceStaleError{Provider: provider, ServiceName: req.ServiceName, Index: i}
		}
		digest := signing.RequestHash(provider, user, req.ServiceName, req.InputCount, req.PreviousOutputCount, req.Nonce, req.CreatedAt)
		if err := signing.VerifySigner(digest, req.Signature, user); err != nil {
			return nil, 0, &InvalidRequestError{User: user, Index: i}
		}

		in := new(big.Int).Mul(new(big.Int).SetUint64(req.InputCount), entry.Service.InputPrice)
		out := new(big.Int).Mul(new(big.Int).SetUint64(req.PreviousOutputCount), entry.Service.OutputPrice)
		fee.Add(fee, in)
		fee.Add(fee, out)
		prevNonce = req.Nonce
	}
	return fee, prevNonce, nil
}
