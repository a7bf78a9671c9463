package serving

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-serving-ledger/pkg/event"
	"github.com/0gfoundation/0g-serving-ledger/pkg/model"
	"github.com/0gfoundation/0g-serving-ledger/pkg/registry"
	"github.com/0gfoundation/0g-serving-ledger/pkg/settlement"
)

// InferenceServing is the TEE-settled inference variant: one service per
// provider, fees computed inside the provider's enclave and settled in
// batches with per-record failure isolation.
type InferenceServing struct {
	*base
	services *registry.Registry[model.InferenceService]
	settler  *settlement.TEESettler
}

// NewInference returns an inference serving instance.
func NewInference(opts Options) *InferenceServing {
	b := newBase(opts)
	return &InferenceServing{
		base:     b,
		services: registry.New[model.InferenceService](),
		settler:  settlement.NewTEESettler(b.accounts),
	}
}

// Kind identifies this variant to the ledger manager.
func (s *InferenceServing) Kind() model.ServingKind { return model.ServingKindInference }

// AddOrUpdateService publishes or replaces the provider's descriptor.
func (s *InferenceServing) AddOrUpdateService(svc model.InferenceService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services.Put(svc.Provider, "", svc, s.clock())
	s.sink.Emit(event.ServiceUpdated{Provider: svc.Provider})
}

// RemoveService withdraws the provider's descriptor.
func (s *InferenceServing) RemoveService(provider common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.services.Remove(provider, ""); err != nil {
		return err
	}
	s.sink.Emit(event.ServiceRemoved{Provider: provider})
	return nil
}

// GetService returns the provider's descriptor.
func (s *InferenceServing) GetService(provider common.Address) (model.InferenceService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.services.Get(provider, "")
	if err != nil {
		return model.InferenceService{}, err
	}
	return e.Service, nil
}

// GetAllServices returns a page of every descriptor plus the total count.
func (s *InferenceServing) GetAllServices(offset, limit int) ([]model.InferenceService, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.services.List(offset, limit)
}

// AcknowledgeTEESigner records the enclave signer the user trusts for the
// provider. Settlements for the account verify against this address.
func (s *InferenceServing) AcknowledgeTEESigner(user, provider, signer common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts.AcknowledgeTEESigner(user, provider, signer)
}

// SettleFeesWithTEE applies a batch of enclave-signed settlements for the
// provider. Bad records are reported in the results and skipped; the total
// fee collected from the rest is returned.
func (s *InferenceServing) SettleFeesWithTEE(provider common.Address, batch []model.TEESettlement) (*big.Int, []settlement.TEEResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total, changes, results, err := s.settler.Settle(provider, batch)
	if err != nil {
		return nil, nil, err
	}
	s.addEarningsLocked(provider, total)
	for _, c := range changes {
		s.sink.Emit(event.BalanceUpdated{User: c.User, Provider: provider, Balance: c.Balance, PendingRefund: c.PendingRefund})
	}
	failed := 0
	for _, r := range results {
		if r.Reason != "" {
			failed++
			s.sink.Emit(event.SettlementFailed{Provider: provider, User: r.User, Reason: r.Reason})
		}
	}
	s.sink.Emit(event.SettlementCompleted{Provider: provider, Succeeded: len(results) - failed, Failed: failed})
	return total, results, nil
}
