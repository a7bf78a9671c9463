package serving

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-serving-ledger/pkg/event"
	"github.com/0gfoundation/0g-serving-ledger/pkg/model"
	"github.com/0gfoundation/0g-serving-ledger/pkg/registry"
	"github.com/0gfoundation/0g-serving-ledger/pkg/settlement"
)

// FineTuningServing is the per-task fine-tuning variant: one service per
// provider, deliverables tracked per account, and enclave-signed settlement
// that pays the full task fee for acknowledged deliverables and a penalty
// share otherwise.
type FineTuningServing struct {
	*base
	services *registry.Registry[model.FineTuningService]
	settler  *settlement.VerifierSettler
}

// NewFineTuning returns a fine-tuning serving instance.
func NewFineTuning(opts Options) *FineTuningServing {
	b := newBase(opts)
	opts.withDefaults()
	return &FineTuningServing{
		base:     b,
		services: registry.New[model.FineTuningService](),
		settler:  settlement.NewVerifierSettler(b.accounts, opts.PenaltyPercentage),
	}
}

// Kind identifies this variant to the ledger manager.
func (s *FineTuningServing) Kind() model.ServingKind { return model.ServingKindFineTuning }

// UpdatePenaltyPercentage changes the provider share, 0-100, applied to
// unacknowledged deliverables. Owner only.
func (s *FineTuningServing) UpdatePenaltyPercentage(caller common.Address, pct uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if pct > 100 {
		return fmt.Errorf("penalty percentage %d exceeds 100", pct)
	}
	s.settler.SetPenaltyPercentage(pct)
	return nil
}

// AddOrUpdateService publishes or replaces the provider's descriptor.
func (s *FineTuningServing) AddOrUpdateService(svc model.FineTuningService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services.Put(svc.Provider, "", svc, s.clock())
	s.sink.Emit(event.ServiceUpdated{Provider: svc.Provider})
}

// RemoveService withdraws the provider's descriptor.
func (s *FineTuningServing) RemoveService(provider common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.services.Remove(provider, ""); err != nil {
		return err
	}
	s.sink.Emit(event.ServiceRemoved{Provider: provider})
	return nil
}

// GetService returns the provider's descriptor.
func (s *FineTuningServing) GetService(provider common.Address) (model.FineTuningService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.services.Get(provider, "")
	if err != nil {
		return model.FineTuningService{}, err
	}
	return e.Service, nil
}

// GetAllServices returns a page of every descriptor plus the total count.
func (s *FineTuningServing) GetAllServices(offset, limit int) ([]model.FineTuningService, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.services.List(offset, limit)
}

// UpdateServiceOccupancy flips the provider's occupancy flag without
// restamping the descriptor, so in-flight agreements stay valid.
func (s *FineTuningServing) UpdateServiceOccupancy(provider common.Address, occupied bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.services.Update(provider, "", func(svc *model.FineTuningService) {
		svc.Occupied = occupied
	})
}

// AcknowledgeProviderSigner records that the user trusts the enclave signer
// currently published in the provider's descriptor.
func (s *FineTuningServing) AcknowledgeProviderSigner(user, provider common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.services.Get(provider, "")
	if err != nil {
		return err
	}
	return s.accounts.AcknowledgeTEESigner(user, provider, e.Service.ProviderSigner)
}

// AddDeliverable records a trained model root for the (user, provider)
// account. The ring holds the most recent entries; older ones fall off.
func (s *FineTuningServing) AddDeliverable(provider, user common.Address, id common.Hash, modelRootHash []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts.AddDeliverable(user, provider, id, modelRootHash)
}

// AcknowledgeDeliverable marks the deliverable as accepted by the user,
// committing them to the full task fee on settlement.
func (s *FineTuningServing) AcknowledgeDeliverable(user, provider common.Address, id common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts.AcknowledgeDeliverable(user, provider, id)
}

// GetDeliverable returns the identified deliverable.
func (s *FineTuningServing) GetDeliverable(user, provider common.Address, id common.Hash) (model.Deliverable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts.Deliverable(user, provider, id)
}

// SettleFees applies one enclave-signed settlement record for the provider
// and returns the fee collected.
func (s *FineTuningServing) SettleFees(provider common.Address, input model.VerifierInput) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fee, change, err := s.settler.Settle(provider, input)
	if err != nil {
		s.sink.Emit(event.SettlementFailed{Provider: provider, User: input.User, Reason: err.Error()})
		return nil, err
	}
	s.addEarningsLocked(provider, fee)
	s.sink.Emit(event.BalanceUpdated{User: change.User, Provider: provider, Balance: change.Balance, PendingRefund: change.PendingRefund})
	s.sink.Emit(event.SettlementCompleted{Provider: provider, Succeeded: 1})
	return fee, nil
}
