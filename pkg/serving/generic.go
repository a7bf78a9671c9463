package serving

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-serving-ledger/pkg/event"
	"github.com/0gfoundation/0g-serving-ledger/pkg/model"
	"github.com/0gfoundation/0g-serving-ledger/pkg/registry"
	"github.com/0gfoundation/0g-serving-ledger/pkg/settlement"
)

// Serving is the generic claim-chain variant: providers publish any number
// of named services and settle ordered traces of user-signed usage claims.
type Serving struct {
	*base
	services *registry.Registry[model.Service]
	settler  *settlement.ClaimSettler
}

// New returns a generic serving instance.
func New(opts Options) *Serving {
	b := newBase(opts)
	services := registry.New[model.Service]()
	return &Serving{
		base:     b,
		services: services,
		settler:  settlement.NewClaimSettler(b.accounts, services),
	}
}

// Kind identifies this variant to the ledger manager.
func (s *Serving) Kind() model.ServingKind { return model.ServingKindInference }

// AddOrUpdateService publishes or replaces the (provider, name) service
// descriptor. Updating stamps the entry, which invalidates claims signed
// against the old terms.
func (s *Serving) AddOrUpdateService(svc model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services.Put(svc.Provider, svc.Name, svc, s.clock())
	s.sink.Emit(event.ServiceUpdated{Provider: svc.Provider, Name: svc.Name})
}

// RemoveService withdraws the (provider, name) descriptor.
func (s *Serving) RemoveService(provider common.Address, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.services.Remove(provider, name); err != nil {
		return err
	}
	s.sink.Emit(event.ServiceRemoved{Provider: provider, Name: name})
	return nil
}

// GetService returns the (provider, name) descriptor.
func (s *Serving) GetService(provider common.Address, name string) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.services.Get(provider, name)
	if err != nil {
		return model.Service{}, err
	}
	return e.Service, nil
}

// GetAllServices returns a page of every descriptor plus the total count.
func (s *Serving) GetAllServices(offset, limit int) ([]model.Service, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.services.List(offset, limit)
}

// GetServicesByProvider returns every descriptor the provider registered.
func (s *Serving) GetServicesByProvider(provider common.Address) []model.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.services.ByProvider(provider)
}

// SettleFees applies the provider's claim traces all-or-nothing and returns
// the total fee collected.
func (s *Serving) SettleFees(provider common.Address, traces []model.RequestTrace) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total, changes, err := s.settler.Settle(provider, traces)
	if err != nil {
		return nil, err
	}
	s.addEarningsLocked(provider, total)
	for _, c := range changes {
		s.sink.Emit(event.BalanceUpdated{User: c.User, Provider: provider, Balance: c.Balance, PendingRefund: c.PendingRefund})
	}
	s.sink.Emit(event.SettlementCompleted{Provider: provider, Succeeded: len(changes)})
	return total, nil
}
