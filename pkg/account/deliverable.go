package account

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-serving-ledger/pkg/model"
)

// AddDeliverable appends a deliverable to the account's ring, creating the
// account if needed. When the ring is full the oldest entry is evicted and
// its id stops resolving.
func (s *Store) AddDeliverable(user, provider common.Address, id common.Hash, modelRootHash []byte) {
	acc := s.getOrCreate(user, provider)
	k := key{user, provider}
	idx := s.deliverableIdx[k]
	if idx == nil {
		idx = make(map[common.Hash]int)
		s.deliverableIdx[k] = idx
	}

	var pos int
	if acc.DeliverablesCount < model.MaxDeliverablesPerAccount {
		pos = (acc.DeliverablesHead + acc.DeliverablesCount) % model.MaxDeliverablesPerAccount
		acc.DeliverablesCount++
	} else {
		pos = acc.DeliverablesHead
		delete(idx, acc.Deliverables[pos].ID)
		acc.DeliverablesHead = (acc.DeliverablesHead + 1) % model.MaxDeliverablesPerAccount
	}

	d := model.Deliverable{ID: id, ModelRootHash: append([]byte(nil), modelRootHash...)}
	if pos < len(acc.Deliverables) {
		acc.Deliverables[pos] = d
	} else {
		acc.Deliverables = append(acc.Deliverables, d)
	}
	idx[id] = pos
}

func (s *Store) deliverable(user, provider common.Address, id common.Hash) (*model.Deliverable, error) {
	acc, err := s.get(user, provider)
	if err != nil {
		return nil, err
	}
	pos, ok := s.deliverableIdx[key{user, provider}][id]
	if !ok {
		return nil, model.ErrDeliverableNotFound
	}
	return &acc.Deliverables[pos], nil
}

// Deliverable returns a copy of the identified deliverable. Evicted ids fail
// with ErrDeliverableNotFound.
func (s *Store) Deliverable(user, provider common.Address, id common.Hash) (model.Deliverable, error) {
	d, err := s.deliverable(user, provider, id)
	if err != nil {
		return model.Deliverable{}, err
	}
	c := *d
	c.ModelRootHash = append([]byte(nil), d.ModelRootHash...)
	c.EncryptedSecret = append([]byte(nil), d.EncryptedSecret...)
	return c, nil
}

// AcknowledgeDeliverable marks the deliverable as accepted by the user,
// enabling full-fee settlement.
func (s *Store) AcknowledgeDeliverable(user, provider common.Address, id common.Hash) error {
	d, err := s.deliverable(user, provider, id)
	if err != nil {
		return err
	}
	d.Acknowledged = true
	return nil
}

// SetDeliverableSecret stores the encrypted model secret revealed on
// settlement of an acknowledged deliverable.
func (s *Store) SetDeliverableSecret(user, provider common.Address, id common.Hash, secret []byte) error {
	d, err := s.deliverable(user, provider, id)
	if err != nil {
		return err
	}
	d.EncryptedSecret = append([]byte(nil), secret...)
	return nil
}
