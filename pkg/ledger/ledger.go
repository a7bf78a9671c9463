// Package ledger implements the user-facing fund ledger that fronts the
// serving variants. A user deposits once into their ledger and moves funds
// from its available balance into per-provider serving accounts; retrieval
// drains those accounts back through the refund lifecycle. Deleting a
// ledger cascades into every serving account the user opened.
package ledger

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-serving-ledger/pkg/model"
)

// Serving is the surface the manager drives on a serving instance. All
// three variants in pkg/serving implement it.
type Serving interface {
	Kind() model.ServingKind
	TransferIn(caller, user, provider common.Address, amount *big.Int) (*big.Int, error)
	RetrieveFund(caller, user common.Address, providers []common.Address) (*big.Int, error)
	DeleteAccount(caller, user, provider common.Address) error
	PendingRefund(user, provider common.Address) *big.Int
}

// Options configures a Manager.
type Options struct {
	// Address identifies the manager when it calls into serving instances;
	// servings must be constructed with this as their owner.
	Address common.Address
	// Logger for operation logging. Nil selects the global logger.
	Logger *zap.Logger
}

// Manager owns the user ledgers and routes fund movements into registered
// serving instances.
type Manager struct {
	mu       sync.Mutex
	addr     common.Address
	ledgers  map[common.Address]*model.Ledger
	order    []common.Address
	servings map[model.ServingKind]Serving
	log      *zap.Logger
}

// NewManager returns a manager with no serving instances registered.
func NewManager(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	return &Manager{
		addr:     opts.Address,
		ledgers:  make(map[common.Address]*model.Ledger),
		servings: make(map[model.ServingKind]Serving),
		log:      log,
	}
}

// Register binds a serving instance to its kind, replacing any previous
// binding.
func (m *Manager) Register(s Serving) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servings[s.Kind()] = s
}

func (m *Manager) serving(kind model.ServingKind) (Serving, error) {
	s, ok := m.servings[kind]
	if !ok {
		return nil, model.ErrUnknownServingKind
	}
	return s, nil
}

func (m *Manager) ledger(user common.Address) (*model.Ledger, error) {
	l, ok := m.ledgers[user]
	if !ok {
		return nil, model.ErrLedgerNotFound
	}
	return l, nil
}

// AddLedger creates the user's ledger with an initial deposit and returns
// its total and available balances.
func (m *Manager) AddLedger(user common.Address, amount *big.Int, signer [2]*big.Int, additionalInfo string) (*big.Int, *big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ledgers[user]; ok {
		return nil, nil, model.ErrLedgerExists
	}
	l := &model.Ledger{
		User:             user,
		TotalBalance:     new(big.Int).Set(amount),
		AvailableBalance: new(big.Int).Set(amount),
		UserSigner:       signer,
		AdditionalInfo:   additionalInfo,
	}
	m.ledgers[user] = l
	m.order = append(m.order, user)
	m.log.Info("ledger created", zap.String("user", user.Hex()), zap.String("amount", amount.String()))
	return new(big.Int).Set(l.TotalBalance), new(big.Int).Set(l.AvailableBalance), nil
}

// DepositFund adds amount to the user's ledger.
func (m *Manager) DepositFund(user common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, err := m.ledger(user)
	if err != nil {
		return err
	}
	l.TotalBalance.Add(l.TotalBalance, amount)
	l.AvailableBalance.Add(l.AvailableBalance, amount)
	return nil
}

// GetLedger returns a copy of the user's ledger.
func (m *Manager) GetLedger(user common.Address) (model.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, err := m.ledger(user)
	if err != nil {
		return model.Ledger{}, err
	}
	return l.Clone(), nil
}

// GetAllLedgers returns a page of every ledger in creation order plus the
// total count.
func (m *Manager) GetAllLedgers(offset, limit int) ([]model.Ledger, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := len(m.order)
	start, end, err := model.PageBounds(total, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.Ledger, 0, end-start)
	for _, u := range m.order[start:end] {
		out = append(out, m.ledgers[u].Clone())
	}
	return out, total, nil
}

// TransferFund moves amount from the user's available balance into their
// (user, provider) account of the given serving kind. Funds already pledged
// for refund in that account are re-committed first, so only the excess
// leaves the ledger.
func (m *Manager) TransferFund(user common.Address, kind model.ServingKind, provider common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, err := m.ledger(user)
	if err != nil {
		return err
	}
	s, err := m.serving(kind)
	if err != nil {
		return err
	}

	pending := s.PendingRefund(user, provider)
	needed := new(big.Int).Set(amount)
	if pending.Cmp(amount) < 0 {
		needed.Sub(amount, pending)
	} else {
		needed.SetInt64(0)
	}
	if needed.Cmp(l.AvailableBalance) > 0 {
		return model.ErrInsufficientBalance
	}

	credited, err := s.TransferIn(m.addr, user, provider, amount)
	if err != nil {
		return err
	}
	l.AvailableBalance.Sub(l.AvailableBalance, credited)
	m.trackProviderLocked(l, kind, provider)
	m.log.Info("fund transferred",
		zap.String("user", user.Hex()),
		zap.String("provider", provider.Hex()),
		zap.String("kind", string(kind)),
		zap.String("amount", amount.String()),
		zap.String("credited", credited.String()),
	)
	return nil
}

// RetrieveFund drains the user's accounts with the given providers of one
// serving kind back toward the ledger: matured pledges return to the
// available balance now, everything else gets pledged for the next call.
func (m *Manager) RetrieveFund(user common.Address, kind model.ServingKind, providers []common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, err := m.ledger(user)
	if err != nil {
		return nil, err
	}
	s, err := m.serving(kind)
	if err != nil {
		return nil, err
	}
	released, err := s.RetrieveFund(m.addr, user, providers)
	if err != nil {
		return nil, err
	}
	l.AvailableBalance.Add(l.AvailableBalance, released)
	return released, nil
}

// Refund withdraws amount from the user's available balance out of the
// ledger.
func (m *Manager) Refund(user common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, err := m.ledger(user)
	if err != nil {
		return err
	}
	if amount.Cmp(l.AvailableBalance) > 0 {
		return model.ErrInsufficientBalance
	}
	l.TotalBalance.Sub(l.TotalBalance, amount)
	l.AvailableBalance.Sub(l.AvailableBalance, amount)
	return nil
}

// DeleteLedger removes the user's ledger and cascades into every serving
// account they opened. Funds still inside serving accounts are forfeited.
func (m *Manager) DeleteLedger(user common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, err := m.ledger(user)
	if err != nil {
		return err
	}
	if s, ok := m.servings[model.ServingKindInference]; ok {
		for _, p := range l.InferenceProviders {
			if err := s.DeleteAccount(m.addr, user, p); err != nil {
				return err
			}
		}
	}
	if s, ok := m.servings[model.ServingKindFineTuning]; ok {
		for _, p := range l.FineTuningProviders {
			if err := s.DeleteAccount(m.addr, user, p); err != nil {
				return err
			}
		}
	}
	delete(m.ledgers, user)
	for i, u := range m.order {
		if u == user {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.log.Info("ledger deleted", zap.String("user", user.Hex()))
	return nil
}

// trackProviderLocked records the provider in the ledger's per-kind list so
// deletion can cascade. Duplicates are skipped.
func (m *Manager) trackProviderLocked(l *model.Ledger, kind model.ServingKind, provider common.Address) {
	list := &l.InferenceProviders
	if kind == model.ServingKindFineTuning {
		list = &l.FineTuningProviders
	}
	for _, p := range *list {
		if p == provider {
			return
		}
	}
	*list = append(*list, provider)
}
