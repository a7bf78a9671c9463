// Package serving implements the three serving ledgers of the marketplace:
// the generic claim-chain variant with named services, the inference variant
// settled by TEE-signed batches, and the fine-tuning variant settled per
// task with deliverable tracking. Each variant wraps a shared base that owns
// the account store, the refund lifecycle, and the fund flows driven by the
// ledger manager.
package serving

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-serving-ledger/pkg/account"
	"github.com/0gfoundation/0g-serving-ledger/pkg/config"
	"github.com/0gfoundation/0g-serving-ledger/pkg/event"
	"github.com/0gfoundation/0g-serving-ledger/pkg/model"
)

// Options configures a serving instance.
type Options struct {
	// Owner is the address allowed to drive ledger-side fund flows
	// (TransferIn, RetrieveFund, DeleteAccount). Usually the ledger
	// manager's address.
	Owner common.Address
	// LockTime is the refund delay in seconds. Zero selects
	// config.DefaultLockTime.
	LockTime uint64
	// PenaltyPercentage is the provider's share, 0-100, of the task fee for
	// unacknowledged fine-tuning deliverables. Zero selects
	// config.DefaultPenaltyPercentage. Ignored by the other variants.
	PenaltyPercentage uint64
	// Clock returns the current unix time. Nil selects the wall clock;
	// tests inject their own.
	Clock func() int64
	// Sink receives state-change events. Nil selects a zap-backed sink.
	Sink event.Sink
	// Logger backs the default sink. Nil selects the global logger.
	Logger *zap.Logger
}

func (o *Options) withDefaults() {
	if o.LockTime == 0 {
		o.LockTime = config.DefaultLockTime
	}
	if o.PenaltyPercentage == 0 {
		o.PenaltyPercentage = config.DefaultPenaltyPercentage
	}
	if o.Clock == nil {
		o.Clock = func() int64 { return time.Now().Unix() }
	}
	if o.Sink == nil {
		o.Sink = event.NewZapSink(o.Logger)
	}
}

// base carries the state and fund flows shared by every serving variant.
// Exported methods take the mutex; unexported ...Locked helpers assume it is
// held.
type base struct {
	mu       sync.Mutex
	owner    common.Address
	lockTime uint64
	clock    func() int64
	sink     event.Sink
	accounts *account.Store
	earnings map[common.Address]*big.Int
}

func newBase(opts Options) *base {
	opts.withDefaults()
	return &base{
		owner:    opts.Owner,
		lockTime: opts.LockTime,
		clock:    opts.Clock,
		sink:     opts.Sink,
		accounts: account.NewStore(),
		earnings: make(map[common.Address]*big.Int),
	}
}

func (b *base) requireOwner(caller common.Address) error {
	if caller != b.owner {
		return model.ErrUnauthorized
	}
	return nil
}

// UpdateLockTime changes the refund delay for future requests. Owner only;
// already-pledged refunds keep their original unlock time.
func (b *base) UpdateLockTime(caller common.Address, lockTime uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireOwner(caller); err != nil {
		return err
	}
	b.lockTime = lockTime
	return nil
}

// LockTime returns the current refund delay in seconds.
func (b *base) LockTime() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lockTime
}

// TransferIn moves amount from the user's ledger into the (user, provider)
// account on behalf of the ledger manager. Pending refunds are cancelled
// first; only the excess is freshly credited, and that excess is returned so
// the manager can charge it against the user's available balance.
func (b *base) TransferIn(caller, user, provider common.Address, amount *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireOwner(caller); err != nil {
		return nil, err
	}
	pending := b.accounts.PendingRefund(user, provider)
	cancel := new(big.Int).Set(amount)
	if cancel.Cmp(pending) > 0 {
		cancel.Set(pending)
	}
	credit := new(big.Int).Sub(amount, cancel)
	balance, pendingAfter := b.accounts.Credit(user, provider, credit, cancel)
	b.sink.Emit(event.BalanceUpdated{User: user, Provider: provider, Balance: balance, PendingRefund: pendingAfter})
	return credit, nil
}

// DepositFund credits amount directly to the caller's (user, provider)
// account, cancelling pending refunds up to the deposited amount. Unlike
// TransferIn, cancelled refunds do not reduce the credit: the user pays the
// full amount in.
func (b *base) DepositFund(user, provider common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending := b.accounts.PendingRefund(user, provider)
	cancel := new(big.Int).Set(amount)
	if cancel.Cmp(pending) > 0 {
		cancel.Set(pending)
	}
	balance, pendingAfter := b.accounts.Credit(user, provider, amount, cancel)
	b.sink.Emit(event.BalanceUpdated{User: user, Provider: provider, Balance: balance, PendingRefund: pendingAfter})
	return nil
}

// RequestRefund pledges amount of the caller's free balance for withdrawal
// once the lock time elapses.
func (b *base) RequestRefund(user, provider common.Address, amount *big.Int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock()
	index, err := b.accounts.RequestRefund(user, provider, amount, now+int64(b.lockTime))
	if err != nil {
		return 0, err
	}
	b.sink.Emit(event.RefundRequested{User: user, Provider: provider, Index: index, Timestamp: now})
	return index, nil
}

// ProcessRefund releases the named refund slots once their unlock time has
// passed and returns the total released to the user.
func (b *base) ProcessRefund(user, provider common.Address, indices []int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	total, err := b.accounts.ProcessRefund(user, provider, indices, b.clock())
	if err != nil {
		return nil, err
	}
	b.emitBalanceLocked(user, provider)
	return total, nil
}

// RetrieveFund drains the (user, provider) accounts back toward the ledger
// on behalf of the ledger manager: matured refund slots are released
// immediately, and whatever balance is not yet pledged gets pledged as a
// fresh refund request. The sum released now is returned. Calling again
// before the new pledges unlock releases nothing further.
func (b *base) RetrieveFund(caller, user common.Address, providers []common.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireOwner(caller); err != nil {
		return nil, err
	}
	now := b.clock()
	total := new(big.Int)
	for _, provider := range providers {
		if !b.accounts.Exists(user, provider) {
			continue
		}
		released, err := b.accounts.ProcessMatured(user, provider, now)
		if err != nil {
			return nil, err
		}
		total.Add(total, released)

		free := b.accounts.Balance(user, provider)
		free.Sub(free, b.accounts.PendingRefund(user, provider))
		if free.Sign() > 0 {
			index, err := b.accounts.RequestRefund(user, provider, free, now+int64(b.lockTime))
			if err != nil {
				return nil, err
			}
			b.sink.Emit(event.RefundRequested{User: user, Provider: provider, Index: index, Timestamp: now})
		}
		b.emitBalanceLocked(user, provider)
	}
	return total, nil
}

// DeleteAccount removes the (user, provider) account on behalf of the
// ledger manager. Missing accounts are ignored.
func (b *base) DeleteAccount(caller, user, provider common.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireOwner(caller); err != nil {
		return err
	}
	b.accounts.Delete(user, provider)
	return nil
}

func (b *base) emitBalanceLocked(user, provider common.Address) {
	b.sink.Emit(event.BalanceUpdated{
		User:          user,
		Provider:      provider,
		Balance:       b.accounts.Balance(user, provider),
		PendingRefund: b.accounts.PendingRefund(user, provider),
	})
}

func (b *base) addEarningsLocked(provider common.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	e, ok := b.earnings[provider]
	if !ok {
		e = new(big.Int)
		b.earnings[provider] = e
	}
	e.Add(e, amount)
}

// Earnings returns the total fees the provider has settled so far.
func (b *base) Earnings(provider common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.earnings[provider]; ok {
		return new(big.Int).Set(e)
	}
	return new(big.Int)
}

// PendingRefund returns the account's pending refund total, zero for
// missing accounts. The ledger manager uses it to size transfers.
func (b *base) PendingRefund(user, provider common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts.PendingRefund(user, provider)
}

// AccountExists reports whether the (user, provider) account exists.
func (b *base) AccountExists(user, provider common.Address) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts.Exists(user, provider)
}

// GetAccount returns a copy of the (user, provider) account.
func (b *base) GetAccount(user, provider common.Address) (model.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts.Snapshot(user, provider)
}

// GetAllAccounts returns a page of every account plus the total count.
func (b *base) GetAllAccounts(offset, limit int) ([]model.Account, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts.All(offset, limit)
}

// GetAccountsByProvider returns a page of the provider's accounts plus
// their total count.
func (b *base) GetAccountsByProvider(provider common.Address, offset, limit int) ([]model.Account, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts.ByProvider(provider, offset, limit)
}

// GetAccountsByUser returns a page of the user's accounts plus their total
// count.
func (b *base) GetAccountsByUser(user common.Address, offset, limit int) ([]model.Account, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts.ByUser(user, offset, limit)
}

// GetBatchAccountsByUsers returns the provider's accounts for the given
// users, zero-filled where no account exists.
func (b *base) GetBatchAccountsByUsers(provider common.Address, users []common.Address) []model.Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts.BatchByUsers(provider, users)
}
