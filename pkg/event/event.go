// Package event defines the observable notifications the ledger emits on
// state changes. Components publish through a Sink; the default sink writes
// structured zap records, and Recorder captures events in memory for tests.
package event

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Event is implemented by every notification type.
type Event interface {
	Kind() string
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(e Event)
}

// BalanceUpdated reports an account's balance and pending refund after a
// deposit, settlement, or refund.
type BalanceUpdated struct {
	User          common.Address
	Provider      common.Address
	Balance       *big.Int
	PendingRefund *big.Int
}

func (BalanceUpdated) Kind() string { return "BalanceUpdated" }

// RefundRequested reports a newly created or reused refund slot.
type RefundRequested struct {
	User      common.Address
	Provider  common.Address
	Index     int
	Timestamp int64
}

func (RefundRequested) Kind() string { return "RefundRequested" }

// ServiceUpdated reports a created or updated service descriptor. Name is
// empty for serving variants with one service per provider.
type ServiceUpdated struct {
	Provider common.Address
	Name     string
}

func (ServiceUpdated) Kind() string { return "ServiceUpdated" }

// ServiceRemoved reports a removed service descriptor.
type ServiceRemoved struct {
	Provider common.Address
	Name     string
}

func (ServiceRemoved) Kind() string { return "ServiceRemoved" }

// SettlementCompleted aggregates the outcome of one settlement batch.
type SettlementCompleted struct {
	Provider  common.Address
	Succeeded int
	Failed    int
}

func (SettlementCompleted) Kind() string { return "SettlementCompleted" }

// SettlementFailed reports one rejected record of a settlement batch.
type SettlementFailed struct {
	Provider common.Address
	User     common.Address
	Reason   string
}

func (SettlementFailed) Kind() string { return "SettlementFailed" }

// ZapSink logs every event as a structured record.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink returns a sink writing to log, or the global logger when log is
// nil.
func NewZapSink(log *zap.Logger) *ZapSink {
	if log == nil {
		log = zap.L()
	}
	return &ZapSink{log: log}
}

func (s *ZapSink) Emit(e Event) {
	switch ev := e.(type) {
	case BalanceUpdated:
		s.log.Info(ev.Kind(),
			zap.String("user", ev.User.Hex()),
			zap.String("provider", ev.Provider.Hex()),
			zap.String("balance", ev.Balance.String()),
			zap.String("pendingRefund", ev.PendingRefund.String()),
		)
	case RefundRequested:
		s.log.Info(ev.Kind(),
			zap.String("user", ev.User.Hex()),
			zap.String("provider", ev.Provider.Hex()),
			zap.Int("index", ev.Index),
			zap.Int64("timestamp", ev.Timestamp),
		)
	case ServiceUpdated:
		s.log.Info(ev.Kind(), zap.String("provider", ev.Provider.Hex()), zap.String("name", ev.Name))
	case ServiceRemoved:
		s.log.Info(ev.Kind(), zap.String("provider", ev.Provider.Hex()), zap.String("name", ev.Name))
	case SettlementCompleted:
		s.log.Info(ev.Kind(),
			zap.String("provider", ev.Provider.Hex()),
			zap.Int("succeeded", ev.Succeeded),
			zap.Int("failed", ev.Failed),
		)
	case SettlementFailed:
		s.log.Warn(ev.Kind(),
			zap.String("provider", ev.Provider.Hex()),
			zap.String("user", ev.User.Hex()),
			zap.String("reason", ev.Reason),
		)
	default:
		s.log.Info(e.Kind())
	}
}

// Recorder captures events for inspection in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a snapshot of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
