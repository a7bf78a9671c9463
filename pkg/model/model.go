package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ServingKind names a serving instance registered with the ledger manager.
// The values match the service-type strings users pass to transferFund and
// retrieveFund.
type ServingKind string

const (
	ServingKindInference  ServingKind = "inference"
	ServingKindFineTuning ServingKind = "fine-tuning"
)

const (
	// MaxRefundsPerAccount bounds the refund slot array of one account.
	// Requesting a refund when every slot holds an unprocessed entry fails
	// with TooManyRefundsError.
	MaxRefundsPerAccount = 30

	// RefundCleanupThreshold is the number of processed (dirty) refund slots
	// above which the slot array is physically compacted after processing.
	RefundCleanupThreshold = 10

	// MaxDeliverablesPerAccount bounds the deliverable ring of one account.
	// Inserting past the bound evicts the oldest entry.
	MaxDeliverablesPerAccount = 20

	// MaxPageLimit caps the limit argument of every paginated listing.
	MaxPageLimit = 50
)

// Refund is one slot of an account's refund array. UnlockTime is absolute
// and fixed when the refund is requested; a later lock-time change does not
// move it. Processed slots are dirty and eligible for in-place reuse.
type Refund struct {
	Index      int
	Amount     *big.Int
	UnlockTime int64
	Processed  bool
}

// Deliverable is one entry of a fine-tuning account's circular deliverable
// buffer. EncryptedSecret is filled on successful settlement of the
// acknowledged path.
type Deliverable struct {
	ID              common.Hash
	ModelRootHash   []byte
	EncryptedSecret []byte
	Acknowledged    bool
}

// Account is the sub-balance record of one (user, provider) pair inside a
// serving instance. Nonce is the replay-protection watermark: settlements
// commit only nonces strictly above it.
type Account struct {
	User          common.Address
	Provider      common.Address
	Nonce         uint64
	Balance       *big.Int
	PendingRefund *big.Int
	Refunds       []Refund

	// TEESigner is the settlement signer the user acknowledged for this
	// provider. Zero until acknowledged.
	TEESigner             common.Address
	TEESignerAcknowledged bool

	Deliverables      []Deliverable
	DeliverablesHead  int
	DeliverablesCount int
}

// Clone returns a deep copy safe to hand to callers.
func (a *Account) Clone() Account {
	c := *a
	c.Balance = new(big.Int).Set(a.Balance)
	c.PendingRefund = new(big.Int).Set(a.PendingRefund)
	c.Refunds = make([]Refund, len(a.Refunds))
	for i, r := range a.Refunds {
		c.Refunds[i] = r
		c.Refunds[i].Amount = new(big.Int).Set(r.Amount)
	}
	c.Deliverables = make([]Deliverable, len(a.Deliverables))
	for i, d := range a.Deliverables {
		c.Deliverables[i] = d
		c.Deliverables[i].ModelRootHash = append([]byte(nil), d.ModelRootHash...)
		c.Deliverables[i].EncryptedSecret = append([]byte(nil), d.EncryptedSecret...)
	}
	return c
}

// Service is a provider-published descriptor in the generic serving variant,
// keyed by (provider, name) so one provider can expose several services.
type Service struct {
	Provider    common.Address
	Name        string
	ServiceType string
	URL         string
	InputPrice  *big.Int
	OutputPrice *big.Int
	UpdatedAt   int64
}

// InferenceService is the descriptor of the inference serving variant, one
// per provider.
type InferenceService struct {
	Provider       common.Address
	ServiceType    string
	URL            string
	Model          string
	Verifiability  string
	AdditionalInfo string
	InputPrice     *big.Int
	OutputPrice    *big.Int
	UpdatedAt      int64
}

// Quota describes the hardware a fine-tuning provider commits to a task.
type Quota struct {
	CPUCount    uint64
	NodeMemory  uint64
	GPUCount    uint64
	NodeStorage uint64
	GPUType     string
}

// FineTuningService is the descriptor of the fine-tuning serving variant,
// one per provider. ProviderSigner is the TEE-held key that signs settlement
// records; users must acknowledge it before settlement can consume their
// balance.
type FineTuningService struct {
	Provider       common.Address
	URL            string
	Quota          Quota
	PricePerToken  *big.Int
	ProviderSigner common.Address
	Occupied       bool
	Models         []string
	UpdatedAt      int64
}

// Ledger is a user's top-level record in the ledger manager. UserSigner and
// AdditionalInfo are opaque metadata retained from the zero-knowledge
// settlement era. The provider slices track which serving accounts the user
// holds, so deleteLedger can cascade.
type Ledger struct {
	User                common.Address
	TotalBalance        *big.Int
	AvailableBalance    *big.Int
	UserSigner          [2]*big.Int
	AdditionalInfo      string
	InferenceProviders  []common.Address
	FineTuningProviders []common.Address
}

// Clone returns a deep copy safe to hand to callers.
func (l *Ledger) Clone() Ledger {
	c := *l
	c.TotalBalance = new(big.Int).Set(l.TotalBalance)
	c.AvailableBalance = new(big.Int).Set(l.AvailableBalance)
	if l.UserSigner[0] != nil {
		c.UserSigner[0] = new(big.Int).Set(l.UserSigner[0])
	}
	if l.UserSigner[1] != nil {
		c.UserSigner[1] = new(big.Int).Set(l.UserSigner[1])
	}
	c.InferenceProviders = append([]common.Address(nil), l.InferenceProviders...)
	c.FineTuningProviders = append([]common.Address(nil), l.FineTuningProviders...)
	return c
}

// Request is a single user-signed usage claim of the claim-chain settlement
// protocol. PreviousOutputCount links the claim to the response of the
// previous request in the trace.
type Request struct {
	User                common.Address
	ServiceName         string
	InputCount          uint64
	PreviousOutputCount uint64
	CreatedAt           int64
	Nonce               uint64
	Signature           []byte
}

// RequestTrace is an ordered sequence of claims from one user to the
// settling provider.
type RequestTrace struct {
	Requests []Request
}

// TEESettlement is one record of a TEE-signed settlement batch. RequestsHash
// commits to the off-chain request log the fee was computed from.
type TEESettlement struct {
	User         common.Address
	Provider     common.Address
	TotalFee     *big.Int
	RequestsHash common.Hash
	Nonce        uint64
	Signature    []byte
}

// VerifierInput is the TEE-signed settlement record of the fine-tuning
// variant. An empty EncryptedSecret marks the unacknowledged-deliverable
// path, settled at the penalty rate.
type VerifierInput struct {
	TaskFee         *big.Int
	EncryptedSecret []byte
	ModelRootHash   []byte
	ID              common.Hash
	Nonce           uint64
	ProviderSigner  common.Address
	User            common.Address
	Signature       []byte
}

// PageBounds validates a (offset, limit) pair against total and returns the
// half-open index range to return. limit == 0 means everything from offset.
func PageBounds(total, offset, limit int) (start, end int, err error) {
	if limit > MaxPageLimit {
		return 0, 0, ErrLimitTooLarge
	}
	if offset < 0 {
		return 0, 0, ErrInvalidOffset
	}
	if offset >= total {
		return total, total, nil
	}
	start = offset
	end = total
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return start, end, nil
}
