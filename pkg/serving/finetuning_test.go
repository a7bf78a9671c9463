package serving

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0gfoundation/0g-serving-ledger/internal/testutil"
	"github.com/0gfoundation/0g-serving-ledger/pkg/event"
	"github.com/0gfoundation/0g-serving-ledger/pkg/model"
)

func TestFineTuningSettlePaths(t *testing.T) {
	clk := &fakeClock{now: 1000}
	s := NewFineTuning(Options{Owner: owner, Clock: clk.fn(), Sink: event.NewRecorder()})

	signerKey, signerAddr := testutil.NewKey(t)
	s.AddOrUpdateService(model.FineTuningService{
		Provider:       provider,
		PricePerToken:  big.NewInt(1),
		ProviderSigner: signerAddr,
	})
	if err := s.DepositFund(user, provider, big.NewInt(10000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := s.AcknowledgeProviderSigner(user, provider); err != nil {
		t.Fatalf("acknowledge signer: %v", err)
	}

	ackedID := crypto.Keccak256Hash([]byte("task-acked"))
	s.AddDeliverable(provider, user, ackedID, []byte("root-1"))
	if err := s.AcknowledgeDeliverable(user, provider, ackedID); err != nil {
		t.Fatalf("acknowledge deliverable: %v", err)
	}

	acked := model.VerifierInput{
		TaskFee:         big.NewInt(2000),
		EncryptedSecret: []byte("secret"),
		ModelRootHash:   []byte("root-1"),
		ID:              ackedID,
		Nonce:           1,
		ProviderSigner:  signerAddr,
		User:            user,
	}
	testutil.SignVerifierInput(t, signerKey, &acked)

	fee, err := s.SettleFees(provider, acked)
	if err != nil {
		t.Fatalf("settle acknowledged: %v", err)
	}
	if fee.Int64() != 2000 {
		t.Fatalf("fee = %v, want 2000", fee)
	}
	d, err := s.GetDeliverable(user, provider, ackedID)
	if err != nil {
		t.Fatalf("get deliverable: %v", err)
	}
	if string(d.EncryptedSecret) != "secret" {
		t.Fatalf("secret = %q", d.EncryptedSecret)
	}

	// Unacknowledged deliverables settle at the default 30% penalty rate.
	penaltyID := crypto.Keccak256Hash([]byte("task-penalty"))
	s.AddDeliverable(provider, user, penaltyID, []byte("root-2"))
	penalty := model.VerifierInput{
		TaskFee:        big.NewInt(2000),
		ModelRootHash:  []byte("root-2"),
		ID:             penaltyID,
		Nonce:          2,
		ProviderSigner: signerAddr,
		User:           user,
	}
	testutil.SignVerifierInput(t, signerKey, &penalty)

	fee, err = s.SettleFees(provider, penalty)
	if err != nil {
		t.Fatalf("settle penalty: %v", err)
	}
	if fee.Int64() != 600 {
		t.Fatalf("penalty fee = %v, want 600", fee)
	}
	if got := s.Earnings(provider); got.Int64() != 2600 {
		t.Fatalf("earnings = %v, want 2600", got)
	}
}

func TestFineTuningAcknowledgeRequiresService(t *testing.T) {
	s := NewFineTuning(Options{Owner: owner, Sink: event.NewRecorder()})
	s.DepositFund(user, provider, big.NewInt(100))
	if err := s.AcknowledgeProviderSigner(user, provider); !errors.Is(err, model.ErrServiceNotFound) {
		t.Fatalf("err = %v, want ErrServiceNotFound", err)
	}
}

func TestFineTuningUpdatePenaltyPercentage(t *testing.T) {
	s := NewFineTuning(Options{Owner: owner, Sink: event.NewRecorder()})
	if err := s.UpdatePenaltyPercentage(user, 50); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if err := s.UpdatePenaltyPercentage(owner, 101); err == nil {
		t.Fatal("penalty above 100 should fail")
	}
	if err := s.UpdatePenaltyPercentage(owner, 50); err != nil {
		t.Fatalf("update penalty: %v", err)
	}
}

func TestFineTuningOccupancyDoesNotRestamp(t *testing.T) {
	clk := &fakeClock{now: 1000}
	s := NewFineTuning(Options{Owner: owner, Clock: clk.fn(), Sink: event.NewRecorder()})
	s.AddOrUpdateService(model.FineTuningService{Provider: provider, PricePerToken: big.NewInt(1)})

	clk.now = 2000
	if err := s.UpdateServiceOccupancy(provider, true); err != nil {
		t.Fatalf("update occupancy: %v", err)
	}
	svc, err := s.GetService(provider)
	if err != nil {
		t.Fatalf("get service: %v", err)
	}
	if !svc.Occupied {
		t.Fatal("occupancy flag not set")
	}
}
