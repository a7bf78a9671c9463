package account

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-serving-ledger/pkg/model"
)

var (
	testUser     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testProvider = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func fund(t *testing.T, s *Store, amount int64) {
	t.Helper()
	s.Credit(testUser, testProvider, big.NewInt(amount), nil)
}

func TestCreditCancelsEarliestRefundFirst(t *testing.T) {
	s := NewStore()
	fund(t, s, 1000)
	if _, err := s.RequestRefund(testUser, testProvider, big.NewInt(300), 100); err != nil {
		t.Fatalf("request refund: %v", err)
	}
	if _, err := s.RequestRefund(testUser, testProvider, big.NewInt(400), 200); err != nil {
		t.Fatalf("request refund: %v", err)
	}

	balance, pending := s.Credit(testUser, testProvider, big.NewInt(0), big.NewInt(500))
	if balance.Int64() != 1000 {
		t.Fatalf("balance = %v, want 1000", balance)
	}
	if pending.Int64() != 200 {
		t.Fatalf("pending = %v, want 200", pending)
	}

	acc, err := s.Snapshot(testUser, testProvider)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !acc.Refunds[0].Processed || acc.Refunds[0].Amount.Sign() != 0 {
		t.Fatalf("slot 0 should be fully cancelled, got %+v", acc.Refunds[0])
	}
	if acc.Refunds[1].Processed || acc.Refunds[1].Amount.Int64() != 200 {
		t.Fatalf("slot 1 should keep 200, got %+v", acc.Refunds[1])
	}
}

func TestRequestRefundRequiresFreeBalance(t *testing.T) {
	s := NewStore()
	fund(t, s, 1000)
	if _, err := s.RequestRefund(testUser, testProvider, big.NewInt(800), 100); err != nil {
		t.Fatalf("request refund: %v", err)
	}
	_, err := s.RequestRefund(testUser, testProvider, big.NewInt(300), 100)
	if !errors.Is(err, model.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
}

func TestRequestRefundReusesProcessedSlots(t *testing.T) {
	s := NewStore()
	fund(t, s, 1000)
	if _, err := s.RequestRefund(testUser, testProvider, big.NewInt(100), 50); err != nil {
		t.Fatalf("request refund: %v", err)
	}
	if _, err := s.ProcessMatured(testUser, testProvider, 60); err != nil {
		t.Fatalf("process matured: %v", err)
	}

	idx, err := s.RequestRefund(testUser, testProvider, big.NewInt(200), 150)
	if err != nil {
		t.Fatalf("request refund: %v", err)
	}
	if idx != 0 {
		t.Fatalf("reused slot = %d, want 0", idx)
	}
	acc, _ := s.Snapshot(testUser, testProvider)
	if len(acc.Refunds) != 1 {
		t.Fatalf("refund slots = %d, want 1", len(acc.Refunds))
	}
}

func TestRequestRefundCapacity(t *testing.T) {
	s := NewStore()
	fund(t, s, 1000)
	for i := 0; i < model.MaxRefundsPerAccount; i++ {
		if _, err := s.RequestRefund(testUser, testProvider, big.NewInt(1), 100); err != nil {
			t.Fatalf("refund %d: %v", i, err)
		}
	}
	_, err := s.RequestRefund(testUser, testProvider, big.NewInt(1), 100)
	var tooMany *model.TooManyRefundsError
	if !errors.As(err, &tooMany) {
		t.Fatalf("err = %v, want TooManyRefundsError", err)
	}
	if tooMany.User != testUser || tooMany.Provider != testProvider {
		t.Fatalf("error names wrong account: %v", tooMany)
	}
}

func TestProcessRefundHonorsUnlockTime(t *testing.T) {
	s := NewStore()
	fund(t, s, 1000)
	idx, err := s.RequestRefund(testUser, testProvider, big.NewInt(400), 100)
	if err != nil {
		t.Fatalf("request refund: %v", err)
	}

	if _, err := s.ProcessRefund(testUser, testProvider, []int{idx}, 99); !errors.Is(err, model.ErrRefundLocked) {
		t.Fatalf("err = %v, want ErrRefundLocked", err)
	}
	total, err := s.ProcessRefund(testUser, testProvider, []int{idx}, 100)
	if err != nil {
		t.Fatalf("process refund: %v", err)
	}
	if total.Int64() != 400 {
		t.Fatalf("released = %v, want 400", total)
	}
	if got := s.Balance(testUser, testProvider); got.Int64() != 600 {
		t.Fatalf("balance = %v, want 600", got)
	}
	if got := s.PendingRefund(testUser, testProvider); got.Sign() != 0 {
		t.Fatalf("pending = %v, want 0", got)
	}
	if _, err := s.ProcessRefund(testUser, testProvider, []int{idx}, 200); !errors.Is(err, model.ErrRefundNotFound) {
		t.Fatalf("reprocessing err = %v, want ErrRefundNotFound", err)
	}
}

func TestProcessMaturedCompactsDirtySlots(t *testing.T) {
	s := NewStore()
	fund(t, s, 1000)
	for i := 0; i < model.MaxRefundsPerAccount; i++ {
		if _, err := s.RequestRefund(testUser, testProvider, big.NewInt(1), 100); err != nil {
			t.Fatalf("refund %d: %v", i, err)
		}
	}
	total, err := s.ProcessMatured(testUser, testProvider, 100)
	if err != nil {
		t.Fatalf("process matured: %v", err)
	}
	if total.Int64() != int64(model.MaxRefundsPerAccount) {
		t.Fatalf("released = %v, want %d", total, model.MaxRefundsPerAccount)
	}
	acc, _ := s.Snapshot(testUser, testProvider)
	if len(acc.Refunds) != 0 {
		t.Fatalf("slots after compaction = %d, want 0", len(acc.Refunds))
	}
}

func TestDebitAndAdvance(t *testing.T) {
	s := NewStore()
	fund(t, s, 500)
	if _, _, err := s.DebitAndAdvance(testUser, testProvider, big.NewInt(600), 1); !errors.Is(err, model.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	balance, _, err := s.DebitAndAdvance(testUser, testProvider, big.NewInt(200), 7)
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if balance.Int64() != 300 {
		t.Fatalf("balance = %v, want 300", balance)
	}
	nonce, _ := s.Nonce(testUser, testProvider)
	if nonce != 7 {
		t.Fatalf("nonce = %d, want 7", nonce)
	}
}

func TestDebitShrinksOversizedPendingRefund(t *testing.T) {
	s := NewStore()
	fund(t, s, 1000)
	if _, err := s.RequestRefund(testUser, testProvider, big.NewInt(900), 100); err != nil {
		t.Fatalf("request refund: %v", err)
	}
	balance, pending, err := s.DebitAndAdvance(testUser, testProvider, big.NewInt(400), 1)
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if balance.Int64() != 600 || pending.Int64() != 600 {
		t.Fatalf("balance/pending = %v/%v, want 600/600", balance, pending)
	}
}

func TestDeliverableRingEvictsOldest(t *testing.T) {
	s := NewStore()
	ids := make([]common.Hash, model.MaxDeliverablesPerAccount+1)
	for i := range ids {
		ids[i] = common.BigToHash(big.NewInt(int64(i + 1)))
		s.AddDeliverable(testUser, testProvider, ids[i], []byte{byte(i)})
	}

	if _, err := s.Deliverable(testUser, testProvider, ids[0]); !errors.Is(err, model.ErrDeliverableNotFound) {
		t.Fatalf("oldest deliverable err = %v, want ErrDeliverableNotFound", err)
	}
	d, err := s.Deliverable(testUser, testProvider, ids[len(ids)-1])
	if err != nil {
		t.Fatalf("newest deliverable: %v", err)
	}
	if d.ID != ids[len(ids)-1] {
		t.Fatalf("deliverable id = %v, want %v", d.ID, ids[len(ids)-1])
	}
	acc, _ := s.Snapshot(testUser, testProvider)
	if acc.DeliverablesCount != model.MaxDeliverablesPerAccount {
		t.Fatalf("count = %d, want %d", acc.DeliverablesCount, model.MaxDeliverablesPerAccount)
	}
}

func TestDeliverableSecretAndAcknowledge(t *testing.T) {
	s := NewStore()
	id := common.BigToHash(big.NewInt(42))
	s.AddDeliverable(testUser, testProvider, id, []byte("root"))

	if err := s.AcknowledgeDeliverable(testUser, testProvider, id); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if err := s.SetDeliverableSecret(testUser, testProvider, id, []byte("secret")); err != nil {
		t.Fatalf("set secret: %v", err)
	}
	d, err := s.Deliverable(testUser, testProvider, id)
	if err != nil {
		t.Fatalf("deliverable: %v", err)
	}
	if !d.Acknowledged || string(d.EncryptedSecret) != "secret" {
		t.Fatalf("deliverable = %+v", d)
	}
}

func TestPagination(t *testing.T) {
	s := NewStore()
	users := make([]common.Address, 5)
	for i := range users {
		users[i] = common.BigToAddress(big.NewInt(int64(i + 1)))
	}
	for _, u := range users {
		s.Credit(u, testProvider, big.NewInt(10), nil)
	}

	all, total, err := s.All(0, 0)
	if err != nil || total != 5 || len(all) != 5 {
		t.Fatalf("All(0,0) = %d items, total %d, err %v", len(all), total, err)
	}
	page, total, err := s.ByProvider(testProvider, 3, 10)
	if err != nil || total != 5 || len(page) != 2 {
		t.Fatalf("ByProvider(3,10) = %d items, total %d, err %v", len(page), total, err)
	}
	past, total, err := s.All(99, 10)
	if err != nil || total != 5 || len(past) != 0 {
		t.Fatalf("All(99,10) = %d items, total %d, err %v", len(past), total, err)
	}
	if _, _, err := s.All(0, model.MaxPageLimit+1); !errors.Is(err, model.ErrLimitTooLarge) {
		t.Fatalf("oversized limit err = %v, want ErrLimitTooLarge", err)
	}
	if _, _, err := s.All(-1, 0); !errors.Is(err, model.ErrInvalidOffset) {
		t.Fatalf("negative offset err = %v, want ErrInvalidOffset", err)
	}
}

func TestBatchByUsersZeroFillsMissing(t *testing.T) {
	s := NewStore()
	fund(t, s, 250)
	missing := common.HexToAddress("0x3333333333333333333333333333333333333333")

	got := s.BatchByUsers(testProvider, []common.Address{testUser, missing})
	if got[0].Balance.Int64() != 250 {
		t.Fatalf("existing balance = %v, want 250", got[0].Balance)
	}
	if got[1].User != (common.Address{}) || got[1].Balance.Sign() != 0 {
		t.Fatalf("missing account should be zero-valued, got %+v", got[1])
	}
}

func TestDeleteCascades(t *testing.T) {
	s := NewStore()
	fund(t, s, 100)
	id := common.BigToHash(big.NewInt(1))
	s.AddDeliverable(testUser, testProvider, id, []byte("root"))

	s.Delete(testUser, testProvider)
	if s.Exists(testUser, testProvider) {
		t.Fatal("account should be gone")
	}
	if s.Len() != 0 {
		t.Fatalf("len = %d, want 0", s.Len())
	}
	// Idempotent.
	s.Delete(testUser, testProvider)
}
