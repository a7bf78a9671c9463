// Package testutil provides key generation and record-signing helpers shared
// by settlement and serving tests.
package testutil

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0gfoundation/0g-serving-ledger/pkg/model"
	"github.com/0gfoundation/0g-serving-ledger/pkg/signing"
)

// NewKey generates a fresh secp256k1 key and its address.
func NewKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

// SignRequest fills req.Signature with the user's signature over the claim.
func SignRequest(t *testing.T, key *ecdsa.PrivateKey, provider common.Address, req *model.Request) {
	t.Helper()
	digest := signing.RequestHash(provider, req.User, req.ServiceName, req.InputCount, req.PreviousOutputCount, req.Nonce, req.CreatedAt)
	sig, err := signing.Sign(digest, key)
	if err != nil {
		t.Fatalf("sign request: %v", err)
	}
	req.Signature = sig
}

// SignTEESettlement fills rec.Signature with the enclave signature over the
// record.
func SignTEESettlement(t *testing.T, key *ecdsa.PrivateKey, rec *model.TEESettlement) {
	t.Helper()
	digest := signing.TEESettlementHash(rec.RequestsHash, rec.Nonce, rec.Provider, rec.User, rec.TotalFee)
	sig, err := signing.Sign(digest, key)
	if err != nil {
		t.Fatalf("sign settlement: %v", err)
	}
	rec.Signature = sig
}

// SignVerifierInput fills in.Signature with the enclave signature over the
// fine-tuning record.
func SignVerifierInput(t *testing.T, key *ecdsa.PrivateKey, in *model.VerifierInput) {
	t.Helper()
	digest := signing.VerifierInputHash(in.EncryptedSecret, in.ModelRootHash, in.Nonce, in.ProviderSigner, in.TaskFee, in.User)
	sig, err := signing.Sign(digest, key)
	if err != nil {
		t.Fatalf("sign verifier input: %v", err)
	}
	in.Signature = sig
}
