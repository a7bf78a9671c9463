// Package signing implements the message hashing and ECDSA signature scheme
// used by both settlement protocols. Messages are tightly packed the way
// Solidity's abi.encodePacked does (addresses as 20 bytes, strings and bytes
// raw, integers as 32-byte big-endian words), hashed with keccak256, and
// signed Ethereum personal-sign style over the 32-byte digest.
package signing

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// hashPrefix32Bytes is the Ethereum personal-sign prefix for 32-byte
// messages: "\x19Ethereum Signed Message:\n32".
var hashPrefix32Bytes = []byte("\x19Ethereum Signed Message:\n32")

// SignatureLength is the expected R||S||V signature size.
const SignatureLength = 65

var ErrInvalidSignature = errors.New("invalid signature")

// U256Bytes encodes v as a 32-byte big-endian word, the packed encoding of a
// Solidity uint256.
func U256Bytes(v *big.Int) []byte {
	return common.BigToHash(v).Bytes()
}

// uint64Word packs a uint64 into a 32-byte word.
func uint64Word(v uint64) []byte {
	var w [32]byte
	binary.BigEndian.PutUint64(w[24:], v)
	return w[:]
}

// RequestHash computes the packed keccak256 digest of a claim-chain request:
// (provider, user, serviceName, inputCount, previousOutputCount, nonce,
// createdAt).
func RequestHash(provider, user common.Address, serviceName string, inputCount, previousOutputCount, nonce uint64, createdAt int64) common.Hash {
	msg := bytes.Join([][]byte{
		provider.Bytes(),
		user.Bytes(),
		[]byte(serviceName),
		uint64Word(inputCount),
		uint64Word(previousOutputCount),
		uint64Word(nonce),
		uint64Word(uint64(createdAt)),
	}, nil)
	return crypto.Keccak256Hash(msg)
}

// TEESettlementHash computes the packed keccak256 digest of a TEE settlement
// record: (requestsHash, nonce, provider, user, totalFee).
func TEESettlementHash(requestsHash common.Hash, nonce uint64, provider, user common.Address, totalFee *big.Int) common.Hash {
	msg := bytes.Join([][]byte{
		requestsHash.Bytes(),
		uint64Word(nonce),
		provider.Bytes(),
		user.Bytes(),
		U256Bytes(totalFee),
	}, nil)
	return crypto.Keccak256Hash(msg)
}

// VerifierInputHash computes the packed keccak256 digest of a fine-tuning
// settlement record: (encryptedSecret, modelRootHash, nonce, providerSigner,
// taskFee, user).
func VerifierInputHash(encryptedSecret, modelRootHash []byte, nonce uint64, providerSigner common.Address, taskFee *big.Int, user common.Address) common.Hash {
	msg := bytes.Join([][]byte{
		encryptedSecret,
		modelRootHash,
		uint64Word(nonce),
		providerSigner.Bytes(),
		U256Bytes(taskFee),
		user.Bytes(),
	}, nil)
	return crypto.Keccak256Hash(msg)
}

// personalHash wraps a 32-byte digest with the personal-sign prefix.
func personalHash(digest common.Hash) []byte {
	return crypto.Keccak256(hashPrefix32Bytes, digest.Bytes())
}

// Sign produces a 65-byte personal-sign signature over the given digest.
func Sign(digest common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	return crypto.Sign(personalHash(digest), key)
}

// RecoverSigner recovers the address that personal-signed the given digest.
// Both recovery-id conventions are accepted: 0/1 (geth) and 27/28 (ethers).
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}
	norm := make([]byte, SignatureLength)
	copy(norm, sig)
	if norm[64] >= 27 {
		norm[64] -= 27
	}
	pub, err := crypto.SigToPub(personalHash(digest), norm)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySigner checks that sig over digest recovers to want.
func VerifySigner(digest common.Hash, sig []byte, want common.Address) error {
	got, err := RecoverSigner(digest, sig)
	if err != nil {
		return err
	}
	if got != want {
		return ErrInvalidSignature
	}
	return nil
}
