package qrcode

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer produces EIP-191 personal-message signatures with the issuer key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewSignerFromHex parses a hex private key, with or without the 0x prefix.
func NewSignerFromHex(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("signer: parse private key: %w", err)
	}
	return NewSigner(key), nil
}

// Address is the public identity scanners verify against.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign returns a 65 byte [R || S || V] signature with V in {27, 28}.
// Signing is deterministic (RFC 6979).
func (s *Signer) Sign(msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return nil, fmt.Errorf("signer: sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Verifier checks signatures against the issuer address only.
type Verifier struct {
	address common.Address
}

func NewVerifier(address common.Address) *Verifier {
	return &Verifier{address: address}
}

func NewVerifierFromAddress(addr string) (*Verifier, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return nil, errors.New("verifier: invalid issuer address")
	}
	return NewVerifier(common.HexToAddress(addr)), nil
}

func (v *Verifier) Address() common.Address {
	return v.address
}

// Verify reports whether sig over msg was produced by the issuer key.
// It never panics; every malformed input is simply false.
func (v *Verifier) Verify(msg, sig []byte) bool {
	if len(sig) != crypto.SignatureLength {
		return false
	}

	recID := sig[crypto.RecoveryIDOffset]
	if recID >= 27 {
		recID -= 27
	}
	if recID > 1 {
		return false
	}

	r := new(big.Int).SetBytes(sig[:32])
	sv := new(big.Int).SetBytes(sig[32:64])
	// high-S signatures are rejected (homestead rules)
	if !crypto.ValidateSignatureValues(recID, r, sv, true) {
		return false
	}

	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	normalized[crypto.RecoveryIDOffset] = recID

	pub, err := crypto.SigToPub(accounts.TextHash(msg), normalized)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == v.address
}

// GenerateKey creates a fresh issuer keypair and returns the hex private key
// (0x prefixed) and its address.
func GenerateKey() (string, common.Address, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", common.Address{}, fmt.Errorf("signer: generate key: %w", err)
	}
	return "0x" + common.Bytes2Hex(crypto.FromECDSA(key)), crypto.PubkeyToAddress(key.PublicKey), nil
}
