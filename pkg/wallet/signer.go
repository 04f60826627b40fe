// Package wallet builds messaging signers from Ethereum private keys.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"xmtp-agents/gm-agent/pkg/xmtp"
)

var ErrInvalidSignature = errors.New("invalid signature")

// Signer is an externally owned account signer.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

var _ xmtp.Signer = (*Signer)(nil)

// NewSigner parses a hex private key. The 0x prefix is optional.
func NewSigner(key string) (*Signer, error) {
	priv, err := crypto.HexToECDSA(sanitizeKey(key))
	if err != nil {
		return nil, fmt.Errorf("parse wallet key: %w", err)
	}
	return &Signer{key: priv, address: crypto.PubkeyToAddress(priv.PublicKey)}, nil
}

func sanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, "0x")
	return strings.TrimPrefix(key, "0X")
}

func (s *Signer) Type() xmtp.SignerType { return xmtp.SignerTypeEOA }

// Address is the lowercase 0x address.
func (s *Signer) Address() string { return strings.ToLower(s.address.Hex()) }

// ChecksumAddress is the EIP-55 form of Address.
func (s *Signer) ChecksumAddress() string { return s.address.Hex() }

func (s *Signer) Identifier() xmtp.Identifier {
	return xmtp.NewEthereumIdentifier(s.Address())
}

// SignMessage returns a 65-byte personal_sign (EIP-191) signature with v in {27, 28}.
func (s *Signer) SignMessage(ctx context.Context, message string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverAddress returns the lowercase address that produced sig over message.
func RecoverAddress(message string, sig []byte) (string, error) {
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// VerifySignature reports whether sig over message was produced by address.
func VerifySignature(address, message string, sig []byte) error {
	got, err := RecoverAddress(message, sig)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, strings.TrimSpace(address)) {
		return fmt.Errorf("%w: signed by %s, want %s", ErrInvalidSignature, got, strings.ToLower(address))
	}
	return nil
}
