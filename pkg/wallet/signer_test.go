package wallet

import (
	"context"
	"errors"
	"strings"
	"testing"

	"xmtp-agents/gm-agent/pkg/xmtp"
)

// Well-known hardhat account #0.
const (
	testKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
)

func TestNewSigner_PrefixOptional(t *testing.T) {
	for _, key := range []string{testKey, "0x" + testKey, "  0x" + testKey + "\n"} {
		s, err := NewSigner(key)
		if err != nil {
			t.Fatalf("NewSigner(%q): %v", key, err)
		}
		if s.Address() != testAddress {
			t.Fatalf("Address()=%s want %s", s.Address(), testAddress)
		}
	}
}

func TestNewSigner_InvalidKey(t *testing.T) {
	for _, key := range []string{"", "0x1234", "zz" + testKey[2:]} {
		if _, err := NewSigner(key); err == nil {
			t.Fatalf("NewSigner(%q): expected error", key)
		}
	}
}

func TestSigner_Identifier(t *testing.T) {
	s, err := NewSigner(testKey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	if s.Type() != xmtp.SignerTypeEOA {
		t.Fatalf("Type()=%s", s.Type())
	}
	id := s.Identifier()
	if id.Kind != xmtp.IdentifierKindEthereum || id.Identifier != testAddress {
		t.Fatalf("unexpected identifier: %#v", id)
	}
	if strings.ToLower(s.ChecksumAddress()) != testAddress {
		t.Fatalf("checksum address mismatch: %s", s.ChecksumAddress())
	}
}

func TestSigner_SignMessageRecoverable(t *testing.T) {
	s, err := NewSigner(testKey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	sig, err := s.SignMessage(context.Background(), "hello xmtp")
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length=%d", len(sig))
	}
	if v := sig[64]; v != 27 && v != 28 {
		t.Fatalf("unexpected v=%d", v)
	}

	if err := VerifySignature(testAddress, "hello xmtp", sig); err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if err := VerifySignature(testAddress, "tampered", sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for tampered message, got %v", err)
	}
}

func TestSigner_SignMessageHonoursContext(t *testing.T) {
	s, err := NewSigner(testKey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.SignMessage(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRecoverAddress_BadLength(t *testing.T) {
	if _, err := RecoverAddress("x", []byte{1, 2, 3}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}
