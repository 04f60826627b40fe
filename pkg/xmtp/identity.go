package xmtp

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// GenerateInboxID derives the inbox ID for an identifier and nonce.
func GenerateInboxID(identifier Identifier, nonce uint64) string {
	sum := sha256.Sum256([]byte(strings.ToLower(identifier.Identifier) + strconv.FormatUint(nonce, 10)))
	return hex.EncodeToString(sum[:])
}

type signatureActionKind int

const (
	actionCreateInbox signatureActionKind = iota
	actionAddInstallation
	actionRevokeInstallation
)

type signatureAction struct {
	kind  signatureActionKind
	value string
}

// signatureText renders the human readable text the wallet signs.
func signatureText(inboxID string, now time.Time, actions ...signatureAction) string {
	var b strings.Builder
	b.WriteString("XMTP : Authenticate to inbox\n\n")
	fmt.Fprintf(&b, "Inbox ID: %s\n", inboxID)
	fmt.Fprintf(&b, "Current time: %s\n\n", now.UTC().Format(time.RFC3339))
	for _, a := range actions {
		switch a.kind {
		case actionCreateInbox:
			fmt.Fprintf(&b, "- Create inbox\n  (Owner: %s)\n", a.value)
		case actionAddInstallation:
			fmt.Fprintf(&b, "- Grant messaging access to app\n  (ID: %s)\n", a.value)
		case actionRevokeInstallation:
			fmt.Fprintf(&b, "- Revoke messaging access from app\n  (ID: %s)\n", a.value)
		}
	}
	b.WriteString("\nFor more info: https://xmtp.org/signatures/")
	return b.String()
}

// verifyEOASignature checks a personal_sign signature against address.
func verifyEOASignature(address, text string, sig []byte) error {
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	cp := append([]byte(nil), sig...)
	if cp[crypto.RecoveryIDOffset] >= 27 {
		cp[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(text)), cp)
	if err != nil {
		return fmt.Errorf("recover signer: %w", err)
	}
	if !strings.EqualFold(crypto.PubkeyToAddress(*pub).Hex(), common.HexToAddress(address).Hex()) {
		return fmt.Errorf("signature does not match %s", address)
	}
	return nil
}
