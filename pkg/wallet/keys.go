package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
)

// EncryptionKeySize is the length of the local database key in bytes.
const EncryptionKeySize = 32

// GenerateEncryptionKeyHex returns a random 32-byte key as hex (no prefix).
func GenerateEncryptionKeyHex() (string, error) {
	b := make([]byte, EncryptionKeySize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate encryption key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// EncryptionKeyFromHex decodes a 32-byte hex key. A 0x prefix is tolerated.
func EncryptionKeyFromHex(s string) ([]byte, error) {
	s = sanitizeKey(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(b) != EncryptionKeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", EncryptionKeySize, len(b))
	}
	return b, nil
}

// GeneratePrivateKeyHex returns a new secp256k1 key as 0x-prefixed hex.
func GeneratePrivateKeyHex() (string, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("generate wallet key: %w", err)
	}
	return hexutil.Encode(crypto.FromECDSA(priv)), nil
}

// GeneratedKeys is the content written by WriteKeysEnv.
type GeneratedKeys struct {
	WalletKey     string
	EncryptionKey string
	PublicKey     string
	Env           string
}

// GenerateKeys creates a fresh wallet key and database encryption key.
func GenerateKeys(env string) (GeneratedKeys, error) {
	walletKey, err := GeneratePrivateKeyHex()
	if err != nil {
		return GeneratedKeys{}, err
	}
	encKey, err := GenerateEncryptionKeyHex()
	if err != nil {
		return GeneratedKeys{}, err
	}
	signer, err := NewSigner(walletKey)
	if err != nil {
		return GeneratedKeys{}, err
	}
	if strings.TrimSpace(env) == "" {
		env = "dev"
	}
	return GeneratedKeys{
		WalletKey:     walletKey,
		EncryptionKey: encKey,
		PublicKey:     signer.Address(),
		Env:           env,
	}, nil
}

// WriteKeysEnv merges keys into the dotenv file at path. Values that already
// exist in the file are kept; it returns the names that were added.
func WriteKeysEnv(path string, keys GeneratedKeys) ([]string, error) {
	existing, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		existing = map[string]string{}
	}

	candidates := []struct{ name, value string }{
		{"WALLET_KEY", keys.WalletKey},
		{"ENCRYPTION_KEY", keys.EncryptionKey},
		{"XMTP_ENV", keys.Env},
		{"PUBLIC_KEY", keys.PublicKey},
	}
	var added []string
	for _, c := range candidates {
		if strings.TrimSpace(existing[c.name]) != "" {
			continue
		}
		existing[c.name] = c.value
		added = append(added, c.name)
	}
	if len(added) == 0 {
		return nil, nil
	}
	if err := godotenv.Write(existing, path); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return added, nil
}
