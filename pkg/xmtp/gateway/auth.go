package gateway

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderInstallationID = "X-Xmtp-Installation-Id"
	HeaderTimestamp      = "X-Xmtp-Timestamp"
	HeaderSignature      = "X-Xmtp-Signature"
	HeaderClientVersion  = "X-Xmtp-Client-Version"
)

// Credentials authenticate requests as one installation.
type Credentials struct {
	InstallationID string
	Key            ed25519.PrivateKey
}

func (c Credentials) valid() bool {
	return c.InstallationID != "" && len(c.Key) == ed25519.PrivateKeySize
}

// CanonicalRequest is the byte string an installation signs for a request.
func CanonicalRequest(timestamp int64, method, path string) []byte {
	return []byte(strconv.FormatInt(timestamp, 10) + "\n" + strings.ToUpper(method) + "\n" + path)
}

func signHeaders(h http.Header, creds Credentials, method, path string, now time.Time) {
	ts := now.Unix()
	sig := ed25519.Sign(creds.Key, CanonicalRequest(ts, method, path))
	h.Set(HeaderInstallationID, creds.InstallationID)
	h.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	h.Set(HeaderSignature, hex.EncodeToString(sig))
}

// VerifyRequest checks the installation signature headers of r against pub.
// maxSkew <= 0 disables the timestamp window check.
func VerifyRequest(r *http.Request, pub ed25519.PublicKey, now time.Time, maxSkew time.Duration) error {
	ts, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", HeaderTimestamp, err)
	}
	if maxSkew > 0 {
		if d := now.Sub(time.Unix(ts, 0)); d > maxSkew || d < -maxSkew {
			return errors.New("request timestamp outside allowed window")
		}
	}
	sig, err := hex.DecodeString(r.Header.Get(HeaderSignature))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", HeaderSignature, err)
	}
	if !ed25519.Verify(pub, CanonicalRequest(ts, r.Method, r.URL.Path), sig) {
		return errors.New("bad installation signature")
	}
	return nil
}
