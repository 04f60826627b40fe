package xmtp

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Version is reported in agent details and sent to the gateway as the client version.
const Version = "go-gm-agent/1.0.0"

type Env string

const (
	EnvLocal      Env = "local"
	EnvDev        Env = "dev"
	EnvProduction Env = "production"
)

func ParseEnv(raw string) (Env, error) {
	switch Env(strings.ToLower(strings.TrimSpace(raw))) {
	case EnvLocal:
		return EnvLocal, nil
	case EnvDev:
		return EnvDev, nil
	case EnvProduction:
		return EnvProduction, nil
	default:
		return "", fmt.Errorf("invalid XMTP env %q (want local, dev or production)", raw)
	}
}

// LocalGatewayURL is where a locally run gateway listens. Other envs have no
// default; their gateway URL must be configured.
const LocalGatewayURL = "http://localhost:5556"

// DefaultGatewayURL returns the gateway URL used when none is configured, or ""
// when env has no default.
func DefaultGatewayURL(env Env) string {
	if env == EnvLocal {
		return LocalGatewayURL
	}
	return ""
}

type IdentifierKind int

const (
	IdentifierKindEthereum IdentifierKind = 0
	IdentifierKindPasskey  IdentifierKind = 1
)

func (k IdentifierKind) String() string {
	switch k {
	case IdentifierKindEthereum:
		return "ethereum"
	case IdentifierKindPasskey:
		return "passkey"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Identifier is a public account identifier, e.g. a lowercase Ethereum address.
type Identifier struct {
	Identifier string         `json:"identifier"`
	Kind       IdentifierKind `json:"identifierKind"`
}

func NewEthereumIdentifier(address string) Identifier {
	return Identifier{Identifier: strings.ToLower(strings.TrimSpace(address)), Kind: IdentifierKindEthereum}
}

type SignerType string

const (
	SignerTypeEOA SignerType = "EOA"
	SignerTypeSCW SignerType = "SCW"
)

// Signer proves control of an account identifier.
type Signer interface {
	Type() SignerType
	Identifier() Identifier
	SignMessage(ctx context.Context, message string) ([]byte, error)
}

type ConversationType int

const (
	ConversationTypeDM    ConversationType = 0
	ConversationTypeGroup ConversationType = 1
)

func (t ConversationType) String() string {
	switch t {
	case ConversationTypeDM:
		return "dm"
	case ConversationTypeGroup:
		return "group"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// ContentTypeID names a message codec, e.g. xmtp.org/text:1.0.
type ContentTypeID struct {
	AuthorityID  string `json:"authorityId"`
	TypeID       string `json:"typeId"`
	VersionMajor int    `json:"versionMajor"`
	VersionMinor int    `json:"versionMinor"`
}

var ContentTypeText = ContentTypeID{AuthorityID: "xmtp.org", TypeID: "text", VersionMajor: 1, VersionMinor: 0}

func (c ContentTypeID) String() string {
	return fmt.Sprintf("%s/%s:%d.%d", c.AuthorityID, c.TypeID, c.VersionMajor, c.VersionMinor)
}

// ParseContentTypeID parses the String form. Missing versions default to 1.0.
func ParseContentTypeID(raw string) (ContentTypeID, error) {
	authority, rest, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok || authority == "" || rest == "" {
		return ContentTypeID{}, fmt.Errorf("invalid content type %q", raw)
	}
	typeID, version, hasVersion := strings.Cut(rest, ":")
	out := ContentTypeID{AuthorityID: authority, TypeID: typeID, VersionMajor: 1}
	if hasVersion {
		if _, err := fmt.Sscanf(version, "%d.%d", &out.VersionMajor, &out.VersionMinor); err != nil {
			return ContentTypeID{}, fmt.Errorf("invalid content type version %q: %w", raw, err)
		}
	}
	return out, nil
}

func (c ContentTypeID) IsText() bool {
	return c.AuthorityID == ContentTypeText.AuthorityID && c.TypeID == ContentTypeText.TypeID
}

// DecodedMessage is a message as delivered to stream handlers.
type DecodedMessage struct {
	ID             string
	ConversationID string
	SenderInboxID  string
	ContentType    ContentTypeID
	Content        string
	SentAt         time.Time
}

type Installation struct {
	ID              string
	ClientTimestamp time.Time
}

type InboxState struct {
	InboxID            string
	RecoveryIdentifier Identifier
	Identifiers        []Identifier
	Installations      []Installation
}

type KeyPackageLifetime struct {
	NotBefore time.Time
	NotAfter  time.Time
}

type KeyPackageStatus struct {
	Lifetime        *KeyPackageLifetime
	ValidationError string
}

type ListOptions struct {
	// ConversationType filters by type when set.
	ConversationType *ConversationType
	Limit            int
}

func ConversationTypePtr(t ConversationType) *ConversationType { return &t }
