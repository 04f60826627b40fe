// Package xmtp is a client for the XMTP messaging network. The network
// protocol runs behind a gateway; the client keeps its identity and
// conversation state in a local encrypted database.
package xmtp

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"xmtp-agents/gm-agent/pkg/xmtp/gateway"
	"xmtp-agents/gm-agent/pkg/xmtp/store"
)

var (
	// ErrClientNotFound is returned by Build when no local installation exists for the inbox.
	ErrClientNotFound = errors.New("xmtp: no local client for inbox")
	ErrNotRegistered  = errors.New("xmtp: inbox is not registered")
	ErrSignerRequired = errors.New("xmtp: operation requires a signer")

	ErrGatewayURLRequired = errors.New("xmtp: gateway url is required")
)

type Client struct {
	opts ClientOptions
	log  *zap.Logger

	signer         Signer
	identifier     Identifier
	inboxID        string
	installationID string
	installKey     ed25519.PrivateKey

	db *store.Store
	gw *gateway.Client

	mu         sync.RWMutex
	registered bool
	inboxState *InboxState

	conversations *Conversations
	preferences   *Preferences
	closeOnce     sync.Once
}

// Create opens (or creates) the local database for the signer's inbox and
// registers the inbox or this installation on the network as needed.
func Create(ctx context.Context, signer Signer, opts ClientOptions) (*Client, error) {
	if signer == nil {
		return nil, ErrSignerRequired
	}
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	identifier := signer.Identifier()
	inboxID := GenerateInboxID(identifier, 0)

	db, err := store.Open(ctx, opts.dbPath(inboxID), opts.DBEncryptionKey)
	if err != nil {
		return nil, err
	}

	ident, err := db.LoadIdentity(ctx)
	switch {
	case err == nil && ident.InboxID == inboxID && len(ident.InstallationKey) == ed25519.PrivateKeySize:
	case err == nil || errors.Is(err, store.ErrNotFound):
		ident, err = newIdentity(inboxID, identifier, opts.Env)
		if err == nil {
			err = db.SaveIdentity(ctx, ident)
		}
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	default:
		_ = db.Close()
		return nil, err
	}

	c, err := newClient(opts, db, ident, identifier)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	c.signer = signer

	if err := c.register(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Build restores a client from the local database without a signer.
func Build(ctx context.Context, identifier Identifier, opts ClientOptions) (*Client, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	identifier = NewEthereumIdentifierFrom(identifier)
	inboxID := GenerateInboxID(identifier, 0)

	path := opts.dbPath(inboxID)
	if !store.Exists(path) {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, path)
	}
	db, err := store.Open(ctx, path, opts.DBEncryptionKey)
	if err != nil {
		return nil, err
	}

	ident, err := db.LoadIdentity(ctx)
	if err != nil {
		_ = db.Close()
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrClientNotFound, path)
		}
		return nil, err
	}
	if ident.InboxID != inboxID {
		_ = db.Close()
		return nil, fmt.Errorf("%w: database belongs to inbox %s", ErrClientNotFound, ident.InboxID)
	}

	c, err := newClient(opts, db, ident, identifier)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// NewEthereumIdentifierFrom normalizes identifier values for inbox derivation.
func NewEthereumIdentifierFrom(id Identifier) Identifier {
	if id.Kind == IdentifierKindEthereum {
		return NewEthereumIdentifier(id.Identifier)
	}
	return id
}

func newIdentity(inboxID string, identifier Identifier, env Env) (store.Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return store.Identity{}, fmt.Errorf("generate installation key: %w", err)
	}
	return store.Identity{
		InboxID:         inboxID,
		Identifier:      identifier.Identifier,
		IdentifierKind:  int(identifier.Kind),
		InstallationID:  hex.EncodeToString(pub),
		InstallationKey: priv,
		Env:             string(env),
		CreatedAtNs:     time.Now().UnixNano(),
	}, nil
}

func newClient(opts ClientOptions, db *store.Store, ident store.Identity, identifier Identifier) (*Client, error) {
	if len(ident.InstallationKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("xmtp: stored installation key is corrupt")
	}
	gw, err := gateway.New(gateway.Options{
		BaseURL:       opts.GatewayURL,
		Proxy:         opts.Proxy,
		HTTPClient:    opts.HTTPClient,
		ClientVersion: Version,
	})
	if err != nil {
		return nil, err
	}
	key := ed25519.PrivateKey(ident.InstallationKey)

	c := &Client{
		opts:           opts,
		log:            opts.Logger.Named("xmtp"),
		identifier:     identifier,
		inboxID:        ident.InboxID,
		installationID: ident.InstallationID,
		installKey:     key,
		db:             db,
		gw:             gw.WithCredentials(gateway.Credentials{InstallationID: ident.InstallationID, Key: key}),
		registered:     ident.Registered,
	}
	c.conversations = &Conversations{client: c}
	c.preferences = &Preferences{client: c}
	return c, nil
}

func (c *Client) register(ctx context.Context) error {
	st, err := c.gw.GetInbox(ctx, c.inboxID)
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		if err := c.registerInbox(ctx); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("xmtp: fetch inbox state: %w", err)
	default:
		state := inboxStateFromDTO(st)
		if !slices.ContainsFunc(state.Installations, func(i Installation) bool { return i.ID == c.installationID }) {
			if err := c.addInstallation(ctx); err != nil {
				return err
			}
		} else {
			c.setInboxState(&state)
		}
	}

	if err := c.db.MarkRegistered(ctx, c.inboxID); err != nil {
		return err
	}
	c.mu.Lock()
	c.registered = true
	c.mu.Unlock()
	return nil
}

func (c *Client) registerInbox(ctx context.Context) error {
	text := signatureText(c.inboxID, time.Now(),
		signatureAction{kind: actionCreateInbox, value: c.identifier.Identifier},
		signatureAction{kind: actionAddInstallation, value: c.installationID},
	)
	ws, err := c.walletSignature(ctx, text)
	if err != nil {
		return err
	}
	st, err := c.gw.RegisterInbox(ctx, gateway.RegisterInboxRequest{
		InboxID:               c.inboxID,
		Nonce:                 0,
		InstallationID:        c.installationID,
		InstallationPublicKey: c.installationID,
		InstallationSignature: hex.EncodeToString(ed25519.Sign(c.installKey, []byte(text))),
		WalletSignature:       ws,
	})
	if err != nil {
		return fmt.Errorf("xmtp: register inbox: %w", err)
	}
	state := inboxStateFromDTO(st)
	c.setInboxState(&state)
	c.log.Info("registered inbox", zap.String("inboxId", c.inboxID), zap.String("installationId", c.installationID))
	return nil
}

func (c *Client) addInstallation(ctx context.Context) error {
	text := signatureText(c.inboxID, time.Now(), signatureAction{kind: actionAddInstallation, value: c.installationID})
	ws, err := c.walletSignature(ctx, text)
	if err != nil {
		return err
	}
	st, err := c.gw.AddInstallation(ctx, c.inboxID, gateway.AddInstallationRequest{
		InstallationID:        c.installationID,
		InstallationPublicKey: c.installationID,
		InstallationSignature: hex.EncodeToString(ed25519.Sign(c.installKey, []byte(text))),
		WalletSignature:       ws,
	})
	if err != nil {
		return fmt.Errorf("xmtp: add installation: %w", err)
	}
	state := inboxStateFromDTO(st)
	c.setInboxState(&state)
	c.log.Info("added installation", zap.String("inboxId", c.inboxID), zap.String("installationId", c.installationID))
	return nil
}

func (c *Client) walletSignature(ctx context.Context, text string) (gateway.WalletSignature, error) {
	if c.signer == nil {
		return gateway.WalletSignature{}, ErrSignerRequired
	}
	sig, err := c.signer.SignMessage(ctx, text)
	if err != nil {
		return gateway.WalletSignature{}, fmt.Errorf("xmtp: sign: %w", err)
	}
	if c.signer.Type() == SignerTypeEOA && c.identifier.Kind == IdentifierKindEthereum {
		if err := verifyEOASignature(c.identifier.Identifier, text, sig); err != nil {
			return gateway.WalletSignature{}, fmt.Errorf("xmtp: signer produced an invalid signature: %w", err)
		}
	}
	return gateway.WalletSignature{
		Identifier:    identifierToDTO(c.identifier),
		SignatureText: text,
		Signature:     "0x" + hex.EncodeToString(sig),
	}, nil
}

// RevokeAllOtherInstallations revokes every installation of the inbox except this one.
func (c *Client) RevokeAllOtherInstallations(ctx context.Context) error {
	if c.signer == nil {
		return ErrSignerRequired
	}
	st, err := c.preferences.InboxState(ctx, true)
	if err != nil {
		return err
	}

	var others []string
	for _, inst := range st.Installations {
		if inst.ID != c.installationID {
			others = append(others, inst.ID)
		}
	}
	if len(others) == 0 {
		return nil
	}

	actions := make([]signatureAction, 0, len(others))
	for _, id := range others {
		actions = append(actions, signatureAction{kind: actionRevokeInstallation, value: id})
	}
	ws, err := c.walletSignature(ctx, signatureText(c.inboxID, time.Now(), actions...))
	if err != nil {
		return err
	}
	updated, err := c.gw.RevokeInstallations(ctx, c.inboxID, gateway.RevokeInstallationsRequest{InstallationIDs: others, WalletSignature: ws})
	if err != nil {
		return fmt.Errorf("xmtp: revoke installations: %w", err)
	}
	state := inboxStateFromDTO(updated)
	c.setInboxState(&state)
	c.log.Info("revoked other installations", zap.Int("count", len(others)))
	return nil
}

func (c *Client) KeyPackageStatusesForInstallationIDs(ctx context.Context, ids []string) (map[string]KeyPackageStatus, error) {
	raw, err := c.gw.KeyPackageStatuses(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("xmtp: key package statuses: %w", err)
	}
	out := make(map[string]KeyPackageStatus, len(raw))
	for id, s := range raw {
		st := KeyPackageStatus{ValidationError: s.ValidationError}
		if s.Lifetime != nil {
			st.Lifetime = &KeyPackageLifetime{
				NotBefore: time.Unix(s.Lifetime.NotBefore, 0).UTC(),
				NotAfter:  time.Unix(s.Lifetime.NotAfter, 0).UTC(),
			}
		}
		out[id] = st
	}
	return out, nil
}

func (c *Client) InboxID() string { return c.inboxID }

func (c *Client) InstallationID() string { return c.installationID }

func (c *Client) AccountIdentifier() Identifier { return c.identifier }

func (c *Client) Env() Env { return c.opts.Env }

func (c *Client) Version() string { return Version }

func (c *Client) DBPath() string { return c.db.Path() }

func (c *Client) Conversations() *Conversations { return c.conversations }

func (c *Client) Preferences() *Preferences { return c.preferences }

func (c *Client) IsRegistered() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registered
}

// IsOwnInbox reports whether inboxID is this client's inbox.
func (c *Client) IsOwnInbox(inboxID string) bool {
	return strings.EqualFold(strings.TrimSpace(inboxID), c.inboxID)
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.db.Close() })
	return err
}

func (c *Client) setInboxState(st *InboxState) {
	c.mu.Lock()
	c.inboxState = st
	c.mu.Unlock()
}
