package gateway

type IdentifierDTO struct {
	Identifier     string `json:"identifier"`
	IdentifierKind int    `json:"identifierKind"`
}

type InstallationDTO struct {
	ID                string `json:"id"`
	ClientTimestampNs int64  `json:"clientTimestampNs"`
}

type InboxStateDTO struct {
	InboxID            string            `json:"inboxId"`
	RecoveryIdentifier IdentifierDTO     `json:"recoveryIdentifier"`
	Identifiers        []IdentifierDTO   `json:"identifiers"`
	Installations      []InstallationDTO `json:"installations"`
}

// WalletSignature is an account signature over a signature text.
type WalletSignature struct {
	Identifier    IdentifierDTO `json:"identifier"`
	SignatureText string        `json:"signatureText"`
	Signature     string        `json:"signature"`
}

type RegisterInboxRequest struct {
	InboxID               string          `json:"inboxId"`
	Nonce                 uint64          `json:"nonce"`
	InstallationID        string          `json:"installationId"`
	InstallationPublicKey string          `json:"installationPublicKey"`
	InstallationSignature string          `json:"installationSignature"`
	WalletSignature       WalletSignature `json:"walletSignature"`
}

type AddInstallationRequest struct {
	InstallationID        string          `json:"installationId"`
	InstallationPublicKey string          `json:"installationPublicKey"`
	InstallationSignature string          `json:"installationSignature"`
	WalletSignature       WalletSignature `json:"walletSignature"`
}

type RevokeInstallationsRequest struct {
	InstallationIDs []string        `json:"installationIds"`
	WalletSignature WalletSignature `json:"walletSignature"`
}

type KeyPackageLifetimeDTO struct {
	NotBefore int64 `json:"notBefore"`
	NotAfter  int64 `json:"notAfter"`
}

type KeyPackageStatusDTO struct {
	Lifetime        *KeyPackageLifetimeDTO `json:"lifetime,omitempty"`
	ValidationError string                 `json:"validationError,omitempty"`
}

type ConversationDTO struct {
	ID               string `json:"id"`
	ConversationType string `json:"conversationType"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	PeerInboxID      string `json:"peerInboxId"`
	CreatedAtNs      int64  `json:"createdAtNs"`
	UpdatedAtNs      int64  `json:"updatedAtNs"`
}

type ConversationPage struct {
	Conversations []ConversationDTO `json:"conversations"`
	Cursor        int64             `json:"cursor"`
	HasMore       bool              `json:"hasMore"`
}

type MessageDTO struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderInboxID  string `json:"senderInboxId"`
	ContentType    string `json:"contentType"`
	Content        string `json:"content"`
	SentAtNs       int64  `json:"sentAtNs"`
}

type SendMessageRequest struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}
