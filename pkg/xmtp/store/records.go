package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Identity is the local installation bound to an inbox.
type Identity struct {
	InboxID         string `db:"inbox_id"`
	Identifier      string `db:"identifier"`
	IdentifierKind  int    `db:"identifier_kind"`
	InstallationID  string `db:"installation_id"`
	InstallationKey []byte `db:"installation_key"`
	Registered      bool   `db:"registered"`
	Env             string `db:"env"`
	CreatedAtNs     int64  `db:"created_at_ns"`
}

type Conversation struct {
	ID               string `db:"id"`
	ConversationType int    `db:"conversation_type"`
	Name             string `db:"name"`
	Description      string `db:"description"`
	PeerInboxID      string `db:"peer_inbox_id"`
	CreatedAtNs      int64  `db:"created_at_ns"`
	UpdatedAtNs      int64  `db:"updated_at_ns"`
}

type Message struct {
	ID             string `db:"id"`
	ConversationID string `db:"conversation_id"`
	SenderInboxID  string `db:"sender_inbox_id"`
	ContentType    string `db:"content_type"`
	Content        []byte `db:"content"`
	SentAtNs       int64  `db:"sent_at_ns"`
}

// ConversationFilter narrows ListConversations. Zero value lists everything.
type ConversationFilter struct {
	Type  *int
	Limit int
}

func installationKeyAAD(inboxID string) string { return "identity/installation_key/" + inboxID }

func messageContentAAD(id string) string { return "messages/content/" + id }

func (s *Store) SaveIdentity(ctx context.Context, id Identity) error {
	if id.InboxID == "" || id.InstallationID == "" {
		return fmt.Errorf("store: identity requires inbox and installation ids")
	}
	sealed, err := s.sealer.seal(id.InstallationKey, installationKeyAAD(id.InboxID))
	if err != nil {
		return fmt.Errorf("store: seal installation key: %w", err)
	}
	row := id
	row.InstallationKey = sealed

	// A database holds exactly one identity.
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM identity WHERE inbox_id <> ?`, row.InboxID); err != nil {
		return fmt.Errorf("store: save identity: %w", err)
	}
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO identity (inbox_id, identifier, identifier_kind, installation_id, installation_key, registered, env, created_at_ns)
		VALUES (:inbox_id, :identifier, :identifier_kind, :installation_id, :installation_key, :registered, :env, :created_at_ns)
		ON CONFLICT(inbox_id) DO UPDATE SET
			identifier = excluded.identifier,
			identifier_kind = excluded.identifier_kind,
			installation_id = excluded.installation_id,
			installation_key = excluded.installation_key,
			registered = excluded.registered,
			env = excluded.env`, row)
	if err != nil {
		return fmt.Errorf("store: save identity: %w", err)
	}
	return tx.Commit()
}

// LoadIdentity returns the stored identity, or ErrNotFound on a fresh database.
func (s *Store) LoadIdentity(ctx context.Context) (Identity, error) {
	var row Identity
	err := s.db.GetContext(ctx, &row, `SELECT * FROM identity LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("store: load identity: %w", err)
	}
	key, err := s.sealer.open(row.InstallationKey, installationKeyAAD(row.InboxID))
	if err != nil {
		return Identity{}, err
	}
	row.InstallationKey = key
	return row, nil
}

func (s *Store) MarkRegistered(ctx context.Context, inboxID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE identity SET registered = 1 WHERE inbox_id = ?`, inboxID)
	if err != nil {
		return fmt.Errorf("store: mark registered: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertConversations writes the given conversations in one transaction.
func (s *Store) UpsertConversations(ctx context.Context, convs []Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range convs {
		if strings.TrimSpace(c.ID) == "" {
			continue
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO conversations (id, conversation_type, name, description, peer_inbox_id, created_at_ns, updated_at_ns)
			VALUES (:id, :conversation_type, :name, :description, :peer_inbox_id, :created_at_ns, :updated_at_ns)
			ON CONFLICT(id) DO UPDATE SET
				conversation_type = excluded.conversation_type,
				name = excluded.name,
				description = excluded.description,
				peer_inbox_id = excluded.peer_inbox_id,
				updated_at_ns = excluded.updated_at_ns`, c)
		if err != nil {
			return fmt.Errorf("store: upsert conversation %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Conversation(ctx context.Context, id string) (Conversation, error) {
	var c Conversation
	err := s.db.GetContext(ctx, &c, `SELECT * FROM conversations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("store: get conversation: %w", err)
	}
	return c, nil
}

// ListConversations returns conversations oldest first.
func (s *Store) ListConversations(ctx context.Context, f ConversationFilter) ([]Conversation, error) {
	q := `SELECT * FROM conversations`
	var args []any
	if f.Type != nil {
		q += ` WHERE conversation_type = ?`
		args = append(args, *f.Type)
	}
	q += ` ORDER BY created_at_ns ASC, id ASC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	out := []Conversation{}
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	return out, nil
}

// InsertMessage stores m. It reports false when the message was already stored.
func (s *Store) InsertMessage(ctx context.Context, m Message) (bool, error) {
	sealed, err := s.sealer.seal(m.Content, messageContentAAD(m.ID))
	if err != nil {
		return false, fmt.Errorf("store: seal message: %w", err)
	}
	row := m
	row.Content = sealed

	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_inbox_id, content_type, content, sent_at_ns)
		VALUES (:id, :conversation_id, :sender_inbox_id, :content_type, :content, :sent_at_ns)
		ON CONFLICT(id) DO NOTHING`, row)
	if err != nil {
		return false, fmt.Errorf("store: insert message %s: %w", m.ID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListMessages returns messages of a conversation oldest first. limit <= 0 means all.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	q := `SELECT * FROM messages WHERE conversation_id = ? ORDER BY sent_at_ns ASC, id ASC`
	args := []any{conversationID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows := []Message{}
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	for i := range rows {
		plain, err := s.sealer.open(rows[i].Content, messageContentAAD(rows[i].ID))
		if err != nil {
			return nil, err
		}
		rows[i].Content = plain
	}
	return rows, nil
}
