package xmtp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"xmtp-agents/gm-agent/pkg/xmtp/gateway"
	"xmtp-agents/gm-agent/pkg/xmtp/store"
)

var ErrConversationNotFound = errors.New("xmtp: conversation not found")

const conversationsCursor = "conversations"

// maxSyncPages stops a sync against a gateway whose cursor never settles.
const maxSyncPages = 1000

type Conversation struct {
	client *Client

	ID          string
	Type        ConversationType
	Name        string
	Description string
	PeerInboxID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Conversations struct {
	client *Client
}

type MessageHandler func(ctx context.Context, msg *DecodedMessage) error

// Sync pulls conversations changed since the stored cursor into the local database.
func (cs *Conversations) Sync(ctx context.Context) error {
	c := cs.client
	cursor, err := c.db.Cursor(ctx, conversationsCursor)
	if err != nil {
		return err
	}

	for page := 0; page < maxSyncPages; page++ {
		resp, err := c.gw.ListConversations(ctx, cursor)
		if err != nil {
			return fmt.Errorf("xmtp: sync conversations: %w", err)
		}

		rows := make([]store.Conversation, 0, len(resp.Conversations))
		for _, d := range resp.Conversations {
			rows = append(rows, conversationRow(d))
		}
		if err := c.db.UpsertConversations(ctx, rows); err != nil {
			return err
		}

		if resp.Cursor > cursor {
			cursor = resp.Cursor
			if err := c.db.SetCursor(ctx, conversationsCursor, cursor); err != nil {
				return err
			}
		} else if resp.HasMore {
			return fmt.Errorf("xmtp: sync conversations: cursor did not advance past %d", cursor)
		}

		if !resp.HasMore {
			c.log.Debug("conversations synced", zap.Int64("cursor", cursor))
			return nil
		}
	}
	return fmt.Errorf("xmtp: sync conversations: more than %d pages", maxSyncPages)
}

// List returns locally known conversations ordered by creation time.
func (cs *Conversations) List(ctx context.Context, opts ListOptions) ([]*Conversation, error) {
	filter := store.ConversationFilter{Limit: opts.Limit}
	if opts.ConversationType != nil {
		t := int(*opts.ConversationType)
		filter.Type = &t
	}
	rows, err := cs.client.db.ListConversations(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*Conversation, 0, len(rows))
	for _, r := range rows {
		out = append(out, cs.fromRow(r))
	}
	return out, nil
}

// GetConversationByID reads the local database and syncs once on a miss.
func (cs *Conversations) GetConversationByID(ctx context.Context, id string) (*Conversation, error) {
	row, err := cs.client.db.Conversation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		if err := cs.Sync(ctx); err != nil {
			return nil, err
		}
		row, err = cs.client.db.Conversation(ctx, id)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return cs.fromRow(row), nil
}

// StreamAllMessages delivers every new message to handler until ctx ends.
// Messages already stored locally are skipped. Handler errors are logged and
// do not end the stream.
func (cs *Conversations) StreamAllMessages(ctx context.Context, handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}
	c := cs.client
	log := c.log.Named("stream")

	onMessage := func(ctx context.Context, d gateway.MessageDTO) error {
		msg := decodeMessage(d)
		inserted, err := c.db.InsertMessage(ctx, messageRow(d))
		if err != nil {
			log.Warn("persist message failed", zap.String("id", d.ID), zap.Error(err))
		} else if !inserted {
			return nil
		}

		if err := handler(ctx, msg); err != nil {
			log.Error("message handler failed", zap.String("id", d.ID), zap.String("conversationId", d.ConversationID), zap.Error(err))
		}
		return nil
	}

	return c.gw.StreamMessages(ctx, onMessage, gateway.StreamOptions{}, gateway.ReconnectOptions{
		InitialBackoff: c.opts.StreamInitialBackoff,
		MaxBackoff:     c.opts.StreamMaxBackoff,
		OnDisconnect: func(err error, next time.Duration) {
			log.Warn("stream disconnected", zap.Error(err), zap.Duration("reconnectIn", next))
		},
	})
}

// Send posts a text message and stores it locally. It returns the message ID.
func (cv *Conversation) Send(ctx context.Context, text string) (string, error) {
	c := cv.client
	sent, err := c.gw.SendMessage(ctx, cv.ID, gateway.SendMessageRequest{
		ContentType: ContentTypeText.String(),
		Content:     text,
	})
	if err != nil {
		return "", fmt.Errorf("xmtp: send to %s: %w", cv.ID, err)
	}

	if sent.ID != "" {
		if sent.ConversationID == "" {
			sent.ConversationID = cv.ID
		}
		if sent.SenderInboxID == "" {
			sent.SenderInboxID = c.inboxID
		}
		if sent.ContentType == "" {
			sent.ContentType = ContentTypeText.String()
			sent.Content = text
		}
		if sent.SentAtNs == 0 {
			sent.SentAtNs = time.Now().UnixNano()
		}
		if _, err := c.db.InsertMessage(ctx, messageRow(sent)); err != nil {
			c.log.Warn("persist sent message failed", zap.String("id", sent.ID), zap.Error(err))
		}
	}
	return sent.ID, nil
}

// Messages returns stored messages oldest first. limit <= 0 returns all.
func (cv *Conversation) Messages(ctx context.Context, limit int) ([]*DecodedMessage, error) {
	rows, err := cv.client.db.ListMessages(ctx, cv.ID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*DecodedMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, decodeMessage(gateway.MessageDTO{
			ID:             r.ID,
			ConversationID: r.ConversationID,
			SenderInboxID:  r.SenderInboxID,
			ContentType:    r.ContentType,
			Content:        string(r.Content),
			SentAtNs:       r.SentAtNs,
		}))
	}
	return out, nil
}

func (cs *Conversations) fromRow(r store.Conversation) *Conversation {
	return &Conversation{
		client:      cs.client,
		ID:          r.ID,
		Type:        ConversationType(r.ConversationType),
		Name:        r.Name,
		Description: r.Description,
		PeerInboxID: r.PeerInboxID,
		CreatedAt:   time.Unix(0, r.CreatedAtNs).UTC(),
		UpdatedAt:   time.Unix(0, r.UpdatedAtNs).UTC(),
	}
}

func conversationRow(d gateway.ConversationDTO) store.Conversation {
	t := ConversationTypeGroup
	if d.ConversationType == ConversationTypeDM.String() {
		t = ConversationTypeDM
	}
	updated := d.UpdatedAtNs
	if updated == 0 {
		updated = d.CreatedAtNs
	}
	return store.Conversation{
		ID:               d.ID,
		ConversationType: int(t),
		Name:             d.Name,
		Description:      d.Description,
		PeerInboxID:      d.PeerInboxID,
		CreatedAtNs:      d.CreatedAtNs,
		UpdatedAtNs:      updated,
	}
}

func messageRow(d gateway.MessageDTO) store.Message {
	return store.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		SenderInboxID:  d.SenderInboxID,
		ContentType:    d.ContentType,
		Content:        []byte(d.Content),
		SentAtNs:       d.SentAtNs,
	}
}

// decodeMessage leaves ContentType zero when the type string does not parse.
func decodeMessage(d gateway.MessageDTO) *DecodedMessage {
	ct, _ := ParseContentTypeID(d.ContentType)
	return &DecodedMessage{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		SenderInboxID:  d.SenderInboxID,
		ContentType:    ct,
		Content:        d.Content,
		SentAt:         time.Unix(0, d.SentAtNs).UTC(),
	}
}
