// Package agent replies to streamed messages.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"xmtp-agents/gm-agent/internal/agents/gm-agent/metrics"
	"xmtp-agents/gm-agent/pkg/state"
	"xmtp-agents/gm-agent/pkg/xmtp"
)

type Options struct {
	Responder Responder
	Limiter   *ReplyLimiter
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	// SeenSize bounds the message dedupe set.
	SeenSize int
}

type Agent struct {
	client    *xmtp.Client
	responder Responder
	limiter   *ReplyLimiter
	seen      *state.SeenSet
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func New(client *xmtp.Client, opts Options) *Agent {
	if opts.Responder == nil {
		opts.Responder = StaticResponder{Text: "gm"}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Agent{
		client:    client,
		responder: opts.Responder,
		limiter:   opts.Limiter,
		seen:      state.NewSeenSet(opts.SeenSize),
		log:       opts.Logger.Named("agent"),
		metrics:   opts.Metrics,
	}
}

// Run streams all messages until ctx ends.
func (a *Agent) Run(ctx context.Context) error {
	a.log.Info("Waiting for messages...")
	err := a.client.Conversations().StreamAllMessages(ctx, a.HandleMessage)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// HandleMessage replies to one streamed message. Skipped messages return nil.
func (a *Agent) HandleMessage(ctx context.Context, msg *xmtp.DecodedMessage) error {
	if msg == nil {
		return nil
	}
	if strings.EqualFold(msg.SenderInboxID, a.client.InboxID()) {
		a.skip("own")
		return nil
	}
	if !msg.ContentType.IsText() {
		a.skip("content_type")
		return nil
	}
	if !a.seen.Add(msg.ID) {
		a.skip("duplicate")
		return nil
	}

	a.log.Info("Received message",
		zap.String("content", msg.Content),
		zap.String("senderInboxId", msg.SenderInboxID),
		zap.String("conversationId", msg.ConversationID),
	)
	if a.metrics != nil {
		a.metrics.MessagesReceived.Inc()
	}

	conv, err := a.client.Conversations().GetConversationByID(ctx, msg.ConversationID)
	if errors.Is(err, xmtp.ErrConversationNotFound) {
		a.log.Warn("Unable to find conversation, skipping", zap.String("conversationId", msg.ConversationID))
		a.skip("no_conversation")
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup conversation %s: %w", msg.ConversationID, err)
	}

	a.log.Info("Sending reply", zap.String("to", a.senderAddress(ctx, msg.SenderInboxID)))

	if !a.limiter.Allow(conv.ID) {
		a.log.Warn("reply rate limited", zap.String("conversationId", conv.ID))
		a.reply("rate_limited")
		return nil
	}

	text, err := a.responder.Reply(ctx, msg)
	if err != nil {
		a.reply("error")
		return fmt.Errorf("build reply: %w", err)
	}
	if _, err := conv.Send(ctx, text); err != nil {
		a.reply("error")
		return err
	}
	a.reply("sent")
	return nil
}

// senderAddress resolves the first account identifier of an inbox, for logs.
func (a *Agent) senderAddress(ctx context.Context, inboxID string) string {
	states, err := a.client.Preferences().InboxStateFromInboxIDs(ctx, []string{inboxID})
	if err != nil {
		a.log.Debug("resolve sender address failed", zap.String("inboxId", inboxID), zap.Error(err))
		return inboxID
	}
	if len(states) == 0 || len(states[0].Identifiers) == 0 {
		return inboxID
	}
	return states[0].Identifiers[0].Identifier
}

func (a *Agent) skip(reason string) {
	if a.metrics != nil {
		a.metrics.MessagesSkipped.WithLabelValues(reason).Inc()
	}
}

func (a *Agent) reply(result string) {
	if a.metrics != nil {
		a.metrics.Replies.WithLabelValues(result).Inc()
	}
}
