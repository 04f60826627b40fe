package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"xmtp-agents/gm-agent/pkg/xmtp"
)

// Responder produces the reply text for an incoming message.
type Responder interface {
	Reply(ctx context.Context, msg *xmtp.DecodedMessage) (string, error)
}

type StaticResponder struct {
	Text string
}

func (r StaticResponder) Reply(context.Context, *xmtp.DecodedMessage) (string, error) {
	if strings.TrimSpace(r.Text) == "" {
		return "gm", nil
	}
	return r.Text, nil
}

// Completer is satisfied by llm.ChatClient.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

const defaultSystemPrompt = "You are a friendly bot on the XMTP messaging network. Reply in one short sentence. Greet people with \"gm\"."

// LLMResponder asks a chat model and falls back to a static reply on error.
type LLMResponder struct {
	Completer Completer
	Prompt    string
	Fallback  StaticResponder
	Logger    *zap.Logger
}

func (r LLMResponder) Reply(ctx context.Context, msg *xmtp.DecodedMessage) (string, error) {
	prompt := r.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultSystemPrompt
	}
	out, err := r.Completer.Complete(ctx, prompt, msg.Content)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if r.Logger != nil {
		r.Logger.Warn("llm reply failed, using static reply", zap.String("messageId", msg.ID), zap.Error(err))
	}
	return r.Fallback.Reply(ctx, msg)
}
