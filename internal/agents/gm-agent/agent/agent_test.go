package agent

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"xmtp-agents/gm-agent/internal/agents/gm-agent/metrics"
	"xmtp-agents/gm-agent/pkg/wallet"
	"xmtp-agents/gm-agent/pkg/xmtp"
	"xmtp-agents/gm-agent/pkg/xmtp/gateway"
	"xmtp-agents/gm-agent/pkg/xmtp/xmtptest"
)

const testWalletKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fixture struct {
	gw      *xmtptest.Gateway
	client  *xmtp.Client
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gw := xmtptest.NewGateway(t)
	signer, err := wallet.NewSigner(testWalletKey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	c, err := xmtp.Create(context.Background(), signer, xmtp.ClientOptions{
		Env:                  xmtp.EnvLocal,
		GatewayURL:           gw.URL(),
		Proxy:                "direct",
		DBDir:                t.TempDir(),
		DBEncryptionKey:      bytes.Repeat([]byte{1}, 32),
		StreamInitialBackoff: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	gw.SeedInbox("peer-inbox", "0x00000000000000000000000000000000000000bb", "peer-inst")
	gw.AddConversation(gateway.ConversationDTO{ID: "dm-1", ConversationType: "dm", PeerInboxID: "peer-inbox"})
	return fixture{gw: gw, client: c, metrics: metrics.New(nil)}
}

func textMessage(id, conv, sender, content string) *xmtp.DecodedMessage {
	return &xmtp.DecodedMessage{
		ID:             id,
		ConversationID: conv,
		SenderInboxID:  sender,
		ContentType:    xmtp.ContentTypeText,
		Content:        content,
		SentAt:         time.Now(),
	}
}

func TestHandleMessage_RepliesWithStaticText(t *testing.T) {
	f := newFixture(t)
	a := New(f.client, Options{Responder: StaticResponder{Text: "gm"}, Metrics: f.metrics})

	if err := a.HandleMessage(context.Background(), textMessage("m1", "dm-1", "peer-inbox", "hello")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	sent := f.gw.Sent()
	if len(sent) != 1 || sent[0].Content != "gm" || sent[0].ConversationID != "dm-1" {
		t.Fatalf("unexpected sent messages: %+v", sent)
	}
	if got := testutil.ToFloat64(f.metrics.Replies.WithLabelValues("sent")); got != 1 {
		t.Fatalf("expected 1 sent reply metric, got %v", got)
	}
}

func TestHandleMessage_Skips(t *testing.T) {
	f := newFixture(t)
	a := New(f.client, Options{Metrics: f.metrics})
	ctx := context.Background()

	own := textMessage("own", "dm-1", strings.ToUpper(f.client.InboxID()), "echo")
	nonText := textMessage("reaction", "dm-1", "peer-inbox", "👍")
	nonText.ContentType = xmtp.ContentTypeID{AuthorityID: "xmtp.org", TypeID: "reaction", VersionMajor: 1}
	missing := textMessage("lost", "nowhere", "peer-inbox", "hi")

	for _, msg := range []*xmtp.DecodedMessage{own, nonText, missing} {
		if err := a.HandleMessage(ctx, msg); err != nil {
			t.Fatalf("HandleMessage(%s): %v", msg.ID, err)
		}
	}
	if sent := f.gw.Sent(); len(sent) != 0 {
		t.Fatalf("expected no replies, got %+v", sent)
	}

	for reason, want := range map[string]float64{"own": 1, "content_type": 1, "no_conversation": 1} {
		if got := testutil.ToFloat64(f.metrics.MessagesSkipped.WithLabelValues(reason)); got != want {
			t.Fatalf("skip %s = %v, want %v", reason, got, want)
		}
	}
}

func TestHandleMessage_DedupesByID(t *testing.T) {
	f := newFixture(t)
	a := New(f.client, Options{})
	ctx := context.Background()

	msg := textMessage("m1", "dm-1", "peer-inbox", "hello")
	for i := 0; i < 3; i++ {
		if err := a.HandleMessage(ctx, msg); err != nil {
			t.Fatalf("HandleMessage: %v", err)
		}
	}
	if sent := f.gw.Sent(); len(sent) != 1 {
		t.Fatalf("expected a single reply, got %d", len(sent))
	}
}

func TestHandleMessage_RateLimitsPerConversation(t *testing.T) {
	f := newFixture(t)
	f.gw.AddConversation(gateway.ConversationDTO{ID: "dm-2", ConversationType: "dm", PeerInboxID: "peer-inbox"})
	a := New(f.client, Options{Limiter: NewReplyLimiter(0.001, 1), Metrics: f.metrics})
	ctx := context.Background()

	for _, msg := range []*xmtp.DecodedMessage{
		textMessage("a", "dm-1", "peer-inbox", "1"),
		textMessage("b", "dm-1", "peer-inbox", "2"),
		textMessage("c", "dm-2", "peer-inbox", "3"),
	} {
		if err := a.HandleMessage(ctx, msg); err != nil {
			t.Fatalf("HandleMessage: %v", err)
		}
	}

	if sent := f.gw.Sent(); len(sent) != 2 {
		t.Fatalf("expected one reply per conversation, got %+v", sent)
	}
	if got := testutil.ToFloat64(f.metrics.Replies.WithLabelValues("rate_limited")); got != 1 {
		t.Fatalf("expected 1 rate limited reply, got %v", got)
	}
}

type stubCompleter struct {
	out string
	err error
}

func (s stubCompleter) Complete(context.Context, string, string) (string, error) {
	return s.out, s.err
}

func TestLLMResponder(t *testing.T) {
	msg := textMessage("m", "c", "s", "gm?")

	r := LLMResponder{Completer: stubCompleter{out: "gm fren"}, Fallback: StaticResponder{Text: "gm"}}
	if out, err := r.Reply(context.Background(), msg); err != nil || out != "gm fren" {
		t.Fatalf("unexpected reply %q %v", out, err)
	}

	r.Completer = stubCompleter{err: errors.New("upstream down")}
	if out, err := r.Reply(context.Background(), msg); err != nil || out != "gm" {
		t.Fatalf("expected static fallback, got %q %v", out, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Reply(ctx, msg); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStaticResponder_DefaultsToGM(t *testing.T) {
	out, _ := StaticResponder{}.Reply(context.Background(), nil)
	if out != "gm" {
		t.Fatalf("expected gm, got %q", out)
	}
}

func TestRun_RepliesToStreamedMessage(t *testing.T) {
	f := newFixture(t)
	a := New(f.client, Options{Responder: StaticResponder{Text: "gm"}})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	f.gw.Publish(gateway.MessageDTO{ID: "stream-1", ConversationID: "dm-1", SenderInboxID: "peer-inbox", Content: "hello"})

	deadline := time.After(5 * time.Second)
	for len(f.gw.Sent()) == 0 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for reply")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	// The reply echoes back through the stream and must not trigger another reply.
	if sent := f.gw.Sent(); len(sent) != 1 || sent[0].Content != "gm" {
		t.Fatalf("unexpected sent messages: %+v", sent)
	}
}
