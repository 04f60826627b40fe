package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func openTestStore(t *testing.T, path string, key []byte) *Store {
	t.Helper()
	s, err := Open(context.Background(), path, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_CreatesFileAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "xmtp-dev-abc.db3")
	if Exists(path) {
		t.Fatalf("expected no file yet")
	}

	s := openTestStore(t, path, testKey(1))
	if !Exists(path) {
		t.Fatalf("expected db file at %s", path)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// Reopening re-runs migrations as a no-op.
	openTestStore(t, path, testKey(1))
}

func TestOpen_RejectsBadKey(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "x.db3"), []byte("short"))
	if err == nil {
		t.Fatalf("expected error for short key")
	}
}

func TestIdentity_RoundTripEncrypted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "id.db3")
	s := openTestStore(t, path, testKey(7))

	if _, err := s.LoadIdentity(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	want := Identity{
		InboxID:         "inbox-1",
		Identifier:      "0xabc",
		InstallationID:  "inst-1",
		InstallationKey: []byte("secret-installation-key"),
		Env:             "dev",
		CreatedAtNs:     42,
	}
	if err := s.SaveIdentity(ctx, want); err != nil {
		t.Fatalf("SaveIdentity: %v", err)
	}

	var raw []byte
	if err := s.db.GetContext(ctx, &raw, `SELECT installation_key FROM identity`); err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if bytes.Contains(raw, want.InstallationKey) {
		t.Fatalf("installation key stored in plaintext")
	}

	got, err := s.LoadIdentity(ctx)
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	if got.InboxID != want.InboxID || got.InstallationID != want.InstallationID || !bytes.Equal(got.InstallationKey, want.InstallationKey) {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if got.Registered {
		t.Fatalf("expected unregistered identity")
	}

	if err := s.MarkRegistered(ctx, "inbox-1"); err != nil {
		t.Fatalf("MarkRegistered: %v", err)
	}
	got, _ = s.LoadIdentity(ctx)
	if !got.Registered {
		t.Fatalf("expected registered identity")
	}
	if err := s.MarkRegistered(ctx, "other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown inbox, got %v", err)
	}
}

func TestIdentity_WrongKeyFailsToDecrypt(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "id.db3")

	s := openTestStore(t, path, testKey(1))
	if err := s.SaveIdentity(ctx, Identity{InboxID: "i", InstallationID: "k", InstallationKey: []byte("x"), Env: "dev"}); err != nil {
		t.Fatalf("SaveIdentity: %v", err)
	}
	_ = s.Close()

	other := openTestStore(t, path, testKey(2))
	if _, err := other.LoadIdentity(ctx); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}
}

func TestConversations_UpsertListFilter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "c.db3"), nil)

	convs := []Conversation{
		{ID: "g2", ConversationType: 1, Name: "second", CreatedAtNs: 20, UpdatedAtNs: 20},
		{ID: "d1", ConversationType: 0, PeerInboxID: "peer", CreatedAtNs: 5, UpdatedAtNs: 5},
		{ID: "g1", ConversationType: 1, Name: "first", CreatedAtNs: 10, UpdatedAtNs: 10},
		{ID: "  "},
	}
	if err := s.UpsertConversations(ctx, convs); err != nil {
		t.Fatalf("UpsertConversations: %v", err)
	}

	all, err := s.ListConversations(ctx, ConversationFilter{})
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(all) != 3 || all[0].ID != "d1" || all[1].ID != "g1" || all[2].ID != "g2" {
		t.Fatalf("unexpected order: %+v", all)
	}

	group := 1
	groups, err := s.ListConversations(ctx, ConversationFilter{Type: &group, Limit: 1})
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != "g1" {
		t.Fatalf("unexpected groups: %+v", groups)
	}

	if err := s.UpsertConversations(ctx, []Conversation{{ID: "g1", ConversationType: 1, Name: "renamed", CreatedAtNs: 10, UpdatedAtNs: 30}}); err != nil {
		t.Fatalf("UpsertConversations: %v", err)
	}
	c, err := s.Conversation(ctx, "g1")
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if c.Name != "renamed" || c.UpdatedAtNs != 30 {
		t.Fatalf("expected update, got %+v", c)
	}

	if _, err := s.Conversation(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMessages_InsertDedupesAndDecrypts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "m.db3"), testKey(3))

	m := Message{ID: "m1", ConversationID: "c", SenderInboxID: "a", ContentType: "xmtp.org/text:1.0", Content: []byte("gm"), SentAtNs: 2}
	inserted, err := s.InsertMessage(ctx, m)
	if err != nil || !inserted {
		t.Fatalf("InsertMessage: inserted=%v err=%v", inserted, err)
	}
	inserted, err = s.InsertMessage(ctx, m)
	if err != nil || inserted {
		t.Fatalf("duplicate InsertMessage: inserted=%v err=%v", inserted, err)
	}
	if _, err := s.InsertMessage(ctx, Message{ID: "m0", ConversationID: "c", SenderInboxID: "b", ContentType: "xmtp.org/text:1.0", Content: []byte("hi"), SentAtNs: 1}); err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}

	msgs, err := s.ListMessages(ctx, "c", 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m0" || string(msgs[1].Content) != "gm" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestCursor_DefaultsToZero(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "cur.db3"), nil)

	v, err := s.Cursor(ctx, "conversations")
	if err != nil || v != 0 {
		t.Fatalf("Cursor: v=%d err=%v", v, err)
	}
	if err := s.SetCursor(ctx, "conversations", 99); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}
	if err := s.SetCursor(ctx, "conversations", 100); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}
	v, _ = s.Cursor(ctx, "conversations")
	if v != 100 {
		t.Fatalf("expected 100, got %d", v)
	}
}

func TestSetCursor_NeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "cur.db3"), nil)

	if err := s.SetCursor(ctx, "conversations", 200); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}
	// A slower sync finishing late reports an older position.
	if err := s.SetCursor(ctx, "conversations", 150); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}
	if v, _ := s.Cursor(ctx, "conversations"); v != 200 {
		t.Fatalf("cursor moved backwards to %d", v)
	}
	if err := s.SetCursor(ctx, "messages", 5); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}
	if v, _ := s.Cursor(ctx, "messages"); v != 5 {
		t.Fatalf("independent cursor = %d, want 5", v)
	}
}
