// Package xmtptest provides an in-memory XMTP gateway for tests.
package xmtptest

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"

	"xmtp-agents/gm-agent/pkg/wallet"
	"xmtp-agents/gm-agent/pkg/xmtp/gateway"
)

// Gateway is a fake network gateway served by httptest.
type Gateway struct {
	Server *httptest.Server

	mu            sync.Mutex
	inboxes       map[string]*gateway.InboxStateDTO
	installKeys   map[string]ed25519.PublicKey
	conversations map[string]gateway.ConversationDTO
	sent          []gateway.MessageDTO
	published     []gateway.MessageDTO
	notify        chan struct{}
	seq           int64
	failConvs     bool
	requests      map[string]int
}

func NewGateway(t testing.TB) *Gateway {
	t.Helper()
	g := &Gateway{
		inboxes:       map[string]*gateway.InboxStateDTO{},
		installKeys:   map[string]ed25519.PublicKey{},
		conversations: map[string]gateway.ConversationDTO{},
		notify:        make(chan struct{}),
		requests:      map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/inboxes/{id}", g.getInbox)
	mux.HandleFunc("POST /v1/inboxes", g.registerInbox)
	mux.HandleFunc("POST /v1/inboxes/{id}/installations", g.addInstallation)
	mux.HandleFunc("POST /v1/inboxes/{id}/installations/revoke", g.revokeInstallations)
	mux.HandleFunc("POST /v1/key-packages/status", g.keyPackageStatus)
	mux.HandleFunc("GET /v1/conversations", g.authed(g.listConversations))
	mux.HandleFunc("POST /v1/conversations/{id}/messages", g.authed(g.sendMessage))
	mux.HandleFunc("GET /v1/stream/messages", g.authed(g.stream))

	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.requests[r.Method+" "+r.URL.Path]++
		g.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(g.Server.Close)
	return g
}

func (g *Gateway) URL() string { return g.Server.URL }

// Requests counts requests by "METHOD /path".
func (g *Gateway) Requests(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[key]
}

// SeedInbox registers an inbox directly, bypassing signature checks.
func (g *Gateway) SeedInbox(inboxID, address string, installationIDs ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := gateway.IdentifierDTO{Identifier: strings.ToLower(address)}
	st := &gateway.InboxStateDTO{InboxID: inboxID, RecoveryIdentifier: id, Identifiers: []gateway.IdentifierDTO{id}}
	for _, inst := range installationIDs {
		st.Installations = append(st.Installations, gateway.InstallationDTO{ID: inst, ClientTimestampNs: time.Now().UnixNano()})
	}
	g.inboxes[inboxID] = st
}

// SeedInstallation adds an installation to an existing inbox.
func (g *Gateway) SeedInstallation(inboxID, installationID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.inboxes[inboxID]; ok {
		st.Installations = append(st.Installations, gateway.InstallationDTO{ID: installationID, ClientTimestampNs: time.Now().UnixNano()})
	}
}

func (g *Gateway) Inbox(inboxID string) (gateway.InboxStateDTO, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.inboxes[inboxID]
	if !ok {
		return gateway.InboxStateDTO{}, false
	}
	return cloneInbox(st), true
}

func (g *Gateway) AddConversation(c gateway.ConversationDTO) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	if c.CreatedAtNs == 0 {
		c.CreatedAtNs = g.seq
	}
	if c.UpdatedAtNs == 0 {
		c.UpdatedAtNs = g.seq
	}
	g.conversations[c.ID] = c
}

// FailConversations makes conversation listing return 500.
func (g *Gateway) FailConversations(fail bool) {
	g.mu.Lock()
	g.failConvs = fail
	g.mu.Unlock()
}

func (g *Gateway) Sent() []gateway.MessageDTO {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gateway.MessageDTO(nil), g.sent...)
}

// Publish delivers msg to every current and future stream connection.
func (g *Gateway) Publish(msg gateway.MessageDTO) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.publishLocked(msg)
}

func (g *Gateway) publishLocked(msg gateway.MessageDTO) {
	if msg.ContentType == "" {
		msg.ContentType = "xmtp.org/text:1.0"
	}
	if msg.SentAtNs == 0 {
		msg.SentAtNs = time.Now().UnixNano()
	}
	g.published = append(g.published, msg)
	close(g.notify)
	g.notify = make(chan struct{})
}

func (g *Gateway) getInbox(w http.ResponseWriter, r *http.Request) {
	st, ok := g.Inbox(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "inbox not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (g *Gateway) registerInbox(w http.ResponseWriter, r *http.Request) {
	var req gateway.RegisterInboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pub, err := checkInstallation(req.InstallationID, req.InstallationPublicKey, req.InstallationSignature, req.WalletSignature)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.inboxes[req.InboxID]; exists {
		writeError(w, http.StatusConflict, "inbox already registered")
		return
	}
	id := req.WalletSignature.Identifier
	st := &gateway.InboxStateDTO{
		InboxID:            req.InboxID,
		RecoveryIdentifier: id,
		Identifiers:        []gateway.IdentifierDTO{id},
		Installations:      []gateway.InstallationDTO{{ID: req.InstallationID, ClientTimestampNs: time.Now().UnixNano()}},
	}
	g.inboxes[req.InboxID] = st
	g.installKeys[req.InstallationID] = pub
	writeJSON(w, http.StatusOK, cloneInbox(st))
}

func (g *Gateway) addInstallation(w http.ResponseWriter, r *http.Request) {
	var req gateway.AddInstallationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pub, err := checkInstallation(req.InstallationID, req.InstallationPublicKey, req.InstallationSignature, req.WalletSignature)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.inboxes[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "inbox not found")
		return
	}
	st.Installations = append(st.Installations, gateway.InstallationDTO{ID: req.InstallationID, ClientTimestampNs: time.Now().UnixNano()})
	g.installKeys[req.InstallationID] = pub
	writeJSON(w, http.StatusOK, cloneInbox(st))
}

func (g *Gateway) revokeInstallations(w http.ResponseWriter, r *http.Request) {
	var req gateway.RevokeInstallationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := checkWalletSignature(req.WalletSignature); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	for _, id := range req.InstallationIDs {
		if !strings.Contains(req.WalletSignature.SignatureText, "(ID: "+id+")") {
			writeError(w, http.StatusBadRequest, "signature text does not cover "+id)
			return
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.inboxes[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "inbox not found")
		return
	}
	revoke := map[string]bool{}
	for _, id := range req.InstallationIDs {
		revoke[id] = true
		delete(g.installKeys, id)
	}
	kept := st.Installations[:0]
	for _, inst := range st.Installations {
		if !revoke[inst.ID] {
			kept = append(kept, inst)
		}
	}
	st.Installations = kept
	writeJSON(w, http.StatusOK, cloneInbox(st))
}

func (g *Gateway) keyPackageStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InstallationIDs []string `json:"installationIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now().Unix()
	statuses := map[string]gateway.KeyPackageStatusDTO{}
	for _, id := range req.InstallationIDs {
		if _, ok := g.installKeys[id]; !ok {
			statuses[id] = gateway.KeyPackageStatusDTO{ValidationError: "unknown installation"}
			continue
		}
		statuses[id] = gateway.KeyPackageStatusDTO{Lifetime: &gateway.KeyPackageLifetimeDTO{NotBefore: now, NotAfter: now + 90*24*3600}}
	}
	writeJSON(w, http.StatusOK, map[string]any{"statuses": statuses})
}

func (g *Gateway) listConversations(w http.ResponseWriter, r *http.Request) {
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failConvs {
		writeError(w, http.StatusInternalServerError, "conversation store unavailable")
		return
	}
	page := gateway.ConversationPage{Conversations: []gateway.ConversationDTO{}, Cursor: since}
	for _, c := range g.conversations {
		if c.UpdatedAtNs > since {
			page.Conversations = append(page.Conversations, c)
			if c.UpdatedAtNs > page.Cursor {
				page.Cursor = c.UpdatedAtNs
			}
		}
	}
	writeJSON(w, http.StatusOK, page)
}

func (g *Gateway) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req gateway.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	convID := r.PathValue("id")
	sender := r.Header.Get(gateway.HeaderInstallationID)

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.conversations[convID]; !ok {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	g.seq++
	msg := gateway.MessageDTO{
		ID:             fmt.Sprintf("sent-%d", g.seq),
		ConversationID: convID,
		SenderInboxID:  g.inboxForInstallationLocked(sender),
		ContentType:    req.ContentType,
		Content:        req.Content,
		SentAtNs:       time.Now().UnixNano(),
	}
	g.sent = append(g.sent, msg)
	g.publishLocked(msg)
	writeJSON(w, http.StatusOK, msg)
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func (g *Gateway) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	next := 0
	for {
		g.mu.Lock()
		pending := append([]gateway.MessageDTO(nil), g.published[next:]...)
		notify := g.notify
		g.mu.Unlock()

		for _, msg := range pending {
			frame, _ := json.Marshal(map[string]any{"type": "message", "message": msg})
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		next += len(pending)

		select {
		case <-notify:
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (g *Gateway) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		pub, ok := g.installKeys[r.Header.Get(gateway.HeaderInstallationID)]
		g.mu.Unlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "unknown installation")
			return
		}
		if err := gateway.VerifyRequest(r, pub, time.Now(), 5*time.Minute); err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next(w, r)
	}
}

func (g *Gateway) inboxForInstallationLocked(installationID string) string {
	for id, st := range g.inboxes {
		for _, inst := range st.Installations {
			if inst.ID == installationID {
				return id
			}
		}
	}
	return ""
}

func checkInstallation(id, pubHex, sigHex string, ws gateway.WalletSignature) (ed25519.PublicKey, error) {
	if err := checkWalletSignature(ws); err != nil {
		return nil, err
	}
	pub, err := hex.DecodeString(pubHex)
	if err != nil || len(pub) != ed25519.PublicKeySize || id != pubHex {
		return nil, fmt.Errorf("bad installation key")
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || !ed25519.Verify(pub, []byte(ws.SignatureText), sig) {
		return nil, fmt.Errorf("bad installation signature")
	}
	if !strings.Contains(ws.SignatureText, "(ID: "+id+")") {
		return nil, fmt.Errorf("signature text does not grant %s", id)
	}
	return pub, nil
}

func checkWalletSignature(ws gateway.WalletSignature) error {
	sig, err := hexutil.Decode(ws.Signature)
	if err != nil {
		return fmt.Errorf("bad wallet signature encoding: %w", err)
	}
	return wallet.VerifySignature(ws.Identifier.Identifier, ws.SignatureText, sig)
}

func cloneInbox(st *gateway.InboxStateDTO) gateway.InboxStateDTO {
	out := *st
	out.Identifiers = append([]gateway.IdentifierDTO(nil), st.Identifiers...)
	out.Installations = append([]gateway.InstallationDTO(nil), st.Installations...)
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
