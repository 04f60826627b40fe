package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xmtp-agents/gm-agent/pkg/xmtp"
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

type healthResponse struct {
	Status       string `json:"status"`
	IsRegistered bool   `json:"isRegistered"`
	Timestamp    string `json:"timestamp"`
}

type clientInfoResponse struct {
	InboxID        string `json:"inboxId"`
	IsRegistered   bool   `json:"isRegistered"`
	AccountAddress string `json:"accountAddress"`
}

type conversationItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type conversationsResponse struct {
	Conversations []conversationItem `json:"conversations"`
}

type errorResponse struct {
	Error string `json:"error"`
}

var errNotInitialized = errorResponse{Error: "XMTP client not initialized"}

func (s *Server) health(c *gin.Context) {
	registered := false
	if client := s.client.Load(); client != nil {
		registered = client.IsRegistered()
	}
	c.JSON(http.StatusOK, healthResponse{
		Status:       "healthy",
		IsRegistered: registered,
		Timestamp:    s.now().UTC().Format(isoMillis),
	})
}

func (s *Server) clientInfo(c *gin.Context) {
	client := s.client.Load()
	if client == nil {
		c.JSON(http.StatusServiceUnavailable, errNotInitialized)
		return
	}
	c.JSON(http.StatusOK, clientInfoResponse{
		InboxID:        client.InboxID(),
		IsRegistered:   client.IsRegistered(),
		AccountAddress: client.AccountIdentifier().Identifier,
	})
}

func (s *Server) conversations(c *gin.Context) {
	client := s.client.Load()
	if client == nil {
		c.JSON(http.StatusServiceUnavailable, errNotInitialized)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.syncTimeout)
	defer cancel()

	err := client.Conversations().Sync(ctx)
	s.metrics.SyncResult(err)
	var convs []*xmtp.Conversation
	if err == nil {
		convs, err = client.Conversations().List(ctx, xmtp.ListOptions{
			ConversationType: xmtp.ConversationTypePtr(xmtp.ConversationTypeGroup),
		})
	}
	if err != nil {
		s.log.Error("Error fetching conversations", zap.Error(err), zap.String("requestId", c.GetString(ctxRequestID)))
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to fetch conversations"})
		return
	}

	out := conversationsResponse{Conversations: make([]conversationItem, 0, len(convs))}
	for _, conv := range convs {
		out.Conversations = append(out.Conversations, conversationItem{
			ID:          conv.ID,
			Name:        conv.Name,
			Description: conv.Description,
		})
	}
	c.JSON(http.StatusOK, out)
}
