// Package httpapi serves the agent's read-only HTTP endpoints.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xmtp-agents/gm-agent/internal/agents/gm-agent/metrics"
	"xmtp-agents/gm-agent/pkg/xmtp"
)

type Options struct {
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	AllowedOrigins []string
	Debug          bool
	// SyncTimeout bounds the sync done by /api/conversations.
	SyncTimeout time.Duration
}

type Server struct {
	client      atomic.Pointer[xmtp.Client]
	engine      *gin.Engine
	log         *zap.Logger
	metrics     *metrics.Metrics
	syncTimeout time.Duration
	now         func() time.Time
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 30 * time.Second
	}
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		log:         opts.Logger.Named("http"),
		metrics:     opts.Metrics,
		syncTimeout: opts.SyncTimeout,
		now:         time.Now,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(s.log))
	r.Use(instrument(s.metrics))
	r.Use(cors(opts.AllowedOrigins))

	r.GET("/health", s.health)
	r.GET("/api/client/info", s.clientInfo)
	r.GET("/api/conversations", s.conversations)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	s.engine = r
	return s
}

// SetClient publishes the ready client to the handlers.
func (s *Server) SetClient(c *xmtp.Client) {
	s.client.Store(c)
	if c != nil {
		s.metrics.ClientReady.Set(1)
	} else {
		s.metrics.ClientReady.Set(0)
	}
}

func (s *Server) Handler() http.Handler { return s.engine }

// Serve listens on addr until ctx ends, then shuts down within shutdownTimeout.
func (s *Server) Serve(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln, shutdownTimeout)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
