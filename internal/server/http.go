package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/timeboxd/timeboxd/internal/plan"
	"github.com/timeboxd/timeboxd/pkg/logger"
)

// Options configures the HTTP server.
type Options struct {
	Addr   string
	RPC    *RPCConfig
	Runner *Runner
	Log    logger.Logger
}

// HTTPServer serves the plain JSON endpoints plus the authenticated
// /rpc bridge and /ws push endpoint.
type HTTPServer struct {
	opts     Options
	rpc      *RPCServer
	notifier *Notifier

	mu     sync.Mutex
	server *http.Server
}

// New builds the server and its routes.
func New(opts Options) *HTTPServer {
	s := &HTTPServer{
		opts:     opts,
		notifier: NewNotifier(opts.Log),
	}
	s.rpc = NewRPCServer(opts.RPC, opts.Runner, s.notifier)
	return s
}

// Notifier returns the push notifier; the daemon wires run progress
// into it.
func (s *HTTPServer) Notifier() *Notifier {
	return s.notifier
}

func (s *HTTPServer) handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealthz)
	r.POST("/trigger", s.handleTrigger)
	r.POST("/test-event", s.handleTestEvent)
	r.GET("/runs", s.handleRuns)

	// The RPC surface requires the shared secret; the plain endpoints
	// above stay open for local probes.
	r.POST("/rpc", gin.WrapH(requireToken(s.opts.RPC.Secret, s.rpc.bridge)))
	r.GET("/ws", gin.WrapH(requireToken(s.opts.RPC.Secret, http.HandlerFunc(s.rpc.handleWS))))

	return r
}

func (s *HTTPServer) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *HTTPServer) handleTrigger(c *gin.Context) {
	sum, err := s.opts.Runner.Trigger(c.Request.Context())
	if errors.Is(err, ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *HTTPServer) handleTestEvent(c *gin.Context) {
	ev, err := s.opts.Runner.TestEvent(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"eventId": ev.EventID, "start": ev.Start, "end": ev.End})
}

func (s *HTTPServer) handleRuns(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	runs, err := s.opts.Runner.History(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []plan.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:    s.opts.Addr,
		Handler: s.handler(),
	}
	s.mu.Unlock()

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server and closes the RPC bridge.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rpc.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
