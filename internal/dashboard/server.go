package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"

	"autotrader/internal/engine"
	"autotrader/internal/model"
	"autotrader/pkg/exception"
)

const (
	defaultOrderLimit   = 50
	defaultPushInterval = time.Second
	clientQueueSize     = 4
	writeTimeout        = 5 * time.Second
	readHeaderTimeout   = 5 * time.Second
)

// Provider is the engine surface the dashboard reads and controls.
type Provider interface {
	Dashboard() engine.DashboardData
	RecentOrders(limit int) []model.OrderDetail
	SetStrategyEnabled(name string, enabled bool) error
}

type Config struct {
	Addr         string
	PushInterval time.Duration
}

type Server struct {
	cfg      Config
	provider Provider
	router   *gin.Engine
	hub      *hub
	upgrader websocket.Upgrader

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	running  atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(cfg Config, provider Provider) *Server {
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = defaultPushInterval
	}
	s := &Server{
		cfg:      cfg,
		provider: provider,
		hub:      newHub(clientQueueSize, writeTimeout),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)
	r.GET("/ws", s.stream)
	api := r.Group("/api")
	{
		api.GET("/dashboard", s.dashboard)
		api.GET("/orders", s.orders)
		api.GET("/positions", s.positions)
		api.POST("/strategies/:name/enabled", s.setStrategyEnabled)
	}
	return r
}

// Handler exposes the router for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "running": s.provider.Dashboard().Running})
}

func (s *Server) dashboard(c *gin.Context) {
	c.JSON(http.StatusOK, toView(s.provider.Dashboard()))
}

func (s *Server) orders(c *gin.Context) {
	limit := defaultOrderLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, toOrderViews(s.provider.RecentOrders(limit)))
}

func (s *Server) positions(c *gin.Context) {
	c.JSON(http.StatusOK, toPositionViews(s.provider.Dashboard().Positions))
}

type enabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (s *Server) setStrategyEnabled(c *gin.Context) {
	var req enabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	name := c.Param("name")
	if err := s.provider.SetStrategyEnabled(name, *req.Enabled); err != nil {
		if errors.Is(err, exception.ErrStrategyUnknown) {
			c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "enabled": *req.Enabled})
}

func (s *Server) stream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logs.Warnf("dashboard websocket upgrade, err: %+v", err)
		return
	}
	initial, err := s.frame()
	if err != nil {
		logs.Errorf("encode dashboard frame, err: %+v", err)
		initial = nil
	}
	s.hub.attach(conn, initial)
	logs.Debugf("dashboard client %s attached", conn.RemoteAddr())
}

func (s *Server) frame() ([]byte, error) {
	return json.Marshal(toView(s.provider.Dashboard()))
}

// Push sends the current state to every websocket client.
func (s *Server) Push() int {
	if s.hub.len() == 0 {
		return 0
	}
	msg, err := s.frame()
	if err != nil {
		logs.Errorf("encode dashboard frame, err: %+v", err)
		return 0
	}
	return s.hub.broadcast(msg)
}

func (s *Server) Clients() int {
	return s.hub.len()
}

// Start listens on the configured address and begins periodic pushes.
func (s *Server) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return err
	}
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: readHeaderTimeout}
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.http = srv
	s.listener = ln
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Errorf("dashboard server, err: %+v", err)
		}
	}()
	go s.pushLoop(ctx)
	logs.Infof("dashboard listening on %s", ln.Addr())
	return nil
}

func (s *Server) pushLoop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.PushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Push()
		}
	}
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

func (s *Server) IsRunning() bool {
	return s.running.Load()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.mu.Lock()
	srv, cancel, done := s.http, s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.hub.closeAll()
	return srv.Shutdown(ctx)
}
