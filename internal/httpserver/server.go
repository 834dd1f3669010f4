// Package httpserver exposes stored runs and ad-hoc analysis over HTTP.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/tinytelemetry/logstat/internal/ingest"
	"github.com/tinytelemetry/logstat/internal/logsource"
	"github.com/tinytelemetry/logstat/internal/model"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = "127.0.0.1:3000"

	// DefaultMaxBodySize bounds POST /api/analyze bodies.
	DefaultMaxBodySize = 64 << 20
)

// Analyzer runs one analysis over a source.
type Analyzer interface {
	Run(ctx context.Context, src logsource.Source, persist bool) (*ingest.Outcome, error)
}

// ServerConfig holds tunable parameters for the HTTP server.
type ServerConfig struct {
	// RateLimit is the sustained POST /api/analyze rate per second; 0 disables limiting.
	RateLimit   float64
	RateBurst   int
	MaxBodySize int64
}

// Server provides the HTTP API.
type Server struct {
	addr        string
	store       model.ReadAPI
	analyzer    Analyzer
	limiter     *rate.Limiter
	maxBodySize int64
	server      *http.Server
	listener    net.Listener
	ctx         context.Context
	cancel      context.CancelFunc
	startTime   time.Time
}

// NewServer creates a new HTTP API server. analyzer may be nil, which
// disables POST /api/analyze.
func NewServer(addr string, store model.ReadAPI, analyzer Analyzer, conf ...ServerConfig) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	limit := rate.Inf
	burst := 1
	maxBody := int64(DefaultMaxBodySize)
	if len(conf) > 0 {
		if conf[0].RateLimit > 0 {
			limit = rate.Limit(conf[0].RateLimit)
		}
		if conf[0].RateBurst > 0 {
			burst = conf[0].RateBurst
		}
		if conf[0].MaxBodySize > 0 {
			maxBody = conf[0].MaxBodySize
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:        addr,
		store:       store,
		analyzer:    analyzer,
		limiter:     rate.NewLimiter(limit, burst),
		maxBodySize: maxBody,
		ctx:         ctx,
		cancel:      cancel,
		startTime:   time.Now(),
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/runs", s.handleListRuns)
	api.GET("/runs/:id", s.handleGetRun)
	api.GET("/runs/:id/meta", s.handleGetRunMeta)
	api.POST("/analyze", s.rateLimited, s.handleAnalyze)
	api.GET("/top/processes", s.handleTopProcesses)
	api.GET("/top/hostnames", s.handleTopHostnames)
	api.GET("/schema", s.handleSchema)
	api.POST("/query", s.handleQuery)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) rateLimited(c *gin.Context) {
	if !s.limiter.Allow() {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}
	c.Next()
}
