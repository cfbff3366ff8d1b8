package server

import (
	"context"
	"errors"
	"html/template"
	"net"
	"net/http"
	"time"

	"lesson-library/internal/catalog"
	"lesson-library/internal/session"
	"lesson-library/internal/store"
	"lesson-library/internal/teachers"
)

// BuildInfo is reported by /health and /metrics.
type BuildInfo struct {
	Version string
	Commit  string
}

type Config struct {
	Addr  string // e.g. ":8080"
	Build BuildInfo

	Store       store.Store
	Workflow    *teachers.Workflow
	Credentials *teachers.Credentials
	Catalog     *catalog.Catalog
	Gateway     *catalog.Gateway
	Sessions    *session.Authority

	// MaxUploadBytes caps a whole upload request body.
	MaxUploadBytes int64

	// Optional; zero values select the defaults.
	Lockout *AccountLockout
	// FormPostsPerMinute limits login and registration posts per client IP.
	FormPostsPerMinute int
	// TrustedProxies lists addresses or CIDR ranges whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means the peer address is used.
	TrustedProxies []string
}

type Server struct {
	httpServer *http.Server

	build     BuildInfo
	store     store.Store
	workflow  *teachers.Workflow
	creds     *teachers.Credentials
	catalog   *catalog.Catalog
	gateway   *catalog.Gateway
	sessions  *session.Authority
	maxUpload int64
	lockout   *AccountLockout
	limiter   *rateLimiter
	proxies   proxyList
	metrics   *Metrics
	pages     map[string]*template.Template
	stop      context.CancelFunc
}

func New(cfg Config) (*Server, error) {
	if cfg.Store == nil || cfg.Workflow == nil || cfg.Credentials == nil ||
		cfg.Catalog == nil || cfg.Gateway == nil || cfg.Sessions == nil {
		return nil, errors.New("server: missing dependency")
	}
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	proxies, err := parseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	s := &Server{
		build:     cfg.Build,
		store:     cfg.Store,
		workflow:  cfg.Workflow,
		creds:     cfg.Credentials,
		catalog:   cfg.Catalog,
		gateway:   cfg.Gateway,
		sessions:  cfg.Sessions,
		maxUpload: cfg.MaxUploadBytes,
		lockout:   cfg.Lockout,
		proxies:   proxies,
		metrics:   newMetrics(),
		pages:     pages,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 16 << 20
	}
	if s.lockout == nil {
		s.lockout = NewAccountLockout(5, 15*time.Minute, 10*time.Minute)
	}
	if cfg.FormPostsPerMinute <= 0 {
		cfg.FormPostsPerMinute = 30
	}
	s.limiter = newRateLimiter(cfg.FormPostsPerMinute, time.Minute, s.clientIP)
	if err := s.registerCollectors(); err != nil {
		return nil, err
	}

	var bg context.Context
	bg, s.stop = context.WithCancel(context.Background())
	go s.limiter.run(bg, time.Minute)

	// Wrap middleware: requestID -> logging -> security headers -> gzip -> router
	var handler http.Handler = s.routes()
	handler = compressionMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler returns the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

// Shutdown drains in-flight requests and stops background work. It is safe
// to call on a server that was never started.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) clientIP(r *http.Request) string {
	return s.proxies.clientIP(r)
}
