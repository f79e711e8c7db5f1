// Package web is the HTTP surface of the storefront: the JSON API over
// the per-browser state stores, the admin proxy, and the websocket hub
// that keeps a browser's open tabs converged.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopfront-dev/shopfront/internal/admin"
	"github.com/shopfront-dev/shopfront/pkg/upload"
)

// Server wires the state registry, admin client, upload store, and hub
// into one HTTP handler.
type Server struct {
	registry *Registry
	admin    *admin.Client
	uploads  upload.Store
	hub      *Hub
	logger   *slog.Logger

	addr     string
	imageDir string

	// prom is per-server so building two servers in one process never
	// collides on metric registration.
	prom *prometheus.Registry

	httpServer *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address (default ":8080").
func WithAddr(addr string) ServerOption {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithImageDir sets the directory product images are published from.
func WithImageDir(dir string) ServerOption {
	return func(s *Server) {
		if dir != "" {
			s.imageDir = dir
		}
	}
}

// WithServerLogger sets the server logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates the storefront server. uploads may be nil to
// disable image uploads.
func NewServer(registry *Registry, adminClient *admin.Client, uploads upload.Store, hub *Hub, opts ...ServerOption) *Server {
	s := &Server{
		registry: registry,
		admin:    adminClient,
		uploads:  uploads,
		hub:      hub,
		logger:   slog.Default().With("component", "web"),
		addr:     ":8080",
		imageDir: "images",
		prom:     prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(Metrics(WithRegistry(s.prom)))
	r.Use(WithClientID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.prom, promhttp.HandlerOpts{}))
	r.Handle("/ws", s.hub)
	r.Handle("/images/*", http.StripPrefix("/images/", http.FileServer(http.Dir(s.imageDir))))

	r.Route("/api/session", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/register", s.handleRegister)
		r.Get("/", s.handleSession)
		r.Delete("/", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.RequireAuth)
			r.Patch("/user", s.handleUpdateUser)
			r.Delete("/user", s.handleDeleteUser)
		})
	})

	r.Route("/api/cart", func(r chi.Router) {
		r.Use(s.RequireAuth)
		r.Get("/", s.handleCart)
		r.Delete("/", s.handleCartClear)
		r.Post("/items", s.handleCartAdd)
		r.Patch("/items/{productID}", s.handleCartUpdate)
		r.Delete("/items/{productID}", s.handleCartRemove)
	})

	r.Route("/api/wishlist", func(r chi.Router) {
		r.Use(s.RequireAuth)
		r.Get("/", s.handleWishlist)
		r.Post("/items", s.handleWishlistAdd)
		r.Delete("/items/{productID}", s.handleWishlistRemove)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(s.RequireAuth)
		r.Get("/stats", s.handleAdminStats)
		r.Get("/orders", s.handleAdminOrders)
		r.Patch("/orders/{orderID}", s.handleAdminOrderStatus)
		r.Get("/products", s.handleAdminProducts)
		r.Post("/products", s.handleAdminCreateProduct)
		r.Delete("/products/{productID}", s.handleAdminDeleteProduct)
		if s.uploads != nil {
			r.Method(http.MethodPost, "/uploads", upload.Handler(s.uploads))
		}
	})

	return r
}

// state resolves the request's browsing-context state.
func (s *Server) state(r *http.Request) (*State, error) {
	clientID := ClientID(r.Context())
	if clientID == "" {
		return nil, errors.New("web: no client id on request")
	}
	return s.registry.Get(r.Context(), clientID)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.hub.Close()
	s.registry.Close()
	return err
}
