// Package mockshop is an in-memory stand-in for the UR Shop admin backend.
// It issues HS256 access tokens and rotating refresh tokens and serves the
// admin REST surface over a seeded catalog.
package mockshop

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/erauner12/urshop-admin/internal/api"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Seeded administrator credentials
const (
	DefaultAdminID       = "a001"
	DefaultAdminEmail    = "admin@urshop.test"
	DefaultAdminPassword = "urshop-admin"
)

// Config configures a Server. Zero durations select the defaults.
type Config struct {
	JWTSecret  []byte
	AccessTTL  time.Duration // default 15m
	RefreshTTL time.Duration // default 7 days
	BcryptCost int           // default bcrypt.DefaultCost
}

// Server is the fake backend.
type Server struct {
	cfg     Config
	catalog *catalog
	tokens  *TokenStore

	gen          atomic.Int64 // access token generation
	refreshCalls atomic.Int64
	loginCalls   atomic.Int64
	refreshDelay atomic.Int64 // nanoseconds
}

// New creates a server with the seed catalog and the default admin.
func New(cfg Config) (*Server, error) {
	if len(cfg.JWTSecret) == 0 {
		return nil, errors.New("mockshop: JWT secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultAdminPassword), cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		catalog: newCatalog(),
		tokens:  NewTokenStore(cfg.RefreshTTL),
	}
	s.catalog.addAdmin(api.Admin{
		ID:    DefaultAdminID,
		Name:  "Shop Admin",
		Email: DefaultAdminEmail,
		Role:  "admin",
	}, hash)

	return s, nil
}

// Routes returns the HTTP handler serving the admin API
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(correlationID)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", s.Login)
		r.Post("/refresh", s.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/me", s.GetMe)
			r.Put("/me", s.UpdateMe)

			r.Get("/getproducts", s.ListProducts)
			r.Post("/addproduct", s.AddProduct)
			r.Put("/product/{id}", s.UpdateProduct)
			r.Delete("/products/{id}", s.DeleteProduct)
			r.Post("/stockproduct", s.UpdateStock)

			r.Get("/categories", s.ListCategories)
			r.Get("/categories/{id}/sub", s.ListSubCategories)
			r.Get("/subcategories/{id}/sub", s.ListSubCategories)

			r.Get("/allorders/date", s.ListOrders)
			r.Put("/orders/status", s.UpdateOrderStatus)
			r.Get("/orders/user/{id}", s.ListUserOrders)
			r.Get("/orders/{id}", s.GetOrder)

			r.Get("/report", s.SalesReport)
			r.Get("/reports", s.DailyReports)
			r.Get("/brand-stats", s.BrandStats)
			r.Get("/stats", s.Stats)
			r.Get("/out-of-stock", s.OutOfStock)
			r.Get("/low-stock", s.LowStock)

			r.Get("/userlist", s.ListUsers)
		})
	})

	return r
}

// ExpireAccessTokens invalidates every access token issued so far. Refresh
// tokens stay valid.
func (s *Server) ExpireAccessTokens() {
	gen := s.gen.Add(1)
	log.Info().Int64("generation", gen).Msg("access tokens expired")
}

// RevokeRefreshTokens invalidates every refresh token of the admin
func (s *Server) RevokeRefreshTokens(adminID string) int {
	return s.tokens.RevokeAdmin(adminID)
}

// SetRefreshDelay makes /admin/refresh wait d before answering
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.refreshDelay.Store(int64(d))
}

// RefreshCalls returns how many refresh requests were received
func (s *Server) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

// LoginCalls returns how many login requests were received
func (s *Server) LoginCalls() int64 {
	return s.loginCalls.Load()
}

// correlationID reuses the caller's X-Correlation-ID (or mints one) and puts a
// request logger carrying it on the context.
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Correlation-ID", id)

		logger := log.With().Str("correlationId", id).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		log.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}
