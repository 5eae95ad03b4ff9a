package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"dreamkeys/auth"
	"dreamkeys/bid"
	"dreamkeys/metrics"
	"dreamkeys/policy"
	"dreamkeys/property"
	"dreamkeys/wishlist"
)

type UserDirectory interface {
	Register(ctx context.Context, req auth.RegisterRequest) (auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	RoleOf(ctx context.Context, email string) (auth.Role, error)
	GetByEmail(ctx context.Context, email string) (auth.User, error)
	List(ctx context.Context) ([]auth.User, error)
	SetRole(ctx context.Context, actor, userID string, role auth.Role) (auth.User, error)
	MarkFraud(ctx context.Context, actor, userID string) (auth.User, error)
	Delete(ctx context.Context, actor, userID string) (auth.User, error)
}

type Authorizer interface {
	Check(ctx context.Context, req *policy.Request, guards ...policy.Guard) (auth.Claims, error)
}

type PropertyService interface {
	Create(ctx context.Context, req *policy.Request, params property.CreateParams) (property.Property, error)
	Get(ctx context.Context, id string) (property.Property, error)
	List(ctx context.Context, filter property.ListFilter) ([]property.Property, error)
	Update(ctx context.Context, req *policy.Request, id string, params property.UpdateParams) (property.Property, error)
	Verify(ctx context.Context, req *policy.Request, id string, outcome property.Status, opts property.VerifyOptions) (property.Property, error)
	SetAdvertised(ctx context.Context, req *policy.Request, id string, advertised bool) (property.Property, error)
	Delete(ctx context.Context, req *policy.Request, id string) (property.Property, error)
	DeleteAllByAgent(ctx context.Context, req *policy.Request, agentEmail string) (int64, error)
	Report(ctx context.Context, req *policy.Request, id string, params property.ReportParams) (property.Report, error)
	ListReports(ctx context.Context, req *policy.Request) ([]property.Report, error)
}

type BidService interface {
	Create(ctx context.Context, req *policy.Request, params bid.CreateParams) (bid.Bid, error)
	Get(ctx context.Context, id string) (bid.Bid, error)
	ListForBuyer(ctx context.Context, req *policy.Request, email string) ([]bid.View, error)
	ListForAgent(ctx context.Context, req *policy.Request, email string) ([]bid.View, error)
	Accept(ctx context.Context, req *policy.Request, id string) (bid.Bid, error)
	Reject(ctx context.Context, req *policy.Request, id string) (bid.Bid, error)
}

type WishlistService interface {
	Add(ctx context.Context, req *policy.Request, propertyID string) (wishlist.Entry, error)
	List(ctx context.Context, req *policy.Request) ([]wishlist.Entry, error)
	Get(ctx context.Context, req *policy.Request, id string) (wishlist.Entry, error)
	Remove(ctx context.Context, req *policy.Request, id string) error
}

type rateLimit struct {
	enabled bool
	limit   int
	window  time.Duration
}

// Server holds the HTTP handlers. Every authorization decision is made by
// the services or by authz; handlers only translate.
type Server struct {
	users      UserDirectory
	authz      Authorizer
	properties PropertyService
	bids       BidService
	wishlist   WishlistService
	rl         rateLimit
	ping       func(ctx context.Context) error
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(accessLog)
	r.Use(metrics.HTTP)
	r.Use(bearerToken)
	if s.rl.enabled && s.rl.limit > 0 {
		r.Use(httprate.LimitByIP(s.rl.limit, s.rl.window))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Post("/jwt", s.handleLogin)

	r.Route("/users", func(r chi.Router) {
		r.Post("/", s.handleRegister)
		r.Get("/", s.handleListUsers)
		r.Get("/role", s.handleUserRole)
		r.Get("/by-email", s.handleUserByEmail)
		r.Patch("/{id}/role", s.handleSetRole)
		r.Patch("/{id}/fraud", s.handleMarkFraud)
		r.Delete("/{id}", s.handleDeleteUser)
	})

	r.Route("/properties", func(r chi.Router) {
		r.Get("/", s.handleListProperties)
		r.Post("/", s.handleCreateProperty)
		r.Delete("/agent/{email}", s.handlePurgeAgent)
		r.Get("/{id}", s.handleGetProperty)
		r.Patch("/{id}", s.handleUpdateProperty)
		r.Delete("/{id}", s.handleDeleteProperty)
		r.Patch("/{id}/verify", s.handleVerify)
		r.Patch("/{id}/advertise", s.handleAdvertise(true))
		r.Patch("/{id}/remove-advertise", s.handleAdvertise(false))
		r.Post("/{id}/report", s.handleReport)
	})
	r.Get("/reports", s.handleListReports)

	r.Route("/wishlist", func(r chi.Router) {
		r.Post("/", s.handleAddWishlist)
		r.Get("/", s.handleListWishlist)
		r.Get("/{id}", s.handleGetWishlist)
		r.Delete("/{id}", s.handleRemoveWishlist)
	})

	r.Route("/bids", func(r chi.Router) {
		r.Post("/", s.handleCreateBid)
		r.Get("/{id}", s.handleGetBid)
		r.Get("/buyer/{email}", s.handleBuyerBids)
		r.Get("/agent/{email}", s.handleAgentBids)
		r.Patch("/{id}/accept", s.handleDecideBid(bid.StatusAccepted))
		r.Patch("/{id}/reject", s.handleDecideBid(bid.StatusRejected))
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
