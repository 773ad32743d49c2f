package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/tuckborough/haven/internal/auth"
	"github.com/tuckborough/haven/internal/events"
	"github.com/tuckborough/haven/internal/handler"
	"github.com/tuckborough/haven/internal/membership"
	"github.com/tuckborough/haven/internal/middleware"
	"github.com/tuckborough/haven/internal/readiness"
	"github.com/tuckborough/haven/internal/store"
)

const maintenanceInterval = time.Minute

type Config struct {
	TokenSecret string
	// TokenIssuer names the token authority; defaults to "haven".
	TokenIssuer string
}

type Server struct {
	db              *sql.DB
	hub             *events.Hub
	userH           *handler.UserHandler
	householdH      *handler.HouseholdHandler
	invitationH     *handler.InvitationHandler
	membershipH     *handler.MembershipHandler
	statusH         *handler.SafetyStatusHandler
	helpRequestH    *handler.HelpRequestHandler
	profileH        *handler.ProfileHandler
	readinessH      *handler.ReadinessHandler
	auditH          *handler.AuditHandler
	userStore       *store.UserStore
	householdStore  *store.HouseholdStore
	invitationStore *store.InvitationStore
	tokens          *auth.TokenService
	rateLimiter     *middleware.RateLimiter
	worker          *readiness.Worker
	logger          *slog.Logger
	maintCancel     context.CancelFunc
	maintDone       chan struct{}
}

func New(db *sql.DB, cfg Config, scorer readiness.Scorer, logger *slog.Logger) *Server {
	hub := events.NewHub(logger.With("component", "events"))

	userStore := store.NewUserStore(db)
	householdStore := store.NewHouseholdStore(db)
	invitationStore := store.NewInvitationStore(db)
	auditStore := store.NewAuditStore(db)
	statusStore := store.NewSafetyStatusStore(db)
	helpRequestStore := store.NewHelpRequestStore(db)
	profileStore := store.NewVulnerabilityProfileStore(db)
	readinessStore := store.NewReadinessStore(db)

	manager := membership.NewManager(db)

	issuer := cfg.TokenIssuer
	if issuer == "" {
		issuer = "haven"
	}
	tokens := auth.NewTokenService(cfg.TokenSecret, issuer)

	worker := readiness.NewWorker(readinessStore, profileStore, householdStore, scorer, func(householdID int64, score float64) {
		hub.Broadcast(events.Event{
			Type:        "readiness_updated",
			Entity:      "readiness",
			Action:      "updated",
			HouseholdID: householdID,
			Extra:       map[string]any{"score": score},
		})
	}, logger.With("component", "readiness"))

	return &Server{
		db:              db,
		hub:             hub,
		userH:           handler.NewUserHandler(userStore, householdStore, tokens, logger.With("component", "user")),
		householdH:      handler.NewHouseholdHandler(householdStore, userStore, auditStore, hub, logger.With("component", "household")),
		invitationH:     handler.NewInvitationHandler(manager, invitationStore, householdStore, userStore, hub, logger.With("component", "invitation")),
		membershipH:     handler.NewMembershipHandler(manager, householdStore, hub, logger.With("component", "membership")),
		statusH:         handler.NewSafetyStatusHandler(statusStore, householdStore, userStore, hub, logger.With("component", "safety_status")),
		helpRequestH:    handler.NewHelpRequestHandler(helpRequestStore, householdStore, userStore, hub, logger.With("component", "help_request")),
		profileH:        handler.NewProfileHandler(profileStore, householdStore, readinessStore, hub, logger.With("component", "profile")),
		readinessH:      handler.NewReadinessHandler(readinessStore, householdStore, userStore, logger.With("component", "readiness")),
		auditH:          handler.NewAuditHandler(auditStore, householdStore, userStore, logger.With("component", "audit")),
		userStore:       userStore,
		householdStore:  householdStore,
		invitationStore: invitationStore,
		tokens:          tokens,
		rateLimiter:     middleware.NewRateLimiter(),
		worker:          worker,
		logger:          logger,
	}
}

// Start launches the recalculation worker and the maintenance loop.
func (s *Server) Start(ctx context.Context) {
	s.worker.Start(ctx)

	ctx, s.maintCancel = context.WithCancel(ctx)
	s.maintDone = make(chan struct{})
	go s.maintenanceLoop(ctx)
}

// Stop winds down background work and waits for it.
func (s *Server) Stop() {
	if s.maintCancel != nil {
		s.maintCancel()
		<-s.maintDone
	}
	s.worker.Stop()
}

// maintenanceLoop sweeps overdue pending invitations into expired and
// prunes stale rate limiter state. Redemption also expires on contact;
// the sweep keeps listings honest for invitations nobody touches.
func (s *Server) maintenanceLoop(ctx context.Context) {
	defer close(s.maintDone)
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.invitationStore.ExpireOverdue(time.Now())
			if err != nil {
				s.logger.Error("expire invitations", "error", err)
			} else if n > 0 {
				s.logger.Info("expired invitations", "count", n)
			}
			s.rateLimiter.Cleanup()
		}
	}
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/register", s.rateLimitedHandler(s.userH.Register))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes — wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.tokens, s.userStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Identity routes
	mux.HandleFunc("GET /api/me", s.userH.Me)
	mux.HandleFunc("PUT /api/me", s.userH.Update)
	mux.HandleFunc("PUT /api/me/household", s.userH.SetActiveHousehold)

	// Household routes
	mux.HandleFunc("POST /api/households", s.householdH.Create)
	mux.HandleFunc("GET /api/households/current", s.householdH.Current)
	mux.HandleFunc("GET /api/households/{id}", s.householdH.Get)
	mux.HandleFunc("PUT /api/households/{id}", s.householdH.Rename)
	mux.HandleFunc("GET /api/households/{id}/members", s.householdH.Members)
	mux.HandleFunc("POST /api/households/{id}/transfer", s.membershipH.Transfer)
	mux.HandleFunc("POST /api/households/leave", s.membershipH.Leave)
	mux.HandleFunc("GET /api/households/{id}/profile", s.profileH.Get)
	mux.HandleFunc("PUT /api/households/{id}/profile", s.profileH.Put)

	// Invitation routes — redeem is rate limited against code guessing
	mux.HandleFunc("POST /api/invitations", s.invitationH.Create)
	mux.HandleFunc("GET /api/invitations", s.invitationH.List)
	mux.HandleFunc("POST /api/invitations/redeem", s.rateLimitedHandler(s.invitationH.Redeem))
	mux.HandleFunc("DELETE /api/invitations/{id}", s.invitationH.Revoke)

	// Safety status routes
	mux.HandleFunc("POST /api/statuses", s.statusH.Create)
	mux.HandleFunc("GET /api/statuses", s.statusH.List)
	mux.HandleFunc("GET /api/statuses/{id}", s.statusH.Get)
	mux.HandleFunc("PUT /api/statuses/{id}", s.statusH.Update)
	mux.HandleFunc("DELETE /api/statuses/{id}", s.statusH.Delete)

	// Help request routes
	mux.HandleFunc("POST /api/help-requests", s.helpRequestH.Create)
	mux.HandleFunc("GET /api/help-requests", s.helpRequestH.List)
	mux.HandleFunc("GET /api/help-requests/{id}", s.helpRequestH.Get)
	mux.HandleFunc("PUT /api/help-requests/{id}", s.helpRequestH.Update)
	mux.HandleFunc("DELETE /api/help-requests/{id}", s.helpRequestH.Delete)

	// Readiness + audit
	mux.HandleFunc("GET /api/readiness", s.readinessH.Get)
	mux.HandleFunc("GET /api/audit", s.auditH.List)

	// WebSocket
	mux.HandleFunc("GET /ws", events.HandleWebSocket(s.hub, s.householdStore, s.logger.With("component", "events")))
}
