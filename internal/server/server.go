package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/chorestars/internal/handler"
	"github.com/dukerupert/chorestars/internal/ledger"
	"github.com/dukerupert/chorestars/internal/middleware"
	"github.com/dukerupert/chorestars/internal/notify"
	"github.com/dukerupert/chorestars/internal/push"
	"github.com/dukerupert/chorestars/internal/reward"
	"github.com/dukerupert/chorestars/internal/scheduler"
	"github.com/dukerupert/chorestars/internal/store"
	"github.com/dukerupert/chorestars/internal/taskflow"
	ws "github.com/dukerupert/chorestars/internal/websocket"
)

type Options struct {
	Location           *time.Location
	OperationTimeout   time.Duration
	ReadRetries        uint64
	SweepInterval      time.Duration
	RateLimitPerMinute int
	Push               push.Config
	// Now overrides the engine clock. Nil means time.Now.
	Now func() time.Time
}

type Server struct {
	db          *sql.DB
	repo        *store.Repository
	hub         *ws.Hub
	dispatcher  *notify.Dispatcher
	engine      *taskflow.Engine
	scheduler   *scheduler.Scheduler
	familyH     *handler.FamilyHandler
	templateH   *handler.TemplateHandler
	instanceH   *handler.InstanceHandler
	starsH      *handler.StarsHandler
	rewardH     *handler.RewardHandler
	pushH       *handler.PushHandler
	sweepH      *handler.SweepHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, opts Options, logger *slog.Logger) *Server {
	repo := store.NewRepository(db)
	hub := ws.NewHub(logger.With("component", "websocket"))
	pushSvc := push.NewService(opts.Push)
	dispatcher := notify.New(hub, pushSvc, repo, logger.With("component", "notify"))

	engine := taskflow.NewEngine(repo, dispatcher, logger.With("component", "taskflow"), taskflow.Options{
		Timeout:     opts.OperationTimeout,
		ReadRetries: opts.ReadRetries,
		Location:    opts.Location,
		Now:         opts.Now,
	})
	ledgerSvc := ledger.NewService(repo, dispatcher, logger.With("component", "ledger"), ledger.Options{
		Timeout:     opts.OperationTimeout,
		ReadRetries: opts.ReadRetries,
	})
	rewardSvc := reward.NewService(repo, dispatcher, logger.With("component", "reward"), opts.OperationTimeout)
	sched := scheduler.New(repo, engine, logger.With("component", "scheduler"), opts.SweepInterval)

	return &Server{
		db:          db,
		repo:        repo,
		hub:         hub,
		dispatcher:  dispatcher,
		engine:      engine,
		scheduler:   sched,
		familyH:     handler.NewFamilyHandler(engine, logger.With("component", "family")),
		templateH:   handler.NewTemplateHandler(engine, logger.With("component", "template")),
		instanceH:   handler.NewInstanceHandler(engine, logger.With("component", "instance")),
		starsH:      handler.NewStarsHandler(ledgerSvc, repo.Members, logger.With("component", "stars")),
		rewardH:     handler.NewRewardHandler(rewardSvc, logger.With("component", "reward_handler")),
		pushH:       handler.NewPushHandler(repo.Push, pushSvc, logger.With("component", "push_handler")),
		sweepH:      handler.NewSweepHandler(sched, engine.Now, logger.With("component", "sweep")),
		rateLimiter: middleware.NewRateLimiter(opts.RateLimitPerMinute),
		logger:      logger,
	}
}

// Scheduler returns the recurrence and expiry scheduler so the caller can
// start and stop it.
func (s *Server) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// Dispatcher returns the notification dispatcher for draining on shutdown.
func (s *Server) Dispatcher() *notify.Dispatcher {
	return s.dispatcher
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no identity required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("POST /api/families", s.familyH.Create)

	// Identified routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	identify := middleware.Identify(s.engine, s.logger.With("component", "identify"))
	outerMux.Handle("/", identify(protectedMux))

	limited := middleware.RateLimit(s.rateLimiter, middleware.RealIP)(outerMux)
	logged := middleware.RequestLogger(s.logger.With("component", "http"))(limited)
	return middleware.RequestID(logged)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"status": status, "clients": s.hub.ClientCount()})
}

func guardian(h http.HandlerFunc) http.Handler {
	return middleware.RequireGuardian(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Members
	mux.HandleFunc("GET /api/members", s.familyH.ListMembers)
	mux.Handle("POST /api/members", guardian(s.familyH.AddMember))
	mux.Handle("DELETE /api/members/{id}", guardian(s.familyH.RemoveMember))
	mux.HandleFunc("POST /api/members/{id}/pin", s.familyH.SetPIN)
	mux.HandleFunc("GET /api/members/{id}/stars", s.starsH.MemberStars)

	// Templates
	mux.HandleFunc("GET /api/templates", s.templateH.List)
	mux.Handle("POST /api/templates", guardian(s.templateH.Create))
	mux.Handle("PUT /api/templates/{id}", guardian(s.templateH.Update))
	mux.HandleFunc("POST /api/templates/{id}/enabled", s.templateH.SetEnabled)
	mux.Handle("POST /api/templates/{id}/archive", guardian(s.templateH.Archive))

	// Instances
	mux.HandleFunc("GET /api/instances", s.instanceH.List)
	mux.HandleFunc("GET /api/instances/{id}", s.instanceH.Get)
	mux.Handle("POST /api/instances", guardian(s.instanceH.Assign))
	mux.Handle("POST /api/instances/spin", guardian(s.instanceH.Spin))
	mux.HandleFunc("POST /api/instances/{id}/complete", s.instanceH.Complete)
	mux.Handle("POST /api/instances/{id}/decision", guardian(s.instanceH.Decide))
	mux.HandleFunc("GET /api/instances/{id}/approvals", s.instanceH.Approvals)
	mux.Handle("POST /api/instances/clear-overdue", guardian(s.instanceH.ClearOverdue))

	// Stars
	mux.Handle("POST /api/stars/credit", guardian(s.starsH.Credit))
	mux.Handle("POST /api/stars/debit", guardian(s.starsH.Debit))
	mux.HandleFunc("GET /api/leaderboard", s.starsH.Leaderboard)

	// Rewards
	mux.HandleFunc("GET /api/rewards", s.rewardH.List)
	mux.Handle("POST /api/rewards", guardian(s.rewardH.Create))
	mux.HandleFunc("POST /api/rewards/{id}/redeem", s.rewardH.Redeem)

	mux.Handle("POST /api/sweep", guardian(s.sweepH.Sweep))

	// Push notifications
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscribe", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
}
