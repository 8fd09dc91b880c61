// Package httpapi exposes the subscription and scheduling operations over
// HTTP for the PWA client.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"push_notification_server/internal/app"
	"push_notification_server/internal/domain/subscription"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const serviceName = "Aiding Migraine Notification Server"

// SubscriptionLister backs the admin listing endpoint.
type SubscriptionLister interface {
	ListSubscriptions(ctx context.Context) ([]*subscription.Subscription, error)
}

type Config struct {
	Production         bool
	AllowedOrigins     []string
	AdminAPIKey        string
	RateLimitPerMinute int
	TestRatePerMinute  int // send-test is stricter, default 10
}

type Handler struct {
	svc    app.NotificationService
	admin  SubscriptionLister
	logger logrus.FieldLogger
	cfg    Config
	now    func() time.Time
}

func NewHandler(svc app.NotificationService, admin SubscriptionLister, cfg Config, logger logrus.FieldLogger) *Handler {
	if cfg.TestRatePerMinute <= 0 {
		cfg.TestRatePerMinute = 10
	}
	return &Handler{svc: svc, admin: admin, logger: logger, cfg: cfg, now: time.Now}
}

// Routes builds the router. Health, root and metrics are not rate limited.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	// Preflight requests never reach route-level middleware, so CORS sits on
	// the root router.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Get("/", h.Root)
	r.Handle("/metrics", promhttp.Handler())

	limiter := newIPRateLimiter(h.cfg.RateLimitPerMinute)
	strict := newIPRateLimiter(h.cfg.TestRatePerMinute)

	r.Group(func(api chi.Router) {
		api.Use(limiter.Middleware)

		api.Route("/api/subscriptions", func(sr chi.Router) {
			sr.Post("/subscribe", h.Subscribe)
			sr.Post("/unsubscribe", h.Unsubscribe)
			sr.Post("/update-preferences", h.UpdatePreferences)
			sr.With(h.requireAdmin).Get("/", h.ListSubscriptions)
		})

		api.Route("/api/notifications", func(nr chi.Router) {
			nr.Post("/schedule-followup", h.ScheduleFollowUp)
			nr.Post("/schedule-active-checkin", h.ScheduleActiveCheckIn)
			nr.Post("/cancel-active-checkin", h.CancelActiveCheckIn)
			nr.With(strict.Middleware).Post("/send-test", h.SendTest)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found", "")
	})
	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"took":       time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("X-Content-Type-Options", "nosniff")
		hdr.Set("X-Frame-Options", "DENY")
		hdr.Set("Referrer-Policy", "no-referrer")
		hdr.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}
