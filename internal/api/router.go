package api

import (
	"net/http"

	"github.com/ayo6706/interbank-transfers/internal/api/handler"
	"github.com/ayo6706/interbank-transfers/internal/api/middleware"
	"github.com/ayo6706/interbank-transfers/internal/api/spec"
	"github.com/ayo6706/interbank-transfers/internal/config"
	"github.com/ayo6706/interbank-transfers/internal/idempotency"
	"github.com/ayo6706/interbank-transfers/internal/notify"
	"github.com/ayo6706/interbank-transfers/internal/protocol"
	"github.com/ayo6706/interbank-transfers/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        handler.Pinger
	idemStore *idempotency.Store
	redis     redis.Cmdable
	transfers *service.TransferService
	executor  *service.Executor
	hub       *notify.Hub
}

// Deps groups what the router needs from the application.
type Deps struct {
	DB          handler.Pinger
	Idempotency *idempotency.Store
	Redis       redis.Cmdable
	Transfers   *service.TransferService
	Executor    *service.Executor
	Hub         *notify.Hub
}

func NewRouter(cfg *config.Config, logger *zap.Logger, deps Deps) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		db:        deps.DB,
		idemStore: deps.Idempotency,
		redis:     deps.Redis,
		transfers: deps.Transfers,
		executor:  deps.Executor,
		hub:       deps.Hub,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	transferHandler := handler.NewTransferHandler(api.transfers)
	interbankHandler := handler.NewInterbankHandler(api.executor)
	eventsHandler := handler.NewEventsHandler(api.hub, api.transfers)

	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Partner banks authenticate per message with the shared-secret digest.
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Post(protocol.PathIBANTransfer, interbankHandler.TransferByIBAN)
		r.Post(protocol.PathPhoneTransfer, interbankHandler.TransferByPhone)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).Post("/v1/transfers", transferHandler.Create)
		r.Get("/v1/transfers/{id}", transferHandler.Get)
	})

	// Browsers cannot set headers on EventSource, so the token may come in the query.
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   api.cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Cache-Control", "Last-Event-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Use(middleware.QueryTokenMiddleware)
		r.Use(middleware.AuthMiddleware)
		r.Get("/v1/events", eventsHandler.Stream)
	})

	return r
}
