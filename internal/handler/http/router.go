package http

import (
	"io"
	"log/slog"

	"github.com/dairycoop/settlement-backend/internal/domain/user"
	"github.com/dairycoop/settlement-backend/internal/handler/http/middleware"
	"github.com/dairycoop/settlement-backend/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
)

// NewLogger builds the ECS-formatted JSON logger shared by the router and
// background components.
func NewLogger(out io.Writer, level slog.Level, env string) *slog.Logger {
	logFormat := httplog.SchemaECS.Concise(env != "production")
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "dairy-settlement"),
		slog.String("version", "v1.0.0"),
		slog.String("env", env),
	)
}

func NewRouter(
	logger *slog.Logger,
	allowedOrigins []string,
	JWTService jwt.Service,
	settlementHandler SettlementHandler,
	notificationHandler NotificationHandler,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.AllowContentEncoding("application/json"))
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	r.Route("/api/v1", func(r chi.Router) {

		// SSE authenticates with its own short-lived query token
		r.Get("/events/stream", notificationHandler.Stream)

		// Requires authentication
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(JWTService.JWTAuth()))
			r.Use(middleware.AuthRequired(JWTService.JWTAuth()))

			r.Get("/events/token", notificationHandler.GetSSEToken)
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationHandler.List)
				r.Post("/read", notificationHandler.MarkAsRead)
			})

			r.Route("/collectors/{collectorId}", func(r chi.Router) {
				r.With(middleware.RequirePermission(user.PermissionCollectionView)).Get("/collections", settlementHandler.ListCollections)
				r.With(middleware.RequirePermission(user.PermissionCollectionView)).Get("/summaries", settlementHandler.ListSummaries)
				r.With(middleware.RequirePermission(user.PermissionPaymentView)).Get("/period-overview", settlementHandler.PeriodOverview)

				r.Route("/summaries/{date}", func(r chi.Router) {
					r.Use(middleware.RequirePermission(user.PermissionSummaryFinalize))
					r.Put("/received", settlementHandler.RecordReceived)
					r.Post("/recompute", settlementHandler.RecomputeSummary)
				})
			})

			r.Route("/collections", func(r chi.Router) {
				r.With(middleware.RequirePermission(user.PermissionCollectionRecord)).Post("/", settlementHandler.RecordCollection)
				r.With(middleware.RequirePermission(user.PermissionCollectionApprove)).Post("/{id}/approve", settlementHandler.ApproveCollection)
			})

			r.Route("/penalty-configs", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequirePermission(user.PermissionPenaltyView))
					r.Get("/", settlementHandler.ListPenaltyConfigs)
					r.Get("/active", settlementHandler.GetActivePenaltyConfig)
					r.Post("/preview", settlementHandler.PreviewPenalty)
				})

				// Admin only
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequirePermission(user.PermissionPenaltyManage))
					r.Post("/", settlementHandler.CreatePenaltyConfig)
					r.Post("/{id}/activate", settlementHandler.ActivatePenaltyConfig)
				})
			})

			r.Route("/collector-payments", func(r chi.Router) {
				r.With(middleware.RequirePermission(user.PermissionPaymentGenerate)).Post("/", settlementHandler.GeneratePayment)
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequirePermission(user.PermissionPaymentView))
					r.Get("/", settlementHandler.ListPayments)
					r.Get("/{id}", settlementHandler.GetPayment)
				})
				r.With(middleware.RequirePermission(user.PermissionPaymentReview)).Post("/{id}/review", settlementHandler.ReviewPayment)
				r.With(middleware.RequirePermission(user.PermissionPaymentPay)).Post("/{id}/pay", settlementHandler.PayPayment)
			})
		})
	})
	return r
}
