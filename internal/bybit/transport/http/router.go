package http

import (
	"net/http"

	"tvbridge/pkg/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions параметры, которые приходят из конфига
type RouterOptions struct {
	CORSOrigins     []string
	TrustProxy      bool
	JWTSecret       string
	MetricsUser     string
	MetricsPassword string
	RateLimiter     *middleware.RateLimiter
	MetricsHandler  http.Handler
}

// NewRouter собирает chi роутер со всеми эндпоинтами
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	// Без доверенного прокси заголовки клиента не должны влиять на ключ rate limiter
	if opts.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.MetricsMiddleware)

	// CORS
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if opts.RateLimiter != nil {
		r.Use(opts.RateLimiter.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Get("/ready", h.Ready)

	if opts.MetricsHandler != nil {
		r.Group(func(mr chi.Router) {
			if opts.MetricsUser != "" {
				mr.Use(middleware.BasicAuth(opts.MetricsUser, opts.MetricsPassword))
			}
			mr.Handle("/metrics", opts.MetricsHandler)
		})
	}

	// TradingView не умеет слать заголовки авторизации, поэтому только passphrase в теле
	r.Group(func(wr chi.Router) {
		wr.Use(middleware.LimitBody)
		wr.Post("/webhook", h.Webhook)
	})

	// Прямой API
	r.Group(func(pr chi.Router) {
		pr.Use(middleware.ValidateRequest)
		if opts.JWTSecret != "" {
			pr.Use(middleware.JWTAuth(opts.JWTSecret))
		}

		pr.Post("/order", h.CreateOrder)
		pr.Post("/cancel-order", h.CancelOrder)
		pr.Post("/cancel-all-orders", h.CancelAllOrders)
		pr.Post("/close-position", h.ClosePosition)
		pr.Get("/position/{symbol}", h.GetPosition)
		pr.Get("/balance", h.GetBalance)
	})

	return r
}
