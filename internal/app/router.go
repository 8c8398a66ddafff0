package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tempizhere/redirector/internal/middleware"
	"go.uber.org/zap"
)

// RouterConfig содержит настройки middleware маршрутизатора
type RouterConfig struct {
	TrustedSubnet  string
	ClientIPHeader string
	JWTSecret      string
	// Throttle ограничивает частоту переходов с одного адреса; nil отключает ограничение
	Throttle *middleware.Throttle
}

// NewRouter регистрирует обработчики приложения
func NewRouter(a *App, cfg RouterConfig, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.ClientIPMiddleware(cfg.TrustedSubnet, cfg.ClientIPHeader, logger))
	r.Use(middleware.LoggingMiddleware(logger))

	r.Get("/ping", a.HandlePing)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.OwnerMiddleware(cfg.JWTSecret, logger))
		r.Post("/links", a.HandleCreate)
		r.Post("/links/{id}/shortest", a.HandleShortest)
		r.Delete("/links/{id}", a.HandleDelete)
		r.Get("/ratelimit", a.HandleRateLimit)
	})

	r.Group(func(r chi.Router) {
		if cfg.Throttle != nil {
			r.Use(cfg.Throttle.Middleware)
		}
		r.Get("/*", a.HandleRedirect)
	})

	return r
}
