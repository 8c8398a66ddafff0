// Package app содержит HTTP-обработчики сервиса коротких ссылок.
package app

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tempizhere/redirector/internal/analytics"
	"github.com/tempizhere/redirector/internal/classifier"
	"github.com/tempizhere/redirector/internal/middleware"
	"github.com/tempizhere/redirector/internal/models"
	"github.com/tempizhere/redirector/internal/ratelimit"
	"github.com/tempizhere/redirector/internal/service"
	"go.uber.org/zap"
)

// DefaultCountryHeader заголовок, в который граничный прокси пишет код страны посетителя
const DefaultCountryHeader = "CF-IPCountry"

// App содержит хендлеры и зависимости
type App struct {
	svc           *service.Service
	classifier    *classifier.Classifier
	limiter       *ratelimit.Limiter
	dispatcher    *analytics.Dispatcher
	countryHeader string
	logger        *zap.Logger
}

// NewApp создаёт новое приложение. limiter может быть nil, тогда анонимное создание не ограничивается.
func NewApp(svc *service.Service, cls *classifier.Classifier, limiter *ratelimit.Limiter, dispatcher *analytics.Dispatcher, countryHeader string, logger *zap.Logger) *App {
	if countryHeader == "" {
		countryHeader = DefaultCountryHeader
	}
	return &App{
		svc:           svc,
		classifier:    cls,
		limiter:       limiter,
		dispatcher:    dispatcher,
		countryHeader: countryHeader,
		logger:        logger,
	}
}

// HandleRedirect обрабатывает GET-запросы на "/{shortcode}" любого поддомена
func (a *App) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	lookup, ok := a.classifier.Classify(r.Method, r.Host, r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	m, found, err := a.svc.Resolve(r.Context(), lookup)
	if err != nil {
		a.logger.Error("Failed to resolve mapping",
			zap.String("shortcode", lookup.Shortcode),
			zap.String("subdomain", lookup.Subdomain),
			zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Location", m.Destination)
	w.Header().Set("Cache-Control", "private, max-age=0")
	w.WriteHeader(http.StatusFound)
	if err := http.NewResponseController(w).Flush(); err != nil {
		a.logger.Debug("Response flush unsupported", zap.Error(err))
	}

	if a.dispatcher != nil {
		a.dispatcher.Dispatch(r.Context(), m.ID, models.RequestMeta{
			SourceIP:  middleware.GetClientIP(r),
			Referrer:  r.Referer(),
			UserAgent: r.UserAgent(),
			Country:   r.Header.Get(a.countryHeader),
		})
	}
}

// HandleCreate обрабатывает POST-запросы на "/api/links"
func (a *App) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeJSONResponse(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid JSON"})
		return
	}

	owner := middleware.GetOwner(r.Context())
	source := middleware.GetClientIP(r)
	limited := owner == nil && a.limiter != nil

	if limited {
		decision, err := a.limiter.Check(r.Context(), source)
		if err != nil {
			a.logger.Warn("Rate limit check failed, allowing request", zap.String("source", source), zap.Error(err))
		} else if !decision.Allowed {
			setRateHeaders(w, decision.Limit, 0)
			w.Header().Set("Retry-After", retryAfter(decision.ResetAt, time.Now()))
			a.writeJSONResponse(w, http.StatusTooManyRequests, models.ErrorResponse{Error: "daily link limit reached"})
			return
		}
	}

	m, err := a.svc.CreateMapping(r.Context(), req, owner)
	if err != nil {
		a.writeError(w, err)
		return
	}

	if limited {
		count, err := a.limiter.Increment(r.Context(), source)
		if err != nil {
			a.logger.Warn("Rate limit increment failed", zap.String("source", source), zap.Error(err))
		} else {
			setRateHeaders(w, a.limiter.Max(), a.limiter.Max()-int(count))
		}
	}

	a.writeJSONResponse(w, http.StatusCreated, a.toResponse(m))
}

// HandleShortest обрабатывает POST-запросы на "/api/links/{id}/shortest"
func (a *App) HandleShortest(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := a.ownerAndID(w, r)
	if !ok {
		return
	}

	m, err := a.svc.Shortest(r.Context(), id, owner)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSONResponse(w, http.StatusOK, a.toResponse(m))
}

// HandleDelete обрабатывает DELETE-запросы на "/api/links/{id}"
func (a *App) HandleDelete(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := a.ownerAndID(w, r)
	if !ok {
		return
	}

	if err := a.svc.DeleteMapping(r.Context(), id, owner); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRateLimit обрабатывает GET-запросы на "/api/ratelimit"
func (a *App) HandleRateLimit(w http.ResponseWriter, r *http.Request) {
	if a.limiter == nil {
		a.writeJSONResponse(w, http.StatusNotFound, models.ErrorResponse{Error: "rate limiting disabled"})
		return
	}

	decision, err := a.limiter.Check(r.Context(), middleware.GetClientIP(r))
	if err != nil {
		a.logger.Warn("Rate limit check failed", zap.Error(err))
		a.writeJSONResponse(w, http.StatusServiceUnavailable, models.ErrorResponse{Error: "rate limit store unavailable"})
		return
	}
	setRateHeaders(w, decision.Limit, decision.Remaining)
	a.writeJSONResponse(w, http.StatusOK, decision)
}

// HandlePing обрабатывает GET-запросы на "/ping"
func (a *App) HandlePing(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Ping(r.Context()); err != nil {
		a.logger.Error("Storage ping failed", zap.Error(err))
		http.Error(w, "Database connection failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ownerAndID извлекает владельца и идентификатор ссылки; при ошибке ответ уже записан
func (a *App) ownerAndID(w http.ResponseWriter, r *http.Request) (*models.Owner, uuid.UUID, bool) {
	owner := middleware.GetOwner(r.Context())
	if owner == nil {
		a.writeJSONResponse(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.writeJSONResponse(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid link id"})
		return nil, uuid.Nil, false
	}
	return owner, id, true
}

func (a *App) toResponse(m *models.Mapping) models.MappingResponse {
	return models.MappingResponse{
		ID:          m.ID.String(),
		ShortURL:    a.svc.ShortURL(m),
		Shortcode:   m.Shortcode,
		Subdomain:   m.Subdomain,
		Destination: m.Destination,
		ExpiresAt:   m.ExpiresAt,
	}
}

// StatusCode возвращает HTTP-статус для ошибки сервиса
func StatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrShortcodeTaken):
		return http.StatusConflict
	case errors.Is(err, service.ErrQuotaExceeded):
		return http.StatusForbidden
	case errors.Is(err, service.ErrExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError пишет ошибку сервиса в виде JSON; внутренние ошибки не раскрываются клиенту
func (a *App) writeError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	var allocErr *service.AllocationError
	if status == http.StatusInternalServerError || !errors.As(err, &allocErr) {
		a.logger.Error("Request failed", zap.Error(err))
		a.writeJSONResponse(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
		return
	}
	a.writeJSONResponse(w, status, models.ErrorResponse{Error: allocErr.Reason})
}

func setRateHeaders(w http.ResponseWriter, limit, remaining int) {
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
}

// retryAfter возвращает число секунд до сброса счётчика, не меньше одной
func retryAfter(resetAt, now time.Time) string {
	seconds := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

// writeJSONResponse пишет JSON-ответ с проверкой ошибок
func (a *App) writeJSONResponse(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to encode JSON", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		a.logger.Debug("Failed to write response", zap.Error(err))
	}
}
