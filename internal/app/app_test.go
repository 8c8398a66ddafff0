package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tempizhere/redirector/internal/analytics"
	"github.com/tempizhere/redirector/internal/auth"
	"github.com/tempizhere/redirector/internal/classifier"
	"github.com/tempizhere/redirector/internal/models"
	"github.com/tempizhere/redirector/internal/ratelimit"
	"github.com/tempizhere/redirector/internal/repository"
	"github.com/tempizhere/redirector/internal/service"
	"go.uber.org/zap"
)

const (
	testBaseURL = "http://short.ly"
	testRoot    = "short.ly"
	testSecret  = "jwt-secret"
)

// fixedGenerator всегда возвращает один и тот же код
type fixedGenerator struct {
	code string
}

func (g fixedGenerator) Generate() (string, error) {
	return g.code, nil
}

type testEnv struct {
	repo       *repository.MemoryRepository
	dispatcher *analytics.Dispatcher
	handler    http.Handler
}

func newTestEnv(t *testing.T, opts ...service.Option) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	repo := repository.NewMemoryRepository()
	svc := service.NewService(repo, testBaseURL, testRoot, logger, opts...)
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.DefaultMax, logger)
	dispatcher := analytics.NewDispatcher(analytics.NewRecorder(repo, "fingerprint"), time.Second, logger)
	a := NewApp(svc, classifier.New(testRoot, classifier.DefaultDevHosts), limiter, dispatcher, "", logger)
	return &testEnv{
		repo:       repo,
		dispatcher: dispatcher,
		handler:    NewRouter(a, RouterConfig{JWTSecret: testSecret}, logger),
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) create(t *testing.T, body string, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, testBaseURL+"/api/links", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.do(req)
}

func token(t *testing.T, id string, quota int) string {
	t.Helper()
	tok, err := auth.IssueToken(testSecret, models.Owner{ID: id, Quota: quota}, time.Hour)
	require.NoError(t, err)
	return tok
}

func decodeMapping(t *testing.T, rec *httptest.ResponseRecorder) models.MappingResponse {
	t.Helper()
	var resp models.MappingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestRedirect_EndToEnd(t *testing.T) {
	env := newTestEnv(t)

	rec := env.create(t, `{"url":"https://example.com/landing","shortcode":"Promo"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeMapping(t, rec)
	assert.Equal(t, "promo", created.Shortcode)
	assert.Equal(t, "http://short.ly/promo", created.ShortURL)
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))

	req := httptest.NewRequest(http.MethodGet, testBaseURL+"/promo", nil)
	req.Header.Set("Referer", "https://news.example.org/article?id=1")
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148")
	req.Header.Set("CF-IPCountry", "de")
	rec = env.do(req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/landing", rec.Header().Get("Location"))

	env.dispatcher.Wait()
	id := uuid.MustParse(created.ID)
	clicks := env.repo.Clicks(id)
	require.Len(t, clicks, 1)
	assert.Equal(t, models.DeviceMobile, clicks[0].DeviceClass)
	require.NotNil(t, clicks[0].ReferrerHost)
	assert.Equal(t, "news.example.org", *clicks[0].ReferrerHost)
	require.NotNil(t, clicks[0].CountryCode)
	assert.Equal(t, "DE", *clicks[0].CountryCode)
	assert.NotEmpty(t, clicks[0].VisitorHash)
}

func TestRedirect_SubdomainPartition(t *testing.T) {
	env := newTestEnv(t)
	alice := token(t, "alice", 10)

	rec := env.create(t, `{"url":"https://acme.example/docs","shortcode":"guide","subdomain":"acme"}`, alice)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "http://acme.short.ly/guide", decodeMapping(t, rec).ShortURL)

	// Тот же код в глобальном пространстве свободен
	rec = env.create(t, `{"url":"https://other.example","shortcode":"guide"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	tests := []struct {
		name     string
		url      string
		code     int
		location string
	}{
		{name: "Partition", url: "http://acme.short.ly/guide", code: http.StatusFound, location: "https://acme.example/docs"},
		{name: "Partition with port", url: "http://ACME.short.ly:8080/guide", code: http.StatusFound, location: "https://acme.example/docs"},
		{name: "Global", url: "http://short.ly/guide", code: http.StatusFound, location: "https://other.example"},
		{name: "Dev alias", url: "http://localhost:8080/guide", code: http.StatusFound, location: "https://other.example"},
		{name: "Other partition", url: "http://beta.short.ly/guide", code: http.StatusNotFound},
		{name: "Reserved partition", url: "http://www.short.ly/guide", code: http.StatusNotFound},
		{name: "Multi label", url: "http://a.acme.short.ly/guide", code: http.StatusNotFound},
		{name: "Foreign host", url: "http://example.com/guide", code: http.StatusNotFound},
		{name: "Reserved path", url: "http://short.ly/docs", code: http.StatusNotFound},
		{name: "Empty path", url: "http://short.ly/", code: http.StatusNotFound},
		{name: "Unknown code", url: "http://short.ly/missing", code: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodGet, tt.url, nil))
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.location, rec.Header().Get("Location"))
		})
	}
	env.dispatcher.Wait()
}

func TestRedirect_Expired(t *testing.T) {
	env := newTestEnv(t)
	expires := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)

	rec := env.create(t, fmt.Sprintf(`{"url":"https://example.com","shortcode":"soon","expires_at":%q}`, expires), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodGet, testBaseURL+"/soon", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	env.dispatcher.Wait()

	env.repo.SetClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
	rec = env.do(httptest.NewRequest(http.MethodGet, testBaseURL+"/soon", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Истёкшая ссылка продолжает занимать код
	rec = env.create(t, `{"url":"https://example.com","shortcode":"soon"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleCreate_Errors(t *testing.T) {
	env := newTestEnv(t)
	bob := token(t, "bob", 1)

	rec := env.create(t, `{"url":"https://example.com","shortcode":"taken"}`, bob)
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name    string
		body    string
		token   string
		code    int
		message string
	}{
		{name: "Invalid JSON", body: `{"url":`, code: http.StatusBadRequest, message: "Invalid JSON"},
		{name: "Empty URL", body: `{"url":""}`, code: http.StatusBadRequest, message: service.ReasonURLRequired},
		{name: "Relative URL", body: `{"url":"/path"}`, code: http.StatusBadRequest, message: service.ReasonURLInvalid},
		{name: "Reserved shortcode", body: `{"url":"https://example.com","shortcode":"api"}`, code: http.StatusBadRequest},
		{name: "Anonymous subdomain", body: `{"url":"https://example.com","subdomain":"team"}`, code: http.StatusBadRequest, message: service.ReasonSubdomainOwner},
		{name: "Reserved subdomain", body: `{"url":"https://example.com","subdomain":"www"}`, token: bob, code: http.StatusBadRequest, message: service.ReasonSubdomainReserved},
		{name: "Expiry in the past", body: `{"url":"https://example.com","expires_at":"2000-01-01T00:00:00Z"}`, code: http.StatusBadRequest, message: service.ReasonExpiryPast},
		{name: "Shortcode taken", body: `{"url":"https://example.com","shortcode":"TAKEN"}`, code: http.StatusConflict, message: service.ReasonShortcodeTaken},
		{name: "Quota exceeded", body: `{"url":"https://example.com/2"}`, token: bob, code: http.StatusForbidden, message: "link limit of 1 reached"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.create(t, tt.body, tt.token)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.message != "" {
				assert.Equal(t, tt.message, decodeError(t, rec))
			}
		})
	}
}

func TestHandleCreate_InvalidToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.create(t, `{"url":"https://example.com"}`, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := auth.IssueToken("other-secret", models.Owner{ID: "mallory", Quota: 100}, time.Hour)
	require.NoError(t, err)
	rec = env.create(t, `{"url":"https://example.com"}`, forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleCreate_Exhausted(t *testing.T) {
	env := newTestEnv(t, service.WithGenerator(fixedGenerator{code: "same123"}))

	rec := env.create(t, `{"url":"https://example.com/1"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "same123", decodeMapping(t, rec).Shortcode)

	rec = env.create(t, `{"url":"https://example.com/2"}`, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, service.ReasonExhausted, decodeError(t, rec))
}

func TestHandleCreate_RateLimit(t *testing.T) {
	env := newTestEnv(t)

	for i, remaining := range []string{"4", "3", "2", "1", "0"} {
		rec := env.create(t, fmt.Sprintf(`{"url":"https://example.com/%d"}`, i), "")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, remaining, rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := env.create(t, `{"url":"https://example.com/denied","shortcode":"denied"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// Отклонённый запрос не создаёт ссылку
	rec = env.do(httptest.NewRequest(http.MethodGet, testBaseURL+"/denied", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Другой источник и владелец с токеном не ограничиваются
	req := httptest.NewRequest(http.MethodPost, testBaseURL+"/api/links", strings.NewReader(`{"url":"https://example.com/other"}`))
	req.RemoteAddr = "198.51.100.7:4000"
	assert.Equal(t, http.StatusCreated, env.do(req).Code)

	rec = env.create(t, `{"url":"https://example.com/owner"}`, token(t, "carol", 10))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Remaining"))
}

func TestHandleRateLimit(t *testing.T) {
	env := newTestEnv(t)

	check := func() models.RateDecision {
		rec := env.do(httptest.NewRequest(http.MethodGet, testBaseURL+"/api/ratelimit", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var decision models.RateDecision
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
		return decision
	}

	decision := check()
	assert.True(t, decision.Allowed)
	assert.Equal(t, 4, decision.Remaining)
	assert.Equal(t, ratelimit.DefaultMax, decision.Limit)

	// Проверка не расходует лимит
	assert.Equal(t, 4, check().Remaining)

	for i := 0; i < ratelimit.DefaultMax; i++ {
		require.Equal(t, http.StatusCreated, env.create(t, fmt.Sprintf(`{"url":"https://example.com/%d"}`, i), "").Code)
	}
	assert.False(t, check().Allowed)
}

func TestHandleShortest(t *testing.T) {
	env := newTestEnv(t)
	alice := token(t, "alice", 10)

	rec := env.create(t, `{"url":"https://acme.example/plans","shortcode":"plans","subdomain":"acme"}`, alice)
	require.Equal(t, http.StatusCreated, rec.Code)
	source := decodeMapping(t, rec)

	shortest := func(id, tok string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, testBaseURL+"/api/links/"+id+"/shortest", nil)
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		return env.do(req)
	}

	rec = shortest(source.ID, alice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	global := decodeMapping(t, rec)
	assert.Equal(t, "plans", global.Shortcode)
	assert.Empty(t, global.Subdomain)
	assert.Equal(t, "http://short.ly/plans", global.ShortURL)

	// Повторный вызов возвращает ту же глобальную ссылку
	rec = shortest(source.ID, alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, global.ID, decodeMapping(t, rec).ID)

	assert.Equal(t, http.StatusUnauthorized, shortest(source.ID, "").Code)
	assert.Equal(t, http.StatusBadRequest, shortest("not-a-uuid", alice).Code)
	assert.Equal(t, http.StatusNotFound, shortest(source.ID, token(t, "bob", 10)).Code)
}

func TestHandleDelete(t *testing.T) {
	env := newTestEnv(t)
	alice := token(t, "alice", 10)

	rec := env.create(t, `{"url":"https://example.com","shortcode":"gone"}`, alice)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeMapping(t, rec)

	del := func(tok string) int {
		req := httptest.NewRequest(http.MethodDelete, testBaseURL+"/api/links/"+created.ID, nil)
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		return env.do(req).Code
	}

	assert.Equal(t, http.StatusUnauthorized, del(""))
	assert.Equal(t, http.StatusNotFound, del(token(t, "bob", 10)))
	assert.Equal(t, http.StatusNoContent, del(alice))
	assert.Equal(t, http.StatusNotFound, del(alice))

	rec = env.do(httptest.NewRequest(http.MethodGet, testBaseURL+"/gone", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePing(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, testBaseURL+"/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlers_StoreErrors(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	logger := zap.NewNop()
	repo, err := repository.NewPostgresRepository(db, logger)
	require.NoError(t, err)
	svc := service.NewService(repo, testBaseURL, testRoot, logger)
	a := NewApp(svc, classifier.New(testRoot, nil), nil, nil, "", logger)
	handler := NewRouter(a, RouterConfig{}, logger)

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, testBaseURL+"/abc", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, testBaseURL+"/ping", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// Без ограничителя проверка лимита недоступна
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, testBaseURL+"/api/ratelimit", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{err: service.ErrValidation, code: http.StatusBadRequest},
		{err: service.ErrShortcodeTaken, code: http.StatusConflict},
		{err: service.ErrQuotaExceeded, code: http.StatusForbidden},
		{err: service.ErrExhausted, code: http.StatusServiceUnavailable},
		{err: service.ErrNotFound, code: http.StatusNotFound},
		{err: fmt.Errorf("wrapped: %w", service.ErrQuotaExceeded), code: http.StatusForbidden},
		{err: errors.New("boom"), code: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.code, StatusCode(tt.err))
		})
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "60", retryAfter(now.Add(time.Minute), now))
	assert.Equal(t, "1", retryAfter(now, now))
	assert.Equal(t, "1", retryAfter(now.Add(-time.Hour), now))
}

func TestWriteJSONResponse(t *testing.T) {
	a := &App{logger: zap.NewNop()}
	rec := httptest.NewRecorder()

	a.writeJSONResponse(rec, http.StatusTeapot, models.ErrorResponse{Error: "short and stout"})

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"short and stout"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	a.writeJSONResponse(rec, http.StatusOK, func() {})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("Failed to encode JSON")))
}
