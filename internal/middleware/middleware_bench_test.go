package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

// BenchmarkLoggingMiddleware измеряет производительность middleware логирования
func BenchmarkLoggingMiddleware(b *testing.B) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	loggingMiddleware := LoggingMiddleware(zap.NewNop())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)

		w := httptest.NewRecorder()
		loggingMiddleware(handler).ServeHTTP(w, req)
	}
}

// BenchmarkClientIPMiddleware измеряет производительность определения адреса клиента
func BenchmarkClientIPMiddleware(b *testing.B) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = GetClientIP(r)
	})
	mw := ClientIPMiddleware("10.0.0.0/8", DefaultClientIPHeader, zap.NewNop())(handler)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodGet, "/abc123", nil)
		req.RemoteAddr = "10.1.2.3:443"
		req.Header.Set(DefaultClientIPHeader, "198.51.100.1")

		mw.ServeHTTP(httptest.NewRecorder(), req)
	}
}

// BenchmarkConcurrentThrottle измеряет производительность ограничителя частоты под конкурентной нагрузкой
func BenchmarkConcurrentThrottle(b *testing.B) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := NewThrottle(1e9, 1e6, zap.NewNop()).Middleware(handler)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			req := httptest.NewRequest(http.MethodGet, "/abc123", nil)
			mw.ServeHTTP(httptest.NewRecorder(), req)
		}
	})
}
