// Package middleware содержит HTTP middleware для обработки запросов.
// Включает логирование, определение адреса клиента, идентификацию владельца и ограничение частоты.
package middleware

import (
	"context"
	"net"
	"net/http"

	"go.uber.org/zap"
)

// contextKey тип ключей контекста пакета
type contextKey string

const (
	clientIPKey contextKey = "clientIP"
	ownerKey    contextKey = "owner"
)

// DefaultClientIPHeader заголовок, в который граничный прокси пишет адрес клиента
const DefaultClientIPHeader = "X-Real-IP"

// ClientIPMiddleware определяет адрес клиента и сохраняет его в контексте.
// Заголовок header учитывается только для запросов, пришедших из подсети trustedSubnet
// (адрес граничного прокси). В остальных случаях используется RemoteAddr.
func ClientIPMiddleware(trustedSubnet, header string, logger *zap.Logger) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultClientIPHeader
	}

	var network *net.IPNet
	if trustedSubnet != "" {
		_, parsed, err := net.ParseCIDR(trustedSubnet)
		if err != nil {
			logger.Error("Invalid trusted_subnet CIDR, edge header ignored",
				zap.String("trusted_subnet", trustedSubnet),
				zap.Error(err))
		} else {
			network = parsed
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r.RemoteAddr)

			if network != nil {
				if peer := net.ParseIP(ip); peer != nil && network.Contains(peer) {
					if forwarded := net.ParseIP(r.Header.Get(header)); forwarded != nil {
						ip = forwarded.String()
					}
				}
			}

			ctx := context.WithValue(r.Context(), clientIPKey, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func remoteIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// GetClientIP возвращает адрес клиента, определённый ClientIPMiddleware, или RemoteAddr
func GetClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return remoteIP(r.RemoteAddr)
}
