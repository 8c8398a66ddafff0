// Package grpc содержит gRPC сервер сервиса коротких ссылок и его интерцепторы
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/tempizhere/redirector/internal/auth"
	"github.com/tempizhere/redirector/internal/middleware"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// OwnerInterceptor определяет владельца по токену Bearer из метаданных authorization.
// Запрос без токена обрабатывается как анонимный, недействительный токен отклоняется.
func OwnerInterceptor(secret string, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if secret == "" {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return handler(ctx, req)
		}
		values := md.Get("authorization")
		if len(values) == 0 {
			return handler(ctx, req)
		}

		token, err := auth.BearerToken(values[0])
		if err != nil {
			return handler(ctx, req)
		}

		owner, err := auth.ParseOwner(secret, token)
		if err != nil {
			logger.Warn("Invalid JWT token", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return handler(middleware.WithOwner(ctx, owner), req)
	}
}

// LoggingInterceptor создаёт интерцептор для логирования gRPC запросов
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		logger.Info("gRPC request",
			zap.String("method", info.FullMethod),
			zap.String("client_ip", peerIP(ctx)),
			zap.String("status_code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)

		return resp, err
	}
}

// peerIP возвращает адрес вызывающей стороны без порта
func peerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	if tcpAddr, ok := p.Addr.(*net.TCPAddr); ok {
		return tcpAddr.IP.String()
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String()
	}
	return host
}
