package grpc

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tempizhere/redirector/internal/analytics"
	"github.com/tempizhere/redirector/internal/classifier"
	"github.com/tempizhere/redirector/internal/grpc/proto"
	"github.com/tempizhere/redirector/internal/middleware"
	"github.com/tempizhere/redirector/internal/models"
	"github.com/tempizhere/redirector/internal/ratelimit"
	"github.com/tempizhere/redirector/internal/service"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server реализует gRPC сервис коротких ссылок
type Server struct {
	proto.UnimplementedRedirectorServiceServer
	svc        *service.Service
	classifier *classifier.Classifier
	limiter    *ratelimit.Limiter
	dispatcher *analytics.Dispatcher
	logger     *zap.Logger
}

// NewServer создаёт реализацию сервиса. limiter и dispatcher могут быть nil.
func NewServer(svc *service.Service, cls *classifier.Classifier, limiter *ratelimit.Limiter, dispatcher *analytics.Dispatcher, logger *zap.Logger) *Server {
	return &Server{
		svc:        svc,
		classifier: cls,
		limiter:    limiter,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// NewGRPCServer создаёт grpc.Server с интерцепторами и зарегистрированным сервисом
func NewGRPCServer(srv *Server, jwtSecret string, logger *zap.Logger) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		LoggingInterceptor(logger),
		OwnerInterceptor(jwtSecret, logger),
	))
	proto.RegisterRedirectorServiceServer(s, srv)
	return s
}

// CreateMapping создаёт короткую ссылку; анонимные вызовы ограничиваются суточным лимитом
func (s *Server) CreateMapping(ctx context.Context, req *proto.CreateMappingRequest) (*proto.MappingResponse, error) {
	owner := middleware.GetOwner(ctx)
	source := peerIP(ctx)
	limited := owner == nil && s.limiter != nil

	if limited {
		decision, err := s.limiter.Check(ctx, source)
		if err != nil {
			s.logger.Warn("Rate limit check failed, allowing request", zap.String("source", source), zap.Error(err))
		} else if !decision.Allowed {
			return nil, status.Error(codes.ResourceExhausted, "daily link limit reached")
		}
	}

	m, err := s.svc.CreateMapping(ctx, models.CreateRequest{
		URL:       req.URL,
		Shortcode: req.Shortcode,
		Subdomain: req.Subdomain,
		ExpiresAt: req.ExpiresAt,
	}, owner)
	if err != nil {
		return nil, s.mapError(err)
	}

	resp := s.toResponse(m)
	if limited {
		count, err := s.limiter.Increment(ctx, source)
		if err != nil {
			s.logger.Warn("Rate limit increment failed", zap.String("source", source), zap.Error(err))
		} else {
			remaining := max(s.limiter.Max()-int(count), 0)
			resp.RateLimitRemaining = &remaining
		}
	}
	return resp, nil
}

// ResolveMapping ищет ссылку для входящего перехода и записывает переход в фоне
func (s *Server) ResolveMapping(ctx context.Context, req *proto.ResolveMappingRequest) (*proto.ResolveMappingResponse, error) {
	lookup, ok := s.classifier.Classify("GET", req.Host, req.Path)
	if !ok {
		return &proto.ResolveMappingResponse{Found: false}, nil
	}

	m, found, err := s.svc.Resolve(ctx, lookup)
	if err != nil {
		return nil, s.mapError(err)
	}
	if !found {
		return &proto.ResolveMappingResponse{Found: false}, nil
	}

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, m.ID, models.RequestMeta{
			SourceIP:  req.SourceIP,
			Referrer:  req.Referrer,
			UserAgent: req.UserAgent,
			Country:   req.Country,
		})
	}
	return &proto.ResolveMappingResponse{
		Found:       true,
		MappingID:   m.ID.String(),
		Destination: m.Destination,
	}, nil
}

// ShortestMapping возвращает глобальную ссылку владельца на тот же адрес
func (s *Server) ShortestMapping(ctx context.Context, req *proto.ShortestMappingRequest) (*proto.MappingResponse, error) {
	owner, id, err := ownerAndID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	m, err := s.svc.Shortest(ctx, id, owner)
	if err != nil {
		return nil, s.mapError(err)
	}
	return s.toResponse(m), nil
}

// DeleteMapping удаляет ссылку владельца
func (s *Server) DeleteMapping(ctx context.Context, req *proto.DeleteMappingRequest) (*proto.DeleteMappingResponse, error) {
	owner, id, err := ownerAndID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if err := s.svc.DeleteMapping(ctx, id, owner); err != nil {
		return nil, s.mapError(err)
	}
	return &proto.DeleteMappingResponse{}, nil
}

// CheckRateLimit возвращает состояние суточного лимита без его изменения.
// Чужой адрес req.Source учитывается только для вызывающих с действительным токеном.
func (s *Server) CheckRateLimit(ctx context.Context, req *proto.CheckRateLimitRequest) (*proto.CheckRateLimitResponse, error) {
	if s.limiter == nil {
		return nil, status.Error(codes.Unimplemented, "rate limiting disabled")
	}
	source := peerIP(ctx)
	if req.Source != "" && middleware.GetOwner(ctx) != nil {
		source = req.Source
	}
	decision, err := s.limiter.Check(ctx, source)
	if err != nil {
		s.logger.Warn("Rate limit check failed", zap.Error(err))
		return nil, status.Error(codes.Unavailable, "rate limit store unavailable")
	}
	return &proto.CheckRateLimitResponse{
		Allowed:   decision.Allowed,
		Remaining: decision.Remaining,
		Limit:     decision.Limit,
		ResetAt:   decision.ResetAt,
	}, nil
}

// Ping проверяет доступность хранилища
func (s *Server) Ping(ctx context.Context, _ *proto.PingRequest) (*proto.PingResponse, error) {
	if err := s.svc.Ping(ctx); err != nil {
		s.logger.Error("Storage ping failed", zap.Error(err))
		return &proto.PingResponse{StorageAvailable: false}, nil
	}
	return &proto.PingResponse{StorageAvailable: true}, nil
}

func ownerAndID(ctx context.Context, rawID string) (*models.Owner, uuid.UUID, error) {
	owner := middleware.GetOwner(ctx)
	if owner == nil {
		return nil, uuid.Nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, uuid.Nil, status.Error(codes.InvalidArgument, "invalid link id")
	}
	return owner, id, nil
}

func (s *Server) toResponse(m *models.Mapping) *proto.MappingResponse {
	return &proto.MappingResponse{
		ID:          m.ID.String(),
		ShortURL:    s.svc.ShortURL(m),
		Shortcode:   m.Shortcode,
		Subdomain:   m.Subdomain,
		Destination: m.Destination,
		ExpiresAt:   m.ExpiresAt,
	}
}

// Code возвращает код gRPC для ошибки сервиса
func Code(err error) codes.Code {
	switch {
	case errors.Is(err, service.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, service.ErrShortcodeTaken):
		return codes.AlreadyExists
	case errors.Is(err, service.ErrQuotaExceeded):
		return codes.ResourceExhausted
	case errors.Is(err, service.ErrExhausted):
		return codes.Unavailable
	case errors.Is(err, service.ErrNotFound):
		return codes.NotFound
	default:
		return codes.Internal
	}
}

// mapError преобразует ошибку сервиса в статус gRPC; внутренние ошибки не раскрываются клиенту
func (s *Server) mapError(err error) error {
	code := Code(err)
	var allocErr *service.AllocationError
	if code == codes.Internal || !errors.As(err, &allocErr) {
		s.logger.Error("gRPC request failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, allocErr.Reason)
}
