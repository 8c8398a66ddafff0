// Package proto содержит интерфейс и описание gRPC сервиса коротких ссылок.
// Сообщения передаются в JSON (см. JSONCodec), клиент выбирает кодек через grpc.CallContentSubtype(CodecName).
package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName полное имя gRPC сервиса
const ServiceName = "redirector.v1.RedirectorService"

// Полные имена методов
const (
	MethodCreateMapping   = "/" + ServiceName + "/CreateMapping"
	MethodResolveMapping  = "/" + ServiceName + "/ResolveMapping"
	MethodShortestMapping = "/" + ServiceName + "/ShortestMapping"
	MethodDeleteMapping   = "/" + ServiceName + "/DeleteMapping"
	MethodCheckRateLimit  = "/" + ServiceName + "/CheckRateLimit"
	MethodPing            = "/" + ServiceName + "/Ping"
)

// RedirectorServiceServer представляет интерфейс gRPC сервиса
type RedirectorServiceServer interface {
	CreateMapping(ctx context.Context, req *CreateMappingRequest) (*MappingResponse, error)
	ResolveMapping(ctx context.Context, req *ResolveMappingRequest) (*ResolveMappingResponse, error)
	ShortestMapping(ctx context.Context, req *ShortestMappingRequest) (*MappingResponse, error)
	DeleteMapping(ctx context.Context, req *DeleteMappingRequest) (*DeleteMappingResponse, error)
	CheckRateLimit(ctx context.Context, req *CheckRateLimitRequest) (*CheckRateLimitResponse, error)
	Ping(ctx context.Context, req *PingRequest) (*PingResponse, error)
}

// UnimplementedRedirectorServiceServer возвращает codes.Unimplemented для всех методов
type UnimplementedRedirectorServiceServer struct{}

// CreateMapping не реализован
func (UnimplementedRedirectorServiceServer) CreateMapping(context.Context, *CreateMappingRequest) (*MappingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateMapping not implemented")
}

// ResolveMapping не реализован
func (UnimplementedRedirectorServiceServer) ResolveMapping(context.Context, *ResolveMappingRequest) (*ResolveMappingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ResolveMapping not implemented")
}

// ShortestMapping не реализован
func (UnimplementedRedirectorServiceServer) ShortestMapping(context.Context, *ShortestMappingRequest) (*MappingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ShortestMapping not implemented")
}

// DeleteMapping не реализован
func (UnimplementedRedirectorServiceServer) DeleteMapping(context.Context, *DeleteMappingRequest) (*DeleteMappingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DeleteMapping not implemented")
}

// CheckRateLimit не реализован
func (UnimplementedRedirectorServiceServer) CheckRateLimit(context.Context, *CheckRateLimitRequest) (*CheckRateLimitResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CheckRateLimit not implemented")
}

// Ping не реализован
func (UnimplementedRedirectorServiceServer) Ping(context.Context, *PingRequest) (*PingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Ping not implemented")
}

// unaryHandler строит обработчик метода для ServiceDesc
func unaryHandler[Req any, Resp any](method string, call func(RedirectorServiceServer, context.Context, *Req) (*Resp, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(RedirectorServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(server, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RedirectorServiceDesc описание сервиса для grpc.Server
var RedirectorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RedirectorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateMapping", Handler: unaryHandler(MethodCreateMapping, RedirectorServiceServer.CreateMapping)},
		{MethodName: "ResolveMapping", Handler: unaryHandler(MethodResolveMapping, RedirectorServiceServer.ResolveMapping)},
		{MethodName: "ShortestMapping", Handler: unaryHandler(MethodShortestMapping, RedirectorServiceServer.ShortestMapping)},
		{MethodName: "DeleteMapping", Handler: unaryHandler(MethodDeleteMapping, RedirectorServiceServer.DeleteMapping)},
		{MethodName: "CheckRateLimit", Handler: unaryHandler(MethodCheckRateLimit, RedirectorServiceServer.CheckRateLimit)},
		{MethodName: "Ping", Handler: unaryHandler(MethodPing, RedirectorServiceServer.Ping)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "redirector/v1/redirector.proto",
}

// RegisterRedirectorServiceServer регистрирует реализацию сервиса в gRPC сервере
func RegisterRedirectorServiceServer(s grpc.ServiceRegistrar, srv RedirectorServiceServer) {
	s.RegisterService(&RedirectorServiceDesc, srv)
}

// RedirectorServiceClient клиент gRPC сервиса
type RedirectorServiceClient interface {
	CreateMapping(ctx context.Context, in *CreateMappingRequest, opts ...grpc.CallOption) (*MappingResponse, error)
	ResolveMapping(ctx context.Context, in *ResolveMappingRequest, opts ...grpc.CallOption) (*ResolveMappingResponse, error)
	ShortestMapping(ctx context.Context, in *ShortestMappingRequest, opts ...grpc.CallOption) (*MappingResponse, error)
	DeleteMapping(ctx context.Context, in *DeleteMappingRequest, opts ...grpc.CallOption) (*DeleteMappingResponse, error)
	CheckRateLimit(ctx context.Context, in *CheckRateLimitRequest, opts ...grpc.CallOption) (*CheckRateLimitResponse, error)
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
}

type redirectorServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewRedirectorServiceClient создаёт клиент; все вызовы используют JSONCodec
func NewRedirectorServiceClient(cc grpc.ClientConnInterface) RedirectorServiceClient {
	return &redirectorServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in interface{}, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *redirectorServiceClient) CreateMapping(ctx context.Context, in *CreateMappingRequest, opts ...grpc.CallOption) (*MappingResponse, error) {
	return invoke[MappingResponse](ctx, c.cc, MethodCreateMapping, in, opts)
}

func (c *redirectorServiceClient) ResolveMapping(ctx context.Context, in *ResolveMappingRequest, opts ...grpc.CallOption) (*ResolveMappingResponse, error) {
	return invoke[ResolveMappingResponse](ctx, c.cc, MethodResolveMapping, in, opts)
}

func (c *redirectorServiceClient) ShortestMapping(ctx context.Context, in *ShortestMappingRequest, opts ...grpc.CallOption) (*MappingResponse, error) {
	return invoke[MappingResponse](ctx, c.cc, MethodShortestMapping, in, opts)
}

func (c *redirectorServiceClient) DeleteMapping(ctx context.Context, in *DeleteMappingRequest, opts ...grpc.CallOption) (*DeleteMappingResponse, error) {
	return invoke[DeleteMappingResponse](ctx, c.cc, MethodDeleteMapping, in, opts)
}

func (c *redirectorServiceClient) CheckRateLimit(ctx context.Context, in *CheckRateLimitRequest, opts ...grpc.CallOption) (*CheckRateLimitResponse, error) {
	return invoke[CheckRateLimitResponse](ctx, c.cc, MethodCheckRateLimit, in, opts)
}

func (c *redirectorServiceClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, MethodPing, in, opts)
}
