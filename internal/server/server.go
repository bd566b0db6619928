// Package server exposes the plugin as the pub.Publisher gRPC service.
// Messages travel as JSON through Codec; the service descriptor is
// written by hand so no generated stubs are needed.
package server

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/naveego/plugin-sage/internal/plugin"
	"github.com/naveego/plugin-sage/pkg/errors"
	"github.com/naveego/plugin-sage/pkg/logger"
	"github.com/naveego/plugin-sage/pkg/models"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "pub.Publisher"

// Server serves one Plugin over gRPC
type Server struct {
	plugin *plugin.Plugin
	grpc   *grpc.Server
	logger *zap.Logger
}

// New creates a server for p
func New(p *plugin.Plugin, opts ...grpc.ServerOption) *Server {
	s := &Server{
		plugin: p,
		logger: logger.With(zap.String("component", "grpc_server")),
	}
	opts = append([]grpc.ServerOption{
		grpc.ForceServerCodec(Codec{}),
		grpc.ChainUnaryInterceptor(s.unaryInterceptor),
		grpc.ChainStreamInterceptor(s.streamInterceptor),
	}, opts...)
	s.grpc = grpc.NewServer(opts...)
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Serve accepts connections on lis until Stop is called
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("serving", zap.String("address", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Stop disconnects the plugin and stops the server after in-flight calls
// finish or ctx ends
func (s *Server) Stop(ctx context.Context) {
	_ = s.plugin.Disconnect(ctx)

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}

func (s *Server) unaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logCall(info.FullMethod, start, err)
	return resp, toStatus(err)
}

func (s *Server) streamInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	s.logCall(info.FullMethod, start, err)
	return toStatus(err)
}

func (s *Server) logCall(method string, start time.Time, err error) {
	fields := []zap.Field{zap.String("method", method), zap.Duration("duration", time.Since(start))}
	if err != nil {
		s.logger.Warn("call failed", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Debug("call finished", fields...)
}

// toStatus maps structured errors onto gRPC status codes
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var e *errors.Error
	if !stderrors.As(err, &e) {
		if stderrors.Is(err, context.Canceled) {
			return status.Error(codes.Canceled, err.Error())
		}
		if stderrors.Is(err, context.DeadlineExceeded) {
			return status.Error(codes.DeadlineExceeded, err.Error())
		}
		return status.Error(codes.Unknown, err.Error())
	}

	switch e.Type {
	case errors.ErrorTypeValidation, errors.ErrorTypeConfig:
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.ErrorTypeConnection:
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.ErrorTypeTimeout:
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.ErrorTypeDuplicateKey:
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.ErrorTypeMetadata, errors.ErrorTypeDataIntegrity:
		return status.Error(codes.DataLoss, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// publisherServer is the handler type checked by RegisterService
type publisherServer interface {
	connect(ctx context.Context, req *ConnectRequest) (*plugin.ConnectResponse, error)
	discoverSchemas(ctx context.Context, req *DiscoverSchemasRequest) (*DiscoverSchemasResponse, error)
	configureWrite(ctx context.Context, req *ConfigureWriteRequest) (*ConfigureWriteResponse, error)
	prepareWrite(ctx context.Context, req *PrepareWriteRequest) (*PrepareWriteResponse, error)
	disconnect(ctx context.Context, req *DisconnectRequest) (*DisconnectResponse, error)
	connectSession(stream grpc.ServerStream) error
	readStream(stream grpc.ServerStream) error
	writeStream(stream grpc.ServerStream) error
}

func (s *Server) connect(ctx context.Context, req *ConnectRequest) (*plugin.ConnectResponse, error) {
	return s.plugin.Connect(ctx, req.SettingsJSON)
}

func (s *Server) discoverSchemas(ctx context.Context, req *DiscoverSchemasRequest) (*DiscoverSchemasResponse, error) {
	schemas, err := s.plugin.DiscoverSchemas(ctx, plugin.DiscoverMode(req.Mode), req.ToRefresh)
	if err != nil {
		return nil, err
	}
	return &DiscoverSchemasResponse{Schemas: schemas}, nil
}

func (s *Server) configureWrite(ctx context.Context, req *ConfigureWriteRequest) (*ConfigureWriteResponse, error) {
	res, err := s.plugin.ConfigureWrite(ctx, req.Form)
	if err != nil {
		return nil, err
	}
	return &ConfigureWriteResponse{
		Form: ConfigurationForm{
			SchemaJSON: res.SchemaJSON,
			UIJSON:     res.UIJSON,
			DataJSON:   res.DataJSON,
			StateJSON:  res.StateJSON,
			Errors:     res.Errors,
		},
		Schema: res.Schema,
	}, nil
}

func (s *Server) prepareWrite(ctx context.Context, req *PrepareWriteRequest) (*PrepareWriteResponse, error) {
	if err := s.plugin.PrepareWrite(ctx, req.Schema, req.CommitSLASeconds); err != nil {
		return nil, err
	}
	return &PrepareWriteResponse{}, nil
}

func (s *Server) disconnect(ctx context.Context, req *DisconnectRequest) (*DisconnectResponse, error) {
	if err := s.plugin.Disconnect(ctx); err != nil {
		return nil, err
	}
	return &DisconnectResponse{}, nil
}

func (s *Server) connectSession(stream grpc.ServerStream) error {
	var req ConnectRequest
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}
	return s.plugin.ConnectSession(stream.Context(), req.SettingsJSON, func(resp *plugin.ConnectResponse) error {
		return stream.SendMsg(resp)
	})
}

func (s *Server) readStream(stream grpc.ServerStream) error {
	var req ReadRequest
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}
	if req.Schema == nil {
		return errors.New(errors.ErrorTypeValidation, "read schema must be set")
	}
	_, err := s.plugin.ReadStream(stream.Context(), req.Schema, req.Limit, func(r *models.Record) error {
		return stream.SendMsg(r)
	})
	return err
}

func (s *Server) writeStream(stream grpc.ServerStream) error {
	recv := func() (*models.Record, error) {
		var r models.Record
		if err := stream.RecvMsg(&r); err != nil {
			if stderrors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}
		return &r, nil
	}
	_, err := s.plugin.WriteStream(stream.Context(), recv, func(ack *models.RecordAck) error {
		return stream.SendMsg(ack)
	})
	return err
}

func unaryHandler[Req any, Resp any](method string, call func(publisherServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(publisherServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(publisherServer), ctx, req.(*Req))
			})
		},
	}
}

func connectSessionHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(publisherServer).connectSession(stream)
}

func readStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(publisherServer).readStream(stream)
}

func writeStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(publisherServer).writeStream(stream)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*publisherServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Connect", publisherServer.connect),
		unaryHandler("DiscoverSchemas", publisherServer.discoverSchemas),
		unaryHandler("ConfigureWrite", publisherServer.configureWrite),
		unaryHandler("PrepareWrite", publisherServer.prepareWrite),
		unaryHandler("Disconnect", publisherServer.disconnect),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "ConnectSession",
			Handler:       connectSessionHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "ReadStream",
			Handler:       readStreamHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "WriteStream",
			Handler:       writeStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "publisher.proto",
}
