// Package interceptors содержит unary-перехватчики gRPC сервера.
package interceptors

import (
	"context"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type LoggingInterceptor struct {
	log *logger.Logger
}

func NewLoggingInterceptor(log *logger.Logger) *LoggingInterceptor {
	return &LoggingInterceptor{log: log}
}

// Unary логирует каждый вызов с кодом ответа и длительностью
func (i *LoggingInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		fields := []interface{}{"method", info.FullMethod, "code", code.String(), "latency", time.Since(start).String()}
		switch code {
		case codes.OK:
			i.log.Debugw("gRPC request", fields...)
		case codes.Internal, codes.Unknown, codes.DataLoss:
			i.log.Errorw("gRPC request", append(fields, "error", err)...)
		default:
			i.log.Warnw("gRPC request", append(fields, "error", err)...)
		}
		return resp, err
	}
}

type RecoveryInterceptor struct {
	log *logger.Logger
}

func NewRecoveryInterceptor(log *logger.Logger) *RecoveryInterceptor {
	return &RecoveryInterceptor{log: log}
}

// Unary превращает панику обработчика в codes.Internal
func (i *RecoveryInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				i.log.Errorw("gRPC handler panicked", "method", info.FullMethod, "panic", r)
				err = status.Errorf(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
