package handler

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-sales-proposals/internal/platform/middleware"
)

// UnaryRequestID carries the caller's x-request-id into the handler context
// so it reaches the catalog and directory calls, then logs the call.
func UnaryRequestID(log zerolog.Logger) grpc.UnaryServerInterceptor {
	header := strings.ToLower(middleware.RequestIDHeader)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(header); len(vals) > 0 {
				id = vals[0]
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		ctx = middleware.WithRequestID(ctx, id)
		_ = grpc.SetHeader(ctx, metadata.Pairs(header, id))

		start := time.Now()
		resp, err := handler(ctx, req)

		log.Info().
			Str("method", info.FullMethod).
			Str("request_id", id).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC request")
		return resp, err
	}
}
