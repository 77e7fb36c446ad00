package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/qqoqto/travel-planner/internal/metrics"
)

// Interceptor logs every RPC and records it in metrics. It also puts the
// caller's participant ID in the handler context.
type Interceptor struct {
	metrics *metrics.Metrics
}

// Ensure Interceptor implements connect.Interceptor
var _ connect.Interceptor = (*Interceptor)(nil)

// NewInterceptor creates an Interceptor. m may be nil.
func NewInterceptor(m *metrics.Metrics) *Interceptor {
	return &Interceptor{metrics: m}
}

// WrapUnary logs the procedure name, participant, duration, and any error
// codes/messages of a unary call.
func (i *Interceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		start := time.Now()
		procedure := req.Spec().Procedure
		participant := participantFromHeader(req.Header())

		resp, err := next(WithParticipantID(ctx, participant), req)

		elapsed := time.Since(start)
		i.metrics.ObserveRPC(procedure, codeOf(err), elapsed)
		logResult("RPC", procedure, participant, elapsed, err)
		return resp, err
	}
}

// WrapStreamingClient passes client streams through unchanged.
func (i *Interceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

// WrapStreamingHandler logs stream open and close and tracks open streams.
func (i *Interceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		procedure := conn.Spec().Procedure
		participant := participantFromHeader(conn.RequestHeader())

		slog.Info("Stream opened", "procedure", procedure, "participant", participant)
		i.metrics.SubscriptionOpened()
		defer i.metrics.SubscriptionClosed()

		err := next(WithParticipantID(ctx, participant), conn)

		i.metrics.ObserveRPC(procedure, codeOf(err), 0)
		logResult("Stream", procedure, participant, time.Since(start), err)
		return err
	}
}

func codeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return connect.CodeOf(err).String()
}

func logResult(kind, procedure, participant string, elapsed time.Duration, err error) {
	duration := elapsed.Milliseconds()
	if err == nil {
		slog.Info(kind+" ok",
			"procedure", procedure,
			"participant", participant,
			"duration_ms", duration,
		)
		return
	}

	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		// Clients going away end streams with Canceled; that is routine.
		level := slog.LevelWarn
		if connectErr.Code() == connect.CodeCanceled {
			level = slog.LevelInfo
		}
		slog.Log(context.Background(), level, kind+" error",
			"procedure", procedure,
			"code", connectErr.Code(),
			"error", connectErr.Message(),
			"participant", participant,
			"duration_ms", duration,
		)
		return
	}
	slog.Error(kind+" error",
		"procedure", procedure,
		"error", err,
		"participant", participant,
		"duration_ms", duration,
	)
}
