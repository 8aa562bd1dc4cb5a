package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/raptchat/rapt/internal/api"
	"github.com/raptchat/rapt/internal/config"
	"github.com/raptchat/rapt/internal/metrics"
	"github.com/raptchat/rapt/internal/session"
)

// Server manages the gRPC server lifecycle for a session daemon and, when
// configured, the Prometheus endpoint.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	metrics    *http.Server
	logger     *zap.Logger
}

// NewServer creates a gRPC server bound to the session's Unix domain socket.
func NewServer(
	p Params,
	cfg *config.Config,
	logger *zap.Logger,
	svc *api.Service,
	m *metrics.Metrics,
) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = session.SocketPath(p.SessionName)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(logCalls(logger)))
	api.RegisterControlServer(srv, svc)

	s := &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}
	if cfg != nil && cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		s.metrics = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return s, nil
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// StartMetrics serves /metrics in the background if an address is set.
func (s *Server) StartMetrics() {
	if s.metrics == nil {
		return
	}
	go func() {
		s.logger.Info("metrics server starting", zap.String("addr", s.metrics.Addr))
		if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", zap.Error(err))
		}
	}()
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("gRPC server stopping")
	if s.metrics != nil {
		_ = s.metrics.Shutdown(ctx)
	}
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}

func logCalls(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{zap.String("method", info.FullMethod), zap.Duration("took", time.Since(start))}
		if err != nil {
			logger.Info("control call failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("control call", fields...)
		}
		return resp, err
	}
}
