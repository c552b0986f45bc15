// Package handlers serves the profile store over HTTP (a chi REST API) and
// runs the gRPC server that carries the standard health service.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server holds references to both a gRPC server and an HTTP server.
type Server struct {
	grpcServer   *grpc.Server
	health       *health.Server
	httpServer   *http.Server
	logger       *zap.Logger
	grpcEndpoint string
	httpEndpoint string

	grpcListener net.Listener
	httpListener net.Listener
}

// NewServer constructs a Server with separate endpoints for gRPC and HTTP.
// Port 0 picks a free port at Listen time.
func NewServer(
	grpcPort int,
	httpPort int,
	logger *zap.Logger,
	grpcOpts ...grpc.ServerOption,
) *Server {
	grpcServer := grpc.NewServer(grpcOpts...)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	return &Server{
		grpcServer:   grpcServer,
		health:       healthServer,
		httpServer:   &http.Server{ReadHeaderTimeout: 10 * time.Second},
		logger:       logger.Named("server"),
		grpcEndpoint: fmt.Sprintf(":%d", grpcPort),
		httpEndpoint: fmt.Sprintf(":%d", httpPort),
	}
}

// RegisterHTTPHandler sets the handler served on the HTTP endpoint.
func (s *Server) RegisterHTTPHandler(h http.Handler) {
	s.httpServer.Handler = h
	s.httpServer.Addr = s.httpEndpoint
}

// WatchHealth polls probe every interval and publishes the result as the
// overall gRPC health status until ctx is done.
func (s *Server) WatchHealth(ctx context.Context, probe func(context.Context) error, interval time.Duration) {
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		if err := probe(pctx); err != nil {
			s.logger.Warn("Health probe failed", zap.Error(err))
			s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			return
		}
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}

	check()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				check()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Listen binds both endpoints without serving yet.
func (s *Server) Listen() error {
	var err error
	if s.grpcListener, err = net.Listen("tcp", s.grpcEndpoint); err != nil {
		return fmt.Errorf("gRPC listen error: %w", err)
	}
	if s.httpListener, err = net.Listen("tcp", s.httpEndpoint); err != nil {
		_ = s.grpcListener.Close()
		return fmt.Errorf("HTTP listen error: %w", err)
	}
	return nil
}

// GRPCAddr and HTTPAddr report the bound addresses after Listen.
func (s *Server) GRPCAddr() string { return s.grpcListener.Addr().String() }
func (s *Server) HTTPAddr() string { return s.httpListener.Addr().String() }

// Start runs the gRPC and HTTP servers concurrently, returning on the first error.
func (s *Server) Start() error {
	if s.grpcListener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		s.logger.Info("Starting gRPC server", zap.String("endpoint", s.GRPCAddr()))
		if err := s.grpcServer.Serve(s.grpcListener); err != nil {
			return fmt.Errorf("gRPC serve error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("endpoint", s.HTTPAddr()))
		if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP serve error: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Stop gracefully shuts down both gRPC and HTTP servers.
func (s *Server) Stop() {
	s.logger.Info("Shutting down servers...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	s.logger.Info("Servers stopped")
}
