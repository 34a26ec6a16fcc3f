package grpc

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/config"
	"github.com/Dhoini/premium-billing-reconciler/internal/interceptors"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServiceName имя сервиса в протоколе health-check
const ServiceName = "billing.Reconciler"

// Server gRPC сервер со стандартным health-check
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	addr       string
	log        *logger.Logger
}

// NewServer создает новый gRPC сервер
func NewServer(cfg config.GRPCConfig, log *logger.Logger) *Server {
	kaParams := keepalive.ServerParameters{
		MaxConnectionIdle:     time.Minute * 5,
		MaxConnectionAge:      time.Hour,
		MaxConnectionAgeGrace: time.Minute * 5,
		Time:                  time.Minute * 2,
		Timeout:               time.Second * 20,
	}

	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(kaParams),
		grpc.ChainUnaryInterceptor(
			interceptors.NewRecoveryInterceptor(log).Unary(),
			interceptors.NewLoggingInterceptor(log).Unary(),
		),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	// До Start сервис считается неготовым
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{
		grpcServer: grpcServer,
		health:     healthServer,
		addr:       ":" + cfg.Port,
		log:        log,
	}
}

// Start слушает адрес из конфигурации и блокируется до остановки
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(listener)
}

// Serve обслуживает переданный listener
func (s *Server) Serve(listener net.Listener) error {
	s.log.Infow("Starting gRPC server", "addr", listener.Addr().String())
	s.SetServing(true)

	if err := s.grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// SetServing переключает статус health-check
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Stop переводит health в NOT_SERVING и останавливает сервер
func (s *Server) Stop() {
	s.log.Info("Stopping gRPC server")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
