// Команда healthcheck опрашивает gRPC health сервиса и завершается с кодом 1,
// если сервис не SERVING. Используется как HEALTHCHECK контейнера.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	grpcapi "github.com/Dhoini/premium-billing-reconciler/internal/api/grpc"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "gRPC server address")
	service := flag.String("service", grpcapi.ServiceName, "service name to check")
	timeout := flag.Duration("timeout", 3*time.Second, "request timeout")
	flag.Parse()

	log := logger.New(logger.WARN)

	opts := grpcapi.DefaultClientOptions()
	opts.Address = *addr
	opts.Timeout = *timeout

	client, err := grpcapi.NewClient(opts, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer client.Close()

	status, err := client.Check(context.Background(), *service)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(status.String())
	if status != healthpb.HealthCheckResponse_SERVING {
		os.Exit(1)
	}
}
