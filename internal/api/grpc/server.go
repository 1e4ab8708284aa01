// Package grpc serves the probe endpoints orchestrators use: the standard
// health service and server reflection.
package grpc

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"reseller-ledger/internal/api/grpc/interceptor"
	"reseller-ledger/internal/security"
)

// ServiceName is the health service key reported for the ledger API.
const ServiceName = "reseller.ledger.v1"

// NewServer returns a gRPC server with health and reflection registered.
// The health server starts NOT_SERVING; callers flip it once the HTTP API
// is listening.
func NewServer(tokens security.TokenManager) (*grpc.Server, *health.Server) {
	auth := interceptor.NewAuthInterceptor(tokens)
	s := grpc.NewServer(
		grpc.UnaryInterceptor(auth.Unary()),
		grpc.StreamInterceptor(auth.Stream()),
	)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	reflection.Register(s)
	return s, hs
}
