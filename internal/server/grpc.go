// Package server assembles the process's listeners: the gRPC health server and the HTTP handler
// carrying the meeting API and room websockets.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCServer returns a gRPC server instrumented with otelgrpc and serving the standard health
// service. The returned health server starts NOT_SERVING; health.Checker.Watch keeps it current.
func NewGRPCServer(opts ...grpc.ServerOption) (*grpc.Server, *grpchealth.Server) {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	hs := grpchealth.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}
