// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package server

import (
	"context"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside "".
const ServiceName = "medquery.Pipeline"

// GRPCServer returns a gRPC server with only the health service registered.
func (s *Server) GRPCServer() *grpc.Server {
	g := grpc.NewServer()
	healthpb.RegisterHealthServer(g, s.health)
	return g
}

// CheckHealth pings the store once and publishes the result.
func (s *Server) CheckHealth(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.deps.Store == nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	} else {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(pctx); err != nil {
			s.log.Warn("store ping failed", s.log.Args("error", err.Error()))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// WatchHealth refreshes the health status until ctx is done.
func (s *Server) WatchHealth(ctx context.Context) {
	s.CheckHealth(ctx)
	t := time.NewTicker(s.opts.HealthInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.CheckHealth(ctx)
		}
	}
}
