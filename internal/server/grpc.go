package server

import (
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/alfredjeanlab/marketplace/internal/status"
)

// HealthService is the health-check service name of the projection host as
// a whole. Each projection is also reported as HealthService + "/" + name.
const HealthService = "marketplace.Projections"

// NewGRPCServer creates a gRPC server with the standard interceptors, the
// projection administration service, the health service fed by the status
// tracker, and reflection.
func (s *Server) NewGRPCServer(authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(s.logger),
			LoggingInterceptor(s.logger),
			AuthInterceptor(authToken),
		),
	)

	srv.RegisterService(&ProjectionServiceDesc, projectionService{s: s})

	hs := health.NewServer()
	ReportHealth(hs, s.status)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv
}

// ReportHealth keeps hs in sync with tracker. The host is NOT_SERVING
// while any projection has failed; a single projection is NOT_SERVING
// once it has stopped or failed.
func ReportHealth(hs *health.Server, tracker *status.Tracker) {
	// Listeners run on whichever goroutine changed the tracker. Each one
	// re-reads the tracker under mu, so the last writer publishes current
	// state.
	var mu sync.Mutex
	publish := func(projection string) {
		mu.Lock()
		defer mu.Unlock()
		if e, ok := tracker.Get(projection); ok {
			hs.SetServingStatus(ProjectionHealthService(projection), projectionServing(e.Phase))
		}
		st := healthpb.HealthCheckResponse_SERVING
		if !tracker.Healthy() {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", st)
		hs.SetServingStatus(HealthService, st)
	}

	for _, e := range tracker.Snapshot() {
		publish(e.Projection)
	}
	publish("")

	tracker.OnChange(func(e status.Entry) { publish(e.Projection) })
}

// ProjectionHealthService is the health-check service name of one
// projection.
func ProjectionHealthService(projection string) string {
	return HealthService + "/" + projection
}

func projectionServing(phase status.Phase) healthpb.HealthCheckResponse_ServingStatus {
	switch phase {
	case status.PhaseStopped, status.PhaseFailed:
		return healthpb.HealthCheckResponse_NOT_SERVING
	default:
		return healthpb.HealthCheckResponse_SERVING
	}
}
