// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package server exposes the question pipeline over HTTP and reports store
// reachability through the standard gRPC health service.
//
// Routes:
//
//	POST /send_message  full pipeline, {message, subject_id?, history?} -> {response}
//	POST /query         retrieval chain only, {message} -> {columns, data, query}
//	GET  /subjects      subject directory
//	GET  /health        store ping
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pterm/pterm"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"medquery/cli/internal/chat"
	"medquery/cli/internal/logging"
	"medquery/cli/internal/retrieval"
	"medquery/cli/internal/sqlexec"
	"medquery/cli/internal/subjects"
)

// Asker runs the full pipeline.
type Asker interface {
	Ask(ctx context.Context, req chat.Request) (chat.Response, error)
}

// Retriever runs the retrieval chain.
type Retriever interface {
	Retrieve(ctx context.Context, question, subjectID string, onAttempt sqlexec.AttemptFunc) retrieval.Retrieval
}

// Lister lists subjects.
type Lister interface {
	List(ctx context.Context) ([]subjects.Subject, error)
}

// Pinger checks store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Asker     Asker
	Retriever Retriever
	Subjects  Lister
	Store     Pinger
}

// Options configure the boundary.
type Options struct {
	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string
	// RequestTimeout bounds each request. Zero means no limit.
	RequestTimeout time.Duration
	// HealthInterval is how often the gRPC health status is refreshed.
	HealthInterval time.Duration
}

// Server is the HTTP boundary.
type Server struct {
	deps   Deps
	opts   Options
	log    *pterm.Logger
	router *mux.Router
	health *health.Server
}

// New builds the router. Nothing listens until Run.
func New(deps Deps, opts Options, log *pterm.Logger) *Server {
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = 15 * time.Second
	}
	s := &Server{deps: deps, opts: opts, log: logging.OrDiscard(log), health: health.NewServer()}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/send_message", s.handleSendMessage).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/subjects", s.handleSubjects).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	r.Use(s.logRequests, mux.CORSMethodMiddleware(r), s.cors, s.timeout)
	return r
}

// Run serves HTTP on addr and, when grpcAddr is not empty, the gRPC health
// service on grpcAddr. It returns when ctx is cancelled or a listener fails.
func (s *Server) Run(ctx context.Context, addr, grpcAddr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 2)

	go func() {
		s.log.Info("http listening", s.log.Args("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcSrv *grpc.Server
	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			_ = httpSrv.Close()
			return err
		}
		grpcSrv = s.GRPCServer()
		go s.WatchHealth(ctx)
		go func() {
			s.log.Info("grpc health listening", s.log.Args("addr", grpcAddr))
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	s.health.Shutdown()
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	s.log.Info("server stopped")
	return runErr
}
