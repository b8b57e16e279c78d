package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/Domenick1991/flightservice/config"
	"github.com/Domenick1991/flightservice/internal/auth"
	"github.com/Domenick1991/flightservice/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Routes is implemented by every API handler.
type Routes interface {
	Register(router *gin.RouterGroup)
}

type servers struct {
	grpcServer *grpc.Server
	health     *health.Server
	httpServer *http.Server
}

// Run starts the gRPC health listener and the HTTP API and blocks until ctx
// is canceled or a server fails.
func Run(ctx context.Context, cfg *config.Config, verifier *auth.Verifier, gatherer prometheus.Gatherer, routes ...Routes) error {
	s := newServers(cfg, verifier, gatherer, routes...)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.GRPC.Address != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Address)
		if err != nil {
			return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
		}
		g.Go(func() error { return s.grpcServer.Serve(lis) })
	}
	g.Go(func() error {
		logging.FromContext(ctx).WithField("address", cfg.HTTP.Address).Info("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.health.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.grpcServer.GracefulStop()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func newServers(cfg *config.Config, verifier *auth.Verifier, gatherer prometheus.Gatherer, routes ...Routes) *servers {
	grpcSrv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, hs)
	reflection.Register(grpcSrv)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	router := NewRouter(cfg.HTTP, verifier, gatherer, routes...)
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           otelhttp.NewHandler(router, cfg.Tracing.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &servers{
		grpcServer: grpcSrv,
		health:     hs,
		httpServer: httpSrv,
	}
}

// NewRouter builds the gin engine: ops endpoints at the root, the API under
// /api behind bearer authentication.
func NewRouter(cfg config.HTTPConfig, verifier *auth.Verifier, gatherer prometheus.Gatherer, routes ...Routes) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	if cfg.SwaggerDir != "" {
		router.StaticFile("/swagger/flights.swagger.json", filepath.Join(cfg.SwaggerDir, "flights.swagger.json"))
		router.GET("/docs/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/swagger/flights.swagger.json"))))
	}

	api := router.Group("/api", auth.Middleware(verifier))
	for _, r := range routes {
		r.Register(api)
	}
	return router
}
