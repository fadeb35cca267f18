// Package app wires the sds process: manifest, object storage, snapshots,
// the service and its REST and gRPC servers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpcapi "github.com/arkilian/sds/internal/api/grpc"
	httpapi "github.com/arkilian/sds/internal/api/http"
	"github.com/arkilian/sds/internal/catalog"
	"github.com/arkilian/sds/internal/config"
	"github.com/arkilian/sds/internal/manifest"
	"github.com/arkilian/sds/internal/notify"
	"github.com/arkilian/sds/internal/observability"
	"github.com/arkilian/sds/internal/server"
	"github.com/arkilian/sds/internal/service"
	"github.com/arkilian/sds/internal/snapshot"
	"github.com/arkilian/sds/internal/storage"
	"github.com/arkilian/sds/internal/tracing"
)

// App manages the sds service lifecycle.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	repo     *manifest.Repository
	objects  storage.ObjectStorage
	svc      *service.Service
	changes  *notify.Bus
	stats    *observability.ReadStats
	shutdown *server.ShutdownManager
	tracing  tracing.Shutdown

	httpServer *http.Server
	httpLn     net.Listener
	grpcServer *grpc.Server
	grpcLn     net.Listener
	health     *health.Server

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// New creates an App with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// Service returns the service, available after Start.
func (a *App) Service() *service.Service {
	return a.svc
}

// HTTPAddr returns the bound REST address, available after Start.
func (a *App) HTTPAddr() string {
	if a.httpLn == nil {
		return ""
	}
	return a.httpLn.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" when gRPC is disabled.
func (a *App) GRPCAddr() string {
	if a.grpcLn == nil {
		return ""
	}
	return a.grpcLn.Addr().String()
}

// Start opens the manifest and storage, restores persisted streams and
// starts the servers.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	a.shutdown = server.NewShutdownManager(server.DefaultShutdownConfig(), a.logger)
	if err := a.initResources(ctx); err != nil {
		a.abort()
		return fmt.Errorf("failed to initialize resources: %w", err)
	}
	if err := a.svc.Restore(ctx); err != nil {
		a.abort()
		return fmt.Errorf("failed to restore streams: %w", err)
	}
	if err := a.listen(); err != nil {
		a.abort()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.group, runCtx = errgroup.WithContext(runCtx)
	a.serve(runCtx)
	a.registerShutdown()

	a.logger.Info("sds started", "http", a.HTTPAddr(), "grpc", a.GRPCAddr(), "storage", a.cfg.Storage.Type)
	return nil
}

func (a *App) initResources(ctx context.Context) error {
	var err error
	a.tracing, err = tracing.Setup(ctx, a.cfg.Tracing.Endpoint, a.cfg.Tracing.SampleRatio)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	switch a.cfg.Storage.Type {
	case "local":
		a.objects, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		s3Cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		a.objects, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		err = fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.logger.Debug("storage initialized", "type", a.cfg.Storage.Type,
		"path", a.cfg.Storage.Path, "bucket", a.cfg.Storage.S3.Bucket)

	a.repo, err = manifest.Open(a.cfg.ManifestPath())
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	a.logger.Debug("manifest opened", "path", a.repo.Path())

	cat := catalog.New(
		catalog.WithRepository(a.repo),
		catalog.WithLogger(a.logger),
		catalog.WithMaxReadCount(a.cfg.Query.MaxCount),
	)
	a.changes = notify.NewBus(changeBuffer)
	opts := []service.Option{service.WithLogger(a.logger), service.WithChanges(a.changes)}
	if a.cfg.Stats.Enabled {
		a.stats = observability.NewReadStats(a.cfg.Stats.Window)
		opts = append(opts, service.WithReadStats(a.stats))
	}
	if a.cfg.Snapshot.Enabled {
		snaps := snapshot.NewStore(a.objects, a.cfg.Snapshot.Prefix, a.cfg.Snapshot.Concurrency, a.logger)
		opts = append(opts, service.WithSnapshots(snaps))
	}
	a.svc = service.New(cat, opts...)
	return nil
}

func (a *App) listen() error {
	var err error
	a.httpLn, err = net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on http address: %w", err)
	}
	if a.cfg.GRPC.Enabled {
		a.grpcLn, err = net.Listen("tcp", a.cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on grpc address: %w", err)
		}
	}
	return nil
}

func (a *App) serve(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle(httpapi.Prefix+"/", httpapi.NewHandler(a.svc, a.logger))
	mux.HandleFunc("GET /health", a.healthHandler)
	a.httpServer = &http.Server{
		Handler:      a.shutdown.Middleware(mux),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.group.Go(func() error {
		a.logger.Info("http server listening", "addr", a.HTTPAddr())
		if err := a.httpServer.Serve(a.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.grpcLn != nil {
		a.grpcServer, a.health = grpcapi.NewGRPCServer(a.svc, a.logger)
		a.group.Go(func() error {
			a.logger.Info("grpc server listening", "addr", a.GRPCAddr())
			if err := a.grpcServer.Serve(a.grpcLn); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	if a.cfg.Snapshot.Enabled && a.cfg.Snapshot.FlushInterval > 0 {
		a.group.Go(func() error {
			a.flushLoop(ctx, a.cfg.Snapshot.FlushInterval)
			return nil
		})
	}
	if a.stats != nil {
		a.group.Go(func() error {
			a.pruneLoop(ctx, a.cfg.Stats.Window/4)
			return nil
		})
	}
}

// changeBuffer is the change bus buffer of each subscriber.
const changeBuffer = 256

// flushLoop flushes snapshots every interval in which some stream changed.
func (a *App) flushLoop(ctx context.Context, every time.Duration) {
	sub := a.changes.Subscribe()
	defer a.changes.Unsubscribe(sub)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	dirty := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.C:
			dirty = true
		case <-ticker.C:
			if !dirty {
				continue
			}
			if err := a.svc.Flush(ctx); err != nil {
				if ctx.Err() == nil {
					a.logger.Warn("periodic flush failed", "error", err)
				}
				continue
			}
			dirty = false
		}
	}
}

func (a *App) pruneLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(max(every, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.stats.Prune()
		}
	}
}

// registerShutdown orders shutdown: servers stop first, then the flush
// loop, a final flush and the manifest close.
func (a *App) registerShutdown() {
	a.shutdown.Register("tracing", a.tracing)
	a.shutdown.RegisterCloser("manifest", a.repo)
	a.shutdown.Register("flush", a.svc.Flush)
	a.shutdown.Register("flush loop", func(context.Context) error {
		a.cancel()
		return a.group.Wait()
	})
	if a.grpcServer != nil {
		a.shutdown.Register("grpc", func(context.Context) error {
			a.health.Shutdown()
			a.grpcServer.GracefulStop()
			return nil
		})
	}
	a.shutdown.Register("http", a.httpServer.Shutdown)
}

// abort releases what a failed Start opened.
func (a *App) abort() {
	if a.httpLn != nil {
		a.httpLn.Close()
	}
	if a.grpcLn != nil {
		a.grpcLn.Close()
	}
	if a.repo != nil {
		a.repo.Close()
	}
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

// Stop gracefully stops the servers, flushes snapshots and closes the
// manifest.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()
	return a.shutdown.Shutdown(ctx, "stop requested")
}

// WaitForShutdown blocks until a signal or ctx ends the process, then
// shuts down.
func (a *App) WaitForShutdown(ctx context.Context) error {
	err := a.shutdown.ListenForSignals(ctx)
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	return err
}

func (a *App) healthHandler(w http.ResponseWriter, _ *http.Request) {
	status := "healthy"
	if a.health != nil {
		resp, err := a.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: grpcapi.ServiceName})
		if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			status = "degraded"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":%q,"service":"sds"}`, status)
}
