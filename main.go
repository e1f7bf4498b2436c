// main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/s3blob"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/sattiles/cbers/render"
	"github.com/sattiles/cbers/scene"
	"github.com/sattiles/cbers/tiler"
)

const appName = "cbers-tile-service"

var (
	grpcHealthServer  *grpc.Server
	httpMetricsServer *http.Server
	httpAPIServer     *http.Server

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cbers_http_requests_total",
		Help: "HTTP requests by handler and status code.",
	}, []string{"handler", "code"})
	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cbers_http_request_duration_seconds",
		Help:    "HTTP request latency by handler.",
		Buckets: []float64{0.01, 0.1, 0.3, 0.6, 1, 3, 6, 9},
	}, []string{"handler"})
)

// Config holds all configuration for the application, loaded from environment variables.
type Config struct {
	LogLevel        string `env:"LOG_LEVEL" envDefault:"INFO"`
	HTTPPort        int    `env:"HTTP_PORT" envDefault:"8080"`
	HealthPort      int    `env:"HEALTH_PORT" envDefault:"6666"`
	HTTPMetricsPort int    `env:"METRICS_PORT" envDefault:"8888"`

	// SceneSource is either a blob bucket URL (s3://cbers-pds) or a
	// range-capable HTTP mirror prefix.
	SceneSource string `env:"SCENE_SOURCE" envDefault:"s3://cbers-pds?region=us-east-1"`

	ReferenceBand   string        `env:"REFERENCE_BAND" envDefault:"5"`
	PreviewName     string        `env:"PREVIEW_NAME" envDefault:"preview.jp2"`
	MetadataWorkers int           `env:"METADATA_WORKERS" envDefault:"2"`
	TileWorkers     int           `env:"TILE_WORKERS" envDefault:"3"`
	TileSize        int           `env:"TILE_SIZE" envDefault:"256"`
	CacheMaxSize    int64         `env:"CACHE_MAX_SIZE" envDefault:"512"`
	CacheTTL        time.Duration `env:"CACHE_TTL" envDefault:"1h"`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		fmt.Printf("failed to parse config: %+v\n", err)
		os.Exit(1)
	}

	logger := createLogger(cfg, appName)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	g, ctx := errgroup.WithContext(ctx)

	tl, closeBucket, err := setupTiler(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize scene source, shutting down", "error", err)
		os.Exit(1)
	}
	if closeBucket != nil {
		defer closeBucket()
	}

	healthServer := health.NewServer()

	// gRPC Health Server
	g.Go(func() error {
		return startHealthServer(logger, cfg, healthServer)
	})

	// HTTP Metrics Server (Prometheus)
	g.Go(func() error {
		return startMetricsServer(logger, cfg)
	})

	// HTTP API Server
	g.Go(func() error {
		return startHTTPAPIServer(logger, cfg, tl)
	})

	healthServer.SetServingStatus(appName, healthpb.HealthCheckResponse_SERVING)

	// Wait for termination signal or an error from one of the services
	select {
	case <-interrupt:
		slog.Warn("received termination signal, starting graceful shutdown")
		cancel()
	case <-ctx.Done():
		slog.Warn("context cancelled, starting graceful shutdown")
	}

	// Graceful Shutdown
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if httpMetricsServer != nil {
		if err := httpMetricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP metrics server shutdown error", "error", err)
		}
	}
	if httpAPIServer != nil {
		if err := httpAPIServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP API server shutdown error", "error", err)
		}
	}
	if grpcHealthServer != nil {
		grpcHealthServer.GracefulStop()
	}

	// Wait for all services in the errgroup to finish
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server group returned an error", "error", err)
		os.Exit(2)
	}
}

func startHealthServer(logger *slog.Logger, cfg Config, healthServer *health.Server) error {
	addr := fmt.Sprintf(":%d", cfg.HealthPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gRPC Health server failed to listen: %w", err)
	}

	grpcHealthServer = grpc.NewServer()
	healthpb.RegisterHealthServer(grpcHealthServer, healthServer)
	logger.Info("gRPC health server listening", "address", addr)
	return grpcHealthServer.Serve(lis)
}

func startMetricsServer(logger *slog.Logger, cfg Config) error {
	addr := fmt.Sprintf(":%d", cfg.HTTPMetricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	prometheus.MustRegister(httpRequests, httpDuration)

	httpMetricsServer = &http.Server{Addr: addr, Handler: mux}
	logger.Info("HTTP metrics server listening", "address", addr)

	if err := httpMetricsServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP metrics server failed: %w", err)
	}
	return nil
}

func startHTTPAPIServer(logger *slog.Logger, cfg Config, tl *tiler.Tiler) error {
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	mux := http.NewServeMux()

	mux.HandleFunc("/bounds/", instrumented("bounds", getBoundsHandler(tl)))
	mux.HandleFunc("/metadata/", instrumented("metadata", getMetadataHandler(tl)))
	mux.HandleFunc("/tiles/", instrumented("tiles", getTileHandler(tl)))

	httpAPIServer = &http.Server{Addr: addr, Handler: mux}
	logger.Info("HTTP API server listening", "address", addr)

	if err := httpAPIServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP API server failed: %w", err)
	}
	return nil
}

func instrumented(name string, h http.HandlerFunc) http.HandlerFunc {
	counted := promhttp.InstrumentHandlerCounter(httpRequests.MustCurryWith(prometheus.Labels{"handler": name}), h)
	return promhttp.InstrumentHandlerDuration(httpDuration.MustCurryWith(prometheus.Labels{"handler": name}), counted)
}

// writeError maps domain errors onto HTTP status codes: malformed scene
// ids are client errors, tiles outside the scene are not found,
// anything else is internal.
func writeError(w http.ResponseWriter, err error) {
	var parseErr *scene.ParseError
	switch {
	case errors.As(err, &parseErr):
		http.Error(w, parseErr.Error(), http.StatusBadRequest)
	case errors.Is(err, tiler.ErrTileOutsideBounds):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func getBoundsHandler(tl *tiler.Tiler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sceneID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/bounds/"), "/")
		if sceneID == "" {
			http.Error(w, "missing scene id", http.StatusBadRequest)
			return
		}
		bounds, err := tl.Bounds(r.Context(), sceneID)
		if err != nil {
			writeError(w, err)
			return
		}
		response := map[string]interface{}{"sceneid": sceneID, "bounds": bounds}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

func getMetadataHandler(tl *tiler.Tiler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sceneID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/metadata/"), "/")
		if sceneID == "" {
			http.Error(w, "missing scene id", http.StatusBadRequest)
			return
		}
		pmin, err := queryFloat(r, "pmin", tiler.DefaultPMin)
		if err != nil {
			http.Error(w, "invalid pmin", http.StatusBadRequest)
			return
		}
		pmax, err := queryFloat(r, "pmax", tiler.DefaultPMax)
		if err != nil {
			http.Error(w, "invalid pmax", http.StatusBadRequest)
			return
		}
		if pmin < 0 || pmax > 100 || pmin > pmax {
			http.Error(w, fmt.Sprintf("invalid percentile pair (%g, %g)", pmin, pmax), http.StatusBadRequest)
			return
		}

		meta, err := tl.Metadata(r.Context(), sceneID, pmin, pmax)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(meta)
	}
}

func getTileHandler(tl *tiler.Tiler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sceneID, x, y, z, err := parseTilePath(r.URL.Path)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		bands, err := parseBandsParam(r.URL.Query().Get("rgb"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		tilesize := 0
		if s := r.URL.Query().Get("tilesize"); s != "" {
			tilesize, err = strconv.Atoi(s)
			if err != nil || tilesize <= 0 || tilesize > 1024 {
				http.Error(w, "invalid tilesize", http.StatusBadRequest)
				return
			}
		}

		img, err := tl.Tile(r.Context(), sceneID, x, y, z, bands, tilesize)
		if err != nil {
			writeError(w, err)
			return
		}

		// Stretch against the scene's percentile ranges so tiles of one
		// scene render consistently.
		meta, err := tl.Metadata(r.Context(), sceneID, tiler.DefaultPMin, tiler.DefaultPMax)
		if err != nil {
			writeError(w, err)
			return
		}

		data, err := render.PNG(img, render.StretchesFor(img, meta.Ranges))
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}
}

// parseTilePath splits /tiles/{sceneid}/{z}/{x}/{y}.png.
func parseTilePath(path string) (sceneID string, x, y, z uint32, err error) {
	parts := strings.Split(strings.TrimPrefix(path, "/tiles/"), "/")
	if len(parts) != 4 {
		return "", 0, 0, 0, errors.New("invalid URL format, want /tiles/{sceneid}/{z}/{x}/{y}.png")
	}
	sceneID = parts[0]
	zv, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return "", 0, 0, 0, errors.New("invalid zoom")
	}
	xv, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return "", 0, 0, 0, errors.New("invalid tile column")
	}
	yPart := strings.TrimSuffix(parts[3], ".png")
	yv, err := strconv.ParseUint(yPart, 10, 32)
	if err != nil {
		return "", 0, 0, 0, errors.New("invalid tile row")
	}
	return sceneID, uint32(xv), uint32(yv), uint32(zv), nil
}

// queryFloat reads an optional float query parameter, returning def
// when the parameter is absent.
func queryFloat(r *http.Request, name string, def float64) (float64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}

// parseBandsParam turns the rgb query parameter ("6,5,4" or a single
// band id) into a band list; empty means the service default.
func parseBandsParam(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	bands := strings.Split(raw, ",")
	for _, b := range bands {
		if b == "" {
			return nil, fmt.Errorf("invalid rgb parameter %q", raw)
		}
	}
	if len(bands) != 1 && len(bands) != 3 {
		return nil, fmt.Errorf("rgb parameter must name 1 or 3 bands, got %d", len(bands))
	}
	return bands, nil
}

func setupTiler(ctx context.Context, cfg Config, logger *slog.Logger) (*tiler.Tiler, func() error, error) {
	tcfg := tiler.Config{
		ReferenceBand:   cfg.ReferenceBand,
		PreviewName:     cfg.PreviewName,
		MetadataWorkers: cfg.MetadataWorkers,
		TileWorkers:     cfg.TileWorkers,
		TileSize:        cfg.TileSize,
		CacheMaxSize:    cfg.CacheMaxSize,
		CacheTTL:        cfg.CacheTTL,
	}

	logger.Info("initializing scene source", "source", cfg.SceneSource)
	if strings.HasPrefix(cfg.SceneSource, "http") {
		return tiler.New(&tiler.HTTPOpener{BaseURL: cfg.SceneSource}, tcfg), nil, nil
	}

	bucket, err := blob.OpenBucket(ctx, cfg.SceneSource)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open bucket %s: %w", cfg.SceneSource, err)
	}
	return tiler.New(&tiler.BlobOpener{Bucket: bucket}, tcfg), bucket.Close, nil
}

func createLogger(cfg Config, appName string) *slog.Logger {
	var programLevel slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		programLevel = slog.LevelDebug
	case "INFO":
		programLevel = slog.LevelInfo
	case "WARN":
		programLevel = slog.LevelWarn
	case "ERROR":
		programLevel = slog.LevelError
	default:
		programLevel = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     programLevel,
		AddSource: programLevel <= slog.LevelDebug,
	}).WithAttrs([]slog.Attr{slog.String("app", appName)})
	return slog.New(handler)
}
