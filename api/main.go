package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/malbeclabs/webvitals/api/backend"
	"github.com/malbeclabs/webvitals/api/beacon"
	"github.com/malbeclabs/webvitals/api/config"
	"github.com/malbeclabs/webvitals/api/handlers"
	"github.com/malbeclabs/webvitals/api/logger"
	"github.com/malbeclabs/webvitals/api/metrics"
	"github.com/malbeclabs/webvitals/api/vitals"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// shuttingDown is set when a shutdown signal is received so the
	// readiness probe fails immediately.
	shuttingDown atomic.Bool
)

const (
	defaultMetricsAddr = "0.0.0.0:0"
)

func main() {
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics")
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	flag.Parse()

	slogger := logger.New(*verboseFlag)

	log.Printf("Starting webvitals-api version=%s commit=%s date=%s", version, commit, date)
	handlers.SetBuildInfo(version, commit, date)

	// godotenv doesn't override existing env vars, so later files don't overwrite earlier ones
	_ = godotenv.Load()
	_ = godotenv.Load("api/.env")

	// Sentry is optional and a no-op without a DSN
	sentryDSN := os.Getenv("SENTRY_DSN")
	if sentryDSN != "" {
		sentryEnv := os.Getenv("SENTRY_ENVIRONMENT")
		if sentryEnv == "" {
			sentryEnv = "development"
		}
		release := version
		if commit != "none" {
			release = version + "-" + commit
		}
		tracesSampleRate := 0.1
		if sentryEnv == "development" {
			tracesSampleRate = 1.0
		}
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              sentryDSN,
			Environment:      sentryEnv,
			Release:          release,
			EnableTracing:    true,
			TracesSampleRate: tracesSampleRate,
		})
		if err != nil {
			log.Printf("Warning: Sentry initialization failed: %v", err)
		} else {
			log.Printf("Sentry initialized (env=%s, release=%s)", sentryEnv, release)
			defer sentry.Flush(2 * time.Second)
		}
	}

	if err := config.LoadVitals(); err != nil {
		log.Fatalf("Failed to load vitals config: %v", err)
	}

	// ClickHouse backs the clickhouse executor and beacon ingestion.
	clickhouseReady := false
	if config.Vitals.Backend == config.BackendClickHouse || config.Vitals.BeaconEnabled {
		if err := config.Load(context.Background(), slogger, config.DefaultClickHouse().WithEnv()); err != nil {
			if config.Vitals.Backend == config.BackendClickHouse {
				log.Fatalf("Failed to load ClickHouse: %v", err)
			}
			log.Printf("Warning: ClickHouse not available, beacon ingestion disabled: %v", err)
		} else {
			clickhouseReady = true
			defer config.Close()
		}
	}

	executor, closeExecutor, err := backend.NewExecutor(slogger, config.Vitals, config.DB)
	if err != nil {
		log.Fatalf("Failed to create %s executor: %v", config.Vitals.Backend, err)
	}
	defer func() { _ = closeExecutor() }()

	svc, err := vitals.NewService(vitals.ServiceConfig{
		Logger:         slogger,
		Executor:       executor,
		QueryTimeout:   config.Vitals.QueryTimeout,
		MaxConcurrency: config.Vitals.MaxConcurrency,
	})
	if err != nil {
		log.Fatalf("Failed to create vitals service: %v", err)
	}

	var store *beacon.Store
	if config.Vitals.BeaconEnabled && clickhouseReady {
		store, err = beacon.NewStore(beacon.StoreConfig{Logger: slogger, Conn: config.DB})
		if err != nil {
			log.Fatalf("Failed to create beacon store: %v", err)
		}
	}
	handlers.InitVitals(svc, store)
	log.Printf("Vitals backend: %s (beacon=%v)", svc.Backend(), store != nil)

	var metricsServer *http.Server
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		listener, err := net.Listen("tcp", *metricsAddrFlag)
		if err != nil {
			log.Printf("Failed to start prometheus metrics server listener: %v", err)
		} else {
			log.Printf("Prometheus metrics server listening on %s", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			metricsServer = &http.Server{Handler: mux}
			go func() {
				if err := metricsServer.Serve(listener); err != nil && err != http.ErrServerClosed {
					log.Printf("Metrics server error: %v", err)
				}
			}()
		}
	}

	r := chi.NewRouter()

	r.Use(middleware.Logger)

	// Sentry goes before Recoverer so panics are captured
	if sentryDSN != "" {
		sentryHandler := sentryhttp.New(sentryhttp.Options{
			Repanic: true,
		})
		r.Use(sentryHandler.Handle)

		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if txn := sentry.TransactionFromContext(r.Context()); txn != nil {
					if rctx := chi.RouteContext(r.Context()); rctx != nil {
						if pattern := rctx.RoutePattern(); pattern != "" {
							txn.Name = r.Method + " " + pattern
						} else {
							txn.Name = r.Method + " " + r.URL.Path
						}
					}
				}
				next.ServeHTTP(w, r)
			})
		})
	}

	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	corsOrigins := []string{"*"}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		corsOrigins = strings.Split(origins, ",")
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if shuttingDown.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("shutting down"))
			return
		}

		if clickhouseReady {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := config.DB.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("database connection failed: " + handlers.SanitizeError(err)))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/api/config", handlers.GetConfig)
	r.Get("/api/version", handlers.GetVersion)

	r.Get("/api/vitals", handlers.GetVitals)
	r.Get("/api/vitals/query", handlers.GetVitalsQuery)
	r.Post("/api/vitals/batch", handlers.PostVitalsBatch)
	r.Post("/api/vitals/beacon", handlers.PostBeacon)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: config.Vitals.QueryTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// http.Server.Shutdown does not cancel request contexts, so in-flight
	// queries hang off serverCtx instead.
	serverCtx, serverCancel := context.WithCancel(context.Background())
	server.BaseContext = func(_ net.Listener) context.Context {
		return serverCtx
	}

	go func() {
		log.Printf("API server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sig := <-shutdown
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	shuttingDown.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Graceful shutdown error: %v", err)
	} else {
		log.Println("Server stopped gracefully")
	}
	serverCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Printf("Metrics server shutdown error: %v", err)
		} else {
			log.Println("Metrics server stopped gracefully")
		}
	}
}
