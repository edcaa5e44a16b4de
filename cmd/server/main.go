package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ocx/gridwalk/internal/config"
	"github.com/ocx/gridwalk/internal/grid"
	"github.com/ocx/gridwalk/internal/notify"
	"github.com/ocx/gridwalk/internal/observer"
	"github.com/ocx/gridwalk/internal/persistence"
	"github.com/ocx/gridwalk/internal/server"
	"github.com/ocx/gridwalk/internal/trajectory"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := loadEffectiveConfig()

	persist, err := buildPersistence(cfg.Persistence)
	if err != nil {
		log.Fatalf("server: persistence init failed: %v", err)
	}

	bus, closeBus := buildNotifyBus(cfg.Notify)
	defer closeBus()

	var obs *observer.Bridge
	if cfg.Observer.Enabled {
		obs = observer.NewBridge()
		go obs.Run()
		slog.Info("observer bridge enabled", "addr", cfg.Observer.Addr)
	}

	worldKind := grid.Wrap
	if cfg.World.Kind == "OBSTACLES" {
		worldKind = grid.Obstacles
	}
	initialCfg := server.SimConfig{
		Kind:   worldKind,
		Width:  cfg.World.Width,
		Height: cfg.World.Height,
		Probs: trajectory.MoveProbs{
			Up: cfg.World.ProbUp, Down: cfg.World.ProbDown,
			Left: cfg.World.ProbLeft, Right: cfg.World.ProbRight,
		},
		K:         cfg.World.K,
		TotalReps: cfg.World.TotalReps,
	}

	srv, err := server.New(
		initialCfg, cfg.World.ObstaclePercent, cfg.World.ObstacleSeed,
		cfg.Server.ClientCapacity, cfg.Pool.Workers, cfg.Pool.QueueDepth,
		persist, bus, obs, slog.Default(),
	)
	if err != nil {
		log.Fatalf("server: init failed: %v", err)
	}

	httpSrv := buildHTTPServer(cfg, obs)
	if httpSrv != nil {
		go func() {
			slog.Info("admin http listening", "addr", httpSrv.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("admin http server failed", "error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, draining connections")

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownGraceSec)*time.Second)
		defer cancel()

		if httpSrv != nil {
			_ = httpSrv.Shutdown(ctx)
		}
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("gridwalk server starting", "socket", cfg.Server.SocketPath,
		"world_kind", initialCfg.Kind, "width", initialCfg.Width, "height", initialCfg.Height)

	if err := srv.ListenAndServe(cfg.Server.SocketPath); err != nil {
		log.Fatalf("server: %v", err)
	}
	slog.Info("gridwalk server stopped")
}

// loadEffectiveConfig resolves the master config plus, when
// GRIDWALK_PRESET names one, a world preset layered from GRIDWALK_PRESETS_PATH
// (default "presets.yaml"). A missing presets file or unknown preset name
// silently falls back to the master config, matching config.Get's tolerance
// for a missing master file.
func loadEffectiveConfig() *config.Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	presetsPath := os.Getenv("GRIDWALK_PRESETS_PATH")
	if presetsPath == "" {
		presetsPath = "presets.yaml"
	}

	mgr, err := config.NewManager(configPath, presetsPath)
	if err != nil {
		log.Fatalf("server: config init failed: %v", err)
	}

	preset := os.Getenv("GRIDWALK_PRESET")
	if names := mgr.Names(); preset != "" {
		slog.Info("config: resolving world preset", "preset", preset, "known_presets", names)
	}
	return mgr.Get(preset)
}

// buildPersistence selects the Store backend named by cfg.Backend, falling
// back to FileStore (and logging a warning) if a requested Postgres
// connection cannot be established.
func buildPersistence(cfg config.PersistenceConfig) (persistence.Store, error) {
	switch cfg.Backend {
	case "postgres":
		store, err := persistence.NewPostgresStore(cfg.PostgresDSN)
		if err != nil {
			slog.Warn("postgres persistence unavailable, falling back to file store", "error", err)
			return persistence.NewFileStore(cfg.FileDir)
		}
		return store, nil
	default:
		return persistence.NewFileStore(cfg.FileDir)
	}
}

// buildNotifyBus selects the notify.Bus backend, falling back to LocalBus if
// a requested Redis connection cannot be established. The returned close
// function is always safe to defer.
func buildNotifyBus(cfg config.NotifyConfig) (notify.Bus, func() error) {
	if cfg.Backend == "redis" {
		bus, err := notify.NewRedisBus(cfg.RedisURL, "", 0, cfg.Channel)
		if err != nil {
			slog.Warn("redis notify bus unavailable, falling back to local bus", "error", err)
		} else {
			return bus, bus.Close
		}
	}
	bus := notify.NewLocalBus()
	return bus, bus.Close
}

// buildHTTPServer wires /metrics (when enabled) and /ws (when the observer
// bridge is enabled) onto a single admin HTTP server. Returns nil if neither
// is enabled.
func buildHTTPServer(cfg *config.Config, obs *observer.Bridge) *http.Server {
	if !cfg.Metrics.Enabled && !cfg.Observer.Enabled {
		return nil
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")

	addr := cfg.Metrics.Addr
	if cfg.Metrics.Enabled {
		router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}
	if cfg.Observer.Enabled {
		router.HandleFunc("/ws", obs.HandleWebSocket)
		if addr == "" {
			addr = cfg.Observer.Addr
		}
	}

	return &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}
