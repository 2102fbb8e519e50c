package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"voxelmap.ai/internal/config"
	"voxelmap.ai/internal/logger"
	"voxelmap.ai/internal/metrics"
	"voxelmap.ai/internal/protocol"
	"voxelmap.ai/internal/sim/feedsim"
	"voxelmap.ai/internal/transport/feed"
)

// lateSource lets the hub exist before the sim it serves. sim is set
// before the listener starts.
type lateSource struct{ sim *feedsim.Sim }

func (l *lateSource) Welcome(hello protocol.HelloMsg, sessionID string) protocol.WelcomeMsg {
	return l.sim.Welcome(hello, sessionID)
}

func (l *lateSource) Initial(hello protocol.HelloMsg) []any { return l.sim.Initial(hello) }

func main() {
	var (
		configPath   = flag.String("config", "", "path to minimap.yaml (sim section is used)")
		addr         = flag.String("addr", "", "listen address (overrides config)")
		respawnEvery = flag.Duration("respawn_every", 0, "switch to a fresh world this often (0 disables)")
	)
	flag.Parse()

	path := strings.TrimSpace(*configPath)
	if path == "" {
		if _, err := os.Stat("./configs/minimap.yaml"); err == nil {
			path = "./configs/minimap.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.New("info").Fatal("load config", "path", path, "error", err)
	}
	if *addr != "" {
		cfg.Sim.Addr = *addr
	}

	log := logger.New(cfg.Logger.Level).With("component", "feedsim")
	defer log.Sync()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	src := &lateSource{}
	hub := feed.NewHub(src,
		feed.WithLogger(log),
		feed.WithMetrics(m),
		feed.WithMaxSubscribers(cfg.Sim.MaxSubscribers),
		feed.WithJoinLimit(rate.Limit(cfg.Sim.JoinsPerSec), 4),
	)
	sim := feedsim.New(feedsim.Config{
		WorldID:      cfg.Sim.WorldID,
		Seed:         cfg.Sim.Seed,
		SeaLevel:     cfg.Sim.SeaLevel,
		Radius:       cfg.Sim.Radius,
		TickRateHz:   cfg.Sim.TickRateHz,
		WalkSpeed:    cfg.Sim.WalkSpeed,
		EditsPerSec:  cfg.Sim.EditsPerSec,
		RespawnEvery: *respawnEvery,
	}, hub, log)
	src.sim = sim

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := sim.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("sim stopped", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		x, z, yaw := sim.Position()
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"world_id":    sim.WorldID(),
			"x":           x,
			"z":           z,
			"yaw":         yaw,
			"subscribers": hub.Subscribers(),
		})
	})
	mux.HandleFunc("/v1/feed", hub.Handler())

	srv := &http.Server{
		Addr:              cfg.Sim.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.Info("feed listening", "addr", cfg.Sim.Addr, "world", cfg.Sim.WorldID, "seed", cfg.Sim.Seed)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("ListenAndServe", "error", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
