package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voxelmap.ai/internal/client"
	"voxelmap.ai/internal/config"
	"voxelmap.ai/internal/logger"
	"voxelmap.ai/internal/metrics"
	"voxelmap.ai/internal/minimap/mapcolor"
	"voxelmap.ai/internal/minimap/surface"
	"voxelmap.ai/internal/minimap/view"
	"voxelmap.ai/internal/persistence/eventlog"
	"voxelmap.ai/internal/persistence/indexdb"
	"voxelmap.ai/internal/persistence/mirror"
	"voxelmap.ai/internal/persistence/snapshot"
	"voxelmap.ai/internal/protocol"
	"voxelmap.ai/internal/transport/feed"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to minimap.yaml (default: ./configs/minimap.yaml if present)")
		feedURL    = flag.String("feed", "", "feed websocket url (overrides config)")
		snapPath   = flag.String("snapshot", "", "snapshot to restore before connecting (optional)")
		offline    = flag.Bool("offline", false, "do not connect to a feed; serve the restored snapshot only")
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
	if *feedURL != "" {
		cfg.Feed.URL = *feedURL
	}

	log := logger.New(cfg.Logger.Level).With("component", "minimap")
	defer log.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	palette := mapcolor.DefaultPalette()
	if cfg.Palette.Path != "" {
		palette, err = mapcolor.LoadPalette(cfg.Palette.Path)
		if err != nil {
			log.Fatal("load palette", "path", cfg.Palette.Path, "error", err)
		}
	}

	sessionID := uuid.NewString()
	opts := []client.Option{
		client.WithLogger(log),
		client.WithMetrics(m),
		client.WithPalette(palette),
		client.WithSessionID(sessionID),
	}

	var idx *indexdb.SQLiteIndex
	if cfg.Data.Index {
		idx, err = indexdb.OpenSQLite(filepath.Join(cfg.Data.Dir, "index.db"), indexdb.WithMetrics(m), indexdb.WithSession(sessionID))
		if err != nil {
			log.Fatal("open index", "error", err)
		}
		defer idx.Close()
		opts = append(opts, client.WithRecorder(idx))
	}

	var mir *mirror.Mirror
	if cfg.Mirror.Endpoint != "" {
		s3, err := mirror.NewS3(mirror.S3Config{
			Endpoint:  cfg.Mirror.Endpoint,
			Bucket:    cfg.Mirror.Bucket,
			Region:    cfg.Mirror.Region,
			AccessKey: cfg.Mirror.AccessKey,
			SecretKey: cfg.Mirror.SecretKey,
		})
		if err != nil {
			log.Fatal("mirror", "error", err)
		}
		mir = mirror.New(s3, cfg.Data.Dir, cfg.Mirror.Prefix,
			mirror.WithLogger(log.With("component", "mirror")),
			mirror.WithMetrics(m),
			mirror.WithWorkers(cfg.Mirror.Workers),
			mirror.WithQueue(cfg.Mirror.Queue),
		)
		// Closed after the event log so its final file is queued.
		defer mir.Close()
	}

	var events *eventlog.Writer
	if cfg.Data.EventLog {
		events = eventlog.NewWriter(filepath.Join(cfg.Data.Dir, "events"), "feed")
		if mir != nil {
			events.OnClose(mir.Enqueue)
		}
		defer events.Close()
	}

	clip := view.ClipStencil
	if cfg.Atlas.Clip == "scissor" {
		clip = view.ClipScissor
	}
	platform := surface.NewMemoryPlatform(cfg.Atlas.SurfaceLimit)
	loop := client.NewLoop(cfg.Atlas.FrameRate, client.WithLogger(log), client.WithMetrics(m))
	sess := client.NewSession(loop, platform, client.SessionConfig{ViewRadius: cfg.Atlas.ViewRadius, Clip: clip}, opts...)

	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			log.Fatal("read snapshot", "path", *snapPath, "error", err)
		}
		loop.Schedule(func() {
			if err := sess.Restore(snap); err != nil {
				log.Error("restore snapshot", "path", *snapPath, "error", err)
				return
			}
			log.Info("restored snapshot", "path", *snapPath, "world", snap.Header.WorldID, "chunks", len(snap.Chunks))
		})
	}

	ctx, cancel := signalContext()
	defer cancel()

	if !*offline {
		tap := func(raw []byte) {
			if events == nil {
				return
			}
			if err := events.WriteRaw(raw); err != nil {
				m.ObserveEventLogFailure()
			}
		}
		go runFeed(ctx, cfg, sess, log, m, tap)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/atlas.png", func(rw http.ResponseWriter, r *http.Request) {
		mem := platform.Last()
		if mem == nil {
			http.Error(rw, "atlas not ready", http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "image/png")
		rw.Header().Set("Cache-Control", "no-store")
		if err := mem.WritePNG(rw); err != nil {
			log.Warn("write atlas png", "error", err)
		}
	})
	mux.HandleFunc("/frame", func(rw http.ResponseWriter, r *http.Request) {
		f, ok := sess.LastFrame()
		if !ok {
			http.Error(rw, "no frame yet", http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(f)
	})
	if mir != nil {
		mux.HandleFunc("/admin/v1/mirror/stats", func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(mir.Stats())
		})
	}
	if idx != nil {
		mux.HandleFunc("/admin/v1/index/stats", func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(idx.Stats())
		})
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	go func() {
		log.Info("listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "error", err)
			cancel()
		}
	}()

	if err := loop.Run(ctx, sess.Frame); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("loop stopped", "error", err)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	// The loop has stopped; the session is ours now.
	if cfg.Data.Snapshot {
		snap := sess.Snapshot(time.Now())
		path := filepath.Join(cfg.Data.Dir, "snapshots", sess.ID()+".snap.zst")
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			log.Error("write snapshot", "path", path, "error", err)
		} else {
			log.Info("snapshot saved", "path", path, "chunks", len(snap.Chunks))
			idx.RecordSnapshot(path, snap)
			mir.Enqueue(path)
		}
	}
	if err := sess.Close(); err != nil {
		log.Warn("close session", "error", err)
	}
}

// runFeed keeps one feed connection alive, reconnecting with backoff. Each
// connection starts from an empty world; the feed resends what is loaded.
func runFeed(ctx context.Context, cfg config.Config, sess *client.Session, log logger.Logger, m *metrics.Metrics, tap func([]byte)) {
	backoff := time.Second
	hello := protocol.HelloMsg{ClientName: cfg.Feed.ClientName, ViewRadius: cfg.Atlas.ViewRadius}
	for ctx.Err() == nil {
		c, err := feed.Dial(ctx, cfg.Feed.URL, hello, feed.WithLogger(log), feed.WithMetrics(m), feed.WithTap(tap))
		if err != nil {
			log.Warn("feed dial failed", "url", cfg.Feed.URL, "retry_in", backoff.String(), "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, 15*time.Second)
			continue
		}
		backoff = time.Second
		w := c.Welcome()
		sess.Router().WorldChanged(w.WorldID)
		sess.HandleMessage(&w)
		if err := c.Run(ctx, sess.HandleMessage); err != nil {
			log.Warn("feed connection lost", "error", err)
		}
		_ = c.Close()
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
