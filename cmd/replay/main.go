package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"voxelmap.ai/internal/client"
	"voxelmap.ai/internal/logger"
	"voxelmap.ai/internal/minimap/mapcolor"
	"voxelmap.ai/internal/minimap/surface"
	"voxelmap.ai/internal/minimap/view"
	"voxelmap.ai/internal/persistence/eventlog"
	"voxelmap.ai/internal/persistence/indexdb"
	"voxelmap.ai/internal/persistence/snapshot"
	"voxelmap.ai/internal/protocol"
)

func main() {
	var (
		eventsDir   = flag.String("events", "", "directory containing feed-*.jsonl.zst")
		prefix      = flag.String("prefix", "feed", "event log file prefix")
		snapPath    = flag.String("snapshot", "", "snapshot to start from (optional)")
		radius      = flag.Int("radius", 5, "atlas view radius in chunks")
		limit       = flag.Int("surface_limit", 4096, "max surface dimension (0 = unlimited)")
		palettePath = flag.String("palette", "", "palette yaml (optional)")
		outPNG      = flag.String("out", "", "write the final atlas here as PNG (optional)")
		outFrame    = flag.String("frame", "", "write the final frame here as JSON (optional)")
		indexPath   = flag.String("index", "", "record invalidations into this sqlite file (optional)")
		chunk       = flag.String("chunk", "", "print the index history of chunk \"cx,cz\" (needs -index)")
		level       = flag.String("log_level", "warn", "log level")
	)
	flag.Parse()

	if *eventsDir == "" && *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -events or -snapshot")
		os.Exit(2)
	}
	log := logger.New(*level).With("component", "replay")
	defer log.Sync()

	palette := mapcolor.DefaultPalette()
	if *palettePath != "" {
		p, err := mapcolor.LoadPalette(*palettePath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load palette:", err)
			os.Exit(1)
		}
		palette = p
	}

	opts := []client.Option{client.WithLogger(log), client.WithPalette(palette)}
	var idx *indexdb.SQLiteIndex
	if *indexPath != "" {
		var err error
		idx, err = indexdb.OpenSQLite(*indexPath, indexdb.WithSession("replay"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "open index:", err)
			os.Exit(1)
		}
		defer idx.Close()
		opts = append(opts, client.WithRecorder(idx))
	}

	platform := surface.NewMemoryPlatform(*limit)
	loop := client.NewLoop(30, opts...)
	sess := client.NewSession(loop, platform, client.SessionConfig{ViewRadius: *radius, Clip: view.ClipStencil}, opts...)
	defer sess.Close()

	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		if err := sess.Restore(snap); err != nil {
			fmt.Fprintln(os.Stderr, "restore snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d world=%s saved_at=%s chunks=%d\n", snap.Header.Version, snap.Header.WorldID, snap.Header.SavedAt, len(snap.Chunks))
	}

	var st stats
	if *eventsDir != "" {
		files, err := eventlog.Files(*eventsDir, *prefix)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list events:", err)
			os.Exit(1)
		}
		if len(files) == 0 {
			fmt.Fprintln(os.Stderr, "no event files found in", *eventsDir)
			os.Exit(1)
		}
		for _, path := range files {
			if err := eventlog.ReadFile(path, func(e eventlog.Entry) error {
				replayEntry(sess, loop, e, &st)
				return nil
			}); err != nil {
				fmt.Fprintln(os.Stderr, "replay:", err)
				os.Exit(1)
			}
		}
	}

	loop.RunPending()
	sess.Frame(time.Now())
	frame, ok := sess.LastFrame()

	fmt.Printf("replay ok: messages=%d rejected=%d frames=%d worlds=%d tiles=%d\n",
		st.messages, st.rejected, st.frames, st.worlds, len(frame.Quads))

	if *outPNG != "" {
		if err := writePNG(platform, *outPNG); err != nil {
			fmt.Fprintln(os.Stderr, "write png:", err)
			os.Exit(1)
		}
	}
	if *outFrame != "" && ok {
		b, _ := json.MarshalIndent(frame, "", "  ")
		if err := os.WriteFile(*outFrame, b, 0o644); err != nil {
			fmt.Fprintln(os.Stderr, "write frame:", err)
			os.Exit(1)
		}
	}
	if *chunk != "" && idx != nil {
		cx, cz, err := parseChunk(*chunk)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		rows, err := idx.ChunkHistory(ctx, cx, cz, 50)
		if err != nil {
			fmt.Fprintln(os.Stderr, "chunk history:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			fmt.Printf("%6d %s %-18s positions=%d chunks=%d\n", r.Seq, r.At.Format(time.RFC3339), r.Kind, r.Positions, len(r.Chunks))
		}
	}
}

type stats struct {
	messages int
	rejected int
	frames   int
	worlds   int
}

// replayEntry drives the session the same way a live feed connection does,
// then drains the loop and renders after each position update.
func replayEntry(sess *client.Session, loop *client.Loop, e eventlog.Entry, st *stats) {
	st.messages++
	if err := protocol.Validate(e.Msg); err != nil {
		st.rejected++
		return
	}
	v, err := protocol.Decode(e.Msg)
	if err != nil {
		st.rejected++
		return
	}
	if w, ok := v.(*protocol.WelcomeMsg); ok {
		sess.Router().WorldChanged(w.WorldID)
		st.worlds++
	}
	if _, ok := v.(*protocol.RespawnMsg); ok {
		st.worlds++
	}
	sess.HandleMessage(v)
	loop.RunPending()
	if _, ok := v.(*protocol.PositionMsg); ok {
		sess.Frame(time.Now())
		st.frames++
	}
}

func writePNG(p *surface.MemoryPlatform, path string) error {
	mem := p.Last()
	if mem == nil {
		return fmt.Errorf("no atlas was created")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := mem.WritePNG(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func parseChunk(s string) (int, int, error) {
	a, b, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("bad -chunk %q, want cx,cz", s)
	}
	cx, err1 := strconv.Atoi(strings.TrimSpace(a))
	cz, err2 := strconv.Atoi(strings.TrimSpace(b))
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("bad -chunk %q, want cx,cz", s)
	}
	return cx, cz, nil
}
