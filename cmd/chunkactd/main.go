package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/l1jgo/chunkact/internal/activation"
	"github.com/l1jgo/chunkact/internal/chunk"
	"github.com/l1jgo/chunkact/internal/config"
	"github.com/l1jgo/chunkact/internal/core/event"
	coresys "github.com/l1jgo/chunkact/internal/core/system"
	"github.com/l1jgo/chunkact/internal/data"
	"github.com/l1jgo/chunkact/internal/journal"
	"github.com/l1jgo/chunkact/internal/persist"
	"github.com/l1jgo/chunkact/internal/sched"
	"github.com/l1jgo/chunkact/internal/scripting"
	"github.com/l1jgo/chunkact/internal/spawner"
	"github.com/l1jgo/chunkact/internal/system"
	"github.com/l1jgo/chunkact/internal/ticker"
	"github.com/l1jgo/chunkact/internal/world"
)

const statsIntervalTicks = 1200

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

var printer = message.NewPrinter(language.English)

func printBanner(serverName string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m             chunkactd  v0.1.0             \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m        chunk activation scheduler         \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mServer:\033[0m %s\n\n", serverName)
}

func printSection(title string) {
	lineLen := max(46-utf8.RuneCountInString(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := printer.Sprintf("%d", count)
	dotsLen := max(42-utf8.RuneCountInString(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main daemon logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config (CHUNKACT_CONFIG overrides the path)
	cfg, err := config.Load("config/server.toml")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name)

	// 3. Optional PostgreSQL journal
	printSection("Database")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		db   *persist.DB
		sink journal.Sink
	)
	if cfg.Database.Enabled() {
		db, err = persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		if err := persist.RunMigrations(ctx, db.Pool, log); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("migrations applied")

		repo := persist.NewJournalRepo(db)
		if cfg.Journal.RetentionDays > 0 {
			pruned, err := repo.Prune(ctx, cfg.Journal.RetentionDays)
			if err != nil {
				return fmt.Errorf("journal: %w", err)
			}
			printStat("journal rows pruned", int(pruned))
		}
		sink = repo
	} else {
		printOK("no dsn configured, journal keeps counters only")
	}
	fmt.Println()

	// 4. Load tables and scripts
	printSection("Data")

	placements, err := loadPlacements(ctx, cfg, db)
	if err != nil {
		return err
	}
	printStat("placements", placements.Count())

	worlds, err := data.LoadWorldTable(filepath.Join(cfg.Server.DataDir, "worlds.yaml"))
	if err != nil {
		return fmt.Errorf("load world table: %w", err)
	}
	printStat("worlds", len(worlds.Worlds))
	printStat("scripted players", len(worlds.Players))

	engine, err := scripting.NewEngine(cfg.Server.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	defer engine.Close()
	printOK("lua behaviours loaded")
	fmt.Println()

	// 5. Wire the activation stack
	bus := event.NewBus()
	scheduler := sched.New()
	registry := world.NewRegistry(log)
	host := world.NewHost(bus, cfg.Tick.ViewDistance, log)
	entityTicker := ticker.New(engine, cfg.Ticker.PeriodTicks, cfg.Ticker.Groups, log)
	presence := spawner.NewLogPresence(log)
	entitySpawner := spawner.New(presence, cfg.Spawner.SpawnsPerWindow, cfg.Spawner.WindowTicks, log)
	activationJournal := journal.NewBuffer(sink, cfg.Journal.BufferSize, log)

	activator := activation.New(activation.Deps{
		Index:    registry,
		Ticker:   entityTicker,
		Spawner:  entitySpawner,
		Timer:    scheduler,
		Loader:   host,
		Observer: activationJournal,
		Log:      log,
	}, activation.Options{
		ActivationDelay: cfg.Activation.DelayTicks,
		ImmediateRadius: cfg.Activation.ImmediateRadius,
	})
	entitySpawner.SetChunkActivity(activator)
	registry.SetListener(activator)
	activation.NewListener(activator).Register(bus)

	// 6. Populate the world
	printSection("World")
	for _, w := range worlds.Worlds {
		host.LoadWorld(w.Name, chunk.At(w.Name, w.SpawnX, w.SpawnZ), w.SpawnRadius)
	}
	for _, p := range placements.All() {
		if !p.Virtual && !worlds.Has(p.World) {
			log.Warn("placement in unknown world", zap.String("entity", p.Name), zap.String("world", p.World))
		}
		registry.Add(&world.Entity{
			Name:    p.Name,
			Kind:    p.Kind,
			Script:  p.Script,
			World:   p.World,
			X:       p.X,
			Y:       p.Y,
			Z:       p.Z,
			Virtual: p.Virtual,
		})
	}
	activator.ActivateAllWorlds()

	st := activator.Stats()
	printStat("entities", registry.Len())
	printStat("virtual entities", registry.VirtualCount())
	printStat("loaded chunks", host.LoadedChunks())
	printStat("chunks with entities", st.Chunks)
	printStat("active chunks", st.Active)
	fmt.Println()

	// 7. Create systems and register with runner
	runner := coresys.NewRunner()
	routes := system.NewRouteSystem(host, log)
	for i, p := range worlds.Players {
		routes.Add(newRoute(uint64(i+1), p))
	}
	persistence := system.NewPersistenceSystem(activationJournal, log, cfg.Journal.FlushIntervalTicks)
	stats := system.NewStatsSystem(runner, activator, entityTicker, entitySpawner, activationJournal, log, statsIntervalTicks)
	runner.Register(routes)
	runner.Register(event.NewDispatchSystem(bus))
	runner.Register(scheduler)
	runner.Register(entityTicker)
	runner.Register(entitySpawner)
	runner.Register(stats)
	runner.Register(persistence)

	// 8. Start game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	tick := time.NewTicker(cfg.Tick.Rate)
	defer tick.Stop()

	printSection("Ready")
	printReady(fmt.Sprintf("game loop started (tick: %s)", cfg.Tick.Rate))
	fmt.Println()

	for {
		select {
		case <-tick.C:
			runner.Tick(cfg.Tick.Rate)
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			shutdown(activator, persistence, stats, registry, entityTicker, entitySpawner, scheduler)
			log.Info("daemon stopped", zap.Uint64("ticks", runner.Ticks()))
			return nil
		}
	}
}

// shutdown deactivates everything, flushes the journal and reports any
// residual state.
func shutdown(
	activator *activation.Activator,
	persistence *system.PersistenceSystem,
	stats *system.StatsSystem,
	registry *world.Registry,
	entityTicker *ticker.Ticker,
	entitySpawner *spawner.Spawner,
	scheduler *sched.Scheduler,
) {
	activator.DeactivateAllWorlds()
	stats.Log()
	persistence.FlushNow()

	registry.RemoveAll()
	entityTicker.Shutdown()
	entitySpawner.Shutdown()
	activator.Shutdown()
	scheduler.Clear()
	registry.EnsureEmpty()
}

func loadPlacements(ctx context.Context, cfg *config.Config, db *persist.DB) (*data.PlacementTable, error) {
	if db == nil || !cfg.Database.LoadPlacements {
		t, err := data.LoadPlacementTable(filepath.Join(cfg.Server.DataDir, "placements.yaml"))
		if err != nil {
			return nil, fmt.Errorf("load placements: %w", err)
		}
		return t, nil
	}
	rows, err := persist.NewPlacementRepo(db).LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load placements: %w", err)
	}
	entries := make([]data.Placement, len(rows))
	for i, r := range rows {
		entries[i] = data.Placement{
			Name:    r.Name,
			Kind:    r.Kind,
			Script:  r.Script,
			World:   r.World,
			X:       r.X,
			Y:       r.Y,
			Z:       r.Z,
			Virtual: r.Virtual,
		}
	}
	t, err := data.NewPlacementTable(entries)
	if err != nil {
		return nil, fmt.Errorf("load placements: %w", err)
	}
	return t, nil
}

func newRoute(sessionID uint64, p data.PlayerEntry) *system.Route {
	r := &system.Route{
		Player: &world.Player{SessionID: sessionID, Name: p.Name, World: p.World, X: p.X, Z: p.Z},
		Speed:  p.Speed,
		Loop:   p.Loop,
	}
	for _, wp := range p.Route {
		r.Waypoints = append(r.Waypoints, system.Waypoint{
			World:    wp.World,
			X:        wp.X,
			Z:        wp.Z,
			Teleport: wp.Teleport,
			Wait:     wp.Wait,
		})
	}
	return r
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
