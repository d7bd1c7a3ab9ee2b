// Package app wires all dinevox subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems (catalog, storage, policy, dialog orchestrator, call server),
// Run serves calls until the context ends, and Shutdown tears everything
// down in order.
//
// For testing, inject doubles via functional options (WithCatalog,
// WithActionStore, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rnmehta/dinevox/internal/action"
	"github.com/rnmehta/dinevox/internal/config"
	"github.com/rnmehta/dinevox/internal/dialog"
	"github.com/rnmehta/dinevox/internal/engine"
	"github.com/rnmehta/dinevox/internal/engine/cascade"
	"github.com/rnmehta/dinevox/internal/health"
	"github.com/rnmehta/dinevox/internal/menu"
	"github.com/rnmehta/dinevox/internal/menu/semantic"
	"github.com/rnmehta/dinevox/internal/observe"
	"github.com/rnmehta/dinevox/internal/policy"
	"github.com/rnmehta/dinevox/internal/resilience"
	"github.com/rnmehta/dinevox/internal/server"
	"github.com/rnmehta/dinevox/pkg/provider/embeddings"
	"github.com/rnmehta/dinevox/pkg/provider/llm"
	"github.com/rnmehta/dinevox/pkg/provider/stt"
	"github.com/rnmehta/dinevox/pkg/provider/tts"
	"github.com/rnmehta/dinevox/pkg/provider/vad"
	"github.com/rnmehta/dinevox/pkg/types"
)

// defaultOrderHistoryFile is the JSONL order log used when storage is not
// configured at all.
const defaultOrderHistoryFile = "orders.jsonl"

// maxDescriptionDistance is the cosine distance above which a semantic menu
// hit is treated as a miss.
const maxDescriptionDistance = 0.6

// reindexTimeout bounds the background reindex after a menu hot-reload.
const reindexTimeout = 30 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM        llm.Provider
	STT        stt.Provider
	TTS        tts.Provider
	Embeddings embeddings.Provider
	VAD        vad.Engine
}

// App owns all subsystem lifetimes and serves the dinevox call pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New, torn down in Shutdown.
	catalog  *menu.Catalog
	pool     *pgxpool.Pool
	store    action.Store
	actions  *action.Service
	policy   *hotPolicy
	semIdx   *semantic.Index
	orch     *dialog.Orchestrator
	srv      *server.Server
	watcher  *config.Watcher
	callLog  *CallLog
	logLevel *slog.LevelVar

	// Resilience-wrapped providers, nil when the raw provider is nil.
	llmP llm.Provider
	sttP stt.Provider
	ttsP tts.Provider

	configPath string

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCatalog injects a menu catalog instead of loading one from config.
func WithCatalog(c *menu.Catalog) Option {
	return func(a *App) { a.catalog = c }
}

// WithActionStore injects an order store instead of creating one from config.
func WithActionStore(s action.Store) Option {
	return func(a *App) { a.store = s }
}

// WithConfigWatch enables hot-reload of the config file at path. The cmd
// layer passes the same path it loaded the config from.
func WithConfigWatch(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithLogLevelVar connects the watcher's log-level hot-reload to the
// handler's level variable.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: catalog loading, storage
// connection, policy rules, semantic index build, dialog orchestrator and
// call server assembly.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		callLog:   NewCallLog(),
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}
	if err := a.initCatalog(ctx); err != nil {
		return nil, fmt.Errorf("app: init catalog: %w", err)
	}
	if err := a.initActions(ctx); err != nil {
		return nil, fmt.Errorf("app: init actions: %w", err)
	}

	a.policy = newHotPolicy(rulesFromConfig(cfg))
	a.initResilience()

	if err := a.initSemanticIndex(ctx); err != nil {
		// The semantic index is an enrichment; the lexical matcher covers
		// every required path.
		slog.Warn("semantic index unavailable", "err", err)
		a.semIdx = nil
	}

	a.initOrchestrator()

	if err := a.initServer(); err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	if a.configPath != "" {
		if err := a.initWatcher(); err != nil {
			return nil, fmt.Errorf("app: init watcher: %w", err)
		}
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStorage opens the Postgres pool when a DSN is configured.
func (a *App) initStorage(ctx context.Context) error {
	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	return nil
}

// initCatalog loads the menu: injected catalog first, then the menu file,
// then the Postgres mirror, then the built-in default.
func (a *App) initCatalog(ctx context.Context) error {
	if a.catalog != nil {
		return nil
	}

	if path := a.cfg.Restaurant.MenuFile; path != "" {
		mf, err := menu.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load menu file %q: %w", path, err)
		}
		a.catalog = mf.Catalog()
		slog.Info("menu loaded", "path", path, "items", len(a.catalog.Items()))

		// Mirror the file into Postgres so order reports can join against
		// it. Failure is not fatal; the file remains the source of truth.
		if a.pool != nil {
			store := menu.NewPostgresStore(a.pool)
			if err := store.Migrate(ctx); err != nil {
				slog.Warn("menu table migration failed", "err", err)
			} else if err := store.Save(ctx, mf); err != nil {
				slog.Warn("menu mirror failed", "err", err)
			}
		}
		return nil
	}

	if a.pool != nil {
		store := menu.NewPostgresStore(a.pool)
		if err := store.Migrate(ctx); err == nil {
			if cat, err := store.Load(ctx); err == nil && len(cat.Items()) > 0 {
				a.catalog = cat
				slog.Info("menu loaded from postgres", "items", len(cat.Items()))
				return nil
			}
		}
	}

	a.catalog = menu.Default()
	slog.Info("using built-in default menu")
	return nil
}

// initActions picks the order store: injected, Postgres, or JSONL file.
func (a *App) initActions(ctx context.Context) error {
	if a.store == nil {
		if a.pool != nil {
			ps := action.NewPostgresStore(a.pool)
			if err := ps.Migrate(ctx); err != nil {
				return fmt.Errorf("orders table migration: %w", err)
			}
			a.store = ps
		} else {
			path := a.cfg.Storage.OrderHistoryFile
			if path == "" {
				path = defaultOrderHistoryFile
			}
			a.store = action.NewFileStore(path)
		}
	}
	a.actions = action.New(a.store)
	return nil
}

// initResilience wraps each configured provider in a circuit-breaking
// fallback group. With a single provider per slot the group degrades to a
// plain breaker.
func (a *App) initResilience() {
	cfg := resilience.FallbackConfig{}
	if a.providers.LLM != nil {
		a.llmP = resilience.NewLLMFallback(a.providers.LLM, a.cfg.Providers.LLM.Name, cfg)
	}
	if a.providers.STT != nil {
		a.sttP = resilience.NewSTTFallback(a.providers.STT, a.cfg.Providers.STT.Name, cfg)
	}
	if a.providers.TTS != nil {
		a.ttsP = resilience.NewTTSFallback(a.providers.TTS, a.cfg.Providers.TTS.Name, cfg)
	}
}

// initSemanticIndex builds the pgvector description index when both Postgres
// and an embeddings provider are available.
func (a *App) initSemanticIndex(ctx context.Context) error {
	if a.pool == nil || a.providers.Embeddings == nil {
		return nil
	}
	if dims := a.cfg.Storage.EmbeddingDimensions; dims > 0 && a.providers.Embeddings.Dimensions() != dims {
		return fmt.Errorf("embedding dimensions mismatch: provider %d, config %d",
			a.providers.Embeddings.Dimensions(), dims)
	}

	idx := semantic.New(a.pool, a.providers.Embeddings)
	if err := idx.Migrate(ctx); err != nil {
		return err
	}
	if err := idx.Reindex(ctx, a.catalog); err != nil {
		return err
	}
	a.semIdx = idx
	slog.Info("semantic menu index ready", "items", len(a.catalog.Items()))
	return nil
}

// initOrchestrator assembles the deterministic dialog core.
func (a *App) initOrchestrator() {
	opts := []dialog.Option{}
	if t := a.cfg.Restaurant.LLMConfidenceThreshold; t > 0 {
		opts = append(opts, dialog.WithLLMConfidenceThreshold(t))
	}
	if a.semIdx != nil {
		idx := a.semIdx
		opts = append(opts, dialog.WithDescriptionSearch(
			func(ctx context.Context, query string) (string, bool) {
				results, err := idx.Search(ctx, query, 1)
				if err != nil {
					slog.Warn("semantic search failed", "err", err)
					return "", false
				}
				if len(results) == 0 || results[0].Distance > maxDescriptionDistance {
					return "", false
				}
				return results[0].ItemName, true
			}))
	}
	a.orch = dialog.New(a.catalog, a.policy, a.actions, opts...)
}

// initServer builds the websocket call server around the engine factory.
func (a *App) initServer() error {
	var checkers []health.Checker
	if a.pool != nil {
		pool := a.pool
		checkers = append(checkers, health.Checker{
			Name:  "postgres",
			Check: func(ctx context.Context) error { return pool.Ping(ctx) },
		})
	}

	srvCfg := server.Config{
		ListenAddr: a.cfg.Server.ListenAddr,
		NewEngine:  a.newEngine,
		STT:        a.sttP,
		VAD:        a.providers.VAD,
		Keywords:   a.dishKeywords(),
		OnTurn:     a.callLog.Record,
		Metrics:    observe.DefaultMetrics(),
		Checkers:   checkers,
	}
	if tls := a.cfg.Server.TLS; tls != nil {
		srvCfg.CertFile = tls.CertFile
		srvCfg.KeyFile = tls.KeyFile
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return err
	}
	a.srv = srv
	return nil
}

// initWatcher starts config and menu hot-reload.
func (a *App) initWatcher() error {
	w, err := config.NewWatcher(a.configPath, a.onConfigChange,
		config.WithMenuChange(a.onMenuChange))
	if err != nil {
		return err
	}
	a.watcher = w
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})
	return nil
}

// newEngine is the per-call engine factory handed to the server.
func (a *App) newEngine(callID string) (engine.VoiceEngine, error) {
	return cascade.New(a.orch, a.llmP, a.ttsP, a.voiceProfile(),
		cascade.WithCallID(callID)), nil
}

// voiceProfile converts the restaurant voice config for the TTS providers.
func (a *App) voiceProfile() types.VoiceProfile {
	vc := a.cfg.Restaurant.Voice
	return types.VoiceProfile{
		ID:          vc.VoiceID,
		Provider:    vc.Provider,
		PitchShift:  vc.PitchShift,
		SpeedFactor: vc.SpeedFactor,
	}
}

// dishKeywords boosts recognition of every menu item name in the STT stream.
func (a *App) dishKeywords() []types.KeywordBoost {
	entries := a.catalog.Items()
	boosts := make([]types.KeywordBoost, 0, len(entries))
	for _, e := range entries {
		boosts = append(boosts, types.KeywordBoost{Keyword: e.Item.Name, Boost: 1.0})
	}
	return boosts
}

// ─── Hot-reload callbacks ────────────────────────────────────────────────────

// onConfigChange applies the reloadable parts of a config change: log level,
// hours and stock list. The diff itself is logged by the watcher.
func (a *App) onConfigChange(old, new *config.Config) {
	diff := config.Diff(old, new)

	if diff.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(slogLevel(new.Server.LogLevel))
		slog.Info("log level updated", "level", new.Server.LogLevel)
	}

	if diff.HoursChanged || diff.OutOfStockChanged {
		a.policy.Replace(rulesFromConfig(new))
		slog.Info("policy rules updated",
			"open_hour", new.Restaurant.OpenHour,
			"close_hour", new.Restaurant.CloseHour,
			"out_of_stock", len(new.Restaurant.OutOfStock))
	}

	if diff.ThresholdChanged {
		slog.Warn("llm_confidence_threshold changed; restart to apply")
	}
}

// onMenuChange swaps the catalog contents and rebuilds the semantic index in
// the background. Active calls pick up the new menu on their next turn.
func (a *App) onMenuChange(_, updated *menu.MenuFile) {
	a.catalog.Replace(updated.Restaurant, updated.Menu)
	slog.Info("menu reloaded", "items", len(a.catalog.Items()))

	if a.semIdx != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), reindexTimeout)
			defer cancel()
			if err := a.semIdx.Reindex(ctx, a.catalog); err != nil {
				slog.Warn("semantic reindex failed", "err", err)
			}
		}()
	}
}

// ─── Run / Shutdown ──────────────────────────────────────────────────────────

// Run serves calls until ctx is cancelled. It returns the server error, or
// nil after a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running",
		"listen_addr", a.cfg.Server.ListenAddr,
		"menu_items", len(a.catalog.Items()),
		"llm", a.llmP != nil,
		"stt", a.sttP != nil,
		"tts", a.ttsP != nil)
	return a.srv.Run(ctx)
}

// CallLog exposes the in-memory record of completed turns.
func (a *App) CallLog() *CallLog { return a.callLog }

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// rulesFromConfig builds policy rules from the restaurant config. Zero hours
// mean always open.
func rulesFromConfig(cfg *config.Config) *policy.Rules {
	var opts []policy.Option
	open, close := cfg.Restaurant.OpenHour, cfg.Restaurant.CloseHour
	if open == 0 && close == 0 {
		opts = append(opts, policy.WithHours(0, 24))
	} else {
		opts = append(opts, policy.WithHours(open, close))
	}
	if cfg.Restaurant.OutOfStock != nil {
		opts = append(opts, policy.WithOutOfStock(cfg.Restaurant.OutOfStock))
	}
	return policy.New(opts...)
}

// slogLevel converts the config level to a slog level.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
