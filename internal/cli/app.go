package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/aretw0/gocare"
	"github.com/aretw0/gocare/internal/config"
	"github.com/aretw0/gocare/internal/logging"
	fileAdapter "github.com/aretw0/gocare/pkg/adapters/file"
	httpAdapter "github.com/aretw0/gocare/pkg/adapters/http"
	mcpAdapter "github.com/aretw0/gocare/pkg/adapters/mcp"
	"github.com/aretw0/gocare/pkg/adapters/memory"
	openaiAdapter "github.com/aretw0/gocare/pkg/adapters/openai"
	redisAdapter "github.com/aretw0/gocare/pkg/adapters/redis"
	"github.com/aretw0/gocare/pkg/adapters/sqlstore"
	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/intent"
	"github.com/aretw0/gocare/pkg/observability"
	"github.com/aretw0/gocare/pkg/persistence/middleware"
	"github.com/aretw0/gocare/pkg/ports"
	"github.com/aretw0/gocare/pkg/session"
	goredis "github.com/redis/go-redis/v9"
)

// App is a fully wired support line: stores, engine and session manager.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Version   string
	Directory ports.Directory
	Store     ports.SnapshotStore
	Audit     ports.AuditSink
	Metrics   *observability.Metrics
	Line      *gocare.SupportLine
	Manager   *session.Manager

	health  []func(context.Context) error
	closers []func() error
}

// Build wires every component cfg selects. On error the partially built
// resources are released.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*App, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	app := &App{Config: cfg, Logger: logger, Version: version}
	ready := false
	defer func() {
		if !ready {
			_ = app.Close()
		}
	}()

	var rdb *goredis.Client
	if cfg.UsesRedis() {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.closers = append(app.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		app.health = append(app.health, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	var db *sqlstore.DB
	if cfg.UsesSQL() {
		var err error
		db, err = sqlstore.Open(ctx, cfg.SQL.Driver, cfg.SQL.DSN, sqlstore.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, db.Close)
		app.health = append(app.health, db.Ping)
	}

	if err := app.buildDirectory(ctx, db); err != nil {
		return nil, err
	}
	if err := app.buildStore(rdb, db); err != nil {
		return nil, err
	}
	app.buildAudit(rdb)

	lineOpts := []gocare.Option{
		gocare.WithLogger(logger),
		gocare.WithPolicy(cfg.Policy.Domain()),
		gocare.WithAuditSink(app.Audit),
		gocare.WithLifecycleHooks(observability.LoggingHooks(logger)),
	}
	if cfg.Metrics.Enabled {
		app.Metrics = observability.NewMetrics(cfg.Metrics.Namespace)
		lineOpts = append(lineOpts, gocare.WithLifecycleHooks(app.Metrics.Hooks()))
	}

	rules, err := loadRules(cfg.Intent.RulesFile)
	if err != nil {
		return nil, err
	}
	var detector ports.IntentDetector = rules
	if cfg.LLM.Enabled() {
		llm := openaiAdapter.New(cfg.LLM.APIKey, cfg.LLM.BaseURL,
			openaiAdapter.WithModel(cfg.LLM.Model),
			openaiAdapter.WithLogger(logger),
		)
		if cfg.LLM.Detect {
			detector = intent.Chain{llm, rules}
		}
		if cfg.LLM.Respond {
			lineOpts = append(lineOpts, gocare.WithResponder(llm))
		}
	}
	lineOpts = append(lineOpts, gocare.WithDetector(detector))

	if app.Store != nil {
		lineOpts = append(lineOpts, gocare.WithStore(app.Store))
	}
	if cfg.Store.DistributedLock && rdb != nil {
		lineOpts = append(lineOpts, gocare.WithLocker(redisAdapter.NewLocker(rdb, cfg.Redis.Prefix), cfg.Store.LockTTL.Std()))
	}
	app.Line = gocare.New(app.Directory, lineOpts...)
	app.Manager = app.Line.Manager()

	logger.Info("support line ready",
		"directory", cfg.Directory.Backend,
		"store", cfg.Store.Backend,
		"audit", cfg.Audit.Backend,
		"llm", cfg.LLM.Enabled(),
	)
	ready = true
	return app, nil
}

func (a *App) buildDirectory(ctx context.Context, db *sqlstore.DB) error {
	cfg := a.Config
	switch cfg.Directory.Backend {
	case config.BackendMCP:
		client, err := mcpAdapter.Dial(ctx, cfg.MCP.URL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)
		a.Directory = client
		return nil
	}

	users, err := loadUsers(cfg.Directory.UsersFile)
	if err != nil {
		return err
	}
	switch cfg.Directory.Backend {
	case config.BackendSQL:
		dir := db.Directory()
		if cfg.SQL.Seed {
			if err := dir.Seed(ctx, users); err != nil {
				return err
			}
		}
		a.Directory = dir
	default:
		a.Directory = memory.NewDirectory(users...)
	}
	return nil
}

func (a *App) buildStore(rdb *goredis.Client, db *sqlstore.DB) error {
	cfg := a.Config
	codec, err := snapshotCodec(cfg.Store)
	if err != nil {
		return err
	}

	var store ports.SnapshotStore
	switch cfg.Store.Backend {
	case config.BackendNone:
		return nil
	case config.BackendRedis:
		store = redisAdapter.NewFromClient(rdb,
			redisAdapter.WithPrefix(cfg.Redis.Prefix),
			redisAdapter.WithTTL(cfg.Store.TTL.Std()),
			redisAdapter.WithCodec(codec),
		)
	case config.BackendSQL:
		store = db.Snapshots(codec)
	case config.BackendFile:
		store = fileAdapter.New(cfg.Store.Dir, fileAdapter.WithCodec(codec))
	default:
		store = memory.NewStore(memory.WithTTL(cfg.Store.TTL.Std()))
	}

	if cfg.Store.MaskPII {
		store = middleware.Chain(store, middleware.NewPIIMiddleware(middleware.DefaultPIIPatterns))
	}
	a.Store = store
	return nil
}

func (a *App) buildAudit(rdb *goredis.Client) {
	switch a.Config.Audit.Backend {
	case config.BackendRedis:
		a.Audit = redisAdapter.NewAuditStream(rdb, a.Config.Audit.Stream, a.Config.Audit.MaxLen)
	case config.BackendMemory:
		a.Audit = memory.NewAuditLog()
	default:
		a.Audit = logging.NewAudit(a.Logger)
	}
}

func snapshotCodec(cfg config.StoreConfig) (ports.SnapshotCodec, error) {
	if cfg.EncryptionKey == "" {
		return ports.JSONCodec{}, nil
	}
	active, err := middleware.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	enc := middleware.EncryptionConfig{ActiveKey: active}
	for _, k := range cfg.FallbackKeys {
		key, err := middleware.ParseKey(k)
		if err != nil {
			return nil, fmt.Errorf("fallback key: %w", err)
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	return middleware.NewEncryptionCodec(enc)
}

func loadUsers(path string) ([]domain.UserRecord, error) {
	if path == "" {
		return memory.DemoUsers(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}
	return memory.ParseUsers(data)
}

func loadRules(path string) (*intent.Rules, error) {
	if path == "" {
		return intent.NewRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read intent rules: %w", err)
	}
	return intent.ParseRules(data)
}

// MCPServer exposes the directory as a user-record MCP server.
func (a *App) MCPServer() *mcpAdapter.Server {
	return mcpAdapter.NewServer(a.Directory, a.Version, mcpAdapter.WithServerLogger(a.Logger))
}

// Health runs every backend check.
func (a *App) Health(ctx context.Context) error {
	var errs []error
	for _, check := range a.health {
		errs = append(errs, check(ctx))
	}
	return errors.Join(errs...)
}

// Handler builds the REST and websocket surface.
func (a *App) Handler() http.Handler {
	opts := []httpAdapter.Option{
		httpAdapter.WithLogger(a.Logger),
		httpAdapter.WithHealthCheck(a.Health),
	}
	if a.Metrics != nil {
		opts = append(opts,
			httpAdapter.WithMetrics(a.Metrics.Handler()),
			httpAdapter.WithActiveGauge(a.Metrics.SessionsActive.Add),
		)
	}
	if a.Config.Server.MCP {
		opts = append(opts, httpAdapter.WithMCP(a.MCPServer().Handler()))
	}
	if a.Config.Store.MaskPII {
		patterns := middleware.MustCompile(middleware.DefaultPIIPatterns)
		opts = append(opts, httpAdapter.WithSnapshotMask(func(sc *domain.SessionContext) *domain.SessionContext {
			masked, err := middleware.Mask(sc, patterns)
			if err != nil {
				a.Logger.Warn("failed to mask snapshot", "err", err)
				return &domain.SessionContext{SessionID: sc.SessionID, Role: sc.Role}
			}
			return masked
		}))
	}
	return httpAdapter.NewHandler(a.Manager, opts...)
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
