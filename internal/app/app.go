package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sharetube/watchparty/internal/controller"
	"github.com/sharetube/watchparty/internal/repository/catalog/postgres"
	"github.com/sharetube/watchparty/internal/repository/connection/inmemory"
	registry "github.com/sharetube/watchparty/internal/repository/room/inmemory"
	roomRedis "github.com/sharetube/watchparty/internal/repository/room/redis"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/authtoken"
	"github.com/sharetube/watchparty/pkg/ctxlogger"
	"github.com/sharetube/watchparty/pkg/redisclient"
	"github.com/sharetube/watchparty/pkg/wsconn"
)

type AppConfig struct {
	Secret           string        `json:"-"`
	Host             string        `json:"host"`
	Port             int           `json:"port"`
	LogLevel         string        `json:"log_level"`
	MembersLimit     int           `json:"members_limit"`
	GracePeriod      time.Duration `json:"grace_period"`
	RoomIdleTimeout  time.Duration `json:"room_idle_timeout"`
	SendBuffer       int           `json:"send_buffer"`
	ChatHistoryLimit int           `json:"chat_history_limit"`
	PersistTTL       time.Duration `json:"persist_ttl"`
	RedisHost        string        `json:"redis_host"`
	RedisPort        int           `json:"redis_port"`
	RedisPassword    string        `json:"-"`
	CatalogDSN       string        `json:"-"`
}

func (cfg *AppConfig) Validate() error {
	return validation.ValidateStruct(cfg,
		validation.Field(&cfg.Port, validation.Min(0), validation.Max(65535)),
		validation.Field(&cfg.LogLevel, validation.Required),
		validation.Field(&cfg.MembersLimit, validation.Min(0)),
		validation.Field(&cfg.GracePeriod, validation.Min(time.Duration(0))),
		validation.Field(&cfg.RoomIdleTimeout, validation.Min(time.Duration(0))),
		validation.Field(&cfg.SendBuffer, validation.Required, validation.Min(1)),
		validation.Field(&cfg.ChatHistoryLimit, validation.Min(0)),
		validation.Field(&cfg.PersistTTL, validation.Min(time.Duration(0))),
		validation.Field(&cfg.RedisPort, validation.When(cfg.RedisHost != "", validation.Required, validation.Max(65535))),
	)
}

type Option func(*options)

type options struct {
	catalog room.Catalog
}

// WithCatalog replaces the catalog CatalogDSN would open.
func WithCatalog(c room.Catalog) Option {
	return func(o *options) {
		o.catalog = c
	}
}

// Server is the wired application without its listener.
type Server struct {
	handler http.Handler
	service interface {
		Run(ctx context.Context) error
	}
	closers []func() error
	logger  *slog.Logger
}

func New(ctx context.Context, cfg *AppConfig, logger *slog.Logger, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{logger: logger}

	var store room.RoomStore
	if cfg.RedisHost != "" {
		rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		s.closers = append(s.closers, rc.Close)
		store = roomRedis.NewRepo(rc, cfg.PersistTTL)
	} else {
		logger.WarnContext(ctx, "redis host is empty, running without persistence")
	}

	catalog := o.catalog
	if catalog == nil && cfg.CatalogDSN != "" {
		db, err := postgres.Open(cfg.CatalogDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open catalog: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to get catalog connection: %w", err)
		}
		s.closers = append(s.closers, sqlDB.Close)
		catalog = postgres.NewRepo(db)
	}
	if catalog == nil {
		logger.WarnContext(ctx, "no catalog configured, rooms are only created on join")
	}

	var verifier *authtoken.Verifier
	if cfg.Secret != "" {
		v, err := authtoken.New(cfg.Secret)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create token verifier: %w", err)
		}
		verifier = v
	} else {
		logger.WarnContext(ctx, "secret is empty, trusting client supplied identities")
	}

	connRepo := inmemory.NewRepo(logger)
	roomService := room.NewService(registry.NewRegistry(), connRepo, store, catalog, &room.Config{
		MembersLimit:     cfg.MembersLimit,
		GracePeriod:      cfg.GracePeriod,
		RoomIdleTimeout:  cfg.RoomIdleTimeout,
		ChatHistoryLimit: cfg.ChatHistoryLimit,
	}, logger)
	s.service = roomService

	wsCfg := wsconn.DefaultConfig()
	wsCfg.SendBuffer = cfg.SendBuffer

	// a nil *Verifier must not become a non-nil interface
	var ctrl interface{ GetMux() http.Handler }
	if verifier != nil {
		ctrl = controller.NewController(roomService, connRepo, verifier, wsCfg, logger)
	} else {
		ctrl = controller.NewController(roomService, connRepo, nil, wsCfg, logger)
	}
	s.handler = ctrl.GetMux()

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run drives background work until ctx is done. Pending writes are flushed before it returns.
func (s *Server) Run(ctx context.Context) error {
	return s.service.Run(ctx)
}

func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil

	return errors.Join(errs...)
}

func newLogger(level string) (*slog.Logger, error) {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	return slog.New(&h), nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	app, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: app.Handler()}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)
	defer serverStopCtx()

	runDone := make(chan error, 1)
	go func() {
		runDone <- app.Run(serverCtx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sig)

	shutdownErr := make(chan error, 1)
	go func() {
		select {
		case <-sig:
		case <-serverCtx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(serverCtx), 30*time.Second)
		defer cancel()

		logger.InfoContext(shutdownCtx, "shutting down server")
		shutdownErr <- server.Shutdown(shutdownCtx)
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		serverStopCtx()
		<-runDone
		return err
	}

	if err := <-shutdownErr; err != nil {
		logger.WarnContext(serverCtx, "graceful shutdown failed", "error", err)
	}

	// stop the persister only once no handler can enqueue anymore
	serverStopCtx()

	return <-runDone
}
