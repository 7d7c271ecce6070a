package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/guildmod/warden/discord"
	"github.com/guildmod/warden/discord/cachestore"
	"github.com/guildmod/warden/guildconfig"
	"github.com/guildmod/warden/notify"
	"github.com/guildmod/warden/reactmon"
	"github.com/guildmod/warden/reactmon/countstore"
	"github.com/guildmod/warden/reactmon/flagstore"
	"github.com/guildmod/warden/reactmon/setstore"
	"github.com/guildmod/warden/reactmon/watchstore"
	"github.com/guildmod/warden/util/cliutil"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gorm.io/plugin/opentelemetry/tracing"
)

type Config struct {
	Logger           *slog.Logger
	DatabaseURL      string
	MaxDBConnections int
	DiscordToken     string
	DiscordAPIHost   string
	GatewayHost      string
	DiscordRateLimit float64
	RedisURL         string
	Bind             string
	MetricsListen    string
	AdminToken       string
	SlackWebhookURL  string
	SetsJSON         string
	TickInterval     time.Duration
	LogRatePerMinute int
	DBTracing        bool
}

type Server struct {
	logger        *slog.Logger
	monitor       *reactmon.Monitor
	gateway       *discord.Gateway
	settings      *guildconfig.Store
	hooks         *gatewayHooks
	httpd         *http.Server
	metricsListen string
	tickInterval  time.Duration
}

func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := cliutil.SetupDatabase(config.DatabaseURL, config.MaxDBConnections)
	if err != nil {
		return nil, err
	}
	if config.DBTracing {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, err
		}
	}
	watches, err := watchstore.NewGormStore(db)
	if err != nil {
		return nil, err
	}
	settings, err := guildconfig.NewStore(db)
	if err != nil {
		return nil, err
	}

	sets := setstore.NewMemSetStore()
	if config.SetsJSON != "" {
		if err := sets.LoadFromFileJSON(config.SetsJSON); err != nil {
			return nil, fmt.Errorf("loading sets file: %w", err)
		}
	}

	var counters countstore.CountStore
	var flags flagstore.FlagStore
	var msgCache cachestore.CacheStore
	if config.RedisURL != "" {
		// the other redis stores share the counter store's client
		rcs, err := countstore.NewRedisCountStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		counters = rcs
		flags = &flagstore.RedisFlagStore{Client: rcs.Client}
		msgCache = cachestore.NewRedisCacheStoreFromClient(rcs.Client, 5*time.Minute)
		logger.Info("using redis for counters, flags and message cache")
	} else {
		counters = countstore.NewMemCountStore(nil)
		flags = flagstore.NewMemFlagStore()
		msgCache = cachestore.NewMemCacheStore(10_000, 5*time.Minute)
	}

	client := discord.NewClient(config.DiscordAPIHost, config.DiscordToken, config.DiscordRateLimit, logger)
	client.Cache = msgCache

	roster := discord.NewRoster(100_000, 6*time.Hour)
	auth := &authority{
		roster:   roster,
		settings: settings,
		sets:     sets,
	}

	throttle := notify.NewThrottle(int64(config.LogRatePerMinute), time.Minute, nil)
	modLog := &notify.ModLog{
		Channels: settings,
		Sender:   client,
		Throttle: throttle,
		Logger:   logger.With("component", "modlog"),
	}
	if config.SlackWebhookURL != "" {
		modLog.Slack = notify.NewSlackNotifier(config.SlackWebhookURL, logger)
	}

	monitor, err := reactmon.NewMonitor(reactmon.MonitorConfig{
		Logger:    logger,
		Platform:  &discordPlatform{client: client},
		Authority: auth,
		Log:       modLog,
		Errors:    &errorReporter{logger: logger},
		Store:     watches,
		Counters:  counters,
		Flags:     flags,
	})
	if err != nil {
		return nil, err
	}

	hooks := &gatewayHooks{
		logger:    logger.With("component", "hooks"),
		monitor:   monitor,
		roster:    roster,
		settings:  settings,
		authority: auth,
		throttle:  throttle,
		messages:  client,
	}

	srv := &Server{
		logger:        logger,
		monitor:       monitor,
		gateway:       discord.NewGateway(config.GatewayHost, config.DiscordToken, hooks.callbacks(), logger),
		settings:      settings,
		hooks:         hooks,
		metricsListen: config.MetricsListen,
		tickInterval:  config.TickInterval,
	}

	if config.AdminToken != "" {
		api := &adminAPI{
			logger:   logger,
			monitor:  monitor,
			settings: settings,
			flags:    flags,
		}
		// httpd
		var (
			httpTimeout        = 1 * time.Minute
			httpMaxHeaderBytes = 1 * (1024 * 1024)
		)
		srv.httpd = &http.Server{
			Handler:        api.echo(config.AdminToken),
			Addr:           config.Bind,
			WriteTimeout:   httpTimeout,
			ReadTimeout:    httpTimeout,
			MaxHeaderBytes: httpMaxHeaderBytes,
		}
	} else {
		logger.Warn("no admin token configured, admin API disabled")
	}

	return srv, nil
}

// Run blocks until the context is cancelled or a component fails.
func (srv *Server) Run(ctx context.Context) error {
	if err := srv.settings.LoadAll(ctx); err != nil {
		return err
	}
	if err := srv.monitor.Startup(ctx); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	srv.hooks.ctx = ctx

	eg.Go(func() error {
		return srv.gateway.Run(ctx)
	})
	eg.Go(func() error {
		return srv.monitor.Run(ctx, srv.tickInterval)
	})
	if srv.metricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsd := &http.Server{Addr: srv.metricsListen, Handler: mux}
		eg.Go(func() error {
			return serveUntilDone(ctx, metricsd)
		})
	}
	if srv.httpd != nil {
		eg.Go(func() error {
			srv.logger.Info("starting admin API", "bind", srv.httpd.Addr)
			return serveUntilDone(ctx, srv.httpd)
		})
	}

	err := eg.Wait()
	if errors.Is(err, context.Canceled) {
		srv.logger.Info("graceful shutdown complete")
		return nil
	}
	return err
}

func serveUntilDone(ctx context.Context, httpd *http.Server) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpd.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "addr", httpd.Addr, "err", err)
		}
	}()
	if err := httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
