package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guildmod/warden/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "chat moderation daemon: reaction monitoring and watched emoji",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "database connection string for guild configuration (sqlite:// or postgres://)",
			Value:   "sqlite://data/warden/warden.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"WARDEN_MAX_DB_CONNECTIONS"},
			Value:   40,
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"WARDEN_LOG_LEVEL", "LOG_LEVEL"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		watchCmd,
		triviaCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context) (*slog.Logger, error) {
	logger, err := cliutil.SetupSlog(cliutil.LogOptions{
		LogLevel: cctx.String("log-level"),
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "connect to the gateway and run the moderation daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "discord-token",
			Usage:    "bot token",
			Required: true,
			EnvVars:  []string{"WARDEN_DISCORD_TOKEN", "DISCORD_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "discord-api-host",
			Usage:   "REST API base URL",
			Value:   "https://discord.com/api/v10",
			EnvVars: []string{"WARDEN_DISCORD_API_HOST"},
		},
		&cli.StringFlag{
			Name:    "gateway-url",
			Usage:   "gateway websocket host",
			Value:   "wss://gateway.discord.gg",
			EnvVars: []string{"WARDEN_GATEWAY_URL"},
		},
		&cli.Float64Flag{
			Name:    "discord-rate-limit",
			Usage:   "max REST requests per second",
			Value:   40,
			EnvVars: []string{"WARDEN_DISCORD_RATE_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL; when set, counters, flags and the message cache live in redis",
			EnvVars: []string{"WARDEN_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the admin API",
			Value:   ":3700",
			EnvVars: []string{"WARDEN_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3701",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "bearer token for the admin API; the API is disabled when empty",
			EnvVars: []string{"WARDEN_ADMIN_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "optional Slack incoming webhook mirroring mod log messages",
			EnvVars: []string{"WARDEN_SLACK_WEBHOOK_URL", "SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "sets-json",
			Usage:   "path to JSON file with named sets (bot-admins, ignored-channels)",
			EnvVars: []string{"WARDEN_SETS_JSON"},
		},
		&cli.DurationFlag{
			Name:    "tick-interval",
			Usage:   "how often buffered reaction events are processed",
			Value:   time.Second,
			EnvVars: []string{"WARDEN_TICK_INTERVAL"},
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "emit OpenTelemetry spans for database queries",
			EnvVars: []string{"WARDEN_DB_TRACING"},
		},
		&cli.IntFlag{
			Name:    "log-rate-per-minute",
			Usage:   "max mod log messages per guild per minute (0 for no limit)",
			Value:   30,
			EnvVars: []string{"WARDEN_LOG_RATE_PER_MINUTE"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}

		shutdownOTEL, err := configOTEL(ctx, "warden")
		if err != nil {
			return err
		}
		defer shutdownOTEL()

		srv, err := NewServer(Config{
			Logger:           logger,
			DatabaseURL:      cctx.String("database-url"),
			MaxDBConnections: cctx.Int("max-db-connections"),
			DiscordToken:     cctx.String("discord-token"),
			DiscordAPIHost:   cctx.String("discord-api-host"),
			GatewayHost:      cctx.String("gateway-url"),
			DiscordRateLimit: cctx.Float64("discord-rate-limit"),
			RedisURL:         cctx.String("redis-url"),
			Bind:             cctx.String("bind"),
			MetricsListen:    cctx.String("metrics-listen"),
			AdminToken:       cctx.String("admin-token"),
			SlackWebhookURL:  cctx.String("slack-webhook-url"),
			SetsJSON:         cctx.String("sets-json"),
			TickInterval:     cctx.Duration("tick-interval"),
			LogRatePerMinute: cctx.Int("log-rate-per-minute"),
			DBTracing:        cctx.Bool("db-tracing"),
		})
		if err != nil {
			return fmt.Errorf("failed to construct server: %w", err)
		}

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run warden: %w", err)
		}
		return nil
	},
}
