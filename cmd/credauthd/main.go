package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-print"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	auth "github.com/goliatone/go-credauth"
	"github.com/goliatone/go-credauth/config"
	"github.com/goliatone/go-credauth/persistence"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfgPath  string
	envFiles []string

	cfg    *config.Config
	zap    *zap.Logger
	logger *auth.ZapLogger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "credauthd",
		Short:         "Credential authentication and session service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgPath, a.envFiles...)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.zap = buildLogger(cfg.App.Env, cfg.App.LogLevel)
			a.logger = auth.NewZapLogger(a.zap)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.zap != nil {
				_ = a.zap.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", envOr("CREDAUTH_CONFIG", ""), "path to the YAML config (env CREDAUTH_CONFIG)")
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the environment")

	root.AddCommand(
		a.serveCmd(),
		a.migrateCmd(),
		a.cleanupCmd(),
		a.configCmd(),
	)
	return root
}

func (a *app) openDB(ctx context.Context) (*bun.DB, error) {
	return persistence.Open(ctx, a.cfg.Storage.Driver, a.cfg.Storage.DSN, persistence.Options{
		Debug:        a.cfg.Storage.Debug,
		MaxOpenConns: a.cfg.Storage.MaxOpenConns,
		MaxIdleConns: a.cfg.Storage.MaxIdleConns,
		ConnLifetime: a.cfg.Storage.ConnLifetime,
	})
}

type services struct {
	repo        auth.RepositoryManager
	credentials *auth.CredentialService
	tokens      *auth.TokenService
	auther      *auth.Auther
	metrics     *auth.MetricsSink
}

func (a *app) buildServices(db *bun.DB) (*services, error) {
	opts := a.cfg.AuthOptions()

	repo := auth.NewRepositoryManager(db)
	if err := repo.Validate(); err != nil {
		return nil, err
	}

	metrics := auth.NewMetricsSink()
	sink := auth.MultiActivitySink{metrics}

	credentials := auth.NewCredentialService(repo, opts,
		auth.WithCredentialLogger(a.logger.Named("credentials")),
		auth.WithCredentialActivitySink(sink),
		auth.WithHashidAccountIDs(a.cfg.Security.HashidAccountIDs),
	)

	tokens := auth.NewTokenService(repo, opts,
		auth.WithTokenLogger(a.logger.Named("refresh_tokens")),
		auth.WithTokenActivitySink(sink),
		auth.WithCleanupBatchSize(a.cfg.Cleanup.BatchSize),
	)

	access, err := auth.NewAccessTokenService(opts, auth.WithAccessTokenLogger(a.logger.Named("access_token")))
	if err != nil {
		return nil, err
	}

	auther := auth.NewAuthenticator(credentials, tokens, access).
		WithLogger(a.logger.Named("authenticator"))

	return &services{
		repo:        repo,
		credentials: credentials,
		tokens:      tokens,
		auther:      auther,
		metrics:     metrics,
	}, nil
}

func (a *app) serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic token cleanup",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if migrate {
				if err := auth.CreateSchema(ctx, db); err != nil {
					return err
				}
			}

			svc, err := a.buildServices(db)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			if err := svc.metrics.Register(reg); err != nil {
				return err
			}
			httpMetrics := auth.NewHTTPMetrics()
			if err := httpMetrics.Register(reg); err != nil {
				return err
			}
			_ = reg.Register(collectors.NewGoCollector())
			_ = reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			server := fiber.New(fiber.Config{
				AppName:               "credauthd",
				DisableStartupMessage: true,
			})
			server.Use(httpMetrics.Middleware())
			server.Get(a.cfg.Server.MetricsPath, adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
			auth.RegisterAuthRoutes(server, svc.auther,
				auth.WithControllerLogger(a.logger.Named("http")),
				auth.WithHealthCheck(persistence.Ping(db)),
			)

			cleanup := auth.NewCleanupExpiredTokensHandler(svc.tokens, a.logger)
			msg := auth.CleanupExpiredTokensMessage{Timeout: a.cfg.Cleanup.Timeout}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.logger.Info("http server listening", "addr", a.cfg.Server.Addr)
				if err := server.Listen(a.cfg.Server.Addr); err != nil && gctx.Err() == nil {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				return server.ShutdownWithTimeout(a.cfg.Server.ShutdownTimeout)
			})
			g.Go(func() error {
				return auth.RunCleanupEvery(gctx, a.cfg.Cleanup.Interval, cleanup, msg)
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.logger.Info("shutdown complete")
			return nil
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "create missing tables before serving")
	return cmd
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables and indexes if they are missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := auth.CreateSchema(cmd.Context(), db); err != nil {
				return err
			}
			a.logger.Info("schema ready", "driver", a.cfg.Storage.Driver)
			return nil
		},
	}
}

func (a *app) cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired refresh tokens once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			svc, err := a.buildServices(db)
			if err != nil {
				return err
			}

			h := auth.NewCleanupExpiredTokensHandler(svc.tokens, a.logger)
			if err := h.Execute(cmd.Context(), auth.CleanupExpiredTokensMessage{Timeout: a.cfg.Cleanup.Timeout}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted=%d\n", h.Deleted)
			return nil
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration without secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), print.MaybePrettyJSON(a.cfg))
			return nil
		},
	}
}

func buildLogger(env, level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		lvl = zapcore.InfoLevel
	}

	zcfg := zap.NewDevelopmentConfig()
	if strings.ToLower(env) == "prod" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zcfg.DisableStacktrace = true
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := zcfg.Build()
	if err != nil {
		l, _ = zap.NewProduction()
	}
	return l.Named("credauthd")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
