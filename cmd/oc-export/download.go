package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/oc-marketplace-export/pkg/bulk"
	"github.com/Sternrassler/oc-marketplace-export/pkg/config"
	"github.com/Sternrassler/oc-marketplace-export/pkg/export"
	"github.com/Sternrassler/oc-marketplace-export/pkg/logging"
	"github.com/Sternrassler/oc-marketplace-export/pkg/portal"
	"github.com/Sternrassler/oc-marketplace-export/pkg/ratelimit"
	"github.com/Sternrassler/oc-marketplace-export/pkg/snapshot"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix namespaces environment overrides: --portal-token is read from
// OCEXPORT_PORTAL_TOKEN when the flag is not given.
const envPrefix = "OCEXPORT"

func newDownloadCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download a marketplace into a seed file",
		Long: "Authenticates with a portal login, a portal token or API client credentials from a targets file, " +
			"then downloads every marketplace resource into a YAML or JSON snapshot",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, v)
		},
	}

	defaults := ratelimit.DefaultConfig()
	flags := cmd.Flags()
	flags.StringP("username", "u", "", "Portal username")
	flags.StringP("password", "p", "", "Portal password")
	flags.StringP("marketplace", "m", "", "Marketplace ID")
	flags.StringP("portal-token", "t", "", "Portal access token (skips login, no refresh)")
	flags.String("target", "", "Target name in the targets file (client credentials)")
	flags.String("config", "", "Targets file (default ./"+config.DefaultFileName+")")
	flags.StringP("output", "o", "ordercloud-seed.yml", "Output file (.json for JSON, YAML otherwise)")
	flags.String("portal-url", portal.DefaultBaseURL, "Portal API root")
	flags.String("redis-url", "", "Redis URL for the shared throttle state and a snapshot copy")
	flags.Duration("redis-ttl", 0, "Expiry of the Redis snapshot copy (0 keeps it)")
	flags.Duration("min-time", defaults.MinTime, "Minimum spacing between request starts")
	flags.Int("max-concurrent", defaults.MaxConcurrent, "Maximum requests in flight")
	flags.Int("workers", 1, "Pages of one resource fetched in parallel")
	flags.Int("retries", 0, "Retries of a failed resource listing (0 disables)")
	flags.String("log-level", string(logging.LevelInfo), "Log level: debug, info, warn, error")
	flags.Bool("pretty", false, "Human-readable logs")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

func runDownload(cmd *cobra.Command, v *viper.Viper) error {
	level, err := logging.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return err
	}
	logger := logging.Setup(logging.Config{
		Level:  level,
		Pretty: v.GetBool("pretty"),
		Output: cmd.ErrOrStderr(),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr := v.GetString("metrics-addr"); addr != "" {
		srv := serveMetrics(addr, logger)
		defer srv.Close()
	}

	opts := export.DefaultOptions()
	opts.Portal = portal.New(portal.Config{
		BaseURL: v.GetString("portal-url"),
		Timeout: 30 * time.Second,
	}, logger.With().Str("component", "portal").Logger())
	opts.Scheduler = ratelimit.Config{
		MinTime:       v.GetDuration("min-time"),
		MaxConcurrent: v.GetInt("max-concurrent"),
	}
	opts.Bulk.Workers = v.GetInt("workers")
	if n := v.GetInt("retries"); n > 0 {
		retry := bulk.DefaultRetryConfig()
		retry.MaxAttempts = n + 1
		opts.Retry = &retry
	}
	opts.Version = version

	output := v.GetString("output")
	sinks := snapshot.MultiSink{snapshot.NewFileSink(output)}

	if redisURL := v.GetString("redis-url"); redisURL != "" {
		redisClient, err := connectRedis(ctx, redisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		scope := v.GetString("target")
		if scope == "" {
			scope = v.GetString("marketplace")
		}
		opts.ThrottleStore = ratelimit.NewRedisStore(redisClient, scope)
		sinks = append(sinks, snapshot.NewRedisSink(redisClient, v.GetDuration("redis-ttl")))
		logger.Info().Str("scope", scope).Msg("Sharing throttle state through Redis")
	}

	reporter := newColorReporter(cmd.OutOrStdout())
	downloader := export.NewDownloader(opts, logger.With().Str("component", "export").Logger())

	m, err := downloader.Download(ctx, export.Args{
		Username:      v.GetString("username"),
		Password:      v.GetString("password"),
		MarketplaceID: v.GetString("marketplace"),
		PortalToken:   v.GetString("portal-token"),
		Target:        v.GetString("target"),
		ConfigPath:    v.GetString("config"),
		Reporter:      reporter,
	})
	if err != nil {
		return err
	}

	if err := sinks.Write(ctx, m); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	reporter.Report(fmt.Sprintf("Wrote %d records to %s", m.Total(), output), logging.SeveritySuccess)
	return nil
}

func connectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", redisOpts.Addr, err)
	}
	return redisClient, nil
}

func serveMetrics(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	logger.Info().Str("addr", addr).Msg("Serving metrics")
	return srv
}
