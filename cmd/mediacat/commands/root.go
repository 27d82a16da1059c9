package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vnykmshr/mediaflow/internal/config"
	"github.com/vnykmshr/mediaflow/pkg/async"
	"github.com/vnykmshr/mediaflow/pkg/media"
	"github.com/vnykmshr/mediaflow/pkg/media/sources/redissource"
	"github.com/vnykmshr/mediaflow/pkg/media/sources/s3source"
	"github.com/vnykmshr/mediaflow/pkg/metrics"

	// Kinds that register themselves.
	_ "github.com/vnykmshr/mediaflow/pkg/media/sources/file"
	_ "github.com/vnykmshr/mediaflow/pkg/media/sources/memory"
	_ "github.com/vnykmshr/mediaflow/pkg/media/sources/wssource"
)

var (
	configFile  string
	envFiles    []string
	verbose     bool
	metricsAddr string
)

// app is the state shared by commands once flags and config are loaded.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	promReg *prometheus.Registry
	metrics *metrics.Registry
	redis   *redis.Client
	closers []func() error
}

var state *app

var rootCmd = &cobra.Command{
	Use:   "mediacat",
	Short: "Read media sources through mediaflow streams",
	Long: `mediacat reads bounded and live media sources.

Sources come from the config file or are given inline as kind:location.
Registered kinds are listed by 'mediacat kinds'.

Example config (mediacat.yaml):
  log_level: info
  metrics_addr: ${MEDIACAT_METRICS:-:9102}
  window_size: 65536
  sources:
    - name: intro
      kind: file
      location: /var/media/intro.ts`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		state, err = setup()
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return state.close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (.yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "env files loaded before the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(kindsCmd, catCmd, liveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func setup() (*app, error) {
	config.LoadEnvFiles(envFiles...)

	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(configFile); err != nil {
			return nil, err
		}
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}

	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, promReg: prometheus.NewRegistry()}
	a.metrics = metrics.NewRegistry(a.promReg)

	if cfg.S3.Enabled() {
		s3source.Register(newS3Client(cfg.S3))
		logger.Debug("s3 kind enabled", "region", cfg.S3.Region, "endpoint", cfg.S3.Endpoint)
	}
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, a.redis.Close)
		redissource.Register(a.redis)
		logger.Debug("redis kind enabled", "addr", cfg.Redis.Addr)
	}
	return a, nil
}

func newS3Client(c config.S3) *s3.Client {
	opts := s3.Options{
		Region:       c.Region,
		UsePathStyle: c.PathStyle,
		Credentials:  aws.AnonymousCredentials{},
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if c.Endpoint != "" {
		opts.BaseEndpoint = aws.String(c.Endpoint)
	}
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		creds := aws.Credentials{AccessKeyID: c.AccessKeyID, SecretAccessKey: c.SecretAccessKey}
		opts.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) { return creds, nil },
		))
	}
	return s3.New(opts)
}

func (a *app) close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// open resolves a source argument and creates its handle. Bounded streams
// complete through a serial dispatcher that is shut down by the returned
// cleanup.
func (a *app) open(ref string) (*media.Source, func(), error) {
	mc, err := a.resolve(ref)
	if err != nil {
		return nil, nil, err
	}

	serial := async.NewSerial(async.SerialConfig{
		Name:    mc.Kind,
		Metrics: a.metrics,
		Logger:  a.logger,
	})
	src, err := media.Create(mc,
		media.WithWindowSize(a.cfg.WindowSize),
		media.WithDispatcher(serial),
		media.WithMetrics(a.metrics),
		media.WithLogger(a.logger),
	)
	if err != nil {
		<-serial.Shutdown()
		return nil, nil, err
	}
	cleanup := func() {
		if err := src.Close(); err != nil {
			a.logger.Warn("close source", "source", ref, "error", err)
		}
		<-serial.Shutdown()
	}
	return src, cleanup, nil
}

// resolve maps a config source name or a kind:location pair to a
// media.Config.
func (a *app) resolve(ref string) (media.Config, error) {
	if s, ok := a.cfg.Lookup(ref); ok {
		return s.MediaConfig(), nil
	}
	if strings.HasPrefix(ref, "ws://") || strings.HasPrefix(ref, "wss://") {
		return media.Config{Kind: "ws", Location: ref}, nil
	}
	if kind, location, ok := strings.Cut(ref, ":"); ok {
		for _, k := range media.Kinds() {
			if k == kind {
				return media.Config{Kind: kind, Location: location}, nil
			}
		}
	}
	if _, err := os.Stat(ref); err == nil {
		return media.Config{Kind: "file", Location: ref}, nil
	}
	return media.Config{}, fmt.Errorf("unknown source %q: not a configured name, kind:location, or file", ref)
}

// metricsServer returns a server for the Prometheus registry, or nil when
// no address is configured.
func (a *app) metricsServer() *http.Server {
	if a.cfg.MetricsAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{Registry: a.promReg}))
	return &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
