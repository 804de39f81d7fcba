package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantbridge/tda/internal/tda"
	"github.com/quantbridge/tda/pkg/config"
	"github.com/quantbridge/tda/pkg/httputil"
	"github.com/quantbridge/tda/pkg/logger"
	"github.com/quantbridge/tda/pkg/ratelimit"
	"github.com/quantbridge/tda/pkg/redis"
)

var rootCmd = &cobra.Command{
	Use:   "tda",
	Short: "TD Ameritrade brokerage adapter",
	Long:  "Order routing, quote streaming and historical data download against the TD Ameritrade API.",
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(daemonCmd)
}

// app bundles the shared wiring every command needs.
type app struct {
	cfg    *config.Config
	logger *logger.Logger
	redis  *redis.Client
	client *tda.Client
}

// newApp loads config and builds the REST client stack. The market-data gate
// is Redis-backed when Redis is enabled so the per-account quota holds
// across processes; otherwise a local token bucket.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg)

	redisClient, err := redis.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	var gate ratelimit.Gate
	if redisClient.Enabled() {
		gate = ratelimit.NewRedisGate(redisClient, cfg.TDA.AccountID, 120, time.Minute)
	} else {
		gate = ratelimit.NewLocalGate(2, 2)
	}

	// The broker executor owns its own retry policy.
	httpClient := httputil.New(log).DisableRetry()
	client := tda.NewClient(cfg.TDA, httpClient, gate, log)

	return &app{
		cfg:    cfg,
		logger: log,
		redis:  redisClient,
		client: client,
	}, nil
}

func (a *app) close() {
	_ = a.redis.Close()
}
