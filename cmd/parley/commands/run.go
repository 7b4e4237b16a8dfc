package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/parley/internal/agent"
	"github.com/dyluth/parley/internal/config"
	"github.com/dyluth/parley/internal/health"
	"github.com/dyluth/parley/internal/logging"
	"github.com/dyluth/parley/internal/marketplace"
	"github.com/dyluth/parley/internal/printer"
	"github.com/dyluth/parley/internal/redisbus"
	"github.com/dyluth/parley/pkg/negotiation"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	runConfigPath     string
	runRole           string
	runAgentURL       string
	runAgentKind      string
	runAgentPolicy    string
	runInitEnvelope   string
	runRedisURL       string
	runDefaultChannel string
	runHealthPort     int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one party of a negotiation",
	Long: `Run one party of a compute-marketplace negotiation until interrupted.

The session subscribes according to its role, hands every accepted message
to the decision agent and publishes the agent's answer when the protocol
allows it. A role that is not allowed to start (for example a seller given
an initial offer) exits with status 1.

Settings come from the config file, then PARLEY_* environment variables,
then flags.

Examples:
  # Seller backed by an HTTP decision agent
  parley run --role seller --agent http://localhost:8090

  # Buyer opening a negotiation with a scripted agent
  parley run --role buyer --agent-kind scripted --policy buyer.yml \
    --init "$(parley offer --pubkey 0xb0b --query q)"

  # Everything from a config file
  parley run --config parley.yml`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "Config file (.yml, .yaml or .toml)")
	runCmd.Flags().StringVarP(&runRole, "role", "r", "", "Negotiation role (buyer or seller)")
	runCmd.Flags().StringVar(&runAgentURL, "agent", "", "HTTP decision agent URL")
	runCmd.Flags().StringVar(&runAgentKind, "agent-kind", "", "Decision agent kind (http, claude, openai, scripted)")
	runCmd.Flags().StringVar(&runAgentPolicy, "policy", "", "Policy file for the scripted agent")
	runCmd.Flags().StringVar(&runInitEnvelope, "init", "", "Initial envelope JSON, or @file")
	runCmd.Flags().StringVar(&runRedisURL, "redis", "", "Redis URL")
	runCmd.Flags().StringVar(&runDefaultChannel, "default-channel", "", "Channel for initial broadcasts")
	runCmd.Flags().IntVar(&runHealthPort, "health-port", 0, "Serve /healthz and /stats on this port (0 disables)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return printer.Error("invalid configuration", fmt.Sprintf("Error: %v", err), []string{
			"Check the config file and flags:\n  parley run --help",
		})
	}

	logger := logging.ConfigureRuntime(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = runSession(ctx, cfg, logger)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, negotiation.ErrStartupRejected):
		return printer.ErrorWithContext(
			"startup rejected",
			fmt.Sprintf("Error: %v", err),
			map[string]string{"Role": cfg.Role, "Init": initSummary(cfg.Init)},
			[]string{
				"Buyers open negotiations and need --init",
				"Sellers wait for offers and must not be given --init",
			},
		)
	default:
		return printer.ErrorWithContext("session failed", fmt.Sprintf("Error: %v", err),
			map[string]string{"Role": cfg.Role, "Redis": cfg.Redis.URL}, nil)
	}
}

// loadRunConfig layers flags that were set explicitly over the file and environment.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Read(runConfigPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	overrides := []struct {
		flag string
		dst  *string
		val  string
	}{
		{"role", &cfg.Role, runRole},
		{"agent", &cfg.Agent.URL, runAgentURL},
		{"agent-kind", &cfg.Agent.Kind, runAgentKind},
		{"policy", &cfg.Agent.Policy, runAgentPolicy},
		{"init", &cfg.Init, runInitEnvelope},
		{"redis", &cfg.Redis.URL, runRedisURL},
		{"default-channel", &cfg.DefaultChannel, runDefaultChannel},
	}
	for _, o := range overrides {
		if flags.Changed(o.flag) {
			*o.dst = o.val
		}
	}
	if flags.Changed("health-port") {
		cfg.Health.Port = runHealthPort
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runSession runs one negotiation party until ctx is cancelled.
func runSession(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	opts, err := cfg.AgentOptions()
	if err != nil {
		return err
	}
	decider, err := agent.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	var opening *marketplace.Envelope
	raw, err := cfg.InitEnvelope()
	if err != nil {
		return err
	}
	if raw != nil {
		env, err := negotiation.Decode[marketplace.Message](raw)
		if err != nil {
			return fmt.Errorf("invalid init envelope: %w", err)
		}
		opening = &env
	}

	bus, err := redisbus.Open(cfg.Redis.URL, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing Redis bus")
		}
	}()

	driver := negotiation.NewDriver(marketplace.Protocol(), bus, decider,
		negotiation.WithDefaultChannel(cfg.DefaultChannel),
		negotiation.WithLogger(logger),
	)

	if cfg.Health.Port > 0 {
		hs := health.NewServer(bus, driver.Stats, cfg.Role, cfg.Health.Port, logger)
		if err := hs.Start(); err != nil {
			return err
		}
		logger.Info().Str("addr", hs.Addr()).Msg("Health server started")
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := hs.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("Health server shutdown error")
			}
		}()
	}

	if err := driver.Start(ctx, cfg.Role, opening); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info().Interface("stats", driver.Stats()).Msg("Session shutting down")
	return nil
}

func initSummary(raw string) string {
	if raw == "" {
		return "(none)"
	}
	return "provided"
}
