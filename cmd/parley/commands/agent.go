package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/parley/internal/agent"
	"github.com/dyluth/parley/internal/logging"
	"github.com/dyluth/parley/internal/printer"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	agentPolicyPath string
	agentAddr       string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Decision agent utilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var agentServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a scripted decision agent over HTTP",
	Long: `Serve a scripted decision agent that 'parley run --agent' can call.

The agent answers POST / with the reply its policy prescribes, or "noop".

Examples:
  parley agent serve --policy seller.yml --addr :8090
  parley run --role seller --agent http://localhost:8090`,
	Args: cobra.NoArgs,
	RunE: runAgentServe,
}

func init() {
	agentServeCmd.Flags().StringVar(&agentPolicyPath, "policy", "", "Policy file (required)")
	agentServeCmd.Flags().StringVar(&agentAddr, "addr", ":8090", "Listen address")
	agentServeCmd.MarkFlagRequired("policy")
	agentCmd.AddCommand(agentServeCmd)
	rootCmd.AddCommand(agentCmd)
}

func runAgentServe(cmd *cobra.Command, args []string) error {
	logger := logging.ConfigureRuntime("", "")

	handler, err := newPolicyHandler(agentPolicyPath, logger)
	if err != nil {
		return printer.Error("invalid policy", fmt.Sprintf("Error: %v", err), nil)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:         agentAddr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", agentAddr).Str("policy", agentPolicyPath).Msg("Agent server starting")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return printer.Error("agent server failed", fmt.Sprintf("Error: %v", err), nil)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("agent server shutdown: %w", err)
	}
	return nil
}

func newPolicyHandler(path string, logger zerolog.Logger) (http.Handler, error) {
	policy, err := agent.LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	scripted, err := agent.NewScripted(*policy)
	if err != nil {
		return nil, err
	}
	return agent.NewHandler(scripted, logger), nil
}
