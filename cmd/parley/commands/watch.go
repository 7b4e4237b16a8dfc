package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/parley/internal/filter"
	"github.com/dyluth/parley/internal/printer"
	"github.com/dyluth/parley/internal/redisbus"
	"github.com/dyluth/parley/internal/watch"
	"github.com/dyluth/parley/pkg/negotiation"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	watchRedisURL       string
	watchDefaultChannel string
	watchOutputFormat   string
	watchTagGlob        string
	watchPubKey         string
	watchInitialOnly    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [offerId...]",
	Short: "Monitor negotiation traffic",
	Long: `Monitor messages on the default channel and, optionally, on the channels
of specific negotiations.

Output Formats:
  default - Human-readable output with timestamps and emojis
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Watch new offers
  parley watch

  # Follow one negotiation as well
  parley watch 5b1d7c9e-1f0a-4a35-9d0e-3f3f2f0d5a11

  # Only attestations from one party
  parley watch 5b1d7c9e-1f0a-4a35-9d0e-3f3f2f0d5a11 --tag '*Attest' --from 0xb0b

  # Export as JSON
  parley watch --output=json > traffic.jsonl`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchRedisURL, "redis", "redis://localhost:6379", "Redis URL")
	watchCmd.Flags().StringVar(&watchDefaultChannel, "default-channel", negotiation.DefaultChannel, "Channel for initial broadcasts")
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().StringVar(&watchTagGlob, "tag", "", "Only show payload tags matching this glob")
	watchCmd.Flags().StringVar(&watchPubKey, "from", "", "Only show messages from this public key")
	watchCmd.Flags().BoolVar(&watchInitialOnly, "initial", false, "Only show opening broadcasts")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	format, err := watch.ParseOutputFormat(watchOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	criteria := &filter.Criteria{TagGlob: watchTagGlob, PubKey: watchPubKey, InitialOnly: watchInitialOnly}
	if err := criteria.Validate(); err != nil {
		return printer.Error("invalid --tag pattern", fmt.Sprintf("Error: %v", err), nil)
	}

	bus, err := redisbus.Open(watchRedisURL, zerolog.Nop())
	if err != nil {
		return printer.Error("invalid Redis URL", fmt.Sprintf("Error: %v", err), nil)
	}
	defer bus.Close()

	pingCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	if err := bus.Connect(pingCtx); err != nil {
		return printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", watchRedisURL),
			nil,
			[]string{"Check Redis is running and reachable, or pass --redis"},
		)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	channels := append([]string{watchDefaultChannel}, args...)
	return watch.Stream(ctx, bus, channels, criteria, format, cmd.OutOrStdout())
}
