package commands

import (
	"fmt"
	"os"

	"github.com/dyluth/parley/internal/printer"
	"github.com/dyluth/parley/internal/scaffold"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a two-party demo project",
	Long: `Create a ready-to-run buyer and seller in dir (default: current directory).

Creates:
  • seller.yml          - Seller session configuration (YAML)
  • buyer.toml          - Buyer session configuration (TOML)
  • policies/           - Scripted decision agent policies for both parties
  • offer.json          - The buyer's opening offer, with a fresh offer ID

Use --force to reinitialize an existing project (WARNING: destroys existing configuration).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Force reinitialization (removes existing project files)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
		if err := os.MkdirAll(dir, 0755); err != nil {
			return printer.Error("initialization failed", fmt.Sprintf("Error: %v", err), nil)
		}
	}

	if !forceInit {
		if err := scaffold.CheckExisting(dir); err != nil {
			return printer.Error("project already initialized", err.Error(), nil)
		}
	}

	created, err := scaffold.Initialize(dir, forceInit)
	if err != nil {
		return printer.Error("initialization failed", fmt.Sprintf("Error: %v", err), nil)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\n✅ Successfully initialized parley project!")
	fmt.Fprintln(out, "\nCreated:")
	for _, path := range created {
		fmt.Fprintf(out, "  ✓ %s\n", path)
	}
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Start Redis on localhost:6379")
	fmt.Fprintln(out, "  2. In one terminal:  parley run --config seller.yml")
	fmt.Fprintln(out, "  3. In another:       parley run --config buyer.toml")
	fmt.Fprintln(out, "  4. Follow the trade: parley watch $(jq -r .offerId offer.json)")
	return nil
}
