package commands

import (
	"encoding/json"
	"fmt"

	"github.com/dyluth/parley/internal/marketplace"
	"github.com/dyluth/parley/internal/printer"
	"github.com/spf13/cobra"
)

var (
	offerPubKey string
	offerQuery  string
	offerTokens []string
	offerPretty bool
)

var offerCmd = &cobra.Command{
	Use:   "offer",
	Short: "Print an initial marketplace offer",
	Long: `Build the opening envelope a buyer broadcasts on the default channel.

A fresh offer ID is generated for every invocation. The output is ready to
pass to 'parley run --init'.

Token format:
  erc20:<address>:<amount>
  erc721:<address>:<token id>

Examples:
  # Offer 100 units of an ERC20 token for a query
  parley offer --pubkey 0xb0b --query "train a model" --token erc20:0xa0b8:100

  # Start a buyer session with a generated offer
  parley run --role buyer --init "$(parley offer --pubkey 0xb0b --query q)"`,
	Args: cobra.NoArgs,
	RunE: runOffer,
}

func init() {
	offerCmd.Flags().StringVar(&offerPubKey, "pubkey", "", "Buyer public key (required)")
	offerCmd.Flags().StringVarP(&offerQuery, "query", "q", "", "Description of the requested compute")
	offerCmd.Flags().StringArrayVarP(&offerTokens, "token", "t", nil, "Token offered in exchange (repeatable)")
	offerCmd.Flags().BoolVar(&offerPretty, "pretty", false, "Indent the output")
	offerCmd.MarkFlagRequired("pubkey")
	rootCmd.AddCommand(offerCmd)
}

func runOffer(cmd *cobra.Command, args []string) error {
	tokens := make([]marketplace.Token, 0, len(offerTokens))
	for _, raw := range offerTokens {
		tok, err := marketplace.ParseToken(raw)
		if err != nil {
			return printer.Error(
				"invalid token",
				fmt.Sprintf("Error: %v", err),
				[]string{"Use erc20:<address>:<amount> or erc721:<address>:<token id>"},
			)
		}
		tokens = append(tokens, tok)
	}

	env, err := marketplace.NewOffer(offerPubKey, offerQuery, tokens...)
	if err != nil {
		return printer.Error("invalid offer", fmt.Sprintf("Error: %v", err), nil)
	}

	var out []byte
	if offerPretty {
		out, err = json.MarshalIndent(env, "", "  ")
	} else {
		out, err = json.Marshal(env)
	}
	if err != nil {
		return fmt.Errorf("failed to encode offer: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
