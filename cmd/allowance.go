package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vp-trade/pkg/sdk"
	"vp-trade/pkg/types"
	"vp-trade/pkg/units"
)

var allowanceCmd = &cobra.Command{
	Use:   "allowance <amount> [token-address]",
	Short: "Check whether a venue may spend a token",
	Long: `Check whether the venue's router is allowed to spend <amount> of a token.
Without a token address the base asset is checked.

Examples:
  vp-trade allowance 100
  vp-trade allowance 5000 0x1234...abcd --venue prototype`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runAllowance,
}

var approveCmd = &cobra.Command{
	Use:   "approve <amount> [token-address]",
	Short: "Approve a venue to spend exactly an amount of a token",
	Long: `Approve the venue's router for exactly <amount> of a token. Nothing is sent
when the current allowance already covers it. Without a token address the
base asset is approved.

Examples:
  vp-trade approve 100
  vp-trade approve 5000 0x1234...abcd --venue prototype --yes`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runApprove,
}

func init() {
	rootCmd.AddCommand(allowanceCmd)
	rootCmd.AddCommand(approveCmd)

	for _, c := range []*cobra.Command{allowanceCmd, approveCmd} {
		c.Flags().StringVar(&venueName, "venue", "sentient", "Venue: prototype (bonding curve) or sentient (router)")
	}
	approveCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

// allowanceArgs validates the amount and optional token arguments
func allowanceArgs(args []string) (types.Venue, string, common.Address, error) {
	venue, err := types.ParseVenue(venueName)
	if err != nil {
		return "", "", common.Address{}, err
	}
	if _, err := units.ParseEther(args[0]); err != nil {
		return "", "", common.Address{}, err
	}
	var token common.Address
	if len(args) == 2 {
		if !common.IsHexAddress(args[1]) {
			return "", "", common.Address{}, fmt.Errorf("invalid token address: %s", args[1])
		}
		token = common.HexToAddress(args[1])
	}
	return venue, args[0], token, nil
}

func checkAllowance(ctx context.Context, c *sdk.Client, venue types.Venue, amount string, token common.Address) (bool, error) {
	if venue == types.Prototype {
		return c.CheckPrototypeAllowance(ctx, amount, token)
	}
	return c.CheckSentientAllowance(ctx, amount, token)
}

func tokenLabel(token common.Address) string {
	if token == (common.Address{}) {
		return "base asset"
	}
	return token.Hex()
}

func runAllowance(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	venue, amount, token, err := allowanceArgs(args)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	cfg := loadConfig(cmd)
	ctx := context.Background()
	c := newClient(ctx, cfg)

	stop := startSpinner("Checking allowance...", jsonOutput)
	ok, err := checkAllowance(ctx, c, venue, amount, token)
	stop()

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"venue":      venue,
			"token":      tokenLabel(token),
			"amount":     amount,
			"sufficient": ok,
		})
		return
	}

	if ok {
		color.Green("\n✓ Allowance covers %s of %s on %s\n", amount, tokenLabel(token), venue)
		return
	}
	color.Yellow("\nAllowance does not cover %s of %s on %s\n", amount, tokenLabel(token), venue)
	fmt.Println("\nApprove it with:")
	suggestion := "vp-trade approve " + amount
	if token != (common.Address{}) {
		suggestion += " " + token.Hex()
	}
	color.Cyan("  %s --venue %s\n", suggestion, venue)
}

func runApprove(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	venue, amount, token, err := allowanceArgs(args)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	cfg := loadConfig(cmd)
	ctx := context.Background()
	c := newClient(ctx, cfg)

	if !noConfirm && !jsonOutput {
		if !confirm(fmt.Sprintf("Approve %s of %s on %s?", amount, tokenLabel(token), venue)) {
			fmt.Println("\nApproval cancelled.")
			os.Exit(0)
		}
	}

	stop := startSpinner("Sending approval...", jsonOutput)
	var hash common.Hash
	if venue == types.Prototype {
		hash, err = c.ApprovePrototypeAllowance(ctx, amount, token)
	} else {
		hash, err = c.ApproveSentientAllowance(ctx, amount, token)
	}
	stop()

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"venue":   venue,
			"token":   tokenLabel(token),
			"amount":  amount,
			"tx_hash": hash.Hex(),
		})
		return
	}

	if hash == (common.Hash{}) {
		color.Green("\n✓ Allowance already covers %s of %s, nothing sent\n", amount, tokenLabel(token))
		return
	}
	color.Green("\n✓ Approval confirmed")
	fmt.Printf("  Transaction: %s\n\n", color.CyanString(hash.Hex()))
}
