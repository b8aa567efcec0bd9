package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vp-trade/pkg/evm"
	"vp-trade/pkg/parser"
	"vp-trade/pkg/types"
)

var (
	venueName   string
	builderID   int
	slippage    int
	autoApprove bool
	noConfirm   bool
)

var buyCmd = &cobra.Command{
	Use:   "buy <amount> <token-address>",
	Short: "Buy an agent token with the base asset",
	Long: `Spend <amount> of the base asset (VIRTUAL) on the given agent token.

Examples:
  vp-trade buy 100 0x1234...abcd
  vp-trade buy 100 of 0x1234...abcd --venue prototype --approve
  vp-trade buy 25 0x1234...abcd --slippage 2 --builder-id 7 --yes`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runTrade(cmd, types.Buy, args)
	},
}

var sellCmd = &cobra.Command{
	Use:   "sell <amount> <token-address>",
	Short: "Sell an agent token for the base asset",
	Long: `Sell <amount> of the given agent token for the base asset (VIRTUAL).

Examples:
  vp-trade sell 5000 0x1234...abcd
  vp-trade sell 5000 0x1234...abcd --venue prototype --approve --yes`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runTrade(cmd, types.Sell, args)
	},
}

func init() {
	for _, c := range []*cobra.Command{buyCmd, sellCmd} {
		rootCmd.AddCommand(c)
		addTradeFlags(c)
		c.Flags().BoolVar(&autoApprove, "approve", false, "Approve the spent token first when the allowance is too low")
		c.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	}
}

func addTradeFlags(c *cobra.Command) {
	c.Flags().StringVar(&venueName, "venue", "sentient", "Venue: prototype (bonding curve) or sentient (router)")
	c.Flags().IntVar(&builderID, "builder-id", 0, "Builder id appended to the call data (overrides config)")
	c.Flags().IntVar(&slippage, "slippage", 0, "Slippage percent for sentient trades (overrides config)")
}

func runTrade(cmd *cobra.Command, side types.Side, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	venue, err := types.ParseVenue(venueName)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	intent, err := parser.ParseTradeCommand(side, venue, strings.Join(args, " "))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	opt, err := parser.ParseOption(builderID, slippage, cmd.Flags().Changed("slippage"))
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	intent.Option = *opt

	cfg := loadConfig(cmd)
	ctx := context.Background()
	c := newClient(ctx, cfg)

	if !jsonOutput {
		displayTrade(intent, c.Address().Hex())
	}

	// Ask for confirmation
	if !noConfirm && !jsonOutput {
		if !confirm("Proceed with trade?") {
			fmt.Println("\nTrade cancelled.")
			os.Exit(0)
		}
	}

	stop := startSpinner("Submitting trade...", jsonOutput)
	receipt, err := c.Trade(ctx, intent, autoApprove)
	stop()

	if err != nil {
		if receipt != nil && errors.Is(err, types.ErrTransactionFailed) && !jsonOutput {
			color.Red("\nTransaction %s reverted", receipt.TxHash.Hex())
		}
		printError(err)
		var unavailable *types.ReceiptUnavailableError
		if errors.As(err, &unavailable) && !jsonOutput {
			fmt.Println("The transaction may still be mined. Follow it with:")
			color.Cyan("  vp-trade status %s --watch\n", unavailable.TxHash)
		}
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(receiptOutput(receipt))
		return
	}

	color.Green("\n✓ Trade confirmed")
	displayReceipt(receipt)
}

func displayTrade(intent *types.TradeIntent, account string) {
	fmt.Println("\n" + divider(60))
	color.Green("                      TRADE")
	fmt.Println(divider(60))

	fmt.Printf("\n  Side:      %s\n", color.YellowString(string(intent.Side)))
	fmt.Printf("  Venue:     %s\n", intent.Venue)
	fmt.Printf("  Token:     %s\n", color.CyanString(intent.CounterToken.Hex()))
	fmt.Printf("  Amount:    %s\n", intent.Amount)
	fmt.Printf("  Account:   %s\n", color.HiBlackString(account))
	if intent.Venue == types.Sentient && intent.Option.Slippage != nil {
		fmt.Printf("  Slippage:  %d%%\n", *intent.Option.Slippage)
	}
	if id, ok := intent.Option.BuilderTag(); ok {
		fmt.Printf("  Builder:   %d\n", id)
	}

	fmt.Println("\n" + divider(60))
}

func displayReceipt(receipt *evm.Receipt) {
	status := color.GreenString("SUCCESS")
	if !receipt.Success {
		status = color.RedString("REVERTED")
	}
	fmt.Printf("  Tx Hash:   %s\n", color.CyanString(receipt.TxHash.Hex()))
	fmt.Printf("  Status:    %s\n", status)
	if receipt.BlockNumber != nil {
		fmt.Printf("  Block:     %s\n", receipt.BlockNumber)
	}
	fmt.Printf("  Gas Used:  %d\n\n", receipt.GasUsed)
}

func receiptOutput(receipt *evm.Receipt) map[string]interface{} {
	out := map[string]interface{}{
		"tx_hash":  receipt.TxHash.Hex(),
		"success":  receipt.Success,
		"gas_used": receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		out["block_number"] = receipt.BlockNumber.String()
	}
	return out
}
