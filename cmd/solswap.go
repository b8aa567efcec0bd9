package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vp-trade/pkg/parser"
	"vp-trade/pkg/sdk"
	"vp-trade/pkg/solswap"
)

var (
	slippageBps    uint16
	noRestrict     bool
	skipPreflight  bool
	maxRetries     uint
	priorityLevel  string
	maxPriorityFee uint64
)

var solSwapCmd = &cobra.Command{
	Use:   "sol-swap <amount> <input-mint> to <output-mint>",
	Short: "Swap tokens on Solana through Jupiter",
	Long: `Swap tokens on Solana through the Jupiter aggregator. The amount is in whole
tokens and is scaled by 1e9 lamports. The output token account is created
first when it does not exist.

Examples:
  vp-trade sol-swap 0.1 So11111111111111111111111111111111111111112 to EPjFWdd5AufqSSqeM2qGd8w9Rt2X9WGxBaWY4WsJ6ENb
  vp-trade sol-swap 0.1 <input-mint> to <output-mint> --slippage-bps 100 --yes`,
	Args: cobra.MinimumNArgs(4),
	Run:  runSolSwap,
}

func init() {
	rootCmd.AddCommand(solSwapCmd)

	solSwapCmd.Flags().Uint16Var(&slippageBps, "slippage-bps", 50, "Slippage in basis points")
	solSwapCmd.Flags().BoolVar(&noRestrict, "no-restrict", false, "Allow routes through any intermediate token")
	solSwapCmd.Flags().BoolVar(&skipPreflight, "skip-preflight", true, "Skip preflight simulation when submitting")
	solSwapCmd.Flags().UintVar(&maxRetries, "max-retries", solswap.DefaultMaxRetries, "RPC send retries")
	solSwapCmd.Flags().StringVar(&priorityLevel, "priority", "veryHigh", "Priority fee level: medium, high or veryHigh")
	solSwapCmd.Flags().Uint64Var(&maxPriorityFee, "max-priority-lamports", 1_000_000, "Priority fee cap in lamports")
	solSwapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runSolSwap(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	req, err := parser.ParseSolSwapCommand(strings.Join(args, " "))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	cfg := loadConfig(cmd)
	if err := cfg.ValidateSolana(); err != nil {
		printError(err)
		os.Exit(1)
	}
	executor, err := sdk.NewSolanaExecutor(cfg)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	restrict := !noRestrict
	swapCfg := solswap.SwapConfig{
		InputMint:                  req.InputMint,
		OutputMint:                 req.OutputMint,
		Amount:                     req.Amount,
		SlippageBps:                slippageBps,
		RestrictIntermediateTokens: &restrict,
		MaxRetries:                 &maxRetries,
		SkipPreflight:              &skipPreflight,
		Jupiter: &solswap.SwapOptions{
			PrioritizationFeeLamports: &solswap.PrioritizationFee{
				PriorityLevelWithMaxLamports: &solswap.PriorityLevelWithMaxLamports{
					MaxLamports:   maxPriorityFee,
					PriorityLevel: priorityLevel,
				},
			},
		},
	}

	ctx := context.Background()

	// Show the route before anything is signed
	stop := startSpinner("Fetching quote...", jsonOutput)
	quote, err := executor.GetQuote(ctx, swapCfg)
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if !jsonOutput {
		fmt.Println("\n" + divider(60))
		color.Green("                   SOLANA SWAP QUOTE")
		fmt.Println(divider(60))
		fmt.Printf("\n  Wallet:      %s\n", color.HiBlackString(executor.PublicKey().String()))
		fmt.Printf("  From:        %s %s\n", req.Amount, color.YellowString(req.InputMint))
		fmt.Printf("  To:          ~%s (raw) %s\n", quote.OutAmount, color.YellowString(req.OutputMint))
		fmt.Printf("  Slippage:    %d bps\n", slippageBps)
		if quote.PriceImpactPct != "" {
			fmt.Printf("  Price Impact: %s%%\n", quote.PriceImpactPct)
		}
		fmt.Println("\n" + divider(60))
	}

	if !noConfirm && !jsonOutput {
		if !confirm("Proceed with swap?") {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
	}

	stop = startSpinner("Swapping...", jsonOutput)
	sig, err := executor.Swap(ctx, swapCfg)
	stop()

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"signature": sig.String(),
			"explorer":  fmt.Sprintf(solswap.ExplorerTxURL, sig),
		})
		return
	}

	color.Green("\n✓ Swap finalized")
	fmt.Printf("  Signature: %s\n", color.CyanString(sig.String()))
	fmt.Printf("  Explorer:  %s\n\n", fmt.Sprintf(solswap.ExplorerTxURL, sig))
}
