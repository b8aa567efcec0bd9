package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vp-trade/pkg/client"
)

var (
	granularity int64
	since       time.Duration
	limit       int
	onSolana    bool
	txSender    string
)

var klinesCmd = &cobra.Command{
	Use:   "klines <token-address>",
	Short: "Show price candles of a token",
	Long: `Show price candles of a token from the market data API.

Examples:
  vp-trade klines 0x1234...abcd
  vp-trade klines 0x1234...abcd --granularity 3600 --since 72h --limit 100`,
	Args: cobra.ExactArgs(1),
	Run:  runKlines,
}

var tradesCmd = &cobra.Command{
	Use:   "trades <token-address>",
	Short: "Show the latest trades of a token",
	Long: `Show the latest trades of a token, optionally only those sent by one wallet.

Examples:
  vp-trade trades 0x1234...abcd
  vp-trade trades 0x1234...abcd --sender 0xabcd...1234 --limit 50`,
	Args: cobra.ExactArgs(1),
	Run:  runTrades,
}

func init() {
	rootCmd.AddCommand(klinesCmd)
	rootCmd.AddCommand(tradesCmd)

	klinesCmd.Flags().Int64Var(&granularity, "granularity", 3600, "Candle width in seconds")
	klinesCmd.Flags().DurationVar(&since, "since", 24*time.Hour, "How far back to fetch candles")
	for _, c := range []*cobra.Command{klinesCmd, tradesCmd} {
		c.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries")
		c.Flags().BoolVar(&onSolana, "solana", false, "Query Solana instead of Base")
	}
	tradesCmd.Flags().StringVar(&txSender, "sender", "", "Only trades sent by this wallet")
}

func chainID() client.KlineChainID {
	if onSolana {
		return client.KlineChainSolana
	}
	return client.KlineChainBase
}

func runKlines(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	apiClient := newAPIClient(cmd)

	end := time.Now()
	params := client.KlinesParams{
		TokenAddress: args[0],
		Granularity:  granularity,
		Start:        end.Add(-since).UnixMilli(),
		End:          end.UnixMilli(),
		Limit:        limit,
		ChainID:      chainID(),
	}

	stop := startSpinner("Fetching candles...", jsonOutput)
	klines, err := apiClient.FetchKlines(context.Background(), params)
	stop()

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(klines)
		return
	}
	if len(klines) == 0 {
		fmt.Println("\nNo candles in the requested range.")
		return
	}

	fmt.Println("\n" + divider(90))
	color.Green("                               CANDLES")
	fmt.Println(divider(90))
	fmt.Printf("\n  %-19s  %14s  %14s  %14s  %14s  %s\n", "START (UTC)", "OPEN", "HIGH", "LOW", "CLOSE", "VOLUME")
	for _, k := range klines {
		fmt.Printf("  %-19s  %14s  %14s  %14s  %14s  %s\n",
			formatMillis(k.StartInMilli), k.Open, k.High, k.Low, k.Close, color.HiBlackString(k.Volume))
	}
	fmt.Println("\n" + divider(90) + "\n")
}

func runTrades(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	apiClient := newAPIClient(cmd)

	params := client.TradesParams{
		TokenAddress: args[0],
		Limit:        limit,
		ChainID:      chainID(),
		TxSender:     txSender,
	}

	stop := startSpinner("Fetching trades...", jsonOutput)
	trades, err := apiClient.FetchLatestTrades(context.Background(), params)
	stop()

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(trades)
		return
	}
	if len(trades) == 0 {
		fmt.Println("\nNo trades found.")
		return
	}

	fmt.Println("\n" + divider(100))
	color.Green("                                  LATEST TRADES")
	fmt.Println(divider(100))
	for _, tr := range trades {
		side := color.GreenString("BUY ")
		if !tr.IsBuy {
			side = color.RedString("SELL")
		}
		fmt.Printf("  %s  %s  %16s agent  %14s VIRTUAL  @ %s  %s\n",
			formatMillis(tr.Timestamp*1000),
			side,
			tr.AgentTokenAmt,
			tr.VirtualTokenAmt,
			tr.Price,
			color.HiBlackString(shorten(tr.TxHash)))
	}
	fmt.Println("\n" + divider(100) + "\n")
}

func shorten(s string) string {
	if len(s) > 20 {
		return s[:10] + "..." + s[len(s)-6:]
	}
	return strings.TrimSpace(s)
}
