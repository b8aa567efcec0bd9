package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vp-trade/pkg/evm"
	"vp-trade/pkg/sdk"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <tx-hash>",
	Short: "Check the status of a transaction",
	Long: `Check whether a trade or approval transaction was mined and succeeded.

Examples:
  vp-trade status 0x1234...abcd
  vp-trade status 0x1234...abcd --watch
  vp-trade status 0x1234...abcd --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch until the transaction is mined")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	raw, err := hexutil.Decode(args[0])
	if err != nil || len(raw) != common.HashLength {
		printError(fmt.Errorf("invalid transaction hash: %s", args[0]))
		os.Exit(1)
	}
	txHash := common.BytesToHash(raw)

	cfg := loadConfig(cmd)
	ctx := context.Background()
	c := newClient(ctx, cfg)

	if watchStatus {
		watchTxStatus(ctx, c, txHash, jsonOutput)
	} else {
		checkTxStatus(ctx, c, txHash, jsonOutput)
	}
}

func checkTxStatus(ctx context.Context, c *sdk.Client, txHash common.Hash, jsonOutput bool) {
	stop := startSpinner("Checking transaction status...", jsonOutput)
	receipt, err := c.TransactionStatus(ctx, txHash)
	stop()

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		if receipt == nil {
			printJSON(map[string]interface{}{"tx_hash": txHash.Hex(), "status": "PENDING"})
			return
		}
		printJSON(receiptOutput(receipt))
		return
	}
	displayStatus(txHash, receipt)
}

func watchTxStatus(ctx context.Context, c *sdk.Client, txHash common.Hash, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	fmt.Printf("\nWatching transaction %s\n", color.CyanString(txHash.Hex()))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	// Check immediately first
	if checkAndDisplayStatus(ctx, c, txHash) {
		return
	}

	// Then check periodically until it is mined
	for range ticker.C {
		if checkAndDisplayStatus(ctx, c, txHash) {
			return
		}
	}
}

// checkAndDisplayStatus reports whether the transaction has been mined
func checkAndDisplayStatus(ctx context.Context, c *sdk.Client, txHash common.Hash) bool {
	receipt, err := c.TransactionStatus(ctx, txHash)
	if err != nil {
		color.Red("Error: %v", err)
		return false
	}
	if receipt == nil {
		fmt.Printf("  %s  %s\n", time.Now().Format("15:04:05"), color.YellowString("PENDING"))
		return false
	}
	displayStatus(txHash, receipt)
	return true
}

func displayStatus(txHash common.Hash, receipt *evm.Receipt) {
	fmt.Println("\n" + divider(70))
	color.Green("                     TRANSACTION STATUS")
	fmt.Println(divider(70))

	if receipt == nil {
		fmt.Printf("\n  Tx Hash:   %s\n", color.CyanString(txHash.Hex()))
		fmt.Printf("  Status:    %s\n", color.YellowString("PENDING"))
	} else {
		fmt.Println()
		displayReceipt(receipt)
	}

	fmt.Println(divider(70) + "\n")
}
