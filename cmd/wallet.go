package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vp-trade/pkg/sdk"
)

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Show the configured wallet addresses",
	Long: `Show the EVM trading address and, when a Solana key is configured, the
Solana wallet. Nothing is sent to the network.`,
	Args: cobra.NoArgs,
	Run:  runAddress,
}

var signCmd = &cobra.Command{
	Use:   "sign-message <message>",
	Short: "Sign a message with the trading key",
	Long: `Produce a personal-sign (EIP-191) signature of the message.

Examples:
  vp-trade sign-message "hello virtuals"`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSignMessage,
}

func init() {
	rootCmd.AddCommand(addressCmd)
	rootCmd.AddCommand(signCmd)
}

// offlineClient wires the SDK without an RPC backend
func offlineClient(cmd *cobra.Command) *sdk.Client {
	cfg := loadConfig(cmd)
	c, err := sdk.New(cfg, nil)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return c
}

func runAddress(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	c := offlineClient(cmd)

	solAddress, _ := c.SolanaAddress()

	if jsonOutput {
		printJSON(map[string]string{
			"evm":    c.Address().Hex(),
			"solana": solAddress,
		})
		return
	}

	fmt.Printf("\n  EVM:     %s\n", color.CyanString(c.Address().Hex()))
	if solAddress != "" {
		fmt.Printf("  Solana:  %s\n", color.CyanString(solAddress))
	}
	fmt.Println()
}

func runSignMessage(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	c := offlineClient(cmd)

	message := strings.Join(args, " ")
	sig, err := c.SignMessage(message)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(map[string]string{
			"address":   c.Address().Hex(),
			"message":   message,
			"signature": sig,
		})
		return
	}
	printSuccess(sig)
}
