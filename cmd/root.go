package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vp-trade/config"
	"vp-trade/pkg/sdk"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "vp-trade",
	Short: "A CLI for trading Virtuals agent tokens",
	Long: `vp-trade buys and sells Virtuals agent tokens on Base. Prototype tokens
trade against the bonding curve, sentient tokens against the Uniswap V2 router.
It also browses the token listing and runs Jupiter swaps on Solana.

Examples:
  vp-trade buy 100 0x1234...abcd --venue sentient
  vp-trade sell 5000 0x1234...abcd --venue prototype --approve
  vp-trade list-tokens --type prototype
  vp-trade search luna
  vp-trade status <tx-hash>`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default $HOME/.vp-trade.yaml)")
}

// loadConfig reads the configuration and applies its log level. The
// verbose flag wins over the configured level.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg, err := config.Load(configFile)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	cfg.ApplyLogLevel()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		log.SetLevel(log.DebugLevel)
	}
	return cfg
}

// newClient dials the configured RPC endpoint
func newClient(ctx context.Context, cfg *config.Config) *sdk.Client {
	c, err := sdk.NewClient(ctx, cfg)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return c
}

// startSpinner shows a spinner unless the output is JSON. The returned
// func stops it.
func startSpinner(suffix string, jsonOutput bool) func() {
	if jsonOutput {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + suffix
	s.Start()
	return s.Stop
}

func confirm(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", prompt)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func printJSON(v interface{}) {
	jsonData, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(jsonData))
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}

func divider(width int) string {
	return strings.Repeat("=", width)
}
