package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vp-trade/pkg/client"
	"vp-trade/pkg/types"
)

var (
	listType     string
	filterChain  string
	filterSymbol string
	page         int
	pageSize     int
)

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List prototype or sentient agent tokens",
	Long: `List agent tokens from the Virtuals listing API. Sentient tokens are ranked
by total value locked, prototype tokens by virtual token value.

Examples:
  vp-trade list-tokens
  vp-trade list-tokens --type prototype --chain base
  vp-trade list-tokens --page 2 --page-size 50 --symbol AI`,
	Run: runListTokens,
}

var searchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "Find a token by name, symbol or address",
	Long: `Search the listing for the best match on name, symbol or token address.

Examples:
  vp-trade search luna
  vp-trade search 0x1234...abcd`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSearch,
}

func init() {
	rootCmd.AddCommand(tokensCmd)
	rootCmd.AddCommand(searchCmd)

	tokensCmd.Flags().StringVar(&listType, "type", "sentient", "Listing: prototype or sentient")
	tokensCmd.Flags().StringVar(&filterChain, "chain", "all", "Chain: all, base or solana")
	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter the page by token symbol")
	tokensCmd.Flags().IntVar(&page, "page", client.DefaultPage, "Page number")
	tokensCmd.Flags().IntVar(&pageSize, "page-size", client.DefaultPageSize, "Tokens per page")
}

// newAPIClient builds a listing client, no wallet needed
func newAPIClient(cmd *cobra.Command) *client.VirtualsClient {
	cfg := loadConfig(cmd)
	if err := cfg.ValidateAPI(); err != nil {
		printError(err)
		os.Exit(1)
	}
	return client.NewVirtualsClient(cfg.APIURL, cfg.APIURLV2)
}

func runListTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	venue, err := types.ParseVenue(listType)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	chain, err := client.ParseAgentChain(filterChain)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	apiClient := newAPIClient(cmd)

	stop := startSpinner(fmt.Sprintf("Fetching %s tokens...", strings.ToLower(string(venue))), jsonOutput)
	list, err := apiClient.FetchTokenList(context.Background(), venue, chain, page, pageSize)
	stop()

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	// Apply filters
	filtered := list.Tokens
	if filterSymbol != "" {
		var temp []client.Token
		for _, token := range filtered {
			if strings.Contains(strings.ToUpper(token.Symbol), strings.ToUpper(filterSymbol)) {
				temp = append(temp, token)
			}
		}
		filtered = temp
	}

	// Output
	if jsonOutput {
		printJSON(filtered)
	} else {
		displayTokens(filtered, venue)
	}
}

func runSearch(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	keyword := strings.Join(args, " ")

	apiClient := newAPIClient(cmd)

	stop := startSpinner("Searching tokens...", jsonOutput)
	token, err := apiClient.SearchToken(context.Background(), keyword)
	stop()

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(token)
		return
	}

	fmt.Println("\n" + divider(70))
	color.Green("                         TOKEN")
	fmt.Println(divider(70))

	fmt.Printf("\n  Name:         %s (%s)\n", token.Name, color.YellowString(token.Symbol))
	fmt.Printf("  Status:       %s\n", token.Status)
	fmt.Printf("  Chain:        %s\n", token.Chain)
	fmt.Printf("  Token:        %s\n", color.CyanString(token.TokenAddress))
	fmt.Printf("  Pair:         %s\n", color.HiBlackString(token.LPAddress))
	fmt.Printf("  Holders:      %d\n", token.HolderCount)
	fmt.Printf("  Market Cap:   %.2f VIRTUAL\n", token.MCapInVirtual)
	if token.Socials.Twitter != "" {
		fmt.Printf("  Twitter:      %s\n", token.Socials.Twitter)
	}
	if token.Socials.Telegram != "" {
		fmt.Printf("  Telegram:     %s\n", token.Socials.Telegram)
	}

	fmt.Println("\n" + divider(70) + "\n")
}

func displayTokens(tokens []client.Token, venue types.Venue) {
	if len(tokens) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + divider(90))
	color.Green("                            %s TOKENS", venue)
	fmt.Println(divider(90))

	// Group tokens by chain
	tokensByChain := make(map[string][]client.Token)
	for _, token := range tokens {
		chain := token.Chain
		if chain == "" {
			chain = "unknown"
		}
		tokensByChain[chain] = append(tokensByChain[chain], token)
	}

	// Sort chains alphabetically
	chains := make([]string, 0, len(tokensByChain))
	for chain := range tokensByChain {
		chains = append(chains, chain)
	}
	sort.Strings(chains)

	// Display tokens grouped by chain, in listing order
	for _, chain := range chains {
		color.Cyan("\n%s", strings.ToUpper(chain))
		fmt.Println(strings.Repeat("-", 90))

		for _, token := range tokensByChain[chain] {
			fmt.Printf("  %-10s  %12.2f mcap  %6d holders  %s\n",
				color.YellowString(token.Symbol),
				token.MCapInVirtual,
				token.HolderCount,
				color.HiBlackString(token.TokenAddress))
		}
	}

	fmt.Println("\n" + divider(90))
	fmt.Printf("\nTotal: %d tokens across %d chains (page %d)\n\n", len(tokens), len(chains), page)
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05")
}
