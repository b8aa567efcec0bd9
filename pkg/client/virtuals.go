// Package client is a read-only client for the Virtuals token listing,
// kline and trade history REST API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"

	"vp-trade/pkg/types"
)

const (
	DefaultAPIURL   = "https://api.virtuals.io"
	DefaultAPIURLV2 = "https://vp-api.virtuals.io"

	DefaultPage     = 1
	DefaultPageSize = 30
	searchPageSize  = 10

	// requests per second allowed against the listing API
	defaultRate = 5
)

// listing status filter values
const (
	statusPrototype = 1
	statusSentient  = 2
	statusSearch    = 3
)

// AgentChain restricts a listing to one chain
type AgentChain string

const (
	ChainAll    AgentChain = "ALL"
	ChainBase   AgentChain = "BASE"
	ChainSolana AgentChain = "SOLANA"
)

// KlineChainID selects the chain for kline and trade queries
type KlineChainID int

const (
	KlineChainBase   KlineChainID = 8453
	KlineChainSolana KlineChainID = 900
)

// ParseAgentChain converts user input into an AgentChain
func ParseAgentChain(s string) (AgentChain, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ALL":
		return ChainAll, nil
	case "BASE":
		return ChainBase, nil
	case "SOLANA", "SOL":
		return ChainSolana, nil
	default:
		return "", fmt.Errorf("unknown chain %q, expected ALL, BASE or SOLANA", s)
	}
}

// Socials holds the verified social links of a token
type Socials struct {
	Twitter  string `json:"twitter"`
	Telegram string `json:"telegram"`
}

// Image is a token logo
type Image struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// Token is a listed agent token with every field defaulted
type Token struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	TokenAddress  string  `json:"tokenAddress"`
	Description   string  `json:"description"`
	LPAddress     string  `json:"lpAddress"`
	Symbol        string  `json:"symbol"`
	HolderCount   int64   `json:"holderCount"`
	MCapInVirtual float64 `json:"mcapInVirtual"`
	Socials       Socials `json:"socials"`
	Image         Image   `json:"image"`
	Chain         string  `json:"chain"`
}

// TokenList is one page of a listing
type TokenList struct {
	Tokens []Token `json:"tokens"`
}

// Kline is one price candle
type Kline struct {
	Granularity  int64  `json:"granularity"`
	TokenAddress string `json:"tokenAddress"`
	Open         string `json:"open"`
	High         string `json:"high"`
	Low          string `json:"low"`
	Close        string `json:"close"`
	Volume       string `json:"volume"`
	StartInMilli int64  `json:"startInMilli"`
	EndInMilli   int64  `json:"endInMilli"`
}

// Trade is one executed trade
type Trade struct {
	TxSender        string `json:"txSender"`
	TxHash          string `json:"txHash"`
	TokenAddress    string `json:"tokenAddress"`
	IsBuy           bool   `json:"isBuy"`
	AgentTokenAmt   string `json:"agentTokenAmt"`
	VirtualTokenAmt string `json:"virtualTokenAmt"`
	Price           string `json:"price"`
	Timestamp       int64  `json:"timestamp"`
}

// KlinesParams selects candles of one token. Start and End are unix millis.
type KlinesParams struct {
	TokenAddress string
	Granularity  int64
	Start        int64
	End          int64
	Limit        int
	ChainID      KlineChainID
}

// TradesParams selects the latest trades of one token
type TradesParams struct {
	TokenAddress string
	Limit        int
	ChainID      KlineChainID
	TxSender     string
}

// VirtualsClient queries the listing API
type VirtualsClient struct {
	apiURL     string
	apiURLV2   string
	httpClient *http.Client
	limiter    ratelimit.Limiter
}

// NewVirtualsClient creates a client. Empty URLs fall back to the public API.
func NewVirtualsClient(apiURL, apiURLV2 string) *VirtualsClient {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if apiURLV2 == "" {
		apiURLV2 = DefaultAPIURLV2
	}
	return &VirtualsClient{
		apiURL:     strings.TrimRight(apiURL, "/"),
		apiURLV2:   strings.TrimRight(apiURLV2, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    ratelimit.New(defaultRate),
	}
}

// FetchTokenList returns one page of prototype or sentient tokens ranked by
// value, newest first among ties.
func (c *VirtualsClient) FetchTokenList(ctx context.Context, venue types.Venue, chain AgentChain, page, pageSize int) (*TokenList, error) {
	if page <= 0 {
		page = DefaultPage
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	params := url.Values{}
	switch venue {
	case types.Sentient:
		params.Set("filters[status]", strconv.Itoa(statusSentient))
		params.Set("sort[0]", "totalValueLocked:desc")
	case types.Prototype:
		params.Set("filters[status]", strconv.Itoa(statusPrototype))
		params.Set("sort[0]", "virtualTokenValue:desc")
	default:
		return nil, fmt.Errorf("unsupported listing type %q", venue)
	}
	params.Set("sort[1]", "createdAt:desc")
	params.Set("populate[0]", "image")
	params.Set("pagination[page]", strconv.Itoa(page))
	params.Set("pagination[pageSize]", strconv.Itoa(pageSize))
	if chain != "" && chain != ChainAll {
		params.Set("filters[chain]", string(chain))
	}

	var resp struct {
		Data []rawToken `json:"data"`
	}
	if err := c.get(ctx, c.apiURL+"/api/virtuals", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch token list: %w", err)
	}

	list := &TokenList{Tokens: make([]Token, 0, len(resp.Data))}
	for _, item := range resp.Data {
		list.Tokens = append(list.Tokens, item.toToken())
	}
	return list, nil
}

// SearchToken returns the best match for keyword among names, symbols and
// addresses. No match fails with ErrTokenNotFound.
func (c *VirtualsClient) SearchToken(ctx context.Context, keyword string) (*Token, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("search keyword is required")
	}

	params := url.Values{}
	params.Set("filters[status]", strconv.Itoa(statusSearch))
	for i, field := range []string{"name", "symbol", "tokenAddress", "preToken"} {
		params.Set(fmt.Sprintf("filters[$or][%d][%s][$contains]", i, field), keyword)
	}
	params.Set("sort[0]", "totalValueLocked:desc")
	params.Set("sort[1]", "createdAt:desc")
	params.Set("populate[0]", "image")
	params.Set("pagination[page]", "1")
	params.Set("pagination[pageSize]", strconv.Itoa(searchPageSize))

	var resp struct {
		Data []rawToken `json:"data"`
	}
	if err := c.get(ctx, c.apiURL+"/api/virtuals", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to search tokens: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: %q", types.ErrTokenNotFound, keyword)
	}
	token := resp.Data[0].toToken()
	return &token, nil
}

// FetchKlines returns price candles. ChainID defaults to Base.
func (c *VirtualsClient) FetchKlines(ctx context.Context, p KlinesParams) ([]Kline, error) {
	if p.ChainID == 0 {
		p.ChainID = KlineChainBase
	}
	params := url.Values{}
	params.Set("tokenAddress", p.TokenAddress)
	params.Set("granularity", strconv.FormatInt(p.Granularity, 10))
	params.Set("start", strconv.FormatInt(p.Start, 10))
	params.Set("end", strconv.FormatInt(p.End, 10))
	params.Set("limit", strconv.Itoa(p.Limit))
	params.Set("chainID", strconv.Itoa(int(p.ChainID)))

	var resp struct {
		Data struct {
			Klines []Kline `json:"Klines"`
		} `json:"data"`
	}
	if err := c.get(ctx, c.apiURLV2+"/vp-api/klines", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch klines: %w", err)
	}
	if resp.Data.Klines == nil {
		return []Kline{}, nil
	}
	return resp.Data.Klines, nil
}

// FetchLatestTrades returns the most recent trades. ChainID defaults to Base.
func (c *VirtualsClient) FetchLatestTrades(ctx context.Context, p TradesParams) ([]Trade, error) {
	if p.ChainID == 0 {
		p.ChainID = KlineChainBase
	}
	params := url.Values{}
	params.Set("tokenAddress", p.TokenAddress)
	params.Set("limit", strconv.Itoa(p.Limit))
	params.Set("chainID", strconv.Itoa(int(p.ChainID)))
	params.Set("txSender", p.TxSender)

	var resp struct {
		Data struct {
			Trades []Trade `json:"Trades"`
		} `json:"data"`
	}
	if err := c.get(ctx, c.apiURLV2+"/vp-api/trades", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch trades: %w", err)
	}
	if resp.Data.Trades == nil {
		return []Trade{}, nil
	}
	return resp.Data.Trades, nil
}

func (c *VirtualsClient) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	c.limiter.Take()

	full := endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return err
	}
	req.Header.Set("accept", "application/json")

	log.WithField("url", full).Debug("virtuals api request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return apiError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// apiError extracts the API's message from an error body when it has one
func apiError(status int, body []byte) error {
	var errorResp struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errorResp); err == nil {
		if errorResp.Error != nil && errorResp.Error.Message != "" {
			return fmt.Errorf("API error (status %d): %s", status, errorResp.Error.Message)
		}
		if errorResp.Message != "" {
			return fmt.Errorf("API error (status %d): %s", status, errorResp.Message)
		}
	}
	if len(body) > 0 {
		return fmt.Errorf("API error (status %d): %s", status, strings.TrimSpace(string(body)))
	}
	return fmt.Errorf("API returned status code %d", status)
}
