package solswap

import (
	"bytes"
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
	"github.com/sony/gobreaker"

	"vp-trade/pkg/types"
)

// DefaultJupiterURL is the aggregator's v1 swap API
const DefaultJupiterURL = "https://api.jup.ag/swap/v1"

// QuoteRequest is the query of the aggregator /quote endpoint.
// Amount is already in the input mint's smallest unit.
type QuoteRequest struct {
	InputMint                  string
	OutputMint                 string
	Amount                     uint64
	SlippageBps                uint16
	RestrictIntermediateTokens *bool
}

// QuoteResponse is a route returned by /quote. Raw keeps the exact body so
// /swap receives the route unchanged.
type QuoteResponse struct {
	InputMint            string          `json:"inputMint"`
	InAmount             string          `json:"inAmount"`
	OutputMint           string          `json:"outputMint"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          int             `json:"slippageBps"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	ContextSlot          uint64          `json:"contextSlot"`
	TimeTaken            float64         `json:"timeTaken"`
	Error                string          `json:"error,omitempty"`
	Raw                  json.RawMessage `json:"-"`
}

// PriorityLevelWithMaxLamports caps the priority fee the aggregator may pick
type PriorityLevelWithMaxLamports struct {
	MaxLamports   uint64 `json:"maxLamports"`
	PriorityLevel string `json:"priorityLevel"`
}

// PrioritizationFee is the prioritizationFeeLamports swap option
type PrioritizationFee struct {
	PriorityLevelWithMaxLamports *PriorityLevelWithMaxLamports `json:"priorityLevelWithMaxLamports,omitempty"`
}

// SwapOptions override the defaults of the /swap request body
type SwapOptions struct {
	PrioritizationFeeLamports *PrioritizationFee
	DynamicComputeUnitLimit   *bool
	DynamicSlippage           *bool
}

// SimulationError is the aggregator's pre-flight failure report
type SimulationError struct {
	ErrorCode string `json:"errorCode"`
	Error     string `json:"error"`
}

// SwapResponse carries the serialized, unsigned versioned transaction
type SwapResponse struct {
	SwapTransaction           string           `json:"swapTransaction"`
	LastValidBlockHeight      uint64           `json:"lastValidBlockHeight"`
	PrioritizationFeeLamports uint64           `json:"prioritizationFeeLamports"`
	ComputeUnitLimit          uint64           `json:"computeUnitLimit"`
	SimulationSlot            uint64           `json:"simulationSlot"`
	SimulationError           *SimulationError `json:"simulationError,omitempty"`
	Error                     string           `json:"error,omitempty"`
}

type swapRequest struct {
	QuoteResponse             json.RawMessage    `json:"quoteResponse"`
	UserPublicKey             string             `json:"userPublicKey"`
	DynamicComputeUnitLimit   bool               `json:"dynamicComputeUnitLimit"`
	DynamicSlippage           bool               `json:"dynamicSlippage"`
	PrioritizationFeeLamports *PrioritizationFee `json:"prioritizationFeeLamports,omitempty"`
}

// JupiterClient talks to the swap aggregator REST API
type JupiterClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
}

// NewJupiterClient creates a client for baseURL. An empty apiKey omits the
// x-api-key header.
func NewJupiterClient(baseURL, apiKey string) *JupiterClient {
	if baseURL == "" {
		baseURL = DefaultJupiterURL
	}
	return &JupiterClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cb:         newCircuitBreaker(),
	}
}

// Quote requests a route. An error field in the response fails with ErrQuote.
func (c *JupiterClient) Quote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	restrict := true
	if req.RestrictIntermediateTokens != nil {
		restrict = *req.RestrictIntermediateTokens
	}

	params := url.Values{}
	params.Set("inputMint", req.InputMint)
	params.Set("outputMint", req.OutputMint)
	params.Set("amount", strconv.FormatUint(req.Amount, 10))
	params.Set("slippageBps", strconv.FormatUint(uint64(req.SlippageBps), 10))
	params.Set("restrictIntermediateTokens", strconv.FormatBool(restrict))

	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	var quote QuoteResponse
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	if quote.Error != "" {
		return nil, fmt.Errorf("%w: %s", types.ErrQuote, quote.Error)
	}
	quote.Raw = json.RawMessage(body)
	return &quote, nil
}

// Swap asks the aggregator to build the swap transaction for userPublicKey.
// A reported simulation failure fails with ErrSimulation.
func (c *JupiterClient) Swap(ctx context.Context, quote *QuoteResponse, userPublicKey string, opts *SwapOptions) (*SwapResponse, error) {
	rawQuote := quote.Raw
	if len(rawQuote) == 0 {
		encoded, err := json.Marshal(quote)
		if err != nil {
			return nil, fmt.Errorf("failed to encode quote: %w", err)
		}
		rawQuote = encoded
	}

	payload := swapRequest{
		QuoteResponse:           rawQuote,
		UserPublicKey:           userPublicKey,
		DynamicComputeUnitLimit: true,
		DynamicSlippage:         true,
		PrioritizationFeeLamports: &PrioritizationFee{
			PriorityLevelWithMaxLamports: &PriorityLevelWithMaxLamports{
				MaxLamports:   1_000_000,
				PriorityLevel: "veryHigh",
			},
		},
	}
	if opts != nil {
		if opts.PrioritizationFeeLamports != nil {
			payload.PrioritizationFeeLamports = opts.PrioritizationFeeLamports
		}
		if opts.DynamicComputeUnitLimit != nil {
			payload.DynamicComputeUnitLimit = *opts.DynamicComputeUnitLimit
		}
		if opts.DynamicSlippage != nil {
			payload.DynamicSlippage = *opts.DynamicSlippage
		}
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode swap request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/swap", reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to get swap transaction: %w", err)
	}

	var swap SwapResponse
	if err := json.Unmarshal(body, &swap); err != nil {
		return nil, fmt.Errorf("failed to decode swap response: %w", err)
	}
	if swap.SimulationError != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrSimulation, swap.SimulationError.Error)
	}
	if swap.Error != "" {
		return nil, fmt.Errorf("%w: %s", types.ErrSimulation, swap.Error)
	}
	if swap.SwapTransaction == "" {
		return nil, fmt.Errorf("swap response carries no transaction")
	}
	return &swap, nil
}

// do runs one request through the circuit breaker. Bodies that decode as an
// aggregator error report are returned to the caller, other non-2xx
// statuses count as failures.
func (c *JupiterClient) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	out, err := c.cb.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("x-api-key", c.apiKey)
		}

		log.WithFields(log.Fields{"method": method, "url": endpoint}).Debug("jupiter request")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 300 && !hasErrorReport(respBody) {
			return nil, fmt.Errorf("jupiter returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		return respBody, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func hasErrorReport(body []byte) bool {
	var report struct {
		Error           string           `json:"error"`
		SimulationError *SimulationError `json:"simulationError"`
	}
	if err := json.Unmarshal(body, &report); err != nil {
		return false
	}
	return report.Error != "" || report.SimulationError != nil
}

func newCircuitBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "jupiter",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				log.Warn("jupiter seems down, stop allowing requests")
			}
			if from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen {
				log.Info("checking jupiter status")
			}
			if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
				log.Info("jupiter seems ok, restart allowing requests")
			}
		},
	})
}
