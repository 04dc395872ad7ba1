// Package venueapi is an HTTP client for adapter endpoints that speak the
// relay's quote API: swap quotes, bridge fee estimates, token prices, and
// gas prices. One Client serves one protocol's endpoint, with optional
// backup URLs and automatic restoration of the primary.
package venueapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Kinetic-Labs/kinetic-relay/planner/adapters"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "venueapi").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "venueapi").Logger()
}

// FailoverConfig controls retry and failover behavior.
type FailoverConfig struct {
	// MaxRetries is the number of times to retry a failed request on the
	// current endpoint.
	MaxRetries int
	// RetryDelay is the initial delay between retries (doubles each retry).
	RetryDelay time.Duration
	// HealthCheckInterval is how often to probe a downed primary endpoint.
	HealthCheckInterval time.Duration
	// Timeout is the HTTP request timeout.
	Timeout time.Duration
}

// DefaultFailoverConfig returns sensible defaults.
func DefaultFailoverConfig() FailoverConfig {
	return FailoverConfig{
		MaxRetries:          2,
		RetryDelay:          500 * time.Millisecond,
		HealthCheckInterval: 30 * time.Second,
		Timeout:             10 * time.Second,
	}
}

// Client talks to one protocol's adapter API. It implements both
// adapters.SwapVenueClient and adapters.BridgeClient; which half is used
// depends on how the registry wires it.
type Client struct {
	protocol       string
	httpClient     *http.Client
	primaryURL     string
	backupURLs     []string
	currentURL     string
	mu             sync.RWMutex
	healthChecker  *healthChecker
	failoverConfig FailoverConfig
}

var (
	_ adapters.SwapVenueClient = (*Client)(nil)
	_ adapters.BridgeClient    = (*Client)(nil)
)

// NewClient creates a client for a single endpoint.
func NewClient(protocol, apiURL string) (*Client, error) {
	return NewClientWithFailover(protocol, apiURL, nil, DefaultFailoverConfig())
}

// NewClientWithFailover creates a client with backup endpoints.
func NewClientWithFailover(protocol, primaryURL string, backupURLs []string, config FailoverConfig) (*Client, error) {
	if _, err := url.Parse(primaryURL); err != nil {
		return nil, fmt.Errorf("invalid primary API URL %q: %w", primaryURL, err)
	}

	validBackups := make([]string, 0, len(backupURLs))
	for _, u := range backupURLs {
		if _, err := url.Parse(u); err != nil {
			log.Warn().Err(err).Str("url", u).Msg("Invalid backup URL, skipping")
			continue
		}
		validBackups = append(validBackups, u)
	}

	client := &Client{
		protocol:       protocol,
		httpClient:     &http.Client{Timeout: config.Timeout},
		primaryURL:     primaryURL,
		backupURLs:     validBackups,
		currentURL:     primaryURL,
		failoverConfig: config,
	}

	if len(validBackups) > 0 {
		client.startHealthChecker()
	}

	log.Info().
		Str("protocol", protocol).
		Str("primary", primaryURL).
		Int("backups", len(validBackups)).
		Msg("Adapter API client initialized")
	return client, nil
}

// ProtocolName implements both adapter interfaces.
func (c *Client) ProtocolName() string {
	return c.protocol
}

// GetQuote implements adapters.SwapVenueClient.
func (c *Client) GetQuote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*adapters.Quote, error) {
	path := fmt.Sprintf("/quote?tokenIn=%s&tokenOut=%s&amountIn=%s",
		url.QueryEscape(tokenIn.Hex()),
		url.QueryEscape(tokenOut.Hex()),
		url.QueryEscape(amountIn.String()),
	)

	body, err := c.doRequestWithFailover(ctx, path)
	if err != nil {
		return nil, err
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse quote response: %w", err)
	}

	amountOut, ok := new(big.Int).SetString(resp.AmountOut, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount_out %q in quote response", resp.AmountOut)
	}

	tokenPath := make([]common.Address, 0, len(resp.Path))
	for _, hop := range resp.Path {
		if !common.IsHexAddress(hop) {
			return nil, fmt.Errorf("invalid path token %q in quote response", hop)
		}
		tokenPath = append(tokenPath, common.HexToAddress(hop))
	}

	return &adapters.Quote{AmountOut: amountOut, Path: tokenPath}, nil
}

// EstimateFee implements adapters.BridgeClient.
func (c *Client) EstimateFee(ctx context.Context, src, dst uint64, token common.Address, amount *big.Int) (*big.Int, error) {
	path := fmt.Sprintf("/bridge-fee?srcChainId=%d&dstChainId=%d&token=%s&amount=%s",
		src, dst,
		url.QueryEscape(token.Hex()),
		url.QueryEscape(amount.String()),
	)

	body, err := c.doRequestWithFailover(ctx, path)
	if err != nil {
		return nil, err
	}

	var resp bridgeFeeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse bridge fee response: %w", err)
	}

	fee, ok := new(big.Int).SetString(resp.Fee, 10)
	if !ok {
		return nil, fmt.Errorf("invalid fee %q in bridge fee response", resp.Fee)
	}
	return fee, nil
}

// TokenPrice fetches the token's price in the comparison currency. The zero
// address means the chain's native token.
func (c *Client) TokenPrice(ctx context.Context, chainID uint64, token common.Address) (decimal.Decimal, error) {
	path := fmt.Sprintf("/token-price?chainId=%d&token=%s", chainID, url.QueryEscape(token.Hex()))

	body, err := c.doRequestWithFailover(ctx, path)
	if err != nil {
		return decimal.Decimal{}, err
	}

	var resp tokenPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to parse price response: %w", err)
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid price %q: %w", resp.Price, err)
	}
	return price, nil
}

// GasPrice fetches the chain's current gas price in wei.
func (c *Client) GasPrice(ctx context.Context, chainID uint64) (*big.Int, error) {
	path := fmt.Sprintf("/gas-price?chainId=%d", chainID)

	body, err := c.doRequestWithFailover(ctx, path)
	if err != nil {
		return nil, err
	}

	var resp gasPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse gas price response: %w", err)
	}
	gasPrice, ok := new(big.Int).SetString(resp.GasPrice, 10)
	if !ok {
		return nil, fmt.Errorf("invalid gas_price %q", resp.GasPrice)
	}
	return gasPrice, nil
}

// Close stops the health checker.
func (c *Client) Close() {
	if c.healthChecker != nil {
		c.healthChecker.stop()
	}
}

// doRequestWithFailover performs a GET with retry on the current endpoint,
// then a single attempt on a healthy backup. The request context bounds
// every attempt and the backoff sleeps between them.
func (c *Client) doRequestWithFailover(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	retryDelay := c.failoverConfig.RetryDelay

	for attempt := 0; attempt <= c.failoverConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			retryDelay *= 2
		}

		body, err := c.doGet(ctx, c.getCurrentURL()+path)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	if len(c.backupURLs) > 0 && c.failover() {
		body, err := c.doGet(ctx, c.getCurrentURL()+path)
		if err != nil {
			return nil, fmt.Errorf("failover request failed: %w (original: %w)", err, lastErr)
		}
		return body, nil
	}

	return nil, fmt.Errorf("%s request failed after %d attempts: %w", c.protocol, c.failoverConfig.MaxRetries+1, lastErr)
}

func (c *Client) doGet(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *Client) getCurrentURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentURL
}

// failover switches to the next healthy endpoint in rotation order.
func (c *Client) failover() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	allURLs := append([]string{c.primaryURL}, c.backupURLs...)
	currentIdx := -1
	for i, u := range allURLs {
		if u == c.currentURL {
			currentIdx = i
			break
		}
	}

	for i := 1; i <= len(allURLs); i++ {
		nextIdx := (currentIdx + i) % len(allURLs)
		nextURL := allURLs[nextIdx]
		if nextURL == c.currentURL {
			continue
		}
		if c.isEndpointHealthy(nextURL) {
			c.currentURL = nextURL
			log.Info().Str("protocol", c.protocol).Str("url", nextURL).Msg("Failover to endpoint")
			return true
		}
	}

	log.Warn().Str("protocol", c.protocol).Str("url", c.currentURL).Msg("All endpoints unhealthy, staying on current")
	return false
}

func (c *Client) isEndpointHealthy(endpoint string) bool {
	resp, err := c.httpClient.Get(endpoint + "/health")
	if err != nil {
		log.Debug().Err(err).Str("url", endpoint).Msg("Health check failed")
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return resp.StatusCode == http.StatusOK
}

// healthChecker periodically probes the primary endpoint and restores it
// once it answers again.
type healthChecker struct {
	client    *Client
	stopCh    chan struct{}
	stoppedCh chan struct{}
	isRunning bool
	mu        sync.Mutex
}

func (c *Client) startHealthChecker() {
	c.healthChecker = &healthChecker{
		client:    c,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	c.healthChecker.start()
}

func (h *healthChecker) start() {
	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		return
	}
	h.isRunning = true
	h.mu.Unlock()

	go func() {
		defer close(h.stoppedCh)
		ticker := time.NewTicker(h.client.failoverConfig.HealthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-h.stopCh:
				return
			case <-ticker.C:
				h.checkAndRestore()
			}
		}
	}()
}

func (h *healthChecker) stop() {
	h.mu.Lock()
	if !h.isRunning {
		h.mu.Unlock()
		return
	}
	h.isRunning = false
	h.mu.Unlock()

	close(h.stopCh)
	<-h.stoppedCh
}

func (h *healthChecker) checkAndRestore() {
	h.client.mu.RLock()
	currentURL := h.client.currentURL
	primaryURL := h.client.primaryURL
	h.client.mu.RUnlock()

	if currentURL == primaryURL {
		return
	}

	if h.client.isEndpointHealthy(primaryURL) {
		h.client.mu.Lock()
		h.client.currentURL = primaryURL
		h.client.mu.Unlock()
		log.Info().Str("protocol", h.client.protocol).Str("url", primaryURL).Msg("Restored primary endpoint")
	}
}
