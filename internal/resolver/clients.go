package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/call-scanner/internal/errors"
)

// newHTTPClient builds the client shared by all sources. Per-call deadlines
// come from the caller's context; the client timeout is a backstop.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// classifyHTTPError maps an HTTP status to the error taxonomy: 429 and 5xx
// are transient, everything else non-200 is permanent for that source.
func classifyHTTPError(service, address string, statusCode int) error {
	if statusCode == http.StatusTooManyRequests || statusCode >= 500 {
		return apperrors.NewTransientResolutionError(service,
			fmt.Errorf("unexpected status %d", statusCode))
	}
	return apperrors.NewPermanentResolutionError(service, address)
}

// MetadataClient resolves token identity from the on-chain metadata service.
type MetadataClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewMetadataClient creates a metadata client against the given base URL.
func NewMetadataClient(baseURL string, timeout time.Duration) *MetadataClient {
	return &MetadataClient{
		baseURL:    baseURL,
		httpClient: newHTTPClient(timeout),
	}
}

type metadataResponse struct {
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	LogoURI string `json:"logoURI"`
}

// TokenMetadata fetches name/symbol/logo for a mint address.
func (c *MetadataClient) TokenMetadata(ctx context.Context, address string) (*TokenInfo, error) {
	url := fmt.Sprintf("%s/v1/tokens/%s", c.baseURL, address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewTransientResolutionError("metadata", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError("metadata", address, resp.StatusCode)
	}

	var meta metadataResponse
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, apperrors.NewTransientResolutionError("metadata", err)
	}

	if meta.Name == "" || meta.Symbol == "" {
		return nil, apperrors.NewPermanentResolutionError("metadata", address)
	}

	return &TokenInfo{Name: meta.Name, Symbol: meta.Symbol, LogoURI: meta.LogoURI}, nil
}

// TokenListClient resolves token identity from a periodically refreshed token
// list. The full list is fetched once and cached for refreshInterval.
type TokenListClient struct {
	listURL         string
	httpClient      *http.Client
	refreshInterval time.Duration

	mu        sync.Mutex
	tokens    map[string]TokenInfo
	fetchedAt time.Time
}

type tokenListEntry struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	LogoURI string `json:"logoURI"`
}

// NewTokenListClient creates a token list client against the given list URL.
func NewTokenListClient(listURL string, timeout, refreshInterval time.Duration) *TokenListClient {
	return &TokenListClient{
		listURL:         listURL,
		httpClient:      newHTTPClient(timeout),
		refreshInterval: refreshInterval,
	}
}

// Lookup returns the list entry for an address, refreshing the cached list
// when stale. An address absent from the list is a permanent failure.
func (c *TokenListClient) Lookup(ctx context.Context, address string) (*TokenInfo, error) {
	tokens, err := c.tokenMap(ctx)
	if err != nil {
		return nil, err
	}

	info, ok := tokens[address]
	if !ok {
		return nil, apperrors.NewPermanentResolutionError("token_list", address)
	}

	return &info, nil
}

func (c *TokenListClient) tokenMap(ctx context.Context) (map[string]TokenInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tokens != nil && time.Since(c.fetchedAt) < c.refreshInterval {
		return c.tokens, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.listURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Serve the stale list rather than failing when a refresh attempt
		// cannot reach the upstream.
		if c.tokens != nil {
			return c.tokens, nil
		}
		return nil, apperrors.NewTransientResolutionError("token_list", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if c.tokens != nil {
			return c.tokens, nil
		}
		return nil, classifyHTTPError("token_list", "", resp.StatusCode)
	}

	var entries []tokenListEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, apperrors.NewTransientResolutionError("token_list", err)
	}

	tokens := make(map[string]TokenInfo, len(entries))
	for _, entry := range entries {
		tokens[entry.Address] = TokenInfo{
			Name:    entry.Name,
			Symbol:  entry.Symbol,
			LogoURI: entry.LogoURI,
		}
	}

	c.tokens = tokens
	c.fetchedAt = time.Now()

	return c.tokens, nil
}

// PriceClient quotes unit prices from the price API.
type PriceClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPriceClient creates a price client against the given base URL.
func NewPriceClient(baseURL string, timeout time.Duration) *PriceClient {
	return &PriceClient{
		baseURL:    baseURL,
		httpClient: newHTTPClient(timeout),
	}
}

type priceResponse struct {
	Success bool              `json:"success"`
	Data    map[string]string `json:"data"`
}

// Price fetches the current quote for a mint. A successful response without a
// quote for the mint is a permanent failure.
func (c *PriceClient) Price(ctx context.Context, address string) (float64, error) {
	url := fmt.Sprintf("%s/mint/price?mints=%s", c.baseURL, address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, apperrors.NewTransientResolutionError("price", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, classifyHTTPError("price", address, resp.StatusCode)
	}

	var quote priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return 0, apperrors.NewTransientResolutionError("price", err)
	}

	if !quote.Success {
		return 0, apperrors.NewPermanentResolutionError("price", address)
	}

	raw, ok := quote.Data[address]
	if !ok || raw == "" {
		return 0, apperrors.NewPermanentResolutionError("price", address)
	}

	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperrors.NewPermanentResolutionError("price", address)
	}

	return price, nil
}

// SupplyClient reads circulating supply from the chain RPC endpoint.
type SupplyClient struct {
	rpcURL     string
	httpClient *http.Client
}

// NewSupplyClient creates a supply client against the given RPC URL.
func NewSupplyClient(rpcURL string, timeout time.Duration) *SupplyClient {
	return &SupplyClient{
		rpcURL:     rpcURL,
		httpClient: newHTTPClient(timeout),
	}
}

type supplyRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type supplyRPCResponse struct {
	Result *struct {
		Value struct {
			UIAmount *float64 `json:"uiAmount"`
		} `json:"value"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Supply fetches the circulating supply for a mint via the token supply RPC.
func (c *SupplyClient) Supply(ctx context.Context, address string) (float64, error) {
	payload, err := json.Marshal(supplyRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTokenSupply",
		Params:  []interface{}{address},
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, apperrors.NewTransientResolutionError("supply", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, classifyHTTPError("supply", address, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, apperrors.NewTransientResolutionError("supply", err)
	}

	var rpcResp supplyRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return 0, apperrors.NewTransientResolutionError("supply", err)
	}

	if rpcResp.Error != nil || rpcResp.Result == nil || rpcResp.Result.Value.UIAmount == nil {
		return 0, apperrors.NewPermanentResolutionError("supply", address)
	}

	return *rpcResp.Result.Value.UIAmount, nil
}
