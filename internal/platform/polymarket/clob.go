package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/dmarquez/updownbot/internal/crypto"
	"github.com/dmarquez/updownbot/internal/domain"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// ClobClient is the REST client for the CLOB trading API. It implements
// executor.Venue: order submission, status polls, cancels, and the
// collateral balance query, plus the book snapshot fetch the polling
// feed uses.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	hmacAuth   *crypto.HMACAuth
}

// NewClobClient creates a CLOB client. baseURL is the API root, e.g.
// "https://clob.polymarket.com". hmac may be nil until DeriveAPIKey runs.
func NewClobClient(baseURL string, signer *crypto.Signer, hmac *crypto.HMACAuth) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer:   signer,
		hmacAuth: hmac,
	}
}

// SubmitOrder signs and posts one order, returning the venue order ID.
func (c *ClobClient) SubmitOrder(ctx context.Context, ticket domain.OrderTicket) (domain.OrderHandle, error) {
	if ticket.Price <= 0 || ticket.Price >= 1 || ticket.Size <= 0 {
		return domain.OrderHandle{}, fmt.Errorf("polymarket/clob: %w: price=%v size=%v",
			domain.ErrInvalidOrder, ticket.Price, ticket.Size)
	}
	if c.hmacAuth == nil {
		return domain.OrderHandle{}, fmt.Errorf("polymarket/clob: %w: no API credentials, run DeriveAPIKey first", domain.ErrUnauthorized)
	}

	payload := buildPayload(ticket, c.signer.Address().Hex())

	sig, err := c.signer.SignOrder(payload, ticket.NegRisk)
	if err != nil {
		return domain.OrderHandle{}, fmt.Errorf("polymarket/clob: %w: %v", domain.ErrSigningFailed, err)
	}

	body := map[string]any{
		"order": map[string]any{
			"salt":          payload.Salt,
			"maker":         payload.Maker,
			"signer":        payload.Signer,
			"taker":         payload.Taker,
			"tokenId":       payload.TokenID,
			"makerAmount":   payload.MakerAmount,
			"takerAmount":   payload.TakerAmount,
			"expiration":    payload.Expiration,
			"nonce":         payload.Nonce,
			"feeRateBps":    payload.FeeRateBps,
			"side":          string(ticket.Side),
			"signatureType": payload.SignatureType,
			"signature":     sig,
		},
		"owner":     c.hmacAuth.Key,
		"orderType": string(ticket.Type),
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.OrderHandle{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var result apiOrderResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return domain.OrderHandle{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	if !result.Success {
		return domain.OrderHandle{}, fmt.Errorf("polymarket/clob: order rejected: %s", result.ErrorMsg)
	}

	return domain.OrderHandle{ID: result.OrderID, TokenID: ticket.TokenID}, nil
}

// OrderStatus fetches and normalizes the current state of an order.
func (c *ClobClient) OrderStatus(ctx context.Context, handle domain.OrderHandle) (domain.OrderState, error) {
	path := "/data/order/" + handle.ID

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.OrderState{}, fmt.Errorf("polymarket/clob: get order %s: %w", handle.ID, err)
	}

	var order apiOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return domain.OrderState{}, fmt.Errorf("polymarket/clob: decode order: %w", err)
	}

	state := order.toOrderState()
	if state.Handle.TokenID == "" {
		state.Handle.TokenID = handle.TokenID
	}
	return state, nil
}

// CancelOrder cancels a single order by ID.
func (c *ClobClient) CancelOrder(ctx context.Context, handle domain.OrderHandle) error {
	body := map[string]any{"orderID": handle.ID}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, "/order", body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: cancel order %s: %w", handle.ID, err)
	}

	var result struct {
		Success  bool   `json:"success"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("polymarket/clob: decode cancel response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("polymarket/clob: cancel failed: %s", result.ErrorMsg)
	}

	return nil
}

// Balance returns the available collateral balance in USD.
func (c *ClobClient) Balance(ctx context.Context) (float64, error) {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, "/balance-allowance?asset_type=COLLATERAL", nil)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: get balance: %w", err)
	}

	var bal apiBalance
	if err := json.Unmarshal(respBody, &bal); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode balance: %w", err)
	}
	return bal.toUSD(), nil
}

// GetBook fetches a full book snapshot for one token. Unauthenticated.
func (c *ClobClient) GetBook(ctx context.Context, tokenID string) (domain.BookEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/book?token_id="+tokenID, nil)
	if err != nil {
		return domain.BookEvent{}, fmt.Errorf("polymarket/clob: create book request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.BookEvent{}, fmt.Errorf("polymarket/clob: get book: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.BookEvent{}, fmt.Errorf("polymarket/clob: read book response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return domain.BookEvent{}, err
	}

	var book apiBook
	if err := json.Unmarshal(respBody, &book); err != nil {
		return domain.BookEvent{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}

	ev := book.toBookEvent()
	if ev.TokenID == "" {
		ev.TokenID = tokenID
	}
	return ev, nil
}

// DeriveAPIKey performs the L1 auth flow to obtain HMAC credentials: it
// signs a ClobAuth message and exchanges it at the derive-api-key
// endpoint. On success it populates the client's hmacAuth.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()
	nonce := int64(0)

	sig, err := c.signer.SignAuthMessage(address, timestamp, nonce)
	if err != nil {
		return fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("POLY_NONCE", strconv.FormatInt(nonce, 10))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polymarket/clob: auth failed (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}

	c.hmacAuth = &crypto.HMACAuth{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}

	return nil
}

// buildPayload converts a ticket to the signed exchange representation.
// The exchange settles in 6-decimal integer units: a buy makes
// collateral (price*size) for size outcome tokens, a sell the reverse.
func buildPayload(ticket domain.OrderTicket, wallet string) crypto.OrderPayload {
	shares := strconv.FormatInt(int64(math.Round(ticket.Size*usdcScale)), 10)
	collateral := strconv.FormatInt(int64(math.Round(ticket.Price*ticket.Size*usdcScale)), 10)

	payload := crypto.OrderPayload{
		Salt:       strconv.FormatInt(rand.Int63(), 10),
		Maker:      wallet,
		Signer:     wallet,
		Taker:      zeroAddress,
		TokenID:    ticket.TokenID,
		Expiration: "0",
		Nonce:      "0",
		FeeRateBps: "0",
	}
	if ticket.Side == domain.OrderSideBuy {
		payload.Side = 0
		payload.MakerAmount = collateral
		payload.TakerAmount = shares
	} else {
		payload.Side = 1
		payload.MakerAmount = shares
		payload.TakerAmount = collateral
	}
	return payload
}

// doAuthenticatedRequest builds, HMAC-signs, sends, and reads a request
// against the CLOB API, returning the raw response body.
func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.hmacAuth != nil {
		address := c.signer.Address().Hex()
		for k, v := range c.hmacAuth.L2Headers(address, method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
