package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Proof is a bearer note: the mint signs a secret worth a fixed amount.
// Whoever holds an unspent secret owns the sats.
type Proof struct {
	ID     string `json:"id"` // keyset id
	Amount int64  `json:"amount"`
	Secret string `json:"secret"`
	C      string `json:"C"` // mint signature over the secret
}

// MintInfo is the GET /v1/info response.
type MintInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Config holds mint connection settings.
type Config struct {
	MintURL string
	Timeout time.Duration
}

/// Client is a thin HTTP client for the mint's three-endpoint API:
// GET /v1/info, POST /v1/mint, POST /v1/swap.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a mint client. The connection is not probed here;
// call Info to health-check.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// URL returns the configured mint base URL.
func (c *Client) URL() string {
	return c.cfg.MintURL
}

// Info fetches mint identity, doubling as the health check.
func (c *Client) Info(ctx context.Context) (*MintInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1/info"), nil)
	if err != nil {
		return nil, fmt.Errorf("mint info: create request: %v", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mint info: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError("info", resp)
	}
	var info MintInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("mint info: decode: %v", err)
	}
	return &info, nil
}

type mintRequest struct {
	Amount int64 `json:"amount"`
}

type proofsResponse struct {
	Proofs []Proof `json:"proofs"`
}

// Mint asks the mint to issue fresh proofs worth amount sats. Used only
// to fund a wallet on first boot; trading never mints.
func (c *Client) Mint(ctx context.Context, amount int64) ([]Proof, error) {
	var resp proofsResponse
	if err := c.post(ctx, "/v1/mint", mintRequest{Amount: amount}, &resp); err != nil {
		return nil, err
	}
	return resp.Proofs, nil
}

type swapRequest struct {
	Proofs []Proof `json:"proofs"`
	Split  []int64 `json:"split"`
}

// Swap exchanges proofs for fresh ones in the requested denominations.
// The mint marks the inputs spent, so a reused proof is rejected; the
// response proofs come back in split order.
func (c *Client) Swap(ctx context.Context, proofs []Proof, split []int64) ([]Proof, error) {
	var resp proofsResponse
	if err := c.post(ctx, "/v1/swap", swapRequest{Proofs: proofs, Split: split}, &resp); err != nil {
		return nil, err
	}
	return resp.Proofs, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("mint %s: encode: %v", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("mint %s: create request: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mint %s: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.apiError(path, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("mint %s: decode: %v", path, err)
	}
	return nil
}

func (c *Client) apiError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("mint %s: %s", op, apiErr.Error)
	}
	return fmt.Errorf("mint %s: status %d", op, resp.StatusCode)
}

func (c *Client) endpoint(path string) string {
	return strings.TrimSuffix(c.cfg.MintURL, "/") + path
}
