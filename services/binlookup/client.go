// Package binlookup asks an issuer-information service what it knows about
// a card's BIN. Only the BIN ever leaves the process.
package binlookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"voyage-payment-api/models"
	"voyage-payment-api/security"
	"voyage-payment-api/utils"
)

const (
	binLength       = 6
	maxResponseSize = 64 << 10
)

type Client struct {
	httpClient *http.Client
	endpoint   string
	audit      *security.AuditLogger
}

func NewClient(httpClient *http.Client, endpoint string, audit *security.AuditLogger) *Client {
	if audit == nil {
		audit = security.NewAuditLogger(nil)
	}
	return &Client{httpClient: httpClient, endpoint: endpoint, audit: audit}
}

type lookupResponse struct {
	Brand            string `json:"brand"`
	Bank             string `json:"bank"`
	Country          string `json:"country"`
	ThreeDSRequired  bool   `json:"threeDSRequired"`
	ThreeDSSupported bool   `json:"threeDSSupported"`
}

func (c *Client) Lookup(ctx context.Context, req models.BINLookupRequest) (models.BINInfo, error) {
	if len(req.BIN) != binLength {
		return models.BINInfo{}, fmt.Errorf("bin must be %d digits, got %d", binLength, len(req.BIN))
	}

	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return models.BINInfo{}, fmt.Errorf("invalid lookup endpoint: %w", err)
	}
	q := reqURL.Query()
	q.Set("bin", req.BIN)
	q.Set("amount", utils.FormatAmount(req.Amount))
	q.Set("currency", req.Currency)
	reqURL.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return models.BINInfo{}, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.audit.Error("bin lookup request failed", map[string]any{"error": err})
		return models.BINInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.audit.Error("bin lookup returned error status", map[string]any{"httpStatus": resp.StatusCode})
		return models.BINInfo{}, fmt.Errorf("bin lookup returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return models.BINInfo{}, fmt.Errorf("error reading response body: %w", err)
	}

	var out lookupResponse
	if err := json.Unmarshal(body, &out); err != nil {
		c.audit.Error("bin lookup response unreadable", map[string]any{"error": err})
		return models.BINInfo{}, fmt.Errorf("error decoding response: %w", err)
	}

	info := models.BINInfo{
		Brand:            normalizeBrand(out.Brand),
		Bank:             out.Bank,
		Country:          out.Country,
		ThreeDSRequired:  out.ThreeDSRequired,
		ThreeDSSupported: out.ThreeDSSupported,
	}
	if info.Brand == models.BrandUnknown {
		info.Brand = security.DetectBrand(req.BIN)
	}
	return info, nil
}

func normalizeBrand(s string) models.CardBrand {
	switch strings.ToLower(strings.ReplaceAll(s, " ", "")) {
	case "visa":
		return models.BrandVisa
	case "mastercard":
		return models.BrandMasterCard
	case "amex", "americanexpress":
		return models.BrandAmericanExpress
	case "discover":
		return models.BrandDiscover
	}
	return models.BrandUnknown
}
