// Package authorizenet charges cards through the Authorize.Net JSON API.
package authorizenet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"voyage-payment-api/models"
	"voyage-payment-api/security"
	"voyage-payment-api/utils"
)

const (
	SandboxEndpoint    = "https://apitest.authorize.net/xml/v1/request.api"
	ProductionEndpoint = "https://api.authorize.net/xml/v1/request.api"
	DuplicateWindow    = 3
	RequestTimeout     = 30 * time.Second

	maxInvoiceLength     = 20
	maxDescriptionLength = 255
	duplicateErrorCode   = "11"
	approvedResponseCode = "1"
)

type Client struct {
	apiLoginID     string
	transactionKey string
	endpoint       string
	client         *http.Client
	audit          *security.AuditLogger
	now            func() time.Time
}

type Option func(*Client)

// WithEndpoint overrides the environment's endpoint.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func WithAudit(a *security.AuditLogger) Option {
	return func(c *Client) { c.audit = a }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(apiLoginID, transactionKey, environment string, opts ...Option) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	c := &Client{
		apiLoginID:     apiLoginID,
		transactionKey: transactionKey,
		endpoint:       SandboxEndpoint,
		client: &http.Client{
			Timeout:   RequestTimeout,
			Transport: transport,
		},
		audit: security.NewAuditLogger(nil),
		now:   time.Now,
	}
	if environment == "production" {
		c.endpoint = ProductionEndpoint
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) merchantAuthentication() merchantAuthenticationType {
	return merchantAuthenticationType{
		Name:           c.apiLoginID,
		TransactionKey: c.transactionKey,
	}
}

// Charge authorizes and captures req in one step. A decline is reported in
// the response, not as an error; errors mean the gateway could not be used.
func (c *Client) Charge(ctx context.Context, req models.ProcessorRequest) (*models.TransactionResponse, error) {
	invoice := req.InvoiceNumber
	if invoice == "" {
		invoice = "Order-" + strconv.FormatInt(c.now().UnixNano(), 36)
	}
	invoice = utils.Truncate(invoice, maxInvoiceLength)
	description := utils.Truncate(req.Description, maxDescriptionLength)

	txRequest := transactionRequestType{
		TransactionType: "authCaptureTransaction",
		Amount:          utils.FormatAmount(req.Amount),
		CurrencyCode:    req.Currency,
		Payment: &PaymentType{
			CreditCard: CreditCardType{
				CardNumber:     req.Card.Number,
				ExpirationDate: utils.ProcessorExpiry(req.Card.ExpiryMonth, req.Card.ExpiryYear),
				CardCode:       req.Card.CVV,
			},
		},
		Order: &OrderType{
			InvoiceNumber: invoice,
			Description:   description,
		},
		TransactionSettings: &TransactionSettingsType{
			Setting: []SettingType{
				{SettingName: "duplicateWindow", SettingValue: strconv.Itoa(DuplicateWindow)},
			},
		},
	}
	if first, last := splitName(req.Card.HolderName); first != "" {
		txRequest.BillTo = &CustomerAddressType{FirstName: first, LastName: last}
	}
	if req.AuthenticationID != "" {
		txRequest.CardholderAuthentication = &CardholderAuthenticationType{
			AuthenticationIndicator:       "05",
			CardholderAuthenticationValue: req.AuthenticationID,
		}
	}

	startTime := c.now()
	response, err := c.send(ctx, createTransactionRequestWrapper{
		CreateTransactionRequest: createTransactionRequest{
			MerchantAuthentication: c.merchantAuthentication(),
			RefID:                  invoice,
			TransactionRequest:     txRequest,
		},
	})
	if err != nil {
		return nil, err
	}
	c.audit.Info("processor charge response", map[string]any{
		"invoice":      invoice,
		"responseCode": response.TransactionResponse.ResponseCode,
		"resultCode":   response.Messages.ResultCode,
		"elapsedMs":    c.now().Sub(startTime).Milliseconds(),
	})

	if response.Messages.ResultCode == "Error" {
		// a retry inside the duplicate window returns the original transaction
		if id := duplicateOf(response.TransactionResponse); id != "" {
			c.audit.Warn("duplicate transaction detected", map[string]any{"transactionId": id})
			return &models.TransactionResponse{
				Success:       true,
				TransactionID: id,
				Message:       "Transaction previously processed",
				IsDuplicate:   true,
			}, nil
		}
		return &models.TransactionResponse{Success: false, Message: firstError(response)}, nil
	}

	if response.TransactionResponse.ResponseCode != approvedResponseCode {
		return &models.TransactionResponse{Success: false, Message: firstError(response)}, nil
	}

	message := ""
	if len(response.TransactionResponse.Messages) > 0 {
		message = response.TransactionResponse.Messages[0].Description
	}
	return &models.TransactionResponse{
		Success:       true,
		TransactionID: response.TransactionResponse.TransID,
		AuthCode:      response.TransactionResponse.AuthCode,
		Message:       message,
	}, nil
}

func (c *Client) send(ctx context.Context, payload createTransactionRequestWrapper) (*createTransactionResponse, error) {
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	// the gateway prefixes its JSON with a byte order mark
	cleanBody := bytes.TrimPrefix(respBody, []byte("\ufeff"))

	var response createTransactionResponse
	if err := json.Unmarshal(cleanBody, &response); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	return &response, nil
}

func duplicateOf(tr transactionResponse) string {
	for _, e := range tr.Errors {
		if e.ErrorCode == duplicateErrorCode && tr.TransID != "" && tr.TransID != "0" {
			return tr.TransID
		}
	}
	return ""
}

func firstError(r *createTransactionResponse) string {
	tr := r.TransactionResponse
	switch {
	case len(tr.Errors) > 0:
		return tr.Errors[0].ErrorText
	case len(tr.Messages) > 0:
		return tr.Messages[0].Description
	case len(r.Messages.Message) > 0:
		return r.Messages.Message[0].Text
	}
	return "Transaction failed"
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}
