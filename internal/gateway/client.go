// Package gateway talks to the upstream payment gateway over signed HTTP
// calls and normalises its loosely typed responses.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reseller-ledger/internal/logger"
)

const (
	HeaderAPIKey    = "X-Api-Key"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

// Response is the raw gateway reply. Data holds the body verbatim so it can
// be stored alongside the business transaction.
type Response struct {
	StatusCode int
	Data       json.RawMessage
}

type Client struct {
	BaseURL    string
	APIKey     string
	Secret     string
	HTTPClient *http.Client

	now func() time.Time
}

func New(baseURL, apiKey, secret string, timeout time.Duration) *Client {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		Secret:     secret,
		HTTPClient: &http.Client{Transport: tr, Timeout: timeout},
	}
}

// Sign computes the hex HMAC-SHA256 of timestamp + method + endpoint + body.
func Sign(secret, timestamp, method, endpoint string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(method))
	mac.Write([]byte(endpoint))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the request parts.
func Verify(secret, timestamp, method, endpoint string, body []byte, signature string) bool {
	expected := Sign(secret, timestamp, method, endpoint, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Call sends payload as JSON. Transport failures and timeouts are returned
// as errors; HTTP error statuses come back as a Response for Interpret.
func (c *Client) Call(ctx context.Context, method, endpoint string, payload any) (*Response, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode gateway payload: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}

	timestamp := strconv.FormatInt(c.clock().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderAPIKey, c.APIKey)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSignature, Sign(c.Secret, timestamp, method, endpoint, body))

	logger.ExternalServiceCall("gateway", endpoint, "method", method)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		logger.ExternalServiceResult("gateway", endpoint, err)
		return nil, fmt.Errorf("gateway call %s %s failed: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.ExternalServiceResult("gateway", endpoint, err)
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}
	logger.ExternalServiceResult("gateway", endpoint, nil, "status_code", resp.StatusCode)

	if !json.Valid(data) {
		// Keep non-JSON bodies storable as JSONB.
		quoted, _ := json.Marshal(string(data))
		data = quoted
	}
	return &Response{StatusCode: resp.StatusCode, Data: data}, nil
}

func (c *Client) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}
