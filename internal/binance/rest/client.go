package rest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.binance.com"

// Credentials sign account endpoints. They live on the client that was built
// with them and nowhere else.
type Credentials struct {
	APIKey string
	Secret string
}

func (c Credentials) valid() bool {
	return c.APIKey != "" && c.Secret != ""
}

var ErrMissingCredentials = errors.New("binance api key and secret are required")

// APIError is a non-2xx response. Code and Msg come from the Binance error
// body when it could be decoded.
type APIError struct {
	Status int
	Code   int
	Msg    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("binance http %d: code %d: %s", e.Status, e.Code, e.Msg)
	}
	return fmt.Sprintf("binance http %d: %s", e.Status, e.Msg)
}

type Client struct {
	baseURL    string
	http       *http.Client
	creds      Credentials
	recvWindow time.Duration
	log        *zap.Logger
	now        func() time.Time
}

func New(baseURL string, timeout, recvWindow time.Duration, creds Credentials, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
		creds:      creds,
		recvWindow: recvWindow,
		log:        log,
		now:        time.Now,
	}
}

func (c *Client) get(ctx context.Context, path string, q url.Values, signed bool, out any) error {
	return c.do(ctx, http.MethodGet, path, q, signed, out)
}

func (c *Client) post(ctx context.Context, path string, q url.Values, out any) error {
	return c.do(ctx, http.MethodPost, path, q, true, out)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, signed bool, out any) error {
	if q == nil {
		q = url.Values{}
	}
	if signed {
		if !c.creds.valid() {
			return ErrMissingCredentials
		}
		q.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		if c.recvWindow > 0 {
			q.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
		}
	}
	payload := q.Encode()
	if signed {
		payload += "&signature=" + c.sign(payload)
	}
	target := c.baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		if payload != "" {
			target += "?" + payload
		}
	} else {
		body = strings.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.creds.APIKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.creds.APIKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.log.Debug("binance request", zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// sign returns the hex HMAC-SHA256 of payload, which is sent with the
// signature appended last.
func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.creds.Secret))
	_, _ = io.WriteString(mac, payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func decodeAPIError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	apiErr := &APIError{Status: resp.StatusCode, Msg: strings.TrimSpace(string(payload))}
	var body struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && (body.Code != 0 || body.Msg != "") {
		apiErr.Code = body.Code
		apiErr.Msg = body.Msg
	}
	return apiErr
}
