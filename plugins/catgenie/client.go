package catgenie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/joshp123/catgenie/internal/rate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	refreshTokenPath = "/facade/v1/mobile-user/refreshToken"
	devicesPath      = "/device/device"

	userAgent      = "CatGenie/493 CFNetwork/1559 Darwin/24.0.0"
	acceptHeader   = "application/json, text/plain, */*"
	acceptEncoding = "gzip, deflate, br"
	acceptLanguage = "en-US,en;q=0.9"
)

var (
	errTokenMissing = errors.New("refresh response has no token")
	errNoDevices    = errors.New("no devices on account")

	tokenExchanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catgenie_token_exchanges_total",
		Help: "Refresh token exchanges by result",
	}, []string{"result"})
)

// Client talks to the PetNovations cloud API.
type Client struct {
	baseURL      string
	refreshToken string
	timeout      time.Duration
	log          zerolog.Logger

	httpClient *http.Client

	mu        sync.Mutex
	token     *oauth2.Token
	exchanges int64
}

// NewClient builds a client whose HTTP transport is wrapped by the rate guard.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	return NewClientWithHTTP(cfg, logger, nil)
}

// NewClientWithHTTP lets tests inject their own transport.
func NewClientWithHTTP(cfg Config, logger zerolog.Logger, base *http.Client) (*Client, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.RefreshToken) == "" {
		return nil, fmt.Errorf("refresh token is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base == nil {
		base = &http.Client{}
	}

	decl := rate.Provider("catgenie").MaxRequestsPer(rate.Minute, cfg.RatePerMinute)
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		refreshToken: cfg.RefreshToken,
		timeout:      cfg.RequestTimeout,
		log:          logger.With().Str("component", "catgenie_client").Logger(),
		httpClient:   rate.WrapHTTP(decl, base),
	}, nil
}

// AcquireAccessToken exchanges the refresh token and caches the result.
func (c *Client) AcquireAccessToken(ctx context.Context) (string, error) {
	body := map[string]string{"refreshToken": c.refreshToken}
	raw, err := c.do(ctx, "refresh token", http.MethodPost, refreshTokenPath, body, nil, nil)
	if err != nil {
		tokenExchanges.WithLabelValues(resultLabel(err)).Inc()
		return "", err
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		tokenExchanges.WithLabelValues("error").Inc()
		return "", newError(KindUnknown, "refresh token", 0, fmt.Errorf("decode response: %w", err))
	}
	if strings.TrimSpace(resp.Token) == "" {
		tokenExchanges.WithLabelValues("error").Inc()
		return "", newError(KindUnknown, "refresh token", 0, errTokenMissing)
	}

	tok := newAccessToken(resp.Token)
	c.mu.Lock()
	c.token = tok
	c.exchanges++
	c.mu.Unlock()
	tokenExchanges.WithLabelValues("ok").Inc()

	event := c.log.Debug()
	if !tok.Expiry.IsZero() {
		event = event.Time("expires", tok.Expiry)
	}
	event.Msg("access token acquired")
	return resp.Token, nil
}

// ExchangeCount returns how many successful token exchanges this client did.
func (c *Client) ExchangeCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exchanges
}

// Request performs an authenticated call and returns the raw JSON body.
// An authentication failure clears the cached token; the call is not retried.
func (c *Client) Request(ctx context.Context, method, path string, body any, headers map[string]string) (json.RawMessage, error) {
	op := strings.ToLower(method) + " " + path
	tok, err := c.TokenSource(ctx).Token()
	if err != nil {
		return nil, err
	}

	raw, err := c.do(ctx, op, method, path, body, headers, tok)
	if IsAuthentication(err) {
		c.InvalidateToken()
	}
	return raw, err
}

// Devices is the account's thing list keyed by manufacturer id.
type Devices struct {
	ByID  map[string]Device
	Order []string
}

// GetDevices lists the account's devices. Later duplicates of an id replace
// earlier ones.
func (c *Client) GetDevices(ctx context.Context) (Devices, error) {
	list, err := c.thingList(ctx)
	if err != nil {
		return Devices{}, err
	}

	out := Devices{ByID: make(map[string]Device, len(list))}
	for _, device := range list {
		if _, seen := out.ByID[device.ManufacturerID]; !seen {
			out.Order = append(out.Order, device.ManufacturerID)
		}
		out.ByID[device.ManufacturerID] = device
	}
	return out, nil
}

// GetFirstDevice returns the first device in server order.
func (c *Client) GetFirstDevice(ctx context.Context) (Device, error) {
	list, err := c.thingList(ctx)
	if err != nil {
		return Device{}, err
	}
	if len(list) == 0 {
		return Device{}, newError(KindUnknown, "get devices", 0, errNoDevices)
	}
	return list[0], nil
}

func (c *Client) GetDeviceStatus(ctx context.Context, deviceID string) (Status, error) {
	raw, err := c.Request(ctx, http.MethodGet, statusPath(deviceID), nil, nil)
	if err != nil {
		return Status{}, err
	}
	values, err := decodeObject(raw)
	if err != nil {
		return Status{}, newError(KindUnknown, "get device status", 0, fmt.Errorf("decode status: %w", err))
	}
	return StatusFromMap(values), nil
}

func (c *Client) SetDeviceOperation(ctx context.Context, deviceID string, op Operation) error {
	body := map[string]int{"state": int(op)}
	_, err := c.Request(ctx, http.MethodPost, operationPath(deviceID), body, nil)
	if err != nil {
		return err
	}
	c.log.Info().Str("device", deviceID).Stringer("operation", op).Msg("operation sent")
	return nil
}

func (c *Client) thingList(ctx context.Context) ([]Device, error) {
	raw, err := c.Request(ctx, http.MethodGet, devicesPath, nil, nil)
	if err != nil {
		return nil, err
	}

	values, err := decodeObject(raw)
	if err != nil {
		return nil, newError(KindUnknown, "get devices", 0, fmt.Errorf("decode devices: %w", err))
	}
	entries, ok := values["thingList"].([]any)
	if !ok && values["thingList"] != nil {
		return nil, newError(KindUnknown, "get devices", 0, fmt.Errorf("thingList is %T", values["thingList"]))
	}

	devices := make([]Device, 0, len(entries))
	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		devices = append(devices, DeviceFromMap(obj))
	}
	return devices, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, headers map[string]string, tok *oauth2.Token) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, newError(KindUnknown, op, 0, fmt.Errorf("encode body: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, newError(KindUnknown, op, 0, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Encoding", acceptEncoding)
	req.Header.Set("Accept-Language", acceptLanguage)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if tok != nil {
		tok.SetAuthHeader(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newError(KindCommunication, op, 0, err)
	}
	defer resp.Body.Close()

	// The status decides the error kind; an unreadable body only matters
	// on success.
	data, readErr := readBody(resp)
	if readErr != nil {
		readErr = fmt.Errorf("read body: %w", readErr)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, newError(KindAuthentication, op, resp.StatusCode, failureDetail(data, readErr))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, newError(KindCommunication, op, resp.StatusCode, failureDetail(data, readErr))
	case readErr != nil:
		return nil, newError(KindCommunication, op, resp.StatusCode, readErr)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		return nil, newError(KindUnknown, op, resp.StatusCode, fmt.Errorf("response is not JSON"))
	}
	return json.RawMessage(data), nil
}

func failureDetail(data []byte, readErr error) error {
	if readErr != nil {
		return readErr
	}
	return bodyError(data)
}

func bodyError(data []byte) error {
	text := strings.TrimSpace(string(data))
	if len(text) > 256 {
		text = text[:256]
	}
	if text == "" {
		return nil
	}
	return errors.New(text)
}

func resultLabel(err error) string {
	kind, _ := KindOf(err)
	return kind.String()
}

func statusPath(deviceID string) string {
	return "/device/management/" + url.PathEscape(deviceID) + "/operation/status"
}

func operationPath(deviceID string) string {
	return "/device/management/" + url.PathEscape(deviceID) + "/operation"
}
