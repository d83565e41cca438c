package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tvbridge/internal/bybit/entity"
	"tvbridge/internal/metrics"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/net/proxy"
)

const (
	BybitBaseURL    = "https://api.bybit.com"
	BybitAPIVersion = "/v5"

	// retCode, который Bybit возвращает при установке уже выставленного плеча
	RetCodeLeverageNotModified = 110043
)

// APIResponse общий конверт ответа Bybit v5
type APIResponse struct {
	RetCode    int             `json:"retCode"`
	RetMsg     string          `json:"retMsg"`
	Result     json.RawMessage `json:"result"`
	RetExtInfo json.RawMessage `json:"retExtInfo,omitempty"`
	Time       int64           `json:"time"`
}

// APIError ответ биржи с ненулевым retCode
type APIError struct {
	Endpoint string
	Code     int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Bybit API error on %s: %d - %s", e.Endpoint, e.Code, e.Message)
}

// BybitHTTPClient клиент для работы с Bybit REST API v5
type BybitHTTPClient struct {
	APIKey     string
	SecretKey  string
	RecvWindow string
	rest       *resty.Client
	cb         *gobreaker.CircuitBreaker
}

type clientOptions struct {
	baseURL    string
	timeout    time.Duration
	retryCount int
	recvWindow int
	proxyAddr  string
}

// ClientOption опция создания клиента
type ClientOption func(*clientOptions)

// WithBaseURL задаёт адрес REST API (mainnet, testnet, demo или тестовый сервер)
func WithBaseURL(baseURL string) ClientOption {
	return func(o *clientOptions) {
		o.baseURL = baseURL
	}
}

// WithTimeout задаёт таймаут HTTP запроса
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// WithRetryCount задаёт число повторов для GET запросов
func WithRetryCount(n int) ClientOption {
	return func(o *clientOptions) {
		o.retryCount = n
	}
}

// WithRecvWindow задаёт X-BAPI-RECV-WINDOW в миллисекундах
func WithRecvWindow(ms int) ClientOption {
	return func(o *clientOptions) {
		o.recvWindow = ms
	}
}

// WithProxy направляет трафик через SOCKS5 прокси host:port
func WithProxy(addr string) ClientOption {
	return func(o *clientOptions) {
		o.proxyAddr = addr
	}
}

// NewBybitHTTPClient создает новый HTTP клиент Bybit
func NewBybitHTTPClient(apiKey, secretKey string, opts ...ClientOption) *BybitHTTPClient {
	o := clientOptions{
		baseURL:    BybitBaseURL,
		timeout:    30 * time.Second,
		retryCount: 2,
		recvWindow: 5000,
	}
	for _, opt := range opts {
		opt(&o)
	}

	client := &BybitHTTPClient{
		APIKey:     apiKey,
		SecretKey:  secretKey,
		RecvWindow: strconv.Itoa(o.recvWindow),
	}

	// Circuit breaker считает сетевые сбои и не-200 ответы, но не отказы биржи по retCode
	client.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bybit-api",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.Warnf("Circuit breaker '%s' changed from %s to %s", name, from, to)
		},
	})

	client.rest = resty.NewWithClient(newTransportClient(o.proxyAddr, o.timeout)).
		SetBaseURL(o.baseURL).
		SetTimeout(o.timeout).
		SetRetryCount(o.retryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(retryableGET)

	return client
}

// newTransportClient создает http.Client, при необходимости через SOCKS5
func newTransportClient(proxyAddr string, timeout time.Duration) *http.Client {
	if proxyAddr == "" {
		return &http.Client{Timeout: timeout}
	}

	proxyURL := &url.URL{
		Scheme: "socks5h",
		Host:   proxyAddr,
	}
	dialer, err := proxy.FromURL(proxyURL, proxy.Direct)
	if err != nil {
		logrus.Errorf("Failed to create SOCKS5 dialer: %v", err)
		return &http.Client{Timeout: timeout}
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		},
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// retryableGET повторяет только GET: создание ордера повторять нельзя
func retryableGET(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return true
	}
	code := resp.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// sign создает HMAC SHA256 подпись для Bybit API
func (c *BybitHTTPClient) sign(timestamp, payload string) string {
	message := timestamp + c.APIKey + c.RecvWindow + payload
	h := hmac.New(sha256.New, []byte(c.SecretKey))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// getTimestamp возвращает текущее время в миллисекундах
func (c *BybitHTTPClient) getTimestamp() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// doRequest выполняет запрос к Bybit API. Для GET params уходят в query string,
// для POST body сериализуется в JSON и подписывается как есть.
func (c *BybitHTTPClient) doRequest(ctx context.Context, method, path string, params map[string]string, body interface{}, signed bool) (*APIResponse, error) {
	start := time.Now()
	endpoint := BybitAPIVersion + path
	status := "ok"
	defer func() {
		metrics.BybitAPIRequestsTotal.WithLabelValues(endpoint, status).Inc()
		metrics.BybitAPIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		logrus.Debugf("BybitHTTPClient: %s %s took %.3fs (%s)", method, endpoint, time.Since(start).Seconds(), status)
	}()

	req := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json")

	payload := ""
	if method == http.MethodGet {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		payload = values.Encode()
		if payload != "" {
			req.SetQueryString(payload)
		}
	} else {
		raw, err := json.Marshal(body)
		if err != nil {
			status = "error"
			return nil, errors.Wrap(err, "failed to marshal request")
		}
		payload = string(raw)
		req.SetBody(raw)
	}

	if signed {
		if c.APIKey == "" || c.SecretKey == "" {
			status = "error"
			return nil, errors.New("API key or secret key is empty")
		}
		timestamp := c.getTimestamp()
		req.SetHeaders(map[string]string{
			"X-BAPI-API-KEY":     c.APIKey,
			"X-BAPI-SIGN":        c.sign(timestamp, payload),
			"X-BAPI-SIGN-TYPE":   "2",
			"X-BAPI-TIMESTAMP":   timestamp,
			"X-BAPI-RECV-WINDOW": c.RecvWindow,
		})
	}

	raw, err := c.cb.Execute(func() (interface{}, error) {
		resp, err := req.Execute(method, endpoint)
		if err != nil {
			return nil, errors.Wrap(err, "request failed")
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, errors.Errorf("unexpected status code %d: %s", resp.StatusCode(), resp.String())
		}
		return resp.Body(), nil
	})
	if err != nil {
		status = "error"
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(raw.([]byte), &apiResp); err != nil {
		status = "error"
		return nil, errors.Wrap(err, "failed to parse response")
	}

	if apiResp.RetCode != 0 {
		status = "rejected"
		return &apiResp, &APIError{Endpoint: endpoint, Code: apiResp.RetCode, Message: apiResp.RetMsg}
	}

	return &apiResp, nil
}

// Ping проверяет доступность API
func (c *BybitHTTPClient) Ping(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/market/time", nil, nil, false)
	return err
}

type instrumentsResult struct {
	List []struct {
		Symbol         string `json:"symbol"`
		Status         string `json:"status"`
		LeverageFilter struct {
			MinLeverage string `json:"minLeverage"`
			MaxLeverage string `json:"maxLeverage"`
		} `json:"leverageFilter"`
		PriceFilter struct {
			TickSize string `json:"tickSize"`
		} `json:"priceFilter"`
		LotSizeFilter struct {
			MinOrderQty string `json:"minOrderQty"`
			MaxOrderQty string `json:"maxOrderQty"`
			QtyStep     string `json:"qtyStep"`
		} `json:"lotSizeFilter"`
	} `json:"list"`
}

// GetInstrument получает торговые ограничения символа
func (c *BybitHTTPClient) GetInstrument(ctx context.Context, category, symbol string) (*entity.Instrument, error) {
	params := map[string]string{
		"category": category,
		"symbol":   symbol,
	}
	resp, err := c.doRequest(ctx, http.MethodGet, "/market/instruments-info", params, nil, false)
	if err != nil {
		return nil, err
	}

	var result instrumentsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, errors.Wrap(err, "failed to parse instruments response")
	}
	if len(result.List) == 0 {
		return nil, errors.Wrapf(entity.ErrSymbolNotFound, "symbol %s", symbol)
	}

	info := result.List[0]
	return &entity.Instrument{
		Symbol:      info.Symbol,
		Status:      info.Status,
		MinOrderQty: parseDecimal(info.LotSizeFilter.MinOrderQty),
		MaxOrderQty: parseDecimal(info.LotSizeFilter.MaxOrderQty),
		QtyStep:     parseDecimal(info.LotSizeFilter.QtyStep),
		TickSize:    parseDecimal(info.PriceFilter.TickSize),
		MinLeverage: parseDecimal(info.LeverageFilter.MinLeverage),
		MaxLeverage: parseDecimal(info.LeverageFilter.MaxLeverage),
	}, nil
}

// GetLastPrice возвращает цену последней сделки
func (c *BybitHTTPClient) GetLastPrice(ctx context.Context, category, symbol string) (decimal.Decimal, error) {
	params := map[string]string{
		"category": category,
		"symbol":   symbol,
	}
	resp, err := c.doRequest(ctx, http.MethodGet, "/market/tickers", params, nil, false)
	if err != nil {
		return decimal.Zero, err
	}

	var result struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to parse ticker response")
	}
	if len(result.List) == 0 {
		return decimal.Zero, errors.Wrapf(entity.ErrSymbolNotFound, "symbol %s", symbol)
	}

	price, err := decimal.NewFromString(result.List[0].LastPrice)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "invalid last price %q", result.List[0].LastPrice)
	}
	return price, nil
}

// SetLeverage выставляет одинаковое плечо на покупку и продажу.
// "leverage not modified" не считается ошибкой.
func (c *BybitHTTPClient) SetLeverage(ctx context.Context, category, symbol string, leverage int) error {
	body := map[string]string{
		"category":     category,
		"symbol":       symbol,
		"buyLeverage":  strconv.Itoa(leverage),
		"sellLeverage": strconv.Itoa(leverage),
	}
	_, err := c.doRequest(ctx, http.MethodPost, "/position/set-leverage", nil, body, true)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == RetCodeLeverageNotModified {
		return nil
	}
	return err
}

// CreateOrder размещает ордер
func (c *BybitHTTPClient) CreateOrder(ctx context.Context, order *BybitOrderRequest) (*APIResponse, error) {
	return c.doRequest(ctx, http.MethodPost, "/order/create", nil, order, true)
}

// CancelOrder отменяет ордер по orderId
func (c *BybitHTTPClient) CancelOrder(ctx context.Context, category, symbol, orderID string) (*APIResponse, error) {
	body := map[string]string{
		"category": category,
		"symbol":   symbol,
		"orderId":  orderID,
	}
	return c.doRequest(ctx, http.MethodPost, "/order/cancel", nil, body, true)
}

// CancelAllOrders отменяет все активные ордера по символу
func (c *BybitHTTPClient) CancelAllOrders(ctx context.Context, category, symbol string) (*APIResponse, error) {
	body := map[string]string{
		"category": category,
		"symbol":   symbol,
	}
	return c.doRequest(ctx, http.MethodPost, "/order/cancel-all", nil, body, true)
}

// GetPositions получает позиции по символу
func (c *BybitHTTPClient) GetPositions(ctx context.Context, category, symbol string) ([]entity.Position, error) {
	params := map[string]string{
		"category": category,
		"symbol":   symbol,
	}
	resp, err := c.doRequest(ctx, http.MethodGet, "/position/list", params, nil, true)
	if err != nil {
		return nil, err
	}

	var result struct {
		List []entity.Position `json:"list"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, errors.Wrap(err, "failed to parse position response")
	}
	return result.List, nil
}

// GetWalletBalance получает баланс кошелька
func (c *BybitHTTPClient) GetWalletBalance(ctx context.Context, accountType string) (*APIResponse, error) {
	params := map[string]string{
		"accountType": accountType,
	}
	return c.doRequest(ctx, http.MethodGet, "/account/wallet-balance", params, nil, true)
}

// GetCircuitBreaker возвращает circuit breaker для использования в других компонентах
func (c *BybitHTTPClient) GetCircuitBreaker() *gobreaker.CircuitBreaker {
	return c.cb
}

func parseDecimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}
