package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tvbridge/internal/bybit/entity"
	"tvbridge/internal/bybit/service"
	"tvbridge/pkg/jwt"
	"tvbridge/pkg/middleware"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrders struct {
	placed    []entity.OrderRequest
	cancelled []string
	symbols   []string
	position  *entity.Position
	err       error
}

func (f *fakeOrders) ok() (*service.APIResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.APIResponse{RetCode: 0, RetMsg: "OK", Result: json.RawMessage(`{"orderId":"1"}`)}, nil
}

func (f *fakeOrders) PlaceOrder(_ context.Context, req entity.OrderRequest) (*service.APIResponse, error) {
	f.placed = append(f.placed, req)
	return f.ok()
}

func (f *fakeOrders) CancelOrder(_ context.Context, symbol, orderID string) (*service.APIResponse, error) {
	f.cancelled = append(f.cancelled, symbol+"/"+orderID)
	return f.ok()
}

func (f *fakeOrders) CancelAllOrders(_ context.Context, symbol string) (*service.APIResponse, error) {
	f.symbols = append(f.symbols, symbol)
	return f.ok()
}

func (f *fakeOrders) GetPosition(_ context.Context, symbol string) (*entity.Position, error) {
	f.symbols = append(f.symbols, symbol)
	return f.position, f.err
}

func (f *fakeOrders) ClosePosition(_ context.Context, symbol string) (*service.APIResponse, error) {
	f.symbols = append(f.symbols, symbol)
	return f.ok()
}

func (f *fakeOrders) GetWalletBalance(_ context.Context) (*service.APIResponse, error) {
	return f.ok()
}

type fakeHealth struct {
	health service.Health
}

func (f fakeHealth) Check(context.Context) service.Health {
	return f.health
}

func newTestRouter(orders *fakeOrders, opts RouterOptions) http.Handler {
	h := NewBybitHandler(orders, fakeHealth{health: service.Health{Exchange: "up", CircuitBreaker: "closed"}}, "tv-secret")
	return NewRouter(h, opts)
}

func do(t *testing.T, router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateOrder(t *testing.T) {
	orders := &fakeOrders{}
	router := newTestRouter(orders, RouterOptions{})

	rec := do(t, router, http.MethodPost, "/order",
		`{"symbol":"btcusdt","side":"Buy","order_type":"Limit","quantity":0.01,"price":50000,"leverage":3,"tp_pct":2}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			RetCode int             `json:"retCode"`
			Result  json.RawMessage `json:"result"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.JSONEq(t, `{"orderId":"1"}`, string(resp.Data.Result))

	require.Len(t, orders.placed, 1)
	got := orders.placed[0]
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.Equal(t, entity.SideBuy, got.Side)
	assert.Equal(t, 3, got.Leverage)
	assert.Equal(t, "2", got.TakeProfitPct.String())
}

func TestCreateOrderErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
		wantDetail string
		wantCalled bool
	}{
		{
			name:       "broken json",
			body:       `{"symbol":`,
			wantStatus: http.StatusBadRequest,
			wantDetail: "invalid JSON",
		},
		{
			name:       "missing symbol",
			body:       `{"side":"Buy","order_type":"Market","qty":1}`,
			wantStatus: http.StatusBadRequest,
			wantDetail: "symbol is required",
		},
		{
			name:       "limit without price",
			body:       `{"symbol":"BTCUSDT","side":"Buy","order_type":"Limit","qty":1}`,
			wantStatus: http.StatusBadRequest,
			wantDetail: "price",
		},
		{
			name:       "quantity below minimum",
			body:       `{"symbol":"BTCUSDT","side":"Buy","order_type":"Market","qty":0.0001}`,
			serviceErr: errors.Wrap(entity.ErrValidation, "Order quantity (0.0001) is less than minimum allowed quantity (0.001) for BTCUSDT"),
			wantStatus: http.StatusBadRequest,
			wantDetail: "less than minimum",
			wantCalled: true,
		},
		{
			name:       "exchange failure",
			body:       `{"symbol":"BTCUSDT","side":"Buy","order_type":"Market","qty":1}`,
			serviceErr: &service.APIError{Endpoint: "/v5/order/create", Code: 10001, Message: "params error"},
			wantStatus: http.StatusInternalServerError,
			wantDetail: "params error",
			wantCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := &fakeOrders{err: tt.serviceErr}
			router := newTestRouter(orders, RouterOptions{})

			rec := do(t, router, http.MethodPost, "/order", tt.body, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp struct {
				Detail string `json:"detail"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp.Detail, tt.wantDetail)
			assert.Equal(t, tt.wantCalled, len(orders.placed) > 0)
		})
	}
}

func TestWebhook(t *testing.T) {
	orders := &fakeOrders{}
	router := newTestRouter(orders, RouterOptions{JWTSecret: "jwt-secret"})

	alert := `{"symbol":"ETHUSDT","side":"sell","order_type":"market","qty":"0.5","strategy":"tv","passphrase":"%s"}`

	// TradingView шлёт text/plain и не умеет в Authorization
	rec := do(t, router, http.MethodPost, "/webhook", strings.Replace(alert, "%s", "tv-secret", 1),
		map[string]string{"Content-Type": "text/plain; charset=utf-8"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, orders.placed, 1)
	assert.Equal(t, entity.SideSell, orders.placed[0].Side)

	rec = do(t, router, http.MethodPost, "/webhook", strings.Replace(alert, "%s", "guess", 1), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail":"invalid passphrase"}`, rec.Body.String())
	assert.Len(t, orders.placed, 1)
}

func TestDirectAPIRequiresToken(t *testing.T) {
	orders := &fakeOrders{}
	router := newTestRouter(orders, RouterOptions{JWTSecret: "jwt-secret"})

	rec := do(t, router, http.MethodGet, "/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := jwt.GenerateToken("jwt-secret", "bot", time.Hour)
	require.NoError(t, err)
	rec = do(t, router, http.MethodGet, "/balance", "", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOrderLogCarriesTokenClient(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	router := newTestRouter(&fakeOrders{}, RouterOptions{JWTSecret: "jwt-secret"})
	token, err := jwt.GenerateToken("jwt-secret", "desk-bot", time.Hour)
	require.NoError(t, err)

	rec := do(t, router, http.MethodPost, "/order", `{"symbol":"BTCUSDT","side":"Buy","order_type":"Market","qty":0.01}`,
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var received *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "BybitHandler: Received order request" {
			received = e
		}
	}
	require.NotNil(t, received)
	assert.Equal(t, "desk-bot", received.Data["client"])
	assert.Equal(t, "api", received.Data["source"])
}

func TestRateLimitIgnoresForwardedFor(t *testing.T) {
	rl := middleware.NewRateLimiter(1, time.Minute)
	defer rl.Stop()
	router := newTestRouter(&fakeOrders{}, RouterOptions{RateLimiter: rl})

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("2.2.2.2"), "spoofed header must not reset the limit")
}

func TestRateLimitTrustsProxyWhenConfigured(t *testing.T) {
	rl := middleware.NewRateLimiter(1, time.Minute)
	defer rl.Stop()
	router := newTestRouter(&fakeOrders{}, RouterOptions{RateLimiter: rl, TrustProxy: true})

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	// за доверенным прокси каждый реальный клиент получает своё окно
	assert.Equal(t, http.StatusOK, send("1.1.1.1"))
	assert.Equal(t, http.StatusOK, send("2.2.2.2"))
	assert.Equal(t, http.StatusTooManyRequests, send("1.1.1.1"))
}

func TestGetPosition(t *testing.T) {
	orders := &fakeOrders{}
	router := newTestRouter(orders, RouterOptions{})

	rec := do(t, router, http.MethodGet, "/position/btcusdt", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success","data":null}`, rec.Body.String())
	assert.Equal(t, []string{"BTCUSDT"}, orders.symbols)

	orders.position = &entity.Position{Symbol: "BTCUSDT", Side: "Buy", Size: "0.01", Leverage: "5"}
	rec = do(t, router, http.MethodGet, "/position/BTCUSDT", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data entity.Position `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "0.01", resp.Data.Size)
}

func TestClosePosition(t *testing.T) {
	orders := &fakeOrders{}
	router := newTestRouter(orders, RouterOptions{})

	rec := do(t, router, http.MethodPost, "/close-position", `{"symbol":"solusdt"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"SOLUSDT"}, orders.symbols)

	orders.err = errors.Wrap(entity.ErrNoPosition, "No open position for SOLUSDT")
	rec = do(t, router, http.MethodPost, "/close-position", `{"symbol":"SOLUSDT"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No open position for SOLUSDT")
}

func TestCancelOrders(t *testing.T) {
	orders := &fakeOrders{}
	router := newTestRouter(orders, RouterOptions{})

	rec := do(t, router, http.MethodPost, "/cancel-order", `{"symbol":"BTCUSDT","order_id":"abc"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"BTCUSDT/abc"}, orders.cancelled)

	rec = do(t, router, http.MethodPost, "/cancel-order", `{"symbol":"BTCUSDT"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail":"order_id is required"}`, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/cancel-all-orders", `{"symbol":"ethusdt"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ETHUSDT"}, orders.symbols)
}

func TestHealthAndReady(t *testing.T) {
	orders := &fakeOrders{}
	router := newTestRouter(orders, RouterOptions{})

	rec := do(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(t, router, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	h := NewBybitHandler(orders, fakeHealth{health: service.Health{Exchange: "down", Error: "timeout"}}, "")
	rec = do(t, NewRouter(h, RouterOptions{}), http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "timeout")
}

func TestMetricsBasicAuth(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	})
	router := newTestRouter(&fakeOrders{}, RouterOptions{
		MetricsUser:     "prom",
		MetricsPassword: "scrape",
		MetricsHandler:  metricsHandler,
	})

	rec := do(t, router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.SetBasicAuth("prom", "scrape")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())
}
