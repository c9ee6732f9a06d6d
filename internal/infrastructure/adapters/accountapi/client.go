// Package accountapi is the client for the product's account REST API
package accountapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/antidetect/dashboard_service/internal/pkg/requestctx"
	"github.com/antidetect/dashboard_service/pkg/circuitbreaker"
	"github.com/antidetect/dashboard_service/pkg/metrics"
	"github.com/antidetect/dashboard_service/pkg/tracing"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxResponseBytes = 4 << 20

// Config holds client settings
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	BreakerTimeout time.Duration
	BreakerTrips   uint32
}

// Client calls the account API on behalf of a signed-in user.
// The bearer token is taken from the request context.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	maxRetries int
	retryDelay time.Duration
	tracer     trace.Tracer
	logger     *zap.Logger
}

// NewClient creates an account API client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}

	breakerCfg := circuitbreaker.DefaultConfig("account_api")
	if cfg.BreakerTimeout > 0 {
		breakerCfg.Timeout = cfg.BreakerTimeout
	}
	if cfg.BreakerTrips > 0 {
		breakerCfg.FailureThreshold = cfg.BreakerTrips
	}
	breakerCfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		logger.Warn("Circuit breaker state changed",
			zap.String("name", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker:    circuitbreaker.New(breakerCfg),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		tracer:     tracing.Tracer("accountapi"),
		logger:     logger,
	}
}

// Login exchanges credentials for tokens
func (c *Client) Login(ctx context.Context, email, password string) (*entities.LoginResult, error) {
	var resp loginResponse
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("login: response has no access token")
	}
	return resp.toResult(), nil
}

// Logout revokes the current token upstream
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "logout", http.MethodPost, "/auth/logout", nil, nil)
}

// GetProfile returns the signed-in user
func (c *Client) GetProfile(ctx context.Context) (*entities.User, error) {
	var resp userPayload
	if err := c.do(ctx, "get_profile", http.MethodGet, "/account/profile", nil, &resp); err != nil {
		return nil, err
	}
	user := resp.toEntity()
	return &user, nil
}

// UpdateProfile saves profile changes and returns the updated user
func (c *Client) UpdateProfile(ctx context.Context, update entities.ProfileUpdate) (*entities.User, error) {
	var resp userPayload
	if err := c.do(ctx, "update_profile", http.MethodPut, "/account/profile", update, &resp); err != nil {
		return nil, err
	}
	user := resp.toEntity()
	return &user, nil
}

// ChangePassword changes the account password
func (c *Client) ChangePassword(ctx context.Context, change entities.PasswordChange) error {
	return c.do(ctx, "change_password", http.MethodPut, "/account/password", change, nil)
}

// UpdateSecurity changes account security settings
func (c *Client) UpdateSecurity(ctx context.Context, update entities.SecurityUpdate) error {
	return c.do(ctx, "update_security", http.MethodPut, "/account/security", update, nil)
}

// GetBalance returns the account balance
func (c *Client) GetBalance(ctx context.Context) (*entities.Balance, error) {
	var resp balancePayload
	if err := c.do(ctx, "get_balance", http.MethodGet, "/account/balance", nil, &resp); err != nil {
		return nil, err
	}
	currency := resp.Currency
	if currency == "" {
		currency = entities.DefaultCurrency
	}
	return &entities.Balance{Amount: resp.Balance, Currency: currency, UpdatedAt: time.Now().UTC()}, nil
}

// GetTransactionHistory returns the user's transactions in the order the API reports them
func (c *Client) GetTransactionHistory(ctx context.Context) ([]entities.Transaction, error) {
	var resp []transactionPayload
	if err := c.do(ctx, "get_transactions", http.MethodGet, "/transactions", nil, &resp); err != nil {
		return nil, err
	}
	txs := make([]entities.Transaction, 0, len(resp))
	for _, p := range resp {
		txs = append(txs, p.toEntity())
	}
	return txs, nil
}

// GetPaymentFees returns the live fee schedule. Both a bare method->rate object
// and one nested under "fees" are accepted.
func (c *Client) GetPaymentFees(ctx context.Context) (entities.FeeSchedule, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "get_fees", http.MethodGet, "/payments/fees", nil, &raw); err != nil {
		return nil, err
	}

	doc := gjson.ParseBytes(raw)
	if fees := doc.Get("fees"); fees.IsObject() {
		doc = fees
	}
	if !doc.IsObject() {
		return nil, fmt.Errorf("get_fees: unexpected response shape")
	}

	schedule := make(entities.FeeSchedule)
	var parseErr error
	doc.ForEach(func(key, value gjson.Result) bool {
		rate, err := decimal.NewFromString(value.String())
		if err != nil {
			parseErr = fmt.Errorf("get_fees: invalid rate for %s: %w", key.String(), err)
			return false
		}
		schedule[entities.PaymentMethod(strings.ToLower(key.String()))] = rate
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return schedule, nil
}

// CreateDeposit creates a pending deposit transaction
func (c *Client) CreateDeposit(ctx context.Context, req entities.DepositRequest) (*entities.DepositResult, error) {
	var resp depositPayload
	if err := c.do(ctx, "create_deposit", http.MethodPost, "/deposits", req, &resp); err != nil {
		return nil, err
	}
	result := resp.toEntity()
	if result.TransactionID == "" {
		return nil, fmt.Errorf("create_deposit: response has no transaction id")
	}
	return &result, nil
}

const opProcessPayment = "process_payment"

// ProcessPayment tells the payment service the user has paid. A reply with
// success=false is returned as a result, not an error.
func (c *Client) ProcessPayment(ctx context.Context, transactionID string) (*entities.PaymentResult, error) {
	var resp entities.PaymentResult
	body := map[string]string{"transaction_id": transactionID}
	if err := c.do(ctx, opProcessPayment, http.MethodPost, "/payments/process", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckTransactionStatus returns the current status of a transaction
func (c *Client) CheckTransactionStatus(ctx context.Context, transactionID string) (entities.TransactionStatus, error) {
	var resp statusPayload
	path := "/transactions/" + url.PathEscape(transactionID) + "/status"
	if err := c.do(ctx, "check_status", http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return normalizeStatus(resp.Status), nil
}

// BreakerState exposes the breaker state for health reporting
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

// do performs one API operation. GETs are retried with exponential backoff on
// transport and 5xx errors; writes are sent once.
func (c *Client) do(ctx context.Context, operation, method, path string, body, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, "accountapi."+operation, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("accountapi.path", path),
	))
	defer span.End()

	start := time.Now()
	err := c.doWithRetry(ctx, operation, method, path, body, out)

	result := "success"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.UpstreamRequestDuration.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
	return err
}

func (c *Client) doWithRetry(ctx context.Context, operation, method, path string, body, out interface{}) error {
	attempts := 1
	if method == http.MethodGet {
		attempts += c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(1<<(attempt-1))):
			}
		}

		var clientErr error
		err := c.breaker.Execute(ctx, func() error {
			err := c.send(ctx, operation, method, path, body, out)
			if apiErr, ok := AsAPIError(err); ok && apiErr.IsClientError() {
				// 4xx is the caller's problem, not an unhealthy upstream
				clientErr = err
				return nil
			}
			return err
		})
		if clientErr != nil {
			return clientErr
		}
		if err == nil {
			return nil
		}
		if circuitbreaker.IsRejection(err) {
			return fmt.Errorf("%s: %w", operation, ErrUnavailable)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", operation, ctx.Err())
		}

		lastErr = err
		c.logger.Warn("Account API request failed",
			zap.String("operation", operation),
			zap.String("user_id", requestctx.UserID(ctx)),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return lastErr
}

func (c *Client) send(ctx context.Context, operation, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := requestctx.AccessToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if requestID := requestctx.RequestID(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(operation, resp.StatusCode, raw)
	}

	payload, err := unwrapEnvelope(operation, resp.StatusCode, raw)
	if err != nil {
		return err
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", operation, err)
	}
	return nil
}

// resultOperations reply with a {success, message} result of their own.
// success=false there is an answer (e.g. payment still pending), not a failed request.
var resultOperations = map[string]bool{
	opProcessPayment: true,
}

// unwrapEnvelope strips a {"success": ..., "data": ...} wrapper when present
func unwrapEnvelope(operation string, status int, raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 || !gjson.ValidBytes(raw) {
		return raw, nil
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return raw, nil
	}
	if resultOperations[operation] {
		if data := doc.Get("data"); data.IsObject() {
			return []byte(data.Raw), nil
		}
		return raw, nil
	}
	success := doc.Get("success")
	if success.Exists() && success.Type == gjson.False {
		return nil, &APIError{
			StatusCode: status,
			Code:       doc.Get("code").String(),
			Message:    firstNonEmpty(doc.Get("message").String(), doc.Get("error").String(), "request was not successful"),
			Operation:  operation,
		}
	}
	if data := doc.Get("data"); data.Exists() && success.Exists() {
		return []byte(data.Raw), nil
	}
	return raw, nil
}

func parseError(operation string, status int, raw []byte) error {
	apiErr := &APIError{StatusCode: status, Operation: operation}
	if gjson.ValidBytes(raw) {
		doc := gjson.ParseBytes(raw)
		apiErr.Code = doc.Get("code").String()
		apiErr.Message = firstNonEmpty(doc.Get("message").String(), doc.Get("error.message").String(), doc.Get("error").String())
		if details := doc.Get("details"); details.IsObject() {
			if m, ok := details.Value().(map[string]interface{}); ok {
				apiErr.Details = m
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func normalizeStatus(raw string) entities.TransactionStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "complete", "success", "succeeded", "paid":
		return entities.TransactionStatusCompleted
	case "failed", "failure", "error", "cancelled", "canceled", "expired", "rejected":
		return entities.TransactionStatusFailed
	case "pending", "processing", "created", "awaiting_payment":
		return entities.TransactionStatusPending
	default:
		return entities.TransactionStatus(strings.ToLower(raw))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
