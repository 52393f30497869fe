package payments

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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	PhonePeEnvironmentSandbox    = "sandbox"
	PhonePeEnvironmentProduction = "production"

	phonePeSandboxBaseURL    = "https://api-preprod.phonepe.com/apis/pg-sandbox"
	phonePeSandboxAuthURL    = "https://api-preprod.phonepe.com/apis/pg-sandbox/v1/oauth/token"
	phonePeProductionBaseURL = "https://api.phonepe.com/apis/pg"
	phonePeProductionAuthURL = "https://api.phonepe.com/apis/identity-manager/v1/oauth/token"

	phonePeDefaultTimeout       = 15 * time.Second
	phonePeDefaultClientVersion = "1"
	phonePeFlowCheckout         = "PG_CHECKOUT"
	phonePeMaxMerchantOrderID   = 63
	phonePeMaxResponseBytes     = 1 << 20
)

var tracer = otel.Tracer("github.com/Sushant736/propscholar-monorepo-sub000/internal/payments")

// HTTPDoer is the subset of *http.Client used by the PhonePe provider.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PhonePeConfig configures the PhonePe Standard Checkout provider.
type PhonePeConfig struct {
	ClientID         string
	ClientSecret     string
	ClientVersion    string
	Environment      string
	BaseURL          string
	AuthURL          string
	CallbackUsername string
	CallbackPassword string
	Timeout          time.Duration
	HTTPClient       HTTPDoer
	Clock            func() time.Time
	Logger           Logger
}

// PhonePeProvider implements Gateway against the PhonePe Standard Checkout v2 API.
type PhonePeProvider struct {
	baseURL      string
	http         HTTPDoer
	tokens       *phonePeTokenSource
	callbackHash string
	timeout      time.Duration
	clock        func() time.Time
	logger       Logger
}

var _ Gateway = (*PhonePeProvider)(nil)

// NewPhonePeProvider validates the configuration and constructs a provider.
func NewPhonePeProvider(cfg PhonePeConfig) (*PhonePeProvider, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, errors.New("phonepe: client id is required")
	}
	secret := strings.TrimSpace(cfg.ClientSecret)
	if secret == "" {
		return nil, errors.New("phonepe: client secret is required")
	}
	username := strings.TrimSpace(cfg.CallbackUsername)
	password := strings.TrimSpace(cfg.CallbackPassword)
	if username == "" || password == "" {
		return nil, errors.New("phonepe: callback credentials are required")
	}

	baseURL, authURL, err := phonePeEndpoints(cfg)
	if err != nil {
		return nil, err
	}

	version := strings.TrimSpace(cfg.ClientVersion)
	if version == "" {
		version = phonePeDefaultClientVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = phonePeDefaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PhonePeProvider{
		baseURL: baseURL,
		http:    client,
		tokens: &phonePeTokenSource{
			authURL:       authURL,
			clientID:      clientID,
			clientSecret:  secret,
			clientVersion: version,
			http:          client,
			clock:         clock,
		},
		callbackHash: callbackAuthorization(username, password),
		timeout:      timeout,
		clock:        clock,
		logger:       logger,
	}, nil
}

func phonePeEndpoints(cfg PhonePeConfig) (string, string, error) {
	var baseURL, authURL string
	switch strings.ToLower(strings.TrimSpace(cfg.Environment)) {
	case "", PhonePeEnvironmentSandbox:
		baseURL, authURL = phonePeSandboxBaseURL, phonePeSandboxAuthURL
	case PhonePeEnvironmentProduction:
		baseURL, authURL = phonePeProductionBaseURL, phonePeProductionAuthURL
	default:
		return "", "", fmt.Errorf("phonepe: unsupported environment %q", cfg.Environment)
	}
	if override := strings.TrimSpace(cfg.BaseURL); override != "" {
		baseURL = override
	}
	if override := strings.TrimSpace(cfg.AuthURL); override != "" {
		authURL = override
	}
	return strings.TrimRight(baseURL, "/"), authURL, nil
}

type phonePeCreateRequest struct {
	MerchantOrderID string             `json:"merchantOrderId"`
	Amount          int64              `json:"amount"`
	PaymentFlow     phonePePaymentFlow `json:"paymentFlow"`
}

type phonePePaymentFlow struct {
	Type         string              `json:"type"`
	MerchantURLs phonePeMerchantURLs `json:"merchantUrls"`
}

type phonePeMerchantURLs struct {
	RedirectURL string `json:"redirectUrl"`
}

type phonePeCreateResponse struct {
	OrderID     string `json:"orderId"`
	State       string `json:"state"`
	ExpireAt    int64  `json:"expireAt"`
	RedirectURL string `json:"redirectUrl"`
}

type phonePeStatusResponse struct {
	OrderID         string                 `json:"orderId"`
	MerchantOrderID string                 `json:"merchantOrderId"`
	State           string                 `json:"state"`
	Amount          int64                  `json:"amount"`
	ExpireAt        int64                  `json:"expireAt"`
	PaymentDetails  []phonePePaymentDetail `json:"paymentDetails"`
}

type phonePePaymentDetail struct {
	PaymentMode       string `json:"paymentMode"`
	TransactionID     string `json:"transactionId"`
	Timestamp         int64  `json:"timestamp"`
	Amount            int64  `json:"amount"`
	State             string `json:"state"`
	ErrorCode         string `json:"errorCode"`
	DetailedErrorCode string `json:"detailedErrorCode"`
}

type phonePeErrorResponse struct {
	Code      string `json:"code"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// CreateOrder opens a Standard Checkout payment order and returns the hosted payment page.
func (p *PhonePeProvider) CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResult, error) {
	merchantOrderID := strings.TrimSpace(req.MerchantOrderID)
	if merchantOrderID == "" || len(merchantOrderID) > phonePeMaxMerchantOrderID {
		return CreateOrderResult{}, fmt.Errorf("%w: merchant order id must be 1-%d characters", ErrInvalidRequest, phonePeMaxMerchantOrderID)
	}
	redirectURL := strings.TrimSpace(req.RedirectURL)
	if redirectURL == "" {
		return CreateOrderResult{}, fmt.Errorf("%w: redirect url is required", ErrInvalidRequest)
	}
	amount := ToMinorUnits(req.Amount)
	if amount <= 0 {
		return CreateOrderResult{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	ctx, span := tracer.Start(ctx, "payments.phonepe.create_order")
	defer span.End()
	span.SetAttributes(attribute.String("payments.merchant_order_id", merchantOrderID), attribute.Int64("payments.amount", amount))

	payload := phonePeCreateRequest{
		MerchantOrderID: merchantOrderID,
		Amount:          amount,
		PaymentFlow: phonePePaymentFlow{
			Type:         phonePeFlowCheckout,
			MerchantURLs: phonePeMerchantURLs{RedirectURL: redirectURL},
		},
	}

	var resp phonePeCreateResponse
	raw, err := p.call(ctx, "create order", http.MethodPost, p.baseURL+"/checkout/v2/pay", payload, &resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create order failed")
		p.logger(ctx, "payments.phonepe.order.create_failed", map[string]any{
			"merchantOrderId": merchantOrderID,
			"error":           err.Error(),
		})
		return CreateOrderResult{}, err
	}

	result := CreateOrderResult{
		GatewayOrderID: strings.TrimSpace(resp.OrderID),
		RedirectURL:    strings.TrimSpace(resp.RedirectURL),
		ExpireAt:       millisToTime(resp.ExpireAt),
		State:          State(strings.ToUpper(strings.TrimSpace(resp.State))),
		Raw:            raw,
	}
	p.logger(ctx, "payments.phonepe.order.created", map[string]any{
		"merchantOrderId": merchantOrderID,
		"gatewayOrderId":  result.GatewayOrderID,
		"state":           string(result.State),
	})
	return result, nil
}

// GetOrderStatus queries the gateway for the current state of a merchant order.
func (p *PhonePeProvider) GetOrderStatus(ctx context.Context, merchantOrderID string) (OrderStatusResult, error) {
	merchantOrderID = strings.TrimSpace(merchantOrderID)
	if merchantOrderID == "" {
		return OrderStatusResult{}, fmt.Errorf("%w: merchant order id is required", ErrInvalidRequest)
	}

	ctx, span := tracer.Start(ctx, "payments.phonepe.order_status")
	defer span.End()
	span.SetAttributes(attribute.String("payments.merchant_order_id", merchantOrderID))

	endpoint := fmt.Sprintf("%s/checkout/v2/order/%s/status?details=false", p.baseURL, url.PathEscape(merchantOrderID))
	var resp phonePeStatusResponse
	raw, err := p.call(ctx, "order status", http.MethodGet, endpoint, nil, &resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order status failed")
		return OrderStatusResult{}, err
	}

	result := OrderStatusResult{
		GatewayOrderID:  strings.TrimSpace(resp.OrderID),
		MerchantOrderID: merchantOrderID,
		State:           State(strings.ToUpper(strings.TrimSpace(resp.State))),
		Amount:          resp.Amount,
		ExpireAt:        millisToTime(resp.ExpireAt),
		Attempts:        convertAttempts(resp.PaymentDetails),
		Raw:             raw,
	}
	p.logger(ctx, "payments.phonepe.order.status", map[string]any{
		"merchantOrderId": merchantOrderID,
		"state":           string(result.State),
		"attempts":        len(result.Attempts),
	})
	return result, nil
}

// call performs an authorised JSON request, refreshing the access token once on 401.
func (p *PhonePeProvider) call(ctx context.Context, op, method, endpoint string, payload any, target any) (map[string]any, error) {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, &GatewayError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = encoded
	}

	for attempt := 0; attempt < 2; attempt++ {
		token, err := p.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		status, data, err := p.send(ctx, method, endpoint, token, body)
		if err != nil {
			return nil, &GatewayError{Op: op, Err: err}
		}
		if status == http.StatusUnauthorized && attempt == 0 {
			p.tokens.Invalidate()
			continue
		}
		if status < 200 || status >= 300 {
			return nil, newGatewayError(op, status, data)
		}

		if err := json.Unmarshal(data, target); err != nil {
			return nil, &GatewayError{Op: op, StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
		}
		raw := make(map[string]any)
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, &GatewayError{Op: op, StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
		}
		return raw, nil
	}
	return nil, &GatewayError{Op: op, StatusCode: http.StatusUnauthorized, Message: "access token rejected"}
}

func (p *PhonePeProvider) send(ctx context.Context, method, endpoint, token string, body []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, phonePeMaxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

func newGatewayError(op string, status int, data []byte) *GatewayError {
	gwErr := &GatewayError{Op: op, StatusCode: status}
	var body phonePeErrorResponse
	if err := json.Unmarshal(data, &body); err == nil {
		gwErr.Code = strings.TrimSpace(body.Code)
		if gwErr.Code == "" {
			gwErr.Code = strings.TrimSpace(body.ErrorCode)
		}
		gwErr.Message = strings.TrimSpace(body.Message)
	}
	if gwErr.Message == "" {
		gwErr.Message = http.StatusText(status)
	}
	return gwErr
}

func convertAttempts(details []phonePePaymentDetail) []PaymentAttempt {
	if len(details) == 0 {
		return nil
	}
	attempts := make([]PaymentAttempt, 0, len(details))
	for _, detail := range details {
		attempts = append(attempts, PaymentAttempt{
			TransactionID:     strings.TrimSpace(detail.TransactionID),
			PaymentMode:       strings.TrimSpace(detail.PaymentMode),
			State:             State(strings.ToUpper(strings.TrimSpace(detail.State))),
			Amount:            detail.Amount,
			ErrorCode:         strings.TrimSpace(detail.ErrorCode),
			DetailedErrorCode: strings.TrimSpace(detail.DetailedErrorCode),
			Timestamp:         millisToTime(detail.Timestamp),
		})
	}
	return attempts
}

func millisToTime(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
