package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
)

const maxResponseBody = 64 << 10

// GatewayConfig holds configuration specific to the HTTP SMS gateway.
type GatewayConfig struct {
	URL    string `mapstructure:"GATEWAY_URL"`
	Method string `mapstructure:"GATEWAY_METHOD"`
	// ParamsJSON names the query parameters, e.g.
	// {"phone":"mobileNumber","message":"message","app":"application","app_value":"SCADA"}.
	ParamsJSON            string        `mapstructure:"GATEWAY_PARAMS_JSON"`
	ConnectTimeout        time.Duration `mapstructure:"GATEWAY_CONNECT_TIMEOUT"`
	ResponseHeaderTimeout time.Duration `mapstructure:"GATEWAY_RESPONSE_HEADER_TIMEOUT"`
	RequestTimeout        time.Duration `mapstructure:"GATEWAY_REQUEST_TIMEOUT"`
}

// ParamMapping maps logical request fields to the gateway's parameter names.
type ParamMapping struct {
	Phone    string `json:"phone"`
	Message  string `json:"message"`
	App      string `json:"app"`
	AppValue string `json:"app_value"`
}

// ParseParamMapping decodes and checks a parameter mapping.
func ParseParamMapping(raw string) (ParamMapping, error) {
	var m ParamMapping
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return m, fmt.Errorf("invalid gateway parameter mapping: %w", err)
	}
	if m.Phone == "" || m.Message == "" {
		return m, errors.New("gateway parameter mapping needs both \"phone\" and \"message\"")
	}
	return m, nil
}

// HTTPGatewayProvider sends messages to an HTTP gateway that takes its
// arguments in the query string.
type HTTPGatewayProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	endpoint   *url.URL
	method     string
	params     ParamMapping
}

// NewHTTPGatewayProvider builds a provider. A nil httpClient gets one with the
// configured connect, response-header and overall timeouts.
func NewHTTPGatewayProvider(logger *slog.Logger, cfg GatewayConfig, httpClient *http.Client) (*HTTPGatewayProvider, error) {
	endpoint, err := url.Parse(cfg.URL)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid gateway url %q", cfg.URL)
	}
	params, err := ParseParamMapping(cfg.ParamsJSON)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(cfg.Method)
	switch method {
	case "":
		method = http.MethodPost
	case http.MethodPost, http.MethodGet:
	default:
		return nil, fmt.Errorf("unsupported gateway method %q", cfg.Method)
	}

	if httpClient == nil {
		httpClient = newGatewayClient(cfg)
	}

	return &HTTPGatewayProvider{
		logger:     logger.With("provider", "http_gateway"),
		httpClient: httpClient,
		endpoint:   endpoint,
		method:     method,
		params:     params,
	}, nil
}

func newGatewayClient(cfg GatewayConfig) *http.Client {
	connect := cfg.ConnectTimeout
	if connect <= 0 {
		connect = 5 * time.Second
	}
	header := cfg.ResponseHeaderTimeout
	if header <= 0 {
		header = 10 * time.Second
	}
	total := cfg.RequestTimeout
	if total <= 0 {
		total = 15 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext
	transport.ResponseHeaderTimeout = header
	return &http.Client{Transport: transport, Timeout: total}
}

// requestURL places the mapped parameters in the query string, keeping any
// query the configured URL already carries.
func (p *HTTPGatewayProvider) requestURL(details SendRequestDetails) string {
	u := *p.endpoint
	q := u.Query()
	q.Set(p.params.Phone, details.PhoneNumber)
	q.Set(p.params.Message, details.Message)
	if p.params.App != "" {
		q.Set(p.params.App, p.params.AppValue)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *HTTPGatewayProvider) Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error) {
	timer := prometheus.NewTimer(gatewayRequestDurationHist.WithLabelValues(p.GetName()))
	defer timer.ObserveDuration()

	httpReq, err := http.NewRequestWithContext(ctx, p.method, p.requestURL(details), nil)
	if err != nil {
		gatewayRequestsCounter.WithLabelValues(p.GetName(), "error").Inc()
		return nil, fmt.Errorf("failed to create gateway request: %w", err)
	}

	p.logger.DebugContext(ctx, "Sending gateway request", "method", p.method, "host", p.endpoint.Host,
		"job_id", details.JobID, "recipient_id", details.RecipientID)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		gatewayRequestsCounter.WithLabelValues(p.GetName(), "error").Inc()
		p.logger.ErrorContext(ctx, "Gateway request failed", "error", err, "job_id", details.JobID, "recipient_id", details.RecipientID)
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	raw := responseText(body)
	resp := &SendResponseDetails{RawResponse: raw, StatusCode: httpResp.StatusCode}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		gatewayRequestsCounter.WithLabelValues(p.GetName(), "http_error").Inc()
		resp.GatewayStatus = fmt.Sprintf("HTTP_%d", httpResp.StatusCode)
		p.logger.WarnContext(ctx, "Gateway returned error status", "status_code", httpResp.StatusCode,
			"job_id", details.JobID, "recipient_id", details.RecipientID)
		return resp, fmt.Errorf("gateway returned status %d: %s", httpResp.StatusCode, domain.ShortText(raw, 200))
	}
	if readErr != nil {
		gatewayRequestsCounter.WithLabelValues(p.GetName(), "error").Inc()
		return resp, fmt.Errorf("failed to read gateway response (status %d): %w", httpResp.StatusCode, readErr)
	}

	status, err := extractGatewayStatus(body)
	resp.GatewayStatus = status
	if err != nil {
		gatewayRequestsCounter.WithLabelValues(p.GetName(), "rejected").Inc()
		p.logger.WarnContext(ctx, "Gateway rejected message", "gateway_status", status,
			"job_id", details.JobID, "recipient_id", details.RecipientID)
		return resp, err
	}

	gatewayRequestsCounter.WithLabelValues(p.GetName(), "success").Inc()
	p.logger.InfoContext(ctx, "Gateway accepted message", "gateway_status", status, "status_code", httpResp.StatusCode,
		"job_id", details.JobID, "recipient_id", details.RecipientID)
	return resp, nil
}

// extractGatewayStatus reads a JSON body's "status" field, or derives one from
// a "success" flag. Other bodies, JSON or not, mean "SENT". A false success flag
// is reported as an error.
func extractGatewayStatus(body []byte) (string, error) {
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "SENT", nil
	}

	if v, ok := decoded["status"]; ok && v != nil {
		if s, isString := v.(string); isString {
			return s, nil
		}
		return fmt.Sprint(v), nil
	}
	if v, ok := decoded["success"].(bool); ok {
		if v {
			return "DELIVERED", nil
		}
		return "FAILED", errors.New("gateway reported success=false")
	}
	return "SENT", nil
}

// responseText turns a gateway body into storable text. A body cut at
// maxResponseBody may end inside a character, which is dropped; any other
// invalid byte sequence becomes U+FFFD.
func responseText(body []byte) string {
	if n := len(body); n > 0 {
		start := n - 1
		for start > 0 && n-start < utf8.UTFMax && !utf8.RuneStart(body[start]) {
			start--
		}
		if !utf8.FullRune(body[start:]) {
			body = body[:start]
		}
	}
	return strings.ToValidUTF8(string(body), "\uFFFD")
}

func (p *HTTPGatewayProvider) GetName() string {
	return "http_gateway"
}
