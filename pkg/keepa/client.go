package keepa

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dealcast/dealcast/internal/resilience"
)

const (
	defaultBaseURL = "https://api.keepa.com"
	userAgent      = "dealcast/1.0"
)

// Endpoint names used for cooldown gating and logging.
const (
	EndpointLightning = "lightningdeal"
	EndpointDeal      = "deal"
	EndpointProduct   = "product"
	EndpointToken     = "token"
)

// Client fetches deal feeds and product data from the Keepa API.
type Client interface {
	LightningDeals(ctx context.Context) ([]FlashDeal, error)
	Deals(ctx context.Context, query DealQuery) ([]BrowseDeal, error)
	Products(ctx context.Context, asins []string) ([]ProductDetail, error)
	Token(ctx context.Context) (*TokenStatus, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithDomain sets the Amazon locale queried by all calls.
func WithDomain(domainID int) Option {
	return func(c *httpClient) {
		c.domain = domainID
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing calls, matching the account's token refill.
func WithRateLimit(perMinute float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perMinute/60.0), burst)
	}
}

// WithCooldowns shares an endpoint cooldown registry with the caller, so the
// orchestrator can see which feeds are gated.
func WithCooldowns(gates *resilience.EndpointCooldowns) Option {
	return func(c *httpClient) {
		c.gates = gates
	}
}

// WithRetry overrides the transient-failure retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithRateLimitCooldown sets the gate window used when a 429 carries no
// refill hint.
func WithRateLimitCooldown(d time.Duration) Option {
	return func(c *httpClient) {
		c.cooldown = d
	}
}

type httpClient struct {
	apiKey   string
	baseURL  string
	domain   int
	http     *http.Client
	limiter  *rate.Limiter
	gates    *resilience.EndpointCooldowns
	retry    resilience.RetryConfig
	cooldown time.Duration
}

// NewClient creates a Keepa API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		domain:  DomainIT,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:  rate.NewLimiter(rate.Limit(20.0/60.0), 5),
		gates:    resilience.NewEndpointCooldowns(),
		retry:    resilience.DefaultRetryConfig(),
		cooldown: 60 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("keepa", "fetch")
	}
	return c
}

func (c *httpClient) LightningDeals(ctx context.Context) ([]FlashDeal, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("domainId", strconv.Itoa(c.domain))

	var out struct {
		Deals *[]FlashDeal `json:"deals"`
	}
	if err := c.fetch(ctx, EndpointLightning, http.MethodGet, "/lightningdeal?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if out.Deals == nil {
		return nil, resilience.NewBadResponseError(eris.New("keepa: lightning response missing deals field"))
	}
	return *out.Deals, nil
}

func (c *httpClient) Deals(ctx context.Context, query DealQuery) ([]BrowseDeal, error) {
	if query.DomainID == 0 {
		query.DomainID = c.domain
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, eris.Wrap(err, "keepa: marshal deal query")
	}

	q := url.Values{}
	q.Set("key", c.apiKey)

	var out struct {
		DR *[]BrowseDeal `json:"dr"`
	}
	if err := c.fetch(ctx, EndpointDeal, http.MethodPost, "/deal?"+q.Encode(), body, &out); err != nil {
		return nil, err
	}
	if out.DR == nil {
		return nil, resilience.NewBadResponseError(eris.New("keepa: deal response missing dr field"))
	}
	return *out.DR, nil
}

func (c *httpClient) Products(ctx context.Context, asins []string) ([]ProductDetail, error) {
	if len(asins) == 0 {
		return nil, nil
	}
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("domain", strconv.Itoa(c.domain))
	q.Set("asin", strings.Join(asins, ","))

	var out struct {
		Products *[]ProductDetail `json:"products"`
	}
	if err := c.fetch(ctx, EndpointProduct, http.MethodGet, "/product?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if out.Products == nil {
		return nil, resilience.NewBadResponseError(eris.New("keepa: product response missing products field"))
	}
	return *out.Products, nil
}

func (c *httpClient) Token(ctx context.Context) (*TokenStatus, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)

	var out TokenStatus
	if err := c.fetch(ctx, EndpointToken, http.MethodGet, "/token?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// fetch runs one logical API call: cooldown gate, transient retry, decode.
// Rate-limit and bad-response failures abort immediately; only transport
// errors and 5xx responses are retried.
func (c *httpClient) fetch(ctx context.Context, endpoint, method, path string, body []byte, out any) error {
	gate := c.gates.Get(endpoint)
	if !gate.Ready() {
		return resilience.NewRateLimitError(
			eris.Errorf("keepa: %s endpoint cooling down", endpoint), gate.Remaining())
	}

	respBody, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, endpoint, method, path, body)
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return resilience.NewBadResponseError(eris.Wrapf(err, "keepa: decode %s response", endpoint))
	}
	return nil
}

func (c *httpClient) do(ctx context.Context, endpoint, method, path string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "keepa: rate limiter wait")
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, eris.Wrapf(err, "keepa: create %s request", endpoint)
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "keepa: %s request", endpoint), 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "keepa: read %s response", endpoint), resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return respBody, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		wait := c.cooldown
		if ms := refillHint(respBody); ms > 0 {
			wait = time.Duration(ms) * time.Millisecond
		}
		c.gates.Get(endpoint).Strike(wait)
		zap.L().Warn("keepa: rate limited",
			zap.String("endpoint", endpoint),
			zap.Duration("retry_after", wait),
		)
		return nil, resilience.NewRateLimitError(
			eris.Errorf("keepa: %s returned 429", endpoint), wait)

	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("keepa: %s returned %d", endpoint, resp.StatusCode), resp.StatusCode)

	default:
		return nil, resilience.NewBadResponseError(
			eris.Errorf("keepa: %s returned %d: %s", endpoint, resp.StatusCode, snippet(respBody)))
	}
}

// refillHint extracts the token refill wait in milliseconds from a 429 body.
func refillHint(body []byte) int64 {
	var hint struct {
		RefillIn int64 `json:"refillIn"`
	}
	if err := json.Unmarshal(body, &hint); err != nil {
		return 0
	}
	return hint.RefillIn
}

func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
