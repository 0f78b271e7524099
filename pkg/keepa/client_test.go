package keepa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealcast/dealcast/internal/resilience"
)

func fastRetry() Option {
	return WithRetry(resilience.RetryConfig{MaxAttempts: 3, Backoff: time.Millisecond})
}

func TestLightningDeals_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/lightningdeal", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "8", r.URL.Query().Get("domainId"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"deals": [{
				"asin": "B0TESTA",
				"title": "Cuffie wireless",
				"image": "41abc.jpg",
				"dealPrice": 2999,
				"currentPrice": 5999,
				"rating": 44,
				"totalReviews": 812,
				"percentOff": 50,
				"dealState": "AVAILABLE"
			}],
			"tokensLeft": 55
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	deals, err := client.LightningDeals(context.Background())
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, "B0TESTA", deals[0].ASIN)
	assert.Equal(t, int64(2999), deals[0].DealPrice)
	assert.Equal(t, int64(5999), deals[0].CurrentPrice)
	assert.Equal(t, 44, deals[0].Rating)
	assert.Equal(t, 50, deals[0].PercentOff)
	assert.Equal(t, DealStateAvailable, deals[0].DealState)
}

func TestLightningDeals_MissingDealsField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tokensLeft": 55}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	_, err := client.LightningDeals(context.Background())
	require.Error(t, err)
	assert.True(t, resilience.IsBadResponse(err))
	assert.Contains(t, err.Error(), "missing deals field")
}

func TestDeals_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/deal", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var q DealQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.Equal(t, 8, q.DomainID)
		assert.Equal(t, []int64{560798}, q.IncludeCategories)
		assert.Equal(t, []int{20, 100}, q.DeltaPercentRange)
		assert.True(t, q.HasReviews)

		_, _ = w.Write([]byte(`{
			"dr": [{
				"asin": "B0TESTB",
				"title": "Scarpe da corsa",
				"imagesCSV": "51xyz.jpg,61xyz.jpg",
				"current": [4990, 9980],
				"rating": 43,
				"reviewCount": 230,
				"rootCat": 1571275031
			}]
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	deals, err := client.Deals(context.Background(), DefaultDealQuery(8, []int64{560798}, 20))
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, "B0TESTB", deals[0].ASIN)
	assert.Equal(t, []int64{4990, 9980}, deals[0].Current)
	assert.Equal(t, 43, deals[0].Rating)
	assert.Equal(t, 230, deals[0].ReviewCount)
}

func TestDeals_DefaultsDomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var q DealQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.Equal(t, 8, q.DomainID)
		_, _ = w.Write([]byte(`{"dr": []}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithDomain(8))

	deals, err := client.Deals(context.Background(), DealQuery{IncludeCategories: []int64{1}})
	require.NoError(t, err)
	assert.Empty(t, deals)
}

func TestDeals_MissingDRField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tokensLeft": 12}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	_, err := client.Deals(context.Background(), DefaultDealQuery(8, nil, 20))
	require.Error(t, err)
	assert.True(t, resilience.IsBadResponse(err))
}

func TestDeals_RateLimitGatesEndpoint(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"refillIn": 45000}`))
	}))
	defer srv.Close()

	gates := resilience.NewEndpointCooldowns()
	client := NewClient("test-key", WithBaseURL(srv.URL), WithCooldowns(gates), fastRetry())

	_, err := client.Deals(context.Background(), DefaultDealQuery(8, nil, 20))
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))
	wait, ok := resilience.RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 45*time.Second, wait)
	assert.Equal(t, int32(1), calls.Load(), "429 must not be retried inline")

	// The endpoint is now gated: the next call fails fast without a request.
	_, err = client.Deals(context.Background(), DefaultDealQuery(8, nil, 20))
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))
	assert.Equal(t, int32(1), calls.Load())

	// Other endpoints stay open.
	assert.True(t, gates.Get(EndpointLightning).Ready())
	assert.False(t, gates.Get(EndpointDeal).Ready())
}

func TestDeals_RateLimitWithoutHintUsesCooldown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimitCooldown(30*time.Second))

	_, err := client.Deals(context.Background(), DefaultDealQuery(8, nil, 20))
	require.Error(t, err)
	wait, ok := resilience.RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, wait)
}

func TestDeals_TransientRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"dr": []}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), fastRetry())

	deals, err := client.Deals(context.Background(), DefaultDealQuery(8, nil, 20))
	require.NoError(t, err)
	assert.Empty(t, deals)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeals_BadStatusNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid query"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), fastRetry())

	_, err := client.Deals(context.Background(), DefaultDealQuery(8, nil, 20))
	require.Error(t, err)
	assert.True(t, resilience.IsBadResponse(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestProducts_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/product", r.URL.Path)
		assert.Equal(t, "8", r.URL.Query().Get("domain"))
		assert.Equal(t, "B0TESTA,B0TESTB", r.URL.Query().Get("asin"))

		_, _ = w.Write([]byte(`{
			"products": [
				{"asin": "B0TESTA", "title": "Cuffie", "csv": [[100, 2999, 200, 2799]]},
				{"asin": "B0TESTB", "title": "Scarpe", "csv": [[100, 4990]]}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	products, err := client.Products(context.Background(), []string{"B0TESTA", "B0TESTB"})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, []int64{100, 2999, 200, 2799}, products[0].CSV[SeriesAmazon])
}

func TestProducts_EmptyInput(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	products, err := client.Products(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, products)
	assert.Equal(t, int32(0), calls.Load())
}

func TestToken_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		_, _ = w.Write([]byte(`{"tokensLeft": 300, "refillIn": 60000, "refillRate": 20}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	status, err := client.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 300, status.TokensLeft)
	assert.Equal(t, int64(60000), status.RefillIn)
	assert.Equal(t, 20, status.RefillRate)
}
