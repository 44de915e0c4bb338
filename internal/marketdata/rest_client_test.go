package marketdata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a RestClient configured to use it.
func setupTestServer(handler http.Handler) (*RestClient, *httptest.Server) {
	server := httptest.NewServer(handler)

	client := resty.New().SetBaseURL(server.URL)
	logger := zap.NewNop() // Use a no-op logger for tests

	rc := &RestClient{
		client:  client,
		apiKey:  "test_api_key",
		logger:  logger,
		limiter: rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
	}

	return rc, server
}

func TestGetQuote(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/quote", r.URL.Path)
			assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"symbol": "AAPL", "price": 182.52}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		// Act
		price, err := rc.GetQuote("AAPL")

		// Assert
		assert.NoError(t, err)
		assert.Equal(t, 182.52, price)
	})

	t.Run("APIError", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error": "unknown symbol"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		// Act
		price, err := rc.GetQuote("NOPE")

		// Assert
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get quote")
		assert.Equal(t, 0.0, price)
	})
}

func TestGetHistoricalBars(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange: bars delivered newest first with one bad timestamp.
		mockResponse := `[
			{"date": "2024-06-05 16:00:00", "close": 110.0},
			{"date": "garbage", "close": 1.0},
			{"date": "2024-06-05 09:30:00", "close": 100.0}
		]`
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/historical/AAPL", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(mockResponse))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		// Act
		bars, err := rc.GetHistoricalBars("AAPL")

		// Assert: the bad row is skipped, order is left as delivered.
		assert.NoError(t, err)
		assert.Len(t, bars, 2)
		assert.Equal(t, 110.0, bars[0].Close)
		assert.Equal(t, 100.0, bars[1].Close)
	})

	t.Run("APIError", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error": "bad request"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		bars, err := rc.GetHistoricalBars("AAPL")

		assert.Error(t, err)
		assert.Nil(t, bars)
	})
}

func TestGetIndexes(t *testing.T) {
	// Arrange
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/indexes", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[{"symbol": "SPX", "name": "S&P 500", "price": 5352.96, "change": 0.012}]`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	// Act
	indexes, err := rc.GetIndexes()

	// Assert
	assert.NoError(t, err)
	assert.Len(t, indexes, 1)
	assert.Equal(t, "SPX", indexes[0].Symbol)
	assert.Equal(t, 5352.96, indexes[0].Price)
}

func TestGetTopNews(t *testing.T) {
	// Arrange
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/news", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[{"source": "Wire", "title": "Markets rally", "url": "https://example.com/a"}]`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	// Act
	news, err := rc.GetTopNews()

	// Assert
	assert.NoError(t, err)
	assert.Len(t, news, 1)
	assert.Equal(t, "Markets rally", news[0].Title)
}
