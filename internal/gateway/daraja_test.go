package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type promptCapture struct {
	auth string
	body stkPushRequest
}

func newTestServer(t *testing.T, tokenCalls *int, captured *promptCapture) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		*tokenCalls++
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "key", user)
		require.Equal(t, "secret", pass)
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-1", ExpiresIn: "3599"})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		captured.auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.body))
		json.NewEncoder(w).Encode(stkPushResponse{
			MerchantRequestID:   "mr_001",
			CheckoutRequestID:   "ws_abc123",
			ResponseCode:        "0",
			ResponseDescription: "Success. Request accepted for processing",
		})
	})
	return httptest.NewServer(mux)
}

func newTestClient(baseURL string) *DarajaClient {
	c := NewDarajaClient(Config{
		BaseURL:        baseURL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		Shortcode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://example.com/payments/mpesa/callback",
	})
	c.now = func() time.Time {
		return time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	}
	return c
}

func TestRequestPrompt_SendsDerivedPasswordAndReference(t *testing.T) {
	var tokenCalls int
	var captured promptCapture
	srv := newTestServer(t, &tokenCalls, &captured)
	defer srv.Close()

	c := newTestClient(srv.URL)
	result, err := c.RequestPrompt(context.Background(), "0712345678", 500, "7")

	require.NoError(t, err)
	require.Equal(t, "ws_abc123", result.CorrelationID)
	require.Equal(t, "mr_001", result.MerchantRequestID)

	require.Equal(t, "Bearer tok-1", captured.auth)
	require.Equal(t, "174379", captured.body.BusinessShortCode)
	require.Equal(t, "CustomerPayBillOnline", captured.body.TransactionType)
	require.Equal(t, int64(500), captured.body.Amount)
	require.Equal(t, "0712345678", captured.body.PartyA)
	require.Equal(t, "Loop-7", captured.body.AccountReference)

	wantTimestamp := "20240315103000"
	require.Equal(t, wantTimestamp, captured.body.Timestamp)
	wantPassword := base64.StdEncoding.EncodeToString([]byte("174379" + "passkey" + wantTimestamp))
	require.Equal(t, wantPassword, captured.body.Password)
}

func TestRequestPrompt_ReusesCachedToken(t *testing.T) {
	var tokenCalls int
	var captured promptCapture
	srv := newTestServer(t, &tokenCalls, &captured)
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.RequestPrompt(context.Background(), "0712345678", 500, "7")
	require.NoError(t, err)
	_, err = c.RequestPrompt(context.Background(), "0712345678", 500, "8")
	require.NoError(t, err)

	require.Equal(t, 1, tokenCalls, "token should be fetched once and cached")
}

func TestRequestPrompt_AuthFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.RequestPrompt(context.Background(), "0712345678", 500, "7")

	require.ErrorIs(t, err, ErrUnavailable)
}

func TestRequestPrompt_NetworkFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := newTestClient(srv.URL)
	_, err := c.RequestPrompt(context.Background(), "0712345678", 500, "7")

	require.ErrorIs(t, err, ErrUnavailable)
}

func TestRequestPrompt_ProviderRejectionCarriesMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-1", ExpiresIn: "3599"})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(stkPushResponse{
			ErrorCode:    "400.002.02",
			ErrorMessage: "Bad Request - Invalid PhoneNumber",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.RequestPrompt(context.Background(), "not-a-phone", 500, "7")

	var rejected *PromptRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, "400.002.02", rejected.Code)
	require.Contains(t, rejected.Message, "Invalid PhoneNumber")
}

func TestAccessToken_RefetchesAfterExpiry(t *testing.T) {
	var tokenCalls int
	var captured promptCapture
	srv := newTestServer(t, &tokenCalls, &captured)
	defer srv.Close()

	c := newTestClient(srv.URL)
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.RequestPrompt(context.Background(), "0712345678", 500, "7")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = c.RequestPrompt(context.Background(), "0712345678", 500, "7")
	require.NoError(t, err)

	require.Equal(t, 2, tokenCalls)
}
