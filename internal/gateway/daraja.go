// Package gateway implements the client for the Daraja push-to-pay API
// (M-Pesa STK push). The client is stateless apart from a cached OAuth
// token and never retries; failed prompts surface to the orchestrator.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loopmarket/payment-service/internal/interfaces"
	"github.com/loopmarket/payment-service/internal/telemetry"
)

// ErrUnavailable covers auth and network failures talking to the provider.
var ErrUnavailable = errors.New("payment gateway unavailable")

// PromptRejectedError is a provider-level rejection of the prompt request,
// e.g. a malformed phone number. The provider's message is preserved for the
// caller.
type PromptRejectedError struct {
	Code    string
	Message string
}

func (e *PromptRejectedError) Error() string {
	return fmt.Sprintf("prompt rejected by provider: %s (code %s)", e.Message, e.Code)
}

type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
}

type DarajaClient struct {
	cfg  Config
	http *http.Client
	now  func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewDarajaClient(cfg Config) *DarajaClient {
	return &DarajaClient{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
		now:  time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

// RequestPrompt sends an STK push to the payer's phone and returns the
// provider identifiers used to reconcile the asynchronous callback.
func (c *DarajaClient) RequestPrompt(ctx context.Context, contactNumber string, amount int64, itemRef string) (*interfaces.PromptResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.Shortcode + c.cfg.Passkey + timestamp))

	payload := stkPushRequest{
		BusinessShortCode: c.cfg.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            contactNumber,
		PartyB:            c.cfg.Shortcode,
		PhoneNumber:       contactNumber,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  "Loop-" + itemRef,
		TransactionDesc:   "Payment for premium loop access",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: stk push request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading stk push response: %v", ErrUnavailable, err)
	}

	var stkResp stkPushResponse
	if err := json.Unmarshal(respBody, &stkResp); err != nil {
		return nil, fmt.Errorf("%w: decoding stk push response: %v", ErrUnavailable, err)
	}

	if stkResp.ErrorCode != "" || resp.StatusCode != http.StatusOK {
		telemetry.Logger.Warn("STK push rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("error_code", stkResp.ErrorCode),
			zap.String("error_message", stkResp.ErrorMessage),
		)
		return nil, &PromptRejectedError{Code: stkResp.ErrorCode, Message: stkResp.ErrorMessage}
	}
	if stkResp.ResponseCode != "0" {
		return nil, &PromptRejectedError{Code: stkResp.ResponseCode, Message: stkResp.ResponseDescription}
	}
	if stkResp.CheckoutRequestID == "" {
		return nil, &PromptRejectedError{Code: stkResp.ResponseCode, Message: "provider returned no CheckoutRequestID"}
	}

	return &interfaces.PromptResult{
		CorrelationID:     stkResp.CheckoutRequestID,
		MerchantRequestID: stkResp.MerchantRequestID,
	}, nil
}

// accessToken returns a cached OAuth token, fetching a fresh one when the
// cached token is within 30 seconds of expiry.
func (c *DarajaClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry.Add(-30*time.Second)) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: auth request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: auth endpoint returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("%w: decoding auth response: %v", ErrUnavailable, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: auth response carried no token", ErrUnavailable)
	}

	ttl := 3600
	if n, err := strconv.Atoi(tok.ExpiresIn); err == nil && n > 0 {
		ttl = n
	}

	c.token = tok.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(ttl) * time.Second)
	return c.token, nil
}
