package services

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

	"github.com/example/bakehouse/internal/config"
)

const (
	tokenRequestTimeout = 15 * time.Second
	orderSubmitTimeout  = 30 * time.Second
)

// AuthError reports a failure to obtain an access token from PesaPal.
// Status and Body carry the upstream response when one was received.
type AuthError struct {
	Status int
	Body   string
	Reason string
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("pesapal auth failed: status %d, body: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("pesapal auth failed: %s", e.Reason)
}

// SubmissionError reports a failed order submission. Status defaults to 500
// when the gateway never produced a response.
type SubmissionError struct {
	Status  int
	Body    string
	Reason  string
	Timeout bool
}

func (e *SubmissionError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("pesapal order submission failed: status %d, body: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("pesapal order submission failed: %s", e.Reason)
}

// TransactionStatus is the gateway's authoritative view of one payment attempt.
type TransactionStatus struct {
	PaymentMethod            string  `json:"payment_method"`
	Amount                   float64 `json:"amount"`
	PaymentStatusDescription string  `json:"payment_status_description"`
	Description              string  `json:"description"`
	MerchantReference        string  `json:"merchant_reference"`
	ConfirmationCode         string  `json:"confirmation_code"`
	Currency                 string  `json:"currency"`
	StatusCode               int     `json:"status_code"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// PesapalService talks to the PesaPal v3 API: token acquisition, order
// submission and transaction status queries.
type PesapalService struct {
	cfg *config.Config

	// Separate clients: submissions get the hard 30s budget, everything else
	// a conservative platform default.
	authClient  *http.Client
	orderClient *http.Client
}

// NewPesapalService constructs a PesapalService from process configuration.
func NewPesapalService(cfg *config.Config) *PesapalService {
	return &PesapalService{
		cfg:         cfg,
		authClient:  &http.Client{Timeout: tokenRequestTimeout},
		orderClient: &http.Client{Timeout: orderSubmitTimeout},
	}
}

// RequestAccessToken authenticates against the token endpoint and returns the
// short-lived bearer token. Every call re-authenticates; tokens are never
// cached or persisted.
func (s *PesapalService) RequestAccessToken(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"consumer_key":    s.cfg.PesapalKey,
		"consumer_secret": s.cfg.PesapalSecret,
	})
	if err != nil {
		return "", fmt.Errorf("marshal pesapal auth payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.PesapalBaseURL+"/api/Auth/RequestToken", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build pesapal auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.authClient.Do(req)
	if err != nil {
		return "", &AuthError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &AuthError{Reason: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &AuthError{Status: resp.StatusCode, Body: string(body)}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", &AuthError{Status: resp.StatusCode, Body: string(body), Reason: "unparseable token response"}
	}

	if tok.Token == "" {
		return "", &AuthError{Status: resp.StatusCode, Body: string(body), Reason: "response missing token"}
	}

	return tok.Token, nil
}

// SubmitOrder obtains a fresh token and posts the merged order payload to the
// gateway. The caller's fields are passed through as-is except for the
// server-injected callback configuration, which always wins: callers cannot
// redirect callbacks to an arbitrary URL. On 2xx the gateway response body is
// returned verbatim.
func (s *PesapalService) SubmitOrder(ctx context.Context, caller map[string]any) (json.RawMessage, error) {
	token, err := s.RequestAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(caller)+3)
	for k, v := range caller {
		merged[k] = v
	}
	merged["callback_url"] = s.cfg.CallbackURL
	merged["notification_id"] = s.cfg.PesapalIPNID
	merged["ipn_notification_type"] = "POST"

	payload, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal pesapal order payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.PesapalBaseURL+"/api/Transactions/SubmitOrderRequest", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build pesapal order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.orderClient.Do(req)
	if err != nil {
		return nil, &SubmissionError{
			Status:  http.StatusInternalServerError,
			Reason:  err.Error(),
			Timeout: isTimeout(err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SubmissionError{Status: http.StatusInternalServerError, Reason: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &SubmissionError{Status: resp.StatusCode, Body: string(body)}
	}

	return json.RawMessage(body), nil
}

// GetTransactionStatus queries the gateway for the authoritative state of a
// payment attempt. Used by the reconciler when IPN verification is enabled.
func (s *PesapalService) GetTransactionStatus(ctx context.Context, trackingID string) (*TransactionStatus, error) {
	token, err := s.RequestAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	statusURL := fmt.Sprintf("%s/api/Transactions/GetTransactionStatus?orderTrackingId=%s",
		s.cfg.PesapalBaseURL, url.QueryEscape(trackingID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build pesapal status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.authClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pesapal status request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read pesapal status response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pesapal status query failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var status TransactionStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("unmarshal pesapal status response: %w", err)
	}

	return &status, nil
}

func isTimeout(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "Client.Timeout exceeded")
}
