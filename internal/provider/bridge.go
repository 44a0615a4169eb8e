package provider

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

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/ocgroups/meetsync/internal/logging"
)

const tokenTTL = 5 * time.Minute

// BridgeConfig configures a BridgeClient.
type BridgeConfig struct {
	BaseURL    string
	ProviderID string
	Secret     string
	Timeout    time.Duration
	MaxRetries int
	Logger     logging.Logger
}

// BridgeClient talks to a provider bridge service over HTTP/JSON. Requests
// carry a short-lived HS256 bearer token and run through a retry policy and
// a circuit breaker.
type BridgeClient struct {
	baseURL    string
	providerID string
	secret     []byte
	httpClient *http.Client
	executor   failsafe.Executor[*http.Response]
	// createExec never replays a create the bridge may already have applied.
	createExec failsafe.Executor[*http.Response]
	logger     logging.Logger
}

func NewBridgeClient(cfg BridgeConfig) *BridgeClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	breaker := circuitbreaker.NewBuilder[*http.Response]().
		WithFailureThresholdRatio(5, 10).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		HandleIf(shouldRetry).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			if cfg.Logger != nil {
				cfg.Logger.WithFields(logging.Fields{
					"provider_id": cfg.ProviderID,
					"from_state":  stateName(event.OldState),
					"to_state":    stateName(event.NewState),
				}).Warn("provider circuit breaker state change")
			}
		}).
		Build()

	return &BridgeClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		providerID: cfg.ProviderID,
		secret:     []byte(cfg.Secret),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		executor:   failsafe.With(newRetryPolicy(cfg.MaxRetries, shouldRetry), breaker),
		createExec: failsafe.With(newRetryPolicy(cfg.MaxRetries, shouldRetryCreate), breaker),
		logger:     cfg.Logger,
	}
}

func stateName(state circuitbreaker.State) string {
	switch state {
	case circuitbreaker.OpenState:
		return "open"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	default:
		return "closed"
	}
}

func newRetryPolicy(maxRetries int, handle func(*http.Response, error) bool) retrypolicy.RetryPolicy[*http.Response] {
	return retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(200*time.Millisecond, 5*time.Second).
		WithMaxRetries(maxRetries).
		WithJitterFactor(0.1).
		HandleIf(handle).
		OnRetry(func(e failsafe.ExecutionEvent[*http.Response]) {
			if resp := e.LastResult(); resp != nil {
				resp.Body.Close()
			}
		}).
		Build()
}

// shouldRetryCreate only retries responses that guarantee the bridge did
// not create anything. Timeouts and other 5xx are ambiguous.
func shouldRetryCreate(resp *http.Response, err error) bool {
	if err != nil || resp == nil {
		return false
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable
}

// shouldRetry treats transport errors, 5xx and 429 as transient.
func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return true
	}
	return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
}

func (c *BridgeClient) CreateMeeting(ctx context.Context, req MeetingRequest) (*CreatedMeeting, error) {
	var created CreatedMeeting
	if err := c.do(ctx, c.createExec, http.MethodPost, "/meetings", req, &created); err != nil {
		return nil, err
	}
	if created.ProviderMeetingID == "" || created.JoinURL == "" {
		return nil, fmt.Errorf("provider %s returned an incomplete meeting", c.providerID)
	}
	return &created, nil
}

func (c *BridgeClient) UpdateMeeting(ctx context.Context, providerMeetingID string, req MeetingRequest) error {
	return c.do(ctx, c.executor, http.MethodPatch, "/meetings/"+url.PathEscape(providerMeetingID), req, nil)
}

func (c *BridgeClient) DeleteMeeting(ctx context.Context, providerMeetingID string) error {
	return c.do(ctx, c.executor, http.MethodDelete, "/meetings/"+url.PathEscape(providerMeetingID), nil, nil)
}

func (c *BridgeClient) EndMeeting(ctx context.Context, providerMeetingID string) (EndResult, error) {
	var resp struct {
		Result EndResult `json:"result"`
	}
	if err := c.do(ctx, c.executor, http.MethodPost, "/meetings/"+url.PathEscape(providerMeetingID)+"/end", nil, &resp); err != nil {
		return "", err
	}
	switch resp.Result {
	case EndResultEnded, EndResultNotRunning:
		return resp.Result, nil
	}
	return "", fmt.Errorf("provider %s returned unknown end result %q", c.providerID, resp.Result)
}

func (c *BridgeClient) do(ctx context.Context, executor failsafe.Executor[*http.Response], method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	token, err := c.token()
	if err != nil {
		return err
	}

	// Every attempt of one call carries the same key so the bridge can
	// collapse replays.
	idempotencyKey := uuid.NewString()

	resp, err := executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Meeting-Provider", c.providerID)
		req.Header.Set("Idempotency-Key", idempotencyKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return c.httpClient.Do(req)
	})
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("provider %s %s %s failed: %w", c.providerID, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrMeetingNotFound
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("provider %s %s %s: status %d: %s", c.providerID, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}
	return nil
}

func (c *BridgeClient) token() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Audience:  jwt.ClaimStrings{c.providerID},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign provider token: %w", err)
	}
	return signed, nil
}

// Webhook tokens are minted by the bridge for meetsync; outbound tokens
// carry tokenIssuer and the provider id instead, so they cannot be replayed
// against the webhook endpoint.
const (
	WebhookIssuer   = "meetsync-bridge"
	WebhookAudience = "meetsync-webhooks"

	tokenIssuer = "meetsync"
)

// VerifyToken checks a bearer token sent by the bridge on webhook callbacks.
func VerifyToken(secret, tokenString string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(WebhookIssuer),
		jwt.WithAudience(WebhookAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}
