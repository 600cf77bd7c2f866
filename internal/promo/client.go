package promo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Status is the observed promotional state.
type Status int

const (
	StatusOff Status = iota
	StatusOn
)

// String renders the status for logs.
func (s Status) String() string {
	if s == StatusOn {
		return "ON"
	}
	return "OFF"
}

// ErrAuthExpired indicates the bearer token was rejected and the automatic
// refresh-and-retry also failed.
var ErrAuthExpired = errors.New("promo: authorization expired")

// The promotion is considered active when a 20jt nominal suggestion carries
// an enabled promotional amount.
var (
	activePromotionAmount = int64(19315000)
	activeDefaultAmount   = int64(20000000)
)

// Options configure the promo API client.
type Options struct {
	// NominalURL is the nominal-suggestion endpoint.
	NominalURL string
	// SignInURL is the credential endpoint used to refresh the token.
	SignInURL string

	Email        string
	Password     string
	ClientID     string
	ClientSecret string
	DeviceID     string

	Timeout        time.Duration
	RefreshTimeout time.Duration
}

// Client fetches the promotional status from the dealer's authenticated API.
// The nominal endpoint is tried with POST first, then GET; a 401 triggers one
// token refresh followed by a single retry.
type Client struct {
	opts   Options
	tokens TokenStore
	client *http.Client
	logger zerolog.Logger
}

// NewClient constructs a promo client.
func NewClient(opts Options, tokens TokenStore, logger zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 10 * time.Second
	}
	return &Client{
		opts:   opts,
		tokens: tokens,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.With().Str("component", "promo").Logger(),
	}
}

type nominalEntry struct {
	Status          bool  `json:"status"`
	PromotionAmount int64 `json:"promotion_amount"`
	DefaultAmount   int64 `json:"default_amount"`
}

type nominalResponse struct {
	Meta struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"meta"`
	Data []nominalEntry `json:"data"`
}

// FetchStatus returns the current promotional status.
func (c *Client) FetchStatus(ctx context.Context) (Status, error) {
	resp, err := c.fetchNominal(ctx, false)
	if err != nil {
		return StatusOff, err
	}

	for _, entry := range resp.Data {
		if entry.Status && (entry.PromotionAmount == activePromotionAmount || entry.DefaultAmount == activeDefaultAmount) {
			return StatusOn, nil
		}
	}
	return StatusOff, nil
}

func (c *Client) fetchNominal(ctx context.Context, retried bool) (*nominalResponse, error) {
	token, err := c.tokens.Load()
	if err != nil {
		return nil, err
	}

	// POST is the documented call; some gateway configurations only accept
	// GET, so fall through on any POST failure other than a 401.
	resp, err := c.callNominal(ctx, http.MethodPost, token)
	if err == nil {
		return resp, nil
	}
	if isUnauthorized(err) {
		return c.refreshAndRetry(ctx, retried)
	}
	c.logger.Debug().Err(err).Msg("nominal POST failed, falling back to GET")

	resp, err = c.callNominal(ctx, http.MethodGet, token)
	if err == nil {
		return resp, nil
	}
	if isUnauthorized(err) {
		return c.refreshAndRetry(ctx, retried)
	}
	return nil, err
}

func (c *Client) refreshAndRetry(ctx context.Context, retried bool) (*nominalResponse, error) {
	if retried {
		return nil, ErrAuthExpired
	}
	if err := c.refreshToken(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}
	return c.fetchNominal(ctx, true)
}

var errUnauthorized = errors.New("promo: unauthorized")

func isUnauthorized(err error) bool {
	return errors.Is(err, errUnauthorized)
}

func (c *Client) callNominal(ctx context.Context, method, token string) (*nominalResponse, error) {
	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader([]byte(`{}`))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.opts.NominalURL, body)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nominal request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominal api status %d", resp.StatusCode)
	}

	var decoded nominalResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode nominal response: %w", err)
	}
	if decoded.Meta.Status != "success" {
		return nil, fmt.Errorf("nominal api error: %s", decoded.Meta.Message)
	}
	return &decoded, nil
}

type signInResponse struct {
	Meta struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"meta"`
	Data struct {
		Token struct {
			AccessToken string `json:"access_token"`
		} `json:"token"`
	} `json:"data"`
}

func (c *Client) refreshToken(ctx context.Context) error {
	c.logger.Info().Msg("refreshing promo api token")

	if c.opts.Email == "" || c.opts.Password == "" {
		return fmt.Errorf("promo credentials not configured")
	}

	payload := map[string]interface{}{
		"client_id":     c.opts.ClientID,
		"client_secret": c.opts.ClientSecret,
		"email":         c.opts.Email,
		"password":      c.opts.Password,
		"device_id":     c.opts.DeviceID,
		"scope":         "*",
		"latitude":      "0.0",
		"longitude":     "0.0",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	refreshCtx, cancel := context.WithTimeout(ctx, c.opts.RefreshTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(refreshCtx, http.MethodPost, c.opts.SignInURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sign-in request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sign-in status %d", resp.StatusCode)
	}

	var decoded signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode sign-in response: %w", err)
	}
	if decoded.Meta.Status != "success" {
		return fmt.Errorf("sign-in rejected: %s", decoded.Meta.Message)
	}
	if decoded.Data.Token.AccessToken == "" {
		return fmt.Errorf("sign-in response carried no token")
	}

	if err := c.tokens.Save(decoded.Data.Token.AccessToken); err != nil {
		return err
	}
	c.logger.Info().Msg("promo api token refreshed")
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Language", "id")
	req.Header.Set("X-Platform", "android")
}
