// Reddit OAuth API client implementing the forum capability interfaces.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/latchbot/latch/automod/forum"
	"github.com/latchbot/latch/pkg/robusthttp"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL  = "https://oauth.reddit.com"
	DefaultTokenURL = "https://www.reddit.com/api/v1/access_token"
)

type Config struct {
	BaseURL  string
	TokenURL string

	// script-app credentials, for the password grant
	ClientID     string
	ClientSecret string
	Username     string
	Password     string

	// if set, used as a bearer token as-is and never refreshed
	AccessToken string

	UserAgent string

	// average request rate. reddit allows roughly one request per second for OAuth clients
	RequestsPerSecond float64
	Burst             int

	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	baseURL  string
	tokenURL string
	cfg      Config

	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time

	// clock override, for tests
	Now func() time.Time
}

var _ forum.Client = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	if cfg.AccessToken == "" && (cfg.ClientID == "" || cfg.Username == "") {
		return nil, fmt.Errorf("reddit client requires an access token or script-app credentials")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("reddit client requires a user agent")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("subsystem", "reddit")
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = robusthttp.NewClient(robusthttp.WithLogger(logger), robusthttp.WithUserAgent(cfg.UserAgent))
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1.0
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		tokenURL: tokenURL,
		cfg:      cfg,
		client:   httpClient,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		logger:   logger,
		token:    cfg.AccessToken,
		Now:      time.Now,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error,omitempty"`
}

// refresh a minute early, so in-flight requests don't race expiry
const tokenExpiryMargin = time.Minute

// Returns a bearer token, fetching a new one with the password grant if needed.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.AccessToken != "" {
		return c.token, nil
	}
	if c.token != "" && c.Now().Before(c.tokenExpiry.Add(-tokenExpiryMargin)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching reddit access token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching reddit access token: HTTP %d", resp.StatusCode)
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decoding reddit access token: %w", err)
	}
	if tr.Error != "" || tr.AccessToken == "" {
		return "", fmt.Errorf("reddit token grant failed: %s", tr.Error)
	}
	c.token = tr.AccessToken
	c.tokenExpiry = c.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	c.logger.Info("refreshed reddit access token", "expires", c.tokenExpiry)
	return c.token, nil
}

// Performs an API request and decodes a JSON response into out (if non-nil). A
// 404 maps to forum.ErrNotFound.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	u := c.baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			u = u + "?" + params.Encode()
		}
	} else {
		body = strings.NewReader(params.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("reddit %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("reddit %s %s: %w", method, path, forum.ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized:
		// force a token refresh on the next request
		c.mu.Lock()
		if c.cfg.AccessToken == "" {
			c.token = ""
		}
		c.mu.Unlock()
		return fmt.Errorf("reddit %s %s: unauthorized", method, path)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("reddit %s %s: HTTP %d", method, path, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding reddit %s response: %w", path, err)
	}
	return nil
}

// Response envelope for `api_type=json` POST endpoints.
type jsonEnvelope struct {
	JSON struct {
		Errors [][]any         `json:"errors"`
		Data   json.RawMessage `json:"data,omitempty"`
	} `json:"json"`
}

func (e *jsonEnvelope) err() error {
	if len(e.JSON.Errors) == 0 {
		return nil
	}
	parts := []string{}
	for _, row := range e.JSON.Errors {
		strs := []string{}
		for _, v := range row {
			if s, ok := v.(string); ok && s != "" {
				strs = append(strs, s)
			}
		}
		parts = append(parts, strings.Join(strs, ": "))
	}
	return errors.New("reddit API error: " + strings.Join(parts, "; "))
}

func (c *Client) postJSON(ctx context.Context, path string, params url.Values) (*jsonEnvelope, error) {
	params.Set("api_type", "json")
	var env jsonEnvelope
	if err := c.do(ctx, http.MethodPost, path, params, &env); err != nil {
		return nil, err
	}
	if err := env.err(); err != nil {
		return nil, err
	}
	return &env, nil
}
