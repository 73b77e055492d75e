// Package indexer is the client for the remote video indexing service: it
// obtains access tokens, submits a readable video URL and polls the index
// until the service reports a terminal state.
package indexer

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

	"github.com/google/uuid"

	"github.com/heimdex/heimdex-notes/internal/insights"
	"github.com/heimdex/heimdex-notes/internal/logging"
	"github.com/heimdex/heimdex-notes/internal/services"
)

const (
	DefaultAPIBase      = "https://api.videoindexer.ai"
	DefaultLanguage     = "en-US"
	DefaultPollInterval = 30 * time.Second
	DefaultPollTimeout  = 30 * time.Minute
	DefaultTokenTTL     = 50 * time.Minute

	maxErrorBody = 4096
)

// Config holds the indexer account and polling settings.
type Config struct {
	APIBase         string
	Location        string
	AccountID       string
	SubscriptionKey string
	Language        string
	PollInterval    time.Duration
	PollTimeout     time.Duration
	TokenTTL        time.Duration
	RequestTimeout  time.Duration
}

// Validate checks that the account credentials are present.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.AccountID) == "" {
		missing = append(missing, "account id")
	}
	if strings.TrimSpace(c.Location) == "" {
		missing = append(missing, "location")
	}
	if strings.TrimSpace(c.SubscriptionKey) == "" {
		missing = append(missing, "subscription key")
	}
	if len(missing) > 0 {
		return services.Validation("index", "missing video indexer credentials: "+strings.Join(missing, ", "))
	}
	if c.PollInterval < 0 || c.PollTimeout < 0 {
		return services.Validation("index", "poll interval and timeout must not be negative")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.APIBase == "" {
		c.APIBase = DefaultAPIBase
	}
	c.APIBase = strings.TrimRight(c.APIBase, "/")
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	return c
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock replaces the wall clock used for polling and token expiry.
func WithClock(clock Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// Client talks to the video indexer REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	clock      Clock
	logger     *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		clock:      realClock{},
		logger:     logging.WithComponent(logger, "indexer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// AccessToken returns a cached account access token, fetching a new one
// when none is cached or the cached one has expired.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.clock.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	endpoint := fmt.Sprintf("%s/Auth/%s/Accounts/%s/AccessToken",
		c.cfg.APIBase, url.PathEscape(c.cfg.Location), url.PathEscape(c.cfg.AccountID))
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, url.Values{"allowEdit": {"true"}})
	if err != nil {
		return "", err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)

	body, status, err := c.do(req, OpToken)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &RemoteCallError{Op: OpToken, StatusCode: status, Body: truncate(string(body), maxErrorBody)}
	}
	token := strings.Trim(strings.TrimSpace(string(body)), `"`)
	if token == "" {
		return "", &RemoteCallError{Op: OpToken, StatusCode: status, Body: "empty access token"}
	}
	c.token = token
	c.tokenExpiry = c.clock.Now().Add(c.cfg.TokenTTL)
	c.logger.Debug("access token acquired", "token", logging.SanitizeToken(token))
	return token, nil
}

// Submit starts indexing the video at videoURL under the given name and
// returns the indexer's video id.
func (c *Client) Submit(ctx context.Context, name, videoURL string) (string, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(videoURL) == "" {
		return "", services.Validation("index", "video name and url are required")
	}
	token, err := c.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.accountURL("Videos"), url.Values{
		"accessToken":   {token},
		"name":          {name},
		"privacy":       {"Private"},
		"videoUrl":      {videoURL},
		"videoLanguage": {c.cfg.Language},
	})
	if err != nil {
		return "", err
	}

	c.logger.Info("submitting video to indexer", "name", name, "video_url", logging.SanitizeURL(videoURL))
	body, status, err := c.do(req, OpSubmit)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", &RemoteCallError{Op: OpSubmit, StatusCode: status, Body: truncate(string(body), maxErrorBody)}
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
		return "", &RemoteCallError{Op: OpSubmit, StatusCode: status, Body: "no video id in response: " + truncate(string(body), 256)}
	}
	c.logger.Info("video submitted", "video_id", created.ID)
	return created.ID, nil
}

// PollResponse is one observation of the index endpoint.
type PollResponse struct {
	State string
	Body  []byte
}

// Poll fetches the current index document for videoID once.
func (c *Client) Poll(ctx context.Context, videoID string) (PollResponse, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return PollResponse{}, err
	}
	req, err := c.newRequest(ctx, http.MethodGet, c.accountURL("Videos", videoID, "Index"), url.Values{"accessToken": {token}})
	if err != nil {
		return PollResponse{}, err
	}
	body, status, err := c.do(req, OpPoll)
	if err != nil {
		return PollResponse{}, err
	}
	if status != http.StatusOK {
		return PollResponse{}, &RemoteCallError{Op: OpPoll, StatusCode: status, Body: truncate(string(body), maxErrorBody)}
	}
	var head struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return PollResponse{}, &RemoteCallError{Op: OpPoll, StatusCode: status, Body: "invalid index JSON", Err: err}
	}
	return PollResponse{State: head.State, Body: body}, nil
}

// PollEvent describes one completed poll.
type PollEvent struct {
	VideoID string
	Poll    int
	Remote  string
	State   State
	Elapsed time.Duration
}

// Observer receives every poll event. It must not block.
type Observer func(PollEvent)

// Wait polls videoID at a fixed interval until the service reports a
// terminal state, the timeout passes or ctx is cancelled.
func (c *Client) Wait(ctx context.Context, videoID string, observe Observer) (*insights.Document, error) {
	start := c.clock.Now()
	state := StateSubmitted
	var lastRemote string
	for poll := 1; ; poll++ {
		resp, err := c.Poll(ctx, videoID)
		if err != nil {
			return nil, err
		}
		elapsed := c.clock.Now().Sub(start)
		state = Transition(state, resp.State, elapsed, c.cfg.PollTimeout)
		lastRemote = resp.State

		c.logger.Info("poll", "video_id", videoID, "poll", poll, "state", resp.State, "elapsed_s", int(elapsed.Seconds()))
		if observe != nil {
			observe(PollEvent{VideoID: videoID, Poll: poll, Remote: resp.State, State: state, Elapsed: elapsed})
		}

		switch state {
		case StateProcessed:
			doc, err := insights.Parse(resp.Body)
			if err != nil {
				return nil, services.Wrap(services.ErrRemoteCall, "index", OpPoll, "decode processed index", err)
			}
			return doc, nil
		case StateFailed:
			return nil, &FailureError{VideoID: videoID, State: resp.State, Payload: resp.Body}
		case StateTimedOut:
			return nil, &TimeoutError{VideoID: videoID, Elapsed: elapsed, Timeout: c.cfg.PollTimeout, LastState: lastRemote}
		}

		if err := c.clock.Sleep(ctx, c.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
}

// Index submits the video and waits for its insights.
func (c *Client) Index(ctx context.Context, name, videoURL string, observe Observer) (string, *insights.Document, error) {
	videoID, err := c.Submit(ctx, name, videoURL)
	if err != nil {
		return "", nil, err
	}
	doc, err := c.Wait(ctx, videoID, observe)
	return videoID, doc, err
}

// Thumbnail downloads a keyframe thumbnail as JPEG.
func (c *Client) Thumbnail(ctx context.Context, videoID, thumbnailID string) ([]byte, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodGet, c.accountURL("Videos", videoID, "Thumbnails", thumbnailID),
		url.Values{"accessToken": {token}, "format": {"Jpeg"}})
	if err != nil {
		return nil, err
	}
	body, status, err := c.do(req, OpThumbnail)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &RemoteCallError{Op: OpThumbnail, StatusCode: status, Body: truncate(string(body), maxErrorBody)}
	}
	return body, nil
}

func (c *Client) accountURL(parts ...string) string {
	escaped := make([]string, 0, len(parts)+3)
	escaped = append(escaped, url.PathEscape(c.cfg.Location), "Accounts", url.PathEscape(c.cfg.AccountID))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return c.cfg.APIBase + "/" + strings.Join(escaped, "/")
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("x-ms-client-request-id", uuid.NewString())
	return req, nil
}

// do sends req and reads the whole response body. Callers cap the body
// only when it becomes part of an error.
func (c *Client) do(req *http.Request, op string) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		return nil, 0, &RemoteCallError{Op: op, Err: redactURLError(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &RemoteCallError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", redactURLError(err))}
	}
	return body, resp.StatusCode, nil
}

// redactURLError drops the query string from transport errors; it carries
// the access token.
func redactURLError(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	return &url.Error{Op: ue.Op, URL: logging.SanitizeURL(ue.URL), Err: ue.Err}
}
