// Package backend implements the authenticated HTTP client for the
// remote note-sync service: Authorize, Index, FetchVersion, and Save.
// The client recovers transparently from expired tokens (401, retried
// once per request) and rate limiting (429, bounded backoff).
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/notebridge/internal/noteerr"
)

// Application identity sent on every request. Deployments substitute
// real values at build time via -ldflags.
var (
	AppID     = "notebridge-app"
	AppAPIKey = "replace-me-at-build-time"
)

const (
	// maxRateLimitRetries bounds 429 retries per originating request.
	maxRateLimitRetries = 3

	// defaultRetryAfter is used when the server omits Retry-After.
	defaultRetryAfter = 5 * time.Second

	// versionHeader carries the new revision on save responses.
	versionHeader = "X-Version"
)

// Client talks to the auth and data planes of the sync backend.
type Client struct {
	authBaseURL string
	dataBaseURL string
	bucket      string
	username    string
	password    string
	httpClient  *http.Client

	mu    sync.Mutex
	token string
}

// NewClient builds a client for one bucket. Timeout applies per request.
func NewClient(authBaseURL, dataBaseURL, bucket, username, password string, timeout time.Duration) *Client {
	return &Client{
		authBaseURL: authBaseURL,
		dataBaseURL: dataBaseURL,
		bucket:      bucket,
		username:    username,
		password:    password,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Authorize exchanges credentials for a bearer token and caches it.
func (c *Client) Authorize(ctx context.Context) (string, error) {
	body, err := json.Marshal(authRequest{Username: c.username, Password: c.password})
	if err != nil {
		return "", noteerr.Internal("encode authorize request", err)
	}

	u := fmt.Sprintf("%s/%s/authorize/", c.authBaseURL, AppID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", noteerr.Internal("build authorize request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-App-API-Key", AppAPIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", noteerr.Timeout("Could not reach authentication service", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", noteerr.Auth("Invalid credentials", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return "", noteerr.Backend(noteerr.SubUnknown,
			fmt.Sprintf("Authorization failed with status %d", resp.StatusCode), resp.StatusCode, nil)
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", noteerr.Backend(noteerr.SubUnknown, "Malformed authorization response", resp.StatusCode, err)
	}
	if auth.AccessToken == "" {
		return "", noteerr.Auth("Invalid credentials", nil)
	}

	c.mu.Lock()
	c.token = auth.AccessToken
	c.mu.Unlock()

	log.Debug().Str("userid", auth.UserID).Msg("authorized with sync backend")
	return auth.AccessToken, nil
}

// Index lists bucket entries with cursor-based pagination.
func (c *Client) Index(ctx context.Context, opts IndexOpts) (*IndexPage, error) {
	params := url.Values{}
	if opts.Since != "" {
		params.Set("since", opts.Since)
	}
	if opts.Mark != "" {
		params.Set("mark", opts.Mark)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Data {
		params.Set("data", "true")
	}

	path := fmt.Sprintf("/%s/index", c.bucket)
	if enc := params.Encode(); enc != "" {
		path += "?" + enc
	}

	resp, err := c.doData(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, false); err != nil {
		return nil, err
	}

	var page IndexPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, noteerr.Backend(noteerr.SubUnknown, "Malformed index response", resp.StatusCode, err)
	}
	return &page, nil
}

// FetchVersion retrieves one note at an exact remote revision.
func (c *Client) FetchVersion(ctx context.Context, id string, version int) (*NoteData, error) {
	path := fmt.Sprintf("/%s/i/%s/v/%d", c.bucket, url.PathEscape(id), version)

	resp, err := c.doData(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, noteerr.NotFound(id)
	}
	if err := c.checkStatus(resp, false); err != nil {
		return nil, err
	}

	var data NoteData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, noteerr.Backend(noteerr.SubUnknown, "Malformed note payload", resp.StatusCode, err)
	}
	return &data, nil
}

// Save writes a note. When baseVersion is set the write is conditional
// (POST to the versioned path with If-Match); the backend rejects stale
// bases with 409/412, which surface as Backend{conflict} and are never
// retried. The new revision is read from the X-Version response header;
// when absent or non-numeric it falls back to baseVersion+1, or 0 with a
// warning for brand-new notes.
func (c *Client) Save(ctx context.Context, id string, payload *NoteData, baseVersion *int) (*SaveResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, noteerr.Internal("encode note payload", err)
	}

	path := fmt.Sprintf("/%s/i/%s", c.bucket, url.PathEscape(id))
	headers := http.Header{}
	if baseVersion != nil {
		path = fmt.Sprintf("%s/v/%d", path, *baseVersion)
		headers.Set("If-Match", strconv.Itoa(*baseVersion))
	}
	path += "?response=1"

	resp, err := c.doData(ctx, http.MethodPost, path, body, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, true); err != nil {
		return nil, err
	}

	newVersion, ok := parseVersionHeader(resp.Header.Get(versionHeader))
	if !ok {
		if baseVersion != nil {
			newVersion = *baseVersion + 1
		} else {
			newVersion = 0
			log.Warn().Str("id", id).Msg("save response missing version header for new note; assuming 0")
		}
	}

	result := &SaveResult{Version: newVersion}
	var echoed NoteData
	if err := json.NewDecoder(resp.Body).Decode(&echoed); err == nil {
		result.Data = &echoed
	}
	return result, nil
}

// doData executes a data-plane request with auth injection, a single
// re-authorization on 401, and bounded 429 retries.
func (c *Client) doData(ctx context.Context, method, path string, body []byte, headers http.Header) (*http.Response, error) {
	correlationID := uuid.New().String()
	logger := log.With().
		Str("method", method).
		Str("path", path).
		Str("correlationId", correlationID).
		Logger()

	return c.doWithRetry(ctx, method, path, body, headers, &logger, false, 0)
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, body []byte, headers http.Header, logger *zerolog.Logger, reauthed bool, rateRetries int) (*http.Response, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.dataBaseURL+path, reader)
	if err != nil {
		return nil, noteerr.Internal("build request", err)
	}
	for k, vs := range headers {
		req.Header[k] = vs
	}
	req.Header.Set("X-App-API-Key", AppAPIKey)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("request failed")
		return nil, noteerr.Timeout("Could not reach sync backend", err)
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("request completed")

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		resp.Body.Close()
		if reauthed {
			logger.Warn().Msg("401 after re-authorization")
			return nil, noteerr.Auth("Invalid credentials", nil)
		}
		logger.Warn().Msg("401 - discarding token and re-authorizing")
		c.invalidateToken()
		if _, err := c.Authorize(ctx); err != nil {
			return nil, err
		}
		return c.doWithRetry(ctx, method, path, body, headers, logger, true, rateRetries)

	case http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		resp.Body.Close()
		if rateRetries >= maxRateLimitRetries {
			logger.Warn().Msg("rate limited - max retries exceeded")
			return nil, noteerr.Backend(noteerr.SubRateLimit, "Rate limit exceeded", http.StatusTooManyRequests, nil)
		}
		logger.Warn().Dur("retryAfter", retryAfter).Int("attempt", rateRetries+1).Msg("rate limited - backing off")
		select {
		case <-time.After(retryAfter):
			return c.doWithRetry(ctx, method, path, body, headers, logger, reauthed, rateRetries+1)
		case <-ctx.Done():
			return nil, ctx.Err()
		}

	default:
		return resp, nil
	}
}

// checkStatus maps non-2xx data-plane responses to the error taxonomy.
// Conflict and validation mappings only apply on save paths.
func (c *Client) checkStatus(resp *http.Response, isSave bool) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	io.Copy(io.Discard, resp.Body)

	switch {
	case isSave && (resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusPreconditionFailed):
		return noteerr.Backend(noteerr.SubConflict,
			"Save conflict: the note changed on the server", resp.StatusCode, nil)
	case isSave && resp.StatusCode == http.StatusBadRequest:
		return noteerr.Backend(noteerr.SubValidationError,
			"The server rejected the note payload", resp.StatusCode, nil)
	case resp.StatusCode == http.StatusNotFound:
		return noteerr.NotFound("")
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway:
		return noteerr.Backend(noteerr.SubUnavailable,
			"Sync backend unavailable", resp.StatusCode, nil)
	case resp.StatusCode == http.StatusGatewayTimeout:
		return noteerr.Backend(noteerr.SubTimeout,
			"Sync backend timed out", resp.StatusCode, nil)
	default:
		return noteerr.Backend(noteerr.SubUnknown,
			fmt.Sprintf("Unexpected backend status %d", resp.StatusCode), resp.StatusCode, nil)
	}
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	return c.Authorize(ctx)
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func parseVersionHeader(value string) (int, bool) {
	if value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// parseRetryAfter parses the Retry-After header, supporting integer
// seconds and HTTP-date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return defaultRetryAfter
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return defaultRetryAfter
}
