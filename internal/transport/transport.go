// Package transport wraps every call to the scheduling backend: it attaches
// the bearer credential, performs the single silent refresh-and-retry cycle
// on authorization failure, and surfaces unrecoverable failures to the
// user-visible notification channel.
package transport

import (
	"bytes"
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

	"github.com/google/uuid"

	"github.com/example/timetable-console/internal/logging"
)

var (
	// ErrUnreachable marks a call that never produced a response.
	ErrUnreachable = errors.New("transport: backend unreachable")
	// ErrSessionExpired marks a call that failed because the session could
	// not be refreshed; the session state has already been cleared.
	ErrSessionExpired = errors.New("transport: session expired")
)

// StatusError carries the HTTP status of a failed call for programmatic
// inspection alongside the message already surfaced to the user.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: status %d: %s", e.Code, e.Message)
}

// Credentials is the slice of the session the transport needs. Only the
// refresh path writes through it.
type Credentials interface {
	AccessToken() string
	RefreshToken() string
	SetTokens(access, refresh string)
	Clear()
}

// Notifier is the user-visible error channel: a blocking, dismissible
// notification surface. Confirm poses a yes/no question.
type Notifier interface {
	Notify(ctx context.Context, title, message string)
	Confirm(ctx context.Context, message string) bool
}

// Client issues authenticated requests against the backend.
type Client struct {
	base      *url.URL
	http      *http.Client
	creds     Credentials
	notifier  Notifier
	logger    *slog.Logger
	onExpired func(context.Context)

	// refreshMu serializes refresh attempts so that concurrent 401s result
	// in a single refresh call instead of racing to rotate the pair.
	refreshMu sync.Mutex
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The default carries no
// timeout: a hung request blocks its caller until the context is done.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithExpiredHandler registers the forced re-login hook invoked after the
// session is cleared.
func WithExpiredHandler(fn func(context.Context)) Option {
	return func(c *Client) { c.onExpired = fn }
}

// New builds a Client for the given base URL, e.g. "https://host/api/v1".
func New(baseURL string, creds Credentials, notifier Notifier, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("transport: invalid base URL: %w", err)
	}
	c := &Client{
		base:     base,
		http:     &http.Client{},
		creds:    creds,
		notifier: notifier,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do sends one authenticated request. The body, when non-nil, is encoded as
// JSON on every attempt so the 401 retry replays it intact.
//
// A 2xx response is returned unchanged and the caller owns its body. Every
// other outcome is surfaced to the notifier and returned as an error:
// ErrUnreachable for connectivity failures, ErrSessionExpired when the single
// refresh cycle could not recover a 401, and *StatusError for remaining
// non-2xx statuses.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	logger := logging.Component(ctx, c.logger, "transport", "method", method, "path", path)
	requestID := uuid.NewString()

	access := c.creds.AccessToken()
	res, err := c.send(ctx, method, path, query, body, access, requestID)
	if err != nil {
		c.notifyConnectivity(ctx, logger, err)
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if res.StatusCode == http.StatusUnauthorized {
		drain(res)
		if err := c.refreshOnce(ctx, logger, access); err != nil {
			return nil, err
		}
		res, err = c.send(ctx, method, path, query, body, c.creds.AccessToken(), requestID)
		if err != nil {
			c.notifyConnectivity(ctx, logger, err)
			return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		// Whatever came back from the retry is final; a second 401 falls
		// through to the generic failure path below.
	}

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return res, nil
	}

	statusErr := c.readFailure(res)
	logger.ErrorContext(ctx, "request failed", "status", statusErr.Code, "request_id", requestID, "error", statusErr.Message)
	c.notify(ctx, "Ошибка запроса", statusErr.Message)
	return nil, statusErr
}

// DoJSON runs Do and decodes a JSON response body into out. A 204 response
// leaves out untouched; callers that must distinguish "no content" use Do.
func (c *Client) DoJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	res, err := c.Do(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	defer drain(res)

	if res.StatusCode == http.StatusNoContent || out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("transport: failed to decode response for %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any, access, requestID string) (*http.Response, error) {
	target := c.base.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", requestID)
	// Set last: the auth header is never overridden by caller headers.
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	return c.http.Do(req)
}

// refreshOnce performs at most one refresh cycle for the access token this
// request was sent with. Waiters whose token was already rotated by another
// caller return immediately and retry with the fresh pair.
func (c *Client) refreshOnce(ctx context.Context, logger *slog.Logger, usedAccess string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if current := c.creds.AccessToken(); current != "" && current != usedAccess {
		return nil
	}

	refresh := c.creds.RefreshToken()
	if refresh == "" {
		logger.WarnContext(ctx, "no refresh credential stored, forcing re-login")
		c.expire(ctx)
		return ErrSessionExpired
	}

	res, err := c.send(ctx, http.MethodPost, "auth/refresh", nil,
		map[string]string{"refreshToken": refresh}, "", uuid.NewString())
	if err != nil {
		logger.ErrorContext(ctx, "refresh call failed", "error", err)
		c.notifyRefreshFailed(ctx)
		c.expire(ctx)
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	defer drain(res)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		logger.ErrorContext(ctx, "refresh rejected", "status", res.StatusCode)
		c.notifyRefreshFailed(ctx)
		c.expire(ctx)
		return fmt.Errorf("%w: refresh rejected with status %d", ErrSessionExpired, res.StatusCode)
	}

	var pair struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(res.Body).Decode(&pair); err != nil || pair.AccessToken == "" {
		logger.ErrorContext(ctx, "refresh response unreadable", "error", err)
		c.notifyRefreshFailed(ctx)
		c.expire(ctx)
		return fmt.Errorf("%w: unreadable refresh response", ErrSessionExpired)
	}

	c.creds.SetTokens(pair.AccessToken, pair.RefreshToken)
	logger.InfoContext(ctx, "session refreshed")
	return nil
}

func (c *Client) expire(ctx context.Context) {
	c.creds.Clear()
	if c.onExpired != nil {
		c.onExpired(ctx)
	}
}

func (c *Client) readFailure(res *http.Response) *StatusError {
	defer drain(res)

	message := fmt.Sprintf("Ошибка %d: %s", res.StatusCode, http.StatusText(res.StatusCode))
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<16)).Decode(&parsed); err == nil && strings.TrimSpace(parsed.Message) != "" {
		message = parsed.Message
	}
	return &StatusError{Code: res.StatusCode, Message: message}
}

func (c *Client) notifyConnectivity(ctx context.Context, logger *slog.Logger, err error) {
	logger.ErrorContext(ctx, "backend unreachable", "error", err)
	c.notify(ctx, "Ошибка сети", err.Error())
}

func (c *Client) notifyRefreshFailed(ctx context.Context) {
	c.notify(ctx, "Ошибка обновления сессии", "Срок действия токена истёк. Пожалуйста, войдите снова.")
}

func (c *Client) notify(ctx context.Context, title, message string) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(ctx, title, message)
}

func drain(res *http.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<16))
	_ = res.Body.Close()
}
