package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"tryonapp/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const RequestIDHeader = "X-Request-ID"

// maxErrorBody bounds how much of a failed response is read for its detail.
const maxErrorBody = 64 << 10

// TokenSource yields the bearer token for backend calls. An empty token
// means the user is not authenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource whose value can be swapped while in use.
type StaticToken struct {
	mu    sync.RWMutex
	token string
}

func NewStaticToken(token string) *StaticToken {
	return &StaticToken{token: token}
}

func (s *StaticToken) Token(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *StaticToken) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// APIClient is the request layer shared by the catalog, try-on and history
// clients.
type APIClient struct {
	BaseURL    string
	Tokens     TokenSource
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

func NewAPIClient(baseURL string, timeout time.Duration, tokens TokenSource, logger zerolog.Logger) *APIClient {
	return &APIClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Tokens:     tokens,
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     logger,
	}
}

type authMode int

const (
	authNone authMode = iota
	authOptional
	authRequired
)

func (c *APIClient) token(ctx context.Context, op string, mode authMode) (string, error) {
	if mode == authNone || c.Tokens == nil {
		if mode == authRequired {
			return "", models.ServiceError(op, http.StatusUnauthorized, "not authenticated", nil)
		}
		return "", nil
	}
	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return "", models.ServiceError(op, http.StatusUnauthorized, "not authenticated", err)
	}
	if token == "" && mode == authRequired {
		return "", models.ServiceError(op, http.StatusUnauthorized, "not authenticated", nil)
	}
	return token, nil
}

func (c *APIClient) newRequest(ctx context.Context, op string, mode authMode, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	token, err := c.token(ctx, op, mode)
	if err != nil {
		return nil, err
	}
	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, models.ServiceError(op, 0, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends req and decodes a 2xx body into out. Transport failures,
// non-2xx statuses and undecodable bodies all come back as ServiceError.
func (c *APIClient) do(req *http.Request, op string, out any) error {
	started := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Logger.Warn().Err(err).Str("op", op).Str("url", req.URL.Path).Msg("request failed")
		return models.ServiceError(op, 0, err.Error(), err)
	}
	defer resp.Body.Close()

	c.Logger.Debug().
		Str("op", op).
		Str("request_id", req.Header.Get(RequestIDHeader)).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("backend response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			// empty body, callers validate what they need
			return nil
		}
		return models.ServiceError(op, resp.StatusCode, "malformed response body", err)
	}
	return nil
}

func errorFromResponse(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var detail models.ErrorDetail
	message := ""
	if err := json.Unmarshal(raw, &detail); err == nil {
		message = detail.Message()
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	if message == "" {
		message = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return models.ServiceError(op, resp.StatusCode, message, nil)
}
