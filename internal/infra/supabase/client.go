// Package supabase provides a client for Supabase (PostgREST, Storage and Auth).
// Used as the hosted data backend for points, settings, profiles and audit logs.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to the Supabase APIs.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
	}
}

// APIError is a non-2xx answer from Supabase.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Retryable reports whether repeating the request may succeed.
func (e *APIError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout
}

// isUniqueViolation matches PostgREST's 23505 conflict and Storage's
// "Duplicate" answer. Foreign key conflicts (23503) are not duplicates.
func (e *APIError) isUniqueViolation() bool {
	if strings.Contains(e.Body, "23505") || strings.Contains(e.Body, `"Duplicate"`) {
		return true
	}
	return e.Status == http.StatusConflict && !strings.Contains(e.Body, "23503")
}

// send executes an authenticated request against any Supabase API and
// returns the body of a 2xx answer or an *APIError.
func (c *Client) send(ctx context.Context, method, path string, body io.Reader, header http.Header) ([]byte, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		c.logger.Error("supabase: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceRoleKey))
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("supabase: failed to read response body",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return nil, &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: string(respBody)}
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return respBody, nil
}

// execute runs op behind the circuit breaker with retries. 4xx answers
// and domain outcomes are not retried.
func (c *Client) execute(ctx context.Context, op func() error) error {
	return resilience.Call(ctx, c.cb, c.cfg, func() error {
		err := op()
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return resilience.Permanent(err)
		}
		if isDomainOutcome(err) {
			return resilience.Permanent(err)
		}
		return err
	})
}

func isDomainOutcome(err error) bool {
	var (
		nf  *domain.ErrNotFound
		dup *domain.ErrDuplicate
		un  *domain.ErrUnauthorized
		cf  *domain.ErrConflict
	)
	return errors.As(err, &nf) || errors.As(err, &dup) || errors.As(err, &un) || errors.As(err, &cf)
}

// wrapErr keeps domain outcomes as they are and tags everything else
// with the failing service.
func wrapErr(service string, err error) error {
	if err == nil {
		return nil
	}
	if isDomainOutcome(err) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: service}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ErrTimeout{Operation: service}
	}
	return &domain.ErrExternalService{Service: service, Err: err}
}
