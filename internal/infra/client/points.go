// Package client holds outbound HTTP clients: the points submission
// client used by capture devices and the face matching API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/ponto-bfa-go/internal/capture"
	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/resilience"
)

var tracer = otel.Tracer("client")

// PointsClient submits captured intents to POST /v1/points.
type PointsClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewPointsClient creates a new PointsClient.
func NewPointsClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *PointsClient {
	return &PointsClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		cfg:        cfg,
	}
}

// errorBody is the server's error answer.
type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field"`
}

// Submit uploads the intent. Retries resend the same fingerprint, so a
// request that reached the server before the connection dropped is
// answered with the stored point instead of a second one.
func (c *PointsClient) Submit(ctx context.Context, token string, in *capture.Intent) (*domain.SubmissionResult, error) {
	ctx, span := tracer.Start(ctx, "PointsClient.Submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("point.type", string(in.Type)),
		attribute.String("point.fingerprint", in.Fingerprint),
	)

	body, contentType, err := encodeIntent(in)
	if err != nil {
		return nil, err
	}

	var result domain.SubmissionResult
	err = resilience.Call(ctx, c.cb, c.cfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/points", bytes.NewReader(body))
		if err != nil {
			return resilience.Permanent(err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK {
			return json.NewDecoder(resp.Body).Decode(&result)
		}
		return statusError(resp)
	})
	if err != nil {
		return nil, classify("points", err)
	}
	span.SetAttributes(attribute.Bool("point.replayed", result.Replayed))
	return &result, nil
}

// Settings fetches GET /v1/settings for the local advisory check.
func (c *PointsClient) Settings(ctx context.Context, token string) (*domain.CompanySettings, error) {
	ctx, span := tracer.Start(ctx, "PointsClient.Settings")
	defer span.End()

	var settings domain.CompanySettings
	err := resilience.Call(ctx, c.cb, c.cfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/settings", nil)
		if err != nil {
			return resilience.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return statusError(resp)
		}
		return json.NewDecoder(resp.Body).Decode(&settings)
	})
	if err != nil {
		return nil, classify("points", err)
	}
	return &settings, nil
}

// encodeIntent builds the multipart body: a JSON "metadata" field and
// the "photo" file.
func encodeIntent(in *capture.Intent) ([]byte, string, error) {
	meta, err := json.Marshal(in.Metadata())
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("metadata", string(meta)); err != nil {
		return nil, "", err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename="%s.jpg"`, in.Fingerprint))
	h.Set("Content-Type", in.Photo.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(in.Photo.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// statusError maps a non-2xx answer. 4xx answers are permanent.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var eb errorBody
	_ = json.Unmarshal(raw, &eb)
	msg := eb.Error
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return resilience.Permanent(&domain.ErrUnauthorized{Message: msg})
	case resp.StatusCode == http.StatusForbidden:
		return resilience.Permanent(&domain.ErrForbidden{Action: msg})
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return resilience.Permanent(&domain.ErrValidation{Field: eb.Field, Message: msg})
	case resp.StatusCode == http.StatusConflict:
		return resilience.Permanent(&domain.ErrConflict{Message: msg})
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusRequestTimeout:
		return resilience.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, msg))
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
}

// classify keeps domain errors and tags transport failures.
func classify(service string, err error) error {
	var (
		un  *domain.ErrUnauthorized
		fb  *domain.ErrForbidden
		val *domain.ErrValidation
		cf  *domain.ErrConflict
	)
	switch {
	case errors.As(err, &un), errors.As(err, &fb), errors.As(err, &val), errors.As(err, &cf):
		return err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &domain.ErrCircuitOpen{Service: service}
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.ErrTimeout{Operation: service}
	}
	return &domain.ErrExternalService{Service: service, Err: err}
}
