package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/ponto-bfa-go/internal/infra/resilience"
)

// FaceClient scores an image against a user's reference face through an
// external matching API. It implements port.FaceMatcher.
type FaceClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

func NewFaceClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *FaceClient {
	return &FaceClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		cfg:        cfg,
	}
}

type faceMatchRequest struct {
	UserID    string `json:"user_id"`
	ImageHash string `json:"image_hash"`
}

type faceMatchResponse struct {
	Confidence float64 `json:"confidence"`
}

// Match returns a confidence in [0, 1].
func (c *FaceClient) Match(ctx context.Context, userID, imageHash string) (float64, error) {
	ctx, span := tracer.Start(ctx, "FaceClient.Match")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	payload, err := json.Marshal(faceMatchRequest{UserID: userID, ImageHash: imageHash})
	if err != nil {
		return 0, err
	}

	var out faceMatchResponse
	err = resilience.Call(ctx, c.cb, c.cfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/face/match", bytes.NewReader(payload))
		if err != nil {
			return resilience.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return statusError(resp)
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	if err != nil {
		return 0, classify("face", err)
	}

	switch {
	case out.Confidence < 0:
		out.Confidence = 0
	case out.Confidence > 1:
		out.Confidence = 1
	}
	span.SetAttributes(attribute.Float64("face.confidence", out.Confidence))
	return out.Confidence, nil
}
