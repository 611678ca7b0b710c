package service

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/port"
)

// DefaultFaceThreshold is the confidence a match must reach.
const DefaultFaceThreshold = 0.85

// StaticMatcher is the built-in port.FaceMatcher used when no face API
// is configured. Scores are derived from the inputs, so the same pair
// always gets the same answer: roughly nine in ten pairs score 0.95, the
// rest 0.70.
type StaticMatcher struct{}

func (StaticMatcher) Match(_ context.Context, userID, imageHash string) (float64, error) {
	sum := blake2b.Sum256([]byte(userID + ":" + imageHash))
	if sum[0] < 26 {
		return 0.70, nil
	}
	return 0.95, nil
}

// FaceService records a secondary identity signal. The result never
// changes a point's status.
type FaceService struct {
	matcher   port.FaceMatcher
	threshold float64
	audit     *AuditService
	logger    *zap.Logger
}

func NewFaceService(matcher port.FaceMatcher, threshold float64, audit *AuditService, logger *zap.Logger) *FaceService {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFaceThreshold
	}
	return &FaceService{matcher: matcher, threshold: threshold, audit: audit, logger: logger}
}

func (s *FaceService) Verify(ctx context.Context, actor *domain.Actor, req *domain.FaceVerifyRequest) (*domain.FaceVerifyResult, error) {
	ctx, span := tracer.Start(ctx, "FaceService.Verify")
	defer span.End()

	if strings.TrimSpace(req.ImageHash) == "" || strings.TrimSpace(req.UserID) == "" {
		return nil, &domain.ErrValidation{Field: "image_hash", Message: "image_hash e user_id são obrigatórios"}
	}
	if !actor.CanRead(req.UserID) {
		return nil, &domain.ErrForbidden{Action: "verificar rosto de outro colaborador"}
	}

	confidence, err := s.matcher.Match(ctx, req.UserID, req.ImageHash)
	if err != nil {
		s.logger.Error("face match failed", zap.String("user_id", req.UserID), zap.Error(err))
		return nil, err
	}
	confidence = math.Round(confidence*100) / 100
	match := confidence >= s.threshold

	s.audit.Record(ctx, actor.UserID, domain.ActionFaceVerification, map[string]any{
		"target_user_id": req.UserID,
		"match":          match,
		"confidence":     confidence,
	})
	return &domain.FaceVerifyResult{Success: true, Match: match, Confidence: confidence, Threshold: s.threshold}, nil
}
