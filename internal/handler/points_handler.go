package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// multipartOverhead leaves room for the metadata field and part headers
// on top of the photo itself.
const multipartOverhead = 64 << 10

// ============================================================
// POST /v1/points: multipart: "metadata" (JSON) + "photo"
// ============================================================

func submitPointHandler(svc *service.PointService, maxPhotoBytes int64, logger *zap.Logger) http.HandlerFunc {
	limit := maxPhotoBytes + multipartOverhead
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/points")
		defer span.End()

		actor := ActorFromContext(ctx)
		span.SetAttributes(attribute.String("user.id", actor.UserID))

		r.Body = http.MaxBytesReader(w, r.Body, limit)
		if err := r.ParseMultipartForm(limit); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "foto excede o tamanho máximo permitido")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid multipart body")
			return
		}
		defer r.MultipartForm.RemoveAll()

		var meta domain.SubmissionMetadata
		if err := json.Unmarshal([]byte(r.FormValue("metadata")), &meta); err != nil {
			writeError(w, http.StatusBadRequest, "metadata inválido")
			return
		}

		sub, err := submissionFromMetadata(&meta)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if file, header, err := r.FormFile("photo"); err == nil {
			sub.Photo, err = io.ReadAll(file)
			file.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "falha ao ler a foto")
				return
			}
			sub.PhotoContentType = header.Header.Get("Content-Type")
			if sub.PhotoContentType == "" || sub.PhotoContentType == "application/octet-stream" {
				sub.PhotoContentType = http.DetectContentType(sub.Photo)
			}
		}

		result, created, err := svc.Submit(ctx, actor, sub)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		status := http.StatusCreated
		if !created {
			status = http.StatusOK
		}
		writeJSON(w, status, result)
	}
}

// submissionFromMetadata rejects absent coordinates; a zero value is a
// legitimate position and must not be confused with a missing field.
func submissionFromMetadata(m *domain.SubmissionMetadata) (*domain.PointSubmission, error) {
	if m.Lat == nil || m.Lon == nil {
		return nil, &domain.ErrValidation{Field: "location", Message: "latitude e longitude são obrigatórias"}
	}
	if m.AccuracyM == nil {
		return nil, &domain.ErrValidation{Field: "accuracy_m", Message: "precisão é obrigatória"}
	}
	return &domain.PointSubmission{
		Type: domain.PunchType(m.Type),
		Location: domain.Location{
			Latitude:       *m.Lat,
			Longitude:      *m.Lon,
			AccuracyMeters: *m.AccuracyM,
		},
		TimestampLocal: m.TimestampLocal,
		TimestampUTC:   m.TimestampUTC,
		Fingerprint:    strings.TrimSpace(m.Fingerprint),
	}, nil
}

// ============================================================
// GET /v1/points, GET /v1/points/{id}
// ============================================================

func listPointsHandler(svc *service.PointService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/points")
		defer span.End()

		page, pageSize := parsePagination(r)
		f := domain.PointFilter{
			UserID:   r.URL.Query().Get("user_id"),
			Page:     page,
			PageSize: pageSize,
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			st, err := domain.ParseReviewStatus(raw)
			if err != nil {
				handleServiceError(w, err, logger)
				return
			}
			f.Status = st
		}

		resp, err := svc.List(ctx, ActorFromContext(ctx), f)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getPointHandler(svc *service.PointService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/points/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("point.id", id))

		view, err := svc.Get(ctx, ActorFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// ============================================================
// Decisions
// ============================================================

func pointDecisionHandler(svc *service.PointService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/points/decision")
		defer span.End()

		var req domain.DecisionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.PointID) == "" {
			handleServiceError(w, &domain.ErrValidation{Field: "point_id", Message: "point_id é obrigatório"}, logger)
			return
		}
		d, err := domain.ParseDecision(req.Decision)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("point.id", req.PointID), attribute.String("decision", string(d)))

		p, err := svc.Decide(ctx, ActorFromContext(ctx), req.PointID, d)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.DecisionResponse{Success: true, ID: p.ID, Status: string(p.Status)})
	}
}

func pointDecisionByPathHandler(svc *service.PointService, d domain.Decision, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/points/{id}/"+string(d))
		defer span.End()

		p, err := svc.Decide(ctx, ActorFromContext(ctx), chi.URLParam(r, "id"), d)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.DecisionResponse{Success: true, ID: p.ID, Status: string(p.Status)})
	}
}
