package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/port"
)

const exportPreviewSize = 5

// ExportService builds the payroll export of approved points.
type ExportService struct {
	points   port.PointStore
	profiles port.ProfileStore
	audit    *AuditService
	logger   *zap.Logger
}

func NewExportService(points port.PointStore, profiles port.ProfileStore, audit *AuditService, logger *zap.Logger) *ExportService {
	return &ExportService{points: points, profiles: profiles, audit: audit, logger: logger}
}

// parseBound accepts RFC 3339 or a plain date. A plain end date covers
// the whole day.
func parseBound(field, raw string, end bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, &domain.ErrValidation{Field: field, Message: "data é obrigatória"}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, &domain.ErrValidation{Field: field, Message: "use RFC 3339 ou AAAA-MM-DD"}
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func (s *ExportService) Payroll(ctx context.Context, actor *domain.Actor, req *domain.PayrollExportRequest) (*domain.PayrollExportResponse, error) {
	ctx, span := tracer.Start(ctx, "ExportService.Payroll")
	defer span.End()

	if !actor.Role.CanReview() {
		return nil, &domain.ErrForbidden{Action: "exportar folha de pagamento"}
	}
	from, err := parseBound("start_date", req.StartDate, false)
	if err != nil {
		return nil, err
	}
	to, err := parseBound("end_date", req.EndDate, true)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, &domain.ErrValidation{Field: "end_date", Message: "data final anterior à inicial"}
	}

	points, err := s.points.ListApprovedBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	totals := map[string]*domain.PayrollUserTotal{}
	var ids []string
	for _, p := range points {
		t, ok := totals[p.UserID]
		if !ok {
			t = &domain.PayrollUserTotal{UserID: p.UserID, ByType: map[string]int{}}
			totals[p.UserID] = t
			ids = append(ids, p.UserID)
		}
		t.Total++
		t.ByType[string(p.Type)]++
	}

	// Names are cosmetic: a failed lookup still exports.
	if len(ids) > 0 {
		profiles, err := s.profiles.ListProfiles(ctx, ids)
		if err != nil {
			s.logger.Warn("payroll export: profile names unavailable", zap.Error(err))
		}
		for i := range profiles {
			if t, ok := totals[profiles[i].ID]; ok {
				t.Name = profiles[i].DisplayName()
			}
		}
	}

	users := make([]domain.PayrollUserTotal, 0, len(totals))
	for _, id := range ids {
		users = append(users, *totals[id])
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })

	preview := points
	if len(preview) > exportPreviewSize {
		preview = preview[:exportPreviewSize]
	}

	s.audit.Record(ctx, actor.UserID, domain.ActionPayrollExported, map[string]any{
		"start_date":       req.StartDate,
		"end_date":         req.EndDate,
		"records_exported": len(points),
	})
	return &domain.PayrollExportResponse{
		Success:         true,
		Message:         fmt.Sprintf("Exportação de %d registros de ponto concluída com sucesso.", len(points)),
		RecordsExported: len(points),
		Users:           users,
		DataPreview:     preview,
	}, nil
}
