package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ponto-bfa-go/internal/port"
)

// DeviceService handles device authorization. A registered device stays
// inativo until a reviewer activates it.
type DeviceService struct {
	store    port.DeviceStore
	audit    *AuditService
	reviewer *Reviewer[*domain.Device]
	logger   *zap.Logger
	now      func() time.Time
}

func NewDeviceService(store port.DeviceStore, audit *AuditService, metrics *observability.Metrics, logger *zap.Logger) *DeviceService {
	return &DeviceService{
		store: store,
		audit: audit,
		reviewer: NewReviewer[*domain.Device](ReviewPolicy{
			Entity: "device",
			Next:   domain.NextDeviceState,
			Actions: map[string]domain.AuditAction{
				domain.DeviceAtivo:   domain.ActionDeviceActivated,
				domain.DeviceInativo: domain.ActionDeviceDeactivated,
			},
		}, store, audit, metrics, logger),
		logger: logger,
		now:    time.Now,
	}
}

func (s *DeviceService) Register(ctx context.Context, actor *domain.Actor, req *domain.RegisterDeviceRequest) (*domain.Device, error) {
	ctx, span := tracer.Start(ctx, "DeviceService.Register")
	defer span.End()

	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		return nil, &domain.ErrValidation{Field: "device_id", Message: "identificador do dispositivo é obrigatório"}
	}

	now := s.now().UTC()
	d, err := s.store.RegisterDevice(ctx, &domain.Device{
		ID:          uuid.NewString(),
		UserID:      actor.UserID,
		DeviceID:    deviceID,
		DeviceModel: strings.TrimSpace(req.DeviceModel),
		LastLogin:   &now,
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor.UserID, domain.ActionDeviceRegistered, map[string]any{
		"device_id":    d.DeviceID,
		"device_model": d.DeviceModel,
	})
	return d, nil
}

func (s *DeviceService) List(ctx context.Context, actor *domain.Actor, userID string, page, pageSize int) (*domain.ListResponse[domain.Device], error) {
	ctx, span := tracer.Start(ctx, "DeviceService.List")
	defer span.End()

	if !actor.Role.CanReview() {
		userID = actor.UserID
	}
	items, err := s.store.ListDevices(ctx, userID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &domain.ListResponse[domain.Device]{Data: items, Page: page, PageSize: pageSize, HasMore: len(items) == pageSize}, nil
}

// Decide activates or deactivates a device. Asking for the state it is
// already in fails with ErrInvalidStateTransition.
func (s *DeviceService) Decide(ctx context.Context, actor *domain.Actor, id string, d domain.Decision) (*domain.Device, error) {
	return s.reviewer.Decide(ctx, actor, id, d)
}
