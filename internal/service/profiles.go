package service

import (
	"context"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/port"
)

const minPasswordLength = 6

// ProfileService manages profiles and accounts.
type ProfileService struct {
	profiles port.ProfileStore
	admin    port.UserAdmin
	sessions *SessionService
	audit    *AuditService
	logger   *zap.Logger
}

func NewProfileService(profiles port.ProfileStore, admin port.UserAdmin, sessions *SessionService, audit *AuditService, logger *zap.Logger) *ProfileService {
	return &ProfileService{profiles: profiles, admin: admin, sessions: sessions, audit: audit, logger: logger}
}

// Get returns the caller's own profile.
func (s *ProfileService) Get(ctx context.Context, actor *domain.Actor) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "ProfileService.Get")
	defer span.End()

	return s.sessions.Profile(ctx, actor.UserID)
}

// UpdateName changes the caller's own first and last name.
func (s *ProfileService) UpdateName(ctx context.Context, actor *domain.Actor, req *domain.UpdateProfileRequest) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "ProfileService.UpdateName")
	defer span.End()

	first := strings.TrimSpace(req.FirstName)
	last := strings.TrimSpace(req.LastName)
	if first == "" {
		return nil, &domain.ErrValidation{Field: "first_name", Message: "nome é obrigatório"}
	}

	p, err := s.profiles.UpdateProfileName(ctx, actor.UserID, first, last)
	if err != nil {
		return nil, err
	}
	s.sessions.Forget(actor.UserID)

	s.audit.Record(ctx, actor.UserID, domain.ActionProfileUpdated, map[string]any{
		"first_name": first,
		"last_name":  last,
	})
	return p, nil
}

// UpdateRole changes another user's role. Only an admin may grant admin.
func (s *ProfileService) UpdateRole(ctx context.Context, actor *domain.Actor, userID string, req *domain.UpdateRoleRequest) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "ProfileService.UpdateRole")
	defer span.End()

	if !actor.Role.CanReview() {
		return nil, &domain.ErrForbidden{Action: "alterar papel"}
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}
	if role == domain.RoleAdmin && actor.Role != domain.RoleAdmin {
		return nil, &domain.ErrForbidden{Action: "conceder papel admin"}
	}

	p, err := s.profiles.UpdateProfileRole(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	s.sessions.Forget(userID)

	s.logger.Info("role updated",
		zap.String("user_id", userID),
		zap.String("role", string(role)),
		zap.String("by", actor.UserID),
	)
	s.audit.Record(ctx, actor.UserID, domain.ActionProfileUpdated, map[string]any{
		"target_user_id": userID,
		"role":           string(role),
	})
	return p, nil
}

// CreateUser registers a confirmed account and its profile.
func (s *ProfileService) CreateUser(ctx context.Context, actor *domain.Actor, req *domain.CreateUserRequest) (*domain.CreateUserResponse, error) {
	ctx, span := tracer.Start(ctx, "ProfileService.CreateUser")
	defer span.End()

	if !actor.Role.CanReview() {
		return nil, &domain.ErrForbidden{Action: "criar usuário"}
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, &domain.ErrValidation{Field: "email", Message: "email inválido"}
	}
	if len(req.Password) < minPasswordLength {
		return nil, &domain.ErrValidation{Field: "password", Message: "senha deve ter ao menos 6 caracteres"}
	}
	firstName := strings.TrimSpace(req.FirstName)
	if firstName == "" {
		return nil, &domain.ErrValidation{Field: "first_name", Message: "nome é obrigatório"}
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}
	if role == domain.RoleAdmin && actor.Role != domain.RoleAdmin {
		return nil, &domain.ErrForbidden{Action: "criar usuário admin"}
	}

	userID, err := s.admin.CreateUser(ctx, email, req.Password, map[string]any{
		"first_name": firstName,
		"role":       string(role),
	})
	if err != nil {
		return nil, err
	}

	// The signup trigger normally creates the row; the upsert covers
	// databases without it.
	if err := s.profiles.UpsertProfile(ctx, &domain.Profile{
		ID:        userID,
		Email:     email,
		FirstName: firstName,
		Role:      string(role),
	}); err != nil {
		s.logger.Error("profile upsert after signup failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	s.audit.Record(ctx, actor.UserID, domain.ActionUserCreated, map[string]any{
		"new_user_id": userID,
		"role":        string(role),
		"email":       email,
	})
	return &domain.CreateUserResponse{Success: true, Message: "Usuário criado com sucesso!", UserID: userID}, nil
}

// DeleteUser removes an account. Admin only, never the caller itself.
func (s *ProfileService) DeleteUser(ctx context.Context, actor *domain.Actor, userID string) error {
	ctx, span := tracer.Start(ctx, "ProfileService.DeleteUser")
	defer span.End()

	if actor.Role != domain.RoleAdmin {
		return &domain.ErrForbidden{Action: "remover usuário"}
	}
	if userID == actor.UserID {
		return &domain.ErrValidation{Field: "user_id", Message: "não é possível remover a si mesmo"}
	}

	if err := s.admin.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.sessions.Forget(userID)

	s.audit.Record(ctx, actor.UserID, domain.ActionUserDeleted, map[string]any{
		"deleted_user_id": userID,
	})
	return nil
}
