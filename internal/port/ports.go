// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
)

// ============================================================
// Identity
// ============================================================

// IdentityProvider resolves a bearer credential issued at login.
// Invalid or expired credentials return *domain.ErrUnauthorized.
type IdentityProvider interface {
	VerifyToken(ctx context.Context, token string) (*domain.Identity, error)
}

// UserAdmin manages accounts at the identity provider.
type UserAdmin interface {
	CreateUser(ctx context.Context, email, password string, metadata map[string]any) (string, error)
	DeleteUser(ctx context.Context, userID string) error
}

// ProfileStore handles the profiles table. GetProfile returns
// domain.ErrNotFound when the row does not exist yet.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	ListProfiles(ctx context.Context, userIDs []string) ([]domain.Profile, error)
	UpsertProfile(ctx context.Context, p *domain.Profile) error
	UpdateProfileName(ctx context.Context, userID, firstName, lastName string) (*domain.Profile, error)
	UpdateProfileRole(ctx context.Context, userID string, role domain.Role) (*domain.Profile, error)
}

// ============================================================
// Reviewable items
// ============================================================

// ReviewStore is the persistence contract of one reviewable entity kind.
// CompareAndSetState updates the state only if it still equals from and
// reports false, with no error, when another writer got there first.
type ReviewStore[T domain.Reviewable] interface {
	Load(ctx context.Context, id string) (T, error)
	CompareAndSetState(ctx context.Context, id, from, to string) (T, bool, error)
}

// PointStore handles the points table. CreatePoint returns
// *domain.ErrDuplicate when (user_id, fingerprint) already exists.
type PointStore interface {
	ReviewStore[*domain.Point]
	CreatePoint(ctx context.Context, p *domain.Point) (*domain.Point, error)
	FindByFingerprint(ctx context.Context, userID, fingerprint string) (*domain.Point, error)
	ListPoints(ctx context.Context, f domain.PointFilter) ([]domain.Point, error)
	ListApprovedBetween(ctx context.Context, from, to time.Time) ([]domain.Point, error)
}

// AtomicPointRecorder is implemented by stores that can commit a point
// and its audit entry in one transaction.
type AtomicPointRecorder interface {
	CreatePointWithAudit(ctx context.Context, p *domain.Point, entry *domain.AuditLogEntry) (*domain.Point, error)
}

// AbsenceStore handles the absences table.
type AbsenceStore interface {
	ReviewStore[*domain.Absence]
	CreateAbsence(ctx context.Context, a *domain.Absence) (*domain.Absence, error)
	ListAbsences(ctx context.Context, userID string, page, pageSize int) ([]domain.Absence, error)
}

// DeviceStore handles the active_devices table.
type DeviceStore interface {
	ReviewStore[*domain.Device]
	RegisterDevice(ctx context.Context, d *domain.Device) (*domain.Device, error)
	ListDevices(ctx context.Context, userID string, page, pageSize int) ([]domain.Device, error)
}

// ============================================================
// Settings & audit
// ============================================================

// SettingsStore handles the company_settings singleton. GetSettings
// returns domain.ErrNotFound when no row exists.
type SettingsStore interface {
	GetSettings(ctx context.Context) (*domain.CompanySettings, error)
	UpsertSettings(ctx context.Context, s *domain.CompanySettings) (*domain.CompanySettings, error)
}

// AuditStore is append-only. ListAudit returns newest first.
type AuditStore interface {
	InsertAudit(ctx context.Context, entry *domain.AuditLogEntry) error
	ListAudit(ctx context.Context, f domain.AuditFilter) ([]domain.AuditLogEntry, error)
}

// ============================================================
// Content storage & face matching
// ============================================================

// ObjectStorage stores point photos. Put never overwrites an existing
// key; it returns the stored path.
type ObjectStorage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, path string) error
	PublicURL(path string) string
}

// FaceMatcher scores how well an image matches the user's reference face.
type FaceMatcher interface {
	Match(ctx context.Context, userID, imageHash string) (float64, error)
}
