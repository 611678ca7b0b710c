// Package capture turns a device position and a photo into a point
// submission intent. Location is a hard precondition: no intent is ever
// produced without a resolved, fresh fix.
package capture

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/geofence"
)

var tracer = otel.Tracer("capture")

const (
	DefaultLocationTimeout = 10 * time.Second
	DefaultMaxPositionAge  = 60 * time.Second
)

// ErrPermissionDenied is returned by a Locator when the user refused
// location access.
var ErrPermissionDenied = errors.New("permissão de localização negada")

// Position is a location fix.
type Position struct {
	Coordinate     geofence.Coordinate
	AccuracyMeters float64
	Timestamp      time.Time
}

// Photo is a captured image.
type Photo struct {
	Data        []byte
	ContentType string
}

// Locator resolves the device position. A cached fix no older than
// maxAge may be returned.
type Locator interface {
	CurrentPosition(ctx context.Context, maxAge time.Duration) (Position, error)
}

// Camera captures the identity photo for a punch.
type Camera interface {
	Capture(ctx context.Context) (Photo, error)
}

// Intent is a packaged submission ready for the points endpoint.
type Intent struct {
	Type            domain.PunchType
	Position        Position
	Photo           Photo
	ClientTimestamp time.Time
	Fingerprint     string

	// Advisory is the local geofence verdict; nil when no zone was known.
	// The server re-derives it and never trusts this value.
	Advisory *geofence.Verdict
	Warning  string
}

// Metadata renders the JSON "metadata" part of the multipart submission.
func (in *Intent) Metadata() domain.SubmissionMetadata {
	lat := in.Position.Coordinate.Lat
	lon := in.Position.Coordinate.Lon
	acc := in.Position.AccuracyMeters
	return domain.SubmissionMetadata{
		Type:           string(in.Type),
		Lat:            &lat,
		Lon:            &lon,
		AccuracyM:      &acc,
		TimestampLocal: in.ClientTimestamp.Local().Format(time.RFC3339),
		TimestampUTC:   in.ClientTimestamp.UTC().Format(time.RFC3339Nano),
		Fingerprint:    in.Fingerprint,
	}
}

// Capturer builds intents with a bounded location wait.
type Capturer struct {
	locator Locator
	camera  Camera
	logger  *zap.Logger
	timeout time.Duration
	maxAge  time.Duration
	now     func() time.Time
}

// Option customizes a Capturer.
type Option func(*Capturer)

// WithTimeout overrides the location wait.
func WithTimeout(d time.Duration) Option { return func(c *Capturer) { c.timeout = d } }

// WithMaxAge overrides how old a reused fix may be.
func WithMaxAge(d time.Duration) Option { return func(c *Capturer) { c.maxAge = d } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(c *Capturer) { c.now = now } }

func NewCapturer(locator Locator, camera Camera, logger *zap.Logger, opts ...Option) *Capturer {
	c := &Capturer{
		locator: locator,
		camera:  camera,
		logger:  logger,
		timeout: DefaultLocationTimeout,
		maxAge:  DefaultMaxPositionAge,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capture resolves location, takes the photo and packages the intent.
// settings may be nil; when it carries a geofence the intent gets an
// advisory verdict and, if outside, a warning for the user.
func (c *Capturer) Capture(ctx context.Context, punchType domain.PunchType, settings *domain.CompanySettings) (*Intent, error) {
	ctx, span := tracer.Start(ctx, "Capturer.Capture")
	defer span.End()

	punchType, err := domain.ParsePunchType(string(punchType))
	if err != nil {
		return nil, err
	}

	pos, err := c.locate(ctx)
	if err != nil {
		return nil, err
	}

	photo, err := c.camera.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("capturing photo: %w", err)
	}
	if len(photo.Data) == 0 {
		return nil, &domain.ErrValidation{Field: "photo", Message: "foto é obrigatória"}
	}
	if photo.ContentType == "" {
		photo.ContentType = "image/jpeg"
	}

	in := &Intent{
		Type:            punchType,
		Position:        pos,
		Photo:           photo,
		ClientTimestamp: c.now(),
	}
	in.Fingerprint = Fingerprint(photo.Data, punchType, in.ClientTimestamp)
	c.advise(in, settings)

	c.logger.Debug("point intent captured",
		zap.String("type", string(punchType)),
		zap.Float64("accuracy_m", pos.AccuracyMeters),
		zap.String("fingerprint", in.Fingerprint),
	)
	return in, nil
}

// locate bounds the wait and rejects stale fixes.
func (c *Capturer) locate(ctx context.Context) (Position, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pos, err := c.locator.CurrentPosition(ctx, c.maxAge)
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return Position{}, &domain.ErrLocationUnavailable{Reason: "permissão negada"}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return Position{}, &domain.ErrLocationUnavailable{Reason: "tempo esgotado após " + c.timeout.String()}
	case err != nil:
		return Position{}, &domain.ErrLocationUnavailable{Reason: err.Error()}
	}

	if err := pos.Coordinate.Validate(); err != nil {
		return Position{}, &domain.ErrLocationUnavailable{Reason: err.Error()}
	}
	if !pos.Timestamp.IsZero() && c.now().Sub(pos.Timestamp) > c.maxAge {
		return Position{}, &domain.ErrLocationUnavailable{Reason: "posição desatualizada"}
	}
	return pos, nil
}

func (c *Capturer) advise(in *Intent, settings *domain.CompanySettings) {
	if settings == nil || settings.GeofenceCenter == nil || settings.GeofenceRadius <= 0 {
		return
	}
	zone := geofence.Zone{
		Center:       geofence.Coordinate{Lat: settings.GeofenceCenter.Lat, Lon: settings.GeofenceCenter.Lng},
		RadiusMeters: float64(settings.GeofenceRadius),
	}
	v, err := geofence.Evaluate(in.Position.Coordinate, zone)
	if err != nil {
		c.logger.Warn("advisory geofence check skipped", zap.Error(err))
		return
	}
	in.Advisory = &v
	if !v.Within {
		in.Warning = "Você está fora da área permitida (" +
			strconv.FormatFloat(v.DistanceMeters, 'f', 0, 64) + "m do local). O ponto ficará pendente de aprovação."
	}
}

// Fingerprint derives the idempotency token from the photo bytes, the
// punch type and the client timestamp. Resending the same intent yields
// the same token.
func Fingerprint(photo []byte, punchType domain.PunchType, ts time.Time) string {
	h, _ := blake2b.New256(nil)
	h.Write(photo)
	h.Write([]byte{0})
	h.Write([]byte(punchType))
	h.Write([]byte{0})
	h.Write([]byte(ts.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}
