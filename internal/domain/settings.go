package domain

import "time"

// SettingsID is the primary key of the company_settings singleton.
const SettingsID = "default"

// GeoPoint is the stored geofence center.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CompanySettings is the singleton policy record.
type CompanySettings struct {
	ID                 string     `json:"id"`
	GeofenceCenter     *GeoPoint  `json:"geofence_center"`
	GeofenceRadius     int        `json:"geofence_radius"`
	ToleranceMinutes   int        `json:"tolerance_minutes"`
	PhotoRetentionDays int        `json:"photo_retention_days"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

// DefaultCompanySettings is what the settings screen shows before a
// manager saves anything.
func DefaultCompanySettings() *CompanySettings {
	return &CompanySettings{
		ID:                 SettingsID,
		GeofenceCenter:     &GeoPoint{Lat: -23.5505, Lng: -46.6333},
		GeofenceRadius:     100,
		ToleranceMinutes:   15,
		PhotoRetentionDays: 30,
	}
}

// UpdateSettingsRequest is the body for PUT /v1/settings.
type UpdateSettingsRequest struct {
	GeofenceCenter     *GeoPoint `json:"geofence_center"`
	GeofenceRadius     int       `json:"geofence_radius"`
	ToleranceMinutes   int       `json:"tolerance_minutes"`
	PhotoRetentionDays int       `json:"photo_retention_days"`
}
