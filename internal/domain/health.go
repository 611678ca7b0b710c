package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// PointMetrics is returned by GET /v1/metrics/points.
type PointMetrics struct {
	Submitted        int64   `json:"submitted"`
	OutsideGeofence  int64   `json:"outsideGeofence"`
	OutsideRate      float64 `json:"outsideRate"`
	Approved         int64   `json:"approved"`
	Rejected         int64   `json:"rejected"`
	DecisionConflict int64   `json:"decisionConflicts"`
	AuditFailures    int64   `json:"auditFailures"`
	OrphanCleanups   int64   `json:"orphanCleanups"`
	SettingsHitRate  float64 `json:"settingsCacheHitRate"`
	Period           string  `json:"period"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps paginated list results.
type ListResponse[T any] struct {
	Data     []T  `json:"data"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
