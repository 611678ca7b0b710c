package domain

// ============================================================
// Face verification & payroll export
// ============================================================

// FaceVerifyRequest is the body for POST /v1/face/verify.
type FaceVerifyRequest struct {
	ImageHash string `json:"image_hash"`
	UserID    string `json:"user_id"`
}

// FaceVerifyResult is the verifier outcome. It is recorded in the audit
// log and never changes a point's status.
type FaceVerifyResult struct {
	Success    bool    `json:"success"`
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	Threshold  float64 `json:"threshold"`
}

// PayrollExportRequest is the body for POST /v1/reports/payroll.
type PayrollExportRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// PayrollUserTotal aggregates approved points of one user.
type PayrollUserTotal struct {
	UserID string         `json:"user_id"`
	Name   string         `json:"name,omitempty"`
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
}

// PayrollExportResponse is returned by POST /v1/reports/payroll.
type PayrollExportResponse struct {
	Success         bool               `json:"success"`
	Message         string             `json:"message"`
	RecordsExported int                `json:"records_exported"`
	Users           []PayrollUserTotal `json:"users"`
	DataPreview     []Point            `json:"data_preview"`
}
