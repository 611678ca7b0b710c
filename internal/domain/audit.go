package domain

import "time"

// AuditAction names a recorded workflow or security event.
type AuditAction string

const (
	ActionPointRegistered   AuditAction = "ponto_registrado"
	ActionPointApproved     AuditAction = "ponto_aprovado"
	ActionPointRejected     AuditAction = "ponto_rejeitado"
	ActionAbsenceRequested  AuditAction = "ausencia_solicitada"
	ActionAbsenceApproved   AuditAction = "ausencia_aprovada"
	ActionAbsenceRejected   AuditAction = "ausencia_rejeitada"
	ActionDeviceRegistered  AuditAction = "dispositivo_registrado"
	ActionDeviceActivated   AuditAction = "dispositivo_ativado"
	ActionDeviceDeactivated AuditAction = "dispositivo_desativado"
	ActionProfileUpdated    AuditAction = "perfil_atualizado"
	ActionUserCreated       AuditAction = "usuario_criado"
	ActionUserDeleted       AuditAction = "usuario_removido"
	ActionSettingsUpdated   AuditAction = "configuracoes_atualizadas"
	ActionFaceVerification  AuditAction = "face_verification_attempt"
	ActionPayrollExported   AuditAction = "exportacao_folha_pagamento"
)

// AuditLogEntry is an append-only audit record.
type AuditLogEntry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Action    AuditAction    `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details"`
}

// AuditFilter narrows GET /v1/audit.
type AuditFilter struct {
	UserID   string
	Action   AuditAction
	Page     int
	PageSize int
}
