package domain

import "time"

// Device states as seen by the review workflow.
const (
	DeviceAtivo   = "ativo"
	DeviceInativo = "inativo"
)

// Device is a client device authorized to register points
// (table active_devices).
type Device struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	DeviceID    string     `json:"device_id"`
	DeviceModel string     `json:"device_model"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (d *Device) ReviewID() string { return d.ID }
func (d *Device) OwnerID() string  { return d.UserID }

func (d *Device) ReviewState() string {
	if d.IsActive {
		return DeviceAtivo
	}
	return DeviceInativo
}

// NextDeviceState toggles authorization. ok is false when the device is
// already in the requested state.
func NextDeviceState(current string, d Decision) (next string, ok bool, err error) {
	switch d {
	case DecisionActivate, DecisionApprove:
		next = DeviceAtivo
	case DecisionDeactivate, DecisionReject:
		next = DeviceInativo
	default:
		return "", false, &ErrValidation{Field: "decision", Message: "decisão deve ser ativar ou desativar"}
	}
	return next, current != next, nil
}

// RegisterDeviceRequest is the body for POST /v1/devices.
type RegisterDeviceRequest struct {
	DeviceID    string `json:"device_id"`
	DeviceModel string `json:"device_model"`
}
