// Package dto contiene los cuerpos JSON de request/response de la API.
package dto

import "time"

// =================================================================================
// AUTH
// =================================================================================

// LoginRequest para POST /login. También se acepta como form.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse de cualquier login local exitoso.
type LoginResponse struct {
	AccountID  string    `json:"account_id"`
	Username   string    `json:"username,omitempty"`
	AuthMethod string    `json:"auth_method"`
	Linked     *LinkInfo `json:"linked,omitempty"`
}

// LinkInfo describe un vínculo social recién creado.
type LinkInfo struct {
	RegistrationID string `json:"registration_id"`
	SubjectID      string `json:"subject_id"`
}

// SessionResponse para GET /session.
type SessionResponse struct {
	Authenticated   bool         `json:"authenticated"`
	AccountID       string       `json:"account_id,omitempty"`
	AuthMethod      string       `json:"auth_method,omitempty"`
	AuthenticatedAt *time.Time   `json:"authenticated_at,omitempty"`
	PendingBinding  *PendingInfo `json:"pending_binding,omitempty"`
}

// PendingInfo resume la identidad federada pendiente de vincular.
type PendingInfo struct {
	RegistrationID string `json:"registration_id"`
	Provider       string `json:"provider"`
	SubjectID      string `json:"subject_id"`
}

// =================================================================================
// SOCIAL
// =================================================================================

// Estados del callback federado.
const (
	CallbackSignedIn       = "signed_in"
	CallbackPendingBinding = "pending_binding"
)

// CallbackResponse del callback cuando el cliente pide JSON.
type CallbackResponse struct {
	Status         string `json:"status"`
	RegistrationID string `json:"registration_id"`
	Provider       string `json:"provider"`
	SubjectID      string `json:"subject_id"`
	AccountID      string `json:"account_id,omitempty"`
}

// =================================================================================
// HEALTH
// =================================================================================

type HealthResponse struct {
	Status     string            `json:"status"` // ok | unavailable
	Components map[string]string `json:"components,omitempty"`
}
