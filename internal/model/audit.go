package model

import "time"

const (
	AuditStatusSuccess = "success"
	AuditStatusFailure = "failure"
)

const (
	AuditActionRegister             = "auth.register"
	AuditActionLogin                = "auth.login"
	AuditActionRefresh              = "auth.refresh"
	AuditActionLogout               = "auth.logout"
	AuditActionProfileUpdate        = "auth.profile_update"
	AuditActionPasswordChange       = "auth.password_change"
	AuditActionPasswordResetRequest = "auth.password_reset_request"
	AuditActionPasswordResetConfirm = "auth.password_reset_confirm"
)

type AuditActor struct {
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	IP       string `json:"ip,omitempty"`
}

type AuditEntry struct {
	Action     string     `json:"action"`
	OccurredAt time.Time  `json:"occurred_at"`
	Actor      AuditActor `json:"actor"`
	Status     string     `json:"status"`
	Resource   string     `json:"resource,omitempty"`
	Error      string     `json:"error,omitempty"`
}
