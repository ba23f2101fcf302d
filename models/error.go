package models

// ErrorResponse is the structured error envelope returned by the admin API.
// Code carries a stable machine-readable reason so the UI can explain why a
// call failed, not just that it failed.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// Error codes surfaced by the admin API
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeInviterNotFound     = "INVITER_NOT_FOUND"
	CodeInviterInactive     = "INVITER_INACTIVE"
	CodePermissionDenied    = "PERMISSION_DENIED"
	CodeRoleCeiling         = "ROLE_CEILING"
	CodeDuplicateUser       = "DUPLICATE_USER"
	CodeDuplicateInvitation = "DUPLICATE_INVITATION"
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidState        = "INVALID_STATE"
	CodeInvitationExpired   = "INVITATION_EXPIRED"
	CodeDatabaseError       = "DATABASE_ERROR"
)
