package models

// UpdateConfigRequest is the admin PATCH body. Absent fields are left unchanged.
type UpdateConfigRequest struct {
	WindowMs    *int64  `json:"windowMs,omitempty"`
	MaxRequests *int    `json:"maxRequests,omitempty"`
	Message     *string `json:"message,omitempty"`
}
