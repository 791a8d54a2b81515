package models

// RateLimitExceededResponse is the API response when rate limit is exceeded.
type RateLimitExceededResponse struct {
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"` // seconds
}

// ConfigResponse mirrors the live limiter settings.
type ConfigResponse struct {
	WindowMs    int64  `json:"windowMs"`
	MaxRequests int    `json:"maxRequests"`
	Message     string `json:"message"`
}

// BackendResponse reports the active window store.
type BackendResponse struct {
	Backend Backend `json:"backend"`
}

// ResetWindowResponse confirms a window reset.
type ResetWindowResponse struct {
	Identifier string `json:"identifier"`
	Reset      bool   `json:"reset"`
}
