package models

// ErrorResponse is the standard error envelope
type ErrorResponse struct {
	Success bool  `json:"success"`
	Error   Error `json:"error"`
}

// Error carries a machine-readable code and a human-readable message
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
