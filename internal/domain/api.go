package domain

// ApiResponse is the envelope every gateway endpoint answers with. Code is a stable,
// machine-readable error identifier set on failures.
type ApiResponse struct {
	Message string      `json:"message"`
	Success bool        `json:"success"`
	Status  int         `json:"status"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
