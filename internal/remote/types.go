package remote

// Result is the wire envelope for every response:
//
//	{"success": true, "data": {...}}
//	{"success": false, "error": {"message": "...", "code": "..."}}
type Result[T any] struct {
	Success bool       `json:"success"`
	Data    T          `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the error object inside a failed Result.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
