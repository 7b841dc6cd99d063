package models

// Error is a code-carrying error so handlers can map failures to HTTP
// statuses without leaking store details to clients.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

var (
	ErrValidation = NewError("INVALID_INPUT", "invalid input provided")
	ErrNotFound   = NewError("NOT_FOUND", "resource not found")
	ErrNotOwner   = NewError("NOT_OWNER", "not allowed to modify this place")
	ErrDB         = NewError("DB_ERROR", "database operation failed")
)
