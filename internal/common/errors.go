package common

// AppError is an error a handler can translate directly into the response
// envelope: a stable machine-readable code, a human message, and the HTTP
// status to answer with. Details carries optional structured context that
// is safe to show the caller.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// NewAppError wraps err with a code, message, and response status.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

// Unwrap lets errors.Is and errors.As see through to the cause.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
