package services

// ServiceError is a typed error with an HTTP status code. Only
// request-level failures become ServiceErrors; row-level upload
// failures are values inside the report, never errors.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string { return e.Message }
