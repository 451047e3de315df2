package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidDocument         = errors.New("invalid document")
	ErrDocumentNotFound        = errors.New("document not found")
	ErrEmptyCorpus             = errors.New("empty corpus")
	ErrMalformedQuery          = errors.New("malformed query")
	ErrInvalidLimit            = errors.New("invalid limit")
	ErrIndexGenerationMismatch = errors.New("index generation mismatch")
	ErrIndexingFailed          = errors.New("indexing failed")
	ErrInvalidInput            = errors.New("invalid input")
	ErrRateLimited             = errors.New("rate limit exceeded")
	ErrInternal                = errors.New("internal error")
	ErrTimeout                 = errors.New("operation timed out")
	ErrUnavailable             = errors.New("service unavailable")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// IndexingFailedError wraps whatever stopped a build. The previous
// generation stays active when one is returned.
type IndexingFailedError struct {
	Cause error
}

func (e *IndexingFailedError) Error() string {
	return fmt.Sprintf("%s: %v", ErrIndexingFailed.Error(), e.Cause)
}

func (e *IndexingFailedError) Unwrap() []error {
	return []error{ErrIndexingFailed, e.Cause}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	// A failed build caused by the batch itself is the caller's mistake.
	switch {
	case errors.Is(err, ErrInvalidDocument), errors.Is(err, ErrEmptyCorpus):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexingFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrIndexGenerationMismatch):
		return http.StatusConflict
	case errors.Is(err, ErrMalformedQuery),
		errors.Is(err, ErrInvalidLimit),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
