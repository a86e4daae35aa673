package errors

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidOperation  = errors.New("invalid operation")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrStoreUnavailable  = errors.New("state store unavailable")
	ErrRoomNotFound      = errors.New("room not found")
	ErrMessageNotFound   = errors.New("message not found")
	ErrPresenceNotFound  = errors.New("presence not found")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token expired")
	ErrNotSubscribed     = errors.New("connection is not subscribed to room")
	ErrFixedMembership   = errors.New("room membership cannot be changed")
	ErrEmptyMembership   = errors.New("room requires at least one member")
	ErrUnsupportedType   = errors.New("unsupported type")
	ErrInvalidPagination = errors.New("limit must be positive")
)

// Wire codes sent to websocket clients in error acknowledgements.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeInvalidOperation = "INVALID_OPERATION"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeInternal         = "INTERNAL"
)

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

// Kind collapses specific errors into the five taxonomy sentinels.
// Errors outside the taxonomy are returned as nil.
func Kind(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrMessageNotFound), errors.Is(err, ErrPresenceNotFound):
		return ErrNotFound
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrEmptyMembership),
		errors.Is(err, ErrUnsupportedType), errors.Is(err, ErrInvalidPagination):
		return ErrInvalidArgument
	case errors.Is(err, ErrInvalidOperation), errors.Is(err, ErrNotSubscribed),
		errors.Is(err, ErrFixedMembership):
		return ErrInvalidOperation
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTokenExpired):
		return ErrUnauthorized
	case errors.Is(err, ErrStoreUnavailable):
		return ErrStoreUnavailable
	default:
		return nil
	}
}

func Code(err error) string {
	switch Kind(err) {
	case ErrNotFound:
		return CodeNotFound
	case ErrInvalidArgument:
		return CodeInvalidArgument
	case ErrInvalidOperation:
		return CodeInvalidOperation
	case ErrUnauthorized:
		return CodeUnauthorized
	case ErrStoreUnavailable:
		return CodeStoreUnavailable
	default:
		return CodeInternal
	}
}

func HTTPStatusFromError(err error) int {
	switch Kind(err) {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalidArgument:
		return http.StatusBadRequest
	case ErrInvalidOperation:
		return http.StatusForbidden
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Is and As re-export the standard helpers so callers importing this
// package under the name "errors" keep access to them.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func New(text string) error {
	return errors.New(text)
}
