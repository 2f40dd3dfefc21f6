package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/cellscope/internal/common"
)

// ErrorKind is the closed set of failures the API reports.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindMissingToken
	KindInvalidTokenFormat
	KindInvalidToken
	KindTokenExpired
	KindInvalidTokenType
	KindInvalidCredentials
	KindUsernameExists
	KindValidation
	KindNotFound
	KindRateLimited
	KindQueue

	kindCount
)

// ErrorDescription is everything needed to render an error response.
// Challenge is the WWW-Authenticate value, empty for non-401 kinds.
type ErrorDescription struct {
	Status    int
	Code      string
	Message   string
	Challenge string
}

// APIError is an ErrorKind with an optional message override. Only
// client-facing text goes into Message.
type APIError struct {
	Kind    ErrorKind
	Message string
}

func NewAPIError(kind ErrorKind) *APIError {
	return &APIError{Kind: kind}
}

func (e *APIError) Error() string {
	return e.Describe().Message
}

func invalidTokenChallenge(description string) string {
	return `Bearer error="invalid_token", error_description="` + description + `"`
}

// Describe maps the kind to its status, code, message and challenge. Kinds
// missing from the switch fall back to INTERNAL_ERROR.
func (e *APIError) Describe() ErrorDescription {
	var d ErrorDescription

	switch e.Kind {
	case KindMissingToken:
		d = ErrorDescription{http.StatusUnauthorized, "MISSING_TOKEN",
			"Missing authentication token", "Bearer"}
	case KindInvalidTokenFormat:
		d = ErrorDescription{http.StatusUnauthorized, "INVALID_TOKEN_FORMAT",
			"Invalid token format. Use 'Bearer <token>'", invalidTokenChallenge("Invalid token format")}
	case KindInvalidToken:
		d = ErrorDescription{http.StatusUnauthorized, "INVALID_TOKEN",
			"Invalid or malformed token", invalidTokenChallenge("Token validation failed")}
	case KindTokenExpired:
		d = ErrorDescription{http.StatusUnauthorized, "TOKEN_EXPIRED",
			"Token has expired", invalidTokenChallenge("The access token expired")}
	case KindInvalidTokenType:
		d = ErrorDescription{http.StatusUnauthorized, "INVALID_TOKEN_TYPE",
			"Invalid token type. Access token required", invalidTokenChallenge("Access token required")}
	case KindInvalidCredentials:
		d = ErrorDescription{http.StatusUnauthorized, "INVALID_CREDENTIALS",
			"Invalid username or password", "Bearer"}
	case KindUsernameExists:
		d = ErrorDescription{http.StatusConflict, "USERNAME_EXISTS", "Username already exists", ""}
	case KindValidation:
		d = ErrorDescription{http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request", ""}
	case KindNotFound:
		d = ErrorDescription{http.StatusNotFound, "NOT_FOUND", "Resource not found", ""}
	case KindRateLimited:
		d = ErrorDescription{http.StatusTooManyRequests, "RATE_LIMITED",
			"Too many requests. Please try again later", ""}
	case KindQueue:
		d = ErrorDescription{http.StatusInternalServerError, "QUEUE_ERROR", "Failed to submit analysis job", ""}
	default:
		d = ErrorDescription{http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred", ""}
	}

	if e.Message != "" {
		d.Message = e.Message
	}
	return d
}

// FromServiceError maps service errors to API errors. The second result is
// false when err was not recognised and became KindInternal; the caller logs
// those.
func FromServiceError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}

	var (
		validationErr *common.ValidationError
		notFoundErr   *common.NotFoundError
	)

	switch {
	case errors.As(err, &validationErr):
		return &APIError{Kind: KindValidation, Message: validationErr.Message}, true
	case errors.As(err, &notFoundErr):
		return &APIError{Kind: KindNotFound, Message: notFoundErr.Message}, true
	case errors.Is(err, common.ErrorValidation):
		return NewAPIError(KindValidation), true
	case errors.Is(err, common.ErrorNotFound):
		return NewAPIError(KindNotFound), true
	case errors.Is(err, common.ErrorUsernameExists):
		return NewAPIError(KindUsernameExists), true
	case errors.Is(err, common.ErrorInvalidCredentials):
		return NewAPIError(KindInvalidCredentials), true
	case errors.Is(err, common.ErrTokenExpired):
		return NewAPIError(KindTokenExpired), true
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrorUnauthorized):
		return NewAPIError(KindInvalidToken), true
	case errors.Is(err, common.ErrorQueue):
		return NewAPIError(KindQueue), true
	}

	return NewAPIError(KindInternal), false
}
