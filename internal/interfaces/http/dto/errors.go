package dto

import (
	"net/http"

	"github.com/stocklens/backend/internal/domain/analytics"
)

// Error codes returned by the API
const (
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeInternal   = "INTERNAL_ERROR"
	ErrCodeUpstream   = "UPSTREAM_ERROR"
)

// StatusForKind maps an analytics error kind to an HTTP status code. The
// pipeline fronts an upstream API, so most kinds surface as a bad gateway
// rather than leaking upstream status codes directly.
func StatusForKind(kind analytics.ErrorKind) int {
	switch kind {
	case analytics.KindValidation:
		return http.StatusBadRequest
	case analytics.KindNotFound:
		return http.StatusNotFound
	case analytics.KindAuthentication:
		return http.StatusBadGateway
	case analytics.KindRateLimit, analytics.KindMaxRetries:
		return http.StatusServiceUnavailable
	case analytics.KindServer, analytics.KindNetwork, analytics.KindInvalidResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
