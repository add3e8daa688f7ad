package dto

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stocklens/backend/internal/domain/analytics"
)

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind analytics.ErrorKind
		want int
	}{
		{analytics.KindValidation, http.StatusBadRequest},
		{analytics.KindNotFound, http.StatusNotFound},
		{analytics.KindAuthentication, http.StatusBadGateway},
		{analytics.KindRateLimit, http.StatusServiceUnavailable},
		{analytics.KindMaxRetries, http.StatusServiceUnavailable},
		{analytics.KindServer, http.StatusBadGateway},
		{analytics.KindNetwork, http.StatusBadGateway},
		{analytics.KindInvalidResponse, http.StatusBadGateway},
		{analytics.ErrorKind("bogus"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForKind(tt.kind))
		})
	}
}

func TestResponses(t *testing.T) {
	ok := NewSuccessResponse(map[string]int{"n": 1})
	assert.True(t, ok.Success)
	assert.Nil(t, ok.Error)

	bad := NewErrorResponse("RATE_LIMIT", "too many requests", "req-1")
	assert.False(t, bad.Success)
	assert.Equal(t, "RATE_LIMIT", bad.Error.Code)
	assert.Equal(t, "req-1", bad.Error.RequestID)
}
