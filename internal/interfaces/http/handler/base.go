package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stocklens/backend/internal/domain/analytics"
	"github.com/stocklens/backend/internal/interfaces/http/dto"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

func requestID(c *gin.Context) string {
	return c.GetString("request_id")
}

// Success sends a 200 response with the given payload
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 response for asynchronously started work
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeBadRequest, message, requestID(c)))
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.ErrCodeNotFound, message, requestID(c)))
}

// Conflict sends a 409 conflict response
func (h *BaseHandler) Conflict(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, dto.NewErrorResponse(dto.ErrCodeConflict, message, requestID(c)))
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.ErrCodeInternal, message, requestID(c)))
}

// HandleError maps domain errors to HTTP responses. Classified upstream
// failures carry their taxonomy kind as the error code.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var aerr *analytics.Error
	if errors.As(err, &aerr) {
		c.JSON(dto.StatusForKind(aerr.Kind),
			dto.NewErrorResponse(string(aerr.Kind), aerr.Error(), requestID(c)))
		return
	}

	h.InternalError(c, "An unexpected error occurred")
}
