package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/harvest/models"
)

// respondError maps a HarvestError to the correct HTTP status code and
// writes a structured JSON error response.
func respondError(c *gin.Context, err error, url string, timing models.TimingInfo) {
	herr := models.AsHarvestError(err)
	c.JSON(mapErrorToStatus(herr), models.ExtractResponse{
		Success: false,
		URL:     url,
		Error:   herr.ToDetail(),
		Timing:  timing,
	})
}

// badRequest reports a request that failed binding or validation.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ExtractResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeInvalidInput,
			Message: err.Error(),
		},
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.HarvestError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeFetch, models.ErrCodeParse:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeCollision:
		return http.StatusConflict // 409
	default:
		return http.StatusInternalServerError // 500
	}
}
