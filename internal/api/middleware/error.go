package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"fbmc-quality/internal/acquire"
	"fbmc-quality/internal/analysis"
	"fbmc-quality/internal/api/models"
	"fbmc-quality/internal/data"
	"fbmc-quality/internal/pipeline"
	"fbmc-quality/internal/timeseries"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorHandler middleware handles panics
func ErrorHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("handler panicked")
		message := "An unexpected error occurred"
		if s, ok := recovered.(string); ok {
			message = s
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "INTERNAL_ERROR", Message: message},
		})
	})
}

// Abort writes a JSON error with the given status and code.
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Error: models.ErrorDetail{Code: code, Message: message},
	})
}

// AbortWithError maps err to a status and error code and writes it.
func AbortWithError(c *gin.Context, err error) {
	status, detail := Classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Int("status", status).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, models.ErrorResponse{Error: detail})
}

// Classify maps domain errors to an HTTP status and error body.
func Classify(err error) (int, models.ErrorDetail) {
	detail := models.ErrorDetail{Message: err.Error()}

	var (
		rangeErr *timeseries.InvalidRangeError
		alignErr *analysis.AlignmentError
		acqErr   *acquire.AcquisitionError
		apiErr   *data.APIError
	)
	switch {
	case errors.As(err, &rangeErr):
		detail.Code = "INVALID_RANGE"
		return http.StatusBadRequest, detail

	case errors.Is(err, acquire.ErrNoData):
		detail.Code = "NO_DATA"
		return http.StatusNotFound, detail

	case errors.Is(err, pipeline.ErrUnknownCnec):
		detail.Code = "UNKNOWN_CNEC"
		return http.StatusNotFound, detail

	case errors.Is(err, pipeline.ErrNoObservedFlow), errors.Is(err, pipeline.ErrNoNetPositions):
		detail.Code = "NO_OBSERVED_DATA"
		return http.StatusNotFound, detail

	case errors.Is(err, pipeline.ErrNoZones):
		detail.Code = "NO_ZONES"
		return http.StatusUnprocessableEntity, detail

	case errors.As(err, &alignErr):
		detail.Code = "MISALIGNED_SERIES"
		detail.Details = map[string]interface{}{
			"only_records":  len(alignErr.OnlyRecords),
			"only_observed": len(alignErr.OnlyObserved),
			"duplicates":    len(alignErr.Duplicates),
		}
		return http.StatusUnprocessableEntity, detail

	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests:
		detail.Code = apiErr.Code
		detail.Details = map[string]interface{}{
			"source":      apiErr.Source,
			"retry_after": apiErr.RetryAfter,
		}
		return http.StatusTooManyRequests, detail

	case errors.As(err, &acqErr):
		detail.Code = "ACQUISITION_FAILED"
		hours := make([]time.Time, len(acqErr.Failed))
		again := true
		for i, f := range acqErr.Failed {
			hours[i] = f.Hour
			again = again && retryable(f.Err)
		}
		detail.Details = map[string]interface{}{"failed_hours": hours, "retryable": again}
		return http.StatusBadGateway, detail

	case errors.As(err, &apiErr):
		detail.Code = apiErr.Code
		detail.Details = map[string]interface{}{
			"source":      apiErr.Source,
			"status_code": apiErr.StatusCode,
			"retryable":   apiErr.Temporary(),
		}
		return http.StatusBadGateway, detail

	case errors.Is(err, context.DeadlineExceeded):
		detail.Code = "TIMEOUT"
		return http.StatusGatewayTimeout, detail
	}

	detail.Code = "INTERNAL_ERROR"
	return http.StatusInternalServerError, detail
}

// retryable reports whether asking again later may succeed.
func retryable(err error) bool {
	var apiErr *data.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
