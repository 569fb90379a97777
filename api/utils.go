package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"trading-journal/analysis"
	"trading-journal/apikeys"
	"trading-journal/assistant"
	"trading-journal/database"
	models "trading-journal/database/models_pkg"
	"trading-journal/insights"
	"trading-journal/llm"
)

// Messages returned for AI failures; the cause is only logged
const (
	msgGenerateFailed   = "Failed to generate response. Please try again."
	msgProviderRequired = "No AI provider is configured. Add an API key in settings."
)

// errorResponse sends a JSON error body
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse sends a JSON success body
func successResponse(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondWithError maps err to a status and logs server-side failures.
// Internal errors are never echoed to the client.
func (s *Server) respondWithError(c *gin.Context, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.FullPath()).Int("status", status).Msg("Request failed")
	}
	errorResponse(c, status, message)
}

func classify(err error) (int, string) {
	switch {
	case database.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, analysis.ErrNoMatchedTrades):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, models.ErrUnknownInsightType), errors.Is(err, llm.ErrUnknownProvider):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, llm.ErrInvalidAPIKey):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, assistant.ErrProviderInitialize):
		return http.StatusServiceUnavailable, msgProviderRequired
	case errors.Is(err, apikeys.ErrEncryptionDisabled):
		return http.StatusServiceUnavailable, "Storing API keys is disabled on this server"
	case errors.Is(err, assistant.ErrGenerateResponse), errors.Is(err, insights.ErrGenerateInsights):
		return http.StatusBadGateway, msgGenerateFailed
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// queryInt reads an integer query parameter, falling back to def when absent or malformed
func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// queryTime parses an optional RFC3339 or YYYY-MM-DD query parameter
func queryTime(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, database.NewValidationErrorWithValue(key, "must be RFC3339 or YYYY-MM-DD", v)
}
