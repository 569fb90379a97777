package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trading-journal/auth"
	"trading-journal/database"
	models "trading-journal/database/models_pkg"
	"trading-journal/realtime"
)

func (s *Server) handleAnalyze(c *gin.Context) {
	userID := auth.UserID(c)
	report, err := s.Engine.Analyze(c.Request.Context(), userID)
	if err != nil {
		s.respondWithError(c, err)
		return
	}

	s.Events.Publish(c.Request.Context(), userID, realtime.EventPatternsAnalyzed, gin.H{
		"trades_analyzed": report.TradesAnalyzed,
		"patterns":        len(report.Patterns),
		"retired":         report.Retired,
	})
	successResponse(c, http.StatusOK, report)
}

func (s *Server) handleListPatterns(c *gin.Context) {
	patternType := models.PatternType(c.Query("type"))
	switch patternType {
	case "", models.PatternTypeTimeBased, models.PatternTypeSetup, models.PatternTypeRisk:
	default:
		s.respondWithError(c, database.NewValidationErrorWithValue("type", "unknown pattern type", patternType))
		return
	}

	patterns, err := s.Patterns.ListPatterns(c.Request.Context(), auth.UserID(c), patternType, queryInt(c, "limit", 0))
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	successResponse(c, http.StatusOK, patterns)
}

func (s *Server) handleGenerateRecommendation(c *gin.Context) {
	userID := auth.UserID(c)
	rec, err := s.Engine.GenerateRecommendation(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		s.respondWithError(c, err)
		return
	}

	s.Events.Publish(c.Request.Context(), userID, realtime.EventRecommendationCreated, rec)
	successResponse(c, http.StatusCreated, rec)
}

func (s *Server) handleListRecommendations(c *gin.Context) {
	recs, err := s.Engine.Recommendations(c.Request.Context(), auth.UserID(c), queryInt(c, "limit", 0))
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	successResponse(c, http.StatusOK, recs)
}

// handleTransition moves a pending recommendation to a terminal status
func (s *Server) handleTransition(to models.RecommendationStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := s.Engine.TransitionRecommendation(c.Request.Context(), auth.UserID(c), c.Param("id"), to)
		if err != nil {
			s.respondWithError(c, err)
			return
		}
		successResponse(c, http.StatusOK, rec)
	}
}
